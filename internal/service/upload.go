package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/issuetrack/backend/internal/storage"
)

type UploadConfig struct {
	MaxSize    int64
	Extensions []string
	PresignTTL time.Duration
}

type UploadService struct {
	objects storage.ObjectStore
	cfg     UploadConfig
	allowed map[string]bool

	bucketMu sync.Mutex
	bucketOK bool
}

func NewUploadService(objects storage.ObjectStore, cfg UploadConfig) *UploadService {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 << 20
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 5 * time.Minute
	}
	allowed := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &UploadService{objects: objects, cfg: cfg, allowed: allowed}
}

type UploadedFile struct {
	Name        string `json:"name"`
	Object      string `json:"object"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

func (s *UploadService) Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (*UploadedFile, error) {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return nil, validation("file name is required")
	}
	if size <= 0 {
		return nil, validation("file %s is empty", base)
	}
	if size > s.cfg.MaxSize {
		return nil, validation("file %s exceeds the %d MB limit", base, s.cfg.MaxSize>>20)
	}
	ext := strings.ToLower(filepath.Ext(base))
	if len(s.allowed) > 0 && !s.allowed[ext] {
		return nil, validation("file type %q is not allowed", ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	object := fmt.Sprintf("%s-%s", uuid.NewString(), base)
	if err := s.objects.Put(ctx, object, io.LimitReader(r, size), size, contentType); err != nil {
		log.Printf("[upload] %s: %v", object, err)
		return nil, coded(50202, err, "failed to store file")
	}
	return &UploadedFile{
		Name:        base,
		Object:      object,
		Size:        size,
		ContentType: contentType,
		URL:         s.objects.ObjectURL(object),
	}, nil
}

// PresignedURL returns a short-lived download link for an uploaded object.
func (s *UploadService) PresignedURL(ctx context.Context, object string) (string, time.Time, error) {
	object = strings.TrimSpace(object)
	if object == "" || strings.Contains(object, "/") {
		return "", time.Time{}, validation("invalid object name")
	}
	expires := time.Now().Add(s.cfg.PresignTTL)
	u, err := s.objects.PresignedGet(ctx, object, s.cfg.PresignTTL)
	if err != nil {
		log.Printf("[upload] presign %s: %v", object, err)
		return "", time.Time{}, coded(50203, err, "failed to generate URL")
	}
	return u, expires, nil
}

func (s *UploadService) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketOK {
		return nil
	}
	if err := s.objects.EnsureBucket(ctx); err != nil {
		log.Printf("[upload] %v", err)
		return coded(50301, err, "storage unavailable")
	}
	s.bucketOK = true
	return nil
}
