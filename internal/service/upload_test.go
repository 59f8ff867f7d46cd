package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	ensured   int
	ensureErr error
	objects   map[string][]byte
}

func (m *memObjects) EnsureBucket(context.Context) error {
	m.ensured++
	return m.ensureErr
}

func (m *memObjects) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[name] = b
	return nil
}

func (m *memObjects) PresignedGet(_ context.Context, name string, ttl time.Duration) (string, error) {
	if _, ok := m.objects[name]; !ok {
		return "", errors.New("no such key")
	}
	return "https://files.test/" + name + "?ttl=" + ttl.String(), nil
}

func (m *memObjects) ObjectURL(name string) string { return "https://files.test/" + name }

func newUploads(objects *memObjects) *UploadService {
	return NewUploadService(objects, UploadConfig{MaxSize: 16, Extensions: []string{".txt", "png"}})
}

func TestUploadStoresUnderUniqueName(t *testing.T) {
	objects := &memObjects{}
	svc := newUploads(objects)

	first, err := svc.Upload(context.Background(), "../notes.txt", strings.NewReader("hello"), 5, "")
	require.NoError(t, err)
	second, err := svc.Upload(context.Background(), "notes.txt", strings.NewReader("again"), 5, "text/plain")
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", first.Name)
	assert.True(t, strings.HasSuffix(first.Object, "-notes.txt"))
	assert.NotEqual(t, first.Object, second.Object)
	assert.Equal(t, "application/octet-stream", first.ContentType)
	assert.Equal(t, []byte("hello"), objects.objects[first.Object])
	assert.Equal(t, "https://files.test/"+first.Object, first.URL)
	assert.Equal(t, 1, objects.ensured)
}

func TestUploadRejectsBadFiles(t *testing.T) {
	svc := newUploads(&memObjects{})
	ctx := context.Background()

	_, err := svc.Upload(ctx, "big.txt", bytes.NewReader(make([]byte, 17)), 17, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Upload(ctx, "run.exe", strings.NewReader("MZ"), 2, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Upload(ctx, "empty.txt", strings.NewReader(""), 0, "")
	assert.ErrorIs(t, err, ErrValidation)

	ok, err := svc.Upload(ctx, "IMAGE.PNG", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "IMAGE.PNG", ok.Name)
}

func TestUploadBucketFailure(t *testing.T) {
	objects := &memObjects{ensureErr: errors.New("connection refused")}
	svc := newUploads(objects)

	_, err := svc.Upload(context.Background(), "a.txt", strings.NewReader("a"), 1, "")
	requireCode(t, err, 50301)

	objects.ensureErr = nil
	_, err = svc.Upload(context.Background(), "a.txt", strings.NewReader("a"), 1, "")
	require.NoError(t, err)
	assert.Equal(t, 2, objects.ensured)
}

func TestPresignedURL(t *testing.T) {
	objects := &memObjects{}
	svc := newUploads(objects)
	up, err := svc.Upload(context.Background(), "a.txt", strings.NewReader("a"), 1, "")
	require.NoError(t, err)

	url, expires, err := svc.PresignedURL(context.Background(), up.Object)
	require.NoError(t, err)
	assert.Contains(t, url, "ttl=5m0s")
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, 2*time.Second)

	_, _, err = svc.PresignedURL(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.PresignedURL(context.Background(), "missing")
	requireCode(t, err, 50203)
}
