package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/notify"
	"github.com/issuetrack/backend/internal/store"
	"github.com/issuetrack/backend/internal/testutil"
)

type env struct {
	db       *gorm.DB
	store    *store.Store
	projects *ProjectService
	issues   *IssueService
	ctx      context.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDB(t)
	st := store.New(db)
	return &env{
		db:       db,
		store:    st,
		projects: NewProjectService(db, st),
		issues:   NewIssueService(db, st),
		ctx:      context.Background(),
	}
}

// codeOf returns the five-digit code of a CodedError, or 0.
func codeOf(err error) int {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return 0
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, codeOf(err), "error: %v", err)
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (c *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureNotifier) last() notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return notify.Message{}
	}
	return c.sent[len(c.sent)-1]
}

func ptr[T any](v T) *T { return &v }
