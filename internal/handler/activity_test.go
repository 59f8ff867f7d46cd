package handler

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/service"
	"github.com/issuetrack/backend/internal/sse"
	"github.com/issuetrack/backend/internal/store"
	"github.com/issuetrack/backend/internal/testutil"
)

type activityFixture struct {
	engine  *gin.Engine
	hub     *sse.Hub
	mr      *miniredis.Miniredis
	project *model.Project
}

func newActivityFixture(t *testing.T) *activityFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "owner", model.GlobalOwner)
	project := testutil.CreateProject(t, db, "ACT", owner)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	hub := sse.NewHub(rdb)

	h := NewActivityHandler(service.NewProjectService(db, store.New(db)), hub)
	r := gin.New()
	r.GET("/projects/:id/activity", func(c *gin.Context) {
		c.Set("user", owner)
		c.Next()
	}, h.Stream)
	return &activityFixture{engine: r, hub: hub, mr: mr, project: project}
}

// stream serves one request until ctx ends and returns the body.
func (f *activityFixture) stream(ctx context.Context, lastEventID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/projects/%d/activity", f.project.ID), nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestActivityStreamReplaysAfterLastEventID(t *testing.T) {
	f := newActivityFixture(t)
	bg := context.Background()
	f.hub.Broadcast(bg, f.project.ID, model.ActionColumnAdd, map[string]interface{}{"column_id": "qa"})
	f.hub.Broadcast(bg, f.project.ID, model.ActionMemberAdd, map[string]interface{}{"user_id": 2})

	ctx, cancel := context.WithTimeout(bg, 200*time.Millisecond)
	defer cancel()
	w := f.stream(ctx, "1")

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.NotContains(t, body, "id: 1\n")
	assert.Contains(t, body, "id: 2\nevent: "+model.ActionMemberAdd)
}

func TestActivityStreamLogsReplayFailure(t *testing.T) {
	f := newActivityFixture(t)
	f.mr.Close()

	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w := f.stream(ctx, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, logs.String(), fmt.Sprintf("[sse] project %d: replay after 0:", f.project.ID))
}
