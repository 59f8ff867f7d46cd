package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/middleware"
	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/service"
	"github.com/issuetrack/backend/internal/sse"
)

const heartbeatInterval = 30 * time.Second

type ActivityHandler struct {
	projectService *service.ProjectService
	hub            *sse.Hub
}

func NewActivityHandler(projectService *service.ProjectService, hub *sse.Hub) *ActivityHandler {
	return &ActivityHandler{projectService: projectService, hub: hub}
}

// GET /projects/:id/activity
func (h *ActivityHandler) Stream(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.projectService.Get(c.Request.Context(), middleware.GetCurrentUser(c), id); err != nil {
		Fail(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		InternalError(c, "streaming not supported")
		return
	}

	// Subscribe before replaying so nothing published in between is lost.
	ch, unsub := h.hub.Subscribe(id)
	defer unsub()

	ctx := c.Request.Context()
	lastID := sse.ParseLastEventID(c.GetHeader("Last-Event-ID"))
	history, err := h.hub.ReplayFrom(ctx, id, lastID)
	if err != nil {
		log.Printf("[sse] project %d: replay after %d: %v", id, lastID, err)
	}
	for _, ev := range history {
		writeEvent(c, ev)
		lastID = ev.ID
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			if ev.ID != 0 && ev.ID <= lastID {
				continue
			}
			writeEvent(c, ev)
			if ev.ID != 0 {
				lastID = ev.ID
			}
			flusher.Flush()
			if ev.Type == model.ActionProjectDelete {
				return
			}
		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(c *gin.Context, ev sse.Event) {
	data, _ := json.Marshal(ev.Data)
	if ev.ID != 0 {
		fmt.Fprintf(c.Writer, "id: %d\n", ev.ID)
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, string(data))
}
