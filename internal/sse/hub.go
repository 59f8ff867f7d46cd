// Package sse fans project activity out to Server-Sent Event subscribers.
// Every event is also appended to a per-project Redis list so a client that
// reconnects with Last-Event-ID can replay what it missed.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultHistoryTTL = 7 * 24 * time.Hour

type Event struct {
	ID   int64       `json:"id"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type subscriber struct {
	ch chan Event
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint][]*subscriber // projectID -> subscribers
	rdb         *redis.Client
	historyTTL  time.Duration
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		subscribers: make(map[uint][]*subscriber),
		rdb:         rdb,
		historyTTL:  defaultHistoryTTL,
	}
}

func historyKey(projectID uint) string {
	return fmt.Sprintf("project:activity:%d", projectID)
}

func (h *Hub) Subscribe(projectID uint) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, 256)}
	h.subscribers[projectID] = append(h.subscribers[projectID], sub)

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[projectID]
		for i, s := range subs {
			if s == sub {
				h.subscribers[projectID] = append(subs[:i], subs[i+1:]...)
				close(sub.ch)
				break
			}
		}
		if len(h.subscribers[projectID]) == 0 {
			delete(h.subscribers, projectID)
		}
	}
	return sub.ch, unsub
}

// Broadcast records the event and hands it to live subscribers. Slow
// subscribers miss events rather than block the caller.
func (h *Hub) Broadcast(ctx context.Context, projectID uint, eventType string, data interface{}) {
	event := Event{Type: eventType, Data: data}
	key := historyKey(projectID)

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[sse] project %d: encode %s: %v", projectID, eventType, err)
		return
	}
	length, err := h.rdb.RPush(ctx, key, payload).Result()
	if err != nil {
		// Live subscribers still get the event, but with ID 0 it carries no
		// id line and cannot be replayed after a reconnect.
		log.Printf("[sse] project %d: store %s: %v", projectID, eventType, err)
	} else {
		event.ID = length
		h.rdb.Expire(ctx, key, h.historyTTL)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[projectID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// ReplayFrom returns the events stored after lastID. IDs start at 1.
func (h *Hub) ReplayFrom(ctx context.Context, projectID uint, lastID int64) ([]Event, error) {
	items, err := h.rdb.LRange(ctx, historyKey(projectID), lastID, -1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(items))
	for i, item := range items {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		ev.ID = lastID + int64(i) + 1
		events = append(events, ev)
	}
	return events, nil
}

// Forget drops the stored history, e.g. when the project is deleted.
func (h *Hub) Forget(ctx context.Context, projectID uint) {
	if err := h.rdb.Del(ctx, historyKey(projectID)).Err(); err != nil {
		log.Printf("[sse] project %d: drop history: %v", projectID, err)
	}
}

func ParseLastEventID(header string) int64 {
	if header == "" {
		return 0
	}
	id, _ := strconv.ParseInt(header, 10, 64)
	if id < 0 {
		return 0
	}
	return id
}
