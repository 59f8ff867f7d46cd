package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/scheduler"
)

// ScanController is the part of the scheduler the HTTP layer sees.
type ScanController interface {
	RunOnce(ctx context.Context) (scheduler.Report, error)
	Status() map[string]interface{}
}

type HealthHandler struct {
	db    *gorm.DB
	rdb   *redis.Client
	scans ScanController
}

// NewHealthHandler takes optional redis and scheduler dependencies; nil
// ones are left out of the report.
func NewHealthHandler(db *gorm.DB, rdb *redis.Client, scans ScanController) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, scans: scans}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if sqlDB, err := h.db.DB(); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}
	if h.scans != nil {
		checks["deadline_scan"] = h.scans.Status()
	}

	code := 0
	message := "success"
	if status != http.StatusOK {
		code = 50301
		message = "degraded"
	}
	c.JSON(status, gin.H{"code": code, "message": message, "data": checks})
}

// POST /admin/deadline-scan
func (h *HealthHandler) RunDeadlineScan(c *gin.Context) {
	if h.scans == nil {
		Error(c, http.StatusServiceUnavailable, 50302, "deadline scan is disabled")
		return
	}
	// A client that gives up waiting does not abort the scan halfway.
	report, err := h.scans.RunOnce(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if errors.Is(err, scheduler.ErrLocked) {
			Error(c, http.StatusConflict, 40906, "a deadline scan is already running")
			return
		}
		Fail(c, err)
		return
	}
	failures := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, f.Error())
	}
	Success(c, gin.H{
		"candidates": report.Candidates,
		"notified":   report.Notified,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
		"failures":   failures,
	})
}
