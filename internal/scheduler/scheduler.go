// Package scheduler runs the deadline scan on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const lockKey = "scheduler:deadline-scan"

type Runner interface {
	Run(ctx context.Context) (Report, error)
}

type Options struct {
	// Spec is a five-field cron expression, e.g. "0 9 * * *".
	Spec     string
	Location *time.Location
	// Locker is optional; without it every replica scans.
	Locker  Locker
	LockTTL time.Duration
}

type Scheduler struct {
	runner Runner
	opts   Options
	cron   *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	lastRun time.Time
	last    Report
}

func New(runner Runner, opts Options) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = "0 9 * * *"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner: runner,
		opts:   opts,
		cron:   cron.New(cron.WithLocation(opts.Location)),
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := s.cron.AddFunc(opts.Spec, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule deadline scan %q: %w", opts.Spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	log.Printf("[scheduler] deadline scan scheduled at %q (%s)", s.opts.Spec, s.opts.Location)
	s.cron.Start()
}

// Stop cancels a scan in progress and waits for it to return.
func (s *Scheduler) Stop() {
	log.Println("[scheduler] stopping")
	s.cancel()
	<-s.cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, ErrLocked) {
		log.Printf("[scheduler] deadline scan failed: %v", err)
	}
}

// RunOnce runs a scan now, unless one is already running in this process or,
// with a Locker configured, on another replica.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Report{}, ErrLocked
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.opts.Locker != nil {
		release, err := s.opts.Locker.TryLock(ctx, lockKey, s.opts.LockTTL)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				log.Println("[scheduler] deadline scan running on another instance, skipping")
			}
			return Report{}, err
		}
		defer release()
	}

	start := time.Now()
	report, err := s.runner.Run(ctx)
	log.Printf("[scheduler] deadline scan: %d candidates, %d notified, %d skipped, %d failed in %v",
		report.Candidates, report.Notified, report.Skipped, report.Failed, time.Since(start))

	s.mu.Lock()
	s.lastRun = start
	s.last = report
	s.mu.Unlock()
	return report, err
}

// Status reports the outcome of the most recent scan.
func (s *Scheduler) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running": s.running,
		"spec":    s.opts.Spec,
	}
	if !s.lastRun.IsZero() {
		status["last_run"] = s.lastRun.Format(time.RFC3339)
		status["last_notified"] = s.last.Notified
		status["last_failed"] = s.last.Failed
	}
	return status
}
