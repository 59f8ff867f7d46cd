package scheduler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/notify"
	"github.com/issuetrack/backend/internal/store"
)

// flagTimeout bounds the flag update that follows a successful send.
const flagTimeout = 10 * time.Second

type IssueStore interface {
	OverdueUnnotified(ctx context.Context, now time.Time) iter.Seq2[model.Issue, error]
	MarkNotified(ctx context.Context, issueID uint) (bool, error)
}

type ProjectStore interface {
	GetProject(ctx context.Context, id uint) (*model.Project, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
}

// Report summarises one scan. Failures holds one error per issue whose
// notification could not be delivered or recorded.
type Report struct {
	Candidates int
	Notified   int
	Skipped    int
	Failed     int
	Failures   []error
}

type ScannerConfig struct {
	SendTimeout time.Duration
	Workers     int
	// MailDomain is the right-hand side of generated Message-IDs.
	MailDomain string
}

// Scanner mails the owners and maintainers of a project when one of its
// issues passes its deadline, then flags the issue so later scans skip it.
//
// Delivery is at-least-once: the send and the flag update are separate
// steps, so a crash between them repeats the mail on the next scan. Repeats
// reuse the same Message-ID.
type Scanner struct {
	issues   IssueStore
	projects ProjectStore
	users    UserDirectory
	notifier notify.Notifier
	cfg      ScannerConfig
	now      func() time.Time
}

func NewScanner(issues IssueStore, projects ProjectStore, users UserDirectory, notifier notify.Notifier, cfg ScannerConfig) *Scanner {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MailDomain == "" {
		cfg.MailDomain = "localhost"
	}
	return &Scanner{
		issues:   issues,
		projects: projects,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

type outcome int

const (
	outcomeNotified outcome = iota
	outcomeSkipped
	outcomeFailed
)

// Run scans once. The returned error is set only when the candidate query
// itself failed; per-issue failures are reported in Report.Failures.
func (s *Scanner) Run(ctx context.Context) (Report, error) {
	now := s.now().UTC()
	var (
		report Report
		mu     sync.Mutex
	)
	record := func(o outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeNotified:
			report.Notified++
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Failed++
			report.Failures = append(report.Failures, err)
		}
	}

	projects := newProjectCache(s.projects)
	pool := NewPool(s.cfg.Workers)

	var queryErr error
	for issue, err := range s.issues.OverdueUnnotified(ctx, now) {
		if err != nil {
			queryErr = err
			break
		}
		report.Candidates++
		pool.Submit(func() {
			record(s.process(ctx, projects, issue))
		})
	}
	pool.Close()

	if queryErr != nil {
		return report, fmt.Errorf("deadline scan: %w", queryErr)
	}
	return report, nil
}

func (s *Scanner) process(ctx context.Context, projects *projectCache, issue model.Issue) (outcome, error) {
	project, err := projects.get(ctx, issue.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("[scanner] issue %d: project %d is gone, skipping", issue.ID, issue.ProjectID)
			return outcomeSkipped, nil
		}
		err = fmt.Errorf("issue %d: %w", issue.ID, err)
		log.Printf("[scanner] %v", err)
		return outcomeFailed, err
	}
	if !project.EmailAlertOnDelayedIssue {
		return outcomeSkipped, nil
	}

	recipients, err := s.recipients(ctx, project)
	if err != nil {
		err = fmt.Errorf("issue %d: %w", issue.ID, err)
		log.Printf("[scanner] %v", err)
		return outcomeFailed, err
	}

	event := notify.IssueOverdueEvent{
		IssueID:     issue.ID,
		Title:       issue.Title,
		ProjectName: project.Name,
		Recipients:  recipients,
	}
	if issue.Deadline != nil {
		event.Deadline = *issue.Deadline
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	err = s.notifier.Send(sendCtx, event.Message(s.cfg.MailDomain))
	cancel()
	if err != nil {
		err = fmt.Errorf("issue %d: send deadline notification: %w", issue.ID, err)
		log.Printf("[scanner] %v", err)
		return outcomeFailed, err
	}

	// The mail is out, so the flag is written even if the scan was cancelled
	// meanwhile.
	flagCtx, cancelFlag := context.WithTimeout(context.WithoutCancel(ctx), flagTimeout)
	_, err = s.issues.MarkNotified(flagCtx, issue.ID)
	cancelFlag()
	if err != nil {
		// The mail went out; the next scan will send it again.
		err = fmt.Errorf("issue %d: notified but not flagged: %w", issue.ID, err)
		log.Printf("[scanner] %v", err)
		return outcomeFailed, err
	}
	log.Printf("[scanner] issue %d: notified %d recipients", issue.ID, len(recipients))
	return outcomeNotified, nil
}

// recipients resolves the mail addresses of owner and maintainer members.
// Members whose account no longer exists are left out.
func (s *Scanner) recipients(ctx context.Context, project *model.Project) ([]string, error) {
	var emails []string
	for _, m := range project.Members {
		if !m.Role.ReceivesDeadlineAlerts() {
			continue
		}
		user, err := s.users.GetUser(ctx, m.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("[scanner] project %d: member %d has no account, leaving out", project.ID, m.UserID)
				continue
			}
			return nil, fmt.Errorf("resolve member %d: %w", m.UserID, err)
		}
		if user.Email != "" {
			emails = append(emails, user.Email)
		}
	}
	return emails, nil
}

// projectCache loads each project at most once per scan.
type projectCache struct {
	store ProjectStore
	mu    sync.Mutex
	byID  map[uint]*projectEntry
}

type projectEntry struct {
	once    sync.Once
	project *model.Project
	err     error
}

func newProjectCache(s ProjectStore) *projectCache {
	return &projectCache{store: s, byID: make(map[uint]*projectEntry)}
}

func (c *projectCache) get(ctx context.Context, id uint) (*model.Project, error) {
	c.mu.Lock()
	entry, ok := c.byID[id]
	if !ok {
		entry = &projectEntry{}
		c.byID[id] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.project, entry.err = c.store.GetProject(ctx, id)
	})
	return entry.project, entry.err
}
