// Package store is the persistence layer shared by the services and the
// deadline scanner. Projects embed their members and columns as JSON
// documents and are written with an optimistic version check.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/model"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("project was modified concurrently")
	ErrDuplicateKey    = errors.New("duplicate key")
)

const defaultBatchSize = 100

type Store struct {
	db        *gorm.DB
	batchSize int
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, batchSize: defaultBatchSize}
}

// WithBatchSize sets how many overdue issues are fetched per round trip.
func (s *Store) WithBatchSize(n int) *Store {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates every table the service needs.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Project{},
		&model.Issue{},
		&model.OperationLog{},
	)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("loading user %d: %w", id, translate(err))
	}
	return &user, nil
}

func (s *Store) GetProject(ctx context.Context, id uint) (*model.Project, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, fmt.Errorf("loading project %d: %w", id, translate(err))
	}
	return &project, nil
}

func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	if p.Version == 0 {
		p.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("creating project %q: %w", p.Key, translate(err))
	}
	return nil
}

// SaveProject writes p if nobody saved the project since p was loaded.
// On success p.Version is advanced; ErrVersionConflict means the caller
// must reload and re-apply its change.
func (s *Store) SaveProject(ctx context.Context, p *model.Project) error {
	res := s.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"name":                         p.Name,
			"description":                  p.Description,
			"members":                      p.Members,
			"columns":                      p.Columns,
			"email_alert_on_delayed_issue": p.EmailAlertOnDelayedIssue,
			"version":                      p.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("saving project %d: %w", p.ID, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", p.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("saving project %d: %w", p.ID, err)
		}
		if count == 0 {
			return fmt.Errorf("saving project %d: %w", p.ID, ErrNotFound)
		}
		return fmt.Errorf("saving project %d at version %d: %w", p.ID, p.Version, ErrVersionConflict)
	}
	p.Version++
	return nil
}

// DeleteProject removes the project together with all of its issues.
func (s *Store) DeleteProject(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := deleteIssuesByProject(tx, id); err != nil {
			return err
		}
		res := tx.Delete(&model.Project{}, id)
		if res.Error != nil {
			return fmt.Errorf("deleting project %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("deleting project %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *Store) DeleteIssuesByProject(ctx context.Context, projectID uint) (int64, error) {
	return deleteIssuesByProject(s.db.WithContext(ctx), projectID)
}

func deleteIssuesByProject(db *gorm.DB, projectID uint) (int64, error) {
	res := db.Where("project_id = ?", projectID).Delete(&model.Issue{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting issues of project %d: %w", projectID, res.Error)
	}
	return res.RowsAffected, nil
}

// OverdueUnnotified yields issues whose deadline is at or before now and
// whose notification has not gone out yet. Issues are fetched lazily in
// batches ordered by id; every call runs a fresh query.
func (s *Store) OverdueUnnotified(ctx context.Context, now time.Time) iter.Seq2[model.Issue, error] {
	return func(yield func(model.Issue, error) bool) {
		var lastID uint
		for {
			var batch []model.Issue
			err := s.db.WithContext(ctx).
				Where("deadline IS NOT NULL AND deadline <= ? AND email_sent = ? AND id > ?", now, false, lastID).
				Order("id").
				Limit(s.batchSize).
				Find(&batch).Error
			if err != nil {
				yield(model.Issue{}, fmt.Errorf("querying overdue issues: %w", err))
				return
			}
			for _, issue := range batch {
				if !yield(issue, nil) {
					return
				}
			}
			if len(batch) < s.batchSize {
				return
			}
			lastID = batch[len(batch)-1].ID
		}
	}
}

// MarkNotified flips email_sent to true. It never writes false, so a flag
// that is already set stays set; the boolean reports whether this call did
// the flip.
func (s *Store) MarkNotified(ctx context.Context, issueID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Issue{}).
		Where("id = ? AND email_sent = ?", issueID, false).
		Update("email_sent", true)
	if res.Error != nil {
		return false, fmt.Errorf("marking issue %d notified: %w", issueID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetIssue(ctx context.Context, id uint) (*model.Issue, error) {
	var issue model.Issue
	if err := s.db.WithContext(ctx).First(&issue, id).Error; err != nil {
		return nil, fmt.Errorf("loading issue %d: %w", id, translate(err))
	}
	return &issue, nil
}

func (s *Store) RecordOperation(ctx context.Context, entry *model.OperationLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("recording operation %s: %w", entry.Action, err)
	}
	return nil
}
