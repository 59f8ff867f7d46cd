package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/access"
	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/store"
)

type IssueService struct {
	db       *gorm.DB
	store    *store.Store
	activity ActivityPublisher
}

func NewIssueService(db *gorm.DB, st *store.Store) *IssueService {
	return &IssueService{db: db, store: st}
}

func (s *IssueService) SetActivity(p ActivityPublisher) {
	s.activity = p
}

func (s *IssueService) publish(ctx context.Context, action string, issue *model.Issue) {
	if s.activity != nil {
		s.activity.Broadcast(ctx, issue.ProjectID, action, issue)
	}
}

type IssueInput struct {
	ProjectID   uint
	Title       string
	Description string
	AssigneeID  *uint
	Status      model.IssueStatus
	IssueType   model.IssueType
	Deadline    *time.Time
}

// IssuePatch holds the client-writable fields of an issue. The
// notification flag is deliberately absent.
type IssuePatch struct {
	Title       *string
	Description *string
	AssigneeID  *uint
	Status      *model.IssueStatus
	IssueType   *model.IssueType
	Deadline    *time.Time
	// ClearDeadline removes the deadline; it wins over Deadline.
	ClearDeadline bool
}

type IssueFilter struct {
	Status     model.IssueStatus
	AssigneeID *uint
}

func (s *IssueService) Create(ctx context.Context, actor *model.User, in IssueInput) (*model.Issue, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.ProjectID == 0 {
		return nil, validation("project_id is required")
	}
	if in.Title == "" {
		return nil, validation("title is required")
	}
	if in.Status == "" {
		in.Status = model.StatusToDo
	}
	if in.IssueType == "" {
		in.IssueType = model.TypeTask
	}
	if !in.Status.Valid() {
		return nil, validation("invalid status %q", in.Status)
	}
	if !in.IssueType.Valid() {
		return nil, validation("invalid issue type %q", in.IssueType)
	}

	project, err := s.viewable(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, err
	}
	assignee := actor.ID
	if in.AssigneeID != nil {
		if err := s.checkAssignee(ctx, project, *in.AssigneeID); err != nil {
			return nil, err
		}
		assignee = *in.AssigneeID
	}

	reporter := actor.ID
	issue := &model.Issue{
		ProjectID:   project.ID,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  &assignee,
		ReporterID:  &reporter,
		Status:      in.Status,
		IssueType:   in.IssueType,
		Deadline:    utc(in.Deadline),
	}
	if err := s.db.WithContext(ctx).Create(issue).Error; err != nil {
		return nil, err
	}
	s.publish(ctx, model.ActionIssueCreate, issue)
	return issue, nil
}

// Update applies patch. Moving a deadline never re-arms the overdue
// notification: once sent, it stays sent.
func (s *IssueService) Update(ctx context.Context, actor *model.User, id uint, patch IssuePatch) (*model.Issue, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, fromStore(err, errIssueMissing)
	}
	project, err := s.viewable(ctx, actor, issue.ProjectID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, validation("title cannot be empty")
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.AssigneeID != nil {
		if err := s.checkAssignee(ctx, project, *patch.AssigneeID); err != nil {
			return nil, err
		}
		updates["assignee_id"] = *patch.AssigneeID
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, validation("invalid status %q", *patch.Status)
		}
		updates["status"] = *patch.Status
	}
	if patch.IssueType != nil {
		if !patch.IssueType.Valid() {
			return nil, validation("invalid issue type %q", *patch.IssueType)
		}
		updates["issue_type"] = *patch.IssueType
	}
	switch {
	case patch.ClearDeadline:
		updates["deadline"] = nil
	case patch.Deadline != nil:
		updates["deadline"] = *utc(patch.Deadline)
	}
	if len(updates) == 0 {
		return issue, nil
	}

	if err := s.db.WithContext(ctx).Model(&model.Issue{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	updated, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, fromStore(err, errIssueMissing)
	}
	s.publish(ctx, model.ActionIssueUpdate, updated)
	return updated, nil
}

func (s *IssueService) Get(ctx context.Context, actor *model.User, id uint) (*model.Issue, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, fromStore(err, errIssueMissing)
	}
	if _, err := s.viewable(ctx, actor, issue.ProjectID); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *IssueService) ListByProject(ctx context.Context, actor *model.User, projectID uint, filter IssueFilter) ([]model.Issue, error) {
	if _, err := s.viewable(ctx, actor, projectID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, validation("invalid status %q", filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *filter.AssigneeID)
	}

	var issues []model.Issue
	if err := query.Order("created_at desc").Order("id desc").Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *IssueService) viewable(ctx context.Context, actor *model.User, projectID uint) (*model.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fromStore(err, errProjectMissing)
	}
	if !access.CanView(actor, project) {
		return nil, coded(40304, ErrPermissionDenied, "not a member of project %d", projectID)
	}
	return project, nil
}

// checkAssignee requires the assignee to be an existing project member.
func (s *IssueService) checkAssignee(ctx context.Context, project *model.Project, userID uint) error {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errUserMissing
		}
		return err
	}
	if !access.IsMember(project, userID) {
		return validation("assignee %d is not a member of project %d", userID, project.ID)
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
