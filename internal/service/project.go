package service

import (
	"cmp"
	"context"
	"errors"
	"log"
	"regexp"
	"slices"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/access"
	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/store"
)

// maxSaveAttempts bounds how often a mutation is re-applied after losing a
// version race.
const maxSaveAttempts = 3

var projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,15}$`)

// ActivityPublisher receives a copy of every project change for live
// subscribers.
type ActivityPublisher interface {
	Broadcast(ctx context.Context, projectID uint, eventType string, data interface{})
	Forget(ctx context.Context, projectID uint)
}

type ProjectService struct {
	db       *gorm.DB
	store    *store.Store
	activity ActivityPublisher
}

func NewProjectService(db *gorm.DB, st *store.Store) *ProjectService {
	return &ProjectService{db: db, store: st}
}

func (s *ProjectService) SetActivity(p ActivityPublisher) {
	s.activity = p
}

type ProjectPatch struct {
	Name                     *string
	Description              *string
	EmailAlertOnDelayedIssue *bool
}

type ColumnInput struct {
	ID    string
	Title string
	Order *int
}

type ColumnPatch struct {
	Title *string
	Order *int
}

func (s *ProjectService) Create(ctx context.Context, actor *model.User, name, key, description string) (*model.Project, error) {
	name = strings.TrimSpace(name)
	key = strings.ToUpper(strings.TrimSpace(key))
	if name == "" {
		return nil, validation("project name is required")
	}
	if !projectKeyPattern.MatchString(key) {
		return nil, validation("project key must be 2-16 letters or digits, starting with a letter")
	}

	project := model.NewProject(name, key, strings.TrimSpace(description), actor.ID)
	if err := s.store.CreateProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, coded(40901, ErrDuplicateKey, "project key %s already exists", key)
		}
		return nil, err
	}
	s.record(ctx, actor, model.ActionProjectCreate, project.ID, datatypes.JSONMap{"key": key, "name": name})
	return project, nil
}

func (s *ProjectService) Get(ctx context.Context, actor *model.User, id uint) (*model.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, fromStore(err, errProjectMissing)
	}
	if !access.CanView(actor, project) {
		return nil, coded(40303, ErrPermissionDenied, "not a member of project %d", id)
	}
	return project, nil
}

// List returns the projects actor belongs to, or every project for a
// superadmin, most recently updated first.
func (s *ProjectService) List(ctx context.Context, actor *model.User) ([]model.Project, error) {
	var projects []model.Project
	if err := s.db.WithContext(ctx).Order("updated_at desc").Order("id desc").Find(&projects).Error; err != nil {
		return nil, err
	}
	if actor.IsSuperadmin() {
		return projects, nil
	}
	visible := projects[:0]
	for _, p := range projects {
		if access.IsMember(&p, actor.ID) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func (s *ProjectService) Update(ctx context.Context, actor *model.User, id uint, patch ProjectPatch) (*model.Project, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, validation("project name cannot be empty")
	}

	project, err := s.mutate(ctx, actor, id, access.Request{Op: access.OpUpdateProject}, func(p *model.Project) error {
		if patch.Name != nil {
			p.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.EmailAlertOnDelayedIssue != nil {
			p.EmailAlertOnDelayedIssue = *patch.EmailAlertOnDelayedIssue
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	detail := datatypes.JSONMap{}
	if patch.Name != nil {
		detail["name"] = project.Name
	}
	if patch.EmailAlertOnDelayedIssue != nil {
		detail["email_alert_on_delayed_issue"] = project.EmailAlertOnDelayedIssue
	}
	s.record(ctx, actor, model.ActionProjectUpdate, id, detail)
	return project, nil
}

func (s *ProjectService) AddMember(ctx context.Context, actor *model.User, id, userID uint, role model.ProjectRole) (*model.Project, error) {
	if userID == 0 {
		return nil, validation("user_id is required")
	}
	if role == "" {
		role = model.ProjectDeveloper
	}
	if !role.Valid() {
		return nil, validation("invalid project role %q", role)
	}

	req := access.Request{Op: access.OpAddMember, MemberUserID: userID}
	project, err := s.mutate(ctx, actor, id, req, func(p *model.Project) error {
		if _, err := s.store.GetUser(ctx, userID); err != nil {
			return fromStore(err, errUserMissing)
		}
		p.Members = append(p.Members, model.Member{UserID: userID, Role: role})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, model.ActionMemberAdd, id, datatypes.JSONMap{"user_id": userID, "role": string(role)})
	return project, nil
}

func (s *ProjectService) RemoveMember(ctx context.Context, actor *model.User, id, userID uint) (*model.Project, error) {
	req := access.Request{Op: access.OpRemoveMember, MemberUserID: userID}
	project, err := s.mutate(ctx, actor, id, req, func(p *model.Project) error {
		p.Members = slices.DeleteFunc(p.Members, func(m model.Member) bool { return m.UserID == userID })
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, model.ActionMemberRemove, id, datatypes.JSONMap{"user_id": userID})
	return project, nil
}

func (s *ProjectService) AddColumn(ctx context.Context, actor *model.User, id uint, in ColumnInput) (*model.Project, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	if in.ID == "" || in.Title == "" {
		return nil, validation("column id and title are required")
	}
	if in.Order == nil {
		return nil, validation("column order is required")
	}

	project, err := s.mutate(ctx, actor, id, access.Request{Op: access.OpManageColumns}, func(p *model.Project) error {
		if _, _, ok := p.Column(in.ID); ok {
			return coded(40902, ErrDuplicateKey, "column %s already exists", in.ID)
		}
		p.Columns = append(p.Columns, model.Column{ID: in.ID, Title: in.Title, Order: *in.Order})
		sortColumns(p.Columns)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, model.ActionColumnAdd, id, datatypes.JSONMap{"column_id": in.ID})
	return project, nil
}

func (s *ProjectService) UpdateColumn(ctx context.Context, actor *model.User, id uint, columnID string, patch ColumnPatch) (*model.Project, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, validation("column title cannot be empty")
	}

	project, err := s.mutate(ctx, actor, id, access.Request{Op: access.OpManageColumns}, func(p *model.Project) error {
		_, idx, ok := p.Column(columnID)
		if !ok {
			return denied(access.ErrColumnNotFound)
		}
		if patch.Title != nil {
			p.Columns[idx].Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Order != nil {
			p.Columns[idx].Order = *patch.Order
		}
		sortColumns(p.Columns)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, model.ActionColumnUpdate, id, datatypes.JSONMap{"column_id": columnID})
	return project, nil
}

func (s *ProjectService) DeleteColumn(ctx context.Context, actor *model.User, id uint, columnID string) (*model.Project, error) {
	req := access.Request{Op: access.OpDeleteColumn, ColumnID: columnID}
	project, err := s.mutate(ctx, actor, id, req, func(p *model.Project) error {
		p.Columns = slices.DeleteFunc(p.Columns, func(c model.Column) bool { return c.ID == columnID })
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, model.ActionColumnDelete, id, datatypes.JSONMap{"column_id": columnID})
	return project, nil
}

// Delete removes the project and every issue in it. Only a global
// superadmin may do this.
func (s *ProjectService) Delete(ctx context.Context, actor *model.User, id uint) error {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return fromStore(err, errProjectMissing)
	}
	if err := access.Authorize(actor, project, access.Request{Op: access.OpDeleteProject}); err != nil {
		return denied(err)
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return fromStore(err, errProjectMissing)
	}
	log.Printf("[project] %d (%s) deleted by user %d", id, project.Key, actor.ID)
	s.record(ctx, actor, model.ActionProjectDelete, id, datatypes.JSONMap{"key": project.Key})
	if s.activity != nil {
		s.activity.Forget(ctx, id)
	}
	return nil
}

// mutate loads the project, authorizes req against that snapshot, applies
// fn and saves with a version check. A lost race reloads and starts over,
// so the decision is always made against the state being written.
func (s *ProjectService) mutate(ctx context.Context, actor *model.User, id uint, req access.Request, fn func(*model.Project) error) (*model.Project, error) {
	for attempt := 1; ; attempt++ {
		project, err := s.store.GetProject(ctx, id)
		if err != nil {
			return nil, fromStore(err, errProjectMissing)
		}
		if err := access.Authorize(actor, project, req); err != nil {
			return nil, denied(err)
		}
		if err := fn(project); err != nil {
			return nil, err
		}

		err = s.store.SaveProject(ctx, project)
		if err == nil {
			return project, nil
		}
		if errors.Is(err, store.ErrVersionConflict) && attempt < maxSaveAttempts {
			log.Printf("[project] %d: %s lost a version race, retrying (%d/%d)", id, req.Op, attempt, maxSaveAttempts)
			continue
		}
		return nil, fromStore(err, errProjectMissing)
	}
}

func (s *ProjectService) record(ctx context.Context, actor *model.User, action string, projectID uint, detail datatypes.JSONMap) {
	entry := &model.OperationLog{
		UserID:       actor.ID,
		Action:       action,
		ResourceType: "project",
		ResourceID:   projectID,
		Detail:       detail,
	}
	if err := s.store.RecordOperation(ctx, entry); err != nil {
		log.Printf("[project] audit %s on %d: %v", action, projectID, err)
	}
	if s.activity != nil {
		s.activity.Broadcast(ctx, projectID, action, map[string]interface{}{"user_id": actor.ID, "detail": detail})
	}
}

func sortColumns(cols model.Columns) {
	slices.SortStableFunc(cols, func(a, b model.Column) int { return cmp.Compare(a.Order, b.Order) })
}
