// Package access decides who may change a project's structure.
//
// Two role sources take part: the project-scoped role stored on each
// membership entry, and the global role on the user account. A global
// superadmin passes every role check; everybody else needs a managing
// project role. Decisions are pure functions over the supplied snapshot and
// never touch storage.
package access

import (
	"errors"

	"github.com/issuetrack/backend/internal/model"
)

var (
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrDefaultColumn          = errors.New("default columns cannot be deleted")
	ErrColumnNotFound         = errors.New("column not found")
	ErrAlreadyMember          = errors.New("already a member")
	ErrNotMember              = errors.New("not a member")
	ErrOwnerRemoval           = errors.New("project owner cannot be removed")
)

type Operation int

const (
	OpUpdateProject Operation = iota
	OpManageColumns
	OpDeleteColumn
	OpAddMember
	OpRemoveMember
	OpDeleteProject
)

func (o Operation) String() string {
	switch o {
	case OpUpdateProject:
		return "update-project"
	case OpManageColumns:
		return "manage-columns"
	case OpDeleteColumn:
		return "delete-column"
	case OpAddMember:
		return "add-member"
	case OpRemoveMember:
		return "remove-member"
	case OpDeleteProject:
		return "delete-project"
	}
	return "unknown"
}

// Request names the operation and, where the operation has one, its target.
type Request struct {
	Op           Operation
	ColumnID     string
	MemberUserID uint
}

// IsAdminOrMaintainer reports whether userID holds a managing role in the
// project. Only the project-scoped role counts.
func IsAdminOrMaintainer(p *model.Project, userID uint) bool {
	m, ok := p.Member(userID)
	return ok && m.Role.CanManage()
}

func IsMember(p *model.Project, userID uint) bool {
	_, ok := p.Member(userID)
	return ok
}

// CanView reports whether actor may read the project and its issues.
func CanView(actor *model.User, p *model.Project) bool {
	return actor.IsSuperadmin() || IsMember(p, actor.ID)
}

// Authorize returns nil when actor may perform req on p. A non-nil error is
// the deny reason. The role check always runs first; target checks
// (default column, duplicate member, owner removal) run only once it passed.
func Authorize(actor *model.User, p *model.Project, req Request) error {
	if req.Op == OpDeleteProject {
		if actor.IsSuperadmin() {
			return nil
		}
		return ErrInsufficientPermission
	}

	if !actor.IsSuperadmin() && !IsAdminOrMaintainer(p, actor.ID) {
		return ErrInsufficientPermission
	}

	switch req.Op {
	case OpDeleteColumn:
		col, _, ok := p.Column(req.ColumnID)
		if !ok {
			return ErrColumnNotFound
		}
		if col.IsDefault {
			return ErrDefaultColumn
		}
	case OpAddMember:
		if IsMember(p, req.MemberUserID) {
			return ErrAlreadyMember
		}
	case OpRemoveMember:
		if req.MemberUserID == p.OwnerID {
			return ErrOwnerRemoval
		}
		if !IsMember(p, req.MemberUserID) {
			return ErrNotMember
		}
	}
	return nil
}
