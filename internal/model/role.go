package model

// GlobalRole is attached to a user account and is independent of any project.
// Only GlobalSuperadmin carries authority outside project membership.
type GlobalRole string

const (
	GlobalSuperadmin  GlobalRole = "superadmin"
	GlobalOwner       GlobalRole = "project-owner"
	GlobalMaintainer  GlobalRole = "project-maintainer"
	GlobalDeveloper   GlobalRole = "project-developer"
	DefaultGlobalRole            = GlobalDeveloper
)

func (r GlobalRole) Valid() bool {
	switch r {
	case GlobalSuperadmin, GlobalOwner, GlobalMaintainer, GlobalDeveloper:
		return true
	}
	return false
}

// ProjectRole is attached to a single membership entry and only means
// something inside that project.
type ProjectRole string

const (
	ProjectSuperadmin ProjectRole = "superadmin"
	ProjectOwner      ProjectRole = "project-owner"
	ProjectMaintainer ProjectRole = "project-maintainer"
	ProjectDeveloper  ProjectRole = "project-developer"
)

func (r ProjectRole) Valid() bool {
	switch r {
	case ProjectSuperadmin, ProjectOwner, ProjectMaintainer, ProjectDeveloper:
		return true
	}
	return false
}

// CanManage reports whether the role may change project structure.
func (r ProjectRole) CanManage() bool {
	return r == ProjectSuperadmin || r == ProjectOwner || r == ProjectMaintainer
}

// ReceivesDeadlineAlerts reports whether members with this role are mailed
// when an issue of the project runs past its deadline.
func (r ProjectRole) ReceivesDeadlineAlerts() bool {
	return r == ProjectOwner || r == ProjectMaintainer
}
