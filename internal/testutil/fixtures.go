package testutil

import (
	"testing"

	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/model"
)

// CreateUser inserts a user with the given username and global role. The
// email is derived from the username.
func CreateUser(t *testing.T, db *gorm.DB, username string, role model.GlobalRole) *model.User {
	t.Helper()

	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "not-a-hash",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return user
}

// CreateProject inserts a project owned by owner with the extra members.
func CreateProject(t *testing.T, db *gorm.DB, key string, owner *model.User, members ...model.Member) *model.Project {
	t.Helper()

	project := model.NewProject(key+" project", key, "", owner.ID)
	project.Members = append(project.Members, members...)
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("creating project %s: %v", key, err)
	}
	return project
}
