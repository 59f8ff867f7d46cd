package model

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	FirstName      string         `gorm:"type:varchar(64)" json:"first_name"`
	LastName       string         `gorm:"type:varchar(64)" json:"last_name"`
	Username       string         `gorm:"type:varchar(64);uniqueIndex:idx_username;not null" json:"username"`
	Email          string         `gorm:"type:varchar(128);uniqueIndex:idx_email;not null" json:"email"`
	PasswordHash   string         `gorm:"type:varchar(255);not null" json:"-"`
	Role           GlobalRole     `gorm:"type:varchar(32);not null;default:project-developer;index:idx_role" json:"role"`
	ResetTokenHash string         `gorm:"type:varchar(255)" json:"-"`
	ResetTokenExp  *time.Time     `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

func (u *User) IsSuperadmin() bool {
	return u != nil && u.Role == GlobalSuperadmin
}

type UserBrief struct {
	ID        uint       `json:"id"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Role      GlobalRole `json:"role"`
}

func (u *User) Brief() UserBrief {
	return UserBrief{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
	}
}
