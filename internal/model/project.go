package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type Member struct {
	UserID uint        `json:"user_id"`
	Role   ProjectRole `json:"role"`
}

type Members []Member

func (m Members) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *Members) Scan(value interface{}) error {
	return scanJSON(value, m)
}

type Column struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Order     int    `json:"order"`
	IsDefault bool   `json:"is_default"`
}

type Columns []Column

func (c Columns) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	return string(b), err
}

func (c *Columns) Scan(value interface{}) error {
	return scanJSON(value, c)
}

func scanJSON(value interface{}, dst interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dst)
}

// DefaultColumns is the board every project starts with. These columns can
// be renamed and reordered but never deleted.
func DefaultColumns() Columns {
	return Columns{
		{ID: "todo", Title: "To Do", Order: 1, IsDefault: true},
		{ID: "in-progress", Title: "In Progress", Order: 2, IsDefault: true},
		{ID: "done", Title: "Done", Order: 3, IsDefault: true},
	}
}

type Project struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	Name                     string    `gorm:"type:varchar(128);not null" json:"name"`
	Key                      string    `gorm:"type:varchar(32);uniqueIndex:idx_project_key;not null" json:"key"`
	Description              string    `gorm:"type:text" json:"description"`
	OwnerID                  uint      `gorm:"not null;index:idx_owner_id" json:"owner_id"`
	Members                  Members   `gorm:"type:json" json:"members"`
	Columns                  Columns   `gorm:"type:json" json:"columns"`
	EmailAlertOnDelayedIssue bool      `gorm:"not null" json:"email_alert_on_delayed_issue"`
	Version                  int       `gorm:"not null;default:1" json:"version"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

// NewProject builds a project whose owner is already a project-owner member
// and whose board holds the default columns.
func NewProject(name, key, description string, ownerID uint) *Project {
	return &Project{
		Name:                     name,
		Key:                      key,
		Description:              description,
		OwnerID:                  ownerID,
		Members:                  Members{{UserID: ownerID, Role: ProjectOwner}},
		Columns:                  DefaultColumns(),
		EmailAlertOnDelayedIssue: true,
		Version:                  1,
	}
}

func (p *Project) Member(userID uint) (Member, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

func (p *Project) Column(id string) (Column, int, bool) {
	for i, c := range p.Columns {
		if c.ID == id {
			return c, i, true
		}
	}
	return Column{}, -1, false
}
