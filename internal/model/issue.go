package model

import "time"

type IssueStatus string

const (
	StatusToDo       IssueStatus = "ToDo"
	StatusInProgress IssueStatus = "InProgress"
	StatusDone       IssueStatus = "Done"
	StatusBacklog    IssueStatus = "Backlog"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusDone, StatusBacklog:
		return true
	}
	return false
}

type IssueType string

const (
	TypeBug   IssueType = "Bug"
	TypeStory IssueType = "Story"
	TypeTask  IssueType = "Task"
	TypeEpic  IssueType = "Epic"
)

func (t IssueType) Valid() bool {
	switch t {
	case TypeBug, TypeStory, TypeTask, TypeEpic:
		return true
	}
	return false
}

type Issue struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ProjectID   uint        `gorm:"not null;index:idx_project_id" json:"project_id"`
	Title       string      `gorm:"type:varchar(256);not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	AssigneeID  *uint       `gorm:"index:idx_assignee_id" json:"assignee_id"`
	ReporterID  *uint       `json:"reporter_id"`
	Status      IssueStatus `gorm:"type:varchar(16);not null;default:ToDo" json:"status"`
	IssueType   IssueType   `gorm:"type:varchar(16);not null;default:Task" json:"issue_type"`
	Deadline    *time.Time  `gorm:"index:idx_deadline_email,priority:1" json:"deadline"`
	// EmailSent only ever moves from false to true, once the deadline
	// notification went out.
	EmailSent   bool        `gorm:"not null;default:false;index:idx_deadline_email,priority:2" json:"email_sent"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Issue) TableName() string { return "issues" }
