package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActionProjectCreate = "project.create"
	ActionProjectUpdate = "project.update"
	ActionProjectDelete = "project.delete"
	ActionMemberAdd     = "member.add"
	ActionMemberRemove  = "member.remove"
	ActionColumnAdd     = "column.add"
	ActionColumnUpdate  = "column.update"
	ActionColumnDelete  = "column.delete"
	ActionUserRole      = "user.role"
	ActionIssueCreate   = "issue.create"
	ActionIssueUpdate   = "issue.update"
)

type OperationLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       uint              `gorm:"index:idx_user_id" json:"user_id"`
	Action       string            `gorm:"type:varchar(64);not null" json:"action"`
	ResourceType string            `gorm:"type:varchar(32);not null;index:idx_resource,priority:1" json:"resource_type"`
	ResourceID   uint              `gorm:"index:idx_resource,priority:2" json:"resource_id"`
	Detail       datatypes.JSONMap `gorm:"type:json" json:"detail"`
	CreatedAt    time.Time         `gorm:"index:idx_created_at" json:"created_at"`
}

func (OperationLog) TableName() string { return "operation_logs" }
