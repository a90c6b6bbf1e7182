package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity kinds written by the exam workflow.
const (
	ActivityTestStarted   = "test_started"
	ActivityTestCompleted = "test_completed"
	ActivityAllowRetake   = "allow_retake"
	ActivityClearRetake   = "clear_retake"
	ActivityTestCreated   = "test_created"
	ActivityTestDeleted   = "test_deleted"
	ActivityUserDeleted   = "user_deleted"
)

// ActivityLog is an append-only record of something a student or admin did.
type ActivityLog struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	ActorID   uint              `gorm:"index;not null" json:"actor_id"`
	ActorName string            `gorm:"size:255" json:"actor_name"`
	Action    string            `gorm:"size:64;index;not null" json:"action"`
	TestID    *uint             `json:"test_id,omitempty"`
	TestTitle string            `gorm:"size:255" json:"test_title,omitempty"`
	Score     *int              `json:"score,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

// TableName keeps the activity table name stable.
func (ActivityLog) TableName() string {
	return "activities"
}
