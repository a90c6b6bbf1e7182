package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Test is a timed multiple-choice test assigned to one or more groups.
type Test struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	CourseName  string         `gorm:"size:255" json:"course_name"`
	Description string         `gorm:"type:text" json:"description"`
	TotalScore  float64        `gorm:"not null" json:"total_score"`
	TimeLimit   int            `gorm:"not null;default:30" json:"time_limit"`
	StartTime   time.Time      `gorm:"not null" json:"start_time"`
	EndTime     time.Time      `gorm:"not null" json:"end_time"`
	CreatedBy   uint           `json:"created_by"`
	Questions   []TestQuestion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
	Groups      []TestGroup    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"groups"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// GroupCodes lists the groups the test is assigned to.
func (t Test) GroupCodes() []string {
	codes := make([]string, 0, len(t.Groups))
	for _, g := range t.Groups {
		codes = append(codes, g.GroupCode)
	}
	return codes
}

// Open reports whether now falls inside the validity window.
func (t Test) Open(now time.Time) bool {
	return !now.Before(t.StartTime) && !now.After(t.EndTime)
}

// TestQuestion is one question of a test; Position fixes answer order.
type TestQuestion struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TestID        uint           `gorm:"index;not null" json:"test_id"`
	Position      int            `gorm:"not null" json:"position"`
	Text          string         `gorm:"type:text;not null" json:"text"`
	Options       datatypes.JSON `gorm:"type:json" json:"-"`
	CorrectAnswer string         `gorm:"size:1024;not null" json:"-"`
	Score         float64        `gorm:"not null" json:"score"`
	CreatedByAI   bool           `json:"created_by_ai"`
}

// SetOptions serializes the option list into the JSON storage column.
func (q *TestQuestion) SetOptions(options []string) {
	data, err := json.Marshal(options)
	if err != nil {
		q.Options = datatypes.JSON([]byte("[]"))
		return
	}
	q.Options = datatypes.JSON(data)
}

// OptionList deserializes the stored options.
func (q TestQuestion) OptionList() []string {
	if len(q.Options) == 0 {
		return nil
	}

	var options []string
	if err := json.Unmarshal(q.Options, &options); err != nil {
		return nil
	}

	return options
}

// TestGroup assigns a test to a group code.
type TestGroup struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	TestID    uint   `gorm:"not null;uniqueIndex:idx_test_groups_test_group" json:"test_id"`
	GroupCode string `gorm:"size:64;not null;uniqueIndex:idx_test_groups_test_group;index" json:"group_code"`
}
