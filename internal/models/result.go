package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Outcome is the stored grading of one answer.
type Outcome struct {
	Question  string  `json:"question"`
	Selected  string  `json:"selected"`
	Correct   string  `json:"correct"`
	IsCorrect bool    `json:"isCorrect"`
	Score     float64 `json:"score"`
}

// Result is the immutable score of one user's attempt at one test.
type Result struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;uniqueIndex:idx_results_user_test" json:"user_id"`
	TestID      uint           `gorm:"not null;uniqueIndex:idx_results_user_test;index" json:"test_id"`
	Outcomes    datatypes.JSON `gorm:"type:json" json:"-"`
	Score       int            `gorm:"not null" json:"score"`
	TotalScore  float64        `gorm:"not null" json:"total_score"`
	Percentage  int            `gorm:"not null" json:"percentage"`
	Passed      bool           `json:"passed"`
	TimeTaken   int            `json:"time_taken"`
	SubmittedAt time.Time      `gorm:"index" json:"submitted_at"`
	User        *User          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"user,omitempty"`
	Test        *Test          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test,omitempty"`
}

// SetOutcomes serializes outcomes into the JSON storage column.
func (r *Result) SetOutcomes(outcomes []Outcome) {
	data, err := json.Marshal(outcomes)
	if err != nil {
		r.Outcomes = datatypes.JSON([]byte("[]"))
		return
	}
	r.Outcomes = datatypes.JSON(data)
}

// OutcomeList deserializes the stored outcomes.
func (r Result) OutcomeList() []Outcome {
	if len(r.Outcomes) == 0 {
		return nil
	}

	var outcomes []Outcome
	if err := json.Unmarshal(r.Outcomes, &outcomes); err != nil {
		return nil
	}

	return outcomes
}
