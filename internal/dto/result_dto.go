package dto

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
)

// SubmitTestRequest carries a student's answer sheet.
type SubmitTestRequest struct {
	Answers   []scoring.RawAnswer `json:"answers" validate:"required"`
	TimeTaken int                 `json:"time_taken" validate:"min=0"`
}

// SubmitTestResponse summarises a stored submission.
type SubmitTestResponse struct {
	ResultID       uint      `json:"result_id"`
	TestID         uint      `json:"test_id"`
	Score          int       `json:"score"`
	TotalScore     float64   `json:"total_score"`
	Percentage     int       `json:"percentage"`
	Passed         bool      `json:"passed"`
	CorrectCount   int       `json:"correct_count"`
	IncorrectCount int       `json:"incorrect_count"`
	TimeTaken      int       `json:"time_taken"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// OutcomeResponse is one graded answer.
type OutcomeResponse struct {
	Question  string  `json:"question"`
	Selected  string  `json:"selected"`
	Correct   string  `json:"correct,omitempty"`
	IsCorrect bool    `json:"is_correct"`
	Score     float64 `json:"score"`
}

// ResultResponse serializes a stored result.
type ResultResponse struct {
	ID          uint              `json:"id"`
	UserID      uint              `json:"user_id"`
	StudentName string            `json:"student_name,omitempty"`
	GroupCode   string            `json:"group_code,omitempty"`
	TestID      uint              `json:"test_id"`
	TestTitle   string            `json:"test_title,omitempty"`
	Score       int               `json:"score"`
	TotalScore  float64           `json:"total_score"`
	Percentage  int               `json:"percentage"`
	Passed      bool              `json:"passed"`
	TimeTaken   int               `json:"time_taken"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Outcomes    []OutcomeResponse `json:"outcomes,omitempty"`
}

// ResultListRequest filters result listings.
type ResultListRequest struct {
	Page     int
	PageSize int
	TestID   uint
	UserID   uint
}

// ResultListResponse wraps a paginated result listing.
type ResultListResponse struct {
	Items      []ResultResponse `json:"items"`
	Pagination PaginationMeta   `json:"pagination"`
}

// NewResultResponse converts a result. Correct answers are kept only when
// revealAnswers is set.
func NewResultResponse(result models.Result, withOutcomes, revealAnswers bool) ResultResponse {
	response := ResultResponse{
		ID:          result.ID,
		UserID:      result.UserID,
		TestID:      result.TestID,
		Score:       result.Score,
		TotalScore:  result.TotalScore,
		Percentage:  result.Percentage,
		Passed:      result.Passed,
		TimeTaken:   result.TimeTaken,
		SubmittedAt: result.SubmittedAt,
	}
	if result.User != nil {
		response.StudentName = result.User.FullName()
		response.GroupCode = result.User.GroupCode
	}
	if result.Test != nil {
		response.TestTitle = result.Test.Title
	}
	if !withOutcomes {
		return response
	}

	outcomes := result.OutcomeList()
	response.Outcomes = make([]OutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		item := OutcomeResponse{
			Question:  o.Question,
			Selected:  o.Selected,
			IsCorrect: o.IsCorrect,
			Score:     o.Score,
		}
		if revealAnswers {
			item.Correct = o.Correct
		}
		response.Outcomes = append(response.Outcomes, item)
	}
	return response
}

// EligibilityResponse reports whether a student may take a test.
type EligibilityResponse struct {
	TestID              uint `json:"test_id"`
	IsTaken             bool `json:"is_taken"`
	HasRetakePermission bool `json:"has_retake_permission"`
}

// AttemptResponse reports a recorded attempt start.
type AttemptResponse struct {
	TestID    uint      `json:"test_id"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
}
