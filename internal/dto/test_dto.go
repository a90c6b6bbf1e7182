package dto

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// QuestionRequest is an authored question.
type QuestionRequest struct {
	Text          string   `json:"text" validate:"required"`
	Options       []string `json:"options" validate:"required,min=2,dive,required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Score         *float64 `json:"score" validate:"omitempty,gt=0"`
	CreatedByAI   bool     `json:"created_by_ai"`
}

// TestUpsertRequest creates or replaces a test.
type TestUpsertRequest struct {
	Title       string            `json:"title" validate:"required,max=255"`
	CourseName  string            `json:"course_name" validate:"omitempty,max=255"`
	Description string            `json:"description"`
	Questions   []QuestionRequest `json:"questions" validate:"required,min=1,dive"`
	TotalScore  *float64          `json:"total_score" validate:"omitempty,gt=0"`
	TimeLimit   int               `json:"time_limit" validate:"omitempty,min=1,max=1440"`
	GroupCodes  []string          `json:"group_codes" validate:"required,min=1,dive,required"`
	StartTime   *time.Time        `json:"start_time"`
	EndTime     *time.Time        `json:"end_time"`
}

// TestGroupsRequest replaces the groups of a test.
type TestGroupsRequest struct {
	GroupCodes []string `json:"group_codes" validate:"required,min=1,dive,required"`
}

// TestListRequest filters admin test listings.
type TestListRequest struct {
	Page      int
	PageSize  int
	GroupCode string
}

// QuestionResponse serializes a question. CorrectAnswer is empty when the
// viewer may not see it.
type QuestionResponse struct {
	ID            uint     `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Score         float64  `json:"score"`
	CreatedByAI   bool     `json:"created_by_ai"`
}

// TestResponse serializes a test definition.
type TestResponse struct {
	ID            uint               `json:"id"`
	Title         string             `json:"title"`
	CourseName    string             `json:"course_name"`
	Description   string             `json:"description"`
	TotalScore    float64            `json:"total_score"`
	TimeLimit     int                `json:"time_limit"`
	QuestionCount int                `json:"question_count"`
	GroupCodes    []string           `json:"group_codes"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	CreatedBy     uint               `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
	Questions     []QuestionResponse `json:"questions,omitempty"`
}

// TestListResponse wraps a paginated test listing.
type TestListResponse struct {
	Items      []TestResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// StudentTestResponse is a test listed for a student with their eligibility.
type StudentTestResponse struct {
	TestResponse
	IsTaken             bool `json:"is_taken"`
	HasRetakePermission bool `json:"has_retake_permission"`
}

// NewTestResponse converts a test model. Questions are included when
// withQuestions is set, correct answers only when withAnswers is set.
func NewTestResponse(test models.Test, withQuestions, withAnswers bool) TestResponse {
	response := TestResponse{
		ID:            test.ID,
		Title:         test.Title,
		CourseName:    test.CourseName,
		Description:   test.Description,
		TotalScore:    test.TotalScore,
		TimeLimit:     test.TimeLimit,
		QuestionCount: len(test.Questions),
		GroupCodes:    test.GroupCodes(),
		StartTime:     test.StartTime,
		EndTime:       test.EndTime,
		CreatedBy:     test.CreatedBy,
		CreatedAt:     test.CreatedAt,
	}
	if !withQuestions {
		return response
	}

	response.Questions = make([]QuestionResponse, 0, len(test.Questions))
	for _, q := range test.Questions {
		item := QuestionResponse{
			ID:          q.ID,
			Text:        q.Text,
			Options:     q.OptionList(),
			Score:       q.Score,
			CreatedByAI: q.CreatedByAI,
		}
		if withAnswers {
			item.CorrectAnswer = q.CorrectAnswer
		}
		response.Questions = append(response.Questions, item)
	}
	return response
}

// GenerateTestRequest asks the AI generator for a draft test.
type GenerateTestRequest struct {
	Topic         string   `json:"topic" form:"topic" validate:"required_without=Context,max=500"`
	Context       string   `json:"context" form:"context"`
	CourseName    string   `json:"course_name" form:"course_name" validate:"omitempty,max=255"`
	GradeLevel    string   `json:"grade_level" form:"grade_level" validate:"omitempty,max=64"`
	QuestionCount int      `json:"question_count" form:"question_count" validate:"omitempty,min=1,max=50"`
	Difficulty    string   `json:"difficulty" form:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Language      string   `json:"language" form:"language" validate:"omitempty,max=32"`
	ScorePerItem  *float64 `json:"score_per_item" form:"score_per_item" validate:"omitempty,gt=0"`
}

// GeneratedTestResponse is an unsaved AI-generated draft.
type GeneratedTestResponse struct {
	Title     string            `json:"title"`
	Questions []QuestionRequest `json:"questions"`
	Provider  string            `json:"provider"`
	Model     string            `json:"model"`
}
