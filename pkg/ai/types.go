package ai

import (
	"context"
	"errors"
)

// ErrMalformedResponse marks provider output that is not a usable question set.
var ErrMalformedResponse = errors.New("malformed ai response")

// GenerationInput describes the questions an administrator asked for.
type GenerationInput struct {
	Topic      string
	Context    string
	CourseName string
	GradeLevel string
	Difficulty string
	Language   string
	Count      int
}

// GeneratedQuestion is a multiple-choice question as returned by the provider.
type GeneratedQuestion struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Score         *float64 `json:"score,omitempty"`
}

// GenerationResult is a parsed provider response.
type GenerationResult struct {
	Title     string              `json:"title,omitempty"`
	Questions []GeneratedQuestion `json:"questions"`
	Model     string              `json:"-"`
}

// QuestionGenerator drafts multiple-choice questions.
type QuestionGenerator interface {
	Generate(ctx context.Context, input GenerationInput) (GenerationResult, error)
}
