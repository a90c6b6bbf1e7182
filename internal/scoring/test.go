package scoring

import (
	"strings"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
)

// DefaultQuestionScore is the weight of a question authored without one.
const DefaultQuestionScore = 5.0

// Question is a validated multiple-choice question.
type Question struct {
	Text          string
	Options       []string
	CorrectAnswer string
	Score         float64
	CreatedByAI   bool
}

// Test is the part of a test definition the scorer needs. Questions are
// matched to answers by position.
type Test struct {
	Title      string
	Questions  []Question
	TotalScore float64
}

// QuestionInput is an unvalidated question as authored or generated.
type QuestionInput struct {
	Text          string
	Options       []string
	CorrectAnswer string
	Score         *float64
	CreatedByAI   bool
}

// NewQuestion validates input and applies the default weight.
func NewQuestion(in QuestionInput) (Question, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Question{}, apperrors.Validation("question text is required")
	}

	if len(in.Options) < 2 {
		return Question{}, apperrors.Validation("question %q needs at least two options", text)
	}
	options := make([]string, 0, len(in.Options))
	for _, option := range in.Options {
		option = strings.TrimSpace(option)
		if option == "" {
			return Question{}, apperrors.Validation("question %q has an empty option", text)
		}
		options = append(options, option)
	}

	if strings.TrimSpace(in.CorrectAnswer) == "" {
		return Question{}, apperrors.Validation("question %q has no correct answer", text)
	}
	// The stored answer is the option as listed so exact matching can hit it.
	correct, ok := matchOption(options, in.CorrectAnswer)
	if !ok {
		return Question{}, apperrors.Validation("correct answer of question %q is not one of its options", text)
	}

	score := DefaultQuestionScore
	if in.Score != nil {
		score = *in.Score
	}
	if score <= 0 {
		return Question{}, apperrors.Validation("question %q must have a positive score", text)
	}

	return Question{
		Text:          text,
		Options:       options,
		CorrectAnswer: correct,
		Score:         score,
		CreatedByAI:   in.CreatedByAI,
	}, nil
}

// NewTest validates a test definition. The total score is the sum of question
// weights unless totalOverride is given, in which case it may not be lower
// than that sum.
func NewTest(title string, questions []Question, totalOverride *float64) (Test, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Test{}, apperrors.Validation("test title is required")
	}
	if len(questions) == 0 {
		return Test{}, apperrors.Validation("test %q has no questions", title)
	}

	sum := SumWeights(questions)
	total := sum
	if totalOverride != nil {
		if *totalOverride < sum {
			return Test{}, apperrors.Validation("total score %.2f is lower than the sum of question scores %.2f", *totalOverride, sum)
		}
		total = *totalOverride
	}

	return Test{Title: title, Questions: questions, TotalScore: total}, nil
}

// SumWeights returns the sum of question weights.
func SumWeights(questions []Question) float64 {
	var sum float64
	for _, q := range questions {
		sum += q.Score
	}
	return sum
}

func matchOption(options []string, answer string) (string, bool) {
	needle := Normalize(answer)
	for _, option := range options {
		if Normalize(option) == needle {
			return option, true
		}
	}
	return "", false
}
