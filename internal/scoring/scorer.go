// Package scoring turns a submitted answer sheet into a scored result. It has
// no I/O and no hidden state: the same test and answers always produce the
// same Scored value.
package scoring

import (
	"fmt"
	"math"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
)

// DefaultPassThreshold is the percentage a submission needs to pass.
const DefaultPassThreshold = 50

// Policy holds the configurable scoring rules.
type Policy struct {
	PassThreshold int
	Match         MatchMode
}

// DefaultPolicy returns the normalized-match, 50% policy.
func DefaultPolicy() Policy {
	return Policy{PassThreshold: DefaultPassThreshold, Match: MatchNormalized}
}

// Outcome is the graded answer to one question.
type Outcome struct {
	Question  string  `json:"question"`
	Selected  string  `json:"selected"`
	Correct   string  `json:"correct"`
	IsCorrect bool    `json:"isCorrect"`
	Score     float64 `json:"score"`
}

// Scored is the result of scoring one submission.
type Scored struct {
	Outcomes       []Outcome
	RawScore       float64
	Score          int
	TotalScore     float64
	Percentage     int
	Passed         bool
	CorrectCount   int
	IncorrectCount int
	TimeTaken      int
}

// Scorer applies a Policy to submissions.
type Scorer struct {
	policy Policy
}

// NewScorer validates the policy and builds a scorer.
func NewScorer(policy Policy) (*Scorer, error) {
	if policy.PassThreshold < 0 || policy.PassThreshold > 100 {
		return nil, fmt.Errorf("pass threshold must be within 0..100, got %d", policy.PassThreshold)
	}
	mode, err := ParseMatchMode(string(policy.Match))
	if err != nil {
		return nil, err
	}
	policy.Match = mode
	return &Scorer{policy: policy}, nil
}

// Policy returns the active policy.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score grades answers against test. answers must have exactly one entry per
// question; an empty or null entry is scored incorrect.
func (s *Scorer) Score(test Test, answers []RawAnswer, timeTaken int) (Scored, error) {
	if test.TotalScore <= 0 {
		return Scored{}, apperrors.Validation("test %q has no scorable questions", test.Title)
	}
	if len(answers) != len(test.Questions) {
		return Scored{}, apperrors.Validation("expected %d answers, got %d", len(test.Questions), len(answers))
	}
	if timeTaken < 0 {
		return Scored{}, apperrors.Validation("time taken must not be negative")
	}

	scored := Scored{
		Outcomes:   make([]Outcome, 0, len(test.Questions)),
		TotalScore: test.TotalScore,
		TimeTaken:  timeTaken,
	}

	for i, question := range test.Questions {
		selected := answers[i].String()
		isCorrect := s.policy.Match.Equal(selected, question.CorrectAnswer)

		awarded := 0.0
		if isCorrect {
			awarded = question.Score
			scored.RawScore += awarded
			scored.CorrectCount++
		}

		scored.Outcomes = append(scored.Outcomes, Outcome{
			Question:  question.Text,
			Selected:  selected,
			Correct:   question.CorrectAnswer,
			IsCorrect: isCorrect,
			Score:     awarded,
		})
	}

	scored.IncorrectCount = len(test.Questions) - scored.CorrectCount
	scored.Score = int(math.Round(scored.RawScore))
	scored.Percentage = Percentage(scored.RawScore, test.TotalScore)
	scored.Passed = scored.Percentage >= s.policy.PassThreshold

	return scored, nil
}

// Percentage returns round(100 * score / total) clamped to 0..100. total must
// be positive.
func Percentage(score, total float64) int {
	pct := int(math.Round(100 * score / total))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
