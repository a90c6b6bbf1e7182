package service

import (
	"strings"

	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
)

// scoringTest converts a stored test into the scorer's view of it.
func scoringTest(test models.Test) scoring.Test {
	questions := make([]scoring.Question, 0, len(test.Questions))
	for _, q := range test.Questions {
		questions = append(questions, scoring.Question{
			Text:          q.Text,
			Options:       q.OptionList(),
			CorrectAnswer: q.CorrectAnswer,
			Score:         q.Score,
			CreatedByAI:   q.CreatedByAI,
		})
	}
	return scoring.Test{Title: test.Title, Questions: questions, TotalScore: test.TotalScore}
}

func storedOutcomes(outcomes []scoring.Outcome) []models.Outcome {
	stored := make([]models.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		stored = append(stored, models.Outcome{
			Question:  o.Question,
			Selected:  o.Selected,
			Correct:   o.Correct,
			IsCorrect: o.IsCorrect,
			Score:     o.Score,
		})
	}
	return stored
}

// assignedTo reports whether the test is assigned to groupCode.
func assignedTo(test models.Test, groupCode string) bool {
	groupCode = strings.TrimSpace(groupCode)
	if groupCode == "" {
		return false
	}
	for _, g := range test.Groups {
		if strings.EqualFold(g.GroupCode, groupCode) {
			return true
		}
	}
	return false
}
