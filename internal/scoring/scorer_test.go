package scoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
)

func weight(v float64) *float64 {
	return &v
}

func buildTest(t *testing.T, correct []string, weights []float64) Test {
	t.Helper()
	questions := make([]Question, 0, len(correct))
	for i, answer := range correct {
		q, err := NewQuestion(QuestionInput{
			Text:          "Question " + string(rune('A'+i)),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: answer,
			Score:         weight(weights[i]),
		})
		require.NoError(t, err)
		questions = append(questions, q)
	}
	test, err := NewTest("Sample", questions, nil)
	require.NoError(t, err)
	return test
}

func defaultScorer(t *testing.T) *Scorer {
	t.Helper()
	scorer, err := NewScorer(DefaultPolicy())
	require.NoError(t, err)
	return scorer
}

func TestScoreHalfCorrectPassesAtDefaultThreshold(t *testing.T) {
	test := buildTest(t, []string{"B", "C"}, []float64{5, 5})

	scored, err := defaultScorer(t).Score(test, Answers("B", "D"), 42)
	require.NoError(t, err)
	require.Equal(t, 5, scored.Score)
	require.Equal(t, 10.0, scored.TotalScore)
	require.Equal(t, 50, scored.Percentage)
	require.True(t, scored.Passed)
	require.Equal(t, 1, scored.CorrectCount)
	require.Equal(t, 1, scored.IncorrectCount)
	require.Equal(t, 42, scored.TimeTaken)
	require.Len(t, scored.Outcomes, 2)
	require.True(t, scored.Outcomes[0].IsCorrect)
	require.Equal(t, 5.0, scored.Outcomes[0].Score)
	require.False(t, scored.Outcomes[1].IsCorrect)
	require.Equal(t, "D", scored.Outcomes[1].Selected)
	require.Equal(t, "C", scored.Outcomes[1].Correct)
	require.Equal(t, 0.0, scored.Outcomes[1].Score)
}

func TestScoreRejectsZeroTotal(t *testing.T) {
	_, err := defaultScorer(t).Score(Test{Title: "Empty"}, nil, 0)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestScoreRejectsAnswerCountMismatch(t *testing.T) {
	test := buildTest(t, []string{"A", "B", "C"}, []float64{1, 1, 1})

	_, err := defaultScorer(t).Score(test, Answers("A"), 10)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = defaultScorer(t).Score(test, Answers("A", "B", "C", "D"), 10)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestScoreRejectsNegativeTime(t *testing.T) {
	test := buildTest(t, []string{"A"}, []float64{1})
	_, err := defaultScorer(t).Score(test, Answers("A"), -1)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestScoreIsDeterministic(t *testing.T) {
	test := buildTest(t, []string{"A", "B", "C"}, []float64{2, 3, 5})
	answers := Answers("A", "x", "c")
	scorer := defaultScorer(t)

	first, err := scorer.Score(test, answers, 30)
	require.NoError(t, err)
	second, err := scorer.Score(test, answers, 30)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestScoreBounds(t *testing.T) {
	test := buildTest(t, []string{"A", "B"}, []float64{3, 7})
	scorer := defaultScorer(t)

	cases := []struct {
		name       string
		answers    []RawAnswer
		score      int
		percentage int
		passed     bool
	}{
		{name: "all correct", answers: Answers("A", "B"), score: 10, percentage: 100, passed: true},
		{name: "none correct", answers: Answers("B", "A"), score: 0, percentage: 0, passed: false},
		{name: "empty answers", answers: []RawAnswer{{}, {}}, score: 0, percentage: 0, passed: false},
		{name: "heavier question", answers: Answers("", "B"), score: 7, percentage: 70, passed: true},
		{name: "lighter question", answers: Answers("A", ""), score: 3, percentage: 30, passed: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			scored, err := scorer.Score(test, tc.answers, 0)
			require.NoError(t, err)
			require.Equal(t, tc.score, scored.Score)
			require.Equal(t, tc.percentage, scored.Percentage)
			require.Equal(t, tc.passed, scored.Passed)
			require.GreaterOrEqual(t, scored.Percentage, 0)
			require.LessOrEqual(t, scored.Percentage, 100)
			require.Equal(t, len(test.Questions), scored.CorrectCount+scored.IncorrectCount)
		})
	}
}

func TestScoreUsesTotalOverride(t *testing.T) {
	q, err := NewQuestion(QuestionInput{Text: "Pick", Options: []string{"yes", "no"}, CorrectAnswer: "yes"})
	require.NoError(t, err)
	require.Equal(t, DefaultQuestionScore, q.Score)

	test, err := NewTest("Override", []Question{q}, weight(20))
	require.NoError(t, err)

	scored, err := defaultScorer(t).Score(test, Answers("yes"), 5)
	require.NoError(t, err)
	require.Equal(t, 25, scored.Percentage)
	require.False(t, scored.Passed)
}

func TestScoreNormalizedMatching(t *testing.T) {
	q, err := NewQuestion(QuestionInput{
		Text:          "Capital of France",
		Options:       []string{"Paris", "Lyon"},
		CorrectAnswer: "Paris",
	})
	require.NoError(t, err)
	test, err := NewTest("Geography", []Question{q}, nil)
	require.NoError(t, err)

	scorer := defaultScorer(t)
	for _, answer := range []string{"Paris", "  paris ", "PARIS", "paris"} {
		scored, err := scorer.Score(test, Answers(answer), 1)
		require.NoError(t, err)
		require.True(t, scored.Passed, "answer %q should match", answer)
	}

	exact, err := NewScorer(Policy{PassThreshold: 50, Match: MatchExact})
	require.NoError(t, err)
	scored, err := exact.Score(test, Answers(" paris"), 1)
	require.NoError(t, err)
	require.False(t, scored.Outcomes[0].IsCorrect)
}

func TestNewQuestionStoresListedOptionAsCorrect(t *testing.T) {
	q, err := NewQuestion(QuestionInput{
		Text:          "Capital of France",
		Options:       []string{"Paris", "Lyon"},
		CorrectAnswer: " paris",
	})
	require.NoError(t, err)
	require.Equal(t, "Paris", q.CorrectAnswer)

	test, err := NewTest("Geography", []Question{q}, nil)
	require.NoError(t, err)

	exact, err := NewScorer(Policy{PassThreshold: 50, Match: MatchExact})
	require.NoError(t, err)
	scored, err := exact.Score(test, Answers(q.Options[0]), 1)
	require.NoError(t, err)
	require.True(t, scored.Outcomes[0].IsCorrect)
	require.Equal(t, 100, scored.Percentage)
}

func TestNormalizeComposesUnicode(t *testing.T) {
	require.Equal(t, Normalize("caf\u00e9"), Normalize("cafe\u0301"))
	require.Equal(t, "a b c", Normalize("  A \t B\nC "))
	require.True(t, MatchNormalized.Equal("\u00c9COLE", "e\u0301cole"))
	require.False(t, MatchNormalized.Equal("   ", "   "))
}

func TestRawAnswerDecodesScalars(t *testing.T) {
	var answers []RawAnswer
	require.NoError(t, json.Unmarshal([]byte(`["B", null, 3, true, {"a":1}]`), &answers))
	require.Len(t, answers, 5)
	require.Equal(t, "B", answers[0].String())
	require.False(t, answers[1].Present())
	require.Equal(t, "3", answers[2].String())
	require.Equal(t, "true", answers[3].String())
	require.Equal(t, `{"a":1}`, answers[4].String())
}

func TestNewQuestionValidation(t *testing.T) {
	cases := []struct {
		name  string
		input QuestionInput
	}{
		{name: "missing text", input: QuestionInput{Options: []string{"a", "b"}, CorrectAnswer: "a"}},
		{name: "single option", input: QuestionInput{Text: "q", Options: []string{"a"}, CorrectAnswer: "a"}},
		{name: "blank option", input: QuestionInput{Text: "q", Options: []string{"a", " "}, CorrectAnswer: "a"}},
		{name: "answer not an option", input: QuestionInput{Text: "q", Options: []string{"a", "b"}, CorrectAnswer: "c"}},
		{name: "zero score", input: QuestionInput{Text: "q", Options: []string{"a", "b"}, CorrectAnswer: "a", Score: weight(0)}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewQuestion(tc.input)
			require.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestNewTestRejectsLowOverride(t *testing.T) {
	q, err := NewQuestion(QuestionInput{Text: "q", Options: []string{"a", "b"}, CorrectAnswer: "a", Score: weight(10)})
	require.NoError(t, err)

	_, err = NewTest("t", []Question{q}, weight(5))
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = NewTest(" ", []Question{q}, nil)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = NewTest("t", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNewScorerRejectsBadPolicy(t *testing.T) {
	_, err := NewScorer(Policy{PassThreshold: 101})
	require.Error(t, err)
	_, err = NewScorer(Policy{PassThreshold: 50, Match: "fuzzy"})
	require.Error(t, err)
}
