package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedStudent(t *testing.T, db *gorm.DB, first, group string) models.User {
	t.Helper()
	user := models.User{
		FirstName: first,
		LastName:  "Putri",
		Phone:     uuid.NewString()[:12],
		GroupCode: group,
		Role:      models.RoleStudent,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedAdmin(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{FirstName: "Bu", LastName: "Guru", Phone: uuid.NewString()[:12], Role: models.RoleAdmin}
	require.NoError(t, db.Create(&user).Error)
	return user
}

type questionSeed struct {
	text    string
	correct string
	score   float64
}

// seedExam stores an open test whose questions offer options A to D.
func seedExam(t *testing.T, db *gorm.DB, title string, questions []questionSeed, groups ...string) models.Test {
	t.Helper()
	now := time.Now().UTC()
	test := models.Test{
		Title:     title,
		TimeLimit: 30,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(24 * time.Hour),
	}
	for i, q := range questions {
		question := models.TestQuestion{Position: i, Text: q.text, CorrectAnswer: q.correct, Score: q.score}
		question.SetOptions([]string{"A", "B", "C", "D"})
		test.Questions = append(test.Questions, question)
		test.TotalScore += q.score
	}
	for _, g := range groups {
		test.Groups = append(test.Groups, models.TestGroup{GroupCode: g})
	}
	require.NoError(t, db.Create(&test).Error)
	return test
}

func twoQuestionExam(t *testing.T, db *gorm.DB, groups ...string) models.Test {
	return seedExam(t, db, "Logika Dasar", []questionSeed{
		{text: "Q1", correct: "B", score: 5},
		{text: "Q2", correct: "C", score: 5},
	}, groups...)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, event realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) named(name string) []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]realtime.Event, 0)
	for _, e := range b.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBroadcaster) activities(t *testing.T) []realtime.ActivityUpdate {
	t.Helper()
	updates := make([]realtime.ActivityUpdate, 0)
	for _, e := range b.named(realtime.EventActivityUpdate) {
		var update realtime.ActivityUpdate
		require.NoError(t, e.Decode(&update))
		updates = append(updates, update)
	}
	return updates
}

type examFixture struct {
	db          *gorm.DB
	users       repository.UserRepository
	tests       repository.TestRepository
	results     repository.ResultRepository
	activities  repository.ActivityLogRepository
	activity    ActivityService
	broadcaster *recordingBroadcaster
	presence    *realtime.Registry
	eligibility EligibilityService
	submissions *submissionService
}

func newExamFixture(t *testing.T, cfg SubmissionConfig, attempts AttemptTracker) *examFixture {
	t.Helper()
	db := setupServiceDB(t)
	f := &examFixture{
		db:          db,
		users:       repository.NewUserRepository(db),
		tests:       repository.NewTestRepository(db),
		results:     repository.NewResultRepository(db),
		activities:  repository.NewActivityLogRepository(db),
		broadcaster: &recordingBroadcaster{},
		presence:    realtime.NewRegistry(nil, testLogger()),
	}
	f.activity = NewActivityService(f.activities, testLogger())
	f.eligibility = NewEligibilityService(f.results, f.users, f.tests, attempts, testValidator(), f.activity, f.broadcaster, testLogger())

	scorer, err := scoring.NewScorer(scoring.DefaultPolicy())
	require.NoError(t, err)

	f.submissions = NewSubmissionService(SubmissionDependencies{
		Tests:       f.tests,
		Users:       f.users,
		Results:     f.results,
		Eligibility: f.eligibility,
		Scorer:      scorer,
		Attempts:    attempts,
		Presence:    f.presence,
		Activity:    f.activity,
		Broadcaster: f.broadcaster,
		Validator:   testValidator(),
	}, cfg, testLogger()).(*submissionService)
	return f
}

func (f *examFixture) resultCount(t *testing.T, userID, testID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Result{}).Where("user_id = ? AND test_id = ?", userID, testID).Count(&count).Error)
	return count
}

func floatPtr(v float64) *float64 {
	return &v
}
