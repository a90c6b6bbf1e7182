package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, phone, group string) models.User {
	t.Helper()
	user := models.User{FirstName: "Student", LastName: phone, Phone: phone, GroupCode: group, Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedTest(t *testing.T, db *gorm.DB, title string, groups ...string) models.Test {
	t.Helper()
	now := time.Now().UTC()
	test := models.Test{
		Title:      title,
		TotalScore: 10,
		TimeLimit:  30,
		StartTime:  now.Add(-time.Hour),
		EndTime:    now.Add(24 * time.Hour),
	}
	for i, text := range []string{"first", "second"} {
		q := models.TestQuestion{Position: i, Text: text, CorrectAnswer: "A", Score: 5}
		q.SetOptions([]string{"A", "B"})
		test.Questions = append(test.Questions, q)
	}
	for _, g := range groups {
		test.Groups = append(test.Groups, models.TestGroup{GroupCode: g})
	}
	require.NoError(t, db.Create(&test).Error)
	return test
}

func TestResultRepositoryRejectsDuplicatePair(t *testing.T) {
	db := setupTestDB(t)
	repo := NewResultRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "0811", "G1")
	test := seedTest(t, db, "Algebra", "G1")

	first := models.Result{UserID: user.ID, TestID: test.ID, Score: 5, TotalScore: 10, Percentage: 50, SubmittedAt: time.Now()}
	require.NoError(t, repo.CreateConsumingGrant(ctx, &first))

	second := models.Result{UserID: user.ID, TestID: test.ID, Score: 10, TotalScore: 10, Percentage: 100, SubmittedAt: time.Now()}
	err := repo.CreateConsumingGrant(ctx, &second)
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))

	exists, err := repo.Exists(ctx, user.ID, test.ID)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestResultRepositoryGrantRetakeRemovesResults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewResultRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "0812", "G1")
	test := seedTest(t, db, "Physics", "G1")

	result := models.Result{UserID: user.ID, TestID: test.ID, Score: 5, TotalScore: 10, Percentage: 50, SubmittedAt: time.Now()}
	require.NoError(t, repo.CreateConsumingGrant(ctx, &result))

	removed, err := repo.GrantRetake(ctx, &models.RetakeGrant{UserID: user.ID, TestID: test.ID, GrantedBy: 99})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	// granting twice keeps a single grant
	_, err = repo.GrantRetake(ctx, &models.RetakeGrant{UserID: user.ID, TestID: test.ID, GrantedBy: 99})
	require.NoError(t, err)

	var grants int64
	require.NoError(t, db.Model(&models.RetakeGrant{}).Count(&grants).Error)
	require.Equal(t, int64(1), grants)

	exists, err := repo.Exists(ctx, user.ID, test.ID)
	require.NoError(t, err)
	require.False(t, exists)

	again := models.Result{UserID: user.ID, TestID: test.ID, Score: 10, TotalScore: 10, Percentage: 100, Passed: true, SubmittedAt: time.Now()}
	require.NoError(t, repo.CreateConsumingGrant(ctx, &again))

	hasGrant, err := repo.HasGrant(ctx, user.ID, test.ID)
	require.NoError(t, err)
	require.False(t, hasGrant, "submission consumes the grant")

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Total)
	require.Equal(t, int64(1), stats.Passed)
	require.InDelta(t, 100.0, stats.AveragePercentage, 0.001)
}

func TestResultRepositoryConsumeGrant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewResultRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "0813", "G1")
	test := seedTest(t, db, "Chemistry", "G1")

	consumed, err := repo.ConsumeGrant(ctx, user.ID, test.ID)
	require.NoError(t, err)
	require.False(t, consumed)

	_, err = repo.GrantRetake(ctx, &models.RetakeGrant{UserID: user.ID, TestID: test.ID})
	require.NoError(t, err)

	granted, err := repo.GrantedTests(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, granted[test.ID])

	consumed, err = repo.ConsumeGrant(ctx, user.ID, test.ID)
	require.NoError(t, err)
	require.True(t, consumed)
}

func TestTestRepositoryFiltersByGroupAndKeepsQuestionOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestRepository(db)
	ctx := context.Background()

	seedTest(t, db, "Group one", "G1")
	seedTest(t, db, "Group two", "G2")
	shared := seedTest(t, db, "Shared", "G1", "G2")

	tests, total, err := repo.List(ctx, TestFilter{GroupCode: "G2", PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, tests, 2)

	loaded, err := repo.GetByID(ctx, shared.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Questions, 2)
	require.Equal(t, "first", loaded.Questions[0].Text)
	require.Equal(t, []string{"A", "B"}, loaded.Questions[0].OptionList())
	require.ElementsMatch(t, []string{"G1", "G2"}, loaded.GroupCodes())
}

func TestTestRepositoryReplaceAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestRepository(db)
	results := NewResultRepository(db)
	ctx := context.Background()

	test := seedTest(t, db, "Draft", "G1")
	user := seedUser(t, db, "0814", "G1")
	require.NoError(t, results.CreateConsumingGrant(ctx, &models.Result{UserID: user.ID, TestID: test.ID, TotalScore: 10, SubmittedAt: time.Now()}))

	q := models.TestQuestion{Position: 0, Text: "only", CorrectAnswer: "yes", Score: 20}
	q.SetOptions([]string{"yes", "no"})
	test.Title = "Final"
	test.TotalScore = 20
	test.Questions = []models.TestQuestion{q}
	test.Groups = []models.TestGroup{{GroupCode: "G3"}}
	require.NoError(t, repo.Replace(ctx, &test))

	loaded, err := repo.GetByID(ctx, test.ID)
	require.NoError(t, err)
	require.Equal(t, "Final", loaded.Title)
	require.Len(t, loaded.Questions, 1)
	require.Equal(t, []string{"G3"}, loaded.GroupCodes())

	require.NoError(t, repo.SetGroups(ctx, test.ID, []string{"G4", "G5"}))
	loaded, err = repo.GetByID(ctx, test.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"G4", "G5"}, loaded.GroupCodes())

	require.NoError(t, repo.Delete(ctx, test.ID))
	_, err = repo.GetByID(ctx, test.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	exists, err := results.Exists(ctx, user.ID, test.ID)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestUserRepositoryDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	results := NewResultRepository(db)
	activities := NewActivityLogRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, "0815", "G1")
	test := seedTest(t, db, "History", "G1")
	require.NoError(t, results.CreateConsumingGrant(ctx, &models.Result{UserID: user.ID, TestID: test.ID, TotalScore: 10, SubmittedAt: time.Now()}))
	require.NoError(t, activities.Create(ctx, &models.ActivityLog{ActorID: user.ID, Action: models.ActivityTestCompleted}))

	count, err := users.Count(ctx, models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.NoError(t, users.Delete(ctx, user.ID))

	_, err = users.GetByID(ctx, user.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	entries, total, err := activities.List(ctx, ActivityLogFilter{ActorID: &user.ID})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, entries)

	require.ErrorIs(t, users.Delete(ctx, user.ID), gorm.ErrRecordNotFound)
}
