package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/realtime"
)

func TestDashboardServiceAggregationAndCaching(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	f := newExamFixture(t, SubmissionConfig{}, nil)
	ctx := context.Background()

	first := seedStudent(t, f.db, "Sinta", "XI-A")
	second := seedStudent(t, f.db, "Tono", "XI-A")
	seedAdmin(t, f.db)
	test := twoQuestionExam(t, f.db, "XI-A")

	_, err = f.submissions.Submit(ctx, first.ID, test.ID, answerSheet("B", "C"))
	require.NoError(t, err)
	_, err = f.submissions.Submit(ctx, second.ID, test.ID, answerSheet("A", "A"))
	require.NoError(t, err)

	f.presence.Connect(realtime.Entry{UserID: first.ID}, "c1")
	f.presence.Connect(realtime.Entry{UserID: second.ID}, "c2")
	f.presence.StartTest(second.ID, "Remedial")

	svc := NewDashboardService(f.users, f.tests, f.results, f.activities, f.presence, redisClient, time.Minute, testLogger())

	dashboard, err := svc.GetDashboard(ctx)
	require.NoError(t, err)
	require.False(t, dashboard.CacheHit)
	require.Equal(t, int64(2), dashboard.TotalStudents)
	require.Equal(t, int64(1), dashboard.TotalTests)
	require.Equal(t, int64(2), dashboard.TotalResults)
	require.Equal(t, int64(1), dashboard.PassedResults)
	require.Equal(t, 50.0, dashboard.AveragePercentage)
	require.Equal(t, 50.0, dashboard.PassRate)
	require.Equal(t, 2, dashboard.OnlineStudents)
	require.Equal(t, 1, dashboard.TestingStudents)
	require.Len(t, dashboard.RecentActivity, 2)
	require.True(t, mini.Exists(dashboardCacheKey))

	f.presence.Disconnect(second.ID, "c2")
	seedStudent(t, f.db, "Umar", "XI-B")

	cached, err := svc.GetDashboard(ctx)
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.Equal(t, int64(2), cached.TotalStudents)
	require.Equal(t, 1, cached.OnlineStudents)
	require.Zero(t, cached.TestingStudents)

	mini.FastForward(2 * time.Minute)
	fresh, err := svc.GetDashboard(ctx)
	require.NoError(t, err)
	require.False(t, fresh.CacheHit)
	require.Equal(t, int64(3), fresh.TotalStudents)
}

func TestDashboardServiceWithoutCache(t *testing.T) {
	f := newExamFixture(t, SubmissionConfig{}, nil)
	svc := NewDashboardService(f.users, f.tests, f.results, f.activities, nil, nil, time.Minute, testLogger())

	dashboard, err := svc.GetDashboard(context.Background())
	require.NoError(t, err)
	require.Zero(t, dashboard.TotalResults)
	require.Zero(t, dashboard.PassRate)
	require.Empty(t, dashboard.RecentActivity)
}
