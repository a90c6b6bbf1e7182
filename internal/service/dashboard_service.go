package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

const (
	dashboardCacheKey    = "dashboard:admin"
	dashboardRecentItems = 10
)

// PresenceSnapshotter exposes the current presence entries.
type PresenceSnapshotter interface {
	Snapshot() []realtime.Entry
}

// DashboardService produces the admin overview.
type DashboardService interface {
	GetDashboard(ctx context.Context) (dto.DashboardResponse, error)
}

type dashboardService struct {
	users      repository.UserRepository
	tests      repository.TestRepository
	results    repository.ResultRepository
	activities repository.ActivityLogRepository
	presence   PresenceSnapshotter
	cache      *redis.Client
	cacheTTL   time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// NewDashboardService builds the dashboard aggregator. Stored aggregates are
// cached in Redis for ttl; presence counts are always live.
func NewDashboardService(users repository.UserRepository, tests repository.TestRepository, results repository.ResultRepository, activities repository.ActivityLogRepository, presence PresenceSnapshotter, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		users:      users,
		tests:      tests,
		results:    results,
		activities: activities,
		presence:   presence,
		cache:      cache,
		cacheTTL:   ttl,
		logger:     logger.With().Str("component", "dashboard_service").Logger(),
		now:        time.Now,
	}
}

func (s *dashboardService) GetDashboard(ctx context.Context) (dto.DashboardResponse, error) {
	response, hit := s.cached(ctx)
	if !hit {
		var err error
		response, err = s.aggregate(ctx)
		if err != nil {
			return dto.DashboardResponse{}, err
		}
		s.store(ctx, response)
	}

	response.CacheHit = hit
	response.OnlineStudents, response.TestingStudents = s.presenceCounts()
	return response, nil
}

func (s *dashboardService) cached(ctx context.Context) (dto.DashboardResponse, bool) {
	if s.cache == nil {
		return dto.DashboardResponse{}, false
	}

	cached, err := s.cache.Get(ctx, dashboardCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
		return dto.DashboardResponse{}, false
	}

	var response dto.DashboardResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		return dto.DashboardResponse{}, false
	}
	s.logger.Debug().Msg("dashboard cache hit")
	return response, true
}

func (s *dashboardService) store(ctx context.Context, response dto.DashboardResponse) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
	}
}

func (s *dashboardService) aggregate(ctx context.Context) (dto.DashboardResponse, error) {
	students, err := s.users.Count(ctx, models.RoleStudent)
	if err != nil {
		return dto.DashboardResponse{}, storeError(err, "count students")
	}
	tests, err := s.tests.Count(ctx)
	if err != nil {
		return dto.DashboardResponse{}, storeError(err, "count tests")
	}
	stats, err := s.results.Stats(ctx)
	if err != nil {
		return dto.DashboardResponse{}, storeError(err, "aggregate results")
	}
	recent, _, err := s.activities.List(ctx, repository.ActivityLogFilter{Page: 1, PageSize: dashboardRecentItems})
	if err != nil {
		return dto.DashboardResponse{}, storeError(err, "list activity")
	}

	response := dto.DashboardResponse{
		TotalStudents:     students,
		TotalTests:        tests,
		TotalResults:      stats.Total,
		PassedResults:     stats.Passed,
		AveragePercentage: round2(stats.AveragePercentage),
		RecentActivity:    make([]dto.AdminActivityResponse, 0, len(recent)),
		GeneratedAt:       s.now().UTC(),
	}
	if stats.Total > 0 {
		response.PassRate = round2(float64(stats.Passed) / float64(stats.Total) * 100)
	}
	for _, entry := range recent {
		response.RecentActivity = append(response.RecentActivity, dto.NewAdminActivityResponse(entry))
	}
	return response, nil
}

func (s *dashboardService) presenceCounts() (online, testing int) {
	if s.presence == nil {
		return 0, 0
	}
	for _, entry := range s.presence.Snapshot() {
		online++
		if entry.Status == realtime.StatusTesting {
			testing++
		}
	}
	return online, testing
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
