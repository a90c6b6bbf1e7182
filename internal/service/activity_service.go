package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// ActivityActor represents the authenticated user performing an action.
type ActivityActor struct {
	ID   uint
	Name string
	Role string
}

// ActivityEntry captures the details required to persist an activity record.
type ActivityEntry struct {
	ActorID   uint
	ActorName string
	Action    string
	TestID    *uint
	TestTitle string
	Score     *int
	Metadata  map[string]interface{}
}

// ActivityRecorder defines behaviour for recording activity logs.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.AdminActivityResponse, error)
}

// ActivityService exposes methods to query and persist activity logs.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, req dto.AdminActivityListRequest) (dto.AdminActivityListResponse, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.AdminActivityResponse, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return dto.AdminActivityResponse{}, fmt.Errorf("action is required")
	}

	model := models.ActivityLog{
		ActorID:   entry.ActorID,
		ActorName: strings.TrimSpace(entry.ActorName),
		Action:    strings.ToLower(strings.TrimSpace(entry.Action)),
		TestID:    entry.TestID,
		TestTitle: entry.TestTitle,
		Score:     entry.Score,
		Metadata:  sanitizeMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist activity log")
		return dto.AdminActivityResponse{}, err
	}

	return dto.NewAdminActivityResponse(model), nil
}

func (s *activityService) List(ctx context.Context, req dto.AdminActivityListRequest) (dto.AdminActivityListResponse, error) {
	filter := repository.ActivityLogFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Action:   strings.ToLower(strings.TrimSpace(req.Action)),
	}
	if req.ActorID > 0 {
		filter.ActorID = &req.ActorID
	}
	if req.TestID > 0 {
		filter.TestID = &req.TestID
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AdminActivityListResponse{}, storeError(err, "list activity")
	}

	responses := make([]dto.AdminActivityResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewAdminActivityResponse(entry))
	}

	return dto.AdminActivityListResponse{
		Items:      responses,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "phone") || strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

// activityFeed records an activity and pushes it to live dashboards. Neither
// step can fail the caller.
type activityFeed struct {
	recorder    ActivityRecorder
	broadcaster realtime.Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

func (f activityFeed) publish(ctx context.Context, entry ActivityEntry, update realtime.ActivityUpdate) {
	if f.recorder != nil {
		record, err := f.recorder.Record(ctx, entry)
		if err != nil {
			f.logger.Warn().Err(err).Str("action", entry.Action).Msg("activity log write failed")
		} else {
			update.ID = record.ID
		}
	}

	if f.broadcaster == nil {
		return
	}

	if update.StudentID == 0 {
		update.StudentID = entry.ActorID
		update.StudentName = entry.ActorName
	}
	update.Action = entry.Action
	update.TestTitle = entry.TestTitle
	update.Score = entry.Score
	if entry.TestID != nil {
		update.TestID = *entry.TestID
	}
	if update.Timestamp.IsZero() {
		now := time.Now
		if f.now != nil {
			now = f.now
		}
		update.Timestamp = now().UTC()
	}

	event, err := realtime.NewEvent(realtime.EventActivityUpdate, update)
	if err != nil {
		f.logger.Warn().Err(err).Msg("failed to encode activity update")
		return
	}
	f.broadcaster.Broadcast(ctx, event)
}
