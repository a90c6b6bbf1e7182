package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// EligibilityService decides whether a student may attempt a test and manages
// the retake grants that override a previous attempt.
type EligibilityService interface {
	IsTaken(ctx context.Context, userID, testID uint) (bool, error)
	Status(ctx context.Context, userID, testID uint) (dto.EligibilityResponse, error)
	GrantRetake(ctx context.Context, actor ActivityActor, req dto.AllowRetakeRequest) (dto.AllowRetakeResponse, error)
	ConsumeGrant(ctx context.Context, userID, testID uint) (bool, error)
	ClearRetake(ctx context.Context, userID, testID uint) (dto.EligibilityResponse, error)
}

type eligibilityService struct {
	results   repository.ResultRepository
	users     repository.UserRepository
	tests     repository.TestRepository
	attempts  AttemptTracker
	validator *validator.Validate
	feed      activityFeed
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEligibilityService constructs the eligibility service.
func NewEligibilityService(results repository.ResultRepository, users repository.UserRepository, tests repository.TestRepository, attempts AttemptTracker, validate *validator.Validate, activity ActivityRecorder, broadcaster realtime.Broadcaster, logger zerolog.Logger) EligibilityService {
	logger = logger.With().Str("component", "eligibility_service").Logger()
	if attempts == nil {
		attempts = noopAttemptTracker{}
	}
	return &eligibilityService{
		results:   results,
		users:     users,
		tests:     tests,
		attempts:  attempts,
		validator: validate,
		feed:      activityFeed{recorder: activity, broadcaster: broadcaster, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// IsTaken reports whether a result exists for the pair and no grant overrides it.
func (s *eligibilityService) IsTaken(ctx context.Context, userID, testID uint) (bool, error) {
	status, err := s.status(ctx, userID, testID)
	return status.IsTaken, err
}

func (s *eligibilityService) Status(ctx context.Context, userID, testID uint) (dto.EligibilityResponse, error) {
	return s.status(ctx, userID, testID)
}

func (s *eligibilityService) status(ctx context.Context, userID, testID uint) (dto.EligibilityResponse, error) {
	granted, err := s.results.HasGrant(ctx, userID, testID)
	if err != nil {
		return dto.EligibilityResponse{}, apperrors.Upstream("failed to read retake grants", err)
	}

	exists, err := s.results.Exists(ctx, userID, testID)
	if err != nil {
		return dto.EligibilityResponse{}, apperrors.Upstream("failed to read results", err)
	}

	return dto.EligibilityResponse{
		TestID:              testID,
		IsTaken:             exists && !granted,
		HasRetakePermission: granted,
	}, nil
}

// GrantRetake discards the student's stored results and attempt clock for the
// test and records a grant.
func (s *eligibilityService) GrantRetake(ctx context.Context, actor ActivityActor, req dto.AllowRetakeRequest) (dto.AllowRetakeResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-exam-api/internal/service/eligibility")
	ctx, span := tracer.Start(ctx, "eligibility.grant_retake")
	span.SetAttributes(
		attribute.Int64("retake.student_id", int64(req.StudentID)),
		attribute.Int64("retake.test_id", int64(req.TestID)),
		attribute.Int64("retake.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AllowRetakeResponse{}, validationError(err)
	}

	user, err := s.users.GetByID(ctx, req.StudentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "student_lookup_failed")
		return dto.AllowRetakeResponse{}, lookupError(err, "student")
	}

	test, err := s.tests.GetByID(ctx, req.TestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "test_lookup_failed")
		return dto.AllowRetakeResponse{}, lookupError(err, "test")
	}

	grant := models.RetakeGrant{
		UserID:    user.ID,
		TestID:    test.ID,
		GrantedBy: actor.ID,
		GrantedAt: s.now().UTC(),
	}
	removed, err := s.results.GrantRetake(ctx, &grant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant_failed")
		return dto.AllowRetakeResponse{}, storeError(err, "grant retake")
	}
	if err := s.attempts.Clear(ctx, user.ID, test.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_reset_failed")
		return dto.AllowRetakeResponse{}, apperrors.Upstream("failed to reset attempt clock", err)
	}

	s.logger.Info().
		Uint("student_id", user.ID).
		Uint("test_id", test.ID).
		Uint("actor_id", actor.ID).
		Int64("results_removed", removed).
		Msg("retake granted")

	testID := test.ID
	s.feed.publish(ctx, ActivityEntry{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    models.ActivityAllowRetake,
		TestID:    &testID,
		TestTitle: test.Title,
		Metadata: map[string]interface{}{
			"student_id":      user.ID,
			"student_name":    user.FullName(),
			"results_removed": removed,
		},
	}, realtime.ActivityUpdate{StudentID: user.ID, StudentName: user.FullName()})

	return dto.AllowRetakeResponse{
		StudentID:      user.ID,
		TestID:         test.ID,
		ResultsRemoved: removed,
		GrantedAt:      grant.GrantedAt,
	}, nil
}

func (s *eligibilityService) ConsumeGrant(ctx context.Context, userID, testID uint) (bool, error) {
	consumed, err := s.results.ConsumeGrant(ctx, userID, testID)
	if err != nil {
		return false, storeError(err, "consume retake grant")
	}
	return consumed, nil
}

// ClearRetake consumes the grant on the student's explicit request.
func (s *eligibilityService) ClearRetake(ctx context.Context, userID, testID uint) (dto.EligibilityResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return dto.EligibilityResponse{}, lookupError(err, "student")
	}
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return dto.EligibilityResponse{}, lookupError(err, "test")
	}

	consumed, err := s.ConsumeGrant(ctx, user.ID, test.ID)
	if err != nil {
		return dto.EligibilityResponse{}, err
	}

	if consumed {
		id := test.ID
		s.feed.publish(ctx, ActivityEntry{
			ActorID:   user.ID,
			ActorName: user.FullName(),
			Action:    models.ActivityClearRetake,
			TestID:    &id,
			TestTitle: test.Title,
		}, realtime.ActivityUpdate{})
	}

	return s.status(ctx, user.ID, test.ID)
}
