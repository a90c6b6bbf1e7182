package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/observability"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
)

// PresenceTracker is the part of the presence registry driven by test attempts.
type PresenceTracker interface {
	StartTest(userID uint, testTitle string)
	Finish(userID uint)
}

// SubmissionConfig holds the attempt rules.
type SubmissionConfig struct {
	Grace               time.Duration
	ConsumeGrantOnStart bool
}

// SubmissionService runs the start and submit steps of a test attempt.
type SubmissionService interface {
	Start(ctx context.Context, userID, testID uint) (dto.AttemptResponse, error)
	Submit(ctx context.Context, userID, testID uint, req dto.SubmitTestRequest) (dto.SubmitTestResponse, error)
}

type submissionService struct {
	tests       repository.TestRepository
	users       repository.UserRepository
	results     repository.ResultRepository
	eligibility EligibilityService
	scorer      *scoring.Scorer
	attempts    AttemptTracker
	presence    PresenceTracker
	feed        activityFeed
	validator   *validator.Validate
	cfg         SubmissionConfig
	locks       *keyedMutex
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// SubmissionDependencies groups the collaborators of the submission service.
type SubmissionDependencies struct {
	Tests       repository.TestRepository
	Users       repository.UserRepository
	Results     repository.ResultRepository
	Eligibility EligibilityService
	Scorer      *scoring.Scorer
	Attempts    AttemptTracker
	Presence    PresenceTracker
	Activity    ActivityRecorder
	Broadcaster realtime.Broadcaster
	Validator   *validator.Validate
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(deps SubmissionDependencies, cfg SubmissionConfig, logger zerolog.Logger) SubmissionService {
	logger = logger.With().Str("component", "submission_service").Logger()
	attempts := deps.Attempts
	if attempts == nil {
		attempts = noopAttemptTracker{}
	}
	return &submissionService{
		tests:       deps.Tests,
		users:       deps.Users,
		results:     deps.Results,
		eligibility: deps.Eligibility,
		scorer:      deps.Scorer,
		attempts:    attempts,
		presence:    deps.Presence,
		feed:        activityFeed{recorder: deps.Activity, broadcaster: deps.Broadcaster, logger: logger},
		validator:   deps.Validator,
		cfg:         cfg,
		locks:       newKeyedMutex(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-exam-api/internal/service/submission"),
		logger:      logger,
		now:         time.Now,
	}
}

// loadAttempt fetches the student and the test and checks that the test is
// assigned to the student's group and currently open.
func (s *submissionService) loadAttempt(ctx context.Context, userID, testID uint, now time.Time) (models.User, models.Test, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, models.Test{}, lookupError(err, "student")
	}

	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return models.User{}, models.Test{}, lookupError(err, "test")
	}

	if !assignedTo(test, user.GroupCode) {
		return models.User{}, models.Test{}, apperrors.Unauthorized("test is not assigned to your group")
	}

	if !test.Open(now) {
		return models.User{}, models.Test{}, apperrors.Validation("test window closed")
	}

	return user, test, nil
}

// Start records the attempt start and marks the student as testing.
func (s *submissionService) Start(ctx context.Context, userID, testID uint) (dto.AttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.start", trace.WithAttributes(
		attribute.Int64("submission.user_id", int64(userID)),
		attribute.Int64("submission.test_id", int64(testID)),
	))
	defer span.End()

	now := s.now().UTC()
	user, test, err := s.loadAttempt(ctx, userID, testID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt_rejected")
		return dto.AttemptResponse{}, err
	}

	taken, err := s.eligibility.IsTaken(ctx, user.ID, test.ID)
	if err != nil {
		span.RecordError(err)
		return dto.AttemptResponse{}, err
	}
	if taken {
		span.SetStatus(codes.Error, "already_taken")
		return dto.AttemptResponse{}, apperrors.Conflict("test already taken")
	}

	startedAt, err := s.attempts.Begin(ctx, user.ID, test.ID, now)
	if err != nil {
		s.logger.Warn().Err(err).Uint("user_id", user.ID).Uint("test_id", test.ID).Msg("failed to record attempt start")
		startedAt = now
	}

	if s.cfg.ConsumeGrantOnStart {
		if _, err := s.eligibility.ConsumeGrant(ctx, user.ID, test.ID); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", user.ID).Uint("test_id", test.ID).Msg("failed to consume retake grant on start")
		}
	}

	if s.presence != nil {
		s.presence.StartTest(user.ID, test.Title)
	}

	id := test.ID
	s.feed.publish(ctx, ActivityEntry{
		ActorID:   user.ID,
		ActorName: user.FullName(),
		Action:    models.ActivityTestStarted,
		TestID:    &id,
		TestTitle: test.Title,
	}, realtime.ActivityUpdate{})

	return dto.AttemptResponse{
		TestID:    test.ID,
		StartedAt: startedAt,
		Deadline:  s.deadline(test, startedAt),
	}, nil
}

func (s *submissionService) deadline(test models.Test, startedAt time.Time) time.Time {
	limit := startedAt.Add(time.Duration(test.TimeLimit) * time.Minute)
	if test.EndTime.Before(limit) {
		return test.EndTime
	}
	return limit
}

// Submit scores the answers and stores the result. Concurrent submissions for
// the same pair are serialized; the loser gets a Conflict.
func (s *submissionService) Submit(ctx context.Context, userID, testID uint, req dto.SubmitTestRequest) (dto.SubmitTestResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.Int64("submission.user_id", int64(userID)),
		attribute.Int64("submission.test_id", int64(testID)),
	))
	defer span.End()

	response, err := s.submit(ctx, userID, testID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.Message(err))
		observability.Submissions().WithLabelValues(outcomeLabel(err)).Inc()
		return dto.SubmitTestResponse{}, err
	}

	span.SetAttributes(
		attribute.Int("submission.percentage", response.Percentage),
		attribute.Bool("submission.passed", response.Passed),
	)
	observability.Submissions().WithLabelValues("accepted").Inc()
	observability.ScorePercentage().Observe(float64(response.Percentage))
	return response, nil
}

func (s *submissionService) submit(ctx context.Context, userID, testID uint, req dto.SubmitTestRequest) (dto.SubmitTestResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmitTestResponse{}, validationError(err)
	}

	now := s.now().UTC()
	user, test, err := s.loadAttempt(ctx, userID, testID, now)
	if err != nil {
		return dto.SubmitTestResponse{}, err
	}

	if err := s.checkDeadline(ctx, user.ID, test, now); err != nil {
		return dto.SubmitTestResponse{}, err
	}

	scored, err := s.scorer.Score(scoringTest(test), req.Answers, req.TimeTaken)
	if err != nil {
		return dto.SubmitTestResponse{}, err
	}

	unlock := s.locks.Lock(attemptKey(user.ID, test.ID))
	defer unlock()

	taken, err := s.eligibility.IsTaken(ctx, user.ID, test.ID)
	if err != nil {
		return dto.SubmitTestResponse{}, err
	}
	if taken {
		return dto.SubmitTestResponse{}, apperrors.Conflict("test already taken")
	}

	result := models.Result{
		UserID:      user.ID,
		TestID:      test.ID,
		Score:       scored.Score,
		TotalScore:  scored.TotalScore,
		Percentage:  scored.Percentage,
		Passed:      scored.Passed,
		TimeTaken:   scored.TimeTaken,
		SubmittedAt: now,
	}
	result.SetOutcomes(storedOutcomes(scored.Outcomes))

	if err := s.results.CreateConsumingGrant(ctx, &result); err != nil {
		if repository.IsUniqueViolation(err) {
			return dto.SubmitTestResponse{}, apperrors.Conflict("test already taken")
		}
		return dto.SubmitTestResponse{}, storeError(err, "store result")
	}

	s.logger.Info().
		Uint("user_id", user.ID).
		Uint("test_id", test.ID).
		Int("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("submission stored")

	if err := s.attempts.Clear(ctx, user.ID, test.ID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear attempt start")
	}

	// Activity entries carry the percentage as their score; raw points go to metadata.
	id := test.ID
	percentage := result.Percentage
	passed := result.Passed
	s.feed.publish(ctx, ActivityEntry{
		ActorID:   user.ID,
		ActorName: user.FullName(),
		Action:    models.ActivityTestCompleted,
		TestID:    &id,
		TestTitle: test.Title,
		Score:     &percentage,
		Metadata: map[string]interface{}{
			"points":     result.Score,
			"percentage": percentage,
			"passed":     passed,
			"time_taken": result.TimeTaken,
		},
	}, realtime.ActivityUpdate{Percentage: &percentage, Passed: &passed})

	if s.presence != nil {
		s.presence.Finish(user.ID)
	}

	return dto.SubmitTestResponse{
		ResultID:       result.ID,
		TestID:         test.ID,
		Score:          result.Score,
		TotalScore:     result.TotalScore,
		Percentage:     result.Percentage,
		Passed:         result.Passed,
		CorrectCount:   scored.CorrectCount,
		IncorrectCount: scored.IncorrectCount,
		TimeTaken:      result.TimeTaken,
		SubmittedAt:    result.SubmittedAt,
	}, nil
}

func (s *submissionService) checkDeadline(ctx context.Context, userID uint, test models.Test, now time.Time) error {
	startedAt, ok, err := s.attempts.StartedAt(ctx, userID, test.ID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Uint("test_id", test.ID).Msg("failed to read attempt start")
		return nil
	}
	if !ok {
		return nil
	}

	if now.After(startedAt.Add(time.Duration(test.TimeLimit)*time.Minute + s.cfg.Grace)) {
		return apperrors.Validation("time limit exceeded")
	}
	return nil
}

func outcomeLabel(err error) string {
	switch {
	case errorsIs(err, apperrors.ErrConflict):
		return "conflict"
	case errorsIs(err, apperrors.ErrValidation):
		return "invalid"
	case errorsIs(err, apperrors.ErrNotFound):
		return "not_found"
	case errorsIs(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}
