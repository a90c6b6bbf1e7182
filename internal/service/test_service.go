package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
)

// TestDefaults fills in the optional parts of an authored test.
type TestDefaults struct {
	TimeLimit int
	Validity  time.Duration
}

// TestService manages test definitions and the student view of them.
type TestService interface {
	Create(ctx context.Context, actor ActivityActor, req dto.TestUpsertRequest) (dto.TestResponse, error)
	Update(ctx context.Context, actor ActivityActor, id uint, req dto.TestUpsertRequest) (dto.TestResponse, error)
	SetGroups(ctx context.Context, id uint, req dto.TestGroupsRequest) (dto.TestResponse, error)
	Delete(ctx context.Context, actor ActivityActor, id uint) error
	Get(ctx context.Context, id uint) (dto.TestResponse, error)
	List(ctx context.Context, req dto.TestListRequest) (dto.TestListResponse, error)
	ListForStudent(ctx context.Context, userID uint) ([]dto.StudentTestResponse, error)
	Take(ctx context.Context, userID, id uint) (dto.TestResponse, error)
}

type testService struct {
	tests     repository.TestRepository
	users     repository.UserRepository
	results   repository.ResultRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	defaults  TestDefaults
	feed      activityFeed
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTestService constructs the test service.
func NewTestService(tests repository.TestRepository, users repository.UserRepository, results repository.ResultRepository, validate *validator.Validate, defaults TestDefaults, activity ActivityRecorder, broadcaster realtime.Broadcaster, logger zerolog.Logger) TestService {
	if defaults.TimeLimit <= 0 {
		defaults.TimeLimit = 30
	}
	if defaults.Validity <= 0 {
		defaults.Validity = 30 * 24 * time.Hour
	}
	logger = logger.With().Str("component", "test_service").Logger()
	return &testService{
		tests:     tests,
		users:     users,
		results:   results,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		defaults:  defaults,
		feed:      activityFeed{recorder: activity, broadcaster: broadcaster, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// build validates req and turns it into a storable test.
func (s *testService) build(req dto.TestUpsertRequest) (models.Test, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Test{}, validationError(err)
	}

	questions := make([]scoring.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		question, err := scoring.NewQuestion(scoring.QuestionInput{
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Score:         q.Score,
			CreatedByAI:   q.CreatedByAI,
		})
		if err != nil {
			return models.Test{}, err
		}
		questions = append(questions, question)
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(req.Title))
	definition, err := scoring.NewTest(title, questions, req.TotalScore)
	if err != nil {
		return models.Test{}, err
	}

	start := s.now().UTC()
	if req.StartTime != nil {
		start = req.StartTime.UTC()
	}
	end := start.Add(s.defaults.Validity)
	if req.EndTime != nil {
		end = req.EndTime.UTC()
	}
	if !end.After(start) {
		return models.Test{}, apperrors.Validation("end time must be after start time")
	}

	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = s.defaults.TimeLimit
	}

	test := models.Test{
		Title:       definition.Title,
		CourseName:  strings.TrimSpace(s.sanitizer.Sanitize(req.CourseName)),
		Description: strings.TrimSpace(s.sanitizer.Sanitize(req.Description)),
		TotalScore:  definition.TotalScore,
		TimeLimit:   timeLimit,
		StartTime:   start,
		EndTime:     end,
	}
	for i, q := range definition.Questions {
		question := models.TestQuestion{
			Position:      i,
			Text:          q.Text,
			CorrectAnswer: q.CorrectAnswer,
			Score:         q.Score,
			CreatedByAI:   q.CreatedByAI,
		}
		question.SetOptions(q.Options)
		test.Questions = append(test.Questions, question)
	}
	for _, code := range normalizeGroupCodes(req.GroupCodes) {
		test.Groups = append(test.Groups, models.TestGroup{GroupCode: code})
	}
	if len(test.Groups) == 0 {
		return models.Test{}, apperrors.Validation("at least one group code is required")
	}

	return test, nil
}

func normalizeGroupCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}
	return normalized
}

func (s *testService) Create(ctx context.Context, actor ActivityActor, req dto.TestUpsertRequest) (dto.TestResponse, error) {
	test, err := s.build(req)
	if err != nil {
		return dto.TestResponse{}, err
	}
	test.CreatedBy = actor.ID

	if err := s.tests.Create(ctx, &test); err != nil {
		return dto.TestResponse{}, storeError(err, "create test")
	}

	s.logger.Info().Uint("test_id", test.ID).Int("questions", len(test.Questions)).Msg("test created")

	id := test.ID
	s.feed.publish(ctx, ActivityEntry{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    models.ActivityTestCreated,
		TestID:    &id,
		TestTitle: test.Title,
		Metadata:  map[string]interface{}{"groups": test.GroupCodes()},
	}, realtime.ActivityUpdate{})

	return dto.NewTestResponse(test, true, true), nil
}

func (s *testService) Update(ctx context.Context, actor ActivityActor, id uint, req dto.TestUpsertRequest) (dto.TestResponse, error) {
	existing, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return dto.TestResponse{}, lookupError(err, "test")
	}

	test, err := s.build(req)
	if err != nil {
		return dto.TestResponse{}, err
	}
	test.ID = existing.ID
	if req.StartTime == nil {
		test.StartTime = existing.StartTime
		if req.EndTime == nil {
			test.EndTime = existing.EndTime
		}
		if !test.EndTime.After(test.StartTime) {
			return dto.TestResponse{}, apperrors.Validation("end time must be after start time")
		}
	}

	if err := s.tests.Replace(ctx, &test); err != nil {
		return dto.TestResponse{}, storeError(err, "update test")
	}

	s.logger.Info().Uint("test_id", id).Uint("actor_id", actor.ID).Msg("test updated")
	return s.Get(ctx, id)
}

func (s *testService) SetGroups(ctx context.Context, id uint, req dto.TestGroupsRequest) (dto.TestResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.TestResponse{}, validationError(err)
	}
	codes := normalizeGroupCodes(req.GroupCodes)
	if len(codes) == 0 {
		return dto.TestResponse{}, apperrors.Validation("at least one group code is required")
	}

	if _, err := s.tests.GetByID(ctx, id); err != nil {
		return dto.TestResponse{}, lookupError(err, "test")
	}
	if err := s.tests.SetGroups(ctx, id, codes); err != nil {
		return dto.TestResponse{}, storeError(err, "assign groups")
	}
	return s.Get(ctx, id)
}

// Delete removes the test with its questions, groups, results and grants.
func (s *testService) Delete(ctx context.Context, actor ActivityActor, id uint) error {
	test, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return lookupError(err, "test")
	}
	if err := s.tests.Delete(ctx, id); err != nil {
		return storeError(err, "delete test")
	}

	s.logger.Info().Uint("test_id", id).Uint("actor_id", actor.ID).Msg("test deleted")
	s.feed.publish(ctx, ActivityEntry{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    models.ActivityTestDeleted,
		TestTitle: test.Title,
		Metadata:  map[string]interface{}{"test_id": id},
	}, realtime.ActivityUpdate{})
	return nil
}

// Get returns the full definition, correct answers included.
func (s *testService) Get(ctx context.Context, id uint) (dto.TestResponse, error) {
	test, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return dto.TestResponse{}, lookupError(err, "test")
	}
	return dto.NewTestResponse(test, true, true), nil
}

func (s *testService) List(ctx context.Context, req dto.TestListRequest) (dto.TestListResponse, error) {
	tests, total, err := s.tests.List(ctx, repository.TestFilter{
		GroupCode: strings.ToUpper(strings.TrimSpace(req.GroupCode)),
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if err != nil {
		return dto.TestListResponse{}, storeError(err, "list tests")
	}

	items := make([]dto.TestResponse, 0, len(tests))
	for _, test := range tests {
		items = append(items, dto.NewTestResponse(test, false, false))
	}
	return dto.TestListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

// ListForStudent returns the open tests of the student's group with their
// eligibility flags.
func (s *testService) ListForStudent(ctx context.Context, userID uint) ([]dto.StudentTestResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	if strings.TrimSpace(user.GroupCode) == "" {
		return []dto.StudentTestResponse{}, nil
	}

	now := s.now().UTC()
	tests, _, err := s.tests.List(ctx, repository.TestFilter{
		GroupCode: strings.ToUpper(strings.TrimSpace(user.GroupCode)),
		ActiveAt:  &now,
	})
	if err != nil {
		return nil, storeError(err, "list tests")
	}

	taken, err := s.results.TakenTests(ctx, user.ID)
	if err != nil {
		return nil, storeError(err, "read results")
	}
	granted, err := s.results.GrantedTests(ctx, user.ID)
	if err != nil {
		return nil, storeError(err, "read retake grants")
	}

	items := make([]dto.StudentTestResponse, 0, len(tests))
	for _, test := range tests {
		items = append(items, dto.StudentTestResponse{
			TestResponse:        dto.NewTestResponse(test, false, false),
			IsTaken:             taken[test.ID] && !granted[test.ID],
			HasRetakePermission: granted[test.ID],
		})
	}
	return items, nil
}

// Take returns the test with its questions but without correct answers.
func (s *testService) Take(ctx context.Context, userID, id uint) (dto.TestResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return dto.TestResponse{}, lookupError(err, "student")
	}
	test, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return dto.TestResponse{}, lookupError(err, "test")
	}
	if !assignedTo(test, user.GroupCode) {
		return dto.TestResponse{}, apperrors.Unauthorized("test is not assigned to your group")
	}
	if !test.Open(s.now().UTC()) {
		return dto.TestResponse{}, apperrors.Validation("test window closed")
	}
	return dto.NewTestResponse(test, true, false), nil
}
