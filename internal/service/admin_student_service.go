package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// AdminStudentService orchestrates admin student management use cases.
type AdminStudentService interface {
	List(ctx context.Context, req dto.AdminStudentListRequest) (dto.AdminStudentListResponse, error)
	Get(ctx context.Context, id uint) (dto.StudentResponse, error)
	Results(ctx context.Context, id uint, req dto.ResultListRequest) (dto.ResultListResponse, error)
	Delete(ctx context.Context, actor ActivityActor, id uint) error
}

type adminStudentService struct {
	users   repository.UserRepository
	results ResultService
	feed    activityFeed
	logger  zerolog.Logger
}

// NewAdminStudentService constructs the admin student service.
func NewAdminStudentService(users repository.UserRepository, results ResultService, activity ActivityRecorder, broadcaster realtime.Broadcaster, logger zerolog.Logger) AdminStudentService {
	logger = logger.With().Str("component", "admin_student_service").Logger()
	return &adminStudentService{
		users:   users,
		results: results,
		feed:    activityFeed{recorder: activity, broadcaster: broadcaster, logger: logger},
		logger:  logger,
	}
}

func (s *adminStudentService) List(ctx context.Context, req dto.AdminStudentListRequest) (dto.AdminStudentListResponse, error) {
	users, total, err := s.users.List(ctx, repository.UserFilter{
		Role:      models.RoleStudent,
		GroupCode: strings.TrimSpace(req.GroupCode),
		Search:    strings.TrimSpace(req.Search),
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if err != nil {
		return dto.AdminStudentListResponse{}, storeError(err, "list students")
	}

	responses := make([]dto.StudentResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, dto.NewStudentResponse(user))
	}

	return dto.AdminStudentListResponse{
		Items:      responses,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *adminStudentService) Get(ctx context.Context, id uint) (dto.StudentResponse, error) {
	user, err := s.student(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, err
	}
	return dto.NewStudentResponse(user), nil
}

func (s *adminStudentService) student(ctx context.Context, id uint) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, lookupError(err, "student")
	}
	if user.Role != models.RoleStudent {
		return models.User{}, apperrors.NotFound("student")
	}
	return user, nil
}

// Results lists a student's results with correct answers revealed.
func (s *adminStudentService) Results(ctx context.Context, id uint, req dto.ResultListRequest) (dto.ResultListResponse, error) {
	if _, err := s.student(ctx, id); err != nil {
		return dto.ResultListResponse{}, err
	}
	req.UserID = id
	return s.results.List(ctx, req)
}

// Delete removes the student together with their results and grants.
func (s *adminStudentService) Delete(ctx context.Context, actor ActivityActor, id uint) error {
	user, err := s.student(ctx, id)
	if err != nil {
		return err
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return storeError(err, "delete student")
	}

	s.logger.Info().Uint("student_id", user.ID).Uint("actor_id", actor.ID).Msg("student deleted")
	s.feed.publish(ctx, ActivityEntry{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    models.ActivityUserDeleted,
		Metadata: map[string]interface{}{
			"student_id":   user.ID,
			"student_name": user.FullName(),
			"group_code":   user.GroupCode,
		},
	}, realtime.ActivityUpdate{StudentID: user.ID, StudentName: user.FullName()})
	return nil
}
