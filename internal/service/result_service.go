package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// Viewer identifies who is reading a result.
type Viewer struct {
	ID   uint
	Role string
}

func (v Viewer) isAdmin() bool {
	return v.Role == models.RoleAdmin
}

// ResultService exposes stored results to students and admins.
type ResultService interface {
	Get(ctx context.Context, viewer Viewer, id uint) (dto.ResultResponse, error)
	ListMine(ctx context.Context, userID uint, req dto.ResultListRequest) (dto.ResultListResponse, error)
	List(ctx context.Context, req dto.ResultListRequest) (dto.ResultListResponse, error)
}

type resultService struct {
	results repository.ResultRepository
	logger  zerolog.Logger
}

// NewResultService constructs the result service.
func NewResultService(results repository.ResultRepository, logger zerolog.Logger) ResultService {
	return &resultService{
		results: results,
		logger:  logger.With().Str("component", "result_service").Logger(),
	}
}

// Get returns one result. Students may only read their own, and never see the
// correct answers.
func (s *resultService) Get(ctx context.Context, viewer Viewer, id uint) (dto.ResultResponse, error) {
	result, err := s.results.GetByID(ctx, id)
	if err != nil {
		return dto.ResultResponse{}, lookupError(err, "result")
	}

	if !viewer.isAdmin() && result.UserID != viewer.ID {
		s.logger.Warn().Uint("viewer_id", viewer.ID).Uint("result_id", id).Msg("blocked foreign result access")
		return dto.ResultResponse{}, apperrors.Unauthorized("result belongs to another student")
	}

	return dto.NewResultResponse(result, true, viewer.isAdmin()), nil
}

func (s *resultService) ListMine(ctx context.Context, userID uint, req dto.ResultListRequest) (dto.ResultListResponse, error) {
	req.UserID = userID
	return s.list(ctx, req, false)
}

func (s *resultService) List(ctx context.Context, req dto.ResultListRequest) (dto.ResultListResponse, error) {
	return s.list(ctx, req, true)
}

func (s *resultService) list(ctx context.Context, req dto.ResultListRequest, admin bool) (dto.ResultListResponse, error) {
	filter := repository.ResultFilter{Page: req.Page, PageSize: req.PageSize}
	if req.UserID > 0 {
		filter.UserID = &req.UserID
	}
	if req.TestID > 0 {
		filter.TestID = &req.TestID
	}

	results, total, err := s.results.List(ctx, filter)
	if err != nil {
		return dto.ResultListResponse{}, storeError(err, "list results")
	}

	items := make([]dto.ResultResponse, 0, len(results))
	for _, result := range results {
		items = append(items, dto.NewResultResponse(result, admin, admin))
	}

	return dto.ResultListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}
