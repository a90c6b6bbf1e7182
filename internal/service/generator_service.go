package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
	"github.com/noah-isme/gema-exam-api/pkg/ai"
)

const defaultGeneratedCount = 10

// GeneratorService drafts tests with an AI provider. Drafts are returned for
// review and never stored.
type GeneratorService interface {
	Generate(ctx context.Context, req dto.GenerateTestRequest, document []byte) (dto.GeneratedTestResponse, error)
}

// GeneratorConfig bounds the material sent to the provider.
type GeneratorConfig struct {
	Provider     string
	Model        string
	ContextLimit int
}

type generatorService struct {
	generator ai.QuestionGenerator
	validator *validator.Validate
	cfg       GeneratorConfig
	logger    zerolog.Logger
}

// NewGeneratorService constructs the AI draft service. A nil generator makes
// every call fail with an Upstream error.
func NewGeneratorService(generator ai.QuestionGenerator, validate *validator.Validate, cfg GeneratorConfig, logger zerolog.Logger) GeneratorService {
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = 5000
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	return &generatorService{
		generator: generator,
		validator: validate,
		cfg:       cfg,
		logger:    logger.With().Str("component", "generator_service").Logger(),
	}
}

func (s *generatorService) Generate(ctx context.Context, req dto.GenerateTestRequest, document []byte) (dto.GeneratedTestResponse, error) {
	if len(document) > 0 {
		text, err := ai.ExtractText(document)
		if err != nil {
			if errors.Is(err, ai.ErrUnsupportedDocument) {
				return dto.GeneratedTestResponse{}, apperrors.Validation("unsupported document type")
			}
			return dto.GeneratedTestResponse{}, apperrors.Validation("document could not be read")
		}
		req.Context = strings.TrimSpace(req.Context + "\n\n" + text)
	}

	if err := s.validator.Struct(req); err != nil {
		return dto.GeneratedTestResponse{}, validationError(err)
	}
	if s.generator == nil {
		return dto.GeneratedTestResponse{}, apperrors.Upstream("ai provider is not configured", nil)
	}

	count := req.QuestionCount
	if count <= 0 {
		count = defaultGeneratedCount
	}

	result, err := s.generator.Generate(ctx, ai.GenerationInput{
		Topic:      strings.TrimSpace(req.Topic),
		Context:    ai.Truncate(strings.TrimSpace(req.Context), s.cfg.ContextLimit),
		CourseName: strings.TrimSpace(req.CourseName),
		GradeLevel: strings.TrimSpace(req.GradeLevel),
		Difficulty: req.Difficulty,
		Language:   req.Language,
		Count:      count,
	})
	if err != nil {
		if errors.Is(err, ai.ErrMalformedResponse) {
			return dto.GeneratedTestResponse{}, apperrors.Validation("ai response was not a valid question set")
		}
		s.logger.Error().Err(err).Msg("ai generation failed")
		return dto.GeneratedTestResponse{}, apperrors.Upstream("ai provider unavailable", err)
	}

	questions := make([]dto.QuestionRequest, 0, len(result.Questions))
	for i, generated := range result.Questions {
		score := generated.Score
		if req.ScorePerItem != nil {
			score = req.ScorePerItem
		}
		question, err := scoring.NewQuestion(scoring.QuestionInput{
			Text:          generated.Text,
			Options:       generated.Options,
			CorrectAnswer: generated.CorrectAnswer,
			Score:         score,
			CreatedByAI:   true,
		})
		if err != nil {
			s.logger.Warn().Err(err).Int("index", i).Msg("discarding generated question")
			return dto.GeneratedTestResponse{}, apperrors.Validation("ai response was not a valid question set: %s", apperrors.Message(err))
		}
		weight := question.Score
		questions = append(questions, dto.QuestionRequest{
			Text:          question.Text,
			Options:       question.Options,
			CorrectAnswer: question.CorrectAnswer,
			Score:         &weight,
			CreatedByAI:   true,
		})
	}
	if len(questions) == 0 {
		return dto.GeneratedTestResponse{}, apperrors.Validation("ai response contained no questions")
	}

	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = strings.TrimSpace(req.Topic)
	}

	model := result.Model
	if model == "" {
		model = s.cfg.Model
	}

	return dto.GeneratedTestResponse{
		Title:     title,
		Questions: questions,
		Provider:  s.cfg.Provider,
		Model:     model,
	}, nil
}
