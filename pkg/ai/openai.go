package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI question generation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of AI question generation failures",
	}, []string{"model", "reason"})
)

// OpenAIConfig configures an OpenAI-compatible chat completion provider.
// BaseURL points it at compatible services such as DeepSeek.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// OpenAIGenerator implements QuestionGenerator against the chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-exam-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIGenerator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "ai_generator").Logger(),
	}, nil
}

// Model returns the configured model name.
func (g *OpenAIGenerator) Model() string {
	return g.cfg.Model
}

// Generate asks the provider for a question set and validates its shape.
func (g *OpenAIGenerator) Generate(parent context.Context, input GenerationInput) (GenerationResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("question_count", input.Count),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: generatorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model, "transport").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GenerationResult{}, fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
		aiFailures.WithLabelValues(g.cfg.Model, "malformed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GenerationResult{}, err
	}

	result, err := ParseQuestionSet(resp.Choices[0].Message.Content)
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model, "malformed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Msg("provider returned an unusable question set")
		return GenerationResult{}, err
	}

	result.Model = g.cfg.Model
	span.SetAttributes(attribute.Int("questions_returned", len(result.Questions)))
	return result, nil
}

func generatorSystemPrompt() string {
	return "You are an experienced examiner writing multiple-choice tests for a training centre. " +
		"Respond only with a JSON object of the form " +
		`{"title": "...", "questions": [{"text": "...", "options": ["...", "...", "...", "..."], "correctAnswer": "...", "score": 5}]}. ` +
		"Every question has exactly four options and correctAnswer repeats the full text of one of them."
}

func buildUserPrompt(input GenerationInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Course\n")
	builder.WriteString(orDefault(input.CourseName, "General"))
	builder.WriteString("\n\n## Topic\n")
	builder.WriteString(input.Topic)
	if input.Context != "" {
		builder.WriteString("\n\n## Source material\n")
		builder.WriteString(input.Context)
	}
	builder.WriteString(fmt.Sprintf("\n\n## Questions\n%d", input.Count))
	builder.WriteString("\n\n## Difficulty\n")
	builder.WriteString(orDefault(input.Difficulty, "medium"))
	builder.WriteString("\n\n## Level\n")
	builder.WriteString(orDefault(input.GradeLevel, "any"))
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(orDefault(input.Language, "English"))
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
