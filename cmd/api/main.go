package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/database"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/router"
	"github.com/noah-isme/gema-exam-api/internal/scoring"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/pkg/ai"
)

const relayBuffer = 256

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-"+nodeID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	matchMode, err := scoring.ParseMatchMode(cfg.AnswerMatch)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid answer match mode")
	}
	scorer, err := scoring.NewScorer(scoring.Policy{PassThreshold: cfg.PassThreshold, Match: matchMode})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scoring policy")
	}

	var generator ai.QuestionGenerator
	if cfg.AIAPIKey != "" {
		openAI, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey:  cfg.AIAPIKey,
			BaseURL: cfg.AIBaseURL,
			Model:   cfg.AIModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create ai generator")
		}
		generator = openAI
	} else {
		logger.Warn().Msg("ai api key not set, test generation disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := realtime.NewRelay(relayBuffer, logger)
	registry := realtime.NewRegistry(relay, logger)
	bridge := realtime.NewBridge(relay, redisClient, natsConn, cfg.LiveChannel, nodeID, logger)
	bridge.Start(ctx)

	validate := validator.New(validator.WithRequiredStructEnabled())

	testRepo := repository.NewTestRepository(db)
	userRepo := repository.NewUserRepository(db)
	resultRepo := repository.NewResultRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	attemptTracker := service.NewAttemptTracker(redisClient, cfg.AttemptTTL, logger)
	eligibilityService := service.NewEligibilityService(resultRepo, userRepo, testRepo, attemptTracker, validate, activityService, bridge, logger)
	testService := service.NewTestService(testRepo, userRepo, resultRepo, validate, service.TestDefaults{
		TimeLimit: cfg.DefaultTimeLimit,
		Validity:  cfg.DefaultValidity,
	}, activityService, bridge, logger)
	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		Tests:       testRepo,
		Users:       userRepo,
		Results:     resultRepo,
		Eligibility: eligibilityService,
		Scorer:      scorer,
		Attempts:    attemptTracker,
		Presence:    registry,
		Activity:    activityService,
		Broadcaster: bridge,
		Validator:   validate,
	}, service.SubmissionConfig{
		Grace:               cfg.SubmissionGrace,
		ConsumeGrantOnStart: cfg.RetakeOnStart,
	}, logger)
	resultService := service.NewResultService(resultRepo, logger)
	adminStudentService := service.NewAdminStudentService(userRepo, resultService, activityService, bridge, logger)
	dashboardService := service.NewDashboardService(userRepo, testRepo, resultRepo, activityRepo, registry, redisClient, cfg.DashboardCacheTTL, logger)
	generatorService := service.NewGeneratorService(generator, validate, service.GeneratorConfig{
		Model:        cfg.AIModel,
		ContextLimit: cfg.AIContextLimit,
	}, logger)
	liveService := service.NewLiveSessionService(registry, relay, bridge, submissionService, userRepo, service.LiveConfig{
		PingInterval: cfg.LivePingInterval,
		PongTimeout:  cfg.LivePongTimeout,
		ReadLimit:    cfg.LiveReadLimit,
		EventRate:    cfg.LiveEventRate,
		EventBurst:   cfg.LiveEventBurst,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.AIMaxUploadBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		StudentTestHandler:    handler.NewStudentTestHandler(testService, submissionService, eligibilityService, logger),
		ResultHandler:         handler.NewResultHandler(resultService, logger),
		AdminTestHandler:      handler.NewAdminTestHandler(testService, generatorService, cfg.AIMaxUploadBytes, logger),
		AdminStudentHandler:   handler.NewAdminStudentHandler(adminStudentService, eligibilityService, logger),
		AdminActivityHandler:  handler.NewAdminActivityHandler(activityService, logger),
		AdminDashboardHandler: handler.NewAdminDashboardHandler(dashboardService, logger),
		LiveHandler:           handler.NewLiveHandler(liveService, logger),
		JWTMiddleware:         middleware.JWTProtected(cfg.JWTSecret),
		SubmitLimiter:         middleware.RateLimit("submit", 10, time.Minute),
		GenerateLimiter:       middleware.RateLimit("generate", 5, time.Minute),
		ExposeMetrics:         true,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)

	cancel()
	registry.Close()
	relay.Close()
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
