package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the exam API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	NodeID      string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	PassThreshold     int
	AnswerMatch       string
	RetakeOnStart     bool
	SubmissionGrace   time.Duration
	AttemptTTL        time.Duration
	DefaultTimeLimit  int
	DefaultValidity   time.Duration
	DashboardCacheTTL time.Duration

	LiveChannel      string
	LivePingInterval time.Duration
	LivePongTimeout  time.Duration
	LiveReadLimit    int64
	LiveEventRate    float64
	LiveEventBurst   int

	AIBaseURL        string
	AIAPIKey         string
	AIModel          string
	AITimeout        time.Duration
	AIContextLimit   int
	AIMaxUploadBytes int64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Exam API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("scoring.pass_threshold", 50)
	v.SetDefault("scoring.answer_match", "normalized")
	v.SetDefault("retake.consume_on_start", false)
	v.SetDefault("submission.grace", "2m")
	v.SetDefault("attempt.ttl", "24h")
	v.SetDefault("test.default_time_limit", 30)
	v.SetDefault("test.default_validity", "720h")
	v.SetDefault("dashboard.cache_ttl", "1m")
	v.SetDefault("live.channel", "gema:live")
	v.SetDefault("live.ping_interval", "25s")
	v.SetDefault("live.pong_timeout", "60s")
	v.SetDefault("live.read_limit", 2<<20)
	v.SetDefault("live.event_rate", 20)
	v.SetDefault("live.event_burst", 40)
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.context_limit", 5000)
	v.SetDefault("ai.max_upload_bytes", 10<<20)

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		NodeID:           v.GetString("node.id"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		PassThreshold:    v.GetInt("scoring.pass_threshold"),
		AnswerMatch:      strings.ToLower(v.GetString("scoring.answer_match")),
		RetakeOnStart:    v.GetBool("retake.consume_on_start"),
		DefaultTimeLimit: v.GetInt("test.default_time_limit"),
		LiveChannel:      v.GetString("live.channel"),
		LiveReadLimit:    v.GetInt64("live.read_limit"),
		LiveEventRate:    v.GetFloat64("live.event_rate"),
		LiveEventBurst:   v.GetInt("live.event_burst"),
		AIBaseURL:        v.GetString("ai.base_url"),
		AIAPIKey:         v.GetString("ai.api_key"),
		AIModel:          v.GetString("ai.model"),
		AIContextLimit:   v.GetInt("ai.context_limit"),
		AIMaxUploadBytes: v.GetInt64("ai.max_upload_bytes"),
	}

	durations["submission.grace"] = &cfg.SubmissionGrace
	durations["attempt.ttl"] = &cfg.AttemptTTL
	durations["test.default_validity"] = &cfg.DefaultValidity
	durations["dashboard.cache_ttl"] = &cfg.DashboardCacheTTL
	durations["live.ping_interval"] = &cfg.LivePingInterval
	durations["live.pong_timeout"] = &cfg.LivePongTimeout
	durations["ai.timeout"] = &cfg.AITimeout

	for key, target := range durations {
		value, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = value
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.PassThreshold < 0 || cfg.PassThreshold > 100 {
		return Config{}, fmt.Errorf("pass threshold must be within 0..100")
	}

	if cfg.LivePongTimeout <= cfg.LivePingInterval {
		return Config{}, fmt.Errorf("live pong timeout must exceed the ping interval")
	}

	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = 30
	}

	return cfg, nil
}
