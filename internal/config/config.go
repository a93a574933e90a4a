// Package config loads crawl configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Platform endpoint
	BaseURL string `env:"XHS_BASE_URL" envDefault:"https://edith.xiaohongshu.com"`

	// Input / output
	InputPath      string `env:"XHS_INPUT_PATH" envDefault:"input.json"`
	OutputDir      string `env:"XHS_OUTPUT_DIR" envDefault:"./output"`
	CredentialPath string `env:"XHS_CREDENTIAL_PATH" envDefault:"cookies.json"`
	ProgressPath   string `env:"XHS_PROGRESS_PATH" envDefault:"progress.json"`
	TaskID         string `env:"XHS_TASK_ID"`

	// Credential pool
	RotationStrategy   string `env:"XHS_ROTATION_STRATEGY" envDefault:"round_robin"`
	DailyCap           int    `env:"XHS_DAILY_CAP" envDefault:"0"`
	MinIntervalSeconds int    `env:"XHS_MIN_INTERVAL_SECONDS" envDefault:"0"`

	// Retry / backoff thresholds (spec.md §9 Open Questions, made configurable)
	SoftCooldownThreshold int           `env:"XHS_SOFT_COOLDOWN_THRESHOLD" envDefault:"3"`
	HardDisableThreshold  int           `env:"XHS_HARD_DISABLE_THRESHOLD" envDefault:"10"`
	MaxCredentialAttempts int           `env:"XHS_MAX_CREDENTIAL_ATTEMPTS" envDefault:"3"`
	MaxWaitRounds         int           `env:"XHS_MAX_WAIT_ROUNDS" envDefault:"3"`
	CooldownWait          time.Duration `env:"XHS_COOLDOWN_WAIT" envDefault:"10s"`
	MaxLevel              int           `env:"XHS_MAX_LEVEL" envDefault:"10"`
	TopPageDelay          time.Duration `env:"XHS_TOP_PAGE_DELAY" envDefault:"500ms"`
	SubPageDelay          time.Duration `env:"XHS_SUB_PAGE_DELAY" envDefault:"3s"`

	// HTTP
	RequestTimeout time.Duration `env:"XHS_REQUEST_TIMEOUT" envDefault:"15s"`

	// Admin/status HTTP surface
	Host string `env:"XHS_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"XHS_PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Optional Postgres progress mirror (disabled when unset)
	DatabaseURL         string `env:"DATABASE_URL"`
	MigrationsDir       string `env:"XHS_MIGRATIONS_DIR" envDefault:"migrations"`

	// Optional Redis cross-process credential lock (disabled when unset)
	RedisURL string `env:"REDIS_URL"`

	// Optional failure notifications (disabled when unset)
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
	MattermostURL         string `env:"MATTERMOST_URL"`
	MattermostBotToken    string `env:"MATTERMOST_BOT_TOKEN"`
	MattermostChannelID   string `env:"MATTERMOST_DEFAULT_CHANNEL_ID"`

	// CORS for the status HTTP surface
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the status HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
