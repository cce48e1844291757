package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"beehive/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ClickHouse    ClickHouseConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
	Rewards       RewardsConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"beehive"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"beehive"`
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"beehive"`
}

type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true"`
	Port    int  `envconfig:"METRICS_PORT" default:"9090"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// RewardsConfig centralizes every business time window of the reward engine.
// Pending rewards expire after PendingTimeout; a reward reissued by rollup
// must be claimed within RollupClaimWindow; a member placed under upgrade
// pressure has UpgradeGracePeriod to reach the target level.
type RewardsConfig struct {
	PendingTimeout     time.Duration `envconfig:"REWARD_PENDING_TIMEOUT" default:"72h"`
	RollupClaimWindow  time.Duration `envconfig:"REWARD_ROLLUP_CLAIM_WINDOW" default:"24h"`
	UpgradeGracePeriod time.Duration `envconfig:"REWARD_UPGRADE_GRACE_PERIOD" default:"168h"`
	MaxLayers          int           `envconfig:"REWARD_MAX_LAYERS" default:"19"`

	// AnalyticsWindow bounds the trailing window for rollup analytics.
	AnalyticsWindow time.Duration `envconfig:"REWARD_ANALYTICS_WINDOW" default:"720h"`

	// CrossMatrixCandidateLimit caps how many qualified members the
	// cross-matrix rollup strategy inspects per expired reward.
	CrossMatrixCandidateLimit int `envconfig:"REWARD_CROSS_MATRIX_CANDIDATE_LIMIT" default:"10"`

	// SweepRatePerSecond paces per-record rollup searches during a sweep.
	SweepRatePerSecond float64 `envconfig:"REWARD_SWEEP_RATE_PER_SECOND" default:"50"`

	// SweepLockTTL bounds how long one sweep run may hold the advisory lock.
	SweepLockTTL time.Duration `envconfig:"REWARD_SWEEP_LOCK_TTL" default:"10m"`

	// ClaimableCacheTTL bounds the per-wallet claimable summary cache.
	ClaimableCacheTTL time.Duration `envconfig:"REWARD_CLAIMABLE_CACHE_TTL" default:"30s"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	TimeoutSweepInterval time.Duration `envconfig:"WORKER_TIMEOUT_SWEEP_INTERVAL" default:"5m"`
	TimeoutSweepEnabled  bool          `envconfig:"WORKER_TIMEOUT_SWEEP_ENABLED" default:"true"`
}

// Load reads configuration from the environment, honoring a local .env file
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
