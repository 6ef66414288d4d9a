package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"optionsflow/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
	ChainSource   ChainSourceConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"optionsflow"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig is optional; the snapshot sink is only wired when Enabled
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"optionsflow"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig is optional; analysis events are only published when Enabled
type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Async   bool     `envconfig:"KAFKA_ASYNC" default:"false"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// ChainSourceConfig configures the upstream option-chain API
type ChainSourceConfig struct {
	BaseURL         string        `envconfig:"CHAIN_SOURCE_BASE_URL" default:"https://api.nasdaq.com"`
	AssetClass      string        `envconfig:"CHAIN_SOURCE_ASSET_CLASS" default:"stocks"`
	Limit           int           `envconfig:"CHAIN_SOURCE_LIMIT" default:"1000"`
	RequestTimeout  time.Duration `envconfig:"CHAIN_SOURCE_REQUEST_TIMEOUT" default:"15s"`
	RequestsPerMin  int           `envconfig:"CHAIN_SOURCE_REQUESTS_PER_MINUTE" default:"60"`
	BreakerFailures uint32        `envconfig:"CHAIN_SOURCE_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"CHAIN_SOURCE_BREAKER_COOLDOWN" default:"1m"`
	UserAgent       string        `envconfig:"CHAIN_SOURCE_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"`
}

// WorkerConfig contains the batch analysis schedule and its bounds
type WorkerConfig struct {
	Enabled          bool          `envconfig:"WORKER_ANALYSIS_ENABLED" default:"true"`
	AnalysisInterval time.Duration `envconfig:"WORKER_ANALYSIS_INTERVAL" default:"1h"`
	RunOnStart       bool          `envconfig:"WORKER_ANALYSIS_RUN_ON_START" default:"false"`
	MaxConcurrency   int           `envconfig:"WORKER_ANALYSIS_MAX_CONCURRENCY" default:"4"`
	TickerTimeout    time.Duration `envconfig:"WORKER_ANALYSIS_TICKER_TIMEOUT" default:"30s"`
	StoreTimeout     time.Duration `envconfig:"WORKER_ANALYSIS_STORE_TIMEOUT" default:"15s"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

// LoadSection fills a single config section from the environment.
// Command-line tools use it to avoid requiring settings of stores they never open.
func LoadSection(section interface{}) error {
	_ = godotenv.Load()

	if err := envconfig.Process("", section); err != nil {
		return errors.Wrap(err, "failed to process env config section")
	}

	return nil
}
