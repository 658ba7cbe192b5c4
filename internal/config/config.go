package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultEnvFile is read when present. Values it defines are exported into the
// process environment before the struct is filled.
const DefaultEnvFile = ".env"

// Config holds configuration for the prediction service.
type Config struct {
	HTTP         HTTPConfig
	Database     DatabaseConfig
	Model        ModelConfig
	Limits       LimitsConfig
	Logging      LoggingConfig
	Redis        RedisConfig
	Cache        CacheConfig
	RateLimit    RateLimitConfig
	AuditArchive AuditArchiveConfig

	// APIKey is the static shared secret. Empty disables authentication.
	APIKey string `env:"API_KEY" env-default:""`
	Debug  bool   `env:"DEBUG" env-default:"false"`
}

// HTTPConfig holds listener settings
type HTTPConfig struct {
	Port            string        `env:"HTTP_PORT" env-default:"8000"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"60s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" env-required:"true"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" env-default:"1m"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" env-default:"true"`
}

// ModelConfig points at the model artifact and its descriptive metadata
type ModelConfig struct {
	ArtifactPath string `env:"MODEL_ARTIFACT_PATH" env-default:"model/energy_rf.json"`
	CardPath     string `env:"MODEL_CARD_PATH" env-default:"model/model_card.json"`
	Name         string `env:"MODEL_NAME" env-default:"sklearn-random-forest"`
	// Version defaults to <build date>_rf_v1 when left empty.
	Version string `env:"MODEL_VERSION" env-default:""`
}

// LimitsConfig bounds request sizes and inference time
type LimitsConfig struct {
	MaxSingleRequestSizeKB  int `env:"MAX_SINGLE_REQUEST_SIZE_KB" env-default:"16"`
	MaxBatchRequestSizeMB   int `env:"MAX_BATCH_REQUEST_SIZE_MB" env-default:"1"`
	MaxBatchSize            int `env:"MAX_BATCH_SIZE" env-default:"512"`
	BatchConcurrency        int `env:"BATCH_CONCURRENCY" env-default:"8"`
	InferenceTimeoutSeconds int `env:"INFERENCE_TIMEOUT_SECONDS" env-default:"5"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"INFO"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// RedisConfig holds Redis connection settings. An empty address disables Redis.
type RedisConfig struct {
	Address      string        `env:"REDIS_ADDRESS" env-default:""`
	Password     string        `env:"REDIS_PASSWORD" env-default:""`
	DB           int           `env:"REDIS_DB" env-default:"0"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

// CacheConfig holds settings for the ledger lookup cache
type CacheConfig struct {
	LookupCacheSize int           `env:"LOOKUP_CACHE_SIZE" env-default:"1000"`
	LookupCacheTTL  time.Duration `env:"LOOKUP_CACHE_TTL" env-default:"10m"`
}

// RateLimitConfig holds the per-caller request budget. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `env:"RATE_LIMIT_PER_MINUTE" env-default:"0"`
}

// AuditArchiveConfig holds configuration for shipping finished ledger records to S3
type AuditArchiveConfig struct {
	Enabled       bool          `env:"AUDIT_ARCHIVE_ENABLED" env-default:"false"`
	BufferSize    int           `env:"AUDIT_ARCHIVE_BUFFER_SIZE" env-default:"10000"`
	FlushSize     int           `env:"AUDIT_ARCHIVE_FLUSH_SIZE" env-default:"500"`
	FlushInterval time.Duration `env:"AUDIT_ARCHIVE_FLUSH_INTERVAL" env-default:"1m"`
	MaxRetries    int           `env:"AUDIT_ARCHIVE_MAX_RETRIES" env-default:"3"`
	UseRedis      bool          `env:"AUDIT_ARCHIVE_USE_REDIS" env-default:"false"`
	S3Bucket      string        `env:"AUDIT_ARCHIVE_S3_BUCKET" env-default:""`
	S3Region      string        `env:"AUDIT_ARCHIVE_S3_REGION" env-default:"us-east-1"`
	S3Prefix      string        `env:"AUDIT_ARCHIVE_S3_PREFIX" env-default:"audit/"`
	PodName       string        `env:"POD_NAME" env-default:"eui-gateway-0"`
}

// Load reads configuration from the given env file (if it exists) and the environment.
func Load(envFile string) (*Config, error) {
	cfg := &Config{}

	var err error
	if envFile != "" && fileExists(envFile) {
		err = cleanenv.ReadConfig(envFile, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg.Database.URL = NormalizeDatabaseURL(cfg.Database.URL)
	if cfg.Model.Version == "" {
		cfg.Model.Version = DefaultModelVersion(time.Now())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLogging reads only the logging settings, for commands that need no database.
func LoadLogging(envFile string) (LoggingConfig, error) {
	var lc LoggingConfig
	var err error
	if envFile != "" && fileExists(envFile) {
		err = cleanenv.ReadConfig(envFile, &lc)
	} else {
		err = cleanenv.ReadEnv(&lc)
	}
	if err != nil {
		return LoggingConfig{}, fmt.Errorf("failed to read logging configuration: %w", err)
	}
	return lc, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Limits.MaxSingleRequestSizeKB <= 0 {
		errs = append(errs, errors.New("MAX_SINGLE_REQUEST_SIZE_KB must be positive"))
	}
	if c.Limits.MaxBatchRequestSizeMB <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_REQUEST_SIZE_MB must be positive"))
	}
	if c.Limits.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_SIZE must be positive"))
	}
	if c.Limits.BatchConcurrency <= 0 {
		errs = append(errs, errors.New("BATCH_CONCURRENCY must be positive"))
	}
	if c.Limits.InferenceTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("INFERENCE_TIMEOUT_SECONDS must be positive"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.Redis.Address == "" {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE requires REDIS_ADDRESS"))
	}
	if c.AuditArchive.Enabled && c.AuditArchive.S3Bucket == "" {
		errs = append(errs, errors.New("AUDIT_ARCHIVE_S3_BUCKET is required when the audit archive is enabled"))
	}
	if c.AuditArchive.UseRedis && c.Redis.Address == "" {
		errs = append(errs, errors.New("AUDIT_ARCHIVE_USE_REDIS requires REDIS_ADDRESS"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// MaxSingleRequestBytes is the body limit for single predictions.
func (l LimitsConfig) MaxSingleRequestBytes() int64 {
	return int64(l.MaxSingleRequestSizeKB) * 1024
}

// MaxBatchRequestBytes is the body limit for batch predictions.
func (l LimitsConfig) MaxBatchRequestBytes() int64 {
	return int64(l.MaxBatchRequestSizeMB) * 1024 * 1024
}

// InferenceTimeout returns the per-item inference deadline.
func (l LimitsConfig) InferenceTimeout() time.Duration {
	return time.Duration(l.InferenceTimeoutSeconds) * time.Second
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Address != ""
}

// NormalizeDatabaseURL rewrites the postgres:// shorthand to postgresql://.
func NormalizeDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(raw, "postgres://")
	}
	return raw
}

// DefaultModelVersion builds the YYYYMMDD_rf_v1 version string.
func DefaultModelVersion(now time.Time) string {
	return now.Format("20060102") + "_rf_v1"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
