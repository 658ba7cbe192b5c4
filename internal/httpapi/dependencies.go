package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/auth"
	"github.com/Septimus4/Futurisys/internal/config"
	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/inference"
	"github.com/Septimus4/Futurisys/internal/ledger"
	"github.com/Septimus4/Futurisys/internal/logging"
	"github.com/Septimus4/Futurisys/internal/prediction"
	"github.com/Septimus4/Futurisys/internal/queue"
	"github.com/Septimus4/Futurisys/internal/ratelimit"
	"github.com/Septimus4/Futurisys/internal/storage"
)

// APIVersion is reported in the OpenAPI document.
const APIVersion = "0.1.0"

// cacheCleanupInterval is how often expired in-process lookup cache entries are dropped.
const cacheCleanupInterval = time.Minute

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Service *prediction.Service
	// APIKeys is nil when authentication is disabled.
	APIKeys auth.APIKeyStore
	// RateLimit is nil when rate limiting is disabled.
	RateLimit             ratelimit.Limiter
	Logger                *zap.Logger
	MaxSingleRequestBytes int64
	Version               string

	DB    *storage.DB
	Redis *redis.Client
	Sink  logging.Sink

	stopCleanup context.CancelFunc
}

// NewDependencies connects to the database and Redis, loads the model and
// wires the ledger and prediction service. A model that fails to load is
// logged and leaves the service unready instead of failing start-up.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (deps *Dependencies, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps = &Dependencies{
		Logger:                logger,
		MaxSingleRequestBytes: cfg.Limits.MaxSingleRequestBytes(),
		Version:               APIVersion,
		Sink:                  logging.NewNoopSink(),
	}
	defer func() {
		if err != nil {
			deps.Close(context.Background())
			deps = nil
		}
	}()

	// The model is loaded first: without it the service cannot start
	engine, err := loadEngine(cfg, logger)
	if err != nil {
		return deps, err
	}

	// Initialize database
	deps.DB, err = storage.NewDB(ctx, storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return deps, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err = storage.RunMigrations(ctx, deps.DB, logger); err != nil {
			return deps, err
		}
	}

	// Initialize Redis client
	if cfg.RedisEnabled() {
		deps.Redis, err = storage.NewRedisClient(ctx, storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return deps, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	opts := []ledger.Option{ledger.WithCache(deps.lookupCache(cfg))}

	if cfg.AuditArchive.Enabled {
		sink, sinkErr := deps.auditSink(ctx, cfg)
		if sinkErr != nil {
			return deps, sinkErr
		}
		deps.Sink = sink
		opts = append(opts, ledger.WithSink(sink))
	}

	if cfg.APIKey != "" {
		deps.APIKeys = auth.NewStaticKeyStore(cfg.APIKey)
	} else {
		logger.Warn("API_KEY is empty; prediction endpoints are unauthenticated")
	}
	if cfg.RateLimit.RequestsPerMinute > 0 && deps.Redis != nil {
		deps.RateLimit = ratelimit.NewRateLimiter(deps.Redis, cfg.RateLimit.RequestsPerMinute, ratelimit.DefaultWindow)
	}

	l := ledger.New(deps.DB.NewLedgerRepository(), logger.Named("ledger"), opts...)
	deps.Service = prediction.NewService(features.NewValidator(), engine, l, prediction.Limits{
		MaxBatchBytes: int(cfg.Limits.MaxBatchRequestBytes()),
		MaxBatchSize:  cfg.Limits.MaxBatchSize,
		Concurrency:   cfg.Limits.BatchConcurrency,
	}, logger.Named("prediction"))

	return deps, nil
}

// lookupCache prefers Redis so replicas share cached lookups.
func (d *Dependencies) lookupCache(cfg *config.Config) ledger.Cache {
	if d.Redis != nil {
		return storage.NewRedisLookupCache(d.Redis, cfg.Cache.LookupCacheTTL, d.Logger)
	}

	cache := storage.NewLookupCache(cfg.Cache.LookupCacheSize, cfg.Cache.LookupCacheTTL)
	ctx, cancel := context.WithCancel(context.Background())
	d.stopCleanup = cancel
	go func() {
		ticker := time.NewTicker(cacheCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := cache.CleanupExpired(); n > 0 {
					d.Logger.Debug("Expired lookup cache entries removed", zap.Int("count", n))
				}
			}
		}
	}()
	return cache
}

func (d *Dependencies) auditSink(ctx context.Context, cfg *config.Config) (*logging.S3Sink, error) {
	archive := cfg.AuditArchive
	writer, err := logging.NewS3Writer(ctx, archive.S3Bucket, archive.S3Region, archive.S3Prefix, archive.PodName, d.Logger)
	if err != nil {
		return nil, err
	}

	queueCfg := queue.DefaultConfig("audit")
	queueCfg.BufferSize = archive.BufferSize
	queueCfg.BatchSize = archive.FlushSize
	queueCfg.MaxRetries = archive.MaxRetries

	var (
		q   queue.Queue
		dlq queue.DeadLetterQueue
	)
	if archive.UseRedis && d.Redis != nil {
		if q, err = queue.NewRedisQueue(d.Redis, queueCfg); err != nil {
			return nil, fmt.Errorf("failed to create audit queue: %w", err)
		}
		if dlq, err = queue.NewRedisDeadLetterQueue(d.Redis, queueCfg); err != nil {
			return nil, fmt.Errorf("failed to create audit DLQ: %w", err)
		}
	} else {
		q = queue.NewMemoryQueue(queueCfg)
		dlq = queue.NewMemoryDeadLetterQueue()
	}

	return logging.NewS3Sink(q, dlq, writer, logging.S3SinkConfig{
		BufferSize:    archive.BufferSize,
		FlushSize:     archive.FlushSize,
		FlushInterval: archive.FlushInterval,
		MaxRetries:    archive.MaxRetries,
		S3Bucket:      archive.S3Bucket,
		S3Region:      archive.S3Region,
		S3Prefix:      archive.S3Prefix,
		PodName:       archive.PodName,
	}, d.Logger), nil
}

func loadEngine(cfg *config.Config, logger *zap.Logger) (*inference.Adapter, error) {
	fallback := inference.ModelInfo{
		Name:         cfg.Model.Name,
		Version:      cfg.Model.Version,
		ArtifactPath: cfg.Model.ArtifactPath,
	}
	forest, err := inference.LoadArtifact(cfg.Model.ArtifactPath, cfg.Model.CardPath, fallback)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifact %s: %w", cfg.Model.ArtifactPath, err)
	}

	info := forest.Info()
	logger.Info("Model artifact loaded",
		zap.String("model", info.Name),
		zap.String("version", info.Version),
		zap.String("artifact", info.ArtifactPath),
		zap.Int("trees", forest.Trees()))
	return inference.NewAdapter(forest, cfg.Limits.InferenceTimeout()), nil
}

// Close flushes the audit sink and releases connections.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.stopCleanup != nil {
		d.stopCleanup()
	}
	if d.Sink != nil {
		if err := d.Sink.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down audit sink: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
