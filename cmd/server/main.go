package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kosarica/chunk-service/config"
	_ "github.com/kosarica/chunk-service/docs"
	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/cache"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/kosarica/chunk-service/internal/generation"
	"github.com/kosarica/chunk-service/internal/handlers"
	apphttp "github.com/kosarica/chunk-service/internal/http"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/jobs"
	"github.com/kosarica/chunk-service/internal/metrics"
	"github.com/kosarica/chunk-service/internal/middleware"
	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/kosarica/chunk-service/internal/storage"
	"github.com/kosarica/chunk-service/internal/sweepers"
	"github.com/kosarica/chunk-service/internal/taskqueue"
	"github.com/kosarica/chunk-service/internal/telemetry"
	"github.com/kosarica/chunk-service/internal/workers"
)

const userAgent = "chunk-service/1.0"

// @title Chunk Service API
// @version 1.0
// @description Queues text chunks, processes them against a rate-limited text-generation service, and delivers joined job results to webhooks.
// @BasePath /
// @securityDefinitions.apikey AdminKey
// @in header
// @name X-Admin-API-Key
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting chunk service")

	if cfg.Database.URL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.Telemetry))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	pool, err := database.Connect(ctx, cfg.Database.URL, database.PoolConfig{
		MaxConns:    cfg.Database.MaxConnections,
		MinConns:    cfg.Database.MinConnections,
		MaxLifetime: cfg.Database.MaxConnLifetime,
		MaxIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	logger.Info().Msg("Database connected")

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	app, err := buildApp(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer app.close()

	if n, err := app.queue.FailInterrupted(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to handle interrupted chunks")
	} else if n > 0 {
		logger.Info().Int64("count", n).Msg("Failed chunks interrupted by restart")
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: float64(cfg.Inbound.RequestsPerSecond),
		BurstSize:         cfg.Inbound.Burst,
	}))

	app.handler.RegisterRoutes(router, middleware.AdminAuthMiddleware(cfg.Admin.APIKey))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(router, "chunk-service"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		app.dispatcher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		app.sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		app.retention.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")
		app.dispatcher.Stop()
		app.sweeper.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Service stopped with error")
	}

	logger.Info().Msg("Server exited")
}

// app holds the wired service components
type app struct {
	queue      *taskqueue.Queue
	dispatcher *workers.Dispatcher
	sweeper    *sweepers.CallbackSweeper
	retention  *jobs.RetentionJob
	handler    *handlers.Handler
	cache      *cache.ResultCache
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	recorder := metrics.NewRecorder()

	queue := taskqueue.New(pool, taskqueue.Config{
		MaxSize:        cfg.Queue.MaxSize,
		ChunkSizeLimit: cfg.Queue.ChunkSizeLimit,
	}, logger).WithMetrics(recorder)
	agg := aggregator.New(pool, logger)

	provider := settings.NewProvider(settings.NewPostgresStore(pool), settings.APIConfig{
		APIKey:     cfg.API.APIKey,
		BaseURL:    cfg.API.BaseURL,
		Model:      cfg.API.Model,
		TokenLimit: cfg.API.TokenLimit,
	}, logger)
	if _, err := provider.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load api configuration: %w", err)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MaxRPM:   cfg.RateLimit.MaxRPM,
		MaxRPH:   cfg.RateLimit.MaxRPH,
		Cooldown: cfg.RateLimit.Cooldown,
	}, logger)
	client := apphttp.NewClient(userAgent)

	archive, err := storage.New(ctx, storage.Config{
		Type:     storage.StorageType(cfg.Storage.Type),
		BasePath: cfg.Storage.BasePath,
		S3: storage.S3Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			Bucket:    cfg.Storage.S3.Bucket,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			UseSSL:    cfg.Storage.S3.UseSSL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	callbackDispatcher := callbacks.NewDispatcher(queue, agg, client, callbacks.Config{
		AllowedDomains: cfg.Callback.AllowedDomains,
		AuthToken:      cfg.Callback.AuthToken,
		RetryLimit:     cfg.Callback.RetryLimit,
		RetryDelay:     cfg.Callback.RetryDelay,
		Timeout:        cfg.Callback.Timeout,
	}, logger)
	sweeper := sweepers.NewCallbackSweeper(queue, callbackDispatcher, archive, logger,
		cfg.Sweeper.Interval, cfg.Sweeper.MaxConcurrentCallbacks).WithMetrics(recorder)

	dispatcher := workers.NewDispatcher(workers.Deps{
		Queue:     queue,
		Results:   agg,
		Limiter:   limiter,
		Settings:  provider,
		Generator: generation.NewClient(client, cfg.Request.Timeout),
	}, workers.Config{
		MaxRetries:    cfg.Request.MaxRetries,
		BackoffFactor: cfg.Request.BackoffFactor,
		BackoffUnit:   cfg.Request.BackoffUnit,
		PollInterval:  cfg.Dispatch.PollInterval,
		ChunkTimeout:  cfg.Dispatch.ChunkTimeout,
	}, logger).WithMetrics(recorder).WithSweepTrigger(sweeper)

	retention := jobs.NewRetentionJob(agg, jobs.RetentionConfig{
		Days:     cfg.Retention.Days,
		Interval: cfg.Retention.Interval,
	}, logger).WithMetrics(recorder)

	a := &app{
		queue:      queue,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		retention:  retention,
	}

	deps := handlers.Deps{
		Queue:      queue,
		Processor:  dispatcher,
		Results:    agg,
		RateLimits: limiter,
		Settings:   provider,
		Health:     func(ctx context.Context) error { return database.Status(ctx, pool) },
		Debug: handlers.DebugInfo{
			MaxRPM:         cfg.RateLimit.MaxRPM,
			MaxRPH:         cfg.RateLimit.MaxRPH,
			CooldownSecs:   cfg.RateLimit.Cooldown.Seconds(),
			QueueMaxSize:   cfg.Queue.MaxSize,
			ChunkSizeLimit: cfg.Queue.ChunkSizeLimit,
			MaxRetries:     cfg.Request.MaxRetries,
			TimeoutSecs:    cfg.Request.Timeout.Seconds(),
			BackoffFactor:  cfg.Request.BackoffFactor,
		},
		Logger: logger,
	}
	if archive != nil {
		deps.Deliveries = callbacks.NewArchive(archive)
	}

	if cfg.Cache.RedisURL != "" {
		resultCache, err := cache.NewResultCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Result cache unavailable, serving results from the database")
		} else {
			a.cache = resultCache
			deps.Cache = resultCache
			agg.WithInvalidator(resultCache)
		}
	}

	a.handler = handlers.New(deps)
	return a, nil
}

func initLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", "chunk-service").Logger()
}
