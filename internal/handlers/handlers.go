// Package handlers implements the HTTP API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/kosarica/chunk-service/internal/taskqueue"
	"github.com/kosarica/chunk-service/internal/workers"
	"github.com/rs/zerolog"
)

// Queue accepts chunks and reports on them
type Queue interface {
	Enqueue(ctx context.Context, in taskqueue.EnqueueInput) (string, error)
	EnqueueBatch(ctx context.Context, items []taskqueue.BatchItem, callbackURL string) (string, error)
	Snapshot(ctx context.Context, limit int) (*taskqueue.Snapshot, error)
	GetJob(ctx context.Context, jobID string) (*database.Job, error)
}

// Processor processes the next queued chunk on demand
type Processor interface {
	ProcessNext(ctx context.Context) (*workers.Outcome, error)
}

// Results reads chunk results and processing metrics
type Results interface {
	FinalResult(ctx context.Context, jobID string) (string, bool, error)
	ChunkStatus(ctx context.Context, chunkID string) (*aggregator.ChunkStatus, error)
	Metrics(ctx context.Context) (*aggregator.Metrics, error)
}

// RateLimits exposes the outbound limiter state
type RateLimits interface {
	Snapshot() ratelimit.Snapshot
}

// Settings reads and changes the API configuration
type Settings interface {
	Current(ctx context.Context) (settings.View, error)
	Update(ctx context.Context, in settings.UpdateInput) (settings.View, error)
}

// ResultCache caches final results of closed jobs
type ResultCache interface {
	Get(ctx context.Context, jobID string) (string, bool, error)
	Set(ctx context.Context, jobID, result string) error
}

// Deliveries reads archived webhook delivery records
type Deliveries interface {
	Deliveries(ctx context.Context, jobID string) ([]callbacks.Delivery, error)
}

// DebugInfo is the static, non-secret configuration shown by /status/debug
type DebugInfo struct {
	MaxRPM         int     `json:"max_rpm"`
	MaxRPH         int     `json:"max_rph"`
	CooldownSecs   float64 `json:"cooldown_seconds"`
	QueueMaxSize   int     `json:"queue_max_size"`
	ChunkSizeLimit int     `json:"chunk_size_limit"`
	MaxRetries     int     `json:"max_retries"`
	TimeoutSecs    float64 `json:"timeout_seconds"`
	BackoffFactor  float64 `json:"backoff_factor"`
}

// Deps groups the handler collaborators. Cache, Deliveries and Health may be nil.
type Deps struct {
	Queue      Queue
	Processor  Processor
	Results    Results
	RateLimits RateLimits
	Settings   Settings
	Cache      ResultCache
	Deliveries Deliveries
	Health     func(ctx context.Context) error
	Debug      DebugInfo
	Logger     zerolog.Logger
}

// Handler serves the HTTP API
type Handler struct {
	Deps
	logger zerolog.Logger
}

// New creates a handler
func New(deps Deps) *Handler {
	return &Handler{
		Deps:   deps,
		logger: deps.Logger.With().Str("component", "handlers").Logger(),
	}
}

// RegisterRoutes mounts every route; admin guards the configuration group
func (h *Handler) RegisterRoutes(r gin.IRouter, admin gin.HandlerFunc) {
	r.GET("/", h.HealthCheck)
	r.GET("/health", h.HealthCheck)

	queue := r.Group("/queue")
	{
		queue.POST("", h.EnqueueChunk)
		queue.POST("/bulk", h.EnqueueBulk)
		queue.GET("/status", h.QueueStatus)
	}

	process := r.Group("/process")
	{
		process.POST("", h.ProcessNext)
		process.GET("/:chunkId/status", h.GetChunkStatus)
	}

	status := r.Group("/status")
	{
		status.GET("/final_result/:jobId", h.GetFinalResult)
		status.GET("/jobs/:jobId", h.GetJobStatus)
		status.GET("/deliveries/:jobId", h.GetDeliveries)
		status.GET("/rate_limits", h.GetRateLimits)
		status.GET("/metrics", h.GetMetrics)
		status.GET("/debug", h.GetDebug)
	}

	cfg := r.Group("/config")
	cfg.Use(admin)
	{
		cfg.POST("/update_config", h.UpdateConfig)
		cfg.GET("/get_config", h.GetConfig)
	}
}

// writeError maps domain errors to HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, taskqueue.ErrCapacityExceeded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, taskqueue.ErrChunkTooLarge), errors.Is(err, taskqueue.ErrEmptyBatch),
		errors.Is(err, settings.ErrInvalidSetting):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, taskqueue.ErrJobClosed):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
