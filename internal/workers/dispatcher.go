// Package workers drives chunks from the queue through the text-generation service.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kosarica/chunk-service/internal/database"
	"github.com/kosarica/chunk-service/internal/generation"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultChunkTimeout = 10 * time.Minute
	finishTimeout       = 10 * time.Second
)

// ChunkQueue is the part of the queue the dispatcher drives
type ChunkQueue interface {
	ClaimNext(ctx context.Context) (*database.Chunk, error)
	SetStatus(ctx context.Context, chunkID string, status database.ChunkStatus, reason string) error
	RecordAttempt(ctx context.Context, chunkID string) error
	Wake() <-chan struct{}
}

// ResultRecorder stores the generated text of a chunk
type ResultRecorder interface {
	AddResult(ctx context.Context, chunkID, text string) error
}

// Limiter hands out outbound request permits
type Limiter interface {
	Acquire(ctx context.Context) error
	UpdateFromHints(h ratelimit.Hints)
}

// ConfigProvider supplies the credentials for the text-generation service
type ConfigProvider interface {
	APIConfig(ctx context.Context) (settings.APIConfig, error)
}

// Generator sends one chunk to the text-generation service
type Generator interface {
	Generate(ctx context.Context, cfg settings.APIConfig, text string) (*generation.Result, error)
}

// SweepTrigger is notified after the queue has been drained
type SweepTrigger interface {
	Trigger()
}

// Recorder receives dispatch metrics
type Recorder interface {
	RecordChunkFinished(status, reason string, elapsed time.Duration)
	RecordAttempt(outcome string, elapsed time.Duration)
	RecordRateLimitWait(waited time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordChunkFinished(string, string, time.Duration) {}
func (nopRecorder) RecordAttempt(string, time.Duration)               {}
func (nopRecorder) RecordRateLimitWait(time.Duration)                 {}

// Config controls retries and polling. ChunkTimeout bounds the work on one
// claimed chunk, cooldowns and backoffs included.
type Config struct {
	MaxRetries    int
	BackoffFactor float64
	BackoffUnit   time.Duration
	PollInterval  time.Duration
	ChunkTimeout  time.Duration
}

// Deps groups the collaborators of the dispatcher
type Deps struct {
	Queue     ChunkQueue
	Results   ResultRecorder
	Limiter   Limiter
	Settings  ConfigProvider
	Generator Generator
}

// Outcome describes how a processed chunk ended
type Outcome struct {
	ChunkID  string               `json:"chunk_id"`
	Status   database.ChunkStatus `json:"status"`
	Reason   string               `json:"reason,omitempty"`
	Attempts int                  `json:"attempts"`
}

// Dispatcher processes one chunk at a time: it claims a chunk, calls the
// service under the rate limiter, retries transient failures and records the
// terminal state.
type Dispatcher struct {
	deps    Deps
	cfg     Config
	logger  zerolog.Logger
	metrics Recorder
	sweep   SweepTrigger
	tracer  trace.Tracer

	// keeps a single chunk in flight, including manual ProcessNext calls
	processMu sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher
func NewDispatcher(deps Deps, cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = defaultChunkTimeout
	}
	return &Dispatcher{
		deps:     deps,
		cfg:      cfg,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		metrics:  nopRecorder{},
		tracer:   otel.Tracer("github.com/kosarica/chunk-service/internal/workers"),
		stopChan: make(chan struct{}),
	}
}

// WithMetrics sets the metrics recorder
func (d *Dispatcher) WithMetrics(r Recorder) *Dispatcher {
	if r != nil {
		d.metrics = r
	}
	return d
}

// WithSweepTrigger sets what is notified after each drain that processed chunks
func (d *Dispatcher) WithSweepTrigger(s SweepTrigger) *Dispatcher {
	d.sweep = s
	return d
}

// Start drains the queue, then waits for wake-ups or the safety poll until ctx
// is done or Stop is called. It blocks. Cancelling ctx also stops the
// dispatcher, interrupting the chunk in flight.
func (d *Dispatcher) Start(ctx context.Context) {
	stopOnCancel := context.AfterFunc(ctx, d.Stop)
	defer stopOnCancel()

	d.logger.Info().
		Int("max_retries", d.cfg.MaxRetries).
		Dur("poll_interval", d.cfg.PollInterval).
		Msg("Starting dispatcher")

	d.drain(ctx)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Dispatcher stopping (context cancelled)")
			return
		case <-d.stopChan:
			d.logger.Info().Msg("Dispatcher stopping (stop signal)")
			return
		case <-d.deps.Queue.Wake():
			d.drain(ctx)
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// Stop signals the loop to exit. A chunk in flight is failed as interrupted.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
}

func (d *Dispatcher) stopped() bool {
	select {
	case <-d.stopChan:
		return true
	default:
		return false
	}
}

// drain processes chunks until the queue reports empty
func (d *Dispatcher) drain(ctx context.Context) {
	processed := 0
	for ctx.Err() == nil && !d.stopped() {
		outcome, err := d.ProcessNext(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("Failed to process chunk")
			break
		}
		if outcome == nil {
			break
		}
		processed++
	}

	if processed > 0 {
		d.logger.Debug().Int("processed", processed).Msg("Queue drained")
		if d.sweep != nil {
			d.sweep.Trigger()
		}
	}
}

// ProcessNext claims and processes the next queued chunk. It returns nil when
// the queue is empty or the dispatcher is stopped.
//
// Once claimed, the chunk no longer depends on ctx: it is processed until it
// reaches a terminal state, the chunk timeout elapses or Stop is called. In the
// last two cases it is failed as interrupted. An error means the claim or the
// final status write failed.
func (d *Dispatcher) ProcessNext(ctx context.Context) (*Outcome, error) {
	d.processMu.Lock()
	defer d.processMu.Unlock()

	if d.stopped() {
		return nil, nil
	}
	chunk, err := d.deps.Queue.ClaimNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim chunk: %w", err)
	}
	if chunk == nil {
		return nil, nil
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ChunkTimeout)
	defer cancel()
	go func() {
		select {
		case <-d.stopChan:
			cancel()
		case <-runCtx.Done():
		}
	}()

	workCtx, span := d.tracer.Start(runCtx, "dispatch.chunk", trace.WithAttributes(
		attribute.String("chunk.id", chunk.ID),
		attribute.Int("chunk.priority", chunk.Priority),
	))
	defer span.End()

	logger := d.logger.With().Str("chunk_id", chunk.ID).Logger()
	logger.Debug().Int("priority", chunk.Priority).Msg("Chunk claimed")

	started := time.Now()
	outcome, err := d.process(workCtx, logger, chunk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Msg("Chunk interrupted")
		outcome.Status = database.ChunkFailed
		outcome.Reason = database.ReasonInterrupted
	}

	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(workCtx), finishTimeout)
	defer cancelFinish()
	if err := d.deps.Queue.SetStatus(finishCtx, chunk.ID, outcome.Status, outcome.Reason); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("record chunk outcome: %w", err)
	}

	span.SetAttributes(
		attribute.String("chunk.status", string(outcome.Status)),
		attribute.Int("chunk.attempts", outcome.Attempts),
	)
	d.metrics.RecordChunkFinished(string(outcome.Status), metricReason(outcome.Reason), time.Since(started))

	if outcome.Status == database.ChunkFailed {
		logger.Warn().Str("reason", outcome.Reason).Int("attempts", outcome.Attempts).Msg("Chunk failed")
	} else {
		logger.Info().Int("attempts", outcome.Attempts).Msg("Chunk completed")
	}
	return outcome, nil
}

// process runs the attempt loop for a claimed chunk. On error the returned
// outcome still carries the attempts made.
func (d *Dispatcher) process(ctx context.Context, logger zerolog.Logger, chunk *database.Chunk) (*Outcome, error) {
	outcome := &Outcome{ChunkID: chunk.ID}
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		waitStart := time.Now()
		if err := d.deps.Limiter.Acquire(ctx); err != nil {
			return outcome, fmt.Errorf("acquire rate limit permit: %w", err)
		}
		d.metrics.RecordRateLimitWait(time.Since(waitStart))

		apiCfg, err := d.deps.Settings.APIConfig(ctx)
		if errors.Is(err, settings.ErrConfigurationIncomplete) {
			logger.Error().Err(err).Msg("API configuration incomplete")
			outcome.Status = database.ChunkFailed
			outcome.Reason = database.ReasonConfigurationIncomplete
			return outcome, nil
		}

		if err == nil {
			outcome.Attempts++
			if err := d.deps.Queue.RecordAttempt(ctx, chunk.ID); err != nil {
				logger.Warn().Err(err).Msg("Failed to record attempt")
			}

			reqStart := time.Now()
			var res *generation.Result
			res, err = d.deps.Generator.Generate(ctx, apiCfg, chunk.Text)
			if res != nil {
				d.deps.Limiter.UpdateFromHints(res.Hints)
				lastStatus = res.StatusCode
			}

			if err == nil {
				d.metrics.RecordAttempt("success", time.Since(reqStart))
				// the aggregator skips chunks without a stored result
				if err := d.deps.Results.AddResult(ctx, chunk.ID, res.Text); err != nil {
					logger.Error().Err(err).Msg("Failed to store chunk result")
				}
				outcome.Status = database.ChunkCompleted
				return outcome, nil
			}

			var serviceErr *generation.ServiceError
			if errors.As(err, &serviceErr) && !serviceErr.Retryable() {
				d.metrics.RecordAttempt("rejected", time.Since(reqStart))
				logger.Warn().Int("status", serviceErr.StatusCode).Str("message", serviceErr.Message).Msg("Service rejected chunk")
				outcome.Status = database.ChunkFailed
				outcome.Reason = serviceErr.Message
				return outcome, nil
			}

			if serviceErr != nil {
				d.metrics.RecordAttempt("retryable", time.Since(reqStart))
			} else {
				if ctx.Err() != nil {
					return outcome, ctx.Err()
				}
				d.metrics.RecordAttempt("transport_error", time.Since(reqStart))
			}
		}
		lastErr = err

		if attempt == d.cfg.MaxRetries-1 {
			break
		}

		delay := ratelimit.Backoff(d.cfg.BackoffFactor, attempt, d.cfg.BackoffUnit)
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retryable failure, backing off")
		if err := ratelimit.Sleep(ctx, delay); err != nil {
			return outcome, err
		}
	}

	retryErr := &ratelimit.RetryError{Attempts: d.cfg.MaxRetries, LastStatus: lastStatus, LastError: lastErr}
	logger.Error().Err(retryErr).Msg("Retries exhausted")
	outcome.Status = database.ChunkFailed
	outcome.Reason = database.ReasonRetriesExhausted
	return outcome, nil
}

// metricReason keeps the label set bounded; service messages collapse into one value
func metricReason(reason string) string {
	switch reason {
	case "", database.ReasonConfigurationIncomplete, database.ReasonRetriesExhausted, database.ReasonInterrupted:
		return reason
	}
	return "service_rejected"
}
