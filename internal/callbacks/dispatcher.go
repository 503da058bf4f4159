// Package callbacks delivers the final result of a completed job to its webhook.
package callbacks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kosarica/chunk-service/internal/database"
	apphttp "github.com/kosarica/chunk-service/internal/http"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrJobNotCompleted is returned when the job is not in the completed state
	ErrJobNotCompleted = errors.New("job is not completed")
	// ErrCallbackRejected is returned when the callback host is not allowed
	ErrCallbackRejected = errors.New("callback url not allowed")
	// ErrNoResult is returned when the job has no final result to deliver
	ErrNoResult = errors.New("no final result available")
	// ErrCallbackUndeliverable is returned when every attempt failed
	ErrCallbackUndeliverable = errors.New("callback could not be delivered")
)

// JobReader loads jobs
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*database.Job, error)
}

// ResultReader assembles the final result of a job
type ResultReader interface {
	FinalResult(ctx context.Context, jobID string) (string, bool, error)
}

// Poster sends JSON documents
type Poster interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, payload any, timeout time.Duration) (*apphttp.Response, error)
}

// Config controls delivery
type Config struct {
	AllowedDomains []string
	AuthToken      string
	RetryLimit     int
	RetryDelay     time.Duration
	Timeout        time.Duration
}

// Payload is the document posted to the webhook
type Payload struct {
	JobID       string `json:"job_id"`
	FinalResult string `json:"final_result"`
	AuthToken   string `json:"auth_token,omitempty"`
}

// Delivery records one dispatch
type Delivery struct {
	JobID        string    `json:"job_id"`
	CallbackURL  string    `json:"callback_url"`
	FinalResult  string    `json:"final_result,omitempty"`
	Attempts     int       `json:"attempts"`
	StatusCode   int       `json:"status_code,omitempty"`
	Delivered    bool      `json:"delivered"`
	Error        string    `json:"error,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// Dispatcher posts final results to job webhooks
type Dispatcher struct {
	jobs     JobReader
	results  ResultReader
	poster   Poster
	cfg      Config
	allowed  map[string]bool
	allowAll bool
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a callback dispatcher
func NewDispatcher(jobs JobReader, results ResultReader, poster Poster, cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.RetryLimit < 1 {
		cfg.RetryLimit = 1
	}
	d := &Dispatcher{
		jobs:    jobs,
		results: results,
		poster:  poster,
		cfg:     cfg,
		allowed: make(map[string]bool),
		logger:  logger.With().Str("component", "callbacks").Logger(),
		tracer:  otel.Tracer("github.com/kosarica/chunk-service/internal/callbacks"),
	}
	for _, domain := range cfg.AllowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "*" {
			d.allowAll = true
		}
		if domain != "" {
			d.allowed[domain] = true
		}
	}
	return d
}

// Allowed reports whether a callback URL may receive deliveries
func (d *Dispatcher) Allowed(callbackURL string) bool {
	u, err := url.Parse(callbackURL)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return d.allowAll || d.allowed[strings.ToLower(u.Host)]
}

// Dispatch delivers the final result of a completed job. The returned Delivery
// is non-nil once the job has been loaded, whatever the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) (*Delivery, error) {
	ctx, span := d.tracer.Start(ctx, "callbacks.dispatch", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	delivery, err := d.dispatch(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return delivery, err
}

func (d *Dispatcher) dispatch(ctx context.Context, jobID string) (*Delivery, error) {
	logger := d.logger.With().Str("job_id", jobID).Logger()

	job, err := d.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.Status != database.JobCompleted {
		logger.Warn().Str("status", string(job.Status)).Msg("Job is not completed")
		return nil, fmt.Errorf("%w: status %s", ErrJobNotCompleted, job.Status)
	}

	delivery := &Delivery{JobID: jobID, CallbackURL: job.CallbackURL, DispatchedAt: time.Now().UTC()}

	if !d.Allowed(job.CallbackURL) {
		logger.Error().Str("callback_url", job.CallbackURL).Msg("Callback URL is not in the allowed list")
		delivery.Error = ErrCallbackRejected.Error()
		return delivery, ErrCallbackRejected
	}

	result, ok, err := d.results.FinalResult(ctx, jobID)
	if err != nil {
		return delivery, fmt.Errorf("load final result: %w", err)
	}
	if !ok {
		logger.Warn().Msg("No final result available")
		delivery.Error = ErrNoResult.Error()
		return delivery, ErrNoResult
	}
	delivery.FinalResult = result

	payload := Payload{JobID: jobID, FinalResult: result, AuthToken: d.cfg.AuthToken}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.RetryLimit; attempt++ {
		delivery.Attempts = attempt

		resp, err := d.poster.PostJSON(ctx, job.CallbackURL, nil, payload, d.cfg.Timeout)
		switch {
		case err != nil:
			lastErr = err
			logger.Error().Err(err).Int("attempt", attempt).Msg("Callback request failed")
		case accepted(resp.StatusCode):
			delivery.StatusCode = resp.StatusCode
			delivery.Delivered = true
			logger.Info().Str("callback_url", job.CallbackURL).Int("attempt", attempt).Msg("Callback delivered")
			return delivery, nil
		default:
			delivery.StatusCode = resp.StatusCode
			lastErr = fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
			logger.Error().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Callback rejected by webhook")
		}

		if attempt < d.cfg.RetryLimit {
			if err := ratelimit.Sleep(ctx, d.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	delivery.Error = lastErr.Error()
	logger.Error().Int("attempts", delivery.Attempts).Msg("Callback undeliverable")
	return delivery, fmt.Errorf("%w: %v", ErrCallbackUndeliverable, lastErr)
}

func accepted(status int) bool {
	return status == 200 || status == 201 || status == 202
}
