package sweepers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/kosarica/chunk-service/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const sweepBatchSize = 100

// JobStore lists completed jobs and closes them after dispatch
type JobStore interface {
	ListJobIDsByStatus(ctx context.Context, status database.JobStatus, limit int) ([]string, error)
	MarkCallbackDispatched(ctx context.Context, jobID string) (bool, error)
}

// CallbackDispatcher delivers one job's final result
type CallbackDispatcher interface {
	Dispatch(ctx context.Context, jobID string) (*callbacks.Delivery, error)
}

// Recorder receives callback metrics
type Recorder interface {
	RecordCallback(outcome string, elapsed time.Duration)
	CallbackStarted()
	CallbackFinished()
}

type nopRecorder struct{}

func (nopRecorder) RecordCallback(string, time.Duration) {}
func (nopRecorder) CallbackStarted()                     {}
func (nopRecorder) CallbackFinished()                    {}

// CallbackSweeper dispatches webhooks for completed jobs, on a ticker and
// whenever Trigger is called
type CallbackSweeper struct {
	jobs       JobStore
	dispatcher CallbackDispatcher
	archive    storage.Storage
	logger     zerolog.Logger
	metrics    Recorder
	interval   time.Duration
	sem        *semaphore.Weighted

	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once

	sweepMu    sync.Mutex
	inflightMu sync.Mutex
	inflight   map[string]bool
}

// NewCallbackSweeper creates a sweeper posting at most maxConcurrent webhooks at once.
// archive may be nil.
func NewCallbackSweeper(jobs JobStore, dispatcher CallbackDispatcher, archive storage.Storage, logger zerolog.Logger, interval time.Duration, maxConcurrent int) *CallbackSweeper {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &CallbackSweeper{
		jobs:       jobs,
		dispatcher: dispatcher,
		archive:    archive,
		logger:     logger.With().Str("component", "callback_sweeper").Logger(),
		metrics:    nopRecorder{},
		interval:   interval,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		trigger:    make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
		inflight:   make(map[string]bool),
	}
}

// WithMetrics sets the metrics recorder
func (s *CallbackSweeper) WithMetrics(r Recorder) *CallbackSweeper {
	if r != nil {
		s.metrics = r
	}
	return s
}

// Trigger requests a sweep without waiting for the ticker
func (s *CallbackSweeper) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start runs sweeps until ctx is done or Stop is called. It blocks.
func (s *CallbackSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting callback sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Callback sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Callback sweeper stopping (stop signal)")
			return
		case <-ticker.C:
		case <-s.trigger:
		}

		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Callback sweep failed")
		}
	}
}

// Stop signals the sweeper to stop
func (s *CallbackSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Sweep dispatches every completed job that is not already being dispatched
// and waits for the dispatches to finish. It returns how many were started.
func (s *CallbackSweeper) Sweep(ctx context.Context) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	ids, err := s.jobs.ListJobIDsByStatus(ctx, database.JobCompleted, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list completed jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	started := 0
	for _, id := range ids {
		if !s.claim(id) {
			continue
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.release(id)
			break
		}

		started++
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			defer s.sem.Release(1)
			defer s.release(jobID)
			s.deliver(ctx, jobID)
		}(id)
	}
	wg.Wait()

	s.logger.Debug().Int("jobs", started).Msg("Callback sweep finished")
	return started, ctx.Err()
}

func (s *CallbackSweeper) claim(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if s.inflight[jobID] {
		return false
	}
	s.inflight[jobID] = true
	return true
}

func (s *CallbackSweeper) release(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// deliver dispatches one job and closes it unless the failure was transient
func (s *CallbackSweeper) deliver(ctx context.Context, jobID string) {
	logger := s.logger.With().Str("job_id", jobID).Logger()

	s.metrics.CallbackStarted()
	defer s.metrics.CallbackFinished()

	start := time.Now()
	delivery, err := s.dispatcher.Dispatch(ctx, jobID)
	outcome := callbackOutcome(err)
	s.metrics.RecordCallback(outcome, time.Since(start))

	switch outcome {
	case "skipped":
		logger.Debug().Err(err).Msg("Job no longer awaiting callback")
		return
	case "error":
		logger.Warn().Err(err).Msg("Callback dispatch failed, will retry on next sweep")
		return
	}

	marked, markErr := s.jobs.MarkCallbackDispatched(ctx, jobID)
	if markErr != nil {
		logger.Error().Err(markErr).Msg("Failed to mark callback dispatched")
		return
	}
	if !marked {
		logger.Debug().Msg("Job was already marked callback dispatched")
		return
	}
	logger.Info().Str("outcome", outcome).Msg("Job closed after callback")

	if delivery != nil && s.archive != nil {
		s.archiveDelivery(ctx, logger, delivery)
	}
}

func (s *CallbackSweeper) archiveDelivery(ctx context.Context, logger zerolog.Logger, d *callbacks.Delivery) {
	content, err := json.Marshal(d)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode delivery record")
		return
	}
	key := storage.BuildDeliveryKey(d.JobID, d.DispatchedAt)
	meta := &storage.Metadata{ContentType: "application/json", JobID: d.JobID, CreatedAt: d.DispatchedAt}
	if err := s.archive.Put(ctx, key, content, meta); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Failed to archive delivery record")
	}
}

func callbackOutcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, callbacks.ErrCallbackRejected):
		return "rejected"
	case errors.Is(err, callbacks.ErrNoResult):
		return "no_result"
	case errors.Is(err, callbacks.ErrCallbackUndeliverable):
		return "undeliverable"
	case errors.Is(err, callbacks.ErrJobNotCompleted):
		return "skipped"
	}
	return "error"
}
