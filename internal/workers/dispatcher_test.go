package workers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kosarica/chunk-service/internal/database"
	"github.com/kosarica/chunk-service/internal/generation"
	apphttp "github.com/kosarica/chunk-service/internal/http"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryQueue is an in-memory ChunkQueue
type memoryQueue struct {
	mu       sync.Mutex
	queued   []*database.Chunk
	statuses map[string]database.ChunkStatus
	reasons  map[string]string
	attempts map[string]int
	wake     chan struct{}
}

func newMemoryQueue(texts ...string) *memoryQueue {
	q := &memoryQueue{
		statuses: make(map[string]database.ChunkStatus),
		reasons:  make(map[string]string),
		attempts: make(map[string]int),
		wake:     make(chan struct{}, 1),
	}
	for _, text := range texts {
		q.add(text)
	}
	return q
}

func (q *memoryQueue) add(text string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := fmt.Sprintf("chunk-%d", len(q.statuses)+1)
	q.queued = append(q.queued, &database.Chunk{ID: id, Text: text, Status: database.ChunkQueued})
	q.statuses[id] = database.ChunkQueued
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return id
}

func (q *memoryQueue) ClaimNext(ctx context.Context) (*database.Chunk, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queued) == 0 {
		return nil, nil
	}
	chunk := q.queued[0]
	q.queued = q.queued[1:]
	chunk.Status = database.ChunkInProgress
	q.statuses[chunk.ID] = database.ChunkInProgress
	return chunk, nil
}

func (q *memoryQueue) SetStatus(ctx context.Context, chunkID string, status database.ChunkStatus, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.statuses[chunkID].CanTransition(status) {
		return errors.New("invalid transition")
	}
	q.statuses[chunkID] = status
	q.reasons[chunkID] = reason
	return nil
}

func (q *memoryQueue) RecordAttempt(ctx context.Context, chunkID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts[chunkID]++
	return nil
}

func (q *memoryQueue) Wake() <-chan struct{} { return q.wake }

func (q *memoryQueue) status(id string) database.ChunkStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statuses[id]
}

func (q *memoryQueue) countStatus(status database.ChunkStatus) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.statuses {
		if s == status {
			n++
		}
	}
	return n
}

type memoryResults struct {
	mu      sync.Mutex
	results map[string]string
}

func (r *memoryResults) AddResult(ctx context.Context, chunkID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string]string)
	}
	r.results[chunkID] = text
	return nil
}

type staticSettings struct {
	cfg settings.APIConfig
	err error
}

func (s staticSettings) APIConfig(ctx context.Context) (settings.APIConfig, error) {
	return s.cfg, s.err
}

type countingTrigger struct{ n atomic.Int32 }

func (c *countingTrigger) Trigger() { c.n.Add(1) }

func newTestLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.Config{MaxRPM: 100, MaxRPH: 1000}, zerolog.Nop())
}

func newTestDispatcher(q *memoryQueue, results *memoryResults, serviceURL string, cfg Config) *Dispatcher {
	return NewDispatcher(Deps{
		Queue:     q,
		Results:   results,
		Limiter:   newTestLimiter(),
		Settings:  staticSettings{cfg: settings.APIConfig{APIKey: "sk-test", BaseURL: serviceURL, Model: "m", TokenLimit: 64}},
		Generator: generation.NewClient(apphttp.NewClient("test"), time.Second),
	}, cfg, zerolog.Nop())
}

const okBody = `{"content":[{"type":"text","text":"DONE"}]}`

func TestProcessNextEmptyQueue(t *testing.T) {
	d := newTestDispatcher(newMemoryQueue(), &memoryResults{}, "http://unused", Config{MaxRetries: 3})

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestProcessNextRetriesAfterTooManyRequests(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		first := len(hits) == 1
		mu.Unlock()

		if first {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	results := &memoryResults{}
	d := newTestDispatcher(q, results, server.URL, Config{MaxRetries: 3, BackoffFactor: 1.5, BackoffUnit: time.Second})

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, database.ChunkCompleted, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, database.ChunkCompleted, q.status(outcome.ChunkID))
	assert.Equal(t, "DONE", results.results[outcome.ChunkID])

	require.Len(t, hits, 2)
	// first backoff is factor^0 units
	assert.GreaterOrEqual(t, hits[1].Sub(hits[0]), time.Second)
}

func TestProcessNextExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	d := newTestDispatcher(q, &memoryResults{}, server.URL, Config{MaxRetries: 3, BackoffFactor: 1.5, BackoffUnit: 5 * time.Millisecond})

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, database.ChunkFailed, outcome.Status)
	assert.Equal(t, database.ReasonRetriesExhausted, outcome.Reason)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, q.attempts[outcome.ChunkID])
	assert.Equal(t, database.ReasonRetriesExhausted, q.reasons[outcome.ChunkID])
}

func TestProcessNextConfigurationIncomplete(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	d := NewDispatcher(Deps{
		Queue:     q,
		Results:   &memoryResults{},
		Limiter:   newTestLimiter(),
		Settings:  staticSettings{err: fmt.Errorf("%w: missing CLAUDE_API_KEY", settings.ErrConfigurationIncomplete)},
		Generator: generation.NewClient(apphttp.NewClient("test"), time.Second),
	}, Config{MaxRetries: 3}, zerolog.Nop())

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, database.ChunkFailed, outcome.Status)
	assert.Equal(t, database.ReasonConfigurationIncomplete, outcome.Reason)
	assert.Zero(t, hits.Load())
}

func TestProcessNextServiceRejected(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"prompt is too long"}}`))
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	d := newTestDispatcher(q, &memoryResults{}, server.URL, Config{MaxRetries: 3, BackoffUnit: time.Millisecond})

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, database.ChunkFailed, outcome.Status)
	assert.Equal(t, "prompt is too long", outcome.Reason)
}

// flakyGenerator fails with a transport error a fixed number of times
type flakyGenerator struct {
	failures int
	calls    int
}

func (g *flakyGenerator) Generate(ctx context.Context, cfg settings.APIConfig, text string) (*generation.Result, error) {
	g.calls++
	if g.calls <= g.failures {
		return nil, errors.New("connection reset by peer")
	}
	return &generation.Result{StatusCode: http.StatusOK, Text: "ok"}, nil
}

func TestProcessNextRetriesTransportErrors(t *testing.T) {
	q := newMemoryQueue("hello")
	gen := &flakyGenerator{failures: 2}
	d := NewDispatcher(Deps{
		Queue:     q,
		Results:   &memoryResults{},
		Limiter:   newTestLimiter(),
		Settings:  staticSettings{cfg: settings.APIConfig{APIKey: "k", BaseURL: "http://x", Model: "m"}},
		Generator: gen,
	}, Config{MaxRetries: 3, BackoffFactor: 2, BackoffUnit: time.Millisecond}, zerolog.Nop())

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, database.ChunkCompleted, outcome.Status)
}

func TestProcessNextFeedsHintsToLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ratelimit.HeaderRemainingRPM, "0")
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxRPM: 10, MaxRPH: 1000}, zerolog.Nop())
	d := NewDispatcher(Deps{
		Queue:     newMemoryQueue("hello"),
		Results:   &memoryResults{},
		Limiter:   limiter,
		Settings:  staticSettings{cfg: settings.APIConfig{APIKey: "k", BaseURL: server.URL, Model: "m"}},
		Generator: generation.NewClient(apphttp.NewClient("test"), time.Second),
	}, Config{MaxRetries: 1}, zerolog.Nop())

	_, err := d.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, limiter.Snapshot().RequestsThisMinute)
}

func TestProcessNextOutlivesCallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	results := &memoryResults{}
	d := newTestDispatcher(q, results, server.URL, Config{MaxRetries: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome, err := d.ProcessNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, database.ChunkCompleted, outcome.Status)
	assert.Equal(t, database.ChunkCompleted, q.status("chunk-1"))
	assert.Equal(t, "DONE", results.results["chunk-1"])
}

func TestProcessNextStopDuringBackoffFailsChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	d := newTestDispatcher(q, &memoryResults{}, server.URL, Config{MaxRetries: 3, BackoffFactor: 1, BackoffUnit: time.Minute})

	time.AfterFunc(100*time.Millisecond, d.Stop)

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, database.ChunkFailed, outcome.Status)
	assert.Equal(t, database.ReasonInterrupted, outcome.Reason)
	assert.Equal(t, database.ChunkFailed, q.status("chunk-1"))
	assert.Equal(t, database.ReasonInterrupted, q.reasons["chunk-1"])
}

func TestProcessNextChunkTimeoutFailsChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	q := newMemoryQueue("hello", "world")
	d := newTestDispatcher(q, &memoryResults{}, server.URL, Config{
		MaxRetries:    3,
		BackoffFactor: 1,
		BackoffUnit:   time.Minute,
		ChunkTimeout:  100 * time.Millisecond,
	})

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, database.ChunkFailed, outcome.Status)
	assert.Equal(t, database.ReasonInterrupted, outcome.Reason)
	assert.Equal(t, 1, outcome.Attempts)

	// the next chunk is still claimable
	outcome, err = d.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "chunk-2", outcome.ChunkID)
	assert.Equal(t, database.ChunkFailed, q.status("chunk-2"))
}

type failingResults struct{ calls atomic.Int32 }

func (r *failingResults) AddResult(ctx context.Context, chunkID, text string) error {
	r.calls.Add(1)
	return errors.New("connection reset")
}

func TestProcessNextCompletesWhenResultStoreFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	results := &failingResults{}
	d := NewDispatcher(Deps{
		Queue:     q,
		Results:   results,
		Limiter:   newTestLimiter(),
		Settings:  staticSettings{cfg: settings.APIConfig{APIKey: "k", BaseURL: server.URL, Model: "m"}},
		Generator: generation.NewClient(apphttp.NewClient("test"), time.Second),
	}, Config{MaxRetries: 1}, zerolog.Nop())

	outcome, err := d.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, database.ChunkCompleted, outcome.Status)
	assert.Equal(t, database.ChunkCompleted, q.status("chunk-1"))
	assert.Equal(t, int32(1), results.calls.Load())
}

// brokenStatusQueue fails the first status writes
type brokenStatusQueue struct {
	*memoryQueue
	failures atomic.Int32
}

func (q *brokenStatusQueue) SetStatus(ctx context.Context, chunkID string, status database.ChunkStatus, reason string) error {
	if q.failures.Add(-1) >= 0 {
		return errors.New("database is closed")
	}
	return q.memoryQueue.SetStatus(ctx, chunkID, status, reason)
}

func TestStartSurvivesStatusWriteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	q := &brokenStatusQueue{memoryQueue: newMemoryQueue("a")}
	q.failures.Store(1)
	d := NewDispatcher(Deps{
		Queue:     q,
		Results:   &memoryResults{},
		Limiter:   newTestLimiter(),
		Settings:  staticSettings{cfg: settings.APIConfig{APIKey: "k", BaseURL: server.URL, Model: "m"}},
		Generator: generation.NewClient(apphttp.NewClient("test"), time.Second),
	}, Config{MaxRetries: 1, PollInterval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	// the drain gives up on the failed write but the loop keeps serving wake-ups
	assert.Eventually(t, func() bool { return q.failures.Load() < 0 }, 5*time.Second, 10*time.Millisecond)
	id := q.add("b")
	assert.Eventually(t, func() bool {
		return q.status(id) == database.ChunkCompleted
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-done:
		t.Fatal("dispatcher exited after a failed status write")
	default:
	}
}

func TestStartCancelInterruptsChunkInFlight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	q := newMemoryQueue("hello")
	d := newTestDispatcher(q, &memoryResults{}, server.URL, Config{
		MaxRetries:    3,
		BackoffFactor: 1,
		BackoffUnit:   time.Minute,
		PollInterval:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.attempts["chunk-1"] == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Equal(t, database.ChunkFailed, q.status("chunk-1"))
	assert.Equal(t, database.ReasonInterrupted, q.reasons["chunk-1"])
}

func TestStartDrainsAndTriggersSweep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	q := newMemoryQueue("a", "b")
	trigger := &countingTrigger{}
	d := newTestDispatcher(q, &memoryResults{}, server.URL, Config{MaxRetries: 1, PollInterval: time.Hour}).
		WithSweepTrigger(trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return q.countStatus(database.ChunkCompleted) == 2 && trigger.n.Load() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	q.add("c")
	assert.Eventually(t, func() bool {
		return q.countStatus(database.ChunkCompleted) == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestStopEndsLoop(t *testing.T) {
	d := newTestDispatcher(newMemoryQueue(), &memoryResults{}, "http://unused", Config{MaxRetries: 1, PollInterval: time.Hour})

	done := make(chan struct{})
	go func() {
		d.Start(context.Background())
		close(done)
	}()

	d.Stop()
	d.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
