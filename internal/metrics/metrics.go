package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// chunksEnqueued tracks accepted chunks by enqueue path.
	chunksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_service_chunks_enqueued_total",
		Help: "Total number of chunks accepted into the queue",
	}, []string{"path"}) // path: single, batch

	// enqueueRejected tracks refused enqueue calls.
	enqueueRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_service_enqueue_rejected_total",
		Help: "Total number of enqueue calls refused by reason",
	}, []string{"reason"})

	// chunksFinished tracks chunks reaching a terminal state.
	chunksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_service_chunks_finished_total",
		Help: "Total number of chunks reaching a terminal state",
	}, []string{"status", "reason"})

	// requestAttempts tracks calls to the text-generation service by outcome.
	requestAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_service_generation_attempts_total",
		Help: "Total number of text-generation requests by outcome",
	}, []string{"outcome"}) // outcome: success, retryable, rejected, transport_error

	// requestDuration tracks latency of the text-generation service.
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chunk_service_generation_request_duration_seconds",
		Help:    "Latency of text-generation requests",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// chunkProcessingDuration tracks claim-to-terminal time per chunk.
	chunkProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chunk_service_chunk_processing_duration_seconds",
		Help:    "Time from claim to terminal state per chunk",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// rateLimitWait tracks time spent blocked on the outbound limiter.
	rateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chunk_service_rate_limit_wait_seconds",
		Help:    "Time spent waiting for an outbound rate limit permit",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 5, 15, 30, 60},
	})

	// callbacks tracks webhook dispatch outcomes.
	callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_service_callbacks_total",
		Help: "Total number of webhook dispatches by outcome",
	}, []string{"outcome"}) // outcome: delivered, rejected, undeliverable, no_result, skipped, error

	// callbackDuration tracks the full retry sequence of one webhook dispatch.
	callbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chunk_service_callback_duration_seconds",
		Help:    "Duration of webhook dispatch including retries",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	// callbacksInFlight tracks webhook dispatches currently running.
	callbacksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chunk_service_callbacks_in_flight",
		Help: "Number of webhook dispatches in progress",
	})

	// resultsPurged tracks completed chunks removed by retention.
	resultsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunk_service_results_purged_total",
		Help: "Total number of completed chunks removed by retention",
	})
)

// Recorder provides methods to record service metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordEnqueued records n accepted chunks.
func (m *Recorder) RecordEnqueued(path string, n int) {
	chunksEnqueued.WithLabelValues(path).Add(float64(n))
}

// RecordEnqueueRejected records a refused enqueue call.
func (m *Recorder) RecordEnqueueRejected(reason string) {
	enqueueRejected.WithLabelValues(reason).Inc()
}

// RecordChunkFinished records a chunk reaching a terminal state.
func (m *Recorder) RecordChunkFinished(status, reason string, elapsed time.Duration) {
	chunksFinished.WithLabelValues(status, reason).Inc()
	chunkProcessingDuration.Observe(elapsed.Seconds())
}

// RecordAttempt records one text-generation request.
func (m *Recorder) RecordAttempt(outcome string, elapsed time.Duration) {
	requestAttempts.WithLabelValues(outcome).Inc()
	requestDuration.Observe(elapsed.Seconds())
}

// RecordRateLimitWait records time spent waiting for a permit.
func (m *Recorder) RecordRateLimitWait(waited time.Duration) {
	rateLimitWait.Observe(waited.Seconds())
}

// RecordCallback records one webhook dispatch.
func (m *Recorder) RecordCallback(outcome string, elapsed time.Duration) {
	callbacks.WithLabelValues(outcome).Inc()
	callbackDuration.Observe(elapsed.Seconds())
}

// CallbackStarted increments the in-flight webhook gauge.
func (m *Recorder) CallbackStarted() {
	callbacksInFlight.Inc()
}

// CallbackFinished decrements the in-flight webhook gauge.
func (m *Recorder) CallbackFinished() {
	callbacksInFlight.Dec()
}

// RecordPurged records completed chunks removed by retention.
func (m *Recorder) RecordPurged(n int64) {
	resultsPurged.Add(float64(n))
}
