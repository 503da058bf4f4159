package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/rs/zerolog"
)

// ChunkStatus is the externally visible state of one chunk
type ChunkStatus struct {
	ChunkID             string               `json:"chunk_id"`
	Status              database.ChunkStatus `json:"status"`
	Result              *string              `json:"result,omitempty"`
	ErrorMessage        *string              `json:"error_message,omitempty"`
	Attempts            int                  `json:"attempts"`
	JobID               *string              `json:"job_id,omitempty"`
	ProcessingStartTime *time.Time           `json:"processing_start_time,omitempty"`
	ProcessingEndTime   *time.Time           `json:"processing_end_time,omitempty"`
}

// Metrics summarises processing so far
type Metrics struct {
	QueueLength                int     `json:"queue_length"`
	AverageResponseTimeSeconds float64 `json:"average_response_time_seconds"`
	SuccessRatePercent         float64 `json:"success_rate_percent"`
}

// Invalidator drops derived copies of a job's final result
type Invalidator interface {
	Delete(ctx context.Context, jobID string) error
}

// Aggregator stores chunk results and derives job-level results and metrics
type Aggregator struct {
	pool        *pgxpool.Pool
	logger      zerolog.Logger
	invalidator Invalidator

	// serializes result writes against purges
	mu sync.Mutex
}

// New creates an aggregator over the given pool
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		pool:   pool,
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// WithInvalidator sets what is told about jobs whose results were purged
func (a *Aggregator) WithInvalidator(inv Invalidator) *Aggregator {
	a.invalidator = inv
	return a
}

// AddResult stores the output text of a chunk. A chunk that no longer exists
// is logged and ignored.
func (a *Aggregator) AddResult(ctx context.Context, chunkID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tag, err := a.pool.Exec(ctx, `
		UPDATE text_chunks SET result = $2, updated_at = clock_timestamp()
		WHERE id = $1
	`, chunkID, text)
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		a.logger.Warn().Str("chunk_id", chunkID).Msg("Result dropped, chunk no longer exists")
	}
	return nil
}

// FinalResult joins the results of a job's completed chunks in creation order,
// separated by single spaces. Completed chunks without a stored result are
// skipped. The boolean is false when no completed chunk has a result.
func (a *Aggregator) FinalResult(ctx context.Context, jobID string) (string, bool, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT result FROM text_chunks
		WHERE job_id = $1 AND status = 'completed'
		ORDER BY created_at ASC, seq ASC
	`, jobID)
	if err != nil {
		return "", false, fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	parts := make([]string, 0)
	for rows.Next() {
		var result *string
		if err := rows.Scan(&result); err != nil {
			return "", false, fmt.Errorf("scan result: %w", err)
		}
		if result == nil || *result == "" {
			continue
		}
		parts = append(parts, *result)
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}

	if len(parts) == 0 {
		return "", false, nil
	}
	return strings.Join(parts, " "), true, nil
}

// ChunkStatus returns the status of one chunk
func (a *Aggregator) ChunkStatus(ctx context.Context, chunkID string) (*ChunkStatus, error) {
	var s ChunkStatus
	err := a.pool.QueryRow(ctx, `
		SELECT id, status, result, error_message, attempts, job_id,
		       processing_start_time, processing_end_time
		FROM text_chunks WHERE id = $1
	`, chunkID).Scan(&s.ChunkID, &s.Status, &s.Result, &s.ErrorMessage, &s.Attempts, &s.JobID,
		&s.ProcessingStartTime, &s.ProcessingEndTime)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, database.MapError(err))
	}
	return &s, nil
}

// QueueLength returns the number of chunks waiting to be claimed
func (a *Aggregator) QueueLength(ctx context.Context) (int, error) {
	var n int
	err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM text_chunks WHERE status = 'queued'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued chunks: %w", err)
	}
	return n, nil
}

// AverageResponseTime returns the mean processing time in seconds over chunks
// that have both timestamps, or zero when none do
func (a *Aggregator) AverageResponseTime(ctx context.Context) (float64, error) {
	var avg *float64
	err := a.pool.QueryRow(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (processing_end_time - processing_start_time)))::float8
		FROM text_chunks
		WHERE processing_start_time IS NOT NULL AND processing_end_time IS NOT NULL
	`).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average response time: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// SuccessRate returns the percentage of all chunks that completed
func (a *Aggregator) SuccessRate(ctx context.Context) (float64, error) {
	var total, completed int
	err := a.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed') FROM text_chunks
	`).Scan(&total, &completed)
	if err != nil {
		return 0, fmt.Errorf("success rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(completed) / float64(total) * 100, nil
}

// Metrics bundles queue length, average response time and success rate
func (a *Aggregator) Metrics(ctx context.Context) (*Metrics, error) {
	length, err := a.QueueLength(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := a.AverageResponseTime(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := a.SuccessRate(ctx)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		QueueLength:                length,
		AverageResponseTimeSeconds: avg,
		SuccessRatePercent:         rate,
	}, nil
}

// PurgeOldResults deletes completed chunks not updated within the retention window
func (a *Aggregator) PurgeOldResults(ctx context.Context, retentionDays int) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	rows, err := a.pool.Query(ctx, `
		DELETE FROM text_chunks
		WHERE status = 'completed' AND updated_at < $1
		RETURNING job_id
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old results: %w", err)
	}
	jobIDs, err := pgx.CollectRows(rows, pgx.RowTo[*string])
	if err != nil {
		return 0, fmt.Errorf("purge old results: %w", err)
	}

	n := int64(len(jobIDs))
	a.invalidate(ctx, jobIDs)
	a.logger.Info().Int64("rows_deleted", n).Int("retention_days", retentionDays).Msg("Purged old results")
	return n, nil
}

// invalidate drops cached results of the affected jobs. Failures are logged;
// the cache TTL bounds how long a stale entry survives.
func (a *Aggregator) invalidate(ctx context.Context, jobIDs []*string) {
	if a.invalidator == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, id := range jobIDs {
		if id == nil {
			continue
		}
		if _, ok := seen[*id]; ok {
			continue
		}
		seen[*id] = struct{}{}
		if err := a.invalidator.Delete(ctx, *id); err != nil {
			a.logger.Warn().Err(err).Str("job_id", *id).Msg("Failed to invalidate cached result")
		}
	}
}
