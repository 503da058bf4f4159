package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/rs/zerolog"
)

const chunkColumns = `id, text, priority, status, result, error_message, attempts,
	processing_start_time, processing_end_time, job_id, created_at, updated_at`

// Queue is the durable priority queue of chunks and their jobs.
// All mutating operations hold mu for their whole duration, including the
// job status derivation, so capacity checks and claims never interleave.
type Queue struct {
	pool    *pgxpool.Pool
	cfg     Config
	logger  zerolog.Logger
	metrics Recorder

	mu   sync.Mutex
	wake chan struct{}
}

// New creates a queue over the given pool
func New(pool *pgxpool.Pool, cfg Config, logger zerolog.Logger) *Queue {
	return &Queue{
		pool:    pool,
		cfg:     cfg,
		logger:  logger.With().Str("component", "queue").Logger(),
		metrics: nopRecorder{},
		wake:    make(chan struct{}, 1),
	}
}

// WithMetrics sets the metrics recorder
func (q *Queue) WithMetrics(r Recorder) *Queue {
	if r != nil {
		q.metrics = r
	}
	return q
}

// Capacity returns the configured maximum of unfinished chunks
func (q *Queue) Capacity() int {
	return q.cfg.MaxSize
}

// Wake returns the channel signalled whenever new chunks are enqueued.
// At most one signal is buffered; consumers must drain fully after receiving.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Enqueue adds a single chunk and returns its id
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (string, error) {
	if err := q.checkSize(in.Text); err != nil {
		q.metrics.RecordEnqueueRejected("too_large")
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	err := database.InTx(ctx, q.pool, func(tx pgx.Tx) error {
		if err := q.checkCapacity(ctx, tx, 1); err != nil {
			return err
		}

		var jobID *string
		if in.JobID != "" {
			var status database.JobStatus
			err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, in.JobID).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("job %s: %w", in.JobID, database.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("lookup job: %w", err)
			}
			if !status.AcceptsChunks() {
				return fmt.Errorf("job %s is %s: %w", in.JobID, status, ErrJobClosed)
			}
			jobID = &in.JobID
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO text_chunks (id, text, priority, job_id)
			VALUES ($1, $2, $3, $4)
		`, id, in.Text, in.Priority, jobID); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}

		if jobID != nil {
			if _, err := deriveJob(ctx, tx, *jobID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrCapacityExceeded):
			q.metrics.RecordEnqueueRejected("capacity")
		case errors.Is(err, ErrJobClosed):
			q.metrics.RecordEnqueueRejected("job_closed")
		}
		return "", err
	}

	q.metrics.RecordEnqueued("single", 1)
	q.logger.Debug().Str("chunk_id", id).Int("priority", in.Priority).Msg("Chunk enqueued")
	q.notify()
	return id, nil
}

// EnqueueBatch creates one job and all of its chunks atomically.
// Either every chunk is stored or none is.
func (q *Queue) EnqueueBatch(ctx context.Context, items []BatchItem, callbackURL string) (string, error) {
	if len(items) == 0 {
		return "", ErrEmptyBatch
	}
	for i, item := range items {
		if err := q.checkSize(item.Text); err != nil {
			q.metrics.RecordEnqueueRejected("too_large")
			return "", fmt.Errorf("item %d: %w", i, err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	jobID := uuid.NewString()
	err := database.InTx(ctx, q.pool, func(tx pgx.Tx) error {
		if err := q.checkCapacity(ctx, tx, len(items)); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO jobs (id, callback_url, status)
			VALUES ($1, $2, $3)
		`, jobID, callbackURL, database.JobPending); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		// queued statements run in order, so seq follows item order
		batch := &pgx.Batch{}
		for _, item := range items {
			batch.Queue(`
				INSERT INTO text_chunks (id, text, priority, job_id)
				VALUES ($1, $2, $3, $4)
			`, uuid.NewString(), item.Text, item.Priority, jobID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			q.metrics.RecordEnqueueRejected("capacity")
		}
		return "", err
	}

	q.metrics.RecordEnqueued("batch", len(items))
	q.logger.Info().Str("job_id", jobID).Int("chunks", len(items)).Msg("Batch enqueued")
	q.notify()
	return jobID, nil
}

// ClaimNext moves the highest-priority, oldest queued chunk to in_progress and
// returns it. It returns nil when nothing is queued.
func (q *Queue) ClaimNext(ctx context.Context) (*database.Chunk, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed *database.Chunk
	err := database.InTx(ctx, q.pool, func(tx pgx.Tx) error {
		chunk, err := scanChunk(tx.QueryRow(ctx, `
			UPDATE text_chunks
			SET status = 'in_progress',
			    processing_start_time = clock_timestamp(),
			    updated_at = clock_timestamp()
			WHERE id = (
				SELECT id FROM text_chunks
				WHERE status = 'queued'
				ORDER BY priority DESC, created_at ASC, seq ASC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+chunkColumns))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim chunk: %w", err)
		}

		if chunk.JobID != nil {
			if _, err := deriveJob(ctx, tx, *chunk.JobID); err != nil {
				return err
			}
		}
		claimed = chunk
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// SetStatus transitions a chunk, stamps the matching timestamp and re-derives
// the parent job's status in the same transaction. reason is stored for failed chunks.
func (q *Queue) SetStatus(ctx context.Context, chunkID string, status database.ChunkStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return database.InTx(ctx, q.pool, func(tx pgx.Tx) error {
		var current database.ChunkStatus
		var jobID *string
		err := tx.QueryRow(ctx, `
			SELECT status, job_id FROM text_chunks WHERE id = $1 FOR UPDATE
		`, chunkID).Scan(&current, &jobID)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", chunkID, database.MapError(err))
		}

		if !current.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}

		switch status {
		case database.ChunkInProgress:
			_, err = tx.Exec(ctx, `
				UPDATE text_chunks
				SET status = $2, processing_start_time = clock_timestamp(), updated_at = clock_timestamp()
				WHERE id = $1
			`, chunkID, status)
		case database.ChunkFailed:
			_, err = tx.Exec(ctx, `
				UPDATE text_chunks
				SET status = $2, error_message = NULLIF($3, ''),
				    processing_end_time = clock_timestamp(), updated_at = clock_timestamp()
				WHERE id = $1
			`, chunkID, status, reason)
		default:
			_, err = tx.Exec(ctx, `
				UPDATE text_chunks
				SET status = $2, processing_end_time = clock_timestamp(), updated_at = clock_timestamp()
				WHERE id = $1
			`, chunkID, status)
		}
		if err != nil {
			return fmt.Errorf("update chunk status: %w", err)
		}

		if jobID != nil {
			if _, err := deriveJob(ctx, tx, *jobID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordAttempt increments the attempt counter of an in-progress chunk
func (q *Queue) RecordAttempt(ctx context.Context, chunkID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	tag, err := q.pool.Exec(ctx, `
		UPDATE text_chunks SET attempts = attempts + 1, updated_at = clock_timestamp()
		WHERE id = $1
	`, chunkID)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s: %w", chunkID, database.ErrNotFound)
	}
	return nil
}

// Snapshot returns per-status counts and the most recent chunks
func (q *Queue) Snapshot(ctx context.Context, limit int) (*Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}

	snap := &Snapshot{
		Counts:   make(map[database.ChunkStatus]int),
		Capacity: q.cfg.MaxSize,
		Recent:   make([]database.Chunk, 0, limit),
	}

	rows, err := q.pool.Query(ctx, `SELECT status, COUNT(*) FROM text_chunks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status database.ChunkStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		snap.Counts[status] = count
		snap.Total += count
		if !status.IsTerminal() {
			snap.Pending += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recent, err := q.pool.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM text_chunks
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent chunks: %w", err)
	}
	defer recent.Close()

	for recent.Next() {
		chunk, err := scanChunk(recent)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		snap.Recent = append(snap.Recent, *chunk)
	}
	return snap, recent.Err()
}

// GetJob returns a job by id
func (q *Queue) GetJob(ctx context.Context, jobID string) (*database.Job, error) {
	var job database.Job
	err := q.pool.QueryRow(ctx, `
		SELECT id, callback_url, status, created_at, updated_at
		FROM jobs WHERE id = $1
	`, jobID).Scan(&job.ID, &job.CallbackURL, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, database.MapError(err))
	}
	return &job, nil
}

// ListJobIDsByStatus returns up to limit job ids in the given status, oldest first
func (q *Queue) ListJobIDsByStatus(ctx context.Context, status database.JobStatus, limit int) ([]string, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id FROM jobs WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// MarkCallbackDispatched moves a completed job to callback_dispatched.
// It reports false when the job was not in the completed state.
func (q *Queue) MarkCallbackDispatched(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = clock_timestamp()
		WHERE id = $1 AND status = $3
	`, jobID, database.JobCallbackDispatched, database.JobCompleted)
	if err != nil {
		return false, fmt.Errorf("mark callback dispatched: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteJob removes a job together with all of its chunks
func (q *Queue) DeleteJob(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return database.InTx(ctx, q.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM text_chunks WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("job %s: %w", jobID, database.ErrNotFound)
		}
		return nil
	})
}

// FailInterrupted fails chunks left in_progress by a previous process.
// Claimed chunks never return to the queue, so they are closed with reason Interrupted.
func (q *Queue) FailInterrupted(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var count int64
	err := database.InTx(ctx, q.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE text_chunks
			SET status = 'failed', error_message = $1,
			    processing_end_time = clock_timestamp(), updated_at = clock_timestamp()
			WHERE status = 'in_progress'
			RETURNING job_id
		`, database.ReasonInterrupted)
		if err != nil {
			return fmt.Errorf("fail interrupted chunks: %w", err)
		}
		jobIDs, err := pgx.CollectRows(rows, pgx.RowTo[*string])
		if err != nil {
			return err
		}
		count = int64(len(jobIDs))

		seen := make(map[string]bool)
		for _, jobID := range jobIDs {
			if jobID == nil || seen[*jobID] {
				continue
			}
			seen[*jobID] = true
			if _, err := deriveJob(ctx, tx, *jobID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		q.logger.Warn().Int64("chunks", count).Msg("Failed chunks interrupted by restart")
	}
	return count, nil
}

func (q *Queue) checkSize(text string) error {
	if q.cfg.ChunkSizeLimit > 0 && utf8.RuneCountInString(text) > q.cfg.ChunkSizeLimit {
		return fmt.Errorf("%w: %d characters allowed", ErrChunkTooLarge, q.cfg.ChunkSizeLimit)
	}
	return nil
}

func (q *Queue) checkCapacity(ctx context.Context, tx pgx.Tx, adding int) error {
	var pending int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM text_chunks WHERE status IN ('queued', 'in_progress')
	`).Scan(&pending)
	if err != nil {
		return fmt.Errorf("count pending chunks: %w", err)
	}
	if pending+adding > q.cfg.MaxSize {
		return fmt.Errorf("%w: %d pending, %d requested, max %d", ErrCapacityExceeded, pending, adding, q.cfg.MaxSize)
	}
	return nil
}

// deriveJob recomputes and stores a job's status from its chunks
func deriveJob(ctx context.Context, tx pgx.Tx, jobID string) (database.JobStatus, error) {
	var current database.JobStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current); err != nil {
		return "", fmt.Errorf("job %s: %w", jobID, database.MapError(err))
	}

	var c database.ChunkCounts
	err := tx.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM text_chunks WHERE job_id = $1
	`, jobID).Scan(&c.Queued, &c.InProgress, &c.Completed, &c.Failed)
	if err != nil {
		return "", fmt.Errorf("count job chunks: %w", err)
	}

	next := database.DeriveJobStatus(current, c)
	if next == current {
		return current, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = clock_timestamp() WHERE id = $1
	`, jobID, next); err != nil {
		return "", fmt.Errorf("update job status: %w", err)
	}
	return next, nil
}

func scanChunk(row pgx.Row) (*database.Chunk, error) {
	var c database.Chunk
	err := row.Scan(
		&c.ID, &c.Text, &c.Priority, &c.Status, &c.Result, &c.ErrorMessage, &c.Attempts,
		&c.ProcessingStartTime, &c.ProcessingEndTime, &c.JobID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
