package taskqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/kosarica/chunk-service/internal/testdb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(pool *pgxpool.Pool, maxSize int) *Queue {
	return New(pool, Config{MaxSize: maxSize, ChunkSizeLimit: 50}, zerolog.Nop())
}

func TestQueue(t *testing.T) {
	pool := testdb.New(t)
	ctx := context.Background()

	t.Run("enqueue returns unique ids until capacity", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 3)

		ids := make(map[string]bool)
		for i := 0; i < 3; i++ {
			id, err := q.Enqueue(ctx, EnqueueInput{Text: "chunk", Priority: 1})
			require.NoError(t, err)
			assert.False(t, ids[id], "duplicate id %s", id)
			ids[id] = true
		}

		_, err := q.Enqueue(ctx, EnqueueInput{Text: "overflow", Priority: 1})
		assert.ErrorIs(t, err, ErrCapacityExceeded)

		snap, err := q.Snapshot(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, snap.Total)
	})

	t.Run("capacity counts only unfinished chunks", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 1)

		id, err := q.Enqueue(ctx, EnqueueInput{Text: "first"})
		require.NoError(t, err)

		claimed, err := q.ClaimNext(ctx)
		require.NoError(t, err)
		require.Equal(t, id, claimed.ID)
		require.NoError(t, q.SetStatus(ctx, id, database.ChunkCompleted, ""))

		_, err = q.Enqueue(ctx, EnqueueInput{Text: "second"})
		assert.NoError(t, err)
	})

	t.Run("enqueue signals wake-up", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		_, err := q.Enqueue(ctx, EnqueueInput{Text: "x"})
		require.NoError(t, err)

		select {
		case <-q.Wake():
		default:
			t.Fatal("expected a wake-up signal")
		}
	})

	t.Run("oversized text is rejected", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		_, err := q.Enqueue(ctx, EnqueueInput{Text: string(make([]byte, 51))})
		assert.ErrorIs(t, err, ErrChunkTooLarge)
	})

	t.Run("enqueue under unknown job fails", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		_, err := q.Enqueue(ctx, EnqueueInput{Text: "x", JobID: "missing"})
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("enqueue under finished job fails", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		jobID, err := q.EnqueueBatch(ctx, []BatchItem{{Text: "a"}}, "https://example.com/hook")
		require.NoError(t, err)

		// still open while its chunk waits
		_, err = q.Enqueue(ctx, EnqueueInput{Text: "b", JobID: jobID})
		require.NoError(t, err)

		for {
			chunk, err := q.ClaimNext(ctx)
			require.NoError(t, err)
			if chunk == nil {
				break
			}
			require.NoError(t, q.SetStatus(ctx, chunk.ID, database.ChunkCompleted, ""))
		}
		job, err := q.GetJob(ctx, jobID)
		require.NoError(t, err)
		require.Equal(t, database.JobCompleted, job.Status)

		_, err = q.Enqueue(ctx, EnqueueInput{Text: "late", JobID: jobID})
		assert.ErrorIs(t, err, ErrJobClosed)

		var chunks int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM text_chunks WHERE job_id = $1`, jobID).Scan(&chunks))
		assert.Equal(t, 2, chunks)
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 4)

		_, err := q.Enqueue(ctx, EnqueueInput{Text: "existing"})
		require.NoError(t, err)

		items := []BatchItem{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
		_, err = q.EnqueueBatch(ctx, items, "https://example.com/hook")
		assert.ErrorIs(t, err, ErrCapacityExceeded)

		var jobs, chunks int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&jobs))
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM text_chunks`).Scan(&chunks))
		assert.Equal(t, 0, jobs)
		assert.Equal(t, 1, chunks)

		jobID, err := q.EnqueueBatch(ctx, items[:3], "https://example.com/hook")
		require.NoError(t, err)

		job, err := q.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, database.JobPending, job.Status)
		assert.Equal(t, "https://example.com/hook", job.CallbackURL)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 4)

		_, err := q.EnqueueBatch(ctx, nil, "https://example.com/hook")
		assert.ErrorIs(t, err, ErrEmptyBatch)
	})

	t.Run("claim order is priority then creation", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		low, _ := q.Enqueue(ctx, EnqueueInput{Text: "low", Priority: 1})
		highOld, _ := q.Enqueue(ctx, EnqueueInput{Text: "high-old", Priority: 5})
		highNew, _ := q.Enqueue(ctx, EnqueueInput{Text: "high-new", Priority: 5})
		mid, _ := q.Enqueue(ctx, EnqueueInput{Text: "mid", Priority: 3})

		var order []string
		for {
			chunk, err := q.ClaimNext(ctx)
			require.NoError(t, err)
			if chunk == nil {
				break
			}
			assert.Equal(t, database.ChunkInProgress, chunk.Status)
			assert.NotNil(t, chunk.ProcessingStartTime)
			order = append(order, chunk.ID)
		}

		assert.Equal(t, []string{highOld, highNew, mid, low}, order)
	})

	t.Run("concurrent claims never return the same chunk", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 50)

		for i := 0; i < 20; i++ {
			_, err := q.Enqueue(ctx, EnqueueInput{Text: "c", Priority: i % 3})
			require.NoError(t, err)
		}

		var mu sync.Mutex
		seen := make(map[string]int)
		var wg sync.WaitGroup
		for w := 0; w < 5; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					chunk, err := q.ClaimNext(ctx)
					if err != nil || chunk == nil {
						return
					}
					mu.Lock()
					seen[chunk.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, 20)
		for id, n := range seen {
			assert.Equal(t, 1, n, "chunk %s claimed %d times", id, n)
		}
	})

	t.Run("job status follows chunk outcomes", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		jobID, err := q.EnqueueBatch(ctx, []BatchItem{{Text: "a"}, {Text: "b"}}, "https://example.com/hook")
		require.NoError(t, err)

		first, err := q.ClaimNext(ctx)
		require.NoError(t, err)
		assertJobStatus(t, q, jobID, database.JobInProgress)

		require.NoError(t, q.SetStatus(ctx, first.ID, database.ChunkCompleted, ""))
		assertJobStatus(t, q, jobID, database.JobInProgress)

		second, err := q.ClaimNext(ctx)
		require.NoError(t, err)
		require.NoError(t, q.SetStatus(ctx, second.ID, database.ChunkFailed, database.ReasonRetriesExhausted))
		assertJobStatus(t, q, jobID, database.JobFailed)

		var reason string
		require.NoError(t, pool.QueryRow(ctx, `SELECT error_message FROM text_chunks WHERE id = $1`, second.ID).Scan(&reason))
		assert.Equal(t, database.ReasonRetriesExhausted, reason)
	})

	t.Run("completed job is dispatched once", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		jobID, err := q.EnqueueBatch(ctx, []BatchItem{{Text: "a"}}, "https://example.com/hook")
		require.NoError(t, err)
		chunk, err := q.ClaimNext(ctx)
		require.NoError(t, err)
		require.NoError(t, q.SetStatus(ctx, chunk.ID, database.ChunkCompleted, ""))
		assertJobStatus(t, q, jobID, database.JobCompleted)

		ids, err := q.ListJobIDsByStatus(ctx, database.JobCompleted, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{jobID}, ids)

		ok, err := q.MarkCallbackDispatched(ctx, jobID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = q.MarkCallbackDispatched(ctx, jobID)
		require.NoError(t, err)
		assert.False(t, ok)
		assertJobStatus(t, q, jobID, database.JobCallbackDispatched)
	})

	t.Run("invalid transitions are rejected", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		id, err := q.Enqueue(ctx, EnqueueInput{Text: "x"})
		require.NoError(t, err)

		assert.ErrorIs(t, q.SetStatus(ctx, id, database.ChunkCompleted, ""), ErrInvalidTransition)
		assert.ErrorIs(t, q.SetStatus(ctx, id, database.ChunkQueued, ""), ErrInvalidTransition)
		assert.ErrorIs(t, q.SetStatus(ctx, "missing", database.ChunkInProgress, ""), database.ErrNotFound)
	})

	t.Run("delete job removes its chunks", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		jobID, err := q.EnqueueBatch(ctx, []BatchItem{{Text: "a"}, {Text: "b"}}, "https://example.com/hook")
		require.NoError(t, err)
		standalone, err := q.Enqueue(ctx, EnqueueInput{Text: "solo"})
		require.NoError(t, err)

		require.NoError(t, q.DeleteJob(ctx, jobID))

		_, err = q.GetJob(ctx, jobID)
		assert.ErrorIs(t, err, database.ErrNotFound)

		var remaining []string
		rows, err := pool.Query(ctx, `SELECT id FROM text_chunks`)
		require.NoError(t, err)
		for rows.Next() {
			var id string
			require.NoError(t, rows.Scan(&id))
			remaining = append(remaining, id)
		}
		assert.Equal(t, []string{standalone}, remaining)

		assert.ErrorIs(t, q.DeleteJob(ctx, jobID), database.ErrNotFound)
	})

	t.Run("interrupted chunks fail on restart", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		jobID, err := q.EnqueueBatch(ctx, []BatchItem{{Text: "a"}}, "https://example.com/hook")
		require.NoError(t, err)
		_, err = q.ClaimNext(ctx)
		require.NoError(t, err)

		n, err := New(pool, Config{MaxSize: 10}, zerolog.Nop()).FailInterrupted(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assertJobStatus(t, q, jobID, database.JobFailed)
	})

	t.Run("snapshot reports counts and recent chunks", func(t *testing.T) {
		testdb.Truncate(t, pool)
		q := newTestQueue(pool, 10)

		for _, text := range []string{"a", "b", "c"} {
			_, err := q.Enqueue(ctx, EnqueueInput{Text: text})
			require.NoError(t, err)
		}
		_, err := q.ClaimNext(ctx)
		require.NoError(t, err)

		snap, err := q.Snapshot(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, snap.Total)
		assert.Equal(t, 3, snap.Pending)
		assert.Equal(t, 2, snap.Counts[database.ChunkQueued])
		assert.Equal(t, 1, snap.Counts[database.ChunkInProgress])
		require.Len(t, snap.Recent, 2)
		assert.Equal(t, "c", snap.Recent[0].Text)
	})
}

func assertJobStatus(t *testing.T, q *Queue, jobID string, expected database.JobStatus) {
	t.Helper()
	job, err := q.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, expected, job.Status)
}
