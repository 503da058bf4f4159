package taskqueue

import (
	"errors"

	"github.com/kosarica/chunk-service/internal/database"
)

var (
	// ErrCapacityExceeded is returned when accepting the chunks would push the
	// number of unfinished chunks past the configured maximum.
	ErrCapacityExceeded = errors.New("queue capacity exceeded")
	// ErrChunkTooLarge is returned when a chunk's text exceeds the size limit.
	ErrChunkTooLarge = errors.New("chunk text exceeds size limit")
	// ErrEmptyBatch is returned for a batch without items.
	ErrEmptyBatch = errors.New("batch contains no chunks")
	// ErrInvalidTransition is returned when a chunk status change is not allowed.
	ErrInvalidTransition = errors.New("invalid chunk status transition")
	// ErrJobClosed is returned when a chunk is enqueued under a job that has
	// already finished.
	ErrJobClosed = errors.New("job no longer accepts chunks")
)

// Config bounds the queue
type Config struct {
	MaxSize        int
	ChunkSizeLimit int
}

// EnqueueInput describes a single chunk to enqueue
type EnqueueInput struct {
	Text     string
	Priority int
	JobID    string // optional
}

// BatchItem is one chunk of a bulk enqueue
type BatchItem struct {
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// Snapshot is a read-only view of the queue
type Snapshot struct {
	Counts   map[database.ChunkStatus]int `json:"counts"`
	Total    int                          `json:"total"`
	Pending  int                          `json:"pending"`
	Capacity int                          `json:"capacity"`
	Recent   []database.Chunk             `json:"recent"`
}

// Recorder receives queue metrics
type Recorder interface {
	RecordEnqueued(path string, n int)
	RecordEnqueueRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordEnqueued(string, int)   {}
func (nopRecorder) RecordEnqueueRejected(string) {}
