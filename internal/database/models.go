package database

import (
	"time"
)

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobPending            JobStatus = "pending"
	JobInProgress         JobStatus = "in_progress"
	JobCompleted          JobStatus = "completed"
	JobFailed             JobStatus = "failed"
	JobCallbackDispatched JobStatus = "callback_dispatched"
)

// ChunkStatus is the lifecycle state of a chunk
type ChunkStatus string

const (
	ChunkQueued     ChunkStatus = "queued"
	ChunkInProgress ChunkStatus = "in_progress"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

// Failure reasons recorded on chunks that did not reach a service-reported error
const (
	ReasonConfigurationIncomplete = "ConfigurationIncomplete"
	ReasonRetriesExhausted        = "RetriesExhausted"
	ReasonInterrupted             = "Interrupted"
)

// Job groups chunks that share one callback destination
type Job struct {
	ID          string    `json:"id"`
	CallbackURL string    `json:"callback_url"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chunk is one unit of text submitted for processing
type Chunk struct {
	ID                  string      `json:"id"`
	Text                string      `json:"text"`
	Priority            int         `json:"priority"`
	Status              ChunkStatus `json:"status"`
	Result              *string     `json:"result,omitempty"`
	ErrorMessage        *string     `json:"error_message,omitempty"`
	Attempts            int         `json:"attempts"`
	ProcessingStartTime *time.Time  `json:"processing_start_time,omitempty"`
	ProcessingEndTime   *time.Time  `json:"processing_end_time,omitempty"`
	JobID               *string     `json:"job_id,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// IsTerminal reports whether the chunk can no longer change state
func (s ChunkStatus) IsTerminal() bool {
	return s == ChunkCompleted || s == ChunkFailed
}

// Valid reports whether s is a known chunk status
func (s ChunkStatus) Valid() bool {
	switch s {
	case ChunkQueued, ChunkInProgress, ChunkCompleted, ChunkFailed:
		return true
	}
	return false
}

// CanTransition reports whether a chunk may move from s to next.
// Chunks only move queued -> in_progress -> {completed, failed}.
func (s ChunkStatus) CanTransition(next ChunkStatus) bool {
	switch s {
	case ChunkQueued:
		return next == ChunkInProgress
	case ChunkInProgress:
		return next == ChunkCompleted || next == ChunkFailed
	}
	return false
}

// IsClosed reports whether the job will not change state again on its own
func (s JobStatus) IsClosed() bool {
	return s == JobFailed || s == JobCallbackDispatched
}

// AcceptsChunks reports whether chunks may still be added to the job
func (s JobStatus) AcceptsChunks() bool {
	return s == JobPending || s == JobInProgress
}

// ChunkCounts tallies a job's chunks by status
type ChunkCounts struct {
	Queued     int
	InProgress int
	Completed  int
	Failed     int
}

// Total returns the number of chunks counted
func (c ChunkCounts) Total() int {
	return c.Queued + c.InProgress + c.Completed + c.Failed
}

// DeriveJobStatus computes a job's status from its chunk tally.
// callback_dispatched is sticky; otherwise the job is completed when every chunk
// completed, failed when every chunk is terminal and one failed, and pending until
// any chunk has left the queue.
func DeriveJobStatus(current JobStatus, c ChunkCounts) JobStatus {
	if current == JobCallbackDispatched {
		return current
	}

	total := c.Total()
	if total > 0 && c.Completed+c.Failed == total {
		if c.Failed > 0 {
			return JobFailed
		}
		return JobCompleted
	}

	if c.InProgress+c.Completed+c.Failed > 0 {
		return JobInProgress
	}
	return JobPending
}
