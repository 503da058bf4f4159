package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kosarica/chunk-service/internal/taskqueue"
)

const defaultPriority = 1

// EnqueueRequest is a single chunk submission
type EnqueueRequest struct {
	Text     string `json:"text" binding:"required" jsonschema:"required"`
	Priority *int   `json:"priority" jsonschema:"description=Higher is served first; defaults to 1"`
	JobID    string `json:"job_id,omitempty" jsonschema:"description=Adds the chunk to an unfinished job"`
}

// EnqueueResponse identifies the queued chunk
type EnqueueResponse struct {
	ChunkID string `json:"chunk_id" jsonschema:"required"`
	Status  string `json:"status" jsonschema:"required"`
}

// BulkChunk is one chunk of a bulk submission
type BulkChunk struct {
	Text     string `json:"text" binding:"required" jsonschema:"required"`
	Priority *int   `json:"priority"`
}

// BulkEnqueueRequest submits chunks under one job with a webhook
type BulkEnqueueRequest struct {
	Chunks      []BulkChunk `json:"chunks" binding:"required,min=1,dive" jsonschema:"required,minItems=1"`
	CallbackURL string      `json:"callback_url" binding:"required,url" jsonschema:"required,format=uri"`
}

// BulkEnqueueResponse identifies the created job
type BulkEnqueueResponse struct {
	JobID      string `json:"job_id" jsonschema:"required"`
	Status     string `json:"status" jsonschema:"required"`
	ChunkCount int    `json:"chunk_count" jsonschema:"required"`
}

// QueueStatusRequest holds the query parameters of /queue/status
type QueueStatusRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func priorityOrDefault(p *int) int {
	if p == nil {
		return defaultPriority
	}
	return *p
}

// EnqueueChunk enqueues a single chunk
// @Summary Enqueue a text chunk
// @Tags queue
// @Accept json
// @Produce json
// @Param request body EnqueueRequest true "Chunk"
// @Success 200 {object} EnqueueResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 409 {object} map[string]string "Job already finished"
// @Failure 503 {object} map[string]string "Queue full"
// @Router /queue [post]
func (h *Handler) EnqueueChunk(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.Queue.Enqueue(c.Request.Context(), taskqueue.EnqueueInput{
		Text:     req.Text,
		Priority: priorityOrDefault(req.Priority),
		JobID:    req.JobID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, EnqueueResponse{ChunkID: id, Status: "queued"})
}

// EnqueueBulk enqueues chunks under a new job
// @Summary Enqueue chunks under one job
// @Description The final result is posted to callback_url once every chunk completed
// @Tags queue
// @Accept json
// @Produce json
// @Param request body BulkEnqueueRequest true "Chunks and callback"
// @Success 200 {object} BulkEnqueueResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 503 {object} map[string]string "Queue full"
// @Router /queue/bulk [post]
func (h *Handler) EnqueueBulk(c *gin.Context) {
	var req BulkEnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]taskqueue.BatchItem, len(req.Chunks))
	for i, chunk := range req.Chunks {
		items[i] = taskqueue.BatchItem{Text: chunk.Text, Priority: priorityOrDefault(chunk.Priority)}
	}

	jobID, err := h.Queue.EnqueueBatch(c.Request.Context(), items, req.CallbackURL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, BulkEnqueueResponse{JobID: jobID, Status: "queued", ChunkCount: len(items)})
}

// QueueStatus returns per-status counts and the most recent chunks
// @Summary Queue status
// @Tags queue
// @Produce json
// @Param limit query int false "Number of recent chunks" default(10) minimum(1) maximum(100)
// @Success 200 {object} taskqueue.Snapshot
// @Failure 400 {object} map[string]string "Invalid request"
// @Router /queue/status [get]
func (h *Handler) QueueStatus(c *gin.Context) {
	var req QueueStatusRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	snap, err := h.Queue.Snapshot(c.Request.Context(), req.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
