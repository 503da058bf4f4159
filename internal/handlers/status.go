package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/taskqueue"
)

// FinalResultResponse carries a job's joined result
type FinalResultResponse struct {
	JobID       string `json:"job_id"`
	FinalResult string `json:"final_result"`
}

// DebugResponse bundles the runtime state useful when diagnosing the service
type DebugResponse struct {
	Config     DebugInfo           `json:"config"`
	Queue      *taskqueue.Snapshot `json:"queue"`
	RateLimits ratelimit.Snapshot  `json:"rate_limits"`
	Metrics    *aggregator.Metrics `json:"metrics"`
}

// GetFinalResult returns the joined result of a job's completed chunks.
// Results of closed jobs are served from the cache when one is configured.
// @Summary Final result of a job
// @Tags status
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} FinalResultResponse
// @Failure 404 {object} map[string]string "No result available"
// @Router /status/final_result/{jobId} [get]
func (h *Handler) GetFinalResult(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("jobId")

	if h.Cache != nil {
		cached, ok, err := h.Cache.Get(ctx, jobID)
		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Result cache read failed")
		} else if ok {
			c.JSON(http.StatusOK, FinalResultResponse{JobID: jobID, FinalResult: cached})
			return
		}
	}

	result, ok, err := h.Results.FinalResult(ctx, jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no results available for the given job_id"})
		return
	}

	if h.Cache != nil {
		h.cacheIfClosed(c, jobID, result)
	}
	c.JSON(http.StatusOK, FinalResultResponse{JobID: jobID, FinalResult: result})
}

// cacheIfClosed stores the result once the job can no longer change
func (h *Handler) cacheIfClosed(c *gin.Context, jobID, result string) {
	ctx := c.Request.Context()
	job, err := h.Queue.GetJob(ctx, jobID)
	if err != nil || !job.Status.IsClosed() {
		return
	}
	if err := h.Cache.Set(ctx, jobID, result); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Result cache write failed")
	}
}

// GetJobStatus returns a job
// @Summary Job status
// @Tags status
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} database.Job
// @Failure 404 {object} map[string]string "Job not found"
// @Router /status/jobs/{jobId} [get]
func (h *Handler) GetJobStatus(c *gin.Context) {
	job, err := h.Queue.GetJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeliveriesResponse lists the archived webhook deliveries of a job
type DeliveriesResponse struct {
	JobID      string               `json:"job_id"`
	Deliveries []callbacks.Delivery `json:"deliveries"`
}

// GetDeliveries returns the archived webhook delivery records of a job
// @Summary Webhook deliveries of a job
// @Tags status
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} DeliveriesResponse
// @Failure 404 {object} map[string]string "No delivery recorded"
// @Failure 503 {object} map[string]string "Delivery archive disabled"
// @Router /status/deliveries/{jobId} [get]
func (h *Handler) GetDeliveries(c *gin.Context) {
	if h.Deliveries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "delivery archive is disabled"})
		return
	}

	jobID := c.Param("jobId")
	deliveries, err := h.Deliveries.Deliveries(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if len(deliveries) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no delivery recorded for the given job_id"})
		return
	}
	c.JSON(http.StatusOK, DeliveriesResponse{JobID: jobID, Deliveries: deliveries})
}

// GetRateLimits returns the outbound limiter state
// @Summary Rate limit status
// @Tags status
// @Produce json
// @Success 200 {object} ratelimit.Snapshot
// @Router /status/rate_limits [get]
func (h *Handler) GetRateLimits(c *gin.Context) {
	c.JSON(http.StatusOK, h.RateLimits.Snapshot())
}

// GetMetrics returns queue length, average response time and success rate
// @Summary Processing metrics
// @Tags status
// @Produce json
// @Success 200 {object} aggregator.Metrics
// @Router /status/metrics [get]
func (h *Handler) GetMetrics(c *gin.Context) {
	m, err := h.Results.Metrics(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GetDebug returns configuration and runtime state without secrets
// @Summary Debug information
// @Tags status
// @Produce json
// @Success 200 {object} DebugResponse
// @Router /status/debug [get]
func (h *Handler) GetDebug(c *gin.Context) {
	ctx := c.Request.Context()

	snap, err := h.Queue.Snapshot(ctx, 10)
	if err != nil {
		h.writeError(c, err)
		return
	}
	m, err := h.Results.Metrics(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, DebugResponse{
		Config:     h.Debug,
		Queue:      snap,
		RateLimits: h.RateLimits.Snapshot(),
		Metrics:    m,
	})
}
