package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProcessResponse describes a manual processing run
type ProcessResponse struct {
	Processed bool   `json:"processed"`
	ChunkID   string `json:"chunk_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}

// ProcessNext processes the next queued chunk now
// @Summary Process the next chunk
// @Tags processing
// @Produce json
// @Success 200 {object} ProcessResponse
// @Failure 500 {object} map[string]string "Processing failed"
// @Router /process [post]
func (h *Handler) ProcessNext(c *gin.Context) {
	outcome, err := h.Processor.ProcessNext(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if outcome == nil {
		c.JSON(http.StatusOK, ProcessResponse{Processed: false})
		return
	}

	c.JSON(http.StatusOK, ProcessResponse{
		Processed: true,
		ChunkID:   outcome.ChunkID,
		Status:    string(outcome.Status),
		Reason:    outcome.Reason,
		Attempts:  outcome.Attempts,
	})
}

// GetChunkStatus returns the status of one chunk
// @Summary Chunk status
// @Tags processing
// @Produce json
// @Param chunkId path string true "Chunk ID"
// @Success 200 {object} aggregator.ChunkStatus
// @Failure 404 {object} map[string]string "Chunk not found"
// @Router /process/{chunkId}/status [get]
func (h *Handler) GetChunkStatus(c *gin.Context) {
	status, err := h.Results.ChunkStatus(c.Request.Context(), c.Param("chunkId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
