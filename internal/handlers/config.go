package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kosarica/chunk-service/internal/settings"
)

// UpdateConfig changes the stored API configuration
// @Summary Update API configuration
// @Tags configuration
// @Accept json
// @Produce json
// @Security AdminKey
// @Param request body settings.UpdateInput true "Settings to change"
// @Success 200 {object} settings.View
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Missing admin key"
// @Failure 403 {object} map[string]string "Invalid admin key"
// @Router /config/update_config [post]
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req settings.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Settings.Update(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info().Msg("API configuration updated")
	c.JSON(http.StatusOK, view)
}

// GetConfig returns the API configuration with the key masked
// @Summary Get API configuration
// @Tags configuration
// @Produce json
// @Security AdminKey
// @Success 200 {object} settings.View
// @Failure 401 {object} map[string]string "Missing admin key"
// @Failure 403 {object} map[string]string "Invalid admin key"
// @Router /config/get_config [get]
func (h *Handler) GetConfig(c *gin.Context) {
	view, err := h.Settings.Current(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
