package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"snapcam/internal/logging"
	"snapcam/internal/models"
	"snapcam/internal/services"
	"snapcam/internal/services/settings"
)

type ConfigHandler struct {
	container *services.ServiceContainer
}

func NewConfigHandler(container *services.ServiceContainer) *ConfigHandler {
	return &ConfigHandler{container: container}
}

// @Summary Get configuration
// @Description Available cameras, the active camera, its properties and the save directory
// @Tags config
// @Produce json
// @Success 200 {object} models.ConfigResponse
// @Router /config [get]
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.SettingsSvc.Get(c.Request.Context()))
}

// @Summary Update configuration
// @Description Switch camera, set the save directory or adjust camera properties
// @Tags config
// @Accept json
// @Produce json
// @Param config body models.ConfigRequest true "Fields to change"
// @Success 200 {object} models.ConfigResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /config [post]
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var req models.ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", settings.ErrInvalid, err))
		return
	}

	resp, err := h.container.SettingsSvc.Apply(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	logging.Info(c).
		Int("index", resp.CurrentIndex).
		Str("save_dir", resp.SaveDir).
		Strs("unsupported", resp.Unsupported).
		Msg("Configuration updated")
	c.JSON(http.StatusOK, resp)
}
