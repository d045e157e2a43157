package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"snapcam/internal/logging"
	"snapcam/internal/models"
	"snapcam/internal/services"
	"snapcam/internal/services/settings"
)

const maxBaseNameLen = 200

type CaptureHandler struct {
	container *services.ServiceContainer
}

func NewCaptureHandler(container *services.ServiceContainer) *CaptureHandler {
	return &CaptureHandler{container: container}
}

// @Summary Capture a still image
// @Description Saves a fresh frame as image_<name>_pc<DDMMYY>T<HHMMSS><±HH>.jpg in the save directory
// @Tags capture
// @Accept json
// @Produce json
// @Param capture body models.CaptureRequest false "Base name for the file"
// @Success 200 {object} models.CaptureResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /capture [post]
func (h *CaptureHandler) Capture(c *gin.Context) {
	var req models.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, fmt.Errorf("%w: %v", settings.ErrInvalid, err))
		return
	}

	base := req.BaseName()
	if len(base) > maxBaseNameLen {
		respondError(c, fmt.Errorf("%w: name longer than %d bytes", settings.ErrInvalid, maxBaseNameLen))
		return
	}

	saved, err := h.container.CaptureSvc.Capture(c.Request.Context(), base)
	if err != nil {
		respondError(c, err)
		return
	}

	logging.Info(c).Str("path", saved.Path).Uint64("seq", saved.Seq).Msg("Image captured")
	c.JSON(http.StatusOK, models.CaptureResponse{OK: true, SavedImage: *saved})
}
