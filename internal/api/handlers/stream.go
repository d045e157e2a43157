package handlers

import (
	"github.com/gin-gonic/gin"

	"snapcam/internal/services"
)

type StreamHandler struct {
	container *services.ServiceContainer
}

func NewStreamHandler(container *services.ServiceContainer) *StreamHandler {
	return &StreamHandler{container: container}
}

// @Summary Live MJPEG stream
// @Description multipart/x-mixed-replace stream of JPEG frames, boundary "frame"
// @Tags stream
// @Produce multipart/x-mixed-replace
// @Success 200
// @Failure 503 {object} models.ErrorResponse
// @Router /stream [get]
func (h *StreamHandler) MJPEG(c *gin.Context) {
	if err := h.container.PublisherSvc.StreamMJPEGHTTP(c.Writer, c.Request); err != nil {
		respondError(c, err)
	}
}

// @Summary Live WebSocket stream
// @Description Upgrades to a WebSocket that carries one JPEG per binary message
// @Tags stream
// @Success 101
// @Failure 503 {object} models.ErrorResponse
// @Router /ws [get]
func (h *StreamHandler) WebSocket(c *gin.Context) {
	if err := h.container.PublisherSvc.StreamWebSocket(c.Writer, c.Request); err != nil {
		respondError(c, err)
	}
}
