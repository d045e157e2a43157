package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"snapcam/internal/models"
	"snapcam/internal/services"
)

type HealthHandler struct {
	container *services.ServiceContainer
}

func NewHealthHandler(container *services.ServiceContainer) *HealthHandler {
	return &HealthHandler{container: container}
}

type HealthResponse struct {
	Status     string             `json:"status" example:"healthy"`
	InstanceID string             `json:"instance_id" example:"lab-pc"`
	Camera     models.CameraState `json:"camera" example:"running"`
	CameraOK   bool               `json:"camera_ok"`
	Timestamp  time.Time          `json:"timestamp"`
}

type StatusResponse struct {
	Camera        models.CameraStatus `json:"camera"`
	StreamClients map[string]int      `json:"stream_clients"`
	NatsConnected bool                `json:"nats_connected"`
	SaveDir       string              `json:"save_dir"`
	Uptime        string              `json:"uptime"`
}

// @Summary Health check
// @Description Reports whether the service is up and the camera is delivering frames
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	st := h.container.CameraManager.Status()

	ok := st.State == models.CameraStateRunning && !st.Degraded
	if ok && !st.LastFrameTime.IsZero() && time.Since(st.LastFrameTime) > h.container.Config.FrameStaleThreshold {
		ok = false
	}

	status := "healthy"
	if !ok {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:     status,
		InstanceID: h.container.Config.InstanceID,
		Camera:     st.State,
		CameraOK:   ok,
		Timestamp:  time.Now(),
	})
}

// @Summary Service status
// @Description Camera manager state, stream clients and event bus connectivity
// @Tags health
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (h *HealthHandler) Status(c *gin.Context) {
	resp := StatusResponse{
		Camera:        h.container.CameraManager.Status(),
		StreamClients: h.container.PublisherSvc.Clients(),
		SaveDir:       h.container.CaptureSvc.SaveDir(),
		Uptime:        time.Since(h.container.StartedAt).Round(time.Second).String(),
	}
	if h.container.MessagingSvc != nil {
		resp.NatsConnected = h.container.MessagingSvc.IsConnected()
	}
	c.JSON(http.StatusOK, resp)
}
