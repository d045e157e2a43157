package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"snapcam/internal/services"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	container *services.ServiceContainer
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(container *services.ServiceContainer) *SystemHandler {
	return &SystemHandler{container: container}
}

// @Summary Get system stats
// @Description Get process and acquisition statistics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	st := h.container.CameraManager.Status()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"instance_id":    h.container.Config.InstanceID,
			"version":        h.container.Config.Version,
			"uptime_seconds": int64(time.Since(h.container.StartedAt).Seconds()),
			"memory_mb":      m.Alloc / 1024 / 1024,
			"cpu_cores":      runtime.NumCPU(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
			"frames":         st.FrameCount,
			"read_errors":    st.ErrorCount,
			"subscribers":    st.Subscribers,
		},
		"timestamp": time.Now().Unix(),
	})
}
