package handlers

import (
	"github.com/gin-gonic/gin"

	"snapcam/internal/logging"
	"snapcam/internal/models"
	"snapcam/internal/services"
)

// errorMessages are the user facing texts per error kind. The UI shows them
// as is.
var errorMessages = map[string]string{
	services.KindNoCamera:          "No camera is available",
	services.KindCameraLost:        "Camera connection lost, reconnecting",
	services.KindDeviceUnavailable: "Camera device could not be opened",
	services.KindIOFailure:         "Failed to save image",
	services.KindConflict:          "An image with this name was already captured this second",
	services.KindInvalid:           "Invalid request",
	services.KindTimeout:           "Request timed out",
	services.KindInternal:          "Internal server error",
}

func respondError(c *gin.Context, err error) {
	kind, status := services.Classify(err)
	msg := errorMessages[kind]

	ev := logging.Warn(c)
	if status >= 500 && kind != services.KindNoCamera && kind != services.KindCameraLost {
		ev = logging.Error(c)
	}
	ev.Err(err).
		Str("kind", kind).
		Int("status", status).
		Str("path", c.Request.URL.Path).
		Msg(msg)

	c.AbortWithStatusJSON(status, models.ErrorResponse{
		OK:      false,
		Kind:    kind,
		Error:   msg,
		Message: err.Error(),
	})
}
