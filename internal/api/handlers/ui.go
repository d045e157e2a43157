package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"snapcam/internal/api/web"
)

// Index serves the embedded single page UI.
func Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML())
}
