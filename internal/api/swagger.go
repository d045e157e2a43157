package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"snapcam/docs"
)

func (s *Server) setupSwagger() {
	if s.config.SwaggerHost != "" {
		docs.SwaggerInfo.Host = s.config.SwaggerHost
	}

	s.router.GET("/api/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"title":       docs.SwaggerInfo.Title,
			"version":     s.config.Version,
			"description": docs.SwaggerInfo.Description,
			"swagger_ui":  "/docs/index.html",
			"endpoints": gin.H{
				"ui":      "/",
				"health":  "/health",
				"status":  "/status",
				"stream":  "/stream",
				"ws":      "/ws",
				"capture": "/capture",
				"config":  "/config",
				"system":  "/system/stats",
			},
			"instance_id": s.config.InstanceID,
			"port":        s.config.Port,
		})
	})

	s.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
}
