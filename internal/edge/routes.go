package edge

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	group := router.Group("/:org/:roomOrRecording")
	group.Use(s.metricsMiddleware(), s.requireToken())
	{
		group.GET("/:playlistFile", s.handlePlaylist)
		group.GET("/:rendition/:mediaFile", s.handleMedia)
	}

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

// metricsMiddleware records every request's route/status/duration via
// Metrics.RecordHTTPRequest, mirroring the teacher's Cache-Control-per-route
// convention but for Prometheus instead of headers.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		c.Next()
		s.deps.Metrics.RecordHTTPRequest(route, c.Writer.Status(), time.Since(start).Seconds())
	}
}
