package api

import (
	"quranvideo/config"
	"quranvideo/task"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func SetupRouter(m *task.Manager, cfg *config.Config, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	h := NewHandler(m, log)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		// Blocking generation, answers with the video.
		v1.POST("/videos", h.handleGenerate)

		v1.POST("/videos/async", h.handleGenerateAsync)
		v1.GET("/videos/:requestId/file", h.handleGetFile)

		v1.GET("/progress/:requestId", h.handleProgress)
		v1.POST("/subscribe", h.handleSubscribe)
	}
	return r
}
