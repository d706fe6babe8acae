package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the handler into a gin engine:
//
//	GET  /        upload page
//	GET  /health  liveness and model state
//	POST /process multipart upload, returns a PNG
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", requestIDHeader}

	r.Use(RequestLogger(logger), Recovery(logger), cors.New(corsConfig))

	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.POST("/process", h.Process)
	return r
}
