package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/OperativeX/processmind-sub001/internal/http/handlers"
	httpMW "github.com/OperativeX/processmind-sub001/internal/http/middleware"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler   *httpH.HealthHandler
	RecordHandler   *httpH.RecordHandler
	AdminHandler    *httpH.AdminHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	api.Use(httpMW.RequireIdentity())
	{
		if cfg.RecordHandler != nil {
			api.POST("/records", cfg.RecordHandler.Upload)
			api.GET("/records/:id/status", cfg.RecordHandler.GetStatus)
			api.DELETE("/records/:id", cfg.RecordHandler.Delete)
		}
		if cfg.RealtimeHandler != nil {
			api.GET("/events", cfg.RealtimeHandler.Stream)
		}
		if cfg.AdminHandler != nil {
			api.GET("/admin/usage", cfg.AdminHandler.GetUsage)
			api.POST("/admin/usage/reconcile", cfg.AdminHandler.ReconcileUsage)
		}
	}

	return r
}
