package app

import (
	httpx "github.com/OperativeX/processmind-sub001/internal/http"
	httpH "github.com/OperativeX/processmind-sub001/internal/http/handlers"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
	"github.com/OperativeX/processmind-sub001/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Record   *httpH.RecordHandler
	Admin    *httpH.AdminHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, svcs Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Record:   httpH.NewRecordHandler(log, svcs.Pipeline, svcs.Record),
		Admin:    httpH.NewAdminHandler(log, svcs.StorageTracking),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

func wireServer(log *logger.Logger, handlers Handlers) *httpx.Server {
	return httpx.NewServer(httpx.RouterConfig{
		Log:             log,
		HealthHandler:   handlers.Health,
		RecordHandler:   handlers.Record,
		AdminHandler:    handlers.Admin,
		RealtimeHandler: handlers.Realtime,
	})
}
