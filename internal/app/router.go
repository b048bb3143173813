package app

import (
	httpsrv "github.com/yungbote/docbridge-backend/internal/http"
	"github.com/yungbote/docbridge-backend/internal/observability"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, metrics *observability.Metrics, h Handlers) *httpsrv.Server {
	log.Info("Wiring router...")
	return httpsrv.NewServer(httpsrv.RouterConfig{
		Log:     log,
		Metrics: metrics,

		DocumentHandler: h.Documents,
		SearchHandler:   h.Search,
		HealthHandler:   h.Health,
	})
}
