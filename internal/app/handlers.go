package app

import (
	httpH "github.com/yungbote/docbridge-backend/internal/http/handlers"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type Handlers struct {
	Documents *httpH.DocumentHandler
	Search    *httpH.SearchHandler
	Health    *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, svcs Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Documents: httpH.NewDocumentHandler(log, svcs.Documents),
		Search:    httpH.NewSearchHandler(log, svcs.Documents),
		Health:    httpH.NewHealthHandler(),
	}
}
