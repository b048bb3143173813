package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/docbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docbridge-backend/internal/http/middleware"
	"github.com/yungbote/docbridge-backend/internal/observability"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	DocumentHandler *httpH.DocumentHandler
	SearchHandler   *httpH.SearchHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("docbridge-api"))
	r.Use(httpMW.RequestID())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.DocumentHandler != nil {
			api.POST("/documents", cfg.DocumentHandler.Create)
			api.GET("/documents", cfg.DocumentHandler.List)
			api.GET("/documents/:slug", cfg.DocumentHandler.Get)
			api.GET("/documents/:slug/chunks", cfg.DocumentHandler.Chunks)
			api.GET("/documents/:slug/quiz", cfg.DocumentHandler.Quiz)
			api.GET("/documents/:slug/progress", cfg.DocumentHandler.Progress)
			api.POST("/documents/:slug/reingest", cfg.DocumentHandler.Reingest)
			api.POST("/documents/:slug/quiz/regenerate", cfg.DocumentHandler.RegenerateQuiz)
			api.GET("/documents/:slug/related", cfg.DocumentHandler.Related)
		}

		if cfg.SearchHandler != nil {
			api.GET("/search", cfg.SearchHandler.Search)
		}
	}

	return r
}
