package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qmsuite/correlative/internal/api/cron"
	v1 "github.com/qmsuite/correlative/internal/api/v1"
	"github.com/qmsuite/correlative/internal/config"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/rest/middleware"
	"github.com/qmsuite/correlative/internal/types"
)

type Handlers struct {
	Health        *v1.HealthHandler
	Numbering     *v1.NumberingHandler
	CronNumbering *cron.NumberingCronHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.MetricsMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// v1 routes
	v1Group := router.Group("/v1")

	numbering := v1Group.Group("/numbering")
	numbering.Use(middleware.TenantMiddleware)
	{
		numbering.POST("/codes", handlers.Numbering.GenerateCode)
		numbering.POST("/subcodes", handlers.Numbering.GenerateSubCode)
		numbering.POST("/preview", handlers.Numbering.PreviewCode)
		numbering.GET("/scopes", handlers.Numbering.ListScopes)
		numbering.GET("/logs", handlers.Numbering.ListLogs)
	}

	// cron routes are expected to be reachable from the scheduler only
	cronGroup := v1Group.Group("/cron")
	cronGroup.Use(middleware.CronMiddleware)
	{
		cronNumbering := cronGroup.Group("/numbering/reset")
		cronNumbering.POST("/annual", handlers.CronNumbering.ResetAnnual)
		cronNumbering.POST("/monthly", handlers.CronNumbering.ResetMonthly)
	}

	logger.Debugw("router initialized", "mode", cfg.Deployment.Mode)
	return router
}
