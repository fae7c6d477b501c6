package server

import (
	"github.com/Sternrassler/flowzz-client/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// SetupRouter creates the gin router with all routes.
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())

	router.GET("/health", handler.HealthCheck)
	router.GET("/ready", handler.Ready)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/catalog", handler.GetCatalog)
	router.POST("/catalog/refresh", handler.RefreshCatalog)
	router.GET("/vendors", handler.GetVendors)

	return router
}
