package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Brownie44l1/dog-breed-api/internal/handlers"
	"github.com/Brownie44l1/dog-breed-api/internal/middleware"
)

// Setup creates and configures the Gin router
func Setup(h *handlers.Handler, logger *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	router.SetHTMLTemplate(handlers.Templates())

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h.Register(router)

	return router
}
