package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc reports whether the worker's backends are reachable.
type HealthFunc func(ctx context.Context) error

type Router struct {
	Engine *gin.Engine
}

// NewRouter serves /healthz and /metrics. A nil health func always passes.
func NewRouter(logger *zap.Logger, health HealthFunc) *Router {
	if health == nil {
		health = func(context.Context) error { return nil }
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	check := func(c *gin.Context) error {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err := health(ctx)
		if err != nil {
			logger.Warn("Health check failed", zap.Error(err))
		}
		return err
	}

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		if err := check(c); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		if err := check(c); err != nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusOK)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Router{Engine: r}
}
