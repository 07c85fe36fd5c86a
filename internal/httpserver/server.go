package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playfastgg/pingmap/internal/config"
	"github.com/playfastgg/pingmap/internal/handlers"
	"github.com/playfastgg/pingmap/internal/legacy"
	"github.com/playfastgg/pingmap/internal/ratelimit"
	"github.com/playfastgg/pingmap/internal/store"
)

// corsMiddleware opens the API to any origin. Reports come from
// arbitrary game-site pages, so the endpoints must be cross-origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NewRouter wires the public endpoints.
// Telemetry: /report (rate-limited when configured), /heatmap
// Operational: /health, /ready, /metrics
func NewRouter(cfg config.Config, log *slog.Logger, st *store.PostgresStore, merger *legacy.Merger, limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	reportGroup := r.Group("/")
	if limiter != nil {
		reportGroup.Use(limiter.Middleware(handlers.ClientIP))
	}
	handlers.RegisterReportRoutes(reportGroup, log, st, cfg.IPHashSalt)

	handlers.RegisterHeatmapRoutes(r, log, st, merger)

	return r
}
