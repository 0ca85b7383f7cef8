// Package api provides HTTP handlers for the querymesh control surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/dbpool"
	"github.com/querymesh/querymesh/internal/ws"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	pool      *dbpool.Pool
	hub       *ws.Hub
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler with the given dependencies.
func NewHealthHandler(pool *dbpool.Pool, hub *ws.Hub, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		hub:       hub,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// Liveness handles GET /api/v1/health. It reports process liveness
// only; no dependency checks.
func (h *HealthHandler) Liveness(c *gin.Context) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"version":    h.version,
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"ws_clients": clients,
	})
}

// readinessTimeout bounds the dependency checks.
const readinessTimeout = 2 * time.Second

// Readiness handles GET /api/v1/ready. Ready means the database
// answers a ping.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		if err := h.pool.Ping(ctx); err != nil {
			h.log.WithError(err).Warn("readiness check failed: database unreachable")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"checks": gin.H{"database": err.Error()},
			})

			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": gin.H{"database": "ok"},
	})
}
