package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/querymesh/querymesh/internal/metrics"
)

// Metrics records per-route request counts and latency. Labels use the
// route pattern, not the raw path, to keep cardinality bounded.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		elapsed := time.Since(start).Seconds()

		metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(elapsed)
	}
}
