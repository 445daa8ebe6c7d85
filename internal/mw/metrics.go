package mw

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"arduino-fleet-backend/internal/metrics"
)

// Metrics records request counts and latencies per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// Unmatched routes would explode label cardinality.
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.RequestTotal.WithLabelValues(path, c.Request.Method, status).Inc()
		metrics.RequestDuration.WithLabelValues(path, c.Request.Method, status).
			Observe(time.Since(start).Seconds())
	}
}
