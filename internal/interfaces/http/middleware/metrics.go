package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request count and latency per route template, so /runs/:id
// is one series regardless of the id.  Unmatched routes are recorded as
// "unmatched".
func Metrics(metrics *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prometheus.RecordHTTPRequest(metrics, c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
