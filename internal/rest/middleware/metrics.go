package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qmsuite/correlative/internal/metrics"
)

// MetricsMiddleware records request counts and latency per route template
func MetricsMiddleware(c *gin.Context) {
	started := time.Now()
	done := metrics.HTTPInFlight()
	defer done()

	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	metrics.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), started)
}
