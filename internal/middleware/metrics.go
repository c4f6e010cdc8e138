package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"appointments/internal/pkg/metrics"
)

// Metrics records request latency by route template, so ids do not explode
// label cardinality. Unmatched routes are reported as "unmatched". Register
// it before ErrorLogger so recovered panics are observed as 500s.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
