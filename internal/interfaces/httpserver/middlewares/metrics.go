package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/janhq/companion-relay/internal/infrastructure/metrics"
)

// Metrics records HTTP request metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		metrics.RecordHTTPRequest(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}
