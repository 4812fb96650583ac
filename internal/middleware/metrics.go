package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/marsha-lti/internal/service"
)

// Metrics observes every request under its route template so launch ids do
// not explode label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
