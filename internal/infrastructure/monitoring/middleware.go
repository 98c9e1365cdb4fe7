package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deltat/coreservice/internal/infrastructure/tracing"
)

// Middleware creates a Gin middleware for metrics collection. Requests are
// labelled by route template, never by raw path.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		route := c.FullPath()
		if route == "" {
			route = tracing.UnmatchedRoute
		}

		// Get request size
		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		metrics.RequestsInFlight.Inc()
		status := "500"
		defer func() {
			metrics.RequestsInFlight.Dec()
			respSize := int64(c.Writer.Size())
			if respSize < 0 {
				respSize = 0
			}
			metrics.RecordHTTPRequest(method, route, status, time.Since(start), reqSize, respSize)
		}()

		c.Next()

		status = strconv.Itoa(c.Writer.Status())
	}
}
