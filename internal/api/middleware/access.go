package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deltat/coreservice/internal/infrastructure/logging"
)

// AccessLog writes one line per request after the handler returns:
//
//	method=GET path="/api/v1/" status=200 duration=0.0004 request_id=req_... trace_id=...
//
// The line goes through the request context so it carries the trace id of
// the active span. When the handler panics the line is still written, with
// status 500 at error level, and the panic continues outward.
func AccessLog(logger *logging.Logger, level zapcore.Level) gin.HandlerFunc {
	if level > zapcore.ErrorLevel {
		level = zapcore.ErrorLevel
	}

	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		completed := false
		defer func() {
			status := c.Writer.Status()
			lvl := level
			if !completed {
				status = http.StatusInternalServerError
				lvl = zapcore.ErrorLevel
			}

			ce := logger.WithContext(c.Request.Context()).
				Check(lvl, fmt.Sprintf("method=%s path=%q status=%d", method, path, status))
			if ce == nil {
				return
			}
			fields := []zap.Field{zap.Duration("duration", time.Since(start))}
			if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
				fields = append(fields, zap.String("errors", errs.String()))
			}
			if !completed {
				fields = append(fields, zap.Bool("panic", true))
			}
			ce.Write(fields...)
		}()

		c.Next()
		completed = true
	}
}
