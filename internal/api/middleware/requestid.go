package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/deltat/coreservice/internal/shared/id"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestID reuses a sane client supplied X-Request-ID or mints one, stores
// it in the request context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID, ok := id.Sanitize(c.GetHeader(HeaderRequestID))
		if !ok {
			reqID = id.NewRequestID()
		}

		c.Request = c.Request.WithContext(id.NewContext(c.Request.Context(), reqID))
		c.Header(HeaderRequestID, reqID.String())
		c.Next()
	}
}
