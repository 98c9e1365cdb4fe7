package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SlashRedirect is a NoRoute handler that redirects to the same path with its
// trailing slash added or removed when a route for that path and method exists.
// It replaces gin's built-in redirect, which answers before the global chain
// runs. GET requests get 301, other methods 307 so the body is replayed.
func SlashRedirect(routes func() gin.RoutesInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		alt := path + "/"
		if len(path) > 1 && strings.HasSuffix(path, "/") {
			alt = strings.TrimSuffix(path, "/")
		}

		for _, r := range routes() {
			if r.Method != c.Request.Method || r.Path != alt {
				continue
			}
			code := http.StatusMovedPermanently
			if c.Request.Method != http.MethodGet {
				code = http.StatusTemporaryRedirect
			}
			u := *c.Request.URL
			u.Path = alt
			u.RawPath = ""
			c.Redirect(code, u.String())
			c.Abort()
			return
		}
	}
}
