package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CacheControl lets clients reuse GET responses for maxAgeSeconds. Responses
// carry caller-specific data, so shared caches must not store them.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAgeSeconds))
		}
		c.Next()
	}
}
