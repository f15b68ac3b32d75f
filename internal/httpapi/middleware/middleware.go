package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docunest/docunest/internal/docs"
)

const RequestIDKey = "request_id"

// RequestID tags every request with an id, honoring one supplied by the
// client, and echoes it back in the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			generated, err := docs.NewID()
			if err == nil {
				id = generated
			}
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Recovery converts a handler panic into a 500 without killing the process.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("handler panic",
					"path", c.Request.URL.Path,
					"request_id", c.GetString(RequestIDKey),
					"panic", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal error",
				})
			}
		}()
		c.Next()
	}
}
