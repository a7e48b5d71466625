package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore marks responses as uncacheable. Session state and lock profiles
// must never be served from a shared cache: a stale profile would carry an
// old exit credential, and session views change every second.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store, max-age=0")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Add("Vary", "Authorization")
		c.Next()
	}
}
