package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey    = "request_id"
	userIDKey       = "user_id"
	requestIDHeader = "X-Request-ID"
	userIDHeader    = "X-User-Id"
)

// requestLogger tags each request with an id, echoing a client-supplied one,
// and logs its completion.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		start := time.Now()
		c.Next()
		log.Info("request completed",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("user", c.GetString(userIDKey)))
	}
}

// requireUser reads the acting user from X-User-Id. Authentication happens
// in front of this service.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader(userIDHeader)
		if user == "" {
			_ = c.Error(unauthorized())
			c.Abort()
			return
		}
		c.Set(userIDKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) string { return c.GetString(userIDKey) }
