package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader correlates a request across pipeline diagnostics and
// the client's own logs.
const RequestIDHeader = "X-Request-Id"

// requestIDMetadataKey is the pluginabi.Request.Metadata key a plugin can
// read to log or forward the same correlation ID.
const requestIDMetadataKey = "request.id"

// requestID generates (or preserves, for a client that already set one)
// a correlation ID and echoes it back on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDMetadataKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
