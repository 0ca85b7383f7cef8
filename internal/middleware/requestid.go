package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDKey is the gin context key for the request ID.
	RequestIDKey = "request_id"

	// ClientRequestIDKey holds an ID the caller sent, if any.
	ClientRequestIDKey = "client_request_id"

	// RequestIDHeader carries the request ID on responses.
	RequestIDHeader = "X-Request-ID"
)

// RequestID tags every request with a server-generated UUID. The
// canonical ID is always ours; an X-Request-ID sent by the caller is
// kept as a separate correlation field, never trusted as the ID itself.
func RequestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(RequestIDKey, id)

		if fromClient := c.GetHeader(RequestIDHeader); fromClient != "" {
			c.Set(ClientRequestIDKey, fromClient)
			log.WithFields(logrus.Fields{
				RequestIDKey:       id,
				ClientRequestIDKey: fromClient,
			}).Debug("correlating client request id")
		}

		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
