package middleware

import (
	"context"
	"strings"

	"codearena/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"
)

// TraceContextMiddleware ensures trace/request ids are present in the gin context,
// the request context and the response headers. A caller-supplied user id is
// propagated as-is; the judge never authenticates it.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = propagate(c, ctx, traceIDHeader, contextkey.TraceID, true)
		ctx = propagate(c, ctx, requestIDHeader, contextkey.RequestID, true)
		ctx = propagate(c, ctx, userIDHeader, contextkey.UserID, false)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func propagate(c *gin.Context, ctx context.Context, header string, key interface{ String() string }, generate bool) context.Context {
	value := strings.TrimSpace(c.GetHeader(header))
	if value == "" {
		if !generate {
			return ctx
		}
		value = uuid.NewString()
	}
	c.Set(key.String(), value)
	c.Writer.Header().Set(header, value)
	return context.WithValue(ctx, key, value)
}
