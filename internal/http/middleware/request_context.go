package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/platform/ctxutil"
)

// AttachRequestContext lifts gateway identity and correlation headers into
// the request context. Authentication itself happens upstream; this service
// trusts X-Tenant-ID and X-User-ID the way it trusts the network path they
// arrived on.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID := strings.TrimSpace(c.GetHeader("X-Trace-ID"))
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: requestID,
		})

		rd := &ctxutil.RequestData{}
		if id, err := uuid.Parse(strings.TrimSpace(c.GetHeader("X-Tenant-ID"))); err == nil {
			rd.TenantID = id
		}
		if id, err := uuid.Parse(strings.TrimSpace(c.GetHeader("X-User-ID"))); err == nil {
			rd.UserID = id
		}
		ctx = ctxutil.WithRequestData(ctx, rd)

		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireIdentity rejects requests whose gateway headers did not resolve to
// a tenant and user.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil || rd.TenantID == uuid.Nil || rd.UserID == uuid.Nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing tenant/user identity"})
			return
		}
		c.Next()
	}
}
