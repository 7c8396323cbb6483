package types

import (
	"context"

	"github.com/google/uuid"
)

// RequestContext identifies the caller of a driver operation. Drivers pass
// it through without interpreting it.
type RequestContext struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}

type requestContextKey struct{}

// NewRequestContext returns a RequestContext with a fresh request ID.
func NewRequestContext(userID, projectID string) *RequestContext {
	return &RequestContext{
		RequestID: "req-" + uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
	}
}

// AdminContext returns an administrative RequestContext, used by the
// service itself for periodic tasks.
func AdminContext() *RequestContext {
	rc := NewRequestContext("", "")
	rc.IsAdmin = true
	return rc
}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext carried by ctx, if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// RequestIDFrom returns the request ID carried by ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	if rc, ok := RequestContextFrom(ctx); ok {
		return rc.RequestID
	}
	return ""
}
