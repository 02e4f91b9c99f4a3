// Package audit emits structured audit events for credential and
// administrative actions.
package audit

import (
	"context"
	"log/slog"
	"strings"

	"authdesk.org/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Log writes audit entries through the service logger.
type Log struct {
	logger *slog.Logger
}

// New constructs an audit log. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Event records an audit entry enriched with request and principal context.
func (l *Log) Event(ctx context.Context, event string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	attrs := []any{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		attrs = append(attrs, slog.String("actor_id", principal.ID))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, event, attrs...)
}

// Hook adapts the log to the auth package's audit callback, for components
// that emit events without a request context.
func (l *Log) Hook() auth.AuditFunc {
	return func(event string, fields map[string]any) {
		l.Event(context.Background(), event, fields)
	}
}
