package audit

import (
	"context"
	"time"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records a fully-populated audit event
	Log(ctx context.Context, event *Event) error

	// LogAuthentication records a login, logout, or credential event
	LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error

	// LogAuthorization records an allow/deny decision
	LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// Close flushes and releases the underlying sink
	Close() error
}

type contextKey string

// LoggerContextKey is the context key for the audit logger
const LoggerContextKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext retrieves the audit logger from context. Returns a no-op
// logger when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }

func (NopLogger) LogAuthentication(context.Context, EventType, *int64, string, EventStatus, string) error {
	return nil
}

func (NopLogger) LogAuthorization(context.Context, EventType, *int64, ResourceType, string, EventStatus, string) error {
	return nil
}

func (NopLogger) Close() error { return nil }

// newEvent stamps the shared fields of an event.
func newEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}
