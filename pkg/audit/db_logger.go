package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger persists audit events in Postgres. Rows are append-only; this
// subsystem never updates or deletes them.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: database handle is required")
	}
	return &DBLogger{db: db}, nil
}

const insertEventQuery = `
	INSERT INTO audit_events (
		timestamp, event_type, status, user_id, username,
		resource_type, resource_id, ip_address, request_id, message, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Log inserts one event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("audit: encoding event metadata: %w", err)
		}
		metadata = raw
	}

	_, err := l.db.ExecContext(ctx, insertEventQuery,
		event.Timestamp, string(event.EventType), string(event.Status),
		event.UserID, nullString(event.Username),
		nullString(string(event.ResourceType)), nullString(event.ResourceID),
		nullString(event.IPAddress), nullString(event.RequestID),
		nullString(event.Message), metadata,
	)
	if err != nil {
		return fmt.Errorf("audit: inserting event: %w", err)
	}
	return nil
}

// LogAuthentication records a login, logout, or credential event.
func (l *DBLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := newEvent(eventType, status)
	event.UserID = userID
	event.Username = username
	event.Message = message
	return l.Log(ctx, event)
}

// LogAuthorization records an allow/deny decision.
func (l *DBLogger) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := newEvent(eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return l.Log(ctx, event)
}

// Close is a no-op; the pool is owned by the caller.
func (l *DBLogger) Close() error { return nil }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
