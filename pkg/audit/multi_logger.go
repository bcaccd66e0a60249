package audit

import (
	"context"
	"errors"
)

// MultiLogger fans out every event to several sinks. Each sink is attempted
// even when an earlier one fails; the errors are joined.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers into one.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.LogAuthentication(ctx, eventType, userID, username, status, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.LogAuthorization(ctx, eventType, userID, resourceType, resourceID, status, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
