package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger writes audit events as JSON lines with size-based rotation.
type FileLogger struct {
	basePath string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	written int64
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Directory for audit logs
	MaxSize  int64  // Max file size in bytes before rotation (default 100MB)
	MaxFiles int    // Max rotated files to keep (default 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/shelfd/audit",
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a file-based audit logger, creating the log
// directory when needed.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *FileLogger) openLogFile() error {
	filename := filepath.Join(l.basePath, "audit.log")

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	l.written = info.Size()
	return nil
}

// rotate renames the current file with a timestamp suffix and opens a fresh
// one. Caller must hold the mutex.
func (l *FileLogger) rotate() error {
	current := filepath.Join(l.basePath, "audit.log")

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	stamp := time.Now().Format("2006-01-02-15-04-05")
	rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", stamp))
	if err := os.Rename(current, rotated); err != nil {
		return fmt.Errorf("failed to rename audit log file: %w", err)
	}

	if err := l.cleanupOldFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to clean up old audit logs: %v\n", err)
	}
	return l.openLogFile()
}

func (l *FileLogger) cleanupOldFiles() error {
	pattern := filepath.Join(l.basePath, "audit-*.log")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	if len(files) <= l.maxFiles {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(files)
	for _, file := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(file); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", file, err)
		}
	}
	return nil
}

// Log writes one event as a JSON line, rotating first when the file has
// reached its size cap.
func (l *FileLogger) Log(_ context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.written >= l.maxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	n, err := l.file.Write(append(raw, '\n'))
	l.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// LogAuthentication records a login, logout, or credential event.
func (l *FileLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := newEvent(eventType, status)
	event.UserID = userID
	event.Username = username
	event.Message = message
	return l.Log(ctx, event)
}

// LogAuthorization records an allow/deny decision.
func (l *FileLogger) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := newEvent(eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return l.Log(ctx, event)
}

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
