package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as JSON lines through logrus
type LogrusLogger struct {
	log    *logrus.Logger
	closer io.Closer
	mu     sync.Mutex
	closed bool
}

// NewLogrusLogger creates an audit logger writing to out
func NewLogrusLogger(out io.Writer) *LogrusLogger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.JSONFormatter{
		DisableHTMLEscape: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})
	return &LogrusLogger{log: log}
}

// NewFileLogger creates an audit logger appending to the file at path.
// "-" or an empty path writes to stdout.
func NewFileLogger(path string) (*LogrusLogger, error) {
	if path == "" || path == "-" {
		return NewLogrusLogger(os.Stdout), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	l := NewLogrusLogger(file)
	l.closer = file
	return l, nil
}

// Log writes event as a single JSON line
func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("audit logger is closed")
	}

	fields := logrus.Fields{
		"event_type": event.EventType,
		"status":     event.Status,
	}
	if event.ResourceType != "" {
		fields["resource_type"] = event.ResourceType
		fields["resource_id"] = event.ResourceID
	}
	if event.SubjectType != "" {
		fields["subject_type"] = event.SubjectType
		fields["subject_id"] = event.SubjectID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error_message"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.log.WithFields(fields).WithTime(event.Timestamp)
	if event.Status == EventStatusFailure {
		entry.Warn(event.Message)
	} else {
		entry.Info(event.Message)
	}
	return nil
}

// Close closes the underlying file, if any
func (l *LogrusLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
