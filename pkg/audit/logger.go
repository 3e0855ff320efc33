package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/authapi/pkg/contextkeys"
	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// NewNoOpLogger returns a logger that drops every event
func NewNoOpLogger() Logger {
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// NewEvent builds an event for resource with the request id taken from ctx
func NewEvent(ctx context.Context, eventType EventType, status EventStatus, kind models.Kind, id int64) *AuditEvent {
	return &AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       status,
		ResourceType: kind,
		ResourceID:   id,
		RequestID:    contextkeys.GetRequestID(ctx),
	}
}

// WithSubject sets the related entity of the event
func (e *AuditEvent) WithSubject(kind models.Kind, id int64) *AuditEvent {
	e.SubjectType = kind
	e.SubjectID = id
	return e
}

// WithMetadata adds a metadata entry to the event
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Record writes event to logger. Audit failures are logged and never
// returned: the audited operation has already happened.
func Record(ctx context.Context, logger Logger, event *AuditEvent) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to write audit event")
	}
}
