package audit

import (
	"encoding/json"
	"time"

	"github.com/platinummonkey/authapi/pkg/models"
)

// EventType represents the category of audit event
type EventType string

const (
	// Lifecycle events
	EventTypeOrgArchive     EventType = "lifecycle.org_archive"
	EventTypeTeamArchive    EventType = "lifecycle.team_archive"
	EventTypeUserDeactivate EventType = "lifecycle.user_deactivate"

	// Membership events
	EventTypeOrgMemberAdd     EventType = "membership.org_member_add"
	EventTypeOrgMemberRemove  EventType = "membership.org_member_remove"
	EventTypeTeamMemberAdd    EventType = "membership.team_member_add"
	EventTypeTeamMemberRemove EventType = "membership.team_member_remove"

	// Authorization events
	EventTypePermissionGrant  EventType = "authz.permission_grant"
	EventTypePermissionRevoke EventType = "authz.permission_revoke"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	// EventStatusNoop marks an idempotent call that changed nothing
	EventStatusNoop EventStatus = "noop"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Resource the event acted on
	ResourceType models.Kind `json:"resource_type,omitempty"`
	ResourceID   int64       `json:"resource_id,omitempty"`

	// Related entity, e.g. the user added to a team
	SubjectType models.Kind `json:"subject_type,omitempty"`
	SubjectID   int64       `json:"subject_id,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}
