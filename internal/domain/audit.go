package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditCommandCompleted AuditEventType = "command_completed"
	AuditCommandFailed    AuditEventType = "command_failed"
	AuditAccessDenied     AuditEventType = "access_denied"
)

// AuditEvent is one line of the command audit trail. Like bus events it
// never records file paths.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       AuditEventType    `json:"type"`
	RequestID  string            `json:"request_id,omitempty"`
	Actor      string            `json:"actor,omitempty"` // gateway client ID, empty for in-process callers
	Command    string            `json:"command,omitempty"`
	Code       ErrorCode         `json:"code,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
