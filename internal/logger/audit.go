package logger

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AuditFingerprintStored  = "fingerprint_stored"
	AuditNotificationSent   = "notification_sent"
	AuditNotificationFailed = "notification_failed"
)

// AuditEvent is a single entry of the update audit trail.
type AuditEvent struct {
	EventID   string                 `json:"event_id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Device    string                 `json:"device,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger writes one JSON line per stored fingerprint or notification attempt.
// A nil *AuditLogger discards every event.
type AuditLogger struct {
	log *zerolog.Logger
	now func() time.Time
}

// NewAuditLogger returns an audit logger for writer, or nil when writer is nil.
func NewAuditLogger(writer io.Writer) *AuditLogger {
	if writer == nil {
		return nil
	}
	l := zerolog.New(writer)
	return &AuditLogger{log: &l, now: time.Now}
}

// Log writes an audit event and returns it.
func (a *AuditLogger) Log(eventType, device, runID string, details map[string]interface{}) AuditEvent {
	if a == nil {
		return AuditEvent{}
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: a.now().UTC(),
		EventType: eventType,
		Device:    device,
		RunID:     runID,
		Details:   details,
	}

	e := a.log.Log().
		Str("event_id", event.EventID).
		Time("timestamp", event.Timestamp).
		Str("event_type", event.EventType)

	if event.Device != "" {
		e = e.Str("device", event.Device)
	}
	if event.RunID != "" {
		e = e.Str("run_id", event.RunID)
	}
	if len(event.Details) > 0 {
		e = e.Fields(event.Details)
	}

	e.Msg("")
	return event
}

// NewFileAuditWriter returns an append-only file writer for audit logs.
// Rotation is expected to be handled by external logrotate where used.
func NewFileAuditWriter(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return f, nil
}
