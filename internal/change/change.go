// Package change classifies a freshly computed fingerprint against the stored one.
package change

import "github.com/cros-updates/cros-updates/internal/fingerprint"

type Kind int

const (
	// FirstObservation means nothing was stored for the device yet. The
	// fingerprint is persisted but no notification is sent.
	FirstObservation Kind = iota + 1
	// Unchanged means the stored version equals the current one.
	Unchanged
	// Updated means the version moved since the last run.
	Updated
)

func (k Kind) String() string {
	switch k {
	case FirstObservation:
		return "first_observation"
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Event is the outcome of comparing one device's fingerprints.
type Event struct {
	DeviceID string
	Previous *fingerprint.Fingerprint
	Current  fingerprint.Fingerprint
	Kind     Kind
}

// Detect compares current against previous. A nil previous means no fingerprint was stored.
func Detect(deviceID string, previous *fingerprint.Fingerprint, current fingerprint.Fingerprint) Event {
	event := Event{
		DeviceID: deviceID,
		Previous: previous,
		Current:  current,
	}

	switch {
	case previous == nil:
		event.Kind = FirstObservation
	case previous.Equal(current):
		event.Kind = Unchanged
	default:
		event.Kind = Updated
	}
	return event
}

// ShouldPersist reports whether Current has to be written back to the store.
func (e Event) ShouldPersist() bool {
	return e.Kind == FirstObservation || e.Kind == Updated
}

// ShouldNotify reports whether a notification has to be sent.
func (e Event) ShouldNotify() bool {
	return e.Kind == Updated
}
