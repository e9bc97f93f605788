package poller

import (
	"time"

	"github.com/cros-updates/cros-updates/internal/change"
	"github.com/cros-updates/cros-updates/pkg/config"
)

// Stage is a step of the per-device pipeline.
type Stage int

const (
	StagePending Stage = iota
	StageFetched
	StageNormalized
	StageClassified
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageFetched:
		return "fetched"
	case StageNormalized:
		return "normalized"
	case StageClassified:
		return "classified"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeviceOutcome is the result of one device's pipeline. FailedAt is the last
// stage reached before Err occurred and is only meaningful when Stage is
// StageFailed.
type DeviceOutcome struct {
	Device   config.Device
	Event    change.Event
	Message  string
	Stage    Stage
	FailedAt Stage
	Err      error
}

// Label names the outcome for logs and metrics.
func (o DeviceOutcome) Label() string {
	if o.Err != nil {
		return "failed"
	}
	return o.Event.Kind.String()
}

func (o *DeviceOutcome) fail(err error) DeviceOutcome {
	o.FailedAt = o.Stage
	o.Stage = StageFailed
	o.Err = err
	return *o
}

type Counts struct {
	Updated          int `json:"updated"`
	Unchanged        int `json:"unchanged"`
	FirstObservation int `json:"first_observation"`
	Failed           int `json:"failed"`
}

// RunResult holds one outcome per device, in input order.
type RunResult struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Outcomes []DeviceOutcome
}

func (r RunResult) Counts() Counts {
	var c Counts
	for _, o := range r.Outcomes {
		if o.Err != nil {
			c.Failed++
			continue
		}
		switch o.Event.Kind {
		case change.Updated:
			c.Updated++
		case change.Unchanged:
			c.Unchanged++
		case change.FirstObservation:
			c.FirstObservation++
		}
	}
	return c
}

// Errors returns the per-device failures.
func (r RunResult) Errors() []error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
