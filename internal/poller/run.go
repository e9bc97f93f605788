package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/cros-updates/cros-updates/internal/change"
	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/cros-updates/cros-updates/internal/logger"
	"github.com/cros-updates/cros-updates/internal/metrics"
	"github.com/cros-updates/cros-updates/internal/notifier"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Run checks every device once. A failing device never stops the others;
// the returned error is non-nil only when devices is empty or every device
// failed.
//
// The fingerprint is persisted before the notification is sent. When the
// write fails nothing is sent and the change is detected again next run.
// When the send fails after a successful write the notification is lost.
func (p *Poller) Run(ctx context.Context, devices []config.Device) (RunResult, error) {
	result := RunResult{
		RunID:   uuid.NewString(),
		Started: p.now(),
	}

	if len(devices) == 0 {
		p.metrics.ObserveRun(metrics.RunFailed, 0, result.Started)
		return result, ErrNoDevices
	}

	log := p.log.With().Str("run_id", result.RunID).Logger()
	log.Info().Int("devices", len(devices)).Msg("Starting update check")

	result.Outcomes = make([]DeviceOutcome, len(devices))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, device := range devices {
		g.Go(func() error {
			result.Outcomes[i] = p.processDevice(ctx, result.RunID, device)
			return nil
		})
	}
	_ = g.Wait()

	finished := p.now()
	result.Duration = finished.Sub(result.Started)
	counts := result.Counts()

	log.Info().
		Int("updated", counts.Updated).
		Int("unchanged", counts.Unchanged).
		Int("first_observation", counts.FirstObservation).
		Int("failed", counts.Failed).
		Dur("duration", result.Duration).
		Msg("Update check finished")

	p.setLastResult(result)

	switch counts.Failed {
	case 0:
		p.metrics.ObserveRun(metrics.RunSucceeded, result.Duration, finished)
	case len(devices):
		p.metrics.ObserveRun(metrics.RunFailed, result.Duration, finished)
		return result, fmt.Errorf("%w: %w", ErrAllDevicesFailed, errors.Join(result.Errors()...))
	default:
		p.metrics.ObserveRun(metrics.RunPartial, result.Duration, finished)
	}
	return result, nil
}

func (p *Poller) processDevice(ctx context.Context, runID string, device config.Device) (outcome DeviceOutcome) {
	log := p.log.With().
		Str("run_id", runID).
		Str("device", device.ID).
		Str("model", device.ShortHardwareClass()).
		Logger()

	outcome = DeviceOutcome{Device: device, Stage: StagePending}
	defer func() {
		p.metrics.ObserveDevice(outcome.Label())
		if outcome.Err != nil {
			log.Warn().Err(outcome.Err).Stringer("stage", outcome.FailedAt).Msg("Device check failed")
		}
	}()

	raw, err := p.fetcher.Fetch(ctx, device)
	if err != nil {
		return outcome.fail(fmt.Errorf("%s: %w: %w", device.ID, ErrFetch, err))
	}
	outcome.Stage = StageFetched

	current, err := p.normalizer.Normalize(ctx, raw, device.ID, device.ProductKey)
	if err != nil {
		return outcome.fail(fmt.Errorf("%s: %w", device.ID, err))
	}
	outcome.Stage = StageNormalized

	stored, found, err := p.store.Get(ctx, device.ID)
	if err != nil {
		return outcome.fail(fmt.Errorf("%s: %w: %w", device.ID, ErrStoreRead, err))
	}
	var previous *fingerprint.Fingerprint
	if found {
		previous = &stored
	}

	event := change.Detect(device.ID, previous, current)
	outcome.Event = event
	outcome.Stage = StageClassified

	log = log.With().Str("version", current.Version).Str("product", current.Product).Logger()

	if event.ShouldNotify() {
		message, err := notifier.Format(device.ID, event)
		if err != nil {
			return outcome.fail(fmt.Errorf("%s: %w", device.ID, err))
		}
		outcome.Message = message
	}

	if event.ShouldPersist() {
		if err := p.store.Put(ctx, device.ID, current); err != nil {
			return outcome.fail(fmt.Errorf("%s: %w: %w", device.ID, ErrStoreWrite, err))
		}
		p.audit.Log(logger.AuditFingerprintStored, device.ID, runID, map[string]interface{}{
			"kind":    event.Kind.String(),
			"version": current.Version,
			"product": current.Product,
		})
	}

	switch event.Kind {
	case change.FirstObservation:
		log.Info().Msg("First observation recorded")
	case change.Unchanged:
		log.Debug().Msg("No update")
	case change.Updated:
		log.Info().Str("previous_version", previous.Version).Msg(outcome.Message)

		if err := p.notifier.Notify(ctx, outcome.Message); err != nil {
			p.metrics.ObserveNotification(metrics.NotificationFailed)
			p.audit.Log(logger.AuditNotificationFailed, device.ID, runID, map[string]interface{}{
				"message": outcome.Message,
				"error":   err.Error(),
			})
			return outcome.fail(fmt.Errorf("%s: %w: %w", device.ID, ErrNotify, err))
		}
		p.metrics.ObserveNotification(metrics.NotificationSent)
		p.audit.Log(logger.AuditNotificationSent, device.ID, runID, map[string]interface{}{
			"message": outcome.Message,
		})
	}

	outcome.Stage = StageDone
	return outcome
}
