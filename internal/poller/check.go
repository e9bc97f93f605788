package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/cros-updates/cros-updates/pkg/config"
	"golang.org/x/sync/errgroup"
)

// CheckResult is the current fingerprint of one device, or the error that
// prevented computing it.
type CheckResult struct {
	Device      config.Device
	Fingerprint fingerprint.Fingerprint
	Err         error
}

// Check fetches and normalizes every device without touching the store or
// sending notifications. Results keep the input order.
func (p *Poller) Check(ctx context.Context, devices []config.Device) ([]CheckResult, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	results := make([]CheckResult, len(devices))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, device := range devices {
		g.Go(func() error {
			results[i] = p.check(ctx, device)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	if len(errs) == len(devices) {
		return results, fmt.Errorf("%w: %w", ErrAllDevicesFailed, errors.Join(errs...))
	}
	return results, nil
}

func (p *Poller) check(ctx context.Context, device config.Device) CheckResult {
	result := CheckResult{Device: device}

	raw, err := p.fetcher.Fetch(ctx, device)
	if err != nil {
		result.Err = fmt.Errorf("%s: %w: %w", device.ID, ErrFetch, err)
		return result
	}

	fp, err := p.normalizer.Normalize(ctx, raw, device.ID, device.ProductKey)
	if err != nil {
		result.Err = fmt.Errorf("%s: %w", device.ID, err)
		return result
	}
	result.Fingerprint = fp
	return result
}
