package poller

import (
	"context"

	"github.com/cros-updates/cros-updates/pkg/config"
)

// Name implements scheduler.Process.
func (p *Poller) Name() string {
	return config.PollJobName
}

// Execute runs one poll over the devices of the configured DeviceSource.
func (p *Poller) Execute(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Debug().Msg("Poll already running, skipping")
		return nil
	}
	defer p.running.Store(false)

	if p.source == nil {
		return ErrNoDevices
	}
	_, err := p.Run(ctx, p.source.Devices())
	return err
}

func (p *Poller) IsRunning() bool {
	return p.running.Load()
}

// IsComplete always returns false; polling continues until the scheduler is stopped.
func (p *Poller) IsComplete() bool {
	return false
}
