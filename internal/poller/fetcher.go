package poller

import (
	"context"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/cros-updates/cros-updates/internal/omaha"
	"github.com/cros-updates/cros-updates/pkg/config"
)

// OmahaFetcher adapts an omaha.Client to Fetcher.
type OmahaFetcher struct {
	Client *omaha.Client
}

func (f OmahaFetcher) Fetch(ctx context.Context, device config.Device) (fingerprint.RawUpdateResponse, error) {
	return f.Client.CheckForUpdate(ctx, omaha.Request{
		AppID:         device.AppID,
		Track:         device.Track,
		Board:         device.Board,
		HardwareClass: device.HardwareClass,
	})
}
