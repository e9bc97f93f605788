package notifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cros-updates/cros-updates/internal/change"
)

var ErrNotUpdated = errors.New("only updated events can be formatted")

// Format renders the notification text for an Updated event, e.g.
// "Samsung Galaxy Chromebook updated to 103.0.5060.132". When the product
// label is empty the device id is used so the message always names the device.
func Format(deviceID string, event change.Event) (string, error) {
	if event.Kind != change.Updated {
		return "", fmt.Errorf("%w: got %s", ErrNotUpdated, event.Kind)
	}

	product := strings.TrimSpace(event.Current.Product)
	if product == "" {
		product = deviceID
	}
	if product == "" {
		product = event.DeviceID
	}

	message := fmt.Sprintf("%s updated to %s", product, event.Current.Version)
	if eol, ok := event.Current.EOLTime(); ok {
		message += " and supported until " + eol.Format("January 2006")
	}
	return message, nil
}
