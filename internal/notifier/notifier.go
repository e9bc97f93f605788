package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/rs/zerolog"
)

type Notifier interface {
	// Notify delivers a human readable message.
	Notify(ctx context.Context, message string) error
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(log *zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.log.Info().Str("notification", message).Msg("Update notification")
	return nil
}

// Multi fans a message out to every configured channel. A failing channel
// does not stop delivery to the others; the errors are joined.
type Multi struct {
	notifiers []Notifier
	closers   []io.Closer
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of channels.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

func (m *Multi) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the notification channels enabled in cfg.
func New(cfg config.NotifierConfig, log *zerolog.Logger) (*Multi, error) {
	m := &Multi{}

	if cfg.Log {
		m.notifiers = append(m.notifiers, NewLogNotifier(log))
	}

	if cfg.WebhookURL != "" {
		webhook, err := NewWebhookNotifier(cfg.WebhookURL)
		if err != nil {
			return nil, err
		}
		m.notifiers = append(m.notifiers, webhook)
	}

	if cfg.NATSURL != "" {
		natsNotifier, err := ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to connect notification subject: %w", err)
		}
		m.notifiers = append(m.notifiers, natsNotifier)
		m.closers = append(m.closers, natsNotifier)
	}

	return m, nil
}
