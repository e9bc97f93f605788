package notifier

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
)

const natsFlushTimeout = 5 * time.Second

// NATSNotifier publishes each notification as a plain text message on a subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	return &NATSNotifier{nc: nc, subject: subject}
}

// ConnectNATS dials url and returns a notifier that owns the connection.
func ConnectNATS(url, subject string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url, nats.Name("cros-updates-notifier"))
	if err != nil {
		return nil, err
	}
	return &NATSNotifier{nc: nc, subject: subject, owned: true}, nil
}

// Notify publishes message and waits for the server to acknowledge the flush.
func (n *NATSNotifier) Notify(ctx context.Context, message string) error {
	if err := n.nc.Publish(n.subject, []byte(message)); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, natsFlushTimeout)
		defer cancel()
	}
	return n.nc.FlushWithContext(ctx)
}

func (n *NATSNotifier) Close() error {
	if n.owned {
		n.nc.Close()
	}
	return nil
}
