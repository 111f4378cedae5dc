package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	natsgo "github.com/nats-io/nats.go"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
)

// commandSubjectPrefix is followed by the device ID.
const commandSubjectPrefix = "remotelink.command."

// Requester is the subset of the NATS client used by NATSTransport.
type Requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*natsgo.Msg, error)
}

// NATSTransport delivers commands as NATS requests on
// remotelink.command.{id}; the bridge replies with an Ack.
type NATSTransport struct {
	requester Requester
}

// NewNATSTransport creates a transport on requester.
func NewNATSTransport(requester Requester) *NATSTransport {
	return &NATSTransport{requester: requester}
}

// Name implements Transport.
func (t *NATSTransport) Name() string {
	return config.TransportNATS
}

// CommandSubject returns the request subject for a device.
func CommandSubject(deviceID string) string {
	return commandSubjectPrefix + deviceID
}

// Open implements Transport. NATS links are stateless; Open only checks ctx.
func (t *NATSTransport) Open(ctx context.Context, d device.Device) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &natsLink{transport: t, subject: CommandSubject(d.ID)}, nil
}

type natsLink struct {
	transport *NATSTransport
	subject   string

	mu     sync.Mutex
	closed bool
}

func (l *natsLink) Send(ctx context.Context, env command.Envelope) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLinkClosed
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	msg, err := l.transport.requester.RequestWithContext(ctx, l.subject, payload)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", l.subject, err)
	}

	ack, err := decodeAck(msg.Data)
	if err != nil {
		return err
	}
	if ack.CommandID != env.ID {
		return fmt.Errorf("%w: ack for %s, sent %s", ErrBadAck, ack.CommandID, env.ID)
	}
	return ack.err()
}

func (l *natsLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
