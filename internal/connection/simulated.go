package connection

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
)

// Per-kind send latency of the simulated transport at scale 1.
var simulatedLatency = map[device.Capability]time.Duration{
	device.CapPower:       200 * time.Millisecond,
	device.CapVolume:      100 * time.Millisecond,
	device.CapChannel:     150 * time.Millisecond,
	device.CapDirectional: 100 * time.Millisecond,
	device.CapText:        200 * time.Millisecond,
	device.CapVoice:       300 * time.Millisecond,
	device.CapAppLaunch:   250 * time.Millisecond,
}

// SimulatedTransport accepts every command after a per-kind delay. It is
// the reference transport and the one used in tests with scale 0.
type SimulatedTransport struct {
	scale float64
}

// NewSimulatedTransport creates a transport whose delays are multiplied by
// scale. Negative scales are treated as 0.
func NewSimulatedTransport(scale float64) *SimulatedTransport {
	if scale < 0 {
		scale = 0
	}
	return &SimulatedTransport{scale: scale}
}

// Name implements Transport.
func (t *SimulatedTransport) Name() string {
	return config.TransportSimulated
}

// Latency returns the simulated delay for kind at the transport's scale.
func (t *SimulatedTransport) Latency(kind device.Capability) time.Duration {
	return time.Duration(float64(simulatedLatency[kind]) * t.scale)
}

// Open implements Transport.
func (t *SimulatedTransport) Open(ctx context.Context, _ device.Device) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &simulatedLink{transport: t}, nil
}

type simulatedLink struct {
	transport *SimulatedTransport

	mu     sync.Mutex
	closed bool
}

func (l *simulatedLink) Send(ctx context.Context, env command.Envelope) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLinkClosed
	}

	delay := l.transport.Latency(env.Kind)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *simulatedLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
