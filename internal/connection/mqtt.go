package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/mqtt"
)

// Bus is the subset of *mqtt.Client used by MQTTTransport.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTTransport delivers commands through a device bridge over MQTT.
//
// Opening a link subscribes to remotelink/ack/{id}. Send publishes the
// envelope on remotelink/command/{id} and waits for the ack carrying the
// same command ID.
type MQTTTransport struct {
	bus Bus
	qos byte
}

// NewMQTTTransport creates a transport on bus.
func NewMQTTTransport(bus Bus, qos byte) *MQTTTransport {
	return &MQTTTransport{bus: bus, qos: qos}
}

// Name implements Transport.
func (t *MQTTTransport) Name() string {
	return config.TransportMQTT
}

// Open implements Transport.
func (t *MQTTTransport) Open(ctx context.Context, d device.Device) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := &mqttLink{
		transport: t,
		deviceID:  d.ID,
		pending:   make(map[string]chan Ack),
	}
	if err := t.bus.Subscribe(mqtt.Topics{}.DeviceAck(d.ID), t.qos, l.handleAck); err != nil {
		return nil, fmt.Errorf("subscribing to acks for %s: %w", d.ID, err)
	}
	return l, nil
}

type mqttLink struct {
	transport *MQTTTransport
	deviceID  string

	mu      sync.Mutex
	pending map[string]chan Ack
	closed  bool
}

func (l *mqttLink) Send(ctx context.Context, env command.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	wait := make(chan Ack, 1)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	l.pending[env.ID] = wait
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, env.ID)
		l.mu.Unlock()
	}()

	topic := mqtt.Topics{}.DeviceCommand(l.deviceID)
	if err := l.transport.bus.Publish(topic, payload, l.transport.qos, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ack := <-wait:
		return ack.err()
	}
}

func (l *mqttLink) handleAck(_ string, payload []byte) error {
	ack, err := decodeAck(payload)
	if err != nil {
		return err
	}

	l.mu.Lock()
	wait, ok := l.pending[ack.CommandID]
	l.mu.Unlock()
	if !ok {
		// Late ack for a command that already timed out.
		return nil
	}
	select {
	case wait <- ack:
	default:
	}
	return nil
}

func (l *mqttLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.transport.bus.Unsubscribe(mqtt.Topics{}.DeviceAck(l.deviceID)); err != nil {
		return fmt.Errorf("unsubscribing acks for %s: %w", l.deviceID, err)
	}
	return nil
}
