package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nerrad567/remotelink-core/internal/audit"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/metrics"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/mqtt"
)

// DefaultBufferSize is the number of changes queued before new ones are dropped.
const DefaultBufferSize = 256

// recordTimeout bounds a single history write.
const recordTimeout = 5 * time.Second

// Logger is the logging interface used by the Relay.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broadcaster pushes an event to live clients. *api.Hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Publisher is the subset of *mqtt.Client used for retained state.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Telemetry records lifecycle events. *influxdb.Client implements it.
type Telemetry interface {
	WriteLifecycleEvent(deviceID, event, state string)
}

// Recorder persists lifecycle history. *audit.SQLiteRepository implements it.
type Recorder interface {
	Create(ctx context.Context, e *audit.Entry) error
}

// Lifecycle is the payload delivered to clients and the bus.
type Lifecycle struct {
	DeviceID     string                `json:"device_id"`
	Event        device.Event          `json:"event"`
	State        device.LifecycleState `json:"lifecycle_state"`
	Reachability device.Reachability   `json:"reachability"`
	Removed      bool                  `json:"removed"`
	Device       *device.Device        `json:"device,omitempty"`
	At           time.Time             `json:"at"`
}

// Relay fans registry changes out to metrics, the WebSocket hub, MQTT and
// telemetry. Observe never blocks: changes are queued and delivered by Run.
type Relay struct {
	channel     string
	broadcaster Broadcaster
	publisher   Publisher
	qos         byte
	telemetry   Telemetry
	recorder    Recorder
	logger      Logger
	now         func() time.Time

	queue   chan device.Change
	dropped atomic.Uint64
}

// Option configures a Relay.
type Option func(*Relay)

// WithBroadcaster delivers events on channel.
func WithBroadcaster(b Broadcaster, channel string) Option {
	return func(r *Relay) {
		r.broadcaster = b
		r.channel = channel
	}
}

// WithPublisher publishes retained state to remotelink/core/device/{id}/state.
func WithPublisher(p Publisher, qos byte) Option {
	return func(r *Relay) {
		r.publisher = p
		r.qos = qos
	}
}

// WithTelemetry records every event.
func WithTelemetry(t Telemetry) Option {
	return func(r *Relay) { r.telemetry = t }
}

// WithRecorder persists every event to the lifecycle history.
func WithRecorder(rec Recorder) Option {
	return func(r *Relay) { r.recorder = rec }
}

// WithLogger sets the relay's logger.
func WithLogger(l Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithBufferSize overrides DefaultBufferSize.
func WithBufferSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queue = make(chan device.Change, n)
		}
	}
}

// NewRelay creates a relay. Register it with registry.OnChange(relay.Observe)
// and start Run in a goroutine.
func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
		queue:  make(chan device.Change, DefaultBufferSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe queues a change. It is a device.Observer.
func (r *Relay) Observe(c device.Change) {
	select {
	case r.queue <- c:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("lifecycle event dropped, relay queue full", "device_id", c.Device.ID, "event", c.Event, "dropped", n)
	}
}

// Dropped returns how many changes were discarded because the queue was full.
func (r *Relay) Dropped() uint64 {
	return r.dropped.Load()
}

// Run delivers queued changes until ctx is cancelled, then drains what is
// left in the queue.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case c := <-r.queue:
			r.deliver(c)
		case <-ctx.Done():
			for {
				select {
				case c := <-r.queue:
					r.deliver(c)
				default:
					return
				}
			}
		}
	}
}

func (r *Relay) deliver(c device.Change) {
	ev := r.lifecycle(c)

	metrics.IncLifecycleEvent(c.Event)

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(r.channel, ev)
	}
	if r.telemetry != nil {
		r.telemetry.WriteLifecycleEvent(ev.DeviceID, string(ev.Event), string(ev.State))
	}
	if r.publisher != nil {
		r.publish(ev)
	}
	if r.recorder != nil {
		r.record(ev)
	}
}

func (r *Relay) lifecycle(c device.Change) Lifecycle {
	ev := Lifecycle{
		DeviceID:     c.Device.ID,
		Event:        c.Event,
		State:        c.Device.State,
		Reachability: c.Device.Reachability,
		Removed:      c.Removed,
		At:           r.now(),
	}
	if !c.Removed {
		ev.Device = c.Device.DeepCopy()
	}
	return ev
}

// publish writes the retained state. A removed device gets an empty
// retained message, which clears it from the broker.
func (r *Relay) publish(ev Lifecycle) {
	topic := mqtt.Topics{}.CoreDeviceState(ev.DeviceID)

	var payload []byte
	if !ev.Removed {
		var err error
		payload, err = json.Marshal(ev)
		if err != nil {
			r.logger.Error("encoding lifecycle event", "device_id", ev.DeviceID, "error", err)
			return
		}
	}

	if err := r.publisher.Publish(topic, payload, r.qos, true); err != nil {
		r.logger.Warn("publishing device state", "device_id", ev.DeviceID, "topic", topic, "error", err)
	}
}

func (r *Relay) record(ev Lifecycle) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	entry := &audit.Entry{
		DeviceID:     ev.DeviceID,
		Event:        string(ev.Event),
		State:        string(ev.State),
		Reachability: string(ev.Reachability),
		CreatedAt:    ev.At,
	}
	if ev.Removed {
		entry.Details = map[string]any{"removed": true}
	}
	if err := r.recorder.Create(ctx, entry); err != nil {
		r.logger.Error("recording lifecycle event", "device_id", ev.DeviceID, "event", ev.Event, "error", err)
	}
}
