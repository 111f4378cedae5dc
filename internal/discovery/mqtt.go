package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/mqtt"
)

// defaultSettle is how long an MQTT scan waits after the last
// announcement before it considers the network quiet.
const defaultSettle = 500 * time.Millisecond

// Bus is the subset of *mqtt.Client used for discovery.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Announcement is the JSON a bridge publishes on
// remotelink/discovery/{bridge_id} for each television it can see.
type Announcement struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Address      string   `json:"address"`
	Online       *bool    `json:"online,omitempty"` // absent means online
	Capabilities []string `json:"capabilities"`
}

var errIncompleteAnnouncement = errors.New("discovery: announcement requires id and name")

func (a Announcement) device() (device.Device, error) {
	if a.ID == "" || a.Name == "" {
		return device.Device{}, errIncompleteAnnouncement
	}
	reach := device.ReachabilityOnline
	if a.Online != nil && !*a.Online {
		reach = device.ReachabilityOffline
	}
	caps := make([]device.Capability, 0, len(a.Capabilities))
	for _, c := range a.Capabilities {
		caps = append(caps, device.Capability(c))
	}
	return device.Device{
		ID:           a.ID,
		Name:         a.Name,
		Model:        a.Model,
		Address:      a.Address,
		Reachability: reach,
		Capabilities: caps,
	}, nil
}

// MQTTScanner listens for bridge announcements.
//
// A scan subscribes to remotelink/discovery/+, publishes a probe so bridges
// re-announce, and collects announcements until none has arrived for the
// settle period or ctx is done. Scans through one scanner are serialised
// because the bus keeps a single handler per topic.
type MQTTScanner struct {
	bus    Bus
	qos    byte
	settle time.Duration
	sem    chan struct{}
}

// NewMQTTScanner creates a scanner on bus. A non-positive settle uses 500ms.
func NewMQTTScanner(bus Bus, qos byte, settle time.Duration) *MQTTScanner {
	if settle <= 0 {
		settle = defaultSettle
	}
	return &MQTTScanner{
		bus:    bus,
		qos:    qos,
		settle: settle,
		sem:    make(chan struct{}, 1),
	}
}

// Name implements Scanner.
func (s *MQTTScanner) Name() string {
	return config.SourceMQTT
}

// Scan implements Scanner.
func (s *MQTTScanner) Scan(ctx context.Context, emit func(device.Device)) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	topics := mqtt.Topics{}
	announced := make(chan struct{}, 1)

	handler := func(topic string, payload []byte) error {
		var a Announcement
		if err := json.Unmarshal(payload, &a); err != nil {
			return fmt.Errorf("decoding announcement on %s: %w", topic, err)
		}
		d, err := a.device()
		if err != nil {
			return fmt.Errorf("announcement on %s: %w", topic, err)
		}
		emit(d)
		select {
		case announced <- struct{}{}:
		default:
		}
		return nil
	}

	pattern := topics.AllDiscoveryAnnouncements()
	if err := s.bus.Subscribe(pattern, s.qos, handler); err != nil {
		return fmt.Errorf("subscribing to announcements: %w", err)
	}
	defer s.bus.Unsubscribe(pattern) //nolint:errcheck // best effort on scan exit

	probe, err := json.Marshal(map[string]string{
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding discovery probe: %w", err)
	}
	if err := s.bus.Publish(topics.DiscoveryProbe(), probe, s.qos, false); err != nil {
		return fmt.Errorf("publishing discovery probe: %w", err)
	}

	quiet := time.NewTimer(s.settle)
	defer quiet.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-announced:
			quiet.Reset(s.settle)
		case <-quiet.C:
			return nil
		}
	}
}
