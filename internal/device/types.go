package device

import (
	"slices"
	"time"
)

// Device represents a television (or other remote-controllable endpoint)
// known to the registry.
// This matches the database schema in migrations/20260301_120000_create_devices.up.sql.
type Device struct {
	// Identity
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`

	// Network
	Address      string       `json:"address"`
	Reachability Reachability `json:"reachability"`

	// Capabilities advertised at discovery time.
	Capabilities []Capability `json:"capabilities"`

	// Lifecycle
	State       LifecycleState `json:"lifecycle_state"`
	PairedAt    *time.Time     `json:"paired_at,omitempty"`
	LastCommand *LastCommand   `json:"last_command,omitempty"`

	// Timestamps
	DiscoveredAt time.Time `json:"discovered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// LastCommand records the most recent successfully delivered command.
type LastCommand struct {
	Kind Capability `json:"kind"`
	At   time.Time  `json:"at"`
}

// DeepCopy creates a complete independent copy of the Device.
// Slice and pointer fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	if d.PairedAt != nil {
		t := *d.PairedAt
		cpy.PairedAt = &t
	}

	if d.LastCommand != nil {
		lc := *d.LastCommand
		cpy.LastCommand = &lc
	}

	return &cpy
}

// IsOnline reports whether the device was reachable at its last sighting.
func (d *Device) IsOnline() bool {
	return d.Reachability == ReachabilityOnline
}

// IsPaired reports whether the device is in the paired set
// (either paired or connected).
func (d *Device) IsPaired() bool {
	return d.State == StatePaired || d.State == StateConnected
}

// HasCapability reports whether the device advertises the given capability.
func (d *Device) HasCapability(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// Reachability is the last observed network reachability of a device.
type Reachability string

// Reachability values.
const (
	ReachabilityOnline  Reachability = "online"
	ReachabilityOffline Reachability = "offline"
)

// LifecycleState is the session lifecycle state of a device.
//
//	discovered ──PAIR──▶ paired ──CONNECT──▶ connected
//	     ▲                 │  ▲                  │
//	     └─────UNPAIR──────┘  └────DISCONNECT────┘
type LifecycleState string

// Lifecycle states.
const (
	StateDiscovered LifecycleState = "discovered"
	StatePaired     LifecycleState = "paired"
	StateConnected  LifecycleState = "connected"
)

// Capability identifies a kind of remote-control command a device accepts.
// Command kinds and capabilities share the same vocabulary.
type Capability string

// Capabilities.
const (
	CapPower       Capability = "power"
	CapVolume      Capability = "volume"
	CapChannel     Capability = "channel"
	CapDirectional Capability = "directional"
	CapText        Capability = "text"
	CapVoice       Capability = "voice"
	CapAppLaunch   Capability = "app-launch"
)

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapPower,
		CapVolume,
		CapChannel,
		CapDirectional,
		CapText,
		CapVoice,
		CapAppLaunch,
	}
}

// ValidCapability reports whether c is a known capability.
func ValidCapability(c Capability) bool {
	return slices.Contains(AllCapabilities(), c)
}

// Event is a lifecycle transition request.
type Event string

// Lifecycle events.
const (
	EventDiscover   Event = "discover"
	EventPair       Event = "pair"
	EventConnect    Event = "connect"
	EventDisconnect Event = "disconnect"
	EventUnpair     Event = "unpair"

	// EventRemove is emitted to observers when a device is removed outright.
	EventRemove Event = "remove"
)

// Predicate filters devices in List. A nil Predicate matches everything.
type Predicate func(d *Device) bool

// Online matches devices whose last sighting was reachable.
func Online() Predicate {
	return func(d *Device) bool { return d.IsOnline() }
}

// Paired matches devices in the paired set.
func Paired() Predicate {
	return func(d *Device) bool { return d.IsPaired() }
}

// WithCapability matches devices advertising c.
func WithCapability(c Capability) Predicate {
	return func(d *Device) bool { return d.HasCapability(c) }
}

// InState matches devices in the given lifecycle state.
func InState(s LifecycleState) Predicate {
	return func(d *Device) bool { return d.State == s }
}

// All combines predicates; a device must satisfy every non-nil predicate.
func All(preds ...Predicate) Predicate {
	return func(d *Device) bool {
		for _, p := range preds {
			if p != nil && !p(d) {
				return false
			}
		}
		return true
	}
}
