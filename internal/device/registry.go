package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Change describes a committed registry mutation delivered to observers.
type Change struct {
	Event  Event  `json:"event"`
	Device Device `json:"device"`

	// Removed is true when the device no longer exists in the registry
	// (explicit Remove, or UNPAIR of an offline device).
	Removed bool `json:"removed"`
}

// Observer receives committed changes. Observers run synchronously on the
// mutating goroutine while the per-device state lock is still held, so
// changes to one device arrive in commit order. Observers must not block
// and must not call back into mutating Registry methods for that device.
type Observer func(Change)

// Registry is the authoritative store of every known device and its
// lifecycle state. It wraps a Repository and adds an in-memory cache for
// fast lookups.
//
// Mutations are atomic per device ID: a per-device state lock guards each
// read-modify-write, so operations against different devices never contend
// on a shared lock beyond the brief cache swap.
//
// Separately, Lock hands out a per-device session lock that callers hold
// across multi-step sequences (ensure connected, send, record). The two
// locks are independent so registry operations may be called while the
// session lock is held.
//
// All public methods are thread-safe and every returned Device is a deep
// copy; callers can safely modify it.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex

	stateLocks   *keyedMutex
	sessionLocks *keyedMutex

	observers   []Observer
	observersMu sync.RWMutex

	logger Logger
	now    func() time.Time
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:         repo,
		cache:        make(map[string]*Device),
		stateLocks:   newKeyedMutex(),
		sessionLocks: newKeyedMutex(),
		logger:       noopLogger{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// OnChange registers an observer for committed mutations.
func (r *Registry) OnChange(fn Observer) {
	r.observersMu.Lock()
	r.observers = append(r.observers, fn)
	r.observersMu.Unlock()
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Lock acquires the session lock for a device, serialising multi-step
// operations against the same ID. It blocks until the lock is free or ctx
// is done; a deadline is reported as a TimeoutError and cancellation as
// an UpstreamError, both wrapping ctx.Err().
//
// The returned unlock func must be called exactly once; extra calls are
// no-ops. The device does not need to exist.
func (r *Registry) Lock(ctx context.Context, id string) (func(), error) {
	unlock, err := r.sessionLocks.lock(ctx, id)
	if err != nil {
		return nil, NewContextError("lock", id, err)
	}
	return unlock, nil
}

// Get retrieves a device by ID.
// Returns a NotFoundError if the device does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be written by another process)
	d, err := r.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewNotFoundError("get", id)
		}
		return nil, NewUpstreamError("get", id, err)
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// List returns every cached device matching pred, ordered by ID.
// A nil pred matches all devices.
func (r *Registry) List(_ context.Context, pred Predicate) ([]Device, error) {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if pred == nil || pred(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// Upsert records a sighting of a device (the DISCOVER event).
//
// A new device is created in the discovered state. For a known device the
// sighting refreshes address, reachability, capabilities and last-seen time;
// name, model, lifecycle state, pairing time and last command are kept.
//
// Parameters:
//   - ctx: Context for persistence
//   - seen: The sighting; ID, Name and a valid Reachability are required
//
// Returns:
//   - *Device: Snapshot after the upsert
//   - error: ValidationError for a bad sighting, UpstreamError if persistence fails
func (r *Registry) Upsert(ctx context.Context, seen Device) (*Device, error) {
	if err := validateSighting(&seen); err != nil {
		return nil, err
	}

	unlock, err := r.stateLocks.lock(ctx, seen.ID)
	if err != nil {
		return nil, NewContextError("upsert", seen.ID, err)
	}

	now := r.now()
	r.cacheMu.RLock()
	current, exists := r.cache[seen.ID]
	r.cacheMu.RUnlock()

	var next *Device
	if exists {
		next = current.DeepCopy()
		next.Address = seen.Address
		next.Reachability = seen.Reachability
		next.Capabilities = slices.Clone(seen.Capabilities)
		next.LastSeenAt = now
	} else {
		next = &Device{
			ID:           seen.ID,
			Name:         seen.Name,
			Model:        seen.Model,
			Address:      seen.Address,
			Reachability: seen.Reachability,
			Capabilities: slices.Clone(seen.Capabilities),
			State:        StateDiscovered,
			DiscoveredAt: now,
			LastSeenAt:   now,
		}
	}

	if err := r.commit(ctx, next); err != nil {
		unlock()
		return nil, NewUpstreamError("upsert", seen.ID, err)
	}
	defer unlock()

	if !exists {
		r.logger.Info("device discovered", "id", next.ID, "name", next.Name, "reachability", next.Reachability)
	} else {
		r.logger.Debug("device sighting refreshed", "id", next.ID, "reachability", next.Reachability)
	}
	r.notify(Change{Event: EventDiscover, Device: *next.DeepCopy()})
	return next, nil
}

// Transition applies a lifecycle event to a device.
//
// Allowed transitions:
//   - DISCOVER: any state, no change (sightings go through Upsert)
//   - PAIR: discovered and online → paired, stamps PairedAt
//   - CONNECT: paired → connected
//   - DISCONNECT: connected → paired
//   - UNPAIR: paired|connected → discovered, clears PairedAt and LastCommand;
//     an offline device is purged from the registry instead
//
// Parameters:
//   - ctx: Context for persistence
//   - id: Device ID
//   - ev: Lifecycle event
//
// Returns:
//   - *Device: Snapshot after the transition (for a purge, the final state)
//   - error: NotFoundError, ConflictError, OfflineError, or UpstreamError
func (r *Registry) Transition(ctx context.Context, id string, ev Event) (*Device, error) {
	op := string(ev)

	unlock, err := r.stateLocks.lock(ctx, id)
	if err != nil {
		return nil, NewContextError(op, id, err)
	}

	r.cacheMu.RLock()
	current, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if !ok {
		unlock()
		return nil, NewNotFoundError(op, id)
	}

	next := current.DeepCopy()
	purge := false

	switch ev {
	case EventDiscover:
		unlock()
		return next, nil

	case EventPair:
		if next.State != StateDiscovered {
			unlock()
			return nil, NewConflictError(op, id, "device is "+string(next.State))
		}
		if !next.IsOnline() {
			unlock()
			return nil, NewOfflineError(op, id)
		}
		now := r.now()
		next.State = StatePaired
		next.PairedAt = &now

	case EventConnect:
		if next.State != StatePaired {
			unlock()
			return nil, NewConflictError(op, id, "device is "+string(next.State))
		}
		next.State = StateConnected

	case EventDisconnect:
		if next.State != StateConnected {
			unlock()
			return nil, NewConflictError(op, id, "device is "+string(next.State))
		}
		next.State = StatePaired

	case EventUnpair:
		if !next.IsPaired() {
			unlock()
			return nil, NewConflictError(op, id, "device is "+string(next.State))
		}
		next.State = StateDiscovered
		next.PairedAt = nil
		next.LastCommand = nil
		purge = !next.IsOnline()

	default:
		unlock()
		return nil, NewValidationError(op, "event", "unknown event "+string(ev))
	}

	if purge {
		err = r.purge(ctx, id)
	} else {
		err = r.commit(ctx, next)
	}
	if err != nil {
		unlock()
		return nil, NewUpstreamError(op, id, err)
	}
	defer unlock()

	r.logger.Info("device transitioned", "id", id, "event", ev, "state", next.State, "purged", purge)
	r.notify(Change{Event: ev, Device: *next.DeepCopy(), Removed: purge})
	return next, nil
}

// RecordCommand stamps the last successfully delivered command.
// The device must be connected; any other state is a ConflictError.
func (r *Registry) RecordCommand(ctx context.Context, id string, kind Capability, at time.Time) (*Device, error) {
	const op = "record_command"

	unlock, err := r.stateLocks.lock(ctx, id)
	if err != nil {
		return nil, NewContextError(op, id, err)
	}

	r.cacheMu.RLock()
	current, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if !ok {
		unlock()
		return nil, NewNotFoundError(op, id)
	}
	if current.State != StateConnected {
		unlock()
		return nil, NewConflictError(op, id, "device is "+string(current.State))
	}

	next := current.DeepCopy()
	next.LastCommand = &LastCommand{Kind: kind, At: at.UTC()}

	err = r.commit(ctx, next)
	unlock()
	if err != nil {
		return nil, NewUpstreamError(op, id, err)
	}

	r.logger.Debug("command recorded", "id", id, "kind", kind)
	return next, nil
}

// Remove deletes a device outright regardless of lifecycle state.
// Returns a NotFoundError if the device does not exist.
func (r *Registry) Remove(ctx context.Context, id string) error {
	unlock, err := r.stateLocks.lock(ctx, id)
	if err != nil {
		return NewContextError("remove", id, err)
	}

	r.cacheMu.RLock()
	current, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if !ok {
		unlock()
		return NewNotFoundError("remove", id)
	}
	last := current.DeepCopy()

	if err := r.purge(ctx, id); err != nil {
		unlock()
		return NewUpstreamError("remove", id, err)
	}
	defer unlock()

	r.logger.Info("device removed", "id", id)
	r.notify(Change{Event: EventRemove, Device: *last, Removed: true})
	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices   int                    `json:"total_devices"`
	ByState        map[LifecycleState]int `json:"by_state"`
	ByReachability map[Reachability]int   `json:"by_reachability"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices:   len(r.cache),
		ByState:        make(map[LifecycleState]int),
		ByReachability: make(map[Reachability]int),
	}

	for _, d := range r.cache {
		stats.ByState[d.State]++
		stats.ByReachability[d.Reachability]++
	}

	return stats
}

// commit persists d then swaps it into the cache.
// Callers must hold the state lock for d.ID.
func (r *Registry) commit(ctx context.Context, d *Device) error {
	if err := r.repo.Save(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()
	return nil
}

// purge deletes id from the repository and the cache.
// Callers must hold the state lock for id.
func (r *Registry) purge(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()
	return nil
}

func (r *Registry) notify(c Change) {
	r.observersMu.RLock()
	observers := r.observers
	r.observersMu.RUnlock()

	for _, fn := range observers {
		fn(c)
	}
}

// validateSighting checks the fields a discovery source must supply.
func validateSighting(d *Device) error {
	if d.ID == "" {
		return NewValidationError("upsert", "id", "required")
	}
	if d.Name == "" {
		return NewValidationError("upsert", "name", "required")
	}
	if d.Reachability != ReachabilityOnline && d.Reachability != ReachabilityOffline {
		return NewValidationError("upsert", "reachability", "must be online or offline")
	}
	for _, c := range d.Capabilities {
		if !ValidCapability(c) {
			return NewValidationError("upsert", "capabilities", "unknown capability "+string(c))
		}
	}
	return nil
}
