package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/metrics"
)

// DefaultOpenTimeout bounds Transport.Open when no timeout is configured.
const DefaultOpenTimeout = 3 * time.Second

// Logger is the logging interface used by the Supervisor.
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

// Registry is the subset of device.Registry the supervisor needs.
type Registry interface {
	Lock(ctx context.Context, id string) (func(), error)
	Get(ctx context.Context, id string) (*device.Device, error)
	List(ctx context.Context, pred device.Predicate) ([]device.Device, error)
	Transition(ctx context.Context, id string, ev device.Event) (*device.Device, error)
}

// Transport opens control links to televisions.
type Transport interface {
	Name() string
	Open(ctx context.Context, d device.Device) (Link, error)
}

// Link is an open control channel to one device.
type Link interface {
	// Send delivers env and returns once the device has accepted it.
	Send(ctx context.Context, env command.Envelope) error
	Close() error
}

// Handle is the supervisor's record of an open link.
type Handle struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Transport string    `json:"transport"`
	OpenedAt  time.Time `json:"opened_at"`

	link Link
}

// Send delivers env over the handle's link.
func (h *Handle) Send(ctx context.Context, env command.Envelope) error {
	return h.link.Send(ctx, env)
}

// Supervisor owns the connection handle for every connected device.
//
// Methods that mutate a device take the registry's per-device lock, except
// EnsureConnected and Release, which expect the caller to hold it.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Supervisor struct {
	registry    Registry
	transport   Transport
	openTimeout time.Duration
	logger      Logger
	now         func() time.Time

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewSupervisor creates a supervisor opening links through transport.
func NewSupervisor(registry Registry, transport Transport) *Supervisor {
	return &Supervisor{
		registry:    registry,
		transport:   transport,
		openTimeout: DefaultOpenTimeout,
		logger:      noopLogger{},
		now:         func() time.Time { return time.Now().UTC() },
		handles:     make(map[string]*Handle),
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetOpenTimeout overrides DefaultOpenTimeout.
func (s *Supervisor) SetOpenTimeout(d time.Duration) {
	if d > 0 {
		s.openTimeout = d
	}
}

// EnsureConnected returns an open handle for id, opening one if needed.
// The caller must hold the registry lock for id.
//
// Preconditions are checked in order: the device must exist
// (NotFoundError), be online (OfflineError) and be paired
// (NotPairedError). An offline device loses any handle it still had and a
// connected one drops back to paired. The first successful open
// transitions paired to connected; later calls reuse the handle.
func (s *Supervisor) EnsureConnected(ctx context.Context, id string) (*Handle, *device.Device, error) {
	d, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if !d.IsOnline() {
		s.demote(ctx, d)
		return nil, nil, device.NewOfflineError("connect", id)
	}
	if d.State == device.StateDiscovered {
		s.closeHandle(id)
		return nil, nil, device.NewNotPairedError("connect", id)
	}

	if h := s.handle(id); h != nil {
		if d.State != device.StateConnected {
			if d, err = s.registry.Transition(ctx, id, device.EventConnect); err != nil {
				return nil, nil, err
			}
		}
		return h, d, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, s.openTimeout)
	defer cancel()

	link, err := s.transport.Open(openCtx, *d)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, device.NewTimeoutError("connect", id, err)
		}
		return nil, nil, device.NewUpstreamError("connect", id, err)
	}

	if d.State == device.StatePaired {
		next, err := s.registry.Transition(ctx, id, device.EventConnect)
		if err != nil {
			if cerr := link.Close(); cerr != nil {
				s.logger.Warn("closing link after failed connect", "device_id", id, "error", cerr)
			}
			return nil, nil, err
		}
		d = next
	}

	h := &Handle{
		ID:        uuid.NewString(),
		DeviceID:  id,
		Transport: s.transport.Name(),
		OpenedAt:  s.now(),
		link:      link,
	}
	s.mu.Lock()
	s.handles[id] = h
	open := len(s.handles)
	s.mu.Unlock()
	metrics.SetConnectionsOpen(open)

	s.logger.Info("device connected", "device_id", id, "handle", h.ID, "transport", h.Transport)
	return h, d, nil
}

// Exec runs fn with an open handle while holding the device lock.
func (s *Supervisor) Exec(ctx context.Context, id string, fn func(ctx context.Context, h *Handle, d *device.Device) error) error {
	unlock, err := s.registry.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	h, d, err := s.EnsureConnected(ctx, id)
	if err != nil {
		return err
	}
	return fn(ctx, h, d)
}

// Disconnect closes the device's handle and returns it to paired. A device
// that is paired but not connected is returned unchanged; a device that is
// not paired is a NotPairedError.
func (s *Supervisor) Disconnect(ctx context.Context, id string) (*device.Device, error) {
	unlock, err := s.registry.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch d.State {
	case device.StateDiscovered:
		return nil, device.NewNotPairedError("disconnect", id)
	case device.StatePaired:
		s.closeHandle(id)
		return d, nil
	}

	s.closeHandle(id)
	d, err = s.registry.Transition(ctx, id, device.EventDisconnect)
	if err != nil {
		return nil, err
	}
	s.logger.Info("device disconnected", "device_id", id)
	return d, nil
}

// Release closes the device's handle without changing its lifecycle state.
// The caller must hold the registry lock for id. Releasing a device with
// no handle is a no-op.
func (s *Supervisor) Release(_ context.Context, id string) error {
	s.mu.Lock()
	h, ok := s.handles[id]
	delete(s.handles, id)
	open := len(s.handles)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	metrics.SetConnectionsOpen(open)
	if err := h.link.Close(); err != nil {
		return fmt.Errorf("closing %s link for %s: %w", h.Transport, id, err)
	}
	return nil
}

// Reconcile returns devices recorded as connected but without a live
// handle to paired. Run it at startup when the registry is durable.
func (s *Supervisor) Reconcile(ctx context.Context) (int, error) {
	connected, err := s.registry.List(ctx, device.InState(device.StateConnected))
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range connected {
		if s.handle(d.ID) != nil {
			continue
		}
		if err := s.reconcileOne(ctx, d.ID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.logger.Info("stale connections reset", "count", n)
	}
	return n, nil
}

func (s *Supervisor) reconcileOne(ctx context.Context, id string) error {
	unlock, err := s.registry.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = s.registry.Transition(ctx, id, device.EventDisconnect)
	if errors.Is(err, device.ErrConflict) || errors.Is(err, device.ErrNotFound) {
		return nil
	}
	return err
}

// Handles returns the number of open handles.
func (s *Supervisor) Handles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close closes every open link without changing lifecycle state.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[string]*Handle)
	s.mu.Unlock()

	var errs []error
	for id, h := range handles {
		if err := h.link.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing link for %s: %w", id, err))
		}
	}
	metrics.SetConnectionsOpen(0)
	return errors.Join(errs...)
}

func (s *Supervisor) handle(id string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[id]
}

func (s *Supervisor) closeHandle(id string) {
	if err := s.Release(context.Background(), id); err != nil {
		s.logger.Warn("closing link", "device_id", id, "error", err)
	}
}

// demote drops the handle of a device found offline and returns a
// connected device to paired.
func (s *Supervisor) demote(ctx context.Context, d *device.Device) {
	s.closeHandle(d.ID)
	if d.State != device.StateConnected {
		return
	}
	if _, err := s.registry.Transition(ctx, d.ID, device.EventDisconnect); err != nil {
		s.logger.Warn("demoting offline device", "device_id", d.ID, "error", err)
		return
	}
	s.logger.Info("connected device went offline", "device_id", d.ID)
}
