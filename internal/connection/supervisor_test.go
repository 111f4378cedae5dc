package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/device"
)

// fakeTransport hands out fakeLinks and records every open.
type fakeTransport struct {
	mu      sync.Mutex
	opens   int
	links   []*fakeLink
	openErr error
	block   bool
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Open(ctx context.Context, _ device.Device) (Link, error) {
	if t.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	if t.openErr != nil {
		return nil, t.openErr
	}
	l := &fakeLink{}
	t.links = append(t.links, l)
	return l, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

type fakeLink struct {
	mu     sync.Mutex
	sent   []command.Envelope
	closed bool
}

func (l *fakeLink) Send(_ context.Context, env command.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}
	l.sent = append(l.sent, env)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// setupSupervisor registers three devices: "1" online and paired, "2"
// online and unpaired, "3" offline.
func setupSupervisor(t *testing.T) (*Supervisor, *device.Registry, *fakeTransport) {
	t.Helper()
	ctx := context.Background()

	registry := device.NewRegistry(device.NewMemoryRepository())
	for _, d := range []device.Device{
		{ID: "1", Name: "Living Room TV", Reachability: device.ReachabilityOnline, Capabilities: []device.Capability{device.CapPower}},
		{ID: "2", Name: "Bedroom TV", Reachability: device.ReachabilityOnline},
		{ID: "3", Name: "Kitchen TV", Reachability: device.ReachabilityOffline},
	} {
		if _, err := registry.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert(%s) error = %v", d.ID, err)
		}
	}
	if _, err := registry.Transition(ctx, "1", device.EventPair); err != nil {
		t.Fatalf("pairing device 1: %v", err)
	}

	transport := &fakeTransport{}
	return NewSupervisor(registry, transport), registry, transport
}

func ensure(t *testing.T, s *Supervisor, registry *device.Registry, id string) (*Handle, *device.Device, error) {
	t.Helper()
	ctx := context.Background()
	unlock, err := registry.Lock(ctx, id)
	if err != nil {
		t.Fatalf("Lock(%s) error = %v", id, err)
	}
	defer unlock()
	return s.EnsureConnected(ctx, id)
}

func TestEnsureConnected_OpensOnce(t *testing.T) {
	s, registry, transport := setupSupervisor(t)

	h1, d, err := ensure(t, s, registry, "1")
	if err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if d.State != device.StateConnected {
		t.Errorf("State = %s, want connected", d.State)
	}
	if h1.ID == "" || h1.DeviceID != "1" || h1.Transport != "fake" {
		t.Errorf("handle = %+v", h1)
	}

	h2, _, err := ensure(t, s, registry, "1")
	if err != nil {
		t.Fatalf("second EnsureConnected() error = %v", err)
	}
	if h2.ID != h1.ID {
		t.Error("second call should reuse the open handle")
	}
	if transport.openCount() != 1 {
		t.Errorf("opens = %d, want 1", transport.openCount())
	}
	if s.Handles() != 1 {
		t.Errorf("Handles() = %d, want 1", s.Handles())
	}
}

func TestEnsureConnected_Preconditions(t *testing.T) {
	tests := []struct {
		id      string
		wantErr error
	}{
		{"missing", device.ErrNotFound},
		{"2", device.ErrNotPaired},
		{"3", device.ErrOffline},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			s, registry, transport := setupSupervisor(t)
			_, _, err := ensure(t, s, registry, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EnsureConnected(%s) error = %v, want %v", tt.id, err, tt.wantErr)
			}
			if transport.openCount() != 0 {
				t.Error("transport should not be opened")
			}
		})
	}
}

func TestEnsureConnected_OfflineDemotes(t *testing.T) {
	s, registry, transport := setupSupervisor(t)
	ctx := context.Background()

	if _, _, err := ensure(t, s, registry, "1"); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}

	if _, err := registry.Upsert(ctx, device.Device{ID: "1", Name: "Living Room TV", Reachability: device.ReachabilityOffline}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	_, _, err := ensure(t, s, registry, "1")
	if !errors.Is(err, device.ErrOffline) {
		t.Fatalf("EnsureConnected() error = %v, want offline", err)
	}
	if !transport.links[0].isClosed() {
		t.Error("link should be closed when the device goes offline")
	}
	d, _ := registry.Get(ctx, "1")
	if d.State != device.StatePaired {
		t.Errorf("State = %s, want paired", d.State)
	}
	if s.Handles() != 0 {
		t.Errorf("Handles() = %d, want 0", s.Handles())
	}
}

func TestEnsureConnected_OpenFailures(t *testing.T) {
	t.Run("upstream", func(t *testing.T) {
		s, registry, transport := setupSupervisor(t)
		transport.openErr = errors.New("connection refused")

		_, _, err := ensure(t, s, registry, "1")
		if !errors.Is(err, device.ErrUpstream) {
			t.Errorf("error = %v, want upstream", err)
		}
		d, _ := registry.Get(context.Background(), "1")
		if d.State != device.StatePaired {
			t.Errorf("State = %s, want paired after failed open", d.State)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		s, registry, transport := setupSupervisor(t)
		transport.block = true
		s.SetOpenTimeout(20 * time.Millisecond)

		_, _, err := ensure(t, s, registry, "1")
		if !errors.Is(err, device.ErrTimeout) {
			t.Errorf("error = %v, want timeout", err)
		}
	})
}

func TestExec(t *testing.T) {
	s, _, transport := setupSupervisor(t)
	ctx := context.Background()

	err := s.Exec(ctx, "1", func(ctx context.Context, h *Handle, d *device.Device) error {
		return h.Send(ctx, command.NewEnvelope("cmd-1", d.ID, command.Power{}, time.Now()))
	})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if len(transport.links[0].sent) != 1 || transport.links[0].sent[0].ID != "cmd-1" {
		t.Errorf("sent = %+v", transport.links[0].sent)
	}
}

func TestDisconnect(t *testing.T) {
	s, registry, transport := setupSupervisor(t)
	ctx := context.Background()

	// Paired but never connected: unchanged.
	d, err := s.Disconnect(ctx, "1")
	if err != nil || d.State != device.StatePaired {
		t.Fatalf("Disconnect(paired) = %v, %v", d, err)
	}

	if _, _, err := ensure(t, s, registry, "1"); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	d, err = s.Disconnect(ctx, "1")
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if d.State != device.StatePaired {
		t.Errorf("State = %s, want paired", d.State)
	}
	if !transport.links[0].isClosed() {
		t.Error("link should be closed")
	}

	if _, err := s.Disconnect(ctx, "2"); !errors.Is(err, device.ErrNotPaired) {
		t.Errorf("Disconnect(unpaired) error = %v, want not paired", err)
	}
	if _, err := s.Disconnect(ctx, "missing"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Disconnect(missing) error = %v, want not found", err)
	}
}

func TestRelease(t *testing.T) {
	s, registry, transport := setupSupervisor(t)
	ctx := context.Background()

	if err := s.Release(ctx, "1"); err != nil {
		t.Errorf("Release() with no handle error = %v", err)
	}

	if _, _, err := ensure(t, s, registry, "1"); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if err := s.Release(ctx, "1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !transport.links[0].isClosed() {
		t.Error("link should be closed")
	}
	d, _ := registry.Get(ctx, "1")
	if d.State != device.StateConnected {
		t.Errorf("State = %s, Release should not change lifecycle state", d.State)
	}
}

func TestReconcile(t *testing.T) {
	s, registry, _ := setupSupervisor(t)
	ctx := context.Background()

	// Simulate a restart: the registry says connected but no handle exists.
	if _, err := registry.Transition(ctx, "1", device.EventConnect); err != nil {
		t.Fatalf("Transition(connect) error = %v", err)
	}

	n, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Reconcile() = %d, want 1", n)
	}
	d, _ := registry.Get(ctx, "1")
	if d.State != device.StatePaired {
		t.Errorf("State = %s, want paired", d.State)
	}

	if n, _ := s.Reconcile(ctx); n != 0 {
		t.Errorf("second Reconcile() = %d, want 0", n)
	}
}

func TestClose(t *testing.T) {
	s, registry, transport := setupSupervisor(t)

	if _, _, err := ensure(t, s, registry, "1"); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.Handles() != 0 || !transport.links[0].isClosed() {
		t.Error("Close() should close every link")
	}
}
