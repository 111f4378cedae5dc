package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/connection"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/discovery"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
	"github.com/nerrad567/remotelink-core/internal/pairing"
)

// stack wires the reference catalog through discovery, pairing,
// connection and dispatch the way the process entry point does.
type stack struct {
	registry   *device.Registry
	engine     *discovery.Engine
	auth       *pairing.Authenticator
	dispatcher *Dispatcher
}

func newStack(t *testing.T) *stack {
	t.Helper()
	registry := device.NewRegistry(device.NewMemoryRepository())
	sup := connection.NewSupervisor(registry, connection.NewSimulatedTransport(0))
	return &stack{
		registry:   registry,
		engine:     discovery.NewEngine(registry, discovery.NewCatalogScanner(config.ReferenceCatalog(), 0)),
		auth:       pairing.NewAuthenticator(registry, pairing.NewSharedSecret("1234"), sup),
		dispatcher: NewDispatcher(registry, sup),
	}
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	// A: two of three catalog devices are online.
	found, err := s.engine.Scan(ctx, discovery.Options{})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(found) != 2 || found[0].ID != "1" || found[1].ID != "2" {
		t.Fatalf("Scan() = %v, want devices 1 and 2", found)
	}

	// B: correct PIN pairs, wrong PIN is rejected.
	d, err := s.auth.PairWithPIN(ctx, "1", "1234")
	if err != nil || d.State != device.StatePaired {
		t.Fatalf("PairWithPIN(1234) = %v, %v", d, err)
	}
	if _, err := s.auth.PairWithPIN(ctx, "2", "0000"); !errors.Is(err, device.ErrInvalidCredential) {
		t.Errorf("PairWithPIN(0000) error = %v, want invalid credential", err)
	}

	// C: the offline device cannot be controlled.
	if _, err := s.dispatcher.Dispatch(ctx, "3", command.Power{}); !errors.Is(err, device.ErrOffline) {
		t.Errorf("Dispatch(offline) error = %v, want offline", err)
	}
	offline, err := s.registry.Get(ctx, "3")
	if err != nil {
		t.Fatalf("Get(3) error = %v", err)
	}
	if offline.LastCommand != nil {
		t.Error("offline device LastCommand should stay unset")
	}

	// D: discovered but unpaired.
	if _, err := s.dispatcher.Dispatch(ctx, "2", command.Power{}); !errors.Is(err, device.ErrNotPaired) {
		t.Errorf("Dispatch(unpaired) error = %v, want not paired", err)
	}

	// Paired device accepts a command, then unpairing tears the link down.
	if _, err := s.dispatcher.Dispatch(ctx, "1", command.Volume{Action: command.VolumeMute}); err != nil {
		t.Fatalf("Dispatch(paired) error = %v", err)
	}
	if _, err := s.auth.Unpair(ctx, "1"); err != nil {
		t.Fatalf("Unpair() error = %v", err)
	}
	if _, err := s.dispatcher.Dispatch(ctx, "1", command.Power{}); !errors.Is(err, device.ErrNotPaired) {
		t.Errorf("Dispatch(after unpair) error = %v, want not paired", err)
	}
	if _, err := s.auth.Unpair(ctx, "1"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("second Unpair() error = %v, want not found", err)
	}
}
