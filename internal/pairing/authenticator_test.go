package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/remotelink-core/internal/device"
)

// countingVerifier wraps a Verifier and counts Verify calls.
type countingVerifier struct {
	Verifier
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingVerifier) Verify(ctx context.Context, id, pin string) (bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.Verifier.Verify(ctx, id, pin)
}

type mockReleaser struct {
	mu       sync.Mutex
	released []string
	err      error
}

func (m *mockReleaser) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, id)
	return m.err
}

func setupAuthenticator(t *testing.T) (*Authenticator, *device.Registry, *countingVerifier, *mockReleaser) {
	t.Helper()
	ctx := context.Background()

	registry := device.NewRegistry(device.NewMemoryRepository())
	for _, d := range []device.Device{
		{ID: "1", Name: "Living Room TV", Reachability: device.ReachabilityOnline, Capabilities: []device.Capability{device.CapPower}},
		{ID: "2", Name: "Bedroom TV", Model: "LG Android TV", Reachability: device.ReachabilityOnline},
		{ID: "3", Name: "Kitchen TV", Reachability: device.ReachabilityOffline},
	} {
		if _, err := registry.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert(%s) error = %v", d.ID, err)
		}
	}

	verifier := &countingVerifier{Verifier: NewSharedSecret("1234")}
	releaser := &mockReleaser{}
	return NewAuthenticator(registry, verifier, releaser), registry, verifier, releaser
}

func TestPairWithPIN(t *testing.T) {
	auth, _, _, _ := setupAuthenticator(t)

	d, err := auth.PairWithPIN(context.Background(), "1", "1234")
	if err != nil {
		t.Fatalf("PairWithPIN() error = %v", err)
	}
	if d.State != device.StatePaired {
		t.Errorf("State = %s, want paired", d.State)
	}
	if d.PairedAt == nil {
		t.Error("PairedAt not stamped")
	}
}

func TestPairWithPIN_Idempotent(t *testing.T) {
	auth, _, _, _ := setupAuthenticator(t)
	ctx := context.Background()

	first, err := auth.PairWithPIN(ctx, "1", "1234")
	if err != nil {
		t.Fatalf("first PairWithPIN() error = %v", err)
	}
	second, err := auth.PairWithPIN(ctx, "1", "1234")
	if err != nil {
		t.Fatalf("second PairWithPIN() error = %v", err)
	}
	if !second.PairedAt.Equal(*first.PairedAt) || second.State != device.StatePaired {
		t.Errorf("second pair changed the record: %+v vs %+v", second, first)
	}
}

func TestPairWithPIN_Errors(t *testing.T) {
	tests := []struct {
		name      string
		deviceID  string
		pin       string
		wantErr   error
		wantField string
	}{
		{"missing device id", "", "1234", device.ErrValidation, "deviceId"},
		{"unknown device", "99", "1234", device.ErrNotFound, ""},
		{"offline device", "3", "1234", device.ErrOffline, ""},
		{"offline beats malformed pin", "3", "12", device.ErrOffline, ""},
		{"three digits", "1", "123", device.ErrValidation, "pin"},
		{"five digits", "1", "12345", device.ErrValidation, "pin"},
		{"letters", "1", "12a4", device.ErrValidation, "pin"},
		{"empty pin", "1", "", device.ErrValidation, "pin"},
		{"wrong pin", "1", "0000", device.ErrInvalidCredential, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, registry, _, _ := setupAuthenticator(t)

			_, err := auth.PairWithPIN(context.Background(), tt.deviceID, tt.pin)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PairWithPIN() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantField != "" {
				var de *device.Error
				if !errors.As(err, &de) || de.Field != tt.wantField {
					t.Errorf("error field = %+v, want %q", de, tt.wantField)
				}
			}

			if d, err := registry.Get(context.Background(), "1"); err == nil && d.State != device.StateDiscovered {
				t.Errorf("device 1 state = %s after failed pairing, want discovered", d.State)
			}
		})
	}
}

func TestPairWithPIN_ShapeCheckedBeforeVerifier(t *testing.T) {
	auth, _, verifier, _ := setupAuthenticator(t)

	if _, err := auth.PairWithPIN(context.Background(), "1", "abcd"); !errors.Is(err, device.ErrValidation) {
		t.Fatalf("PairWithPIN() error = %v, want ErrValidation", err)
	}
	if verifier.calls != 0 {
		t.Errorf("verifier called %d times for a malformed PIN, want 0", verifier.calls)
	}
}

func TestPairWithPIN_VerifierFailure(t *testing.T) {
	auth, _, verifier, _ := setupAuthenticator(t)
	verifier.err = errors.New("hash store unavailable")

	if _, err := auth.PairWithPIN(context.Background(), "1", "1234"); !errors.Is(err, device.ErrUpstream) {
		t.Errorf("PairWithPIN() error = %v, want ErrUpstream", err)
	}
}

func TestPairWithPIN_Concurrent(t *testing.T) {
	auth, _, _, _ := setupAuthenticator(t)

	const workers = 10
	results := make([]*device.Device, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = auth.PairWithPIN(context.Background(), "2", "1234")
		}()
	}
	wg.Wait()

	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("worker %d error = %v", i, errs[i])
		}
		if !results[i].PairedAt.Equal(*results[0].PairedAt) {
			t.Errorf("worker %d saw a different pairing time", i)
		}
	}
}

func TestPairWithQR(t *testing.T) {
	tests := []struct {
		name      string
		qr        string
		wantErr   error
		wantField string
	}{
		{"string pin", `{"deviceId":"1","pin":"1234"}`, nil, ""},
		{"numeric pin", `{"deviceId":"1","pin":1234}`, nil, ""},
		{"not json", `deviceId=1&pin=1234`, device.ErrValidation, "qrData"},
		{"missing pin", `{"deviceId":"1"}`, device.ErrValidation, "qrData"},
		{"null pin", `{"deviceId":"1","pin":null}`, device.ErrValidation, "qrData"},
		{"missing device", `{"pin":"1234"}`, device.ErrValidation, "qrData"},
		{"empty", ``, device.ErrValidation, "qrData"},
		{"malformed pin", `{"deviceId":"1","pin":"12"}`, device.ErrValidation, "pin"},
		{"wrong pin", `{"deviceId":"1","pin":"9999"}`, device.ErrInvalidCredential, ""},
		{"offline device", `{"deviceId":"3","pin":"1234"}`, device.ErrOffline, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, _, _, _ := setupAuthenticator(t)

			d, err := auth.PairWithQR(context.Background(), tt.qr)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("PairWithQR() error = %v", err)
				}
				if d.State != device.StatePaired {
					t.Errorf("State = %s, want paired", d.State)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PairWithQR() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantField != "" {
				var de *device.Error
				if !errors.As(err, &de) || de.Field != tt.wantField {
					t.Errorf("error = %+v, want field %q", de, tt.wantField)
				}
			}
		})
	}
}

func TestUnpair(t *testing.T) {
	auth, registry, _, releaser := setupAuthenticator(t)
	ctx := context.Background()

	if _, err := auth.PairWithPIN(ctx, "1", "1234"); err != nil {
		t.Fatalf("PairWithPIN() error = %v", err)
	}
	if _, err := registry.Transition(ctx, "1", device.EventConnect); err != nil {
		t.Fatalf("Transition(connect) error = %v", err)
	}

	d, err := auth.Unpair(ctx, "1")
	if err != nil {
		t.Fatalf("Unpair() error = %v", err)
	}
	if d.State != device.StateDiscovered || d.PairedAt != nil {
		t.Errorf("after Unpair state = %s pairedAt = %v", d.State, d.PairedAt)
	}
	if len(releaser.released) != 1 || releaser.released[0] != "1" {
		t.Errorf("released = %v, want [1]", releaser.released)
	}

	// A second unpair finds nothing to unpair.
	if _, err := auth.Unpair(ctx, "1"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("second Unpair() error = %v, want ErrNotFound", err)
	}
}

func TestUnpair_Errors(t *testing.T) {
	auth, _, _, releaser := setupAuthenticator(t)
	ctx := context.Background()

	if _, err := auth.Unpair(ctx, "99"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Unpair(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := auth.Unpair(ctx, "2"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Unpair(discovered) error = %v, want ErrNotFound", err)
	}
	if len(releaser.released) != 0 {
		t.Errorf("released = %v, want none", releaser.released)
	}
}

func TestUnpair_ReleaseFailureStillUnpairs(t *testing.T) {
	auth, _, _, releaser := setupAuthenticator(t)
	ctx := context.Background()
	releaser.err = errors.New("link already closed")

	if _, err := auth.PairWithPIN(ctx, "1", "1234"); err != nil {
		t.Fatalf("PairWithPIN() error = %v", err)
	}
	if _, err := auth.Unpair(ctx, "1"); err != nil {
		t.Errorf("Unpair() error = %v, want release failure ignored", err)
	}
}

func TestUnpair_OfflineDeviceIsPurged(t *testing.T) {
	auth, registry, _, _ := setupAuthenticator(t)
	ctx := context.Background()

	if _, err := auth.PairWithPIN(ctx, "1", "1234"); err != nil {
		t.Fatalf("PairWithPIN() error = %v", err)
	}
	if _, err := registry.Upsert(ctx, device.Device{ID: "1", Name: "Living Room TV", Reachability: device.ReachabilityOffline}); err != nil {
		t.Fatalf("Upsert(offline) error = %v", err)
	}

	if _, err := auth.Unpair(ctx, "1"); err != nil {
		t.Fatalf("Unpair() error = %v", err)
	}
	if _, err := registry.Get(ctx, "1"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Get() after offline unpair error = %v, want ErrNotFound", err)
	}
}

func TestGeneratePIN(t *testing.T) {
	auth, _, _, _ := setupAuthenticator(t)
	ctx := context.Background()

	pin, err := auth.GeneratePIN(ctx, "1")
	if err != nil || pin != "1234" {
		t.Errorf("GeneratePIN() = %q, %v; want 1234", pin, err)
	}
	if _, err := auth.GeneratePIN(ctx, "99"); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("GeneratePIN(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := auth.GeneratePIN(ctx, ""); !errors.Is(err, device.ErrValidation) {
		t.Errorf("GeneratePIN(\"\") error = %v, want ErrValidation", err)
	}
}

func TestIssuedPIN_ThroughAuthenticator(t *testing.T) {
	_, registry, _, _ := setupAuthenticator(t)
	auth := NewAuthenticator(registry, NewIssuedPIN(defaultTestTTL), nil)
	ctx := context.Background()

	pin, err := auth.GeneratePIN(ctx, "2")
	if err != nil {
		t.Fatalf("GeneratePIN() error = %v", err)
	}
	d, err := auth.PairWithPIN(ctx, "2", pin)
	if err != nil {
		t.Fatalf("PairWithPIN(issued) error = %v", err)
	}
	if d.State != device.StatePaired {
		t.Errorf("State = %s, want paired", d.State)
	}

	// Unpair works without a releaser.
	if _, err := auth.Unpair(ctx, "2"); err != nil {
		t.Errorf("Unpair() error = %v", err)
	}
}

func TestIssuedPIN_PairTwiceIsIdempotent(t *testing.T) {
	_, registry, _, _ := setupAuthenticator(t)
	auth := NewAuthenticator(registry, NewIssuedPIN(defaultTestTTL), nil)
	ctx := context.Background()

	pin, err := auth.GeneratePIN(ctx, "1")
	if err != nil {
		t.Fatalf("GeneratePIN() error = %v", err)
	}
	first, err := auth.PairWithPIN(ctx, "1", pin)
	if err != nil {
		t.Fatalf("first PairWithPIN() error = %v", err)
	}
	second, err := auth.PairWithPIN(ctx, "1", pin)
	if err != nil {
		t.Fatalf("second PairWithPIN() error = %v", err)
	}
	if !second.PairedAt.Equal(*first.PairedAt) {
		t.Errorf("second pair changed PairedAt: %v vs %v", second.PairedAt, first.PairedAt)
	}

	wrong := "0000"
	if pin == wrong {
		wrong = "1111"
	}
	if _, err := auth.PairWithPIN(ctx, "1", wrong); !errors.Is(err, device.ErrInvalidCredential) {
		t.Errorf("wrong PIN on paired device error = %v, want invalid credential", err)
	}

	// The used PIN cannot pair the device again once it is unpaired.
	if _, err := auth.Unpair(ctx, "1"); err != nil {
		t.Fatalf("Unpair() error = %v", err)
	}
	if _, err := auth.PairWithPIN(ctx, "1", pin); !errors.Is(err, device.ErrInvalidCredential) {
		t.Errorf("re-pair with used PIN error = %v, want invalid credential", err)
	}
}
