package pairing

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/nerrad567/remotelink-core/internal/auth"
)

// Verifier checks pairing PINs. Implementations are safe for concurrent use.
type Verifier interface {
	// Verify reports whether pin is the valid pairing PIN for deviceID.
	Verify(ctx context.Context, deviceID, pin string) (bool, error)

	// Issue returns the PIN a user should enter for deviceID.
	Issue(ctx context.Context, deviceID string) (string, error)
}

// SharedSecret accepts one configured PIN for every device.
type SharedSecret struct {
	pin string
}

// NewSharedSecret creates a verifier for pin.
func NewSharedSecret(pin string) *SharedSecret {
	return &SharedSecret{pin: pin}
}

// Verify implements Verifier with a constant-time comparison.
func (s *SharedSecret) Verify(_ context.Context, _, pin string) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) == 1, nil
}

// Issue implements Verifier; it always returns the shared PIN.
func (s *SharedSecret) Issue(context.Context, string) (string, error) {
	return s.pin, nil
}

// Confirmer is implemented by verifiers whose PINs are consumed on first
// use. Confirm reports whether pin is the PIN that already paired deviceID,
// so repeating a successful pairing stays idempotent.
type Confirmer interface {
	Confirm(ctx context.Context, deviceID, pin string) (bool, error)
}

// IssuedPIN hands out a random PIN per device and keeps only its Argon2id
// hash. A PIN pairs a device once; after that it only confirms the pairing
// it made, until its TTL expires. Issuing again replaces the previous PIN.
type IssuedPIN struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]issued
}

type issued struct {
	hash    string
	expires time.Time
	used    bool
}

// NewIssuedPIN creates a verifier whose PINs live for ttl.
func NewIssuedPIN(ttl time.Duration) *IssuedPIN {
	return &IssuedPIN{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]issued),
	}
}

// Issue implements Verifier.
func (v *IssuedPIN) Issue(_ context.Context, deviceID string) (string, error) {
	pin, err := auth.RandomPIN()
	if err != nil {
		return "", err
	}
	hash, err := auth.HashSecret(pin)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	v.pending[deviceID] = issued{hash: hash, expires: v.now().Add(v.ttl)}
	v.mu.Unlock()
	return pin, nil
}

// Verify implements Verifier. A PIN that has already been used is rejected.
func (v *IssuedPIN) Verify(_ context.Context, deviceID, pin string) (bool, error) {
	entry, ok := v.lookup(deviceID)
	if !ok || entry.used {
		return false, nil
	}

	match, err := auth.VerifySecret(pin, entry.hash)
	if err != nil || !match {
		return false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	current, still := v.pending[deviceID]
	if !still || current.hash != entry.hash || current.used {
		// Reissued or consumed concurrently.
		return false, nil
	}
	current.used = true
	v.pending[deviceID] = current
	return true, nil
}

// Confirm implements Confirmer. It accepts only a used, unexpired PIN.
func (v *IssuedPIN) Confirm(_ context.Context, deviceID, pin string) (bool, error) {
	entry, ok := v.lookup(deviceID)
	if !ok || !entry.used {
		return false, nil
	}
	return auth.VerifySecret(pin, entry.hash)
}

// lookup returns the unexpired entry for deviceID, dropping an expired one.
func (v *IssuedPIN) lookup(deviceID string) (issued, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.pending[deviceID]
	if ok && !v.now().Before(entry.expires) {
		delete(v.pending, deviceID)
		return issued{}, false
	}
	return entry, ok
}

// Pending returns the number of unexpired PINs not yet used.
func (v *IssuedPIN) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	n := 0
	for id, entry := range v.pending {
		switch {
		case !now.Before(entry.expires):
			delete(v.pending, id)
		case !entry.used:
			n++
		}
	}
	return n
}
