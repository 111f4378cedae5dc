package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"

	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/metrics"
)

// Pairing methods, used as the metrics label.
const (
	MethodPIN = "pin"
	MethodQR  = "qr"
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// Logger is the logging interface used by the Authenticator.
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

// Registry is the subset of device.Registry used for pairing.
type Registry interface {
	Lock(ctx context.Context, id string) (func(), error)
	Get(ctx context.Context, id string) (*device.Device, error)
	Transition(ctx context.Context, id string, ev device.Event) (*device.Device, error)
}

// Releaser tears down a device's connection handle without touching its
// lifecycle state. The caller holds the device lock.
type Releaser interface {
	Release(ctx context.Context, id string) error
}

// Authenticator turns a PIN or QR credential into a paired device.
type Authenticator struct {
	registry Registry
	verifier Verifier
	releaser Releaser
	logger   Logger
}

// NewAuthenticator creates an authenticator. releaser may be nil when no
// connection supervisor is running.
func NewAuthenticator(registry Registry, verifier Verifier, releaser Releaser) *Authenticator {
	return &Authenticator{
		registry: registry,
		verifier: verifier,
		releaser: releaser,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the authenticator.
func (a *Authenticator) SetLogger(logger Logger) {
	a.logger = logger
}

// PairWithPIN pairs deviceID using a 4-digit PIN.
//
// Checks run in order: the device must exist (NotFoundError) and be online
// (OfflineError); the PIN must be exactly four digits (ValidationError);
// the verifier must accept it (InvalidCredentialError). A device that is
// already paired or connected is returned unchanged.
func (a *Authenticator) PairWithPIN(ctx context.Context, deviceID, pin string) (*device.Device, error) {
	d, err := a.pair(ctx, deviceID, pin)
	metrics.ObservePairing(MethodPIN, err)
	return d, err
}

// PairWithQR decodes a QR payload of the form {"deviceId":"2","pin":"1234"}
// and pairs as PairWithPIN. A payload that is not JSON or lacks either
// field is a ValidationError on field "qrData".
func (a *Authenticator) PairWithQR(ctx context.Context, qrData string) (*device.Device, error) {
	d, err := a.pairQR(ctx, qrData)
	metrics.ObservePairing(MethodQR, err)
	return d, err
}

func (a *Authenticator) pairQR(ctx context.Context, qrData string) (*device.Device, error) {
	deviceID, pin, err := decodeQR(qrData)
	if err != nil {
		return nil, err
	}
	return a.pair(ctx, deviceID, pin)
}

// GeneratePIN returns the PIN to pair deviceID with. Diagnostic only.
func (a *Authenticator) GeneratePIN(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		return "", device.NewValidationError("generate-pin", "deviceId", "required")
	}
	if _, err := a.registry.Get(ctx, deviceID); err != nil {
		return "", err
	}
	pin, err := a.verifier.Issue(ctx, deviceID)
	if err != nil {
		return "", device.NewUpstreamError("generate-pin", deviceID, err)
	}
	a.logger.Debug("pairing pin issued", "device_id", deviceID)
	return pin, nil
}

// Unpair removes deviceID from the paired set and tears down its
// connection handle. A device that is unknown or not paired is a
// NotFoundError, so a second Unpair fails.
func (a *Authenticator) Unpair(ctx context.Context, deviceID string) (*device.Device, error) {
	unlock, err := a.registry.Lock(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := a.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.IsPaired() {
		return nil, device.NewNotFoundError("unpair", deviceID)
	}

	if a.releaser != nil {
		if err := a.releaser.Release(ctx, deviceID); err != nil {
			a.logger.Warn("closing connection during unpair", "device_id", deviceID, "error", err)
		}
	}

	d, err = a.registry.Transition(ctx, deviceID, device.EventUnpair)
	if err != nil {
		return nil, err
	}
	a.logger.Info("device unpaired", "device_id", deviceID)
	return d, nil
}

func (a *Authenticator) pair(ctx context.Context, deviceID, pin string) (*device.Device, error) {
	if deviceID == "" {
		return nil, device.NewValidationError("pair", "deviceId", "required")
	}

	unlock, err := a.registry.Lock(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := a.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.IsOnline() {
		return nil, device.NewOfflineError("pair", deviceID)
	}
	if !pinPattern.MatchString(pin) {
		return nil, device.NewValidationError("pair", "pin", "must be exactly 4 digits")
	}

	ok, err := a.verify(ctx, d, pin)
	if err != nil {
		return nil, device.NewUpstreamError("pair", deviceID, err)
	}
	if !ok {
		a.logger.Warn("pairing rejected", "device_id", deviceID)
		return nil, device.NewInvalidCredentialError("pair", deviceID)
	}

	if d.IsPaired() {
		return d, nil
	}

	d, err = a.registry.Transition(ctx, deviceID, device.EventPair)
	if err != nil {
		return nil, err
	}
	a.logger.Info("device paired", "device_id", deviceID, "name", d.Name)
	return d, nil
}

// verify checks pin against the verifier. A device that is already paired
// is confirmed instead when the verifier consumes PINs on use.
func (a *Authenticator) verify(ctx context.Context, d *device.Device, pin string) (bool, error) {
	if c, ok := a.verifier.(Confirmer); ok && d.IsPaired() {
		return c.Confirm(ctx, d.ID, pin)
	}
	return a.verifier.Verify(ctx, d.ID, pin)
}

const qrFormatDetail = "invalid QR code format"

type qrPayload struct {
	DeviceID string          `json:"deviceId"`
	PIN      json.RawMessage `json:"pin"`
}

func decodeQR(qrData string) (deviceID, pin string, err error) {
	invalid := device.NewValidationError("pair", "qrData", qrFormatDetail)

	var p qrPayload
	if err := json.Unmarshal([]byte(qrData), &p); err != nil {
		return "", "", invalid
	}
	if p.DeviceID == "" || len(p.PIN) == 0 {
		return "", "", invalid
	}

	// Accept "1234" and 1234.
	raw := bytes.TrimSpace(p.PIN)
	if err := json.Unmarshal(raw, &pin); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", "", invalid
		}
		pin = n.String()
	}
	if pin == "" {
		return "", "", invalid
	}
	return p.DeviceID, pin, nil
}
