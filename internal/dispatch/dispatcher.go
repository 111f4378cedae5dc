package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/remotelink-core/internal/command"
	"github.com/nerrad567/remotelink-core/internal/connection"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/metrics"
)

// DefaultTimeout bounds a single send when no timeout is configured.
const DefaultTimeout = 5 * time.Second

const op = "dispatch"

// Logger is the logging interface used by the Dispatcher.
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

// Registry is the subset of device.Registry the dispatcher needs.
type Registry interface {
	Lock(ctx context.Context, id string) (func(), error)
	RecordCommand(ctx context.Context, id string, kind device.Capability, at time.Time) (*device.Device, error)
}

// Connector yields an open handle for a device whose lock the caller holds.
// *connection.Supervisor implements it.
type Connector interface {
	EnsureConnected(ctx context.Context, id string) (*connection.Handle, *device.Device, error)
}

// Telemetry receives one record per dispatch.
type Telemetry interface {
	WriteCommandMetric(deviceID, kind, result string, duration time.Duration)
}

// Result describes a delivered command.
type Result struct {
	CommandID string            `json:"command_id"`
	DeviceID  string            `json:"device_id"`
	Kind      device.Capability `json:"kind"`
	SentAt    time.Time         `json:"sent_at"`
	Duration  time.Duration     `json:"duration"`
	Device    *device.Device    `json:"device"`
}

// Dispatcher validates commands and delivers them to connected devices.
//
// The device lock is held from the connectivity check until the outcome is
// recorded, so two commands to one device are delivered and recorded in
// order and an unpair cannot interleave with a send.
type Dispatcher struct {
	registry            Registry
	connector           Connector
	timeout             time.Duration
	enforceCapabilities bool
	telemetry           Telemetry
	logger              Logger
	now                 func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry Registry, connector Connector) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		connector: connector,
		timeout:   DefaultTimeout,
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetTimeout overrides DefaultTimeout.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// SetEnforceCapabilities makes Dispatch reject commands whose kind the
// device does not advertise.
func (d *Dispatcher) SetEnforceCapabilities(enforce bool) {
	d.enforceCapabilities = enforce
}

// SetTelemetry sets an optional per-command recorder.
func (d *Dispatcher) SetTelemetry(t Telemetry) {
	d.telemetry = t
}

// Dispatch delivers cmd to deviceID.
//
// Errors:
//   - ValidationError: cmd is nil or malformed, or (with capability
//     enforcement) the device does not advertise cmd's kind
//   - NotFoundError, OfflineError, NotPairedError: from the connectivity check
//   - TimeoutError: the send did not complete within the dispatch timeout
//   - UpstreamError: the transport failed
//
// LastCommand is updated only when the send succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, cmd command.Command) (*Result, error) {
	start := time.Now()
	var kind device.Capability
	if cmd != nil {
		kind = cmd.Kind()
	}

	res, err := d.dispatch(ctx, deviceID, cmd)

	elapsed := time.Since(start)
	metrics.ObserveDispatch(kind, err, elapsed)
	if d.telemetry != nil {
		d.telemetry.WriteCommandMetric(deviceID, string(kind), metrics.Result(err), elapsed)
	}
	if err != nil {
		d.logger.Warn("dispatch failed", "device_id", deviceID, "kind", kind, "error", err)
		return nil, err
	}
	res.Duration = elapsed
	d.logger.Info("command sent", "device_id", deviceID, "kind", kind, "command_id", res.CommandID, "duration", elapsed)
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, deviceID string, cmd command.Command) (*Result, error) {
	if deviceID == "" {
		return nil, device.NewValidationError(op, "deviceId", "required")
	}
	if cmd == nil {
		return nil, device.NewValidationError(op, "kind", "command required")
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	unlock, err := d.registry.Lock(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	h, dev, err := d.connector.EnsureConnected(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if d.enforceCapabilities && !dev.HasCapability(cmd.Kind()) {
		return nil, device.NewValidationError(op, "kind", "device does not support "+string(cmd.Kind()))
	}

	env := command.NewEnvelope(uuid.NewString(), deviceID, cmd, d.now())
	if err := h.Send(ctx, env); err != nil {
		return nil, d.sendError(deviceID, err)
	}

	// The command was delivered; record it even if the caller has gone.
	recorded, err := d.registry.RecordCommand(context.WithoutCancel(ctx), deviceID, env.Kind, env.IssuedAt)
	if err != nil {
		return nil, err
	}

	return &Result{
		CommandID: env.ID,
		DeviceID:  deviceID,
		Kind:      env.Kind,
		SentAt:    env.IssuedAt,
		Device:    recorded,
	}, nil
}

func (d *Dispatcher) sendError(deviceID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return device.NewTimeoutError(op, deviceID, err)
	}
	return device.NewUpstreamError(op, deviceID, err)
}
