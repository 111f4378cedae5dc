package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/metrics"
)

// DefaultTimeout bounds a scan when neither the caller nor the
// configuration sets one.
const DefaultTimeout = 5 * time.Second

// androidTVMarker identifies Android TV models for Options.OnlyAndroidTV.
const androidTVMarker = "Android TV"

// Logger is the logging interface used by the Engine.
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

// Registry is the subset of device.Registry the engine writes sightings to.
type Registry interface {
	Upsert(ctx context.Context, seen device.Device) (*device.Device, error)
	Get(ctx context.Context, id string) (*device.Device, error)
	List(ctx context.Context, pred device.Predicate) ([]device.Device, error)
}

// Scanner is one discovery source. Scan reports every device it sees via
// emit until it has nothing more to report or ctx is done. Returning
// ctx.Err() after cancellation is expected and not treated as a failure.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, emit func(device.Device)) error
}

// Telemetry receives one record per finished scan.
type Telemetry interface {
	WriteScanMetric(result string, found int, duration time.Duration)
}

// Options narrows a single scan. The zero value scans with the engine
// default timeout and no filters.
type Options struct {
	// Timeout is the upper bound on scan duration. Non-positive means the
	// engine default.
	Timeout time.Duration `json:"timeout"`

	// OnlyCapability keeps devices advertising this capability.
	OnlyCapability device.Capability `json:"only_capability,omitempty"`

	// OnlyAndroidTV keeps devices whose model names Android TV.
	OnlyAndroidTV bool `json:"only_android_tv,omitempty"`
}

func (o Options) match(d *device.Device) bool {
	if !d.IsOnline() {
		return false
	}
	if o.OnlyCapability != "" && !d.HasCapability(o.OnlyCapability) {
		return false
	}
	if o.OnlyAndroidTV && !strings.Contains(d.Model, androidTVMarker) {
		return false
	}
	return true
}

// Engine runs discovery scans across one or more sources and records every
// sighting in the registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Concurrent scans run
//     independently; Stop cancels all of them.
type Engine struct {
	registry       Registry
	scanners       []Scanner
	defaultTimeout time.Duration
	logger         Logger
	telemetry      Telemetry

	mu     sync.Mutex
	active map[uint64]context.CancelFunc
	nextID uint64
}

// NewEngine creates an engine over the given sources.
func NewEngine(registry Registry, scanners ...Scanner) *Engine {
	return &Engine{
		registry:       registry,
		scanners:       scanners,
		defaultTimeout: DefaultTimeout,
		logger:         noopLogger{},
		active:         make(map[uint64]context.CancelFunc),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetDefaultTimeout overrides DefaultTimeout for scans without a timeout.
func (e *Engine) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		e.defaultTimeout = d
	}
}

// SetTelemetry sets an optional scan recorder.
func (e *Engine) SetTelemetry(t Telemetry) {
	e.telemetry = t
}

// Scan runs every source concurrently until each finishes, the timeout
// elapses or Stop is called, and returns the online devices seen during
// this scan in the order they were first seen.
//
// A timeout or Stop yields the partial result without error. Cancellation
// of ctx itself is returned as an error. If every source fails the scan
// fails with an UpstreamError; a partial source failure is logged and the
// remaining sources' devices are returned.
func (e *Engine) Scan(ctx context.Context, opts Options) ([]device.Device, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	id := e.begin(cancel)
	defer e.end(id)

	start := time.Now()
	e.logger.Debug("discovery scan started", "sources", len(e.scanners), "timeout", timeout)

	col := &collector{}
	emit := func(seen device.Device) {
		if !col.open() {
			return
		}
		if _, err := e.registry.Upsert(ctx, seen); err != nil {
			e.logger.Warn("discarding device sighting", "id", seen.ID, "error", err)
			return
		}
		col.add(seen.ID)
	}

	errs := make([]error, len(e.scanners))
	var wg sync.WaitGroup
	for i, s := range e.scanners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Scan(scanCtx, emit)
		}()
	}
	wg.Wait()
	ids := col.close()

	if err := ctx.Err(); err != nil {
		e.record(err, 0, start)
		return nil, device.NewContextError("discover", "", err)
	}

	var failures []error
	for i, err := range errs {
		if err == nil || (scanCtx.Err() != nil && isContextErr(err)) {
			continue
		}
		e.logger.Warn("discovery source failed", "source", e.scanners[i].Name(), "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", e.scanners[i].Name(), err))
	}
	if len(e.scanners) > 0 && len(failures) == len(e.scanners) {
		err := device.NewUpstreamError("discover", "", errors.Join(failures...))
		e.record(err, 0, start)
		return nil, err
	}

	found := make([]device.Device, 0, len(ids))
	for _, id := range ids {
		d, err := e.registry.Get(ctx, id)
		if err != nil {
			// Removed concurrently.
			continue
		}
		if opts.match(d) {
			found = append(found, *d)
		}
	}

	e.record(nil, len(found), start)
	e.logger.Info("discovery scan complete",
		"seen", len(ids),
		"returned", len(found),
		"partial", scanCtx.Err() != nil,
		"duration", time.Since(start),
	)
	return found, nil
}

// Stop cancels every in-flight scan. Those scans return what they have
// seen so far. Stop is a no-op when idle and never removes devices.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.active) == 0 {
		return
	}
	for _, cancel := range e.active {
		cancel()
	}
	e.logger.Info("discovery stopped", "scans", len(e.active))
}

// Scanning reports whether any scan is in flight.
func (e *Engine) Scanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active) > 0
}

// Recent returns every known device, offline ones included, sorted by ID.
func (e *Engine) Recent(ctx context.Context) ([]device.Device, error) {
	return e.registry.List(ctx, nil)
}

// Paired returns devices in the paired set, sorted by ID.
func (e *Engine) Paired(ctx context.Context) ([]device.Device, error) {
	return e.registry.List(ctx, device.Paired())
}

// Device returns a single known device.
func (e *Engine) Device(ctx context.Context, id string) (*device.Device, error) {
	return e.registry.Get(ctx, id)
}

func (e *Engine) begin(cancel context.CancelFunc) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.active[e.nextID] = cancel
	return e.nextID
}

func (e *Engine) end(id uint64) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

func (e *Engine) record(err error, found int, start time.Time) {
	dur := time.Since(start)
	metrics.ObserveScan(err, found, dur)
	if e.telemetry != nil {
		e.telemetry.WriteScanMetric(metrics.Result(err), found, dur)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// collector accumulates device IDs in first-seen order. Sightings that
// arrive after close are dropped.
type collector struct {
	mu     sync.Mutex
	seen   map[string]bool
	order  []string
	closed bool
}

func (c *collector) open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *collector) add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if !c.seen[id] {
		c.seen[id] = true
		c.order = append(c.order, id)
	}
}

func (c *collector) close() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.order
}
