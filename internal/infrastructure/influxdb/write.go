package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementCommand   = "remote_command"
	measurementScan      = "discovery_scan"
	measurementLifecycle = "device_lifecycle"
)

// WriteCommandMetric records one dispatch attempt. result is the metrics
// result label ("ok", "offline", "timeout", ...).
func (c *Client) WriteCommandMetric(deviceID, kind, result string, duration time.Duration) {
	c.record(commandPoint(deviceID, kind, result, duration, time.Now()))
}

// WriteScanMetric records the outcome of a discovery scan.
func (c *Client) WriteScanMetric(result string, found int, duration time.Duration) {
	c.record(scanPoint(result, found, duration, time.Now()))
}

// WriteLifecycleEvent records a device lifecycle transition.
func (c *Client) WriteLifecycleEvent(deviceID, event, state string) {
	c.record(lifecyclePoint(deviceID, event, state, time.Now()))
}

// record queues p unless the client is nil or closed. The read lock keeps
// Close from releasing the write API underneath an in-flight write.
func (c *Client) record(p *write.Point) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.open {
		c.writes.WritePoint(p)
	}
}

func commandPoint(deviceID, kind, result string, duration time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
			"result":    result,
		},
		map[string]interface{}{
			"duration_ms": float64(duration) / float64(time.Millisecond),
		},
		at,
	)
}

func scanPoint(result string, found int, duration time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		measurementScan,
		map[string]string{"result": result},
		map[string]interface{}{
			"found":       found,
			"duration_ms": float64(duration) / float64(time.Millisecond),
		},
		at,
	)
}

func lifecyclePoint(deviceID, event, state string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementLifecycle,
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		map[string]interface{}{
			"state": state,
		},
		at,
	)
}
