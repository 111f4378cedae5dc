// Package influxdb writes RemoteLink session telemetry to InfluxDB v2.
//
// Three measurements are recorded:
//
//	remote_command    device_id, kind, result  → duration_ms
//	discovery_scan    result                   → found, duration_ms
//	device_lifecycle  device_id, event         → state
//
// Writes are batched and non-blocking. A disabled or disconnected client
// drops points silently so callers never branch on telemetry availability.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
package influxdb
