// Package events relays device registry changes to observers outside the
// core. Each change reaches the Prometheus lifecycle counter, WebSocket
// clients on the device.lifecycle channel, retained MQTT state on
// remotelink/core/device/{id}/state, InfluxDB lifecycle points and the
// SQLite lifecycle history, whichever of them are configured.
package events
