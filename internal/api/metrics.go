package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the JSON system snapshot served at /api/v1/metrics.
// Prometheus counters are served separately at /metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          *BrokerMetrics   `json:"mqtt,omitempty"`
	NATS          *BrokerMetrics   `json:"nats,omitempty"`
	Devices       DeviceMetrics    `json:"devices"`
	Sessions      SessionMetrics   `json:"sessions"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// BrokerMetrics reports a message broker connection.
type BrokerMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total          int            `json:"total"`
	ByState        map[string]int `json:"by_state"`
	ByReachability map[string]int `json:"by_reachability"`
}

// SessionMetrics reports live connection and discovery activity.
type SessionMetrics struct {
	OpenConnections int  `json:"open_connections"`
	Scanning        bool `json:"scanning"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns a system snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Sessions: SessionMetrics{
			OpenConnections: s.supervisor.Handles(),
			Scanning:        s.discovery.Scanning(),
		},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		metrics.MQTT = &BrokerMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.nats != nil {
		metrics.NATS = &BrokerMetrics{Connected: s.nats.IsConnected()}
	}

	regStats := s.registry.GetStats()
	metrics.Devices = DeviceMetrics{
		Total:          regStats.TotalDevices,
		ByState:        make(map[string]int, len(regStats.ByState)),
		ByReachability: make(map[string]int, len(regStats.ByReachability)),
	}
	for state, count := range regStats.ByState {
		metrics.Devices.ByState[string(state)] = count
	}
	for reach, count := range regStats.ByReachability {
		metrics.Devices.ByReachability[string(reach)] = count
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
