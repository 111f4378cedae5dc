package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/remotelink-core/internal/device"
)

const (
	metricPrefix = "remotelink_"

	resultOK = "ok"
)

var (
	registerOnce sync.Once

	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec

	pairingTotal *prometheus.CounterVec

	scanTotal   *prometheus.CounterVec
	scanLatency prometheus.Histogram
	scanFound   prometheus.Gauge

	connectionsOpen prometheus.Gauge
	lifecycleEvents *prometheus.CounterVec
)

// StatsSource reports registry counts for the device gauges.
type StatsSource interface {
	GetStats() device.Stats
}

// Init registers the core's metrics with the default Prometheus registry.
// Safe to call more than once; only the first call registers. A nil source
// skips the registry-backed gauges.
func Init(source StatsSource) {
	registerOnce.Do(func() {
		dispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dispatch_total",
				Help: "Total dispatched commands by kind and result",
			},
			[]string{"kind", "result"},
		)
		dispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dispatch_latency_seconds",
				Help:    "Command dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		pairingTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pairing_total",
				Help: "Total pairing attempts by method and result",
			},
			[]string{"method", "result"},
		)

		scanTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "discovery_scans_total",
				Help: "Total discovery scans by result",
			},
			[]string{"result"},
		)
		scanLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "discovery_scan_duration_seconds",
				Help:    "Discovery scan duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		scanFound = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "discovery_last_found",
				Help: "Online devices returned by the most recent scan",
			},
		)

		connectionsOpen = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "connections_open",
				Help: "Open connection handles held by the supervisor",
			},
		)
		lifecycleEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lifecycle_events_total",
				Help: "Committed registry lifecycle events by event",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			dispatchTotal,
			dispatchLatency,
			pairingTotal,
			scanTotal,
			scanLatency,
			scanFound,
			connectionsOpen,
			lifecycleEvents,
		)

		if source != nil {
			registerRegistryGauges(source)
		}
	})
}

// registerRegistryGauges exposes device counts per lifecycle state,
// read from the registry at scrape time.
func registerRegistryGauges(source StatsSource) {
	states := []device.LifecycleState{device.StateDiscovered, device.StatePaired, device.StateConnected}
	for _, st := range states {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "devices",
				Help:        "Known devices by lifecycle state",
				ConstLabels: prometheus.Labels{"state": string(st)},
			},
			func() float64 {
				return float64(source.GetStats().ByState[st])
			},
		))
	}
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "devices_online",
			Help: "Known devices whose last sighting was online",
		},
		func() float64 {
			return float64(source.GetStats().ByReachability[device.ReachabilityOnline])
		},
	))
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an error to a low-cardinality result label:
// "ok" for nil, the error kind for classified errors, "error" otherwise.
func Result(err error) string {
	if err == nil {
		return resultOK
	}
	switch kind := device.KindOf(err); {
	case errors.Is(kind, device.ErrValidation):
		return "validation"
	case errors.Is(kind, device.ErrNotFound):
		return "not_found"
	case errors.Is(kind, device.ErrConflict):
		return "conflict"
	case errors.Is(kind, device.ErrOffline):
		return "offline"
	case errors.Is(kind, device.ErrNotPaired):
		return "not_paired"
	case errors.Is(kind, device.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(kind, device.ErrTimeout):
		return "timeout"
	case errors.Is(kind, device.ErrUpstream):
		return "upstream"
	default:
		return "error"
	}
}

// ObserveDispatch records one dispatch attempt.
func ObserveDispatch(kind device.Capability, err error, duration time.Duration) {
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	if dispatchTotal != nil {
		dispatchTotal.WithLabelValues(k, Result(err)).Inc()
	}
	if dispatchLatency != nil && err == nil {
		dispatchLatency.WithLabelValues(k).Observe(duration.Seconds())
	}
}

// ObservePairing records one pairing attempt; method is "pin" or "qr".
func ObservePairing(method string, err error) {
	if method == "" {
		method = "unknown"
	}
	if pairingTotal != nil {
		pairingTotal.WithLabelValues(method, Result(err)).Inc()
	}
}

// ObserveScan records a finished discovery scan.
func ObserveScan(err error, found int, duration time.Duration) {
	if scanTotal != nil {
		scanTotal.WithLabelValues(Result(err)).Inc()
	}
	if scanLatency != nil {
		scanLatency.Observe(duration.Seconds())
	}
	if scanFound != nil && err == nil {
		scanFound.Set(float64(found))
	}
}

// SetConnectionsOpen sets the open connection handle gauge.
func SetConnectionsOpen(n int) {
	if connectionsOpen != nil {
		connectionsOpen.Set(float64(n))
	}
}

// IncLifecycleEvent counts a committed registry event.
func IncLifecycleEvent(ev device.Event) {
	if lifecycleEvents != nil {
		lifecycleEvents.WithLabelValues(string(ev)).Inc()
	}
}
