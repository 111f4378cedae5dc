// Package metrics exposes Prometheus metrics for RemoteLink Core.
//
// Collectors are package-level and registered once by Init; the Observe*
// helpers are no-ops until then, so components can call them
// unconditionally (and tests need not initialise metrics at all).
package metrics
