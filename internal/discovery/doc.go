// Package discovery finds televisions on the local network and records
// them in the device registry.
//
// An Engine fans a scan out to one or more Scanner sources:
//
//   - CatalogScanner reports a fixed configured catalog with simulated
//     latency. It is the default source and the reference data set.
//   - MQTTScanner collects announcements that device bridges publish on
//     remotelink/discovery/+ after a probe.
//
// Every sighting is upserted into the registry, offline ones included, so
// diagnostics can list them. Scan only returns devices that are online.
//
//	engine := discovery.NewEngine(registry,
//	    discovery.NewCatalogScanner(cfg.Discovery.Catalog, time.Second))
//	devices, err := engine.Scan(ctx, discovery.Options{Timeout: 5 * time.Second})
//
// A scan that hits its timeout, or is stopped with Stop, returns the
// partial result set without error.
package discovery
