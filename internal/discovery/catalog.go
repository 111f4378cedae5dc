package discovery

import (
	"context"
	"time"

	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
)

// CatalogScanner reports a fixed, configured set of televisions.
//
// It stands in for SSDP/mDNS on networks without bridges and in
// development. Entries are reported one by one, spread evenly across the
// configured latency, so a scan shorter than the latency sees a prefix of
// the catalog.
type CatalogScanner struct {
	entries []config.CatalogEntry
	latency time.Duration
}

// NewCatalogScanner creates a scanner over entries. A zero latency reports
// everything immediately.
func NewCatalogScanner(entries []config.CatalogEntry, latency time.Duration) *CatalogScanner {
	return &CatalogScanner{entries: entries, latency: latency}
}

// Name implements Scanner.
func (s *CatalogScanner) Name() string {
	return config.SourceCatalog
}

// Scan implements Scanner.
func (s *CatalogScanner) Scan(ctx context.Context, emit func(device.Device)) error {
	if len(s.entries) == 0 {
		return nil
	}
	step := s.latency / time.Duration(len(s.entries))

	for _, entry := range s.entries {
		if step > 0 {
			timer := time.NewTimer(step)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		emit(catalogDevice(entry))
	}
	return nil
}

func catalogDevice(e config.CatalogEntry) device.Device {
	reach := device.ReachabilityOffline
	if e.Online {
		reach = device.ReachabilityOnline
	}

	caps := make([]device.Capability, 0, len(e.Capabilities))
	for _, c := range e.Capabilities {
		caps = append(caps, device.Capability(c))
	}

	return device.Device{
		ID:           e.ID,
		Name:         e.Name,
		Model:        e.Model,
		Address:      e.Address,
		Reachability: reach,
		Capabilities: caps,
	}
}
