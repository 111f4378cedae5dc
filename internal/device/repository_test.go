package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/remotelink-core/internal/infrastructure/database"
	_ "github.com/nerrad567/remotelink-core/migrations" // registers the devices schema
)

// setupTestDB opens a migrated SQLite database in a temp dir.
func setupTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "registry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testDevice(id string) *Device {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Device{
		ID:           id,
		Name:         "Living Room TV",
		Model:        "Samsung Smart TV",
		Address:      "192.168.1.100",
		Reachability: ReachabilityOnline,
		Capabilities: []Capability{CapPower, CapVolume, CapChannel},
		State:        StateDiscovered,
		DiscoveredAt: now,
		LastSeenAt:   now,
	}
}

// repositories runs fn against every Repository implementation.
func repositories(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryRepository()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestDB(t)) })
}

func TestRepository_SaveAndGet(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		d := testDevice("1")

		if err := repo.Save(ctx, d); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := repo.Get(ctx, "1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Name != d.Name || got.Model != d.Model || got.Address != d.Address {
			t.Errorf("Get() = %+v, want %+v", got, d)
		}
		if got.State != StateDiscovered || got.Reachability != ReachabilityOnline {
			t.Errorf("state/reachability = %q/%q", got.State, got.Reachability)
		}
		if len(got.Capabilities) != 3 || got.Capabilities[2] != CapChannel {
			t.Errorf("Capabilities = %v", got.Capabilities)
		}
		if !got.DiscoveredAt.Equal(d.DiscoveredAt) {
			t.Errorf("DiscoveredAt = %v, want %v", got.DiscoveredAt, d.DiscoveredAt)
		}
		if got.PairedAt != nil || got.LastCommand != nil {
			t.Error("optional fields should round-trip as nil")
		}
	})
}

func TestRepository_SaveUpdatesExisting(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		d := testDevice("1")
		repo.Save(ctx, d) //nolint:errcheck // setup

		paired := d.DeepCopy()
		at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
		paired.State = StateConnected
		paired.PairedAt = &at
		paired.LastCommand = &LastCommand{Kind: CapPower, At: at.Add(time.Minute)}

		if err := repo.Save(ctx, paired); err != nil {
			t.Fatalf("Save() update error = %v", err)
		}

		got, err := repo.Get(ctx, "1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.State != StateConnected {
			t.Errorf("State = %q, want connected", got.State)
		}
		if got.PairedAt == nil || !got.PairedAt.Equal(at) {
			t.Errorf("PairedAt = %v, want %v", got.PairedAt, at)
		}
		if got.LastCommand == nil || got.LastCommand.Kind != CapPower {
			t.Errorf("LastCommand = %+v", got.LastCommand)
		}

		all, _ := repo.List(ctx)
		if len(all) != 1 {
			t.Errorf("List() len = %d, want 1 after upsert", len(all))
		}
	})
}

func TestRepository_GetNotFound(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		_, err := repo.Get(context.Background(), "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})
}

func TestRepository_ListOrdered(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		for _, id := range []string{"3", "1", "2"} {
			if err := repo.Save(ctx, testDevice(id)); err != nil {
				t.Fatalf("Save(%s) error = %v", id, err)
			}
		}

		all, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(all) != 3 || all[0].ID != "1" || all[1].ID != "2" || all[2].ID != "3" {
			t.Errorf("List() ids = %v, want [1 2 3]", all)
		}
	})
}

func TestRepository_Delete(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		repo.Save(ctx, testDevice("1")) //nolint:errcheck // setup

		if err := repo.Delete(ctx, "1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := repo.Get(ctx, "1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
		}
		if err := repo.Delete(ctx, "1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteRepository_RegistryRoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	reg := NewRegistry(repo)
	if _, err := reg.Upsert(ctx, sighting("1", ReachabilityOnline, CapPower)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := reg.Transition(ctx, "1", EventPair); err != nil {
		t.Fatalf("PAIR error = %v", err)
	}

	// A fresh registry over the same store sees the paired device.
	reloaded := NewRegistry(repo)
	if err := reloaded.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	d, err := reloaded.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.State != StatePaired || d.PairedAt == nil {
		t.Errorf("reloaded state = %q pairedAt = %v", d.State, d.PairedAt)
	}
}
