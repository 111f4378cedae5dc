package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (memory, SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// Get retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	Get(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by ID.
	List(ctx context.Context) ([]Device, error)

	// Save inserts or replaces a device record.
	Save(ctx context.Context, d *Device) error

	// Delete removes a device by ID.
	// Returns ErrNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// MemoryRepository keeps devices in process memory. It is the default
// backing store; state does not survive a restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]*Device)}
}

// Get retrieves a device by ID.
func (m *MemoryRepository) Get(_ context.Context, id string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.DeepCopy(), nil
}

// List retrieves all devices ordered by ID.
func (m *MemoryRepository) List(_ context.Context) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// Save inserts or replaces a device.
func (m *MemoryRepository) Save(_ context.Context, d *Device) error {
	m.mu.Lock()
	m.devices[d.ID] = d.DeepCopy()
	m.mu.Unlock()
	return nil
}

// Delete removes a device by ID.
func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[id]; !ok {
		return ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the devices
// table already migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT id, name, model, address, reachability, capabilities,
		lifecycle_state, paired_at, last_command_kind, last_command_at,
		discovered_at, last_seen_at
	FROM devices`

// Get retrieves a device by its unique identifier.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Save inserts or replaces a device using SQLite's upsert clause.
func (r *SQLiteRepository) Save(ctx context.Context, d *Device) error {
	capsJSON, err := json.Marshal(d.Capabilities)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}

	var lastKind, lastAt sql.NullString
	if d.LastCommand != nil {
		lastKind = sql.NullString{String: string(d.LastCommand.Kind), Valid: true}
		lastAt = nullableTime(&d.LastCommand.At)
	}

	query := `
		INSERT INTO devices (
			id, name, model, address, reachability, capabilities,
			lifecycle_state, paired_at, last_command_kind, last_command_at,
			discovered_at, last_seen_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			model = excluded.model,
			address = excluded.address,
			reachability = excluded.reachability,
			capabilities = excluded.capabilities,
			lifecycle_state = excluded.lifecycle_state,
			paired_at = excluded.paired_at,
			last_command_kind = excluded.last_command_kind,
			last_command_at = excluded.last_command_at,
			discovered_at = excluded.discovered_at,
			last_seen_at = excluded.last_seen_at`

	_, err = r.db.ExecContext(ctx, query,
		d.ID,
		d.Name,
		d.Model,
		d.Address,
		string(d.Reachability),
		string(capsJSON),
		string(d.State),
		nullableTime(d.PairedAt),
		lastKind,
		lastAt,
		formatTime(d.DiscoveredAt),
		formatTime(d.LastSeenAt),
	)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a database row into a Device.
func scanDevice(row scanner) (*Device, error) {
	var (
		d                  Device
		reachability       string
		capsJSON           string
		state              string
		pairedAt           sql.NullString
		lastKind, lastAt   sql.NullString
		discovered, seenAt string
	)

	err := row.Scan(
		&d.ID, &d.Name, &d.Model, &d.Address, &reachability, &capsJSON,
		&state, &pairedAt, &lastKind, &lastAt,
		&discovered, &seenAt,
	)
	if err != nil {
		return nil, err
	}

	d.Reachability = Reachability(reachability)
	d.State = LifecycleState(state)

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}

	if pairedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, pairedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing paired_at: %w", err)
		}
		d.PairedAt = &t
	}

	if lastKind.Valid && lastAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_command_at: %w", err)
		}
		d.LastCommand = &LastCommand{Kind: Capability(lastKind.String), At: t}
	}

	if d.DiscoveredAt, err = time.Parse(time.RFC3339Nano, discovered); err != nil {
		return nil, fmt.Errorf("parsing discovered_at: %w", err)
	}
	if d.LastSeenAt, err = time.Parse(time.RFC3339Nano, seenAt); err != nil {
		return nil, fmt.Errorf("parsing last_seen_at: %w", err)
	}

	return &d, nil
}

// nullableTime returns a sql.NullString for optional time pointers.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
