package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timeLayout has fixed-width fractions so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Repository defines the registry operations used by the daemon.
type Repository interface {
	// Register inserts or refreshes a configured device, keeping its
	// availability columns.
	Register(ctx context.Context, name, mac string) error

	// Get returns a device by name, or ErrDeviceNotFound.
	Get(ctx context.Context, name string) (*Device, error)

	// List returns all registered devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// RecordReading stamps the time of a successful reading.
	RecordReading(ctx context.Context, name string, at time.Time) error

	// RecordAvailability stores an online/offline transition.
	RecordAvailability(ctx context.Context, name string, online bool, at time.Time) error

	// History returns recent transitions for a device, newest first.
	History(ctx context.Context, name string, limit int) ([]AvailabilityEntry, error)

	// Prune deletes history rows older than the given age.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the sensor_devices and
// sensor_availability_log tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a registry backed by an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Register inserts the device, or updates its MAC if it is already known.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - name: Configured device name
//   - mac: Bluetooth address in any form net.ParseMAC accepts
//
// Returns:
//   - error: ErrInvalidDevice for a bad name or MAC, otherwise the database error
func (r *SQLiteRepository) Register(ctx context.Context, name, mac string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	canonical, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}

	now := formatTime(time.Now())
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sensor_devices (name, mac, online, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET mac = excluded.mac, updated_at = excluded.updated_at`,
		name, canonical, now, now,
	)
	if err != nil {
		return fmt.Errorf("registering device %s: %w", name, err)
	}
	return nil
}

// Get retrieves a device by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, mac, online, last_reading_at, last_change_at, created_at, updated_at
		FROM sensor_devices WHERE name = ?`, name)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device %s: %w", name, err)
	}
	return d, nil
}

// List returns every registered device.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, mac, online, last_reading_at, last_change_at, created_at, updated_at
		FROM sensor_devices ORDER BY name`)
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

// RecordReading updates last_reading_at for a device.
func (r *SQLiteRepository) RecordReading(ctx context.Context, name string, at time.Time) error {
	ts := formatTime(at)
	result, err := r.db.ExecContext(ctx,
		"UPDATE sensor_devices SET last_reading_at = ?, updated_at = ? WHERE name = ?",
		ts, ts, name,
	)
	if err != nil {
		return fmt.Errorf("recording reading for %s: %w", name, err)
	}
	return requireRow(result)
}

// RecordAvailability updates the device row and appends a history entry in
// a single transaction.
func (r *SQLiteRepository) RecordAvailability(ctx context.Context, name string, online bool, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	ts := formatTime(at)
	result, err := tx.ExecContext(ctx,
		"UPDATE sensor_devices SET online = ?, last_change_at = ?, updated_at = ? WHERE name = ?",
		boolToInt(online), ts, ts, name,
	)
	if err != nil {
		return fmt.Errorf("updating availability for %s: %w", name, err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sensor_availability_log (device, online, changed_at) VALUES (?, ?, ?)",
		name, boolToInt(online), ts,
	); err != nil {
		return fmt.Errorf("inserting availability log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing availability: %w", err)
	}
	return nil
}

// History returns recent transitions for a device (default 50, max 200).
func (r *SQLiteRepository) History(ctx context.Context, name string, limit int) ([]AvailabilityEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device, online, changed_at
		FROM sensor_availability_log
		WHERE device = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying availability log: %w", err)
	}
	defer rows.Close()

	entries := make([]AvailabilityEntry, 0, limit)
	for rows.Next() {
		var e AvailabilityEntry
		var online int
		var changedAt string
		if err := rows.Scan(&e.ID, &e.Device, &online, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning availability log: %w", err)
		}
		e.Online = online != 0
		if e.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating availability log: %w", err)
	}
	return entries, nil
}

// Prune deletes availability history older than olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sensor_availability_log WHERE changed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting availability log: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var online int
	var lastReading, lastChange sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&d.Name, &d.MAC, &online, &lastReading, &lastChange, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Online = online != 0

	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if d.LastReadingAt, err = parseNullTime(lastReading); err != nil {
		return nil, err
	}
	if d.LastChangeAt, err = parseNullTime(lastChange); err != nil {
		return nil, err
	}
	return &d, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
