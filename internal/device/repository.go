package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCommandLimit caps ListCommands when no limit is given.
const DefaultCommandLimit = 50

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetDevice retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetDevice(ctx context.Context, id string) (*Device, error)

	// ListDevices retrieves all devices ordered by ID.
	ListDevices(ctx context.Context) ([]Device, error)

	// CreateDevice inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	CreateDevice(ctx context.Context, device *Device) error

	// UpdateDeviceStatus sets the status and stamps last_seen.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateDeviceStatus(ctx context.Context, id string, status Status) error

	// RecordCommand appends a command to the device's log.
	// Returns ErrDeviceNotFound if the device does not exist.
	RecordCommand(ctx context.Context, deviceID, command string, value int) (*CommandRecord, error)

	// ListCommands returns the newest commands first, at most limit entries.
	ListCommands(ctx context.Context, deviceID string, limit int) ([]CommandRecord, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const deviceColumns = `id, device_type, name, location, firmware_version, status, last_seen, created_at, updated_at`

// GetDevice retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// ListDevices retrieves all devices.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// CreateDevice inserts a new device. A missing status defaults to offline.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, device *Device) error {
	now := r.now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Status == "" {
		device.Status = StatusOffline
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		string(device.DeviceType),
		device.Name,
		nullableString(device.Location),
		nullableString(device.FirmwareVersion),
		string(device.Status),
		nullableTime(device.LastSeen),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintError(err, "UNIQUE") {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateDeviceStatus sets the status and last_seen timestamp.
func (r *SQLiteRepository) UpdateDeviceStatus(ctx context.Context, id string, status Status) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	now := r.now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`,
		string(status), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// RecordCommand appends a command to the device's log.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, deviceID, command string, value int) (*CommandRecord, error) {
	rec := &CommandRecord{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Command:  command,
		Value:    value,
		IssuedAt: r.now().UTC().Truncate(time.Second),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_commands (id, device_id, command, value, issued_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, rec.Command, rec.Value, rec.IssuedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintError(err, "FOREIGN KEY") {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("inserting command: %w", err)
	}
	return rec, nil
}

// ListCommands returns a device's commands, newest first.
func (r *SQLiteRepository) ListCommands(ctx context.Context, deviceID string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = DefaultCommandLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, command, value, issued_at
		FROM device_commands
		WHERE device_id = ?
		ORDER BY issued_at DESC, rowid DESC
		LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var rec CommandRecord
		var issuedAt string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Command, &rec.Value, &issuedAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		if rec.IssuedAt, err = time.Parse(time.RFC3339, issuedAt); err != nil {
			return nil, fmt.Errorf("parsing issued_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return records, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var location, firmware, lastSeen sql.NullString
	var deviceType, status, createdAt, updatedAt string

	if err := scanner.Scan(
		&d.ID,
		&deviceType,
		&d.Name,
		&location,
		&firmware,
		&status,
		&lastSeen,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	d.DeviceType = DeviceType(deviceType)
	d.Status = Status(status)
	if location.Valid {
		d.Location = &location.String
	}
	if firmware.Valid {
		d.FirmwareVersion = &firmware.String
	}
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isConstraintError checks if err is a SQLite constraint violation of the
// given kind ("UNIQUE", "FOREIGN KEY").
func isConstraintError(err error, kind string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), kind+" constraint failed")
}
