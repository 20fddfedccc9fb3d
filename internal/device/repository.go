package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device and metric persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByKey retrieves a device (with its metrics) by device key.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByKey(ctx context.Context, key string) (*Device, error)

	// List retrieves all devices with their metrics.
	List(ctx context.Context) ([]Device, error)

	// EnsureDevice inserts the device if absent, otherwise refreshes
	// last_seen and reactivates it. Returns the stored device with metrics.
	EnsureDevice(ctx context.Context, key string, seenAt time.Time) (*Device, error)

	// UpdateDeviceInfo updates the mutable descriptive fields.
	UpdateDeviceInfo(ctx context.Context, key, name, description string, metadata map[string]any) error

	// CreateMetric inserts a new metric row and fills in its ID.
	CreateMetric(ctx context.Context, m *Metric) error

	// UpdateMetricInfo updates display_name and unit of an existing metric.
	UpdateMetricInfo(ctx context.Context, id int64, displayName, unit string) error

	// SetMetricMode updates an actuator's control mode.
	SetMetricMode(ctx context.Context, id int64, mode ControlMode) error

	// InsertReading appends one reading row.
	InsertReading(ctx context.Context, metricID int64, timestamp time.Time, value string) error

	// LatestPerMetric returns the most recent reading of every metric,
	// joined with device and metric keys. Used to warm the value cache.
	LatestPerMetric(ctx context.Context) ([]LatestReading, error)

	// MarkInactiveBefore deactivates devices whose last_seen is older than
	// cutoff and returns their keys.
	MarkInactiveBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteReadingsBefore removes readings older than cutoff and returns
	// the number of rows deleted. Used by retention.
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByKey retrieves a device by its key, including all its metrics.
func (r *SQLiteRepository) GetByKey(ctx context.Context, key string) (*Device, error) {
	query := `
		SELECT id, device_key, name, description, device_type, metadata,
			is_active, last_seen, created_at
		FROM devices
		WHERE device_key = ?`

	row := r.db.QueryRowContext(ctx, query, key)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by key: %w", err)
	}

	if err := r.loadMetrics(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// List retrieves all devices with their metrics.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, device_key, name, description, device_type, metadata,
			is_active, last_seen, created_at
		FROM devices
		ORDER BY device_key`

	rows, err := r.db.QueryContext(ctx, query)
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

	for i := range devices {
		if err := r.loadMetrics(ctx, &devices[i]); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

// EnsureDevice inserts or refreshes a device and returns the stored row.
func (r *SQLiteRepository) EnsureDevice(ctx context.Context, key string, seenAt time.Time) (*Device, error) {
	if key == "" {
		return nil, ErrEmptyDeviceKey
	}

	seen := seenAt.UTC().Format(time.RFC3339)
	query := `
		INSERT INTO devices (device_key, name, device_type, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_key) DO UPDATE SET
			last_seen = excluded.last_seen,
			is_active = 1`

	_, err := r.db.ExecContext(ctx, query, key, key, DefaultDeviceType, seen, seen)
	if err != nil {
		return nil, fmt.Errorf("upserting device %q: %w", key, err)
	}

	return r.GetByKey(ctx, key)
}

// UpdateDeviceInfo updates the mutable descriptive fields of a device.
func (r *SQLiteRepository) UpdateDeviceInfo(ctx context.Context, key, name, description string, metadata map[string]any) error {
	metaJSON := []byte("{}")
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, description = ?, metadata = ?
		WHERE device_key = ?`,
		name, description, string(metaJSON), key,
	)
	if err != nil {
		return fmt.Errorf("updating device %q: %w", key, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 { //nolint:errcheck // sqlite driver supports RowsAffected
		return ErrDeviceNotFound
	}
	return nil
}

// CreateMetric inserts a new metric row and fills in its ID.
func (r *SQLiteRepository) CreateMetric(ctx context.Context, m *Metric) error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMetricType, m.Type)
	}
	if m.Mode == "" {
		m.Mode = ModeManual
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO metrics (device_id, metric_key, display_name, unit, metric_type, control_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.DeviceID, m.Key, m.DisplayName, m.Unit, string(m.Type), string(m.Mode),
		m.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting metric %q: %w", m.Key, err)
	}

	m.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading metric id: %w", err)
	}
	return nil
}

// UpdateMetricInfo updates display_name and unit of an existing metric.
func (r *SQLiteRepository) UpdateMetricInfo(ctx context.Context, id int64, displayName, unit string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE metrics SET display_name = ?, unit = ? WHERE id = ?",
		displayName, unit, id,
	)
	if err != nil {
		return fmt.Errorf("updating metric %d: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 { //nolint:errcheck // sqlite driver supports RowsAffected
		return ErrMetricNotFound
	}
	return nil
}

// SetMetricMode updates an actuator's control mode.
func (r *SQLiteRepository) SetMetricMode(ctx context.Context, id int64, mode ControlMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidControlMode, mode)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE metrics SET control_mode = ? WHERE id = ?",
		string(mode), id,
	)
	if err != nil {
		return fmt.Errorf("updating metric mode %d: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 { //nolint:errcheck // sqlite driver supports RowsAffected
		return ErrMetricNotFound
	}
	return nil
}

// InsertReading appends one reading row.
func (r *SQLiteRepository) InsertReading(ctx context.Context, metricID int64, timestamp time.Time, value string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO readings (metric_id, timestamp, value) VALUES (?, ?, ?)",
		metricID, timestamp.UTC().Format(time.RFC3339), value,
	)
	if err != nil {
		return fmt.Errorf("inserting reading for metric %d: %w", metricID, err)
	}
	return nil
}

// LatestPerMetric returns the most recent reading of every metric.
func (r *SQLiteRepository) LatestPerMetric(ctx context.Context) ([]LatestReading, error) {
	// MAX(timestamp) per metric; RFC3339 strings sort chronologically.
	query := `
		SELECT d.device_key, m.metric_key, r.timestamp, r.value
		FROM readings r
		JOIN metrics m ON m.id = r.metric_id
		JOIN devices d ON d.id = m.device_id
		WHERE r.id IN (
			SELECT id FROM readings r2
			WHERE r2.metric_id = r.metric_id
			ORDER BY r2.timestamp DESC, r2.id DESC LIMIT 1
		)`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying latest readings: %w", err)
	}
	defer rows.Close()

	var latest []LatestReading
	for rows.Next() {
		var lr LatestReading
		var ts string
		if err := rows.Scan(&lr.DeviceKey, &lr.MetricKey, &ts, &lr.Value); err != nil {
			return nil, fmt.Errorf("scanning latest reading: %w", err)
		}
		lr.Timestamp, _ = time.Parse(time.RFC3339, ts) //nolint:errcheck // Format is controlled
		latest = append(latest, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating latest readings: %w", err)
	}
	return latest, nil
}

// MarkInactiveBefore deactivates devices not seen since cutoff.
func (r *SQLiteRepository) MarkInactiveBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		"SELECT device_key FROM devices WHERE is_active = 1 AND last_seen < ?",
		cutoffStr,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stale devices: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning stale device: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale devices: %w", err)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE devices SET is_active = 0 WHERE is_active = 1 AND last_seen < ?",
		cutoffStr,
	)
	if err != nil {
		return nil, fmt.Errorf("deactivating devices: %w", err)
	}
	return keys, nil
}

// DeleteReadingsBefore removes readings older than cutoff.
func (r *SQLiteRepository) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM readings WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old readings: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading delete count: %w", err)
	}
	return deleted, nil
}

// loadMetrics fills d.Metrics from the metrics table.
func (r *SQLiteRepository) loadMetrics(ctx context.Context, d *Device) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, metric_key, display_name, unit, metric_type, control_mode, created_at
		FROM metrics
		WHERE device_id = ?`,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("querying metrics for device %q: %w", d.Key, err)
	}
	defer rows.Close()

	d.Metrics = make(map[string]*Metric)
	for rows.Next() {
		var m Metric
		var metricType, mode, createdAt string
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.Key, &m.DisplayName, &m.Unit,
			&metricType, &mode, &createdAt); err != nil {
			return fmt.Errorf("scanning metric: %w", err)
		}
		m.Type = MetricType(metricType)
		m.Mode = ControlMode(mode)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
		d.Metrics[m.Key] = &m
	}
	return rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanDevice.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a device row (without metrics).
func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var metadata, lastSeen, createdAt string
	var isActive int

	err := row.Scan(&d.ID, &d.Key, &d.Name, &d.Description, &d.DeviceType,
		&metadata, &isActive, &lastSeen, &createdAt)
	if err != nil {
		return nil, err
	}

	d.IsActive = isActive != 0
	d.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)   //nolint:errcheck // Format is controlled
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &d.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}

	return &d, nil
}
