/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements allocation.TxStore and allocation.RequestStore using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  devices:             Catalog of single-unit resources (unique serial)
  license_pools:       Catalog of pooled resources with seat counters
  device_assignments:  Append-and-close ledger of device episodes
  license_assignments: Append-and-close ledger of seat episodes
  resource_requests:   Request gate workflow
  return_requests:     Return workflow

CAPACITY ENFORCEMENT:
  The seat claim is a conditional UPDATE:

    UPDATE license_pools SET available_seats = available_seats - 1
    WHERE id = ? AND available_seats > 0

  RowsAffected == 0 means no seat was free at the decrement, no matter
  what an earlier read said. The release is clamped with MIN(available+1,
  total) so a stray double release cannot overflow the pool.

LEDGER ENFORCEMENT:
  - Partial unique index on device_assignments(device_id) WHERE
    status = 'active': the database itself refuses a second ACTIVE entry.
  - Closes are conditional UPDATEs guarded by status = 'active'; terminal
    rows are never rewritten.
  - No DELETE statements exist for assignment tables.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.
  A sync.RWMutex serializes writers; readers use the read side.

USAGE:
  store, err := sqlite.New("./data/assets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := allocation.NewEngine(store, notifier)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - allocation/store.go: Interface definitions
  - allocation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/asset-engine/allocation"
)

// Store implements allocation.TxStore and allocation.RequestStore.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Devices (catalog)
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		manufacturer TEXT,
		model TEXT NOT NULL,
		serial TEXT NOT NULL UNIQUE,
		purchase_date TEXT,
		warranty_expiry TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);

	-- License pools (catalog)
	CREATE TABLE IF NOT EXISTS license_pools (
		id TEXT PRIMARY KEY,
		software TEXT NOT NULL,
		license_type TEXT,
		total_seats INTEGER NOT NULL CHECK (total_seats >= 1),
		available_seats INTEGER NOT NULL CHECK (available_seats >= 0 AND available_seats <= total_seats),
		pricing TEXT,
		unit_price TEXT NOT NULL DEFAULT '0',
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pools_expires_at ON license_pools(expires_at);

	-- Device assignments (ledger: append and close only)
	CREATE TABLE IF NOT EXISTS device_assignments (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL REFERENCES devices(id),
		holder_id TEXT NOT NULL,
		assigned_at TEXT NOT NULL,
		planned_return TEXT,
		purpose TEXT,
		status TEXT NOT NULL,
		closed_at TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the database refuses a second ACTIVE entry per device.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_device_assignments_one_active
		ON device_assignments(device_id) WHERE status = 'active';

	CREATE INDEX IF NOT EXISTS idx_device_assignments_holder
		ON device_assignments(holder_id);

	-- License assignments (ledger: append and close only)
	CREATE TABLE IF NOT EXISTS license_assignments (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL REFERENCES license_pools(id),
		holder_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		purpose TEXT,
		status TEXT NOT NULL,
		closed_at TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_license_assignments_pool_status
		ON license_assignments(pool_id, status);
	CREATE INDEX IF NOT EXISTS idx_license_assignments_holder
		ON license_assignments(holder_id);

	-- Resource requests (gate)
	CREATE TABLE IF NOT EXISTS resource_requests (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		holder_id TEXT NOT NULL,
		category TEXT,
		pool_id TEXT,
		justification TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		assignment_id TEXT,
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resource_requests_status
		ON resource_requests(status);

	-- Return requests (gate)
	CREATE TABLE IF NOT EXISTS return_requests (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		holder_id TEXT NOT NULL,
		assignment_id TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_return_requests_status
		ON return_requests(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same helpers serve
// direct calls and calls inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// timeLayout is fixed-width (fractional seconds always 9 digits) so that
// lexicographic comparison in SQL matches chronological order. RFC3339Nano
// trims trailing zeros, which breaks string ordering within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// =============================================================================
// DEVICES
// =============================================================================

func (s *Store) SaveDevice(ctx context.Context, d allocation.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveDevice(ctx, s.db, d)
}

func saveDevice(ctx context.Context, db dbtx, d allocation.Device) error {
	query := `
		INSERT INTO devices
		(id, category, manufacturer, model, serial, purchase_date, warranty_expiry, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			serial = excluded.serial,
			purchase_date = excluded.purchase_date,
			warranty_expiry = excluded.warranty_expiry,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		d.ID, d.Category, d.Manufacturer, d.Model, d.Serial,
		fmtTime(d.PurchaseDate), fmtTime(d.WarrantyExpiry), d.Status,
		fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &allocation.ValidationError{Field: "serial", Message: fmt.Sprintf("serial %q already registered", d.Serial)}
		}
		return fmt.Errorf("failed to save device: %w", err)
	}
	return nil
}

const deviceColumns = `id, category, manufacturer, model, serial, purchase_date, warranty_expiry, status, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (allocation.Device, error) {
	var (
		d                    allocation.Device
		manufacturer         sql.NullString
		purchase, warranty   string
		createdAt, updatedAt string
	)
	err := row.Scan(&d.ID, &d.Category, &manufacturer, &d.Model, &d.Serial,
		&purchase, &warranty, &d.Status, &createdAt, &updatedAt)
	if err != nil {
		return d, err
	}
	d.Manufacturer = manufacturer.String
	d.PurchaseDate = parseTime(purchase)
	d.WarrantyExpiry = parseTime(warranty)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return d, nil
}

func (s *Store) GetDevice(ctx context.Context, id allocation.DeviceID) (allocation.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDevice(ctx, s.db, id)
}

func getDevice(ctx context.Context, db dbtx, id allocation.DeviceID) (allocation.Device, error) {
	row := db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return allocation.Device{}, allocation.ErrDeviceNotFound
	}
	if err != nil {
		return allocation.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

func (s *Store) FindDeviceBySerial(ctx context.Context, serial string) (allocation.Device, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findDeviceBySerial(ctx, s.db, serial)
}

func findDeviceBySerial(ctx context.Context, db dbtx, serial string) (allocation.Device, bool, error) {
	row := db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE serial = ?`, serial)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return allocation.Device{}, false, nil
	}
	if err != nil {
		return allocation.Device{}, false, fmt.Errorf("failed to find device by serial: %w", err)
	}
	return d, true, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]allocation.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDevices(ctx, s.db)
}

func listDevices(ctx context.Context, db dbtx) ([]allocation.Device, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []allocation.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// =============================================================================
// LICENSE POOLS
// =============================================================================

func (s *Store) SavePool(ctx context.Context, p allocation.LicensePool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePool(ctx, s.db, p)
}

func savePool(ctx context.Context, db dbtx, p allocation.LicensePool) error {
	query := `
		INSERT INTO license_pools
		(id, software, license_type, total_seats, available_seats, pricing, unit_price, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			software = excluded.software,
			license_type = excluded.license_type,
			total_seats = excluded.total_seats,
			available_seats = excluded.available_seats,
			pricing = excluded.pricing,
			unit_price = excluded.unit_price,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		p.ID, p.Software, p.LicenseType, p.TotalSeats, p.AvailableSeats,
		p.Pricing, p.UnitPrice.String(), fmtTime(p.ExpiresAt),
		fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save pool: %w", err)
	}
	return nil
}

const poolColumns = `id, software, license_type, total_seats, available_seats, pricing, unit_price, expires_at, created_at, updated_at`

func scanPool(row interface{ Scan(...any) error }) (allocation.LicensePool, error) {
	var (
		p                    allocation.LicensePool
		licenseType, pricing sql.NullString
		unitPrice            string
		expiresAt            string
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.Software, &licenseType, &p.TotalSeats, &p.AvailableSeats,
		&pricing, &unitPrice, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.LicenseType = licenseType.String
	p.Pricing = allocation.PricingModel(pricing.String)
	p.UnitPrice, _ = decimal.NewFromString(unitPrice)
	p.ExpiresAt = parseTime(expiresAt)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func (s *Store) GetPool(ctx context.Context, id allocation.PoolID) (allocation.LicensePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPool(ctx, s.db, id)
}

func getPool(ctx context.Context, db dbtx, id allocation.PoolID) (allocation.LicensePool, error) {
	row := db.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM license_pools WHERE id = ?`, id)
	p, err := scanPool(row)
	if err == sql.ErrNoRows {
		return allocation.LicensePool{}, allocation.ErrPoolNotFound
	}
	if err != nil {
		return allocation.LicensePool{}, fmt.Errorf("failed to get pool: %w", err)
	}
	return p, nil
}

func (s *Store) ListPools(ctx context.Context) ([]allocation.LicensePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPools(ctx, s.db)
}

func listPools(ctx context.Context, db dbtx) ([]allocation.LicensePool, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+poolColumns+` FROM license_pools ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()

	var pools []allocation.LicensePool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func (s *Store) GrowPool(ctx context.Context, id allocation.PoolID, delta int) (allocation.LicensePool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return growPool(ctx, s.db, id, delta)
}

func growPool(ctx context.Context, db dbtx, id allocation.PoolID, delta int) (allocation.LicensePool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE license_pools
		SET total_seats = total_seats + ?, available_seats = available_seats + ?, updated_at = ?
		WHERE id = ?`,
		delta, delta, fmtTime(time.Now()), id,
	)
	if err != nil {
		return allocation.LicensePool{}, fmt.Errorf("failed to grow pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return allocation.LicensePool{}, allocation.ErrPoolNotFound
	}
	return getPool(ctx, db, id)
}

func (s *Store) ClaimSeat(ctx context.Context, id allocation.PoolID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return claimSeat(ctx, s.db, id)
}

// claimSeat is the atomic check-and-decrement. RowsAffected == 0 means no
// seat was free at the decrement, regardless of earlier reads.
func claimSeat(ctx context.Context, db dbtx, id allocation.PoolID) error {
	res, err := db.ExecContext(ctx, `
		UPDATE license_pools
		SET available_seats = available_seats - 1, updated_at = ?
		WHERE id = ? AND available_seats > 0`,
		fmtTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to claim seat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p, err := getPool(ctx, db, id)
		if err != nil {
			return err
		}
		return &allocation.CapacityExhaustedError{PoolID: id, TotalSeats: p.TotalSeats}
	}
	return nil
}

func (s *Store) ReleaseSeat(ctx context.Context, id allocation.PoolID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return releaseSeat(ctx, s.db, id)
}

func releaseSeat(ctx context.Context, db dbtx, id allocation.PoolID) error {
	res, err := db.ExecContext(ctx, `
		UPDATE license_pools
		SET available_seats = MIN(available_seats + 1, total_seats), updated_at = ?
		WHERE id = ?`,
		fmtTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return allocation.ErrPoolNotFound
	}
	return nil
}

// =============================================================================
// DEVICE ASSIGNMENTS
// =============================================================================

const deviceAsgColumns = `id, device_id, holder_id, assigned_at, planned_return, purpose, status, closed_at, idempotency_key, created_at`

func (s *Store) AppendDeviceAssignment(ctx context.Context, a allocation.DeviceAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendDeviceAssignment(ctx, s.db, a)
}

func appendDeviceAssignment(ctx context.Context, db dbtx, a allocation.DeviceAssignment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO device_assignments
		(`+deviceAsgColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.HolderID, fmtTime(a.AssignedAt), fmtTimePtr(a.PlannedReturn),
		a.Purpose, a.Status, fmtTimePtr(a.ClosedAt), nullString(a.IdempotencyKey), fmtTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if existing, found, ferr := activeDeviceAssignment(ctx, db, a.DeviceID); ferr == nil && found {
				return &allocation.ConflictError{DeviceID: a.DeviceID, ExistingID: existing.ID}
			}
			return allocation.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append device assignment: %w", err)
	}
	return nil
}

func scanDeviceAssignment(row interface{ Scan(...any) error }) (allocation.DeviceAssignment, error) {
	var (
		a                       allocation.DeviceAssignment
		assignedAt, createdAt   string
		plannedReturn, closedAt sql.NullString
		purpose, idemKey        sql.NullString
	)
	err := row.Scan(&a.ID, &a.DeviceID, &a.HolderID, &assignedAt, &plannedReturn,
		&purpose, &a.Status, &closedAt, &idemKey, &createdAt)
	if err != nil {
		return a, err
	}
	a.AssignedAt = parseTime(assignedAt)
	a.PlannedReturn = parseTimePtr(plannedReturn)
	a.Purpose = purpose.String
	a.ClosedAt = parseTimePtr(closedAt)
	a.IdempotencyKey = idemKey.String
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func (s *Store) GetDeviceAssignment(ctx context.Context, id allocation.AssignmentID) (allocation.DeviceAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDeviceAssignment(ctx, s.db, id)
}

func getDeviceAssignment(ctx context.Context, db dbtx, id allocation.AssignmentID) (allocation.DeviceAssignment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+deviceAsgColumns+` FROM device_assignments WHERE id = ?`, id)
	a, err := scanDeviceAssignment(row)
	if err == sql.ErrNoRows {
		return allocation.DeviceAssignment{}, allocation.ErrAssignmentNotFound
	}
	if err != nil {
		return allocation.DeviceAssignment{}, fmt.Errorf("failed to get device assignment: %w", err)
	}
	return a, nil
}

func (s *Store) CloseDeviceAssignment(ctx context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeDeviceAssignment(ctx, s.db, id, status, closedAt)
}

func closeDeviceAssignment(ctx context.Context, db dbtx, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE device_assignments SET status = ?, closed_at = ?
		WHERE id = ? AND status = 'active'`,
		status, fmtTime(closedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to close device assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		a, err := getDeviceAssignment(ctx, db, id)
		if err != nil {
			return err
		}
		return &allocation.InvalidTransitionError{
			Entity: "assignment", ID: string(id),
			From: string(a.Status), To: string(status),
		}
	}
	return nil
}

func (s *Store) ActiveDeviceAssignment(ctx context.Context, id allocation.DeviceID) (allocation.DeviceAssignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeDeviceAssignment(ctx, s.db, id)
}

func activeDeviceAssignment(ctx context.Context, db dbtx, id allocation.DeviceID) (allocation.DeviceAssignment, bool, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+deviceAsgColumns+` FROM device_assignments
		WHERE device_id = ? AND status = 'active'`, id)
	a, err := scanDeviceAssignment(row)
	if err == sql.ErrNoRows {
		return allocation.DeviceAssignment{}, false, nil
	}
	if err != nil {
		return allocation.DeviceAssignment{}, false, fmt.Errorf("failed to query active device assignment: %w", err)
	}
	return a, true, nil
}

func (s *Store) ListDeviceAssignmentsForHolder(ctx context.Context, holder allocation.EmployeeID) ([]allocation.DeviceAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDeviceAssignmentsForHolder(ctx, s.db, holder)
}

func listDeviceAssignmentsForHolder(ctx context.Context, db dbtx, holder allocation.EmployeeID) ([]allocation.DeviceAssignment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+deviceAsgColumns+` FROM device_assignments
		WHERE holder_id = ? ORDER BY created_at DESC`, holder)
	if err != nil {
		return nil, fmt.Errorf("failed to list device assignments: %w", err)
	}
	defer rows.Close()

	var out []allocation.DeviceAssignment
	for rows.Next() {
		a, err := scanDeviceAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) FindDeviceAssignmentByKey(ctx context.Context, key string) (allocation.DeviceAssignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findDeviceAssignmentByKey(ctx, s.db, key)
}

func findDeviceAssignmentByKey(ctx context.Context, db dbtx, key string) (allocation.DeviceAssignment, bool, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+deviceAsgColumns+` FROM device_assignments WHERE idempotency_key = ?`, key)
	a, err := scanDeviceAssignment(row)
	if err == sql.ErrNoRows {
		return allocation.DeviceAssignment{}, false, nil
	}
	if err != nil {
		return allocation.DeviceAssignment{}, false, fmt.Errorf("failed to find device assignment by key: %w", err)
	}
	return a, true, nil
}

// =============================================================================
// LICENSE ASSIGNMENTS
// =============================================================================

const licenseAsgColumns = `id, pool_id, holder_id, start_date, end_date, purpose, status, closed_at, idempotency_key, created_at`

const expiredActiveQuery = `
	SELECT a.id, a.pool_id, a.holder_id, a.start_date, a.end_date, a.purpose, a.status, a.closed_at, a.idempotency_key, a.created_at
	FROM license_assignments a
	JOIN license_pools p ON p.id = a.pool_id
	WHERE a.status = 'active' AND p.expires_at <= ?
	ORDER BY a.created_at ASC`

func (s *Store) AppendLicenseAssignment(ctx context.Context, a allocation.LicenseAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLicenseAssignment(ctx, s.db, a)
}

func appendLicenseAssignment(ctx context.Context, db dbtx, a allocation.LicenseAssignment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO license_assignments
		(`+licenseAsgColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PoolID, a.HolderID, fmtTime(a.StartDate), fmtTimePtr(a.EndDate),
		a.Purpose, a.Status, fmtTimePtr(a.ClosedAt), nullString(a.IdempotencyKey), fmtTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return allocation.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append license assignment: %w", err)
	}
	return nil
}

func scanLicenseAssignment(row interface{ Scan(...any) error }) (allocation.LicenseAssignment, error) {
	var (
		a                    allocation.LicenseAssignment
		startDate, createdAt string
		endDate, closedAt    sql.NullString
		purpose, idemKey     sql.NullString
	)
	err := row.Scan(&a.ID, &a.PoolID, &a.HolderID, &startDate, &endDate,
		&purpose, &a.Status, &closedAt, &idemKey, &createdAt)
	if err != nil {
		return a, err
	}
	a.StartDate = parseTime(startDate)
	a.EndDate = parseTimePtr(endDate)
	a.Purpose = purpose.String
	a.ClosedAt = parseTimePtr(closedAt)
	a.IdempotencyKey = idemKey.String
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func (s *Store) GetLicenseAssignment(ctx context.Context, id allocation.AssignmentID) (allocation.LicenseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLicenseAssignment(ctx, s.db, id)
}

func getLicenseAssignment(ctx context.Context, db dbtx, id allocation.AssignmentID) (allocation.LicenseAssignment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+licenseAsgColumns+` FROM license_assignments WHERE id = ?`, id)
	a, err := scanLicenseAssignment(row)
	if err == sql.ErrNoRows {
		return allocation.LicenseAssignment{}, allocation.ErrAssignmentNotFound
	}
	if err != nil {
		return allocation.LicenseAssignment{}, fmt.Errorf("failed to get license assignment: %w", err)
	}
	return a, nil
}

func (s *Store) CloseLicenseAssignment(ctx context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeLicenseAssignment(ctx, s.db, id, status, closedAt)
}

func closeLicenseAssignment(ctx context.Context, db dbtx, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE license_assignments SET status = ?, closed_at = ?
		WHERE id = ? AND status = 'active'`,
		status, fmtTime(closedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to close license assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		a, err := getLicenseAssignment(ctx, db, id)
		if err != nil {
			return err
		}
		return &allocation.InvalidTransitionError{
			Entity: "assignment", ID: string(id),
			From: string(a.Status), To: string(status),
		}
	}
	return nil
}

func (s *Store) ListActiveLicenseAssignments(ctx context.Context, id allocation.PoolID) ([]allocation.LicenseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveLicenseAssignments(ctx, s.db, id)
}

func listActiveLicenseAssignments(ctx context.Context, db dbtx, id allocation.PoolID) ([]allocation.LicenseAssignment, error) {
	return queryLicenseAssignments(ctx, db, `
		SELECT `+licenseAsgColumns+` FROM license_assignments
		WHERE pool_id = ? AND status = 'active' ORDER BY created_at ASC`, id)
}

func (s *Store) ListExpiredActiveLicenseAssignments(ctx context.Context, asOf time.Time) ([]allocation.LicenseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryLicenseAssignments(ctx, s.db, expiredActiveQuery, fmtTime(asOf))
}

func (s *Store) ListLicenseAssignmentsForHolder(ctx context.Context, holder allocation.EmployeeID) ([]allocation.LicenseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLicenseAssignmentsForHolder(ctx, s.db, holder)
}

func listLicenseAssignmentsForHolder(ctx context.Context, db dbtx, holder allocation.EmployeeID) ([]allocation.LicenseAssignment, error) {
	return queryLicenseAssignments(ctx, db, `
		SELECT `+licenseAsgColumns+` FROM license_assignments
		WHERE holder_id = ? ORDER BY created_at DESC`, holder)
}

func (s *Store) FindLicenseAssignmentByKey(ctx context.Context, key string) (allocation.LicenseAssignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findLicenseAssignmentByKey(ctx, s.db, key)
}

func findLicenseAssignmentByKey(ctx context.Context, db dbtx, key string) (allocation.LicenseAssignment, bool, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+licenseAsgColumns+` FROM license_assignments WHERE idempotency_key = ?`, key)
	a, err := scanLicenseAssignment(row)
	if err == sql.ErrNoRows {
		return allocation.LicenseAssignment{}, false, nil
	}
	if err != nil {
		return allocation.LicenseAssignment{}, false, fmt.Errorf("failed to find license assignment by key: %w", err)
	}
	return a, true, nil
}

func queryLicenseAssignments(ctx context.Context, db dbtx, query string, args ...any) ([]allocation.LicenseAssignment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query license assignments: %w", err)
	}
	defer rows.Close()

	var out []allocation.LicenseAssignment
	for rows.Next() {
		a, err := scanLicenseAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS (allocation.TxStore)
// =============================================================================

// WithTx executes fn within a single database transaction. The Store passed
// to fn routes every call through the open transaction; a returned error
// rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(allocation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveDevice(ctx context.Context, d allocation.Device) error {
	return saveDevice(ctx, ts.tx, d)
}

func (ts *txStore) GetDevice(ctx context.Context, id allocation.DeviceID) (allocation.Device, error) {
	return getDevice(ctx, ts.tx, id)
}

func (ts *txStore) FindDeviceBySerial(ctx context.Context, serial string) (allocation.Device, bool, error) {
	return findDeviceBySerial(ctx, ts.tx, serial)
}

func (ts *txStore) ListDevices(ctx context.Context) ([]allocation.Device, error) {
	return listDevices(ctx, ts.tx)
}

func (ts *txStore) SavePool(ctx context.Context, p allocation.LicensePool) error {
	return savePool(ctx, ts.tx, p)
}

func (ts *txStore) GetPool(ctx context.Context, id allocation.PoolID) (allocation.LicensePool, error) {
	return getPool(ctx, ts.tx, id)
}

func (ts *txStore) ListPools(ctx context.Context) ([]allocation.LicensePool, error) {
	return listPools(ctx, ts.tx)
}

func (ts *txStore) GrowPool(ctx context.Context, id allocation.PoolID, delta int) (allocation.LicensePool, error) {
	return growPool(ctx, ts.tx, id, delta)
}

func (ts *txStore) ClaimSeat(ctx context.Context, id allocation.PoolID) error {
	return claimSeat(ctx, ts.tx, id)
}

func (ts *txStore) ReleaseSeat(ctx context.Context, id allocation.PoolID) error {
	return releaseSeat(ctx, ts.tx, id)
}

func (ts *txStore) AppendDeviceAssignment(ctx context.Context, a allocation.DeviceAssignment) error {
	return appendDeviceAssignment(ctx, ts.tx, a)
}

func (ts *txStore) GetDeviceAssignment(ctx context.Context, id allocation.AssignmentID) (allocation.DeviceAssignment, error) {
	return getDeviceAssignment(ctx, ts.tx, id)
}

func (ts *txStore) CloseDeviceAssignment(ctx context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	return closeDeviceAssignment(ctx, ts.tx, id, status, closedAt)
}

func (ts *txStore) ActiveDeviceAssignment(ctx context.Context, id allocation.DeviceID) (allocation.DeviceAssignment, bool, error) {
	return activeDeviceAssignment(ctx, ts.tx, id)
}

func (ts *txStore) ListDeviceAssignmentsForHolder(ctx context.Context, holder allocation.EmployeeID) ([]allocation.DeviceAssignment, error) {
	return listDeviceAssignmentsForHolder(ctx, ts.tx, holder)
}

func (ts *txStore) FindDeviceAssignmentByKey(ctx context.Context, key string) (allocation.DeviceAssignment, bool, error) {
	return findDeviceAssignmentByKey(ctx, ts.tx, key)
}

func (ts *txStore) AppendLicenseAssignment(ctx context.Context, a allocation.LicenseAssignment) error {
	return appendLicenseAssignment(ctx, ts.tx, a)
}

func (ts *txStore) GetLicenseAssignment(ctx context.Context, id allocation.AssignmentID) (allocation.LicenseAssignment, error) {
	return getLicenseAssignment(ctx, ts.tx, id)
}

func (ts *txStore) CloseLicenseAssignment(ctx context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	return closeLicenseAssignment(ctx, ts.tx, id, status, closedAt)
}

func (ts *txStore) ListActiveLicenseAssignments(ctx context.Context, id allocation.PoolID) ([]allocation.LicenseAssignment, error) {
	return listActiveLicenseAssignments(ctx, ts.tx, id)
}

func (ts *txStore) ListExpiredActiveLicenseAssignments(ctx context.Context, asOf time.Time) ([]allocation.LicenseAssignment, error) {
	return queryLicenseAssignments(ctx, ts.tx, expiredActiveQuery, fmtTime(asOf))
}

func (ts *txStore) ListLicenseAssignmentsForHolder(ctx context.Context, holder allocation.EmployeeID) ([]allocation.LicenseAssignment, error) {
	return listLicenseAssignmentsForHolder(ctx, ts.tx, holder)
}

func (ts *txStore) FindLicenseAssignmentByKey(ctx context.Context, key string) (allocation.LicenseAssignment, bool, error) {
	return findLicenseAssignmentByKey(ctx, ts.tx, key)
}

// =============================================================================
// REQUESTS (allocation.RequestStore)
// =============================================================================

func (s *Store) SaveResourceRequest(ctx context.Context, r allocation.ResourceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO resource_requests
		(id, kind, holder_id, category, pool_id, justification, status, assignment_id,
		 decided_by, decided_at, rejection_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assignment_id = excluded.assignment_id,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at,
			rejection_reason = excluded.rejection_reason,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Kind, r.HolderID, nullString(string(r.Category)), nullString(string(r.PoolID)),
		r.Justification, r.Status, nullString(string(r.AssignmentID)),
		nullString(r.DecidedBy), fmtTimePtr(r.DecidedAt), nullString(r.RejectionReason),
		fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save resource request: %w", err)
	}
	return nil
}

const resourceReqColumns = `id, kind, holder_id, category, pool_id, justification, status, assignment_id, decided_by, decided_at, rejection_reason, created_at, updated_at`

func scanResourceRequest(row interface{ Scan(...any) error }) (allocation.ResourceRequest, error) {
	var (
		r                               allocation.ResourceRequest
		category, poolID, justification sql.NullString
		assignmentID, decidedBy         sql.NullString
		decidedAt, rejectionReason      sql.NullString
		createdAt, updatedAt            string
	)
	err := row.Scan(&r.ID, &r.Kind, &r.HolderID, &category, &poolID, &justification,
		&r.Status, &assignmentID, &decidedBy, &decidedAt, &rejectionReason, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.Category = allocation.DeviceCategory(category.String)
	r.PoolID = allocation.PoolID(poolID.String)
	r.Justification = justification.String
	r.AssignmentID = allocation.AssignmentID(assignmentID.String)
	r.DecidedBy = decidedBy.String
	r.DecidedAt = parseTimePtr(decidedAt)
	r.RejectionReason = rejectionReason.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func (s *Store) GetResourceRequest(ctx context.Context, id allocation.RequestID) (allocation.ResourceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+resourceReqColumns+` FROM resource_requests WHERE id = ?`, id)
	r, err := scanResourceRequest(row)
	if err == sql.ErrNoRows {
		return allocation.ResourceRequest{}, allocation.ErrRequestNotFound
	}
	if err != nil {
		return allocation.ResourceRequest{}, fmt.Errorf("failed to get resource request: %w", err)
	}
	return r, nil
}

func (s *Store) ListResourceRequestsByStatus(ctx context.Context, status allocation.RequestStatus) ([]allocation.ResourceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resourceReqColumns+` FROM resource_requests
		WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource requests: %w", err)
	}
	defer rows.Close()

	var out []allocation.ResourceRequest
	for rows.Next() {
		r, err := scanResourceRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveReturnRequest(ctx context.Context, r allocation.ReturnRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO return_requests
		(id, kind, holder_id, assignment_id, reason, status, decided_by, decided_at, rejection_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at,
			rejection_reason = excluded.rejection_reason,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Kind, r.HolderID, r.AssignmentID, r.Reason, r.Status,
		nullString(r.DecidedBy), fmtTimePtr(r.DecidedAt), nullString(r.RejectionReason),
		fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save return request: %w", err)
	}
	return nil
}

const returnReqColumns = `id, kind, holder_id, assignment_id, reason, status, decided_by, decided_at, rejection_reason, created_at, updated_at`

func scanReturnRequest(row interface{ Scan(...any) error }) (allocation.ReturnRequest, error) {
	var (
		r                          allocation.ReturnRequest
		reason, decidedBy          sql.NullString
		decidedAt, rejectionReason sql.NullString
		createdAt, updatedAt       string
	)
	err := row.Scan(&r.ID, &r.Kind, &r.HolderID, &r.AssignmentID, &reason,
		&r.Status, &decidedBy, &decidedAt, &rejectionReason, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.Reason = reason.String
	r.DecidedBy = decidedBy.String
	r.DecidedAt = parseTimePtr(decidedAt)
	r.RejectionReason = rejectionReason.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func (s *Store) GetReturnRequest(ctx context.Context, id allocation.RequestID) (allocation.ReturnRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+returnReqColumns+` FROM return_requests WHERE id = ?`, id)
	r, err := scanReturnRequest(row)
	if err == sql.ErrNoRows {
		return allocation.ReturnRequest{}, allocation.ErrRequestNotFound
	}
	if err != nil {
		return allocation.ReturnRequest{}, fmt.Errorf("failed to get return request: %w", err)
	}
	return r, nil
}

func (s *Store) ListReturnRequestsByStatus(ctx context.Context, status allocation.RequestStatus) ([]allocation.ReturnRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+returnReqColumns+` FROM return_requests
		WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list return requests: %w", err)
	}
	defer rows.Close()

	var out []allocation.ReturnRequest
	for rows.Next() {
		r, err := scanReturnRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
