/*
store.go - Persistence interfaces for catalog, ledger, and requests

PURPOSE:
  Defines the interface between the domain logic and the database. Different
  implementations can use SQLite or in-memory storage; the engine only ever
  talks to these interfaces.

KEY INTERFACES:
  Store:        Catalog records + assignment ledger (append-and-close only)
  TxStore:      Store with a single transaction boundary (WithTx)
  RequestStore: Request gate persistence

APPEND-AND-CLOSE CONTRACT:
  Assignment rows are written once (Append*) and transitioned to a terminal
  status exactly once (Close*). There is no general update and no delete;
  history is the audit trail.

ATOMIC SEAT ACCOUNTING:
  ClaimSeat is the single atomic check-and-decrement for a pool. A
  read-then-write race that lets two callers both observe one free seat and
  both decrement is the defining bug this contract exists to prevent.
  Implementations back it with a conditional UPDATE (SQLite) or a mutex
  (memory).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:   Production SQLite
  - allocation/store/memory.go: In-memory for testing and dev

SEE ALSO:
  - engine.go: Composes these operations inside WithTx
  - ledger.go: Higher-level ledger view over Store
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Catalog and ledger persistence
// =============================================================================

type Store interface {
	// --- Devices (catalog) ---

	// SaveDevice inserts or updates a device record.
	SaveDevice(ctx context.Context, d Device) error

	// GetDevice returns a device or ErrDeviceNotFound.
	GetDevice(ctx context.Context, id DeviceID) (Device, error)

	// FindDeviceBySerial reports whether a device with the serial exists.
	FindDeviceBySerial(ctx context.Context, serial string) (Device, bool, error)

	// ListDevices returns all devices.
	ListDevices(ctx context.Context) ([]Device, error)

	// --- License pools (catalog) ---

	// SavePool inserts or updates a pool record.
	SavePool(ctx context.Context, p LicensePool) error

	// GetPool returns a pool or ErrPoolNotFound.
	GetPool(ctx context.Context, id PoolID) (LicensePool, error)

	// ListPools returns all pools.
	ListPools(ctx context.Context) ([]LicensePool, error)

	// GrowPool atomically adds delta seats to both total and available.
	GrowPool(ctx context.Context, id PoolID, delta int) (LicensePool, error)

	// ClaimSeat atomically decrements available iff available > 0.
	// Returns ErrCapacityExhausted when no seat is free at the decrement.
	ClaimSeat(ctx context.Context, id PoolID) error

	// ReleaseSeat increments available, clamped so it never exceeds total.
	ReleaseSeat(ctx context.Context, id PoolID) error

	// --- Device assignments (ledger) ---

	// AppendDeviceAssignment writes a new ACTIVE entry. Fails with ErrConflict
	// if an ACTIVE entry already exists for the same device.
	AppendDeviceAssignment(ctx context.Context, a DeviceAssignment) error

	// GetDeviceAssignment returns an entry or ErrAssignmentNotFound.
	GetDeviceAssignment(ctx context.Context, id AssignmentID) (DeviceAssignment, error)

	// CloseDeviceAssignment sets a terminal status. Fails with
	// ErrInvalidTransition if the entry is already terminal.
	CloseDeviceAssignment(ctx context.Context, id AssignmentID, status AssignmentStatus, closedAt time.Time) error

	// ActiveDeviceAssignment returns the single ACTIVE entry for a device, if any.
	ActiveDeviceAssignment(ctx context.Context, id DeviceID) (DeviceAssignment, bool, error)

	// ListDeviceAssignmentsForHolder returns all entries for a holder,
	// newest first.
	ListDeviceAssignmentsForHolder(ctx context.Context, holder EmployeeID) ([]DeviceAssignment, error)

	// FindDeviceAssignmentByKey looks up an entry by idempotency key.
	FindDeviceAssignmentByKey(ctx context.Context, key string) (DeviceAssignment, bool, error)

	// --- License assignments (ledger) ---

	AppendLicenseAssignment(ctx context.Context, a LicenseAssignment) error
	GetLicenseAssignment(ctx context.Context, id AssignmentID) (LicenseAssignment, error)
	CloseLicenseAssignment(ctx context.Context, id AssignmentID, status AssignmentStatus, closedAt time.Time) error

	// ListActiveLicenseAssignments returns ACTIVE entries for a pool.
	ListActiveLicenseAssignments(ctx context.Context, id PoolID) ([]LicenseAssignment, error)

	// ListExpiredActiveLicenseAssignments returns ACTIVE entries whose pool
	// expiry is at or before asOf. Feeds the expiry sweep; closed entries are
	// excluded by construction, which is what makes the sweep idempotent.
	ListExpiredActiveLicenseAssignments(ctx context.Context, asOf time.Time) ([]LicenseAssignment, error)

	ListLicenseAssignmentsForHolder(ctx context.Context, holder EmployeeID) ([]LicenseAssignment, error)
	FindLicenseAssignmentByKey(ctx context.Context, key string) (LicenseAssignment, bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Single transaction boundary for engine operations
// =============================================================================

// TxStore wraps Store with transaction support. An engine operation commits
// its catalog mutation and ledger write together or not at all.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// REQUEST STORE - Request gate persistence
// =============================================================================

type RequestStore interface {
	SaveResourceRequest(ctx context.Context, r ResourceRequest) error
	GetResourceRequest(ctx context.Context, id RequestID) (ResourceRequest, error)
	ListResourceRequestsByStatus(ctx context.Context, status RequestStatus) ([]ResourceRequest, error)

	SaveReturnRequest(ctx context.Context, r ReturnRequest) error
	GetReturnRequest(ctx context.Context, id RequestID) (ReturnRequest, error)
	ListReturnRequestsByStatus(ctx context.Context, status RequestStatus) ([]ReturnRequest, error)
}
