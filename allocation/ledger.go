/*
ledger.go - Append-oriented record of allocation episodes

PURPOSE:
  The Ledger is the source of truth for "who holds what, since when."
  Every allocation episode is one entry: written once as ACTIVE, closed
  once to a terminal status, never edited or deleted afterwards.

CRITICAL INVARIANTS:
  1. At most one ACTIVE entry per device at any time
  2. Never more than TotalSeats ACTIVE entries per pool
  3. Terminal entries are immutable; corrections are new assignments

WHY APPEND-ONLY?
  - Audit trail: you can always explain who held a resource and when
  - Compliance: license audits require the full assignment history
  - Correctness: no risk of history rewrites corrupting capacity accounting

SEE ALSO:
  - store.go: Low-level persistence contract the ledger rides on
  - engine.go: The only writer that pairs ledger writes with catalog mutations
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// LEDGER - View over Store with transition guards
// =============================================================================

// Ledger wraps a Store with the assignment lifecycle guards. The engine
// constructs a Ledger over the transactional store inside WithTx so that a
// ledger write and its catalog mutation share one commit.
type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// RecordDeviceAssignment appends an ACTIVE entry for a device.
// Fails with a ConflictError if an ACTIVE entry already exists.
func (l *Ledger) RecordDeviceAssignment(ctx context.Context, a DeviceAssignment) error {
	existing, found, err := l.Store.ActiveDeviceAssignment(ctx, a.DeviceID)
	if err != nil {
		return err
	}
	if found {
		return &ConflictError{DeviceID: a.DeviceID, ExistingID: existing.ID}
	}
	a.Status = AssignmentActive
	return l.Store.AppendDeviceAssignment(ctx, a)
}

// RecordLicenseAssignment appends an ACTIVE entry for a pool seat.
// Seat capacity is enforced by the store's atomic claim, not here.
func (l *Ledger) RecordLicenseAssignment(ctx context.Context, a LicenseAssignment) error {
	a.Status = AssignmentActive
	return l.Store.AppendLicenseAssignment(ctx, a)
}

// CloseDeviceAssignment moves an entry to a terminal status exactly once.
func (l *Ledger) CloseDeviceAssignment(ctx context.Context, id AssignmentID, status AssignmentStatus, closedAt time.Time) (DeviceAssignment, error) {
	a, err := l.Store.GetDeviceAssignment(ctx, id)
	if err != nil {
		return DeviceAssignment{}, err
	}
	if a.Status.IsTerminal() {
		return DeviceAssignment{}, &InvalidTransitionError{
			Entity: "assignment",
			ID:     string(id),
			From:   string(a.Status),
			To:     string(status),
		}
	}
	if !status.IsTerminal() {
		return DeviceAssignment{}, &InvalidTransitionError{
			Entity: "assignment",
			ID:     string(id),
			From:   string(a.Status),
			To:     string(status),
		}
	}
	if err := l.Store.CloseDeviceAssignment(ctx, id, status, closedAt); err != nil {
		return DeviceAssignment{}, err
	}
	a.Status = status
	a.ClosedAt = &closedAt
	return a, nil
}

// CloseLicenseAssignment moves an entry to a terminal status exactly once.
func (l *Ledger) CloseLicenseAssignment(ctx context.Context, id AssignmentID, status AssignmentStatus, closedAt time.Time) (LicenseAssignment, error) {
	a, err := l.Store.GetLicenseAssignment(ctx, id)
	if err != nil {
		return LicenseAssignment{}, err
	}
	if a.Status.IsTerminal() {
		return LicenseAssignment{}, &InvalidTransitionError{
			Entity: "assignment",
			ID:     string(id),
			From:   string(a.Status),
			To:     string(status),
		}
	}
	if !status.IsTerminal() {
		return LicenseAssignment{}, &InvalidTransitionError{
			Entity: "assignment",
			ID:     string(id),
			From:   string(a.Status),
			To:     string(status),
		}
	}
	if err := l.Store.CloseLicenseAssignment(ctx, id, status, closedAt); err != nil {
		return LicenseAssignment{}, err
	}
	a.Status = status
	a.ClosedAt = &closedAt
	return a, nil
}

// =============================================================================
// READ QUERIES
// =============================================================================

// ActiveForDevice returns the ACTIVE entry for a device, if any.
func (l *Ledger) ActiveForDevice(ctx context.Context, id DeviceID) (DeviceAssignment, bool, error) {
	return l.Store.ActiveDeviceAssignment(ctx, id)
}

// ActiveForPool returns all ACTIVE entries for a pool.
func (l *Ledger) ActiveForPool(ctx context.Context, id PoolID) ([]LicenseAssignment, error) {
	return l.Store.ListActiveLicenseAssignments(ctx, id)
}

// ForHolder returns all entries, active and closed, held by an employee.
func (l *Ledger) ForHolder(ctx context.Context, holder EmployeeID) ([]DeviceAssignment, []LicenseAssignment, error) {
	devices, err := l.Store.ListDeviceAssignmentsForHolder(ctx, holder)
	if err != nil {
		return nil, nil, err
	}
	licenses, err := l.Store.ListLicenseAssignmentsForHolder(ctx, holder)
	if err != nil {
		return nil, nil, err
	}
	return devices, licenses, nil
}
