/*
engine.go - Transactional core: assign, return, revoke, sweep

PURPOSE:
  Every public operation here is a transaction: it either completes fully
  (catalog mutation + ledger write consistent) or has no observable effect.
  The engine is the only component allowed to move a device to/from ASSIGNED
  and the only component allowed to move seats in a pool.

CONCURRENCY MODEL:
  - Per-resource keyed mutexes serialize all mutations to one device or one
    pool. Operations on different resources never block each other.
  - The seat claim itself is an atomic check-and-decrement inside the store
    (conditional UPDATE / mutex), so even a store shared with other processes
    cannot double-allocate the last seat.
  - Two concurrent assigns on a pool with one free seat yield exactly one
    success and one CapacityExhaustedError. Never two successes, never zero.

IDEMPOTENCY:
  Assign operations accept an optional idempotency key. A retry with the same
  key returns the originally created assignment instead of allocating twice.

FAILURE POLICY:
  Business-rule violations come back as typed errors (errors.go); the engine
  never logs-and-swallows a capacity or transition violation. Persistence
  failures are propagated wrapped, with the transaction rolled back.

SEE ALSO:
  - ledger.go: Lifecycle guards shared by all transitions
  - monitor.go: Read-only expiry classification; delegates mutations here
*/
package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// PER-RESOURCE LOCKS
// =============================================================================

// resourceLocks hands out one mutex per resource id. Entries are never
// evicted; the map is bounded by the catalog size.
type resourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (r *resourceLocks) get(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks == nil {
		r.locks = make(map[string]*sync.Mutex)
	}
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store    TxStore
	Notifier Notifier
	Clock    func() time.Time

	locks resourceLocks
}

func NewEngine(store TxStore, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{Store: store, Notifier: notifier, Clock: time.Now}
}

// =============================================================================
// DEVICE OPERATIONS
// =============================================================================

// AssignDeviceInput carries the parameters for a device assignment.
type AssignDeviceInput struct {
	DeviceID      DeviceID
	HolderID      EmployeeID
	Purpose       string
	PlannedReturn *time.Time

	// IdempotencyKey makes retries safe: a second call with the same key
	// returns the assignment created by the first.
	IdempotencyKey string
}

// AssignDevice atomically claims an AVAILABLE device for a holder and writes
// the ACTIVE ledger entry. Fails with NotAvailableError when the device is in
// any other status, including when a concurrent caller claimed it first; the
// caller must retry against fresh state.
func (e *Engine) AssignDevice(ctx context.Context, in AssignDeviceInput) (DeviceAssignment, error) {
	if in.HolderID == "" {
		return DeviceAssignment{}, &ValidationError{Field: "holder_id", Message: "must not be empty"}
	}

	lock := e.locks.get(string(in.DeviceID))
	lock.Lock()
	defer lock.Unlock()

	now := e.Clock()
	var created DeviceAssignment
	var reused bool
	err := e.Store.WithTx(ctx, func(s Store) error {
		// The key check runs inside the lock so a concurrent retry with the
		// same key cannot slip past it and allocate a second time.
		if in.IdempotencyKey != "" {
			if prior, found, err := s.FindDeviceAssignmentByKey(ctx, in.IdempotencyKey); err != nil {
				return err
			} else if found {
				created, reused = prior, true
				return nil
			}
		}

		dev, err := s.GetDevice(ctx, in.DeviceID)
		if err != nil {
			return err
		}
		if dev.Status != DeviceAvailable {
			return &NotAvailableError{DeviceID: dev.ID, Status: dev.Status}
		}

		dev.Status = DeviceAssigned
		dev.UpdatedAt = now
		if err := s.SaveDevice(ctx, dev); err != nil {
			return fmt.Errorf("update device status: %w", err)
		}

		created = DeviceAssignment{
			ID:             AssignmentID(NewID("dasg")),
			DeviceID:       in.DeviceID,
			HolderID:       in.HolderID,
			AssignedAt:     now,
			PlannedReturn:  in.PlannedReturn,
			Purpose:        in.Purpose,
			Status:         AssignmentActive,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}
		return NewLedger(s).RecordDeviceAssignment(ctx, created)
	})
	if err != nil {
		return DeviceAssignment{}, err
	}
	if reused {
		return created, nil
	}

	e.Notifier.Notify(ctx, Event{
		Type:       EventDeviceAssigned,
		ResourceID: string(in.DeviceID),
		HolderID:   in.HolderID,
		At:         now,
	})
	return created, nil
}

// ReturnDevice closes an ACTIVE assignment as RETURNED and restores the
// device to AVAILABLE. A device moved to MAINTENANCE or DISPOSED out-of-band
// keeps that administrative status; return never overwrites it.
func (e *Engine) ReturnDevice(ctx context.Context, id AssignmentID, returnedAt time.Time) (DeviceAssignment, error) {
	asg, err := e.Store.GetDeviceAssignment(ctx, id)
	if err != nil {
		return DeviceAssignment{}, err
	}

	lock := e.locks.get(string(asg.DeviceID))
	lock.Lock()
	defer lock.Unlock()

	var closed DeviceAssignment
	err = e.Store.WithTx(ctx, func(s Store) error {
		var err error
		closed, err = NewLedger(s).CloseDeviceAssignment(ctx, id, AssignmentReturned, returnedAt)
		if err != nil {
			return err
		}

		dev, err := s.GetDevice(ctx, closed.DeviceID)
		if err != nil {
			return err
		}
		if dev.Status == DeviceAssigned {
			dev.Status = DeviceAvailable
			dev.UpdatedAt = returnedAt
			if err := s.SaveDevice(ctx, dev); err != nil {
				return fmt.Errorf("restore device status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return DeviceAssignment{}, err
	}

	e.Notifier.Notify(ctx, Event{
		Type:       EventDeviceReturned,
		ResourceID: string(closed.DeviceID),
		HolderID:   closed.HolderID,
		At:         returnedAt,
	})
	return closed, nil
}

// =============================================================================
// LICENSE OPERATIONS
// =============================================================================

// AssignLicenseInput carries the parameters for claiming a pool seat.
type AssignLicenseInput struct {
	PoolID    PoolID
	HolderID  EmployeeID
	Purpose   string
	StartDate time.Time
	EndDate   *time.Time

	IdempotencyKey string
}

// AssignLicense atomically claims one seat and writes the ACTIVE ledger
// entry. The check-and-decrement is a single atomic step with respect to all
// concurrent callers on the same pool; CapacityExhaustedError means no seat
// was free at that step, even if one was free at an earlier read.
func (e *Engine) AssignLicense(ctx context.Context, in AssignLicenseInput) (LicenseAssignment, error) {
	if in.HolderID == "" {
		return LicenseAssignment{}, &ValidationError{Field: "holder_id", Message: "must not be empty"}
	}
	if in.StartDate.IsZero() {
		return LicenseAssignment{}, &ValidationError{Field: "start_date", Message: "must be set"}
	}

	lock := e.locks.get(string(in.PoolID))
	lock.Lock()
	defer lock.Unlock()

	now := e.Clock()
	var created LicenseAssignment
	var reused bool
	err := e.Store.WithTx(ctx, func(s Store) error {
		// Key check inside the lock, same reasoning as AssignDevice.
		if in.IdempotencyKey != "" {
			if prior, found, err := s.FindLicenseAssignmentByKey(ctx, in.IdempotencyKey); err != nil {
				return err
			} else if found {
				created, reused = prior, true
				return nil
			}
		}

		pool, err := s.GetPool(ctx, in.PoolID)
		if err != nil {
			return err
		}
		if !in.StartDate.Before(pool.ExpiresAt) {
			return &ValidationError{Field: "start_date", Message: "must be before pool expiry"}
		}
		if in.EndDate != nil {
			if !in.StartDate.Before(*in.EndDate) {
				return &ValidationError{Field: "end_date", Message: "must be after start date"}
			}
			if in.EndDate.After(pool.ExpiresAt) {
				return &ValidationError{Field: "end_date", Message: "must not exceed pool expiry"}
			}
		}

		if err := s.ClaimSeat(ctx, in.PoolID); err != nil {
			return err
		}

		created = LicenseAssignment{
			ID:             AssignmentID(NewID("lasg")),
			PoolID:         in.PoolID,
			HolderID:       in.HolderID,
			StartDate:      in.StartDate,
			EndDate:        in.EndDate,
			Purpose:        in.Purpose,
			Status:         AssignmentActive,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}
		return NewLedger(s).RecordLicenseAssignment(ctx, created)
	})
	if err != nil {
		return LicenseAssignment{}, err
	}
	if reused {
		return created, nil
	}

	e.Notifier.Notify(ctx, Event{
		Type:       EventLicenseAssigned,
		ResourceID: string(in.PoolID),
		HolderID:   in.HolderID,
		At:         now,
	})
	return created, nil
}

// ReturnLicense closes an ACTIVE assignment as RETURNED or REVOKED and frees
// its seat. EXPIRED closes go through SweepExpired, never through here.
func (e *Engine) ReturnLicense(ctx context.Context, id AssignmentID, closedAt time.Time, reason AssignmentStatus) (LicenseAssignment, error) {
	if reason != AssignmentReturned && reason != AssignmentRevoked {
		return LicenseAssignment{}, &ValidationError{Field: "reason", Message: fmt.Sprintf("must be %s or %s", AssignmentReturned, AssignmentRevoked)}
	}
	closed, err := e.closeLicense(ctx, id, closedAt, reason)
	if err != nil {
		return LicenseAssignment{}, err
	}

	eventType := EventLicenseReturned
	if reason == AssignmentRevoked {
		eventType = EventLicenseRevoked
	}
	e.Notifier.Notify(ctx, Event{
		Type:       eventType,
		ResourceID: string(closed.PoolID),
		HolderID:   closed.HolderID,
		At:         closedAt,
	})
	return closed, nil
}

// closeLicense is the shared close-and-increment used by returns, revocations
// and the expiry sweep. Closing an already-terminal entry is rejected before
// the increment, so a double close can never push available past total; the
// store clamps at total regardless.
func (e *Engine) closeLicense(ctx context.Context, id AssignmentID, closedAt time.Time, reason AssignmentStatus) (LicenseAssignment, error) {
	asg, err := e.Store.GetLicenseAssignment(ctx, id)
	if err != nil {
		return LicenseAssignment{}, err
	}

	lock := e.locks.get(string(asg.PoolID))
	lock.Lock()
	defer lock.Unlock()

	var closed LicenseAssignment
	err = e.Store.WithTx(ctx, func(s Store) error {
		var err error
		closed, err = NewLedger(s).CloseLicenseAssignment(ctx, id, reason, closedAt)
		if err != nil {
			return err
		}
		if err := s.ReleaseSeat(ctx, closed.PoolID); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
		return nil
	})
	if err != nil {
		return LicenseAssignment{}, err
	}
	return closed, nil
}

// =============================================================================
// EXPIRY SWEEP
// =============================================================================

// SweepExpired closes every ACTIVE license assignment whose pool expiry has
// passed, freeing the seats. Idempotent: closed entries are excluded from the
// scan, so running twice on the same instant produces no additional effect.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]LicenseAssignment, error) {
	candidates, err := e.Store.ListExpiredActiveLicenseAssignments(ctx, now)
	if err != nil {
		return nil, err
	}

	var swept []LicenseAssignment
	for _, asg := range candidates {
		closed, err := e.closeLicense(ctx, asg.ID, now, AssignmentExpired)
		if err != nil {
			// A concurrent return or earlier sweep already closed this entry.
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return swept, err
		}
		swept = append(swept, closed)

		e.Notifier.Notify(ctx, Event{
			Type:       EventLicenseExpired,
			ResourceID: string(closed.PoolID),
			HolderID:   closed.HolderID,
			At:         now,
		})
	}
	return swept, nil
}
