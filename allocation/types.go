/*
Package allocation provides the core asset and license allocation engine.

PURPOSE:
  This package contains the domain types and transactional logic for managing
  a finite pool of shared resources: single-unit devices assigned to exactly
  one holder, and license pools with seat-based capacity. It owns the one
  invariant the rest of the system depends on: capacity accounting never lies,
  even under concurrent callers.

KEY CONCEPTS IN THIS FILE (types.go):
  - Device: A single-unit resource (laptop, phone, ...) with a status lifecycle
  - LicensePool: A pooled resource with total/available seat counts
  - DeviceAssignment / LicenseAssignment: Ledger entries, one per allocation episode
  - Money: Seat pricing using decimal.Decimal to avoid floating-point errors

DESIGN PRINCIPLES:
  1. Append-only history: Assignments are closed, never deleted or reopened
  2. Monotonic transitions: Terminal statuses are terminal, no exceptions
  3. Type Safety: Strong typing for IDs prevents mixing device/pool/holder IDs
  4. Precision: Uses decimal.Decimal for unit prices and pool valuation

USAGE:
  pool := allocation.LicensePool{
      Software:   "DesignSuite",
      TotalSeats: 25,
      UnitPrice:  decimal.NewFromInt(120),
  }

SEE ALSO:
  - catalog.go: Registration and administrative device transitions
  - ledger.go: Append-oriented assignment history
  - engine.go: Transactional assign/return/revoke operations
*/
package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DeviceID string
type PoolID string
type AssignmentID string
type EmployeeID string
type RequestID string

// =============================================================================
// DEVICE - Single-unit resource
// =============================================================================

type DeviceCategory string

const (
	CategoryLaptop  DeviceCategory = "laptop"
	CategoryDesktop DeviceCategory = "desktop"
	CategoryTablet  DeviceCategory = "tablet"
	CategoryPhone   DeviceCategory = "phone"
)

type DeviceStatus string

const (
	DeviceAvailable   DeviceStatus = "available"
	DeviceAssigned    DeviceStatus = "assigned"
	DeviceMaintenance DeviceStatus = "maintenance"
	DeviceDisposed    DeviceStatus = "disposed" // terminal
)

// Device is a single-unit resource allocatable to exactly one holder at a time.
//
// INVARIANT: Status == DeviceAssigned iff exactly one ACTIVE DeviceAssignment
// references this device. The engine is the only writer that may flip the
// status to/from DeviceAssigned.
type Device struct {
	ID             DeviceID
	Category       DeviceCategory
	Manufacturer   string
	Model          string
	Serial         string // unique across the catalog
	PurchaseDate   time.Time
	WarrantyExpiry time.Time
	Status         DeviceStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// LICENSE POOL - Pooled resource with seat-based capacity
// =============================================================================

type PricingModel string

const (
	PricingPerSeat      PricingModel = "per_seat"
	PricingSubscription PricingModel = "subscription"
	PricingPerpetual    PricingModel = "perpetual"
)

// LicensePool is a pooled resource.
//
// INVARIANT: AvailableSeats = TotalSeats - count(ACTIVE LicenseAssignment
// referencing this pool), and 0 <= AvailableSeats <= TotalSeats. This must
// hold after every engine transaction, including under concurrent callers.
type LicensePool struct {
	ID             PoolID
	Software       string
	LicenseType    string
	TotalSeats     int
	AvailableSeats int
	Pricing        PricingModel
	UnitPrice      decimal.Decimal
	ExpiresAt      time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Value returns the total purchase value of the pool (unit price x seats).
func (p LicensePool) Value() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.TotalSeats)))
}

// AssignedSeats returns the number of seats currently held.
func (p LicensePool) AssignedSeats() int {
	return p.TotalSeats - p.AvailableSeats
}

// =============================================================================
// ASSIGNMENTS - Ledger entries, one per allocation episode
// =============================================================================

type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentReturned AssignmentStatus = "returned"
	AssignmentRevoked  AssignmentStatus = "revoked"
	AssignmentExpired  AssignmentStatus = "expired"
)

// IsTerminal reports whether the status is final. Once terminal, an entry is
// immutable; corrections are modeled as new assignments, not edits.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentReturned || s == AssignmentRevoked || s == AssignmentExpired
}

// DeviceAssignment records one allocation episode of a device to a holder.
// Devices close with AssignmentReturned only.
type DeviceAssignment struct {
	ID            AssignmentID
	DeviceID      DeviceID
	HolderID      EmployeeID
	AssignedAt    time.Time
	PlannedReturn *time.Time
	Purpose       string
	Status        AssignmentStatus
	ClosedAt      *time.Time

	IdempotencyKey string
	CreatedAt      time.Time
}

// LicenseAssignment records one seat held by a holder. Licenses close with
// AssignmentReturned, AssignmentRevoked, or AssignmentExpired.
type LicenseAssignment struct {
	ID        AssignmentID
	PoolID    PoolID
	HolderID  EmployeeID
	StartDate time.Time
	EndDate   *time.Time
	Purpose   string
	Status    AssignmentStatus
	ClosedAt  *time.Time

	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// TIME HELPERS
// =============================================================================

// DaysUntil returns the whole number of days from now until the given instant.
// Negative when the instant is in the past. Truncates partial days.
func DaysUntil(now, at time.Time) int {
	return int(at.Sub(now).Hours() / 24)
}
