/*
catalog.go - Canonical record of allocatable resources

PURPOSE:
  The catalog holds the registration-time truth about every device and
  license pool, and guards the administrative slice of the device state
  machine. It never performs assignment bookkeeping; flipping a device
  to/from ASSIGNED and moving seat counts is the engine's job.

DEVICE STATE MACHINE (administrative transitions only):
  AVAILABLE   -> MAINTENANCE, DISPOSED
  MAINTENANCE -> AVAILABLE, DISPOSED
  ASSIGNED    -> MAINTENANCE       (out-of-band repair of a held device)
  DISPOSED    -> (terminal)

  ASSIGNED -> DISPOSED is never permitted directly: the assignment must be
  returned first. ASSIGNED -> AVAILABLE is engine-only, via returnDevice.

SEE ALSO:
  - engine.go: Assignment transitions (AVAILABLE <-> ASSIGNED)
  - types.go: Device and LicensePool definitions
*/
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REGISTRATION SPECS
// =============================================================================

// DeviceSpec is the input for registering a device.
type DeviceSpec struct {
	Category       DeviceCategory
	Manufacturer   string
	Model          string
	Serial         string
	PurchaseDate   time.Time
	WarrantyExpiry time.Time
}

// LicensePoolSpec is the input for registering a license pool.
type LicensePoolSpec struct {
	Software    string
	LicenseType string
	TotalSeats  int
	Pricing     PricingModel
	UnitPrice   decimal.Decimal
	ExpiresAt   time.Time
}

// =============================================================================
// CATALOG
// =============================================================================

type Catalog struct {
	Store TxStore
	Clock func() time.Time
}

func NewCatalog(store TxStore) *Catalog {
	return &Catalog{Store: store, Clock: time.Now}
}

// RegisterDevice creates a device in AVAILABLE status.
// Fails with a ValidationError if the serial is empty or not unique.
func (c *Catalog) RegisterDevice(ctx context.Context, spec DeviceSpec) (Device, error) {
	if spec.Serial == "" {
		return Device{}, &ValidationError{Field: "serial", Message: "must not be empty"}
	}
	if spec.Model == "" {
		return Device{}, &ValidationError{Field: "model", Message: "must not be empty"}
	}
	switch spec.Category {
	case CategoryLaptop, CategoryDesktop, CategoryTablet, CategoryPhone:
	default:
		return Device{}, &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", spec.Category)}
	}

	var dev Device
	err := c.Store.WithTx(ctx, func(s Store) error {
		if _, exists, err := s.FindDeviceBySerial(ctx, spec.Serial); err != nil {
			return err
		} else if exists {
			return &ValidationError{Field: "serial", Message: fmt.Sprintf("serial %q already registered", spec.Serial)}
		}

		now := c.Clock()
		dev = Device{
			ID:             DeviceID(NewID("dev")),
			Category:       spec.Category,
			Manufacturer:   spec.Manufacturer,
			Model:          spec.Model,
			Serial:         spec.Serial,
			PurchaseDate:   spec.PurchaseDate,
			WarrantyExpiry: spec.WarrantyExpiry,
			Status:         DeviceAvailable,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.SaveDevice(ctx, dev)
	})
	if err != nil {
		return Device{}, err
	}
	return dev, nil
}

// RegisterLicensePool creates a pool with all seats available.
// Fails with a ValidationError if the total seat count is below 1.
func (c *Catalog) RegisterLicensePool(ctx context.Context, spec LicensePoolSpec) (LicensePool, error) {
	if spec.Software == "" {
		return LicensePool{}, &ValidationError{Field: "software", Message: "must not be empty"}
	}
	if spec.TotalSeats < 1 {
		return LicensePool{}, &ValidationError{Field: "total_seats", Message: "must be at least 1"}
	}
	if spec.UnitPrice.IsNegative() {
		return LicensePool{}, &ValidationError{Field: "unit_price", Message: "must not be negative"}
	}

	now := c.Clock()
	pool := LicensePool{
		ID:             PoolID(NewID("pool")),
		Software:       spec.Software,
		LicenseType:    spec.LicenseType,
		TotalSeats:     spec.TotalSeats,
		AvailableSeats: spec.TotalSeats,
		Pricing:        spec.Pricing,
		UnitPrice:      spec.UnitPrice,
		ExpiresAt:      spec.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.Store.SavePool(ctx, pool); err != nil {
		return LicensePool{}, err
	}
	return pool, nil
}

// IncreaseLicenseTotal adds newly purchased seats to an existing pool.
// Both total and available grow by delta; shrinking a pool is not an
// operation (total never drops below currently-active assignments).
func (c *Catalog) IncreaseLicenseTotal(ctx context.Context, id PoolID, delta int) (LicensePool, error) {
	if delta < 1 {
		return LicensePool{}, &ValidationError{Field: "delta", Message: "must be at least 1"}
	}
	return c.Store.GrowPool(ctx, id, delta)
}

// SetDeviceStatus performs a direct administrative transition.
// Only AVAILABLE, MAINTENANCE, and DISPOSED are admin-settable; ASSIGNED is
// owned by the engine.
func (c *Catalog) SetDeviceStatus(ctx context.Context, id DeviceID, target DeviceStatus) (Device, error) {
	switch target {
	case DeviceAvailable, DeviceMaintenance, DeviceDisposed:
	case DeviceAssigned:
		return Device{}, &ValidationError{Field: "status", Message: "assigned is set by the allocation engine, not administratively"}
	default:
		return Device{}, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", target)}
	}

	var dev Device
	err := c.Store.WithTx(ctx, func(s Store) error {
		var err error
		dev, err = s.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if !adminTransitionAllowed(dev.Status, target) {
			return &InvalidTransitionError{
				Entity: "device",
				ID:     string(id),
				From:   string(dev.Status),
				To:     string(target),
			}
		}
		dev.Status = target
		dev.UpdatedAt = c.Clock()
		return s.SaveDevice(ctx, dev)
	})
	if err != nil {
		return Device{}, err
	}
	return dev, nil
}

// adminTransitionAllowed encodes the administrative slice of the device
// state machine. DISPOSED is terminal. A held device may enter MAINTENANCE
// out-of-band but can only leave ASSIGNED through returnDevice.
func adminTransitionAllowed(from, to DeviceStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case DeviceAvailable:
		return to == DeviceMaintenance || to == DeviceDisposed
	case DeviceMaintenance:
		return to == DeviceAvailable || to == DeviceDisposed
	case DeviceAssigned:
		return to == DeviceMaintenance
	case DeviceDisposed:
		return false
	}
	return false
}
