package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/asset-engine/allocation"
	"github.com/warp/asset-engine/allocation/store"
)

func newTestCatalog() (*allocation.Catalog, *store.Memory) {
	mem := store.NewMemory()
	return allocation.NewCatalog(mem), mem
}

func TestRegisterDevice_Valid(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog()

	dev, err := catalog.RegisterDevice(ctx, allocation.DeviceSpec{
		Category:       allocation.CategoryPhone,
		Manufacturer:   "Apple",
		Model:          "iPhone 15",
		Serial:         "SN-001",
		PurchaseDate:   time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		WarrantyExpiry: time.Date(2027, time.January, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, dev.ID)
	assert.Equal(t, allocation.DeviceAvailable, dev.Status)
}

func TestRegisterDevice_Validation(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog()

	cases := []struct {
		name string
		spec allocation.DeviceSpec
	}{
		{"empty serial", allocation.DeviceSpec{Category: allocation.CategoryLaptop, Model: "X1"}},
		{"empty model", allocation.DeviceSpec{Category: allocation.CategoryLaptop, Serial: "SN-1"}},
		{"unknown category", allocation.DeviceSpec{Category: "toaster", Model: "X1", Serial: "SN-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.RegisterDevice(ctx, tc.spec)
			assert.ErrorIs(t, err, allocation.ErrValidation)
		})
	}
}

func TestRegisterDevice_DuplicateSerial(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog()

	spec := allocation.DeviceSpec{
		Category: allocation.CategoryLaptop,
		Model:    "ThinkPad X1",
		Serial:   "SN-DUP",
	}
	_, err := catalog.RegisterDevice(ctx, spec)
	require.NoError(t, err)

	_, err = catalog.RegisterDevice(ctx, spec)
	assert.ErrorIs(t, err, allocation.ErrValidation)
}

func TestRegisterLicensePool_Validation(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog()

	_, err := catalog.RegisterLicensePool(ctx, allocation.LicensePoolSpec{TotalSeats: 5})
	assert.ErrorIs(t, err, allocation.ErrValidation, "empty software")

	_, err = catalog.RegisterLicensePool(ctx, allocation.LicensePoolSpec{Software: "Suite", TotalSeats: 0})
	assert.ErrorIs(t, err, allocation.ErrValidation, "zero seats")

	_, err = catalog.RegisterLicensePool(ctx, allocation.LicensePoolSpec{
		Software: "Suite", TotalSeats: 5, UnitPrice: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, allocation.ErrValidation, "negative price")
}

func TestRegisterLicensePool_AllSeatsAvailable(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog()

	pool, err := catalog.RegisterLicensePool(ctx, allocation.LicensePoolSpec{
		Software:   "DesignSuite",
		TotalSeats: 25,
		UnitPrice:  decimal.RequireFromString("120.50"),
		ExpiresAt:  time.Now().AddDate(1, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 25, pool.TotalSeats)
	assert.Equal(t, 25, pool.AvailableSeats)
	assert.Equal(t, 0, pool.AssignedSeats())
	assert.True(t, pool.Value().Equal(decimal.RequireFromString("3012.50")))
}

func TestIncreaseLicenseTotal(t *testing.T) {
	ctx := context.Background()
	catalog, mem := newTestCatalog()

	pool, err := catalog.RegisterLicensePool(ctx, allocation.LicensePoolSpec{
		Software: "Suite", TotalSeats: 5, ExpiresAt: time.Now().AddDate(1, 0, 0),
	})
	require.NoError(t, err)

	// Consume two seats, then grow by three.
	require.NoError(t, mem.ClaimSeat(ctx, pool.ID))
	require.NoError(t, mem.ClaimSeat(ctx, pool.ID))

	grown, err := catalog.IncreaseLicenseTotal(ctx, pool.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, grown.TotalSeats)
	assert.Equal(t, 6, grown.AvailableSeats)
	assert.Equal(t, 2, grown.AssignedSeats(), "growth must not disturb held seats")

	_, err = catalog.IncreaseLicenseTotal(ctx, pool.ID, 0)
	assert.ErrorIs(t, err, allocation.ErrValidation)
}

func TestSetDeviceStatus_AdminStateMachine(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		from    allocation.DeviceStatus
		to      allocation.DeviceStatus
		allowed bool
	}{
		{"available to maintenance", allocation.DeviceAvailable, allocation.DeviceMaintenance, true},
		{"available to disposed", allocation.DeviceAvailable, allocation.DeviceDisposed, true},
		{"maintenance to available", allocation.DeviceMaintenance, allocation.DeviceAvailable, true},
		{"maintenance to disposed", allocation.DeviceMaintenance, allocation.DeviceDisposed, true},
		{"assigned to maintenance", allocation.DeviceAssigned, allocation.DeviceMaintenance, true},
		{"assigned to disposed", allocation.DeviceAssigned, allocation.DeviceDisposed, false},
		{"assigned to available", allocation.DeviceAssigned, allocation.DeviceAvailable, false},
		{"disposed to available", allocation.DeviceDisposed, allocation.DeviceAvailable, false},
		{"disposed to maintenance", allocation.DeviceDisposed, allocation.DeviceMaintenance, false},
		{"no-op transition", allocation.DeviceAvailable, allocation.DeviceAvailable, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			catalog, mem := newTestCatalog()
			dev, err := catalog.RegisterDevice(ctx, allocation.DeviceSpec{
				Category: allocation.CategoryTablet, Model: "iPad", Serial: "SN-" + tc.name,
			})
			require.NoError(t, err)

			// Force the starting status directly; the engine owns ASSIGNED.
			dev.Status = tc.from
			require.NoError(t, mem.SaveDevice(ctx, dev))

			got, err := catalog.SetDeviceStatus(ctx, dev.ID, tc.to)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, got.Status)
			} else {
				assert.ErrorIs(t, err, allocation.ErrInvalidTransition)
			}
		})
	}
}

func TestSetDeviceStatus_AssignedIsEngineOnly(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog()

	dev, err := catalog.RegisterDevice(ctx, allocation.DeviceSpec{
		Category: allocation.CategoryDesktop, Model: "Mac Studio", Serial: "SN-ADM",
	})
	require.NoError(t, err)

	_, err = catalog.SetDeviceStatus(ctx, dev.ID, allocation.DeviceAssigned)
	assert.ErrorIs(t, err, allocation.ErrValidation)
}

func TestSetDeviceStatus_NotFound(t *testing.T) {
	ctx := context.Background()
	catalog, _ := newTestCatalog()

	_, err := catalog.SetDeviceStatus(ctx, "dev-missing", allocation.DeviceMaintenance)
	assert.ErrorIs(t, err, allocation.ErrDeviceNotFound)
}
