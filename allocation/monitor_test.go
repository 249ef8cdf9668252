package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/warp/asset-engine/allocation"
	"github.com/warp/asset-engine/allocation/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		days int
		want allocation.Severity
	}{
		{-10, allocation.SeverityExpired},
		{0, allocation.SeverityExpired},
		{1, allocation.SeverityCritical},
		{7, allocation.SeverityCritical},
		{8, allocation.SeverityWarning},
		{30, allocation.SeverityWarning},
		{31, allocation.SeverityInfo},
		{365, allocation.SeverityInfo},
	}
	for _, tc := range cases {
		if got := allocation.Classify(tc.days); got != tc.want {
			t.Errorf("Classify(%d) = %s, want %s", tc.days, got, tc.want)
		}
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		at   time.Time
		want int
	}{
		{now.AddDate(0, 0, 10), 10},
		{now.Add(36 * time.Hour), 1}, // partial days truncate
		{now, 0},
		{now.AddDate(0, 0, -3), -3},
	}
	for _, tc := range cases {
		if got := allocation.DaysUntil(now, tc.at); got != tc.want {
			t.Errorf("DaysUntil(now, %v) = %d, want %d", tc.at, got, tc.want)
		}
	}
}

func TestMonitorScan_LicenseAlerts(t *testing.T) {
	// GIVEN: A pool expiring in 5 days with two active seats, and one
	//        expiring in 90 days with one active seat
	// WHEN: Scanning with a 30-day horizon
	// THEN: Two CRITICAL alerts for the near pool, nothing for the far one

	ctx := context.Background()
	engine, mem := newTestEngine()
	now := time.Now()

	near := registerTestPool(t, mem, 3, now.AddDate(0, 0, 5))
	far := registerTestPool(t, mem, 3, now.AddDate(0, 0, 90))

	for _, holder := range []allocation.EmployeeID{"emp-1", "emp-2"} {
		if _, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
			PoolID: near.ID, HolderID: holder, StartDate: now,
		}); err != nil {
			t.Fatalf("assign near: %v", err)
		}
	}
	if _, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: far.ID, HolderID: "emp-3", StartDate: now,
	}); err != nil {
		t.Fatalf("assign far: %v", err)
	}

	monitor := allocation.NewMonitor(mem)
	alerts, err := monitor.Scan(ctx, now, 30)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	var nearAlerts int
	for _, a := range alerts {
		if a.Kind != allocation.KindPool {
			continue
		}
		if a.ResourceID == string(far.ID) {
			t.Errorf("pool beyond horizon must not alert")
		}
		if a.ResourceID == string(near.ID) {
			nearAlerts++
			if a.Severity != allocation.SeverityCritical {
				t.Errorf("expected critical at 5 days, got %s", a.Severity)
			}
			if a.HolderID == "" {
				t.Error("license alert must name the holder")
			}
		}
	}
	if nearAlerts != 2 {
		t.Errorf("expected one alert per active seat, got %d", nearAlerts)
	}
}

func TestMonitorScan_DeviceWarrantyAlerts(t *testing.T) {
	// GIVEN: Devices with warranty expiring in 2 days, expired 5 days ago,
	//        far in the future, and one DISPOSED
	// WHEN: Scanning with a 30-day horizon
	// THEN: Critical + expired alerts only; disposed and far devices silent

	ctx := context.Background()
	mem := store.NewMemory()
	catalog := allocation.NewCatalog(mem)
	now := time.Now()

	mk := func(serial string, warranty time.Time) allocation.Device {
		dev, err := catalog.RegisterDevice(ctx, allocation.DeviceSpec{
			Category: allocation.CategoryLaptop, Model: "X1", Serial: serial,
			WarrantyExpiry: warranty,
		})
		if err != nil {
			t.Fatalf("register %s: %v", serial, err)
		}
		return dev
	}

	soon := mk("SN-soon", now.AddDate(0, 0, 2))
	past := mk("SN-past", now.AddDate(0, 0, -5))
	mk("SN-far", now.AddDate(2, 0, 0))

	disposed := mk("SN-gone", now.AddDate(0, 0, 3))
	if _, err := catalog.SetDeviceStatus(ctx, disposed.ID, allocation.DeviceDisposed); err != nil {
		t.Fatalf("dispose: %v", err)
	}

	monitor := allocation.NewMonitor(mem)
	alerts, err := monitor.Scan(ctx, now, 30)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	bySeverity := map[string]allocation.Severity{}
	for _, a := range alerts {
		if a.Kind != allocation.KindDevice {
			t.Fatalf("unexpected alert kind %s", a.Kind)
		}
		bySeverity[a.ResourceID] = a.Severity
	}

	if got := bySeverity[string(soon.ID)]; got != allocation.SeverityCritical {
		t.Errorf("soon device: expected critical, got %s", got)
	}
	if got := bySeverity[string(past.ID)]; got != allocation.SeverityExpired {
		t.Errorf("past device: expected expired, got %s", got)
	}
	if len(alerts) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(alerts))
	}
}

func TestMonitorScan_HorizonZero(t *testing.T) {
	// GIVEN: A pool expired yesterday with one active seat
	// WHEN: Scanning with a zero-day horizon
	// THEN: Expired entries still surface (days <= 0 is within any horizon)

	ctx := context.Background()
	engine, mem := newTestEngine()
	now := time.Now()

	pool := registerTestPool(t, mem, 1, now.AddDate(0, 0, 5))
	if _, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: now,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	monitor := allocation.NewMonitor(mem)
	alerts, err := monitor.Scan(ctx, now.AddDate(0, 0, 6), 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	var found bool
	for _, a := range alerts {
		if a.Kind == allocation.KindPool && a.ResourceID == string(pool.ID) {
			found = true
			if a.Severity != allocation.SeverityExpired {
				t.Errorf("expected expired, got %s", a.Severity)
			}
		}
	}
	if !found {
		t.Error("expired pool must alert even with horizon 0")
	}
}
