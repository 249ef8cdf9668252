package allocation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/asset-engine/allocation"
	"github.com/warp/asset-engine/allocation/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine() (*allocation.Engine, *store.Memory) {
	mem := store.NewMemory()
	return allocation.NewEngine(mem, nil), mem
}

func registerTestDevice(t *testing.T, s allocation.TxStore) allocation.Device {
	t.Helper()
	catalog := allocation.NewCatalog(s)
	dev, err := catalog.RegisterDevice(context.Background(), allocation.DeviceSpec{
		Category:       allocation.CategoryLaptop,
		Manufacturer:   "Lenovo",
		Model:          "ThinkPad X1",
		Serial:         "SN-" + string(allocation.NewID("t")),
		PurchaseDate:   time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		WarrantyExpiry: time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	return dev
}

func registerTestPool(t *testing.T, s allocation.TxStore, seats int, expires time.Time) allocation.LicensePool {
	t.Helper()
	catalog := allocation.NewCatalog(s)
	pool, err := catalog.RegisterLicensePool(context.Background(), allocation.LicensePoolSpec{
		Software:    "DesignSuite",
		LicenseType: "floating",
		TotalSeats:  seats,
		Pricing:     allocation.PricingPerSeat,
		UnitPrice:   decimal.NewFromInt(120),
		ExpiresAt:   expires,
	})
	if err != nil {
		t.Fatalf("register pool: %v", err)
	}
	return pool
}

func farFuture() time.Time {
	return time.Now().AddDate(2, 0, 0)
}

// =============================================================================
// DEVICE ASSIGNMENT TESTS
// =============================================================================

func TestAssignDevice_Lifecycle(t *testing.T) {
	// GIVEN: An AVAILABLE device
	// WHEN: Assigning it, then returning it
	// THEN: Status flips AVAILABLE -> ASSIGNED -> AVAILABLE and the ledger
	//       keeps one closed entry

	ctx := context.Background()
	engine, mem := newTestEngine()
	dev := registerTestDevice(t, mem)

	asg, err := engine.AssignDevice(ctx, allocation.AssignDeviceInput{
		DeviceID: dev.ID,
		HolderID: "emp-1",
		Purpose:  "new hire",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asg.Status != allocation.AssignmentActive {
		t.Errorf("expected active assignment, got %s", asg.Status)
	}

	got, err := mem.GetDevice(ctx, dev.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.Status != allocation.DeviceAssigned {
		t.Errorf("expected device assigned, got %s", got.Status)
	}

	closed, err := engine.ReturnDevice(ctx, asg.ID, time.Now())
	if err != nil {
		t.Fatalf("return device: %v", err)
	}
	if closed.Status != allocation.AssignmentReturned {
		t.Errorf("expected returned, got %s", closed.Status)
	}
	if closed.ClosedAt == nil {
		t.Error("expected closed_at to be set")
	}

	got, _ = mem.GetDevice(ctx, dev.ID)
	if got.Status != allocation.DeviceAvailable {
		t.Errorf("expected device available after return, got %s", got.Status)
	}

	history, err := mem.ListDeviceAssignmentsForHolder(ctx, "emp-1")
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(history))
	}
}

func TestAssignDevice_AlreadyAssigned(t *testing.T) {
	// GIVEN: A device already held by emp-1
	// WHEN: A second assignment is attempted
	// THEN: It fails with a not-available error and no second ACTIVE entry exists

	ctx := context.Background()
	engine, mem := newTestEngine()
	dev := registerTestDevice(t, mem)

	if _, err := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-1"}); err != nil {
		t.Fatalf("first assign: %v", err)
	}

	_, err := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-2"})
	if !errors.Is(err, allocation.ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}

	if _, found, _ := mem.ActiveDeviceAssignment(ctx, dev.ID); !found {
		t.Error("expected the original active assignment to survive")
	}
	history, _ := mem.ListDeviceAssignmentsForHolder(ctx, "emp-2")
	if len(history) != 0 {
		t.Errorf("failed assign must write nothing, got %d entries", len(history))
	}
}

func TestAssignDevice_MaintenanceBlocksAssignment(t *testing.T) {
	// GIVEN: A device in MAINTENANCE
	// WHEN: Assignment is attempted
	// THEN: NotAvailableError carries the blocking status

	ctx := context.Background()
	engine, mem := newTestEngine()
	dev := registerTestDevice(t, mem)

	catalog := allocation.NewCatalog(mem)
	if _, err := catalog.SetDeviceStatus(ctx, dev.ID, allocation.DeviceMaintenance); err != nil {
		t.Fatalf("set maintenance: %v", err)
	}

	_, err := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-1"})
	var na *allocation.NotAvailableError
	if !errors.As(err, &na) {
		t.Fatalf("expected NotAvailableError, got %v", err)
	}
	if na.Status != allocation.DeviceMaintenance {
		t.Errorf("expected blocking status maintenance, got %s", na.Status)
	}
}

func TestAssignDevice_IdempotencyKeyRetry(t *testing.T) {
	// GIVEN: An assignment created with an idempotency key
	// WHEN: The same call is retried with the same key
	// THEN: The original assignment comes back; nothing new is allocated

	ctx := context.Background()
	engine, mem := newTestEngine()
	dev := registerTestDevice(t, mem)

	in := allocation.AssignDeviceInput{
		DeviceID:       dev.ID,
		HolderID:       "emp-1",
		IdempotencyKey: "req-42",
	}
	first, err := engine.AssignDevice(ctx, in)
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}
	second, err := engine.AssignDevice(ctx, in)
	if err != nil {
		t.Fatalf("retry must succeed, got %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("retry returned a different assignment: %s vs %s", first.ID, second.ID)
	}

	history, _ := mem.ListDeviceAssignmentsForHolder(ctx, "emp-1")
	if len(history) != 1 {
		t.Errorf("expected exactly 1 ledger entry after retry, got %d", len(history))
	}
}

func TestReturnDevice_Twice(t *testing.T) {
	// GIVEN: A returned assignment
	// WHEN: Returning it again
	// THEN: The second close fails with an invalid transition

	ctx := context.Background()
	engine, mem := newTestEngine()
	dev := registerTestDevice(t, mem)

	asg, _ := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-1"})
	if _, err := engine.ReturnDevice(ctx, asg.ID, time.Now()); err != nil {
		t.Fatalf("first return: %v", err)
	}

	_, err := engine.ReturnDevice(ctx, asg.ID, time.Now())
	if !errors.Is(err, allocation.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReturnDevice_PreservesMaintenanceStatus(t *testing.T) {
	// GIVEN: A held device moved to MAINTENANCE out-of-band
	// WHEN: The assignment is returned
	// THEN: The entry closes but the device stays in MAINTENANCE

	ctx := context.Background()
	engine, mem := newTestEngine()
	dev := registerTestDevice(t, mem)
	catalog := allocation.NewCatalog(mem)

	asg, _ := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-1"})
	if _, err := catalog.SetDeviceStatus(ctx, dev.ID, allocation.DeviceMaintenance); err != nil {
		t.Fatalf("set maintenance: %v", err)
	}

	closed, err := engine.ReturnDevice(ctx, asg.ID, time.Now())
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if closed.Status != allocation.AssignmentReturned {
		t.Errorf("expected returned, got %s", closed.Status)
	}

	got, _ := mem.GetDevice(ctx, dev.ID)
	if got.Status != allocation.DeviceMaintenance {
		t.Errorf("return must not overwrite maintenance, got %s", got.Status)
	}
}

// =============================================================================
// LICENSE ASSIGNMENT TESTS
// =============================================================================

func TestAssignLicense_Lifecycle(t *testing.T) {
	// GIVEN: A pool with 3 seats
	// WHEN: Claiming one seat and returning it
	// THEN: Available goes 3 -> 2 -> 3 and the entry closes as RETURNED

	ctx := context.Background()
	engine, mem := newTestEngine()
	pool := registerTestPool(t, mem, 3, farFuture())

	asg, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID:    pool.ID,
		HolderID:  "emp-1",
		StartDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("assign license: %v", err)
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 2 {
		t.Errorf("expected 2 available, got %d", got.AvailableSeats)
	}

	closed, err := engine.ReturnLicense(ctx, asg.ID, time.Now(), allocation.AssignmentReturned)
	if err != nil {
		t.Fatalf("return license: %v", err)
	}
	if closed.Status != allocation.AssignmentReturned {
		t.Errorf("expected returned, got %s", closed.Status)
	}

	got, _ = mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 3 {
		t.Errorf("expected 3 available after return, got %d", got.AvailableSeats)
	}
}

func TestAssignLicense_CapacityExhausted(t *testing.T) {
	// GIVEN: A single-seat pool with the seat taken
	// WHEN: A second claim is attempted
	// THEN: CapacityExhaustedError, and no ledger entry is written

	ctx := context.Background()
	engine, mem := newTestEngine()
	pool := registerTestPool(t, mem, 1, farFuture())

	if _, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: time.Now(),
	}); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-2", StartDate: time.Now(),
	})
	if !errors.Is(err, allocation.ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}

	history, _ := mem.ListLicenseAssignmentsForHolder(ctx, "emp-2")
	if len(history) != 0 {
		t.Errorf("failed claim must write nothing, got %d entries", len(history))
	}
	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 0 {
		t.Errorf("expected 0 available, got %d", got.AvailableSeats)
	}
}

func TestAssignLicense_ConcurrentLastSeat(t *testing.T) {
	// GIVEN: A pool with exactly one free seat
	// WHEN: Two claims race for it
	// THEN: Exactly one succeeds and one gets CapacityExhausted; never two
	//       successes, never zero

	ctx := context.Background()
	engine, mem := newTestEngine()
	pool := registerTestPool(t, mem, 1, farFuture())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.AssignLicense(ctx, allocation.AssignLicenseInput{
				PoolID:    pool.ID,
				HolderID:  allocation.EmployeeID(string(rune('a' + i))),
				StartDate: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	var successes, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, allocation.ErrCapacityExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || exhausted != 1 {
		t.Fatalf("expected 1 success and 1 exhausted, got %d/%d", successes, exhausted)
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 0 {
		t.Errorf("expected 0 available, got %d", got.AvailableSeats)
	}
	actives, _ := mem.ListActiveLicenseAssignments(ctx, pool.ID)
	if len(actives) != 1 {
		t.Errorf("expected exactly 1 active entry, got %d", len(actives))
	}
}

func TestAssignLicense_ConcurrentRetriesSameKey(t *testing.T) {
	// GIVEN: A pool with seats to spare
	// WHEN: Two retries carrying the same idempotency key race each other
	// THEN: Both get the same assignment back; one seat consumed, one entry

	ctx := context.Background()
	engine, mem := newTestEngine()
	pool := registerTestPool(t, mem, 2, farFuture())

	in := allocation.AssignLicenseInput{
		PoolID:         pool.ID,
		HolderID:       "emp-1",
		StartDate:      time.Now(),
		IdempotencyKey: "req-77",
	}

	var wg sync.WaitGroup
	results := make([]allocation.LicenseAssignment, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.AssignLicense(ctx, in)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if results[0].ID != results[1].ID {
		t.Fatalf("same key produced two distinct assignments: %s and %s", results[0].ID, results[1].ID)
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 1 {
		t.Errorf("expected 1 seat consumed, got %d available of %d", got.AvailableSeats, got.TotalSeats)
	}
	actives, _ := mem.ListActiveLicenseAssignments(ctx, pool.ID)
	if len(actives) != 1 {
		t.Errorf("expected exactly 1 active entry, got %d", len(actives))
	}
}

func TestStore_DuplicateIdempotencyKeyRejected(t *testing.T) {
	// GIVEN: A ledger entry recorded with an idempotency key
	// WHEN: A second entry with the same key is appended directly
	// THEN: ErrDuplicateIdempotencyKey, nothing written

	ctx := context.Background()
	mem := store.NewMemory()
	pool := registerTestPool(t, mem, 3, farFuture())

	entry := allocation.LicenseAssignment{
		ID:             allocation.AssignmentID(allocation.NewID("lasg")),
		PoolID:         pool.ID,
		HolderID:       "emp-1",
		StartDate:      time.Now(),
		Status:         allocation.AssignmentActive,
		IdempotencyKey: "req-88",
		CreatedAt:      time.Now(),
	}
	if err := mem.AppendLicenseAssignment(ctx, entry); err != nil {
		t.Fatalf("first append: %v", err)
	}

	dup := entry
	dup.ID = allocation.AssignmentID(allocation.NewID("lasg"))
	dup.HolderID = "emp-2"
	if err := mem.AppendLicenseAssignment(ctx, dup); !errors.Is(err, allocation.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	actives, _ := mem.ListActiveLicenseAssignments(ctx, pool.ID)
	if len(actives) != 1 {
		t.Errorf("duplicate append must not write, got %d entries", len(actives))
	}
}

func TestAssignLicense_DateBounds(t *testing.T) {
	// GIVEN: A pool expiring in 30 days
	// WHEN: Claims start after expiry or end after expiry
	// THEN: Validation errors, no seat consumed

	ctx := context.Background()
	engine, mem := newTestEngine()
	expires := time.Now().AddDate(0, 1, 0)
	pool := registerTestPool(t, mem, 2, expires)

	_, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: expires.AddDate(0, 0, 1),
	})
	if !errors.Is(err, allocation.ErrValidation) {
		t.Fatalf("start after expiry: expected ErrValidation, got %v", err)
	}

	badEnd := expires.AddDate(0, 0, 7)
	_, err = engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: time.Now(), EndDate: &badEnd,
	})
	if !errors.Is(err, allocation.ErrValidation) {
		t.Fatalf("end after expiry: expected ErrValidation, got %v", err)
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 2 {
		t.Errorf("rejected claims must not consume seats, got %d available", got.AvailableSeats)
	}
}

func TestReturnLicense_RevokedFreesSeat(t *testing.T) {
	// GIVEN: An active seat
	// WHEN: An admin revokes it
	// THEN: The entry closes as REVOKED and the seat frees

	ctx := context.Background()
	engine, mem := newTestEngine()
	pool := registerTestPool(t, mem, 1, farFuture())

	asg, _ := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: time.Now(),
	})

	closed, err := engine.ReturnLicense(ctx, asg.ID, time.Now(), allocation.AssignmentRevoked)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if closed.Status != allocation.AssignmentRevoked {
		t.Errorf("expected revoked, got %s", closed.Status)
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 1 {
		t.Errorf("expected seat freed, got %d available", got.AvailableSeats)
	}
}

func TestReturnLicense_DoubleCloseDoesNotOverRelease(t *testing.T) {
	// GIVEN: A seat returned once
	// WHEN: A second close is attempted
	// THEN: It fails before the increment; available never exceeds total

	ctx := context.Background()
	engine, mem := newTestEngine()
	pool := registerTestPool(t, mem, 2, farFuture())

	asg, _ := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: time.Now(),
	})
	if _, err := engine.ReturnLicense(ctx, asg.ID, time.Now(), allocation.AssignmentReturned); err != nil {
		t.Fatalf("first return: %v", err)
	}

	_, err := engine.ReturnLicense(ctx, asg.ID, time.Now(), allocation.AssignmentRevoked)
	if !errors.Is(err, allocation.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 2 {
		t.Errorf("double close must not over-release: got %d available of %d", got.AvailableSeats, got.TotalSeats)
	}
}

func TestReturnLicense_RejectsExpiredReason(t *testing.T) {
	// GIVEN: An active seat
	// WHEN: A caller tries to close it as EXPIRED directly
	// THEN: Validation error; expiry closes only go through the sweep

	ctx := context.Background()
	engine, mem := newTestEngine()
	pool := registerTestPool(t, mem, 1, farFuture())

	asg, _ := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: time.Now(),
	})

	_, err := engine.ReturnLicense(ctx, asg.ID, time.Now(), allocation.AssignmentExpired)
	if !errors.Is(err, allocation.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// =============================================================================
// EXPIRY SWEEP TESTS
// =============================================================================

func TestSweepExpired_ClosesAndFrees(t *testing.T) {
	// GIVEN: Two active seats on a pool that has since expired
	// WHEN: The sweep runs
	// THEN: Both close as EXPIRED and both seats free

	ctx := context.Background()
	engine, mem := newTestEngine()
	expires := time.Now().AddDate(0, 0, 10)
	pool := registerTestPool(t, mem, 3, expires)

	for _, holder := range []allocation.EmployeeID{"emp-1", "emp-2"} {
		if _, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
			PoolID: pool.ID, HolderID: holder, StartDate: time.Now(),
		}); err != nil {
			t.Fatalf("assign for %s: %v", holder, err)
		}
	}

	swept, err := engine.SweepExpired(ctx, expires.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(swept) != 2 {
		t.Fatalf("expected 2 swept, got %d", len(swept))
	}
	for _, asg := range swept {
		if asg.Status != allocation.AssignmentExpired {
			t.Errorf("expected expired, got %s", asg.Status)
		}
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 3 {
		t.Errorf("expected all seats freed, got %d available", got.AvailableSeats)
	}
}

func TestSweepExpired_Idempotent(t *testing.T) {
	// GIVEN: A sweep that already closed everything
	// WHEN: The sweep runs again at the same instant
	// THEN: Nothing further happens

	ctx := context.Background()
	engine, mem := newTestEngine()
	expires := time.Now().AddDate(0, 0, 10)
	pool := registerTestPool(t, mem, 1, expires)

	if _, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: time.Now(),
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	after := expires.AddDate(0, 0, 1)
	first, err := engine.SweepExpired(ctx, after)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 swept, got %d", len(first))
	}

	second, err := engine.SweepExpired(ctx, after)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second sweep must be a no-op, swept %d", len(second))
	}

	got, _ := mem.GetPool(ctx, pool.ID)
	if got.AvailableSeats != 1 {
		t.Errorf("expected 1 available, got %d", got.AvailableSeats)
	}
}

func TestSweepExpired_SkipsUnexpiredPools(t *testing.T) {
	// GIVEN: One expired pool and one healthy pool, both with active seats
	// WHEN: The sweep runs
	// THEN: Only the expired pool's seat closes

	ctx := context.Background()
	engine, mem := newTestEngine()
	expired := registerTestPool(t, mem, 1, time.Now().AddDate(0, 0, -1))
	healthy := registerTestPool(t, mem, 1, farFuture())

	// Claim on the expired pool predates the expiry in this scenario; write
	// the entry directly since the engine would reject the start date.
	entry := allocation.LicenseAssignment{
		ID:        allocation.AssignmentID(allocation.NewID("lasg")),
		PoolID:    expired.ID,
		HolderID:  "emp-1",
		StartDate: time.Now().AddDate(0, -2, 0),
		Status:    allocation.AssignmentActive,
		CreatedAt: time.Now().AddDate(0, -2, 0),
	}
	if err := mem.AppendLicenseAssignment(ctx, entry); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	if err := mem.ClaimSeat(ctx, expired.ID); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	if _, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: healthy.ID, HolderID: "emp-2", StartDate: time.Now(),
	}); err != nil {
		t.Fatalf("healthy assign: %v", err)
	}

	swept, err := engine.SweepExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(swept) != 1 || swept[0].PoolID != expired.ID {
		t.Fatalf("expected only the expired pool's entry swept, got %v", swept)
	}

	actives, _ := mem.ListActiveLicenseAssignments(ctx, healthy.ID)
	if len(actives) != 1 {
		t.Errorf("healthy pool's seat must stay active, got %d", len(actives))
	}
}
