package allocation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warp/asset-engine/allocation"
	"github.com/warp/asset-engine/allocation/store"
)

func activeDeviceEntry(dev allocation.DeviceID, holder allocation.EmployeeID) allocation.DeviceAssignment {
	now := time.Now()
	return allocation.DeviceAssignment{
		ID:         allocation.AssignmentID(allocation.NewID("dasg")),
		DeviceID:   dev,
		HolderID:   holder,
		AssignedAt: now,
		Status:     allocation.AssignmentActive,
		CreatedAt:  now,
	}
}

func TestLedger_OneActiveEntryPerDevice(t *testing.T) {
	// GIVEN: An ACTIVE entry for dev-1
	// WHEN: A second ACTIVE entry for dev-1 is recorded
	// THEN: ConflictError naming the existing entry

	ctx := context.Background()
	ledger := allocation.NewLedger(store.NewMemory())

	first := activeDeviceEntry("dev-1", "emp-1")
	if err := ledger.RecordDeviceAssignment(ctx, first); err != nil {
		t.Fatalf("first record: %v", err)
	}

	err := ledger.RecordDeviceAssignment(ctx, activeDeviceEntry("dev-1", "emp-2"))
	var conflict *allocation.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ExistingID != first.ID {
		t.Errorf("conflict must name the existing entry, got %s", conflict.ExistingID)
	}

	// A different device is unaffected.
	if err := ledger.RecordDeviceAssignment(ctx, activeDeviceEntry("dev-2", "emp-2")); err != nil {
		t.Fatalf("record on other device: %v", err)
	}
}

func TestLedger_CloseIsTerminalExactlyOnce(t *testing.T) {
	// GIVEN: A closed entry
	// WHEN: Any further close is attempted
	// THEN: InvalidTransitionError; the stored status never changes again

	ctx := context.Background()
	mem := store.NewMemory()
	ledger := allocation.NewLedger(mem)

	entry := activeDeviceEntry("dev-1", "emp-1")
	if err := ledger.RecordDeviceAssignment(ctx, entry); err != nil {
		t.Fatalf("record: %v", err)
	}

	closed, err := ledger.CloseDeviceAssignment(ctx, entry.ID, allocation.AssignmentReturned, time.Now())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != allocation.AssignmentReturned || closed.ClosedAt == nil {
		t.Fatalf("close must set terminal status and closed_at, got %+v", closed)
	}

	if _, err := ledger.CloseDeviceAssignment(ctx, entry.ID, allocation.AssignmentRevoked, time.Now()); !errors.Is(err, allocation.ErrInvalidTransition) {
		t.Fatalf("second close: expected ErrInvalidTransition, got %v", err)
	}

	stored, _ := mem.GetDeviceAssignment(ctx, entry.ID)
	if stored.Status != allocation.AssignmentReturned {
		t.Errorf("terminal status must be immutable, got %s", stored.Status)
	}
}

func TestLedger_CloseRejectsNonTerminalTarget(t *testing.T) {
	ctx := context.Background()
	ledger := allocation.NewLedger(store.NewMemory())

	entry := activeDeviceEntry("dev-1", "emp-1")
	if err := ledger.RecordDeviceAssignment(ctx, entry); err != nil {
		t.Fatalf("record: %v", err)
	}

	if _, err := ledger.CloseDeviceAssignment(ctx, entry.ID, allocation.AssignmentActive, time.Now()); !errors.Is(err, allocation.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for non-terminal target, got %v", err)
	}
}

func TestLedger_ForHolderSpansBothKinds(t *testing.T) {
	// GIVEN: A holder with a device entry and a license entry
	// WHEN: Querying their history
	// THEN: Both sides come back

	ctx := context.Background()
	mem := store.NewMemory()
	ledger := allocation.NewLedger(mem)

	if err := ledger.RecordDeviceAssignment(ctx, activeDeviceEntry("dev-1", "emp-1")); err != nil {
		t.Fatalf("record device: %v", err)
	}
	if err := ledger.RecordLicenseAssignment(ctx, allocation.LicenseAssignment{
		ID:        allocation.AssignmentID(allocation.NewID("lasg")),
		PoolID:    "pool-1",
		HolderID:  "emp-1",
		StartDate: time.Now(),
		Status:    allocation.AssignmentActive,
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("record license: %v", err)
	}

	devices, licenses, err := ledger.ForHolder(ctx, "emp-1")
	if err != nil {
		t.Fatalf("for holder: %v", err)
	}
	if len(devices) != 1 || len(licenses) != 1 {
		t.Errorf("expected 1 device + 1 license entry, got %d/%d", len(devices), len(licenses))
	}
}
