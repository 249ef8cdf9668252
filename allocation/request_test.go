package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/asset-engine/allocation"
	"github.com/warp/asset-engine/allocation/store"
)

func newTestGate() (*allocation.Gate, *allocation.Engine, *store.Memory) {
	mem := store.NewMemory()
	engine := allocation.NewEngine(mem, nil)
	return allocation.NewGate(mem, engine), engine, mem
}

func TestSubmitResourceRequest_Validation(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newTestGate()

	_, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestDevice, Category: allocation.CategoryLaptop,
	})
	assert.ErrorIs(t, err, allocation.ErrValidation, "missing holder")

	_, err = gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestDevice, HolderID: "emp-1",
	})
	assert.ErrorIs(t, err, allocation.ErrValidation, "device request without category")

	_, err = gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestLicense, HolderID: "emp-1",
	})
	assert.ErrorIs(t, err, allocation.ErrValidation, "license request without pool")

	_, err = gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: "snacks", HolderID: "emp-1",
	})
	assert.ErrorIs(t, err, allocation.ErrValidation, "unknown kind")
}

func TestApproveDeviceRequest_Flow(t *testing.T) {
	// Submit -> approve with a concrete device -> request APPROVED and the
	// assignment recorded under the requester.

	ctx := context.Background()
	gate, _, mem := newTestGate()
	dev := registerTestDevice(t, mem)

	req, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind:          allocation.RequestDevice,
		HolderID:      "emp-1",
		Category:      allocation.CategoryLaptop,
		Justification: "remote onboarding",
	})
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestPending, req.Status)

	decided, err := gate.ApproveResourceRequest(ctx, req.ID, "mgr-1", allocation.ApprovalParams{
		DeviceID: dev.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestApproved, decided.Status)
	assert.Equal(t, "mgr-1", decided.DecidedBy)
	require.NotEmpty(t, decided.AssignmentID)

	asg, err := mem.GetDeviceAssignment(ctx, decided.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, allocation.EmployeeID("emp-1"), asg.HolderID)
	assert.Equal(t, allocation.AssignmentActive, asg.Status)

	got, err := mem.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.DeviceAssigned, got.Status)
}

func TestApproveDeviceRequest_RequiresDevicePick(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newTestGate()

	req, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestDevice, HolderID: "emp-1", Category: allocation.CategoryLaptop,
	})
	require.NoError(t, err)

	_, err = gate.ApproveResourceRequest(ctx, req.ID, "mgr-1", allocation.ApprovalParams{})
	assert.ErrorIs(t, err, allocation.ErrValidation)
}

func TestApproveLicenseRequest_ExhaustedPoolLeavesRequestPending(t *testing.T) {
	// GIVEN: A single-seat pool whose seat is already held
	// WHEN: A license request for it is approved
	// THEN: The engine refuses, the refusal surfaces, and the request stays
	//       PENDING for a later retry or rejection

	ctx := context.Background()
	gate, engine, mem := newTestGate()
	pool := registerTestPool(t, mem, 1, farFuture())

	_, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-0", StartDate: time.Now(),
	})
	require.NoError(t, err)

	req, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestLicense, HolderID: "emp-1", PoolID: pool.ID,
	})
	require.NoError(t, err)

	_, err = gate.ApproveResourceRequest(ctx, req.ID, "mgr-1", allocation.ApprovalParams{})
	assert.ErrorIs(t, err, allocation.ErrCapacityExhausted)

	got, err := mem.GetResourceRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestPending, got.Status, "failed approval must not decide the request")
}

func TestApproveLicenseRequest_RetryDoesNotDoubleAllocate(t *testing.T) {
	// The request id doubles as the engine idempotency key: approving twice
	// (first decision lost before the save) cannot claim a second seat.

	ctx := context.Background()
	gate, _, mem := newTestGate()
	pool := registerTestPool(t, mem, 3, farFuture())

	req, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestLicense, HolderID: "emp-1", PoolID: pool.ID,
	})
	require.NoError(t, err)

	first, err := gate.ApproveResourceRequest(ctx, req.ID, "mgr-1", allocation.ApprovalParams{})
	require.NoError(t, err)

	// Simulate a lost decision: rewind the request to PENDING and approve again.
	rewound := first
	rewound.Status = allocation.RequestPending
	rewound.AssignmentID = ""
	require.NoError(t, mem.SaveResourceRequest(ctx, rewound))

	second, err := gate.ApproveResourceRequest(ctx, req.ID, "mgr-1", allocation.ApprovalParams{})
	require.NoError(t, err)
	assert.Equal(t, first.AssignmentID, second.AssignmentID)

	got, err := mem.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSeats, "retried approval must consume exactly one seat")
}

func TestDecideRequest_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	gate, _, mem := newTestGate()
	dev := registerTestDevice(t, mem)

	req, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestDevice, HolderID: "emp-1", Category: allocation.CategoryLaptop,
	})
	require.NoError(t, err)

	_, err = gate.RejectResourceRequest(ctx, req.ID, "mgr-1", "budget freeze")
	require.NoError(t, err)

	_, err = gate.ApproveResourceRequest(ctx, req.ID, "mgr-2", allocation.ApprovalParams{DeviceID: dev.ID})
	assert.ErrorIs(t, err, allocation.ErrInvalidTransition)

	_, err = gate.CancelResourceRequest(ctx, req.ID)
	assert.ErrorIs(t, err, allocation.ErrInvalidTransition)
}

func TestCancelRequest(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newTestGate()

	req, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestLicense, HolderID: "emp-1", PoolID: "pool-1",
	})
	require.NoError(t, err)

	cancelled, err := gate.CancelResourceRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestCancelled, cancelled.Status)
}

func TestPendingResourceRequests(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newTestGate()

	for i := 0; i < 3; i++ {
		_, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
			Kind: allocation.RequestLicense, HolderID: "emp-1", PoolID: "pool-1",
		})
		require.NoError(t, err)
	}
	req, err := gate.SubmitResourceRequest(ctx, allocation.SubmitResourceRequestInput{
		Kind: allocation.RequestLicense, HolderID: "emp-1", PoolID: "pool-1",
	})
	require.NoError(t, err)
	_, err = gate.RejectResourceRequest(ctx, req.ID, "mgr-1", "no")
	require.NoError(t, err)

	pending, err := gate.PendingResourceRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

// =============================================================================
// RETURN REQUESTS
// =============================================================================

func TestReturnRequest_DeviceFlow(t *testing.T) {
	// Submit return -> approve -> assignment closed, device AVAILABLE again.

	ctx := context.Background()
	gate, engine, mem := newTestGate()
	dev := registerTestDevice(t, mem)

	asg, err := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-1"})
	require.NoError(t, err)

	req, err := gate.SubmitReturnRequest(ctx, allocation.RequestDevice, "emp-1", asg.ID, "leaving team")
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestPending, req.Status)

	decided, err := gate.ApproveReturnRequest(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestApproved, decided.Status)

	closed, err := mem.GetDeviceAssignment(ctx, asg.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.AssignmentReturned, closed.Status)

	got, err := mem.GetDevice(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.DeviceAvailable, got.Status)
}

func TestReturnRequest_LicenseFlow(t *testing.T) {
	ctx := context.Background()
	gate, engine, mem := newTestGate()
	pool := registerTestPool(t, mem, 1, farFuture())

	asg, err := engine.AssignLicense(ctx, allocation.AssignLicenseInput{
		PoolID: pool.ID, HolderID: "emp-1", StartDate: time.Now(),
	})
	require.NoError(t, err)

	req, err := gate.SubmitReturnRequest(ctx, allocation.RequestLicense, "emp-1", asg.ID, "project done")
	require.NoError(t, err)

	_, err = gate.ApproveReturnRequest(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	got, err := mem.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableSeats)
}

func TestReturnRequest_RejectLeavesAssignmentActive(t *testing.T) {
	ctx := context.Background()
	gate, engine, mem := newTestGate()
	dev := registerTestDevice(t, mem)

	asg, err := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-1"})
	require.NoError(t, err)

	req, err := gate.SubmitReturnRequest(ctx, allocation.RequestDevice, "emp-1", asg.ID, "typo")
	require.NoError(t, err)

	decided, err := gate.RejectReturnRequest(ctx, req.ID, "mgr-1", "still needed")
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestRejected, decided.Status)
	assert.Equal(t, "still needed", decided.RejectionReason)

	still, err := mem.GetDeviceAssignment(ctx, asg.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.AssignmentActive, still.Status)
}

func TestReturnRequest_ApproveOnClosedAssignment(t *testing.T) {
	// GIVEN: A return request whose assignment was already returned directly
	// WHEN: The request is approved
	// THEN: The engine refusal surfaces and the request stays PENDING

	ctx := context.Background()
	gate, engine, mem := newTestGate()
	dev := registerTestDevice(t, mem)

	asg, err := engine.AssignDevice(ctx, allocation.AssignDeviceInput{DeviceID: dev.ID, HolderID: "emp-1"})
	require.NoError(t, err)

	req, err := gate.SubmitReturnRequest(ctx, allocation.RequestDevice, "emp-1", asg.ID, "")
	require.NoError(t, err)

	_, err = engine.ReturnDevice(ctx, asg.ID, time.Now())
	require.NoError(t, err)

	_, err = gate.ApproveReturnRequest(ctx, req.ID, "mgr-1")
	assert.ErrorIs(t, err, allocation.ErrInvalidTransition)

	got, err := mem.GetReturnRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.RequestPending, got.Status)
}
