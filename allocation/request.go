/*
request.go - Request gate: employee-submitted requests feeding the engine

PURPOSE:
  Turns an employee-submitted resource or return request into an authorized
  call into the allocation engine once approved. The gate is the engine's
  primary caller; it holds no capacity logic of its own, and a rejected or
  cancelled request leaves the catalog and ledger untouched.

REQUEST FLOW:
  submit -> PENDING -> approve  -> engine transaction -> APPROVED
                    -> reject   -> REJECTED (no engine call)
                    -> cancel   -> CANCELLED (no engine call)

  Approval and the engine transaction are not atomic with each other by
  design: if the engine rejects (device claimed meanwhile, pool exhausted),
  the request stays PENDING and the decision error is surfaced to the
  approver, who retries against fresh state or rejects.

MAINTENANCE:
  A device in MAINTENANCE blocks new assignment (the engine refuses it) but
  never invalidates the return path of an existing ACTIVE assignment.

SEE ALSO:
  - engine.go: The operations this gate authorizes
  - store.go: RequestStore persistence contract
*/
package allocation

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// REQUESTS
// =============================================================================

type RequestKind string

const (
	RequestDevice  RequestKind = "device"
	RequestLicense RequestKind = "license"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) IsDecided() bool { return s != RequestPending }

// ResourceRequest asks for a resource to be allocated to the requester.
// Device requests name a category; the approver picks the concrete unit.
// License requests name the pool.
type ResourceRequest struct {
	ID       RequestID
	Kind     RequestKind
	HolderID EmployeeID

	Category DeviceCategory // device requests
	PoolID   PoolID         // license requests

	Justification string
	Status        RequestStatus

	AssignmentID    AssignmentID // set on approval
	DecidedBy       string
	DecidedAt       *time.Time
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReturnRequest asks for an existing ACTIVE assignment to be closed.
type ReturnRequest struct {
	ID           RequestID
	Kind         RequestKind
	HolderID     EmployeeID
	AssignmentID AssignmentID
	Reason       string
	Status       RequestStatus

	DecidedBy       string
	DecidedAt       *time.Time
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// GATE
// =============================================================================

type Gate struct {
	Store  RequestStore
	Engine *Engine
	Clock  func() time.Time
}

func NewGate(store RequestStore, engine *Engine) *Gate {
	return &Gate{Store: store, Engine: engine, Clock: time.Now}
}

// SubmitResourceRequestInput carries an employee's allocation request.
type SubmitResourceRequestInput struct {
	Kind          RequestKind
	HolderID      EmployeeID
	Category      DeviceCategory
	PoolID        PoolID
	Justification string
}

// SubmitResourceRequest records a PENDING request. No capacity is reserved;
// capacity is checked at approval time by the engine.
func (g *Gate) SubmitResourceRequest(ctx context.Context, in SubmitResourceRequestInput) (ResourceRequest, error) {
	if in.HolderID == "" {
		return ResourceRequest{}, &ValidationError{Field: "holder_id", Message: "must not be empty"}
	}
	switch in.Kind {
	case RequestDevice:
		if in.Category == "" {
			return ResourceRequest{}, &ValidationError{Field: "category", Message: "required for device requests"}
		}
	case RequestLicense:
		if in.PoolID == "" {
			return ResourceRequest{}, &ValidationError{Field: "pool_id", Message: "required for license requests"}
		}
	default:
		return ResourceRequest{}, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", in.Kind)}
	}

	now := g.Clock()
	req := ResourceRequest{
		ID:            RequestID(NewID("req")),
		Kind:          in.Kind,
		HolderID:      in.HolderID,
		Category:      in.Category,
		PoolID:        in.PoolID,
		Justification: in.Justification,
		Status:        RequestPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.Store.SaveResourceRequest(ctx, req); err != nil {
		return ResourceRequest{}, err
	}
	return req, nil
}

// ApprovalParams carries the approver-supplied allocation details.
type ApprovalParams struct {
	// DeviceID is the concrete unit picked by the approver for device requests.
	DeviceID DeviceID

	// StartDate/EndDate bound the seat for license requests.
	// StartDate defaults to the approval instant.
	StartDate time.Time
	EndDate   *time.Time
}

// ApproveResourceRequest performs the engine transaction and marks the
// request APPROVED. If the engine refuses (NotAvailable, CapacityExhausted),
// the request remains PENDING and the error is returned to the approver.
func (g *Gate) ApproveResourceRequest(ctx context.Context, id RequestID, approverID string, params ApprovalParams) (ResourceRequest, error) {
	req, err := g.Store.GetResourceRequest(ctx, id)
	if err != nil {
		return ResourceRequest{}, err
	}
	if req.Status.IsDecided() {
		return ResourceRequest{}, &InvalidTransitionError{
			Entity: "request", ID: string(id),
			From: string(req.Status), To: string(RequestApproved),
		}
	}

	// The request id doubles as the idempotency key: re-approving after a
	// timeout cannot double-allocate.
	switch req.Kind {
	case RequestDevice:
		if params.DeviceID == "" {
			return ResourceRequest{}, &ValidationError{Field: "device_id", Message: "approver must pick a device"}
		}
		asg, err := g.Engine.AssignDevice(ctx, AssignDeviceInput{
			DeviceID:       params.DeviceID,
			HolderID:       req.HolderID,
			Purpose:        req.Justification,
			IdempotencyKey: string(req.ID),
		})
		if err != nil {
			return ResourceRequest{}, err
		}
		req.AssignmentID = asg.ID
	case RequestLicense:
		start := params.StartDate
		if start.IsZero() {
			start = g.Clock()
		}
		asg, err := g.Engine.AssignLicense(ctx, AssignLicenseInput{
			PoolID:         req.PoolID,
			HolderID:       req.HolderID,
			Purpose:        req.Justification,
			StartDate:      start,
			EndDate:        params.EndDate,
			IdempotencyKey: string(req.ID),
		})
		if err != nil {
			return ResourceRequest{}, err
		}
		req.AssignmentID = asg.ID
	}

	now := g.Clock()
	req.Status = RequestApproved
	req.DecidedBy = approverID
	req.DecidedAt = &now
	req.UpdatedAt = now
	if err := g.Store.SaveResourceRequest(ctx, req); err != nil {
		return ResourceRequest{}, fmt.Errorf("record approval: %w", err)
	}
	return req, nil
}

// RejectResourceRequest marks a PENDING request REJECTED.
func (g *Gate) RejectResourceRequest(ctx context.Context, id RequestID, approverID, reason string) (ResourceRequest, error) {
	req, err := g.Store.GetResourceRequest(ctx, id)
	if err != nil {
		return ResourceRequest{}, err
	}
	if req.Status.IsDecided() {
		return ResourceRequest{}, &InvalidTransitionError{
			Entity: "request", ID: string(id),
			From: string(req.Status), To: string(RequestRejected),
		}
	}

	now := g.Clock()
	req.Status = RequestRejected
	req.DecidedBy = approverID
	req.RejectionReason = reason
	req.DecidedAt = &now
	req.UpdatedAt = now
	if err := g.Store.SaveResourceRequest(ctx, req); err != nil {
		return ResourceRequest{}, err
	}
	return req, nil
}

// CancelResourceRequest marks a PENDING request CANCELLED (requester action).
func (g *Gate) CancelResourceRequest(ctx context.Context, id RequestID) (ResourceRequest, error) {
	req, err := g.Store.GetResourceRequest(ctx, id)
	if err != nil {
		return ResourceRequest{}, err
	}
	if req.Status.IsDecided() {
		return ResourceRequest{}, &InvalidTransitionError{
			Entity: "request", ID: string(id),
			From: string(req.Status), To: string(RequestCancelled),
		}
	}

	now := g.Clock()
	req.Status = RequestCancelled
	req.DecidedAt = &now
	req.UpdatedAt = now
	if err := g.Store.SaveResourceRequest(ctx, req); err != nil {
		return ResourceRequest{}, err
	}
	return req, nil
}

// PendingResourceRequests lists requests awaiting a decision.
func (g *Gate) PendingResourceRequests(ctx context.Context) ([]ResourceRequest, error) {
	return g.Store.ListResourceRequestsByStatus(ctx, RequestPending)
}

// =============================================================================
// RETURN REQUESTS
// =============================================================================

// SubmitReturnRequest records a PENDING return of an assignment.
func (g *Gate) SubmitReturnRequest(ctx context.Context, kind RequestKind, holder EmployeeID, assignment AssignmentID, reason string) (ReturnRequest, error) {
	if holder == "" {
		return ReturnRequest{}, &ValidationError{Field: "holder_id", Message: "must not be empty"}
	}
	if assignment == "" {
		return ReturnRequest{}, &ValidationError{Field: "assignment_id", Message: "must not be empty"}
	}
	if kind != RequestDevice && kind != RequestLicense {
		return ReturnRequest{}, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", kind)}
	}

	now := g.Clock()
	req := ReturnRequest{
		ID:           RequestID(NewID("ret")),
		Kind:         kind,
		HolderID:     holder,
		AssignmentID: assignment,
		Reason:       reason,
		Status:       RequestPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := g.Store.SaveReturnRequest(ctx, req); err != nil {
		return ReturnRequest{}, err
	}
	return req, nil
}

// ApproveReturnRequest closes the assignment through the engine and marks
// the request APPROVED. Works regardless of an out-of-band MAINTENANCE
// status on the device; the administrative status survives the return.
func (g *Gate) ApproveReturnRequest(ctx context.Context, id RequestID, approverID string) (ReturnRequest, error) {
	req, err := g.Store.GetReturnRequest(ctx, id)
	if err != nil {
		return ReturnRequest{}, err
	}
	if req.Status.IsDecided() {
		return ReturnRequest{}, &InvalidTransitionError{
			Entity: "request", ID: string(id),
			From: string(req.Status), To: string(RequestApproved),
		}
	}

	now := g.Clock()
	switch req.Kind {
	case RequestDevice:
		if _, err := g.Engine.ReturnDevice(ctx, req.AssignmentID, now); err != nil {
			return ReturnRequest{}, err
		}
	case RequestLicense:
		if _, err := g.Engine.ReturnLicense(ctx, req.AssignmentID, now, AssignmentReturned); err != nil {
			return ReturnRequest{}, err
		}
	}

	req.Status = RequestApproved
	req.DecidedBy = approverID
	req.DecidedAt = &now
	req.UpdatedAt = now
	if err := g.Store.SaveReturnRequest(ctx, req); err != nil {
		return ReturnRequest{}, fmt.Errorf("record approval: %w", err)
	}
	return req, nil
}

// RejectReturnRequest marks a PENDING return request REJECTED.
func (g *Gate) RejectReturnRequest(ctx context.Context, id RequestID, approverID, reason string) (ReturnRequest, error) {
	req, err := g.Store.GetReturnRequest(ctx, id)
	if err != nil {
		return ReturnRequest{}, err
	}
	if req.Status.IsDecided() {
		return ReturnRequest{}, &InvalidTransitionError{
			Entity: "request", ID: string(id),
			From: string(req.Status), To: string(RequestRejected),
		}
	}

	now := g.Clock()
	req.Status = RequestRejected
	req.DecidedBy = approverID
	req.RejectionReason = reason
	req.DecidedAt = &now
	req.UpdatedAt = now
	if err := g.Store.SaveReturnRequest(ctx, req); err != nil {
		return ReturnRequest{}, err
	}
	return req, nil
}

// PendingReturnRequests lists return requests awaiting a decision.
func (g *Gate) PendingReturnRequests(ctx context.Context) ([]ReturnRequest, error) {
	return g.Store.ListReturnRequestsByStatus(ctx, RequestPending)
}
