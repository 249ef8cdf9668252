/*
handlers.go - HTTP API handlers for the asset allocation engine

PURPOSE:
  Exposes the allocation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Devices:
    GET    /api/devices                 List devices
    POST   /api/devices                 Register device
    GET    /api/devices/{id}            Get device + active assignment
    POST   /api/devices/{id}/status     Administrative status transition

  Pools:
    GET    /api/pools                   List license pools
    POST   /api/pools                   Register pool
    GET    /api/pools/{id}              Get pool + active assignments
    POST   /api/pools/{id}/seats        Add purchased seats

  Assignments (direct, admin-driven):
    POST   /api/assignments/devices             Assign device
    POST   /api/assignments/devices/{id}/return Return device
    POST   /api/assignments/licenses            Claim seat
    POST   /api/assignments/licenses/{id}/return  Return seat
    POST   /api/assignments/licenses/{id}/revoke  Revoke seat
    GET    /api/assignments/holders/{id}        Everything a holder has

  Requests (employee-driven gate):
    POST   /api/requests                Submit allocation request
    GET    /api/requests/pending        Pending allocation requests
    POST   /api/requests/{id}/approve   Approve (engine transaction)
    POST   /api/requests/{id}/reject    Reject
    POST   /api/requests/{id}/cancel    Cancel (requester)
    POST   /api/requests/returns              Submit return request
    GET    /api/requests/returns/pending      Pending return requests
    POST   /api/requests/returns/{id}/approve Approve return
    POST   /api/requests/returns/{id}/reject  Reject return

  Monitoring:
    GET    /api/alerts?horizon=30       Expiry alerts within horizon
    POST   /api/admin/sweep             Close expired assignments now

ERROR HANDLING:
  Domain errors map to HTTP status by category:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict, not available, capacity exhausted (retryable)
  - 422: Invalid lifecycle transition
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/asset-engine/allocation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog *allocation.Catalog
	Engine  *allocation.Engine
	Gate    *allocation.Gate
	Monitor *allocation.Monitor
	Store   allocation.Store
	Logger  *slog.Logger

	// DefaultHorizonDays bounds the alert scan when the client omits one.
	DefaultHorizonDays int
}

// NewHandler creates a handler wired to the domain components.
func NewHandler(catalog *allocation.Catalog, engine *allocation.Engine, gate *allocation.Gate, monitor *allocation.Monitor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Catalog:            catalog,
		Engine:             engine,
		Gate:               gate,
		Monitor:            monitor,
		Store:              engine.Store,
		Logger:             logger,
		DefaultHorizonDays: 30,
	}
}

// =============================================================================
// DEVICE HANDLERS
// =============================================================================

// ListDevices returns all devices in the catalog.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Store.ListDevices(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list devices", err)
		return
	}

	dtos := make([]DeviceDTO, len(devices))
	for i, d := range devices {
		dtos[i] = toDeviceDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterDevice registers a device in AVAILABLE status.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	purchase, err := parseDate(req.PurchaseDate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid purchase_date format (use YYYY-MM-DD)", err)
		return
	}
	warranty, err := parseDate(req.WarrantyExpiry)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid warranty_expiry format (use YYYY-MM-DD)", err)
		return
	}

	dev, err := h.Catalog.RegisterDevice(r.Context(), allocation.DeviceSpec{
		Category:       allocation.DeviceCategory(req.Category),
		Manufacturer:   req.Manufacturer,
		Model:          req.Model,
		Serial:         req.Serial,
		PurchaseDate:   purchase,
		WarrantyExpiry: warranty,
	})
	if err != nil {
		h.writeError(w, "Failed to register device", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeviceDTO(dev))
}

// GetDevice returns a device and, if present, its active assignment.
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id := allocation.DeviceID(chi.URLParam(r, "id"))

	dev, err := h.Store.GetDevice(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get device", err)
		return
	}

	resp := struct {
		DeviceDTO
		ActiveAssignment *DeviceAssignmentDTO `json:"active_assignment,omitempty"`
	}{DeviceDTO: toDeviceDTO(dev)}

	if asg, found, err := h.Store.ActiveDeviceAssignment(r.Context(), id); err != nil {
		h.writeError(w, "Failed to query active assignment", err)
		return
	} else if found {
		dto := toDeviceAssignmentDTO(asg)
		resp.ActiveAssignment = &dto
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetDeviceStatus performs an administrative transition
// (available/maintenance/disposed).
func (h *Handler) SetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := allocation.DeviceID(chi.URLParam(r, "id"))

	var req SetDeviceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	dev, err := h.Catalog.SetDeviceStatus(r.Context(), id, allocation.DeviceStatus(req.Status))
	if err != nil {
		h.writeError(w, "Failed to set device status", err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceDTO(dev))
}

// =============================================================================
// POOL HANDLERS
// =============================================================================

// ListPools returns all license pools.
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.Store.ListPools(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list pools", err)
		return
	}

	dtos := make([]PoolDTO, len(pools))
	for i, p := range pools {
		dtos[i] = toPoolDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterPool registers a license pool with all seats available.
func (h *Handler) RegisterPool(w http.ResponseWriter, r *http.Request) {
	var req RegisterPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	expires, err := parseDate(req.ExpiresAt)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid expires_at format (use YYYY-MM-DD)", err)
		return
	}
	price := decimal.Zero
	if req.UnitPrice != "" {
		price, err = decimal.NewFromString(req.UnitPrice)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid unit_price (use a decimal string)", err)
			return
		}
	}

	pool, err := h.Catalog.RegisterLicensePool(r.Context(), allocation.LicensePoolSpec{
		Software:    req.Software,
		LicenseType: req.LicenseType,
		TotalSeats:  req.TotalSeats,
		Pricing:     allocation.PricingModel(req.Pricing),
		UnitPrice:   price,
		ExpiresAt:   expires,
	})
	if err != nil {
		h.writeError(w, "Failed to register pool", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPoolDTO(pool))
}

// GetPool returns a pool and its active assignments.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	id := allocation.PoolID(chi.URLParam(r, "id"))

	pool, err := h.Store.GetPool(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get pool", err)
		return
	}
	actives, err := h.Store.ListActiveLicenseAssignments(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to list active assignments", err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		PoolDTO
		ActiveAssignments []LicenseAssignmentDTO `json:"active_assignments"`
	}{
		PoolDTO:           toPoolDTO(pool),
		ActiveAssignments: toLicenseAssignmentDTOs(actives),
	})
}

// AddSeats grows a pool by newly purchased seats.
func (h *Handler) AddSeats(w http.ResponseWriter, r *http.Request) {
	id := allocation.PoolID(chi.URLParam(r, "id"))

	var req AddSeatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pool, err := h.Catalog.IncreaseLicenseTotal(r.Context(), id, req.Delta)
	if err != nil {
		h.writeError(w, "Failed to add seats", err)
		return
	}

	writeJSON(w, http.StatusOK, toPoolDTO(pool))
}

// =============================================================================
// ASSIGNMENT HANDLERS (direct, admin-driven)
// =============================================================================

// AssignDevice claims an AVAILABLE device for a holder.
func (h *Handler) AssignDevice(w http.ResponseWriter, r *http.Request) {
	var req AssignDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	planned, err := parseDatePtr(req.PlannedReturn)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid planned_return format (use YYYY-MM-DD)", err)
		return
	}

	asg, err := h.Engine.AssignDevice(r.Context(), allocation.AssignDeviceInput{
		DeviceID:       allocation.DeviceID(req.DeviceID),
		HolderID:       allocation.EmployeeID(req.HolderID),
		Purpose:        req.Purpose,
		PlannedReturn:  planned,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeError(w, "Failed to assign device", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeviceAssignmentDTO(asg))
}

// ReturnDevice closes an active device assignment.
func (h *Handler) ReturnDevice(w http.ResponseWriter, r *http.Request) {
	id := allocation.AssignmentID(chi.URLParam(r, "id"))

	asg, err := h.Engine.ReturnDevice(r.Context(), id, time.Now())
	if err != nil {
		h.writeError(w, "Failed to return device", err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceAssignmentDTO(asg))
}

// AssignLicense claims one pool seat for a holder.
func (h *Handler) AssignLicense(w http.ResponseWriter, r *http.Request) {
	var req AssignLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := parseDatePtr(req.EndDate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	asg, err := h.Engine.AssignLicense(r.Context(), allocation.AssignLicenseInput{
		PoolID:         allocation.PoolID(req.PoolID),
		HolderID:       allocation.EmployeeID(req.HolderID),
		Purpose:        req.Purpose,
		StartDate:      start,
		EndDate:        end,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeError(w, "Failed to assign license", err)
		return
	}

	writeJSON(w, http.StatusCreated, toLicenseAssignmentDTO(asg))
}

// ReturnLicense closes an active seat as RETURNED and frees it.
func (h *Handler) ReturnLicense(w http.ResponseWriter, r *http.Request) {
	h.closeLicense(w, r, allocation.AssignmentReturned)
}

// RevokeLicense closes an active seat as REVOKED and frees it.
func (h *Handler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	h.closeLicense(w, r, allocation.AssignmentRevoked)
}

func (h *Handler) closeLicense(w http.ResponseWriter, r *http.Request, reason allocation.AssignmentStatus) {
	id := allocation.AssignmentID(chi.URLParam(r, "id"))

	asg, err := h.Engine.ReturnLicense(r.Context(), id, time.Now(), reason)
	if err != nil {
		h.writeError(w, "Failed to close license assignment", err)
		return
	}

	writeJSON(w, http.StatusOK, toLicenseAssignmentDTO(asg))
}

// GetHolderAssignments returns everything an employee holds or has held.
func (h *Handler) GetHolderAssignments(w http.ResponseWriter, r *http.Request) {
	holder := allocation.EmployeeID(chi.URLParam(r, "id"))

	devices, err := h.Store.ListDeviceAssignmentsForHolder(r.Context(), holder)
	if err != nil {
		h.writeError(w, "Failed to list device assignments", err)
		return
	}
	licenses, err := h.Store.ListLicenseAssignmentsForHolder(r.Context(), holder)
	if err != nil {
		h.writeError(w, "Failed to list license assignments", err)
		return
	}

	devDTOs := make([]DeviceAssignmentDTO, len(devices))
	for i, a := range devices {
		devDTOs[i] = toDeviceAssignmentDTO(a)
	}

	writeJSON(w, http.StatusOK, HolderAssignmentsDTO{
		HolderID: string(holder),
		Devices:  devDTOs,
		Licenses: toLicenseAssignmentDTOs(licenses),
	})
}

// =============================================================================
// REQUEST GATE HANDLERS
// =============================================================================

// SubmitRequest records a PENDING allocation request. No capacity is reserved.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rr, err := h.Gate.SubmitResourceRequest(r.Context(), allocation.SubmitResourceRequestInput{
		Kind:          allocation.RequestKind(req.Kind),
		HolderID:      allocation.EmployeeID(req.HolderID),
		Category:      allocation.DeviceCategory(req.Category),
		PoolID:        allocation.PoolID(req.PoolID),
		Justification: req.Justification,
	})
	if err != nil {
		h.writeError(w, "Failed to submit request", err)
		return
	}

	writeJSON(w, http.StatusCreated, toResourceRequestDTO(rr))
}

// ListPendingRequests returns allocation requests awaiting a decision.
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Gate.PendingResourceRequests(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list pending requests", err)
		return
	}

	dtos := make([]ResourceRequestDTO, len(reqs))
	for i, rr := range reqs {
		dtos[i] = toResourceRequestDTO(rr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveRequest runs the engine transaction for a PENDING request. If the
// engine refuses, the request stays PENDING and the refusal is surfaced.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id := allocation.RequestID(chi.URLParam(r, "id"))

	var req ApproveRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var start time.Time
	if req.StartDate != "" {
		var err error
		start, err = parseDate(req.StartDate)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
	}
	end, err := parseDatePtr(req.EndDate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	rr, err := h.Gate.ApproveResourceRequest(r.Context(), id, req.ApproverID, allocation.ApprovalParams{
		DeviceID:  allocation.DeviceID(req.DeviceID),
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		h.writeError(w, "Failed to approve request", err)
		return
	}

	writeJSON(w, http.StatusOK, toResourceRequestDTO(rr))
}

// RejectRequest marks a PENDING request REJECTED.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id := allocation.RequestID(chi.URLParam(r, "id"))

	var req RejectRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rr, err := h.Gate.RejectResourceRequest(r.Context(), id, req.ApproverID, req.Reason)
	if err != nil {
		h.writeError(w, "Failed to reject request", err)
		return
	}

	writeJSON(w, http.StatusOK, toResourceRequestDTO(rr))
}

// CancelRequest marks a PENDING request CANCELLED (requester action).
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := allocation.RequestID(chi.URLParam(r, "id"))

	rr, err := h.Gate.CancelResourceRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to cancel request", err)
		return
	}

	writeJSON(w, http.StatusOK, toResourceRequestDTO(rr))
}

// SubmitReturn records a PENDING return of an assignment.
func (h *Handler) SubmitReturn(w http.ResponseWriter, r *http.Request) {
	var req SubmitReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rr, err := h.Gate.SubmitReturnRequest(r.Context(),
		allocation.RequestKind(req.Kind),
		allocation.EmployeeID(req.HolderID),
		allocation.AssignmentID(req.AssignmentID),
		req.Reason,
	)
	if err != nil {
		h.writeError(w, "Failed to submit return request", err)
		return
	}

	writeJSON(w, http.StatusCreated, toReturnRequestDTO(rr))
}

// ListPendingReturns returns return requests awaiting a decision.
func (h *Handler) ListPendingReturns(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Gate.PendingReturnRequests(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list pending returns", err)
		return
	}

	dtos := make([]ReturnRequestDTO, len(reqs))
	for i, rr := range reqs {
		dtos[i] = toReturnRequestDTO(rr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveReturn closes the assignment through the engine and marks the
// request APPROVED.
func (h *Handler) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	id := allocation.RequestID(chi.URLParam(r, "id"))

	var req DecideReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rr, err := h.Gate.ApproveReturnRequest(r.Context(), id, req.ApproverID)
	if err != nil {
		h.writeError(w, "Failed to approve return", err)
		return
	}

	writeJSON(w, http.StatusOK, toReturnRequestDTO(rr))
}

// RejectReturn marks a PENDING return request REJECTED.
func (h *Handler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	id := allocation.RequestID(chi.URLParam(r, "id"))

	var req DecideReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rr, err := h.Gate.RejectReturnRequest(r.Context(), id, req.ApproverID, req.Reason)
	if err != nil {
		h.writeError(w, "Failed to reject return", err)
		return
	}

	writeJSON(w, http.StatusOK, toReturnRequestDTO(rr))
}

// =============================================================================
// MONITORING HANDLERS
// =============================================================================

// ListAlerts scans for expiry alerts within the requested horizon.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	horizon := h.DefaultHorizonDays
	if v := r.URL.Query().Get("horizon"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid horizon (use a non-negative day count)", err)
			return
		}
		horizon = parsed
	}

	alerts, err := h.Monitor.Scan(r.Context(), time.Now(), horizon)
	if err != nil {
		h.writeError(w, "Failed to scan for alerts", err)
		return
	}

	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = toAlertDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerSweep closes all expired license assignments immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := h.Engine.SweepExpired(r.Context(), time.Now())
	if err != nil {
		h.writeError(w, "Failed to sweep expired assignments", err)
		return
	}

	h.Logger.Info("manual expiry sweep completed", "swept", len(swept))
	writeJSON(w, http.StatusOK, SweepResultDTO{
		SweptCount: len(swept),
		Swept:      toLicenseAssignmentDTOs(swept),
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case allocation.IsNotFound(err):
		return http.StatusNotFound
	case allocation.IsRetryable(err), errors.Is(err, allocation.ErrConflict):
		// Not-available, capacity exhausted, conflicting active assignment:
		// retry against fresh state.
		return http.StatusConflict
	case errors.Is(err, allocation.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case allocation.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error to a status and logs server faults.
func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, "error", err)
	}
	writeJSONError(w, status, message, err)
}

func writeJSONError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
