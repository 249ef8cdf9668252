/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Catalog:
    DeviceDTO, RegisterDeviceRequest, SetDeviceStatusRequest
    PoolDTO, RegisterPoolRequest, AddSeatsRequest

  Ledger:
    DeviceAssignmentDTO, LicenseAssignmentDTO
    AssignDeviceRequest, AssignLicenseRequest, CloseAssignmentRequest

  Requests:
    ResourceRequestDTO, ReturnRequestDTO
    SubmitRequestRequest, DecideRequestRequest

  Alerts:
    AlertDTO

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - allocation/types.go: The domain types these mirror
*/
package api

import (
	"time"

	"github.com/warp/asset-engine/allocation"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

// DeviceDTO represents a device in API responses.
type DeviceDTO struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Manufacturer   string `json:"manufacturer,omitempty"`
	Model          string `json:"model"`
	Serial         string `json:"serial"`
	PurchaseDate   string `json:"purchase_date,omitempty"`
	WarrantyExpiry string `json:"warranty_expiry,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// RegisterDeviceRequest is the request to register a device.
type RegisterDeviceRequest struct {
	Category       string `json:"category"`
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	Serial         string `json:"serial"`
	PurchaseDate   string `json:"purchase_date"`   // YYYY-MM-DD
	WarrantyExpiry string `json:"warranty_expiry"` // YYYY-MM-DD
}

// SetDeviceStatusRequest is the request for an administrative transition.
type SetDeviceStatusRequest struct {
	Status string `json:"status"` // available | maintenance | disposed
}

// PoolDTO represents a license pool in API responses.
type PoolDTO struct {
	ID             string `json:"id"`
	Software       string `json:"software"`
	LicenseType    string `json:"license_type,omitempty"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
	AssignedSeats  int    `json:"assigned_seats"`
	Pricing        string `json:"pricing,omitempty"`
	UnitPrice      string `json:"unit_price"`
	TotalValue     string `json:"total_value"`
	ExpiresAt      string `json:"expires_at"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// RegisterPoolRequest is the request to register a license pool.
type RegisterPoolRequest struct {
	Software    string `json:"software"`
	LicenseType string `json:"license_type"`
	TotalSeats  int    `json:"total_seats"`
	Pricing     string `json:"pricing"`
	UnitPrice   string `json:"unit_price"` // decimal string, e.g. "120.50"
	ExpiresAt   string `json:"expires_at"` // YYYY-MM-DD
}

// AddSeatsRequest is the request to grow a pool.
type AddSeatsRequest struct {
	Delta int `json:"delta"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// DeviceAssignmentDTO represents one device allocation episode.
type DeviceAssignmentDTO struct {
	ID            string  `json:"id"`
	DeviceID      string  `json:"device_id"`
	HolderID      string  `json:"holder_id"`
	AssignedAt    string  `json:"assigned_at"`
	PlannedReturn *string `json:"planned_return,omitempty"`
	Purpose       string  `json:"purpose,omitempty"`
	Status        string  `json:"status"`
	ClosedAt      *string `json:"closed_at,omitempty"`
}

// LicenseAssignmentDTO represents one held seat.
type LicenseAssignmentDTO struct {
	ID        string  `json:"id"`
	PoolID    string  `json:"pool_id"`
	HolderID  string  `json:"holder_id"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
	Purpose   string  `json:"purpose,omitempty"`
	Status    string  `json:"status"`
	ClosedAt  *string `json:"closed_at,omitempty"`
}

// AssignDeviceRequest is the direct (non-gated) device assignment request.
type AssignDeviceRequest struct {
	DeviceID       string  `json:"device_id"`
	HolderID       string  `json:"holder_id"`
	Purpose        string  `json:"purpose"`
	PlannedReturn  *string `json:"planned_return,omitempty"` // YYYY-MM-DD
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// AssignLicenseRequest is the direct (non-gated) seat claim request.
type AssignLicenseRequest struct {
	PoolID         string  `json:"pool_id"`
	HolderID       string  `json:"holder_id"`
	Purpose        string  `json:"purpose"`
	StartDate      string  `json:"start_date"`         // YYYY-MM-DD
	EndDate        *string `json:"end_date,omitempty"` // YYYY-MM-DD
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// HolderAssignmentsDTO bundles everything an employee holds or has held.
type HolderAssignmentsDTO struct {
	HolderID string                 `json:"holder_id"`
	Devices  []DeviceAssignmentDTO  `json:"devices"`
	Licenses []LicenseAssignmentDTO `json:"licenses"`
}

// =============================================================================
// REQUEST GATE TYPES
// =============================================================================

// ResourceRequestDTO represents a pending or decided allocation request.
type ResourceRequestDTO struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	HolderID        string  `json:"holder_id"`
	Category        string  `json:"category,omitempty"`
	PoolID          string  `json:"pool_id,omitempty"`
	Justification   string  `json:"justification,omitempty"`
	Status          string  `json:"status"`
	AssignmentID    string  `json:"assignment_id,omitempty"`
	DecidedBy       string  `json:"decided_by,omitempty"`
	DecidedAt       *string `json:"decided_at,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// ReturnRequestDTO represents a pending or decided return request.
type ReturnRequestDTO struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	HolderID        string  `json:"holder_id"`
	AssignmentID    string  `json:"assignment_id"`
	Reason          string  `json:"reason,omitempty"`
	Status          string  `json:"status"`
	DecidedBy       string  `json:"decided_by,omitempty"`
	DecidedAt       *string `json:"decided_at,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// SubmitRequestRequest is an employee's allocation request.
type SubmitRequestRequest struct {
	Kind          string `json:"kind"` // device | license
	HolderID      string `json:"holder_id"`
	Category      string `json:"category,omitempty"`
	PoolID        string `json:"pool_id,omitempty"`
	Justification string `json:"justification"`
}

// ApproveRequestRequest carries the approver-supplied allocation details.
type ApproveRequestRequest struct {
	ApproverID string  `json:"approver_id"`
	DeviceID   string  `json:"device_id,omitempty"`  // device requests
	StartDate  string  `json:"start_date,omitempty"` // license requests, YYYY-MM-DD
	EndDate    *string `json:"end_date,omitempty"`
}

// RejectRequestRequest carries a rejection decision.
type RejectRequestRequest struct {
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason"`
}

// SubmitReturnRequest is an employee's return request.
type SubmitReturnRequest struct {
	Kind         string `json:"kind"` // device | license
	HolderID     string `json:"holder_id"`
	AssignmentID string `json:"assignment_id"`
	Reason       string `json:"reason"`
}

// DecideReturnRequest carries an approve/reject decision on a return.
type DecideReturnRequest struct {
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason,omitempty"`
}

// =============================================================================
// ALERT TYPES
// =============================================================================

// AlertDTO represents one expiry alert.
type AlertDTO struct {
	Kind            string `json:"kind"`
	ResourceID      string `json:"resource_id"`
	AssignmentID    string `json:"assignment_id,omitempty"`
	HolderID        string `json:"holder_id,omitempty"`
	Severity        string `json:"severity"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
	ExpiresAt       string `json:"expires_at"`
}

// SweepResultDTO is the result of a manual expiry sweep.
type SweepResultDTO struct {
	SweptCount int                    `json:"swept_count"`
	Swept      []LicenseAssignmentDTO `json:"swept"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func fmtDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toDeviceDTO(d allocation.Device) DeviceDTO {
	return DeviceDTO{
		ID:             string(d.ID),
		Category:       string(d.Category),
		Manufacturer:   d.Manufacturer,
		Model:          d.Model,
		Serial:         d.Serial,
		PurchaseDate:   d.PurchaseDate.Format("2006-01-02"),
		WarrantyExpiry: d.WarrantyExpiry.Format("2006-01-02"),
		Status:         string(d.Status),
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
	}
}

func toPoolDTO(p allocation.LicensePool) PoolDTO {
	return PoolDTO{
		ID:             string(p.ID),
		Software:       p.Software,
		LicenseType:    p.LicenseType,
		TotalSeats:     p.TotalSeats,
		AvailableSeats: p.AvailableSeats,
		AssignedSeats:  p.AssignedSeats(),
		Pricing:        string(p.Pricing),
		UnitPrice:      p.UnitPrice.StringFixed(2),
		TotalValue:     p.Value().StringFixed(2),
		ExpiresAt:      p.ExpiresAt.Format(time.RFC3339),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
}

func toDeviceAssignmentDTO(a allocation.DeviceAssignment) DeviceAssignmentDTO {
	return DeviceAssignmentDTO{
		ID:            string(a.ID),
		DeviceID:      string(a.DeviceID),
		HolderID:      string(a.HolderID),
		AssignedAt:    a.AssignedAt.Format(time.RFC3339),
		PlannedReturn: fmtDatePtr(a.PlannedReturn),
		Purpose:       a.Purpose,
		Status:        string(a.Status),
		ClosedAt:      fmtDatePtr(a.ClosedAt),
	}
}

func toLicenseAssignmentDTO(a allocation.LicenseAssignment) LicenseAssignmentDTO {
	return LicenseAssignmentDTO{
		ID:        string(a.ID),
		PoolID:    string(a.PoolID),
		HolderID:  string(a.HolderID),
		StartDate: a.StartDate.Format(time.RFC3339),
		EndDate:   fmtDatePtr(a.EndDate),
		Purpose:   a.Purpose,
		Status:    string(a.Status),
		ClosedAt:  fmtDatePtr(a.ClosedAt),
	}
}

func toLicenseAssignmentDTOs(asgs []allocation.LicenseAssignment) []LicenseAssignmentDTO {
	dtos := make([]LicenseAssignmentDTO, len(asgs))
	for i, a := range asgs {
		dtos[i] = toLicenseAssignmentDTO(a)
	}
	return dtos
}

func toResourceRequestDTO(r allocation.ResourceRequest) ResourceRequestDTO {
	return ResourceRequestDTO{
		ID:              string(r.ID),
		Kind:            string(r.Kind),
		HolderID:        string(r.HolderID),
		Category:        string(r.Category),
		PoolID:          string(r.PoolID),
		Justification:   r.Justification,
		Status:          string(r.Status),
		AssignmentID:    string(r.AssignmentID),
		DecidedBy:       r.DecidedBy,
		DecidedAt:       fmtDatePtr(r.DecidedAt),
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
}

func toReturnRequestDTO(r allocation.ReturnRequest) ReturnRequestDTO {
	return ReturnRequestDTO{
		ID:              string(r.ID),
		Kind:            string(r.Kind),
		HolderID:        string(r.HolderID),
		AssignmentID:    string(r.AssignmentID),
		Reason:          r.Reason,
		Status:          string(r.Status),
		DecidedBy:       r.DecidedBy,
		DecidedAt:       fmtDatePtr(r.DecidedAt),
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
}

func toAlertDTO(a allocation.Alert) AlertDTO {
	return AlertDTO{
		Kind:            string(a.Kind),
		ResourceID:      a.ResourceID,
		AssignmentID:    string(a.AssignmentID),
		HolderID:        string(a.HolderID),
		Severity:        string(a.Severity),
		DaysUntilExpiry: a.DaysUntilExpiry,
		ExpiresAt:       a.ExpiresAt.Format(time.RFC3339),
	}
}
