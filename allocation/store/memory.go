// Package store provides in-memory Store implementations for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/asset-engine/allocation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	devices     map[allocation.DeviceID]allocation.Device
	pools       map[allocation.PoolID]allocation.LicensePool
	deviceAsgs  map[allocation.AssignmentID]allocation.DeviceAssignment
	licenseAsgs map[allocation.AssignmentID]allocation.LicenseAssignment

	resourceReqs map[allocation.RequestID]allocation.ResourceRequest
	returnReqs   map[allocation.RequestID]allocation.ReturnRequest
}

func NewMemory() *Memory {
	return &Memory{
		devices:      make(map[allocation.DeviceID]allocation.Device),
		pools:        make(map[allocation.PoolID]allocation.LicensePool),
		deviceAsgs:   make(map[allocation.AssignmentID]allocation.DeviceAssignment),
		licenseAsgs:  make(map[allocation.AssignmentID]allocation.LicenseAssignment),
		resourceReqs: make(map[allocation.RequestID]allocation.ResourceRequest),
		returnReqs:   make(map[allocation.RequestID]allocation.ReturnRequest),
	}
}

// =============================================================================
// DEVICES
// =============================================================================

func (m *Memory) SaveDevice(_ context.Context, d allocation.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveDeviceLocked(d)
}

func (m *Memory) saveDeviceLocked(d allocation.Device) error {
	m.devices[d.ID] = d
	return nil
}

func (m *Memory) GetDevice(_ context.Context, id allocation.DeviceID) (allocation.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDeviceLocked(id)
}

func (m *Memory) getDeviceLocked(id allocation.DeviceID) (allocation.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return allocation.Device{}, allocation.ErrDeviceNotFound
	}
	return d, nil
}

func (m *Memory) FindDeviceBySerial(_ context.Context, serial string) (allocation.Device, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findDeviceBySerialLocked(serial)
}

func (m *Memory) findDeviceBySerialLocked(serial string) (allocation.Device, bool, error) {
	for _, d := range m.devices {
		if d.Serial == serial {
			return d, true, nil
		}
	}
	return allocation.Device{}, false, nil
}

func (m *Memory) ListDevices(_ context.Context) ([]allocation.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDevicesLocked()
}

func (m *Memory) listDevicesLocked() ([]allocation.Device, error) {
	out := make([]allocation.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// LICENSE POOLS
// =============================================================================

func (m *Memory) SavePool(_ context.Context, p allocation.LicensePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePoolLocked(p)
}

func (m *Memory) savePoolLocked(p allocation.LicensePool) error {
	m.pools[p.ID] = p
	return nil
}

func (m *Memory) GetPool(_ context.Context, id allocation.PoolID) (allocation.LicensePool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPoolLocked(id)
}

func (m *Memory) getPoolLocked(id allocation.PoolID) (allocation.LicensePool, error) {
	p, ok := m.pools[id]
	if !ok {
		return allocation.LicensePool{}, allocation.ErrPoolNotFound
	}
	return p, nil
}

func (m *Memory) ListPools(_ context.Context) ([]allocation.LicensePool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPoolsLocked()
}

func (m *Memory) listPoolsLocked() ([]allocation.LicensePool, error) {
	out := make([]allocation.LicensePool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GrowPool(_ context.Context, id allocation.PoolID, delta int) (allocation.LicensePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.growPoolLocked(id, delta)
}

func (m *Memory) growPoolLocked(id allocation.PoolID, delta int) (allocation.LicensePool, error) {
	p, ok := m.pools[id]
	if !ok {
		return allocation.LicensePool{}, allocation.ErrPoolNotFound
	}
	p.TotalSeats += delta
	p.AvailableSeats += delta
	p.UpdatedAt = time.Now().UTC()
	m.pools[id] = p
	return p, nil
}

func (m *Memory) ClaimSeat(_ context.Context, id allocation.PoolID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimSeatLocked(id)
}

func (m *Memory) claimSeatLocked(id allocation.PoolID) error {
	p, ok := m.pools[id]
	if !ok {
		return allocation.ErrPoolNotFound
	}
	if p.AvailableSeats <= 0 {
		return &allocation.CapacityExhaustedError{PoolID: id, TotalSeats: p.TotalSeats}
	}
	p.AvailableSeats--
	m.pools[id] = p
	return nil
}

func (m *Memory) ReleaseSeat(_ context.Context, id allocation.PoolID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseSeatLocked(id)
}

func (m *Memory) releaseSeatLocked(id allocation.PoolID) error {
	p, ok := m.pools[id]
	if !ok {
		return allocation.ErrPoolNotFound
	}
	// Clamped: a stray double release can never push available past total.
	if p.AvailableSeats < p.TotalSeats {
		p.AvailableSeats++
	}
	m.pools[id] = p
	return nil
}

// =============================================================================
// DEVICE ASSIGNMENTS
// =============================================================================

func (m *Memory) AppendDeviceAssignment(_ context.Context, a allocation.DeviceAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendDeviceAssignmentLocked(a)
}

func (m *Memory) appendDeviceAssignmentLocked(a allocation.DeviceAssignment) error {
	for _, existing := range m.deviceAsgs {
		if existing.DeviceID == a.DeviceID && existing.Status == allocation.AssignmentActive {
			return &allocation.ConflictError{DeviceID: a.DeviceID, ExistingID: existing.ID}
		}
		if a.IdempotencyKey != "" && existing.IdempotencyKey == a.IdempotencyKey {
			return allocation.ErrDuplicateIdempotencyKey
		}
	}
	m.deviceAsgs[a.ID] = a
	return nil
}

func (m *Memory) GetDeviceAssignment(_ context.Context, id allocation.AssignmentID) (allocation.DeviceAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDeviceAssignmentLocked(id)
}

func (m *Memory) getDeviceAssignmentLocked(id allocation.AssignmentID) (allocation.DeviceAssignment, error) {
	a, ok := m.deviceAsgs[id]
	if !ok {
		return allocation.DeviceAssignment{}, allocation.ErrAssignmentNotFound
	}
	return a, nil
}

func (m *Memory) CloseDeviceAssignment(_ context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeDeviceAssignmentLocked(id, status, closedAt)
}

func (m *Memory) closeDeviceAssignmentLocked(id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	a, ok := m.deviceAsgs[id]
	if !ok {
		return allocation.ErrAssignmentNotFound
	}
	if a.Status.IsTerminal() {
		return &allocation.InvalidTransitionError{
			Entity: "assignment", ID: string(id),
			From: string(a.Status), To: string(status),
		}
	}
	a.Status = status
	a.ClosedAt = &closedAt
	m.deviceAsgs[id] = a
	return nil
}

func (m *Memory) ActiveDeviceAssignment(_ context.Context, id allocation.DeviceID) (allocation.DeviceAssignment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeDeviceAssignmentLocked(id)
}

func (m *Memory) activeDeviceAssignmentLocked(id allocation.DeviceID) (allocation.DeviceAssignment, bool, error) {
	for _, a := range m.deviceAsgs {
		if a.DeviceID == id && a.Status == allocation.AssignmentActive {
			return a, true, nil
		}
	}
	return allocation.DeviceAssignment{}, false, nil
}

func (m *Memory) ListDeviceAssignmentsForHolder(_ context.Context, holder allocation.EmployeeID) ([]allocation.DeviceAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDeviceAssignmentsForHolderLocked(holder)
}

func (m *Memory) listDeviceAssignmentsForHolderLocked(holder allocation.EmployeeID) ([]allocation.DeviceAssignment, error) {
	var out []allocation.DeviceAssignment
	for _, a := range m.deviceAsgs {
		if a.HolderID == holder {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindDeviceAssignmentByKey(_ context.Context, key string) (allocation.DeviceAssignment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findDeviceAssignmentByKeyLocked(key)
}

func (m *Memory) findDeviceAssignmentByKeyLocked(key string) (allocation.DeviceAssignment, bool, error) {
	for _, a := range m.deviceAsgs {
		if a.IdempotencyKey == key {
			return a, true, nil
		}
	}
	return allocation.DeviceAssignment{}, false, nil
}

// =============================================================================
// LICENSE ASSIGNMENTS
// =============================================================================

func (m *Memory) AppendLicenseAssignment(_ context.Context, a allocation.LicenseAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLicenseAssignmentLocked(a)
}

func (m *Memory) appendLicenseAssignmentLocked(a allocation.LicenseAssignment) error {
	if a.IdempotencyKey != "" {
		for _, existing := range m.licenseAsgs {
			if existing.IdempotencyKey == a.IdempotencyKey {
				return allocation.ErrDuplicateIdempotencyKey
			}
		}
	}
	m.licenseAsgs[a.ID] = a
	return nil
}

func (m *Memory) GetLicenseAssignment(_ context.Context, id allocation.AssignmentID) (allocation.LicenseAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLicenseAssignmentLocked(id)
}

func (m *Memory) getLicenseAssignmentLocked(id allocation.AssignmentID) (allocation.LicenseAssignment, error) {
	a, ok := m.licenseAsgs[id]
	if !ok {
		return allocation.LicenseAssignment{}, allocation.ErrAssignmentNotFound
	}
	return a, nil
}

func (m *Memory) CloseLicenseAssignment(_ context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLicenseAssignmentLocked(id, status, closedAt)
}

func (m *Memory) closeLicenseAssignmentLocked(id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	a, ok := m.licenseAsgs[id]
	if !ok {
		return allocation.ErrAssignmentNotFound
	}
	if a.Status.IsTerminal() {
		return &allocation.InvalidTransitionError{
			Entity: "assignment", ID: string(id),
			From: string(a.Status), To: string(status),
		}
	}
	a.Status = status
	a.ClosedAt = &closedAt
	m.licenseAsgs[id] = a
	return nil
}

func (m *Memory) ListActiveLicenseAssignments(_ context.Context, id allocation.PoolID) ([]allocation.LicenseAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLicenseAssignmentsLocked(id)
}

func (m *Memory) listActiveLicenseAssignmentsLocked(id allocation.PoolID) ([]allocation.LicenseAssignment, error) {
	var out []allocation.LicenseAssignment
	for _, a := range m.licenseAsgs {
		if a.PoolID == id && a.Status == allocation.AssignmentActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListExpiredActiveLicenseAssignments(_ context.Context, asOf time.Time) ([]allocation.LicenseAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpiredActiveLicenseAssignmentsLocked(asOf)
}

func (m *Memory) listExpiredActiveLicenseAssignmentsLocked(asOf time.Time) ([]allocation.LicenseAssignment, error) {
	var out []allocation.LicenseAssignment
	for _, a := range m.licenseAsgs {
		if a.Status != allocation.AssignmentActive {
			continue
		}
		p, ok := m.pools[a.PoolID]
		if !ok {
			continue
		}
		if !p.ExpiresAt.After(asOf) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListLicenseAssignmentsForHolder(_ context.Context, holder allocation.EmployeeID) ([]allocation.LicenseAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLicenseAssignmentsForHolderLocked(holder)
}

func (m *Memory) listLicenseAssignmentsForHolderLocked(holder allocation.EmployeeID) ([]allocation.LicenseAssignment, error) {
	var out []allocation.LicenseAssignment
	for _, a := range m.licenseAsgs {
		if a.HolderID == holder {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindLicenseAssignmentByKey(_ context.Context, key string) (allocation.LicenseAssignment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLicenseAssignmentByKeyLocked(key)
}

func (m *Memory) findLicenseAssignmentByKeyLocked(key string) (allocation.LicenseAssignment, bool, error) {
	for _, a := range m.licenseAsgs {
		if a.IdempotencyKey == key {
			return a, true, nil
		}
	}
	return allocation.LicenseAssignment{}, false, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) SaveResourceRequest(_ context.Context, r allocation.ResourceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourceReqs[r.ID] = r
	return nil
}

func (m *Memory) GetResourceRequest(_ context.Context, id allocation.RequestID) (allocation.ResourceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resourceReqs[id]
	if !ok {
		return allocation.ResourceRequest{}, allocation.ErrRequestNotFound
	}
	return r, nil
}

func (m *Memory) ListResourceRequestsByStatus(_ context.Context, status allocation.RequestStatus) ([]allocation.ResourceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []allocation.ResourceRequest
	for _, r := range m.resourceReqs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveReturnRequest(_ context.Context, r allocation.ReturnRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnReqs[r.ID] = r
	return nil
}

func (m *Memory) GetReturnRequest(_ context.Context, id allocation.RequestID) (allocation.ReturnRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.returnReqs[id]
	if !ok {
		return allocation.ReturnRequest{}, allocation.ErrRequestNotFound
	}
	return r, nil
}

func (m *Memory) ListReturnRequestsByStatus(_ context.Context, status allocation.RequestStatus) ([]allocation.ReturnRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []allocation.ReturnRequest
	for _, r := range m.returnReqs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn with the store locked, simulating a transaction with a
// snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(allocation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txMemoryView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	devices     map[allocation.DeviceID]allocation.Device
	pools       map[allocation.PoolID]allocation.LicensePool
	deviceAsgs  map[allocation.AssignmentID]allocation.DeviceAssignment
	licenseAsgs map[allocation.AssignmentID]allocation.LicenseAssignment
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		devices:     make(map[allocation.DeviceID]allocation.Device, len(m.devices)),
		pools:       make(map[allocation.PoolID]allocation.LicensePool, len(m.pools)),
		deviceAsgs:  make(map[allocation.AssignmentID]allocation.DeviceAssignment, len(m.deviceAsgs)),
		licenseAsgs: make(map[allocation.AssignmentID]allocation.LicenseAssignment, len(m.licenseAsgs)),
	}
	for k, v := range m.devices {
		s.devices[k] = v
	}
	for k, v := range m.pools {
		s.pools[k] = v
	}
	for k, v := range m.deviceAsgs {
		s.deviceAsgs[k] = v
	}
	for k, v := range m.licenseAsgs {
		s.licenseAsgs[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.devices = s.devices
	m.pools = s.pools
	m.deviceAsgs = s.deviceAsgs
	m.licenseAsgs = s.licenseAsgs
}

// txMemoryView routes store calls to the parent's locked helpers, so code
// running inside WithTx doesn't deadlock on the parent mutex.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) SaveDevice(_ context.Context, d allocation.Device) error {
	return tv.parent.saveDeviceLocked(d)
}

func (tv *txMemoryView) GetDevice(_ context.Context, id allocation.DeviceID) (allocation.Device, error) {
	return tv.parent.getDeviceLocked(id)
}

func (tv *txMemoryView) FindDeviceBySerial(_ context.Context, serial string) (allocation.Device, bool, error) {
	return tv.parent.findDeviceBySerialLocked(serial)
}

func (tv *txMemoryView) ListDevices(_ context.Context) ([]allocation.Device, error) {
	return tv.parent.listDevicesLocked()
}

func (tv *txMemoryView) SavePool(_ context.Context, p allocation.LicensePool) error {
	return tv.parent.savePoolLocked(p)
}

func (tv *txMemoryView) GetPool(_ context.Context, id allocation.PoolID) (allocation.LicensePool, error) {
	return tv.parent.getPoolLocked(id)
}

func (tv *txMemoryView) ListPools(_ context.Context) ([]allocation.LicensePool, error) {
	return tv.parent.listPoolsLocked()
}

func (tv *txMemoryView) GrowPool(_ context.Context, id allocation.PoolID, delta int) (allocation.LicensePool, error) {
	return tv.parent.growPoolLocked(id, delta)
}

func (tv *txMemoryView) ClaimSeat(_ context.Context, id allocation.PoolID) error {
	return tv.parent.claimSeatLocked(id)
}

func (tv *txMemoryView) ReleaseSeat(_ context.Context, id allocation.PoolID) error {
	return tv.parent.releaseSeatLocked(id)
}

func (tv *txMemoryView) AppendDeviceAssignment(_ context.Context, a allocation.DeviceAssignment) error {
	return tv.parent.appendDeviceAssignmentLocked(a)
}

func (tv *txMemoryView) GetDeviceAssignment(_ context.Context, id allocation.AssignmentID) (allocation.DeviceAssignment, error) {
	return tv.parent.getDeviceAssignmentLocked(id)
}

func (tv *txMemoryView) CloseDeviceAssignment(_ context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	return tv.parent.closeDeviceAssignmentLocked(id, status, closedAt)
}

func (tv *txMemoryView) ActiveDeviceAssignment(_ context.Context, id allocation.DeviceID) (allocation.DeviceAssignment, bool, error) {
	return tv.parent.activeDeviceAssignmentLocked(id)
}

func (tv *txMemoryView) ListDeviceAssignmentsForHolder(_ context.Context, holder allocation.EmployeeID) ([]allocation.DeviceAssignment, error) {
	return tv.parent.listDeviceAssignmentsForHolderLocked(holder)
}

func (tv *txMemoryView) FindDeviceAssignmentByKey(_ context.Context, key string) (allocation.DeviceAssignment, bool, error) {
	return tv.parent.findDeviceAssignmentByKeyLocked(key)
}

func (tv *txMemoryView) AppendLicenseAssignment(_ context.Context, a allocation.LicenseAssignment) error {
	return tv.parent.appendLicenseAssignmentLocked(a)
}

func (tv *txMemoryView) GetLicenseAssignment(_ context.Context, id allocation.AssignmentID) (allocation.LicenseAssignment, error) {
	return tv.parent.getLicenseAssignmentLocked(id)
}

func (tv *txMemoryView) CloseLicenseAssignment(_ context.Context, id allocation.AssignmentID, status allocation.AssignmentStatus, closedAt time.Time) error {
	return tv.parent.closeLicenseAssignmentLocked(id, status, closedAt)
}

func (tv *txMemoryView) ListActiveLicenseAssignments(_ context.Context, id allocation.PoolID) ([]allocation.LicenseAssignment, error) {
	return tv.parent.listActiveLicenseAssignmentsLocked(id)
}

func (tv *txMemoryView) ListExpiredActiveLicenseAssignments(_ context.Context, asOf time.Time) ([]allocation.LicenseAssignment, error) {
	return tv.parent.listExpiredActiveLicenseAssignmentsLocked(asOf)
}

func (tv *txMemoryView) ListLicenseAssignmentsForHolder(_ context.Context, holder allocation.EmployeeID) ([]allocation.LicenseAssignment, error) {
	return tv.parent.listLicenseAssignmentsForHolderLocked(holder)
}

func (tv *txMemoryView) FindLicenseAssignmentByKey(_ context.Context, key string) (allocation.LicenseAssignment, bool, error) {
	return tv.parent.findLicenseAssignmentByKeyLocked(key)
}
