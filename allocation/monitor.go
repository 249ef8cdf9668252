/*
monitor.go - Time-to-expiry classification and alerting

PURPOSE:
  A periodic scan over active license assignments and device warranty dates
  that computes days-until-expiry and classifies each into a severity. The
  scan is pure read-only computation; the only mutating path is delegating to
  Engine.SweepExpired for assignments that have crossed the expiry instant.

SEVERITY THRESHOLDS:
  EXPIRED   <= 0 days
  CRITICAL   1-7 days
  WARNING    8-30 days
  INFO      > 30 days (surfaced only when the horizon reaches that far)

  The thresholds live in exactly one place, Classify. Deduplication and
  acknowledgement suppression are the caller's concern, not this component's.

SEE ALSO:
  - engine.go: SweepExpired, the mutating counterpart
  - api/scheduler.go: Runs Scan and SweepExpired on a fixed interval
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// SEVERITY
// =============================================================================

type Severity string

const (
	SeverityExpired  Severity = "expired"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Classify maps days-until-expiry to an alert severity.
func Classify(daysUntilExpiry int) Severity {
	switch {
	case daysUntilExpiry <= 0:
		return SeverityExpired
	case daysUntilExpiry <= 7:
		return SeverityCritical
	case daysUntilExpiry <= 30:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// =============================================================================
// ALERTS
// =============================================================================

type ResourceKind string

const (
	KindDevice ResourceKind = "device"
	KindPool   ResourceKind = "license_pool"
)

// Alert is a computed value, not a persisted entity.
type Alert struct {
	Kind            ResourceKind
	ResourceID      string
	AssignmentID    AssignmentID // set for license alerts
	HolderID        EmployeeID   // set for license alerts
	Severity        Severity
	DaysUntilExpiry int
	ExpiresAt       time.Time
}

// =============================================================================
// MONITOR
// =============================================================================

type Monitor struct {
	Store Store
}

func NewMonitor(store Store) *Monitor {
	return &Monitor{Store: store}
}

// Scan computes alerts for every ACTIVE license assignment and every
// non-disposed device with a warranty date, within the given horizon.
// Resources expiring beyond horizonDays produce no alert.
func (m *Monitor) Scan(ctx context.Context, now time.Time, horizonDays int) ([]Alert, error) {
	var alerts []Alert

	pools, err := m.Store.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pools {
		actives, err := m.Store.ListActiveLicenseAssignments(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, asg := range actives {
			days := DaysUntil(now, p.ExpiresAt)
			if days > horizonDays {
				continue
			}
			alerts = append(alerts, Alert{
				Kind:            KindPool,
				ResourceID:      string(p.ID),
				AssignmentID:    asg.ID,
				HolderID:        asg.HolderID,
				Severity:        Classify(days),
				DaysUntilExpiry: days,
				ExpiresAt:       p.ExpiresAt,
			})
		}
	}

	devices, err := m.Store.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Status == DeviceDisposed || d.WarrantyExpiry.IsZero() {
			continue
		}
		days := DaysUntil(now, d.WarrantyExpiry)
		if days > horizonDays {
			continue
		}
		alerts = append(alerts, Alert{
			Kind:            KindDevice,
			ResourceID:      string(d.ID),
			Severity:        Classify(days),
			DaysUntilExpiry: days,
			ExpiresAt:       d.WarrantyExpiry,
		})
	}

	return alerts, nil
}
