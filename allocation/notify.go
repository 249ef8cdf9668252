/*
notify.go - Outbound event payloads for the notification collaborator

PURPOSE:
  The engine and the expiry monitor emit events after successful transactions
  and scans. Delivery (email, toast, chat) is an external concern; this file
  only defines the payload and the fire-and-forget contract.

CONTRACT:
  Notify never returns an error and must never block a transaction. A failed
  or slow notification must not undo or delay an allocation that already
  committed.

SEE ALSO:
  - engine.go: Emits events after each committed transaction
  - monitor.go: Emits alert events from scans
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventDeviceAssigned  EventType = "device_assigned"
	EventDeviceReturned  EventType = "device_returned"
	EventLicenseAssigned EventType = "license_assigned"
	EventLicenseReturned EventType = "license_returned"
	EventLicenseRevoked  EventType = "license_revoked"
	EventLicenseExpired  EventType = "license_expired"
	EventExpiryAlert     EventType = "expiry_alert"
)

// Event is the payload handed to the Notifier after a successful transaction
// or scan.
type Event struct {
	Type       EventType
	ResourceID string
	HolderID   EmployeeID
	Severity   Severity // set for EventExpiryAlert only
	At         time.Time
}

// Notifier receives events fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NopNotifier discards all events. Default when no collaborator is wired.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }
