/*
notifier.go - Structured-log notification sink

PURPOSE:
  The default allocation.Notifier for the server: every lifecycle event
  lands in the structured log. A real deployment would fan these out to
  email or chat; the engine contract (fire-and-forget, never blocks an
  allocation) stays the same either way.

SEE ALSO:
  - allocation/notify.go: Event and Notifier definitions
*/
package api

import (
	"context"
	"log/slog"

	"github.com/warp/asset-engine/allocation"
)

// SlogNotifier logs lifecycle events through slog.
type SlogNotifier struct {
	Logger *slog.Logger
}

func NewSlogNotifier(logger *slog.Logger) *SlogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogNotifier{Logger: logger}
}

func (n *SlogNotifier) Notify(ctx context.Context, e allocation.Event) {
	n.Logger.InfoContext(ctx, "lifecycle event",
		"type", e.Type,
		"resource", e.ResourceID,
		"holder", e.HolderID,
		"at", e.At,
	)
}
