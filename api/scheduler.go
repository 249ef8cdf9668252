/*
scheduler.go - Automated expiry scheduler

PURPOSE:
  Periodically sweeps expired license assignments (freeing their seats) and
  scans for upcoming expirations, logging the resulting alerts.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - SweepExpired is idempotent, so overlapping or repeated runs are harmless
  - Alert scan is read-only; it never mutates the ledger

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - HorizonDays:   Alert lookahead (default: 30 days)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(engine, monitor, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - allocation/engine.go: SweepExpired
  - allocation/monitor.go: Scan
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/asset-engine/allocation"
)

// ExpiryScheduler runs the expiry sweep and alert scan on a fixed interval.
type ExpiryScheduler struct {
	Engine        *allocation.Engine
	Monitor       *allocation.Monitor
	Logger        *slog.Logger
	CheckInterval time.Duration
	HorizonDays   int
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(engine *allocation.Engine, monitor *allocation.Monitor, logger *slog.Logger) *ExpiryScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryScheduler{
		Engine:        engine,
		Monitor:       monitor,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		HorizonDays:   30,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		es.Logger.Info("expiry scheduler disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	es.Logger.Info("expiry scheduler started", "interval", es.CheckInterval, "horizon_days", es.HorizonDays)
}

// Stop stops the scheduler.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		es.Logger.Info("expiry scheduler stopped")
	}
}

func (es *ExpiryScheduler) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.sweepAndScan()

	for {
		select {
		case <-es.ticker.C:
			es.sweepAndScan()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpiryScheduler) sweepAndScan() {
	ctx := context.Background()
	now := time.Now()

	swept, err := es.Engine.SweepExpired(ctx, now)
	if err != nil {
		es.Logger.Error("expiry sweep failed", "error", err)
	} else if len(swept) > 0 {
		es.Logger.Info("expiry sweep completed", "swept", len(swept))
	}

	alerts, err := es.Monitor.Scan(ctx, now, es.HorizonDays)
	if err != nil {
		es.Logger.Error("alert scan failed", "error", err)
		return
	}

	for _, a := range alerts {
		switch a.Severity {
		case allocation.SeverityExpired, allocation.SeverityCritical:
			es.Logger.Warn("expiry alert",
				"kind", a.Kind,
				"resource", a.ResourceID,
				"holder", a.HolderID,
				"severity", a.Severity,
				"days_until_expiry", a.DaysUntilExpiry,
			)
		default:
			es.Logger.Info("expiry alert",
				"kind", a.Kind,
				"resource", a.ResourceID,
				"severity", a.Severity,
				"days_until_expiry", a.DaysUntilExpiry,
			)
		}
	}
}

// RunNow triggers an immediate sweep and scan (for testing/admin).
func (es *ExpiryScheduler) RunNow() {
	es.sweepAndScan()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (es *ExpiryScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(es.CheckInterval)
}
