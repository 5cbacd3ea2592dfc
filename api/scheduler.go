/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Periodically runs commission.Engine.Reconcile so that approved rewards
  left without a live payout request are released, and drifted payout
  amounts are reported, without waiting for an administrator.

DESIGN:
  - robfig/cron drives the schedule (standard 5-field spec or @every/@hourly)
  - Overlapping runs are skipped, panics are recovered and logged
  - The last report is kept for GET /api/admin/scheduler
  - RunNow shares the same path, so manual and scheduled runs look alike

CONFIGURATION:
  - Schedule: cron spec from RECONCILE_SCHEDULE; empty means never started
  - Actor: audit actor for scheduled runs (default: "scheduler");
    manual runs pass the requesting admin

USAGE:
  scheduler := NewReconciliationScheduler(engine, "0 3 * * *")
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Reconcile endpoint (manual reconciliation)
  - commission/reconcile.go: What a run checks and repairs
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/commission-engine/commission"
)

// runTimeout bounds one scheduled reconciliation.
const runTimeout = 5 * time.Minute

// ReconciliationScheduler runs reconciliation on a cron schedule.
type ReconciliationScheduler struct {
	Engine   *commission.Engine
	Schedule string
	Actor    string

	cron  *cron.Cron
	entry cron.EntryID

	mu      sync.Mutex
	lastRep *commission.ReconcileReport
	lastErr error
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(engine *commission.Engine, schedule string) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Engine:   engine,
		Schedule: schedule,
		Actor:    "scheduler",
	}
}

// Start begins the scheduler. It is a no-op for an empty schedule.
func (rs *ReconciliationScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.Schedule == "" {
		log.Println("[Scheduler] Disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return errors.New("scheduler already started")
	}

	logger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	id, err := c.AddFunc(rs.Schedule, rs.runScheduled)
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", rs.Schedule, err)
	}
	rs.cron, rs.entry = c, id
	c.Start()

	log.Printf("[Scheduler] Started with schedule %q, next run at %v", rs.Schedule, c.Entry(id).Next)
	return nil
}

// Stop stops the scheduler and waits for a running reconciliation.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	c := rs.cron
	rs.cron = nil
	rs.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		log.Println("[Scheduler] Stopped")
	}
}

// Running reports whether the cron loop is active.
func (rs *ReconciliationScheduler) Running() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.cron != nil
}

func (rs *ReconciliationScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	rs.RunNow(ctx, rs.Actor)
}

// RunNow triggers an immediate reconciliation audited under actor.
// An empty actor falls back to the scheduler's own.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context, actor string) (commission.ReconcileReport, error) {
	if actor == "" {
		actor = rs.Actor
	}
	log.Printf("[Scheduler] Reconciling at %v (actor=%s)", rs.Engine.Now(), actor)

	rep, err := rs.Engine.Reconcile(ctx, actor)

	rs.mu.Lock()
	rs.lastRep, rs.lastErr = &rep, err
	rs.mu.Unlock()

	if err != nil {
		log.Printf("[Scheduler] Reconciliation failed: %v", err)
		return rep, err
	}
	if len(rep.Reverted) > 0 || len(rep.Mismatches) > 0 {
		log.Printf("[Scheduler] Completed: %d reverted, %d amount mismatches", len(rep.Reverted), len(rep.Mismatches))
	}
	for _, m := range rep.Mismatches {
		log.Printf("[Scheduler] %v", &m)
	}
	return rep, nil
}

// LastRun returns the most recent report and its error, or nil before the
// first run.
func (rs *ReconciliationScheduler) LastRun() (*commission.ReconcileReport, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastRep, rs.lastErr
}

// GetNextRunTime returns when the next scheduled run will occur, or the
// zero time when the scheduler is not running.
func (rs *ReconciliationScheduler) GetNextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cron == nil {
		return time.Time{}
	}
	return rs.cron.Entry(rs.entry).Next
}
