/*
lockwindow.go - 20-day claim maturity window

PURPOSE:
  Computes when a claim matures and how it should be labelled today.
  Pure functions of (start, now, settled); the caller supplies the clock.

STATES:
  locked   now < due date
  ready    due date <= now < due date + 7 days
  overdue  now >= due date + 7 days
  settled  the underlying payout already happened

TWO WINDOWS:
  RewardAgeWindow    starts at Reward.CreatedAt; gates payout eligibility
  CasePaymentWindow  starts at Case.PaidCountdownStartedAt; drives admin
                     oversight of handler payouts

  Both use the same arithmetic but different start points, and they are kept
  apart on purpose: a reward recorded days after its case was paid matures
  later than the case's window.
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// LockDays is how long a claim is held before it becomes payable.
	LockDays = 20
	// OverdueDays is the grace period past the due date before flagging.
	OverdueDays = 7
)

const day = 24 * time.Hour

type WindowState string

const (
	WindowLocked  WindowState = "locked"
	WindowReady   WindowState = "ready"
	WindowOverdue WindowState = "overdue"
	WindowSettled WindowState = "settled"
)

// WindowStatus is the evaluated maturity of one claim.
type WindowStatus struct {
	Start         time.Time
	DueDate       time.Time
	DaysRemaining int
	State         WindowState
}

// Eligible is true once the lock period has elapsed and nothing is settled.
func (w WindowStatus) Eligible() bool {
	return w.State == WindowReady || w.State == WindowOverdue
}

// DueDate is start + LockDays.
func DueDate(start time.Time) time.Time {
	return start.Add(LockDays * day)
}

// Evaluate labels a window that started at start, as seen at now.
func Evaluate(start, now time.Time, settled bool) WindowStatus {
	due := DueDate(start)
	ws := WindowStatus{
		Start:         start,
		DueDate:       due,
		DaysRemaining: ceilDays(due.Sub(now)),
	}
	switch {
	case settled:
		ws.State = WindowSettled
	case now.Before(due):
		ws.State = WindowLocked
	case now.Before(due.Add(OverdueDays * day)):
		ws.State = WindowReady
	default:
		ws.State = WindowOverdue
	}
	return ws
}

// ceilDays rounds a duration up to whole days.
func ceilDays(d time.Duration) int {
	days := int(d / day)
	if d%day > 0 {
		days++
	}
	return days
}

// RewardAgeWindow evaluates a reward's eligibility window.
func RewardAgeWindow(r Reward, now time.Time) WindowStatus {
	return Evaluate(r.CreatedAt, now, r.Status == RewardPaid)
}

// CasePaymentWindow evaluates the admin payout window of a case.
// ok is false when the countdown has not started.
func CasePaymentWindow(c Case, now time.Time, settled bool) (WindowStatus, bool) {
	if c.PaidCountdownStartedAt == nil {
		return WindowStatus{}, false
	}
	return Evaluate(*c.PaidCountdownStartedAt, now, settled), true
}

// WindowTotals buckets reward amounts by window state.
type WindowTotals struct {
	Locked    decimal.Decimal
	Available decimal.Decimal
	Requested decimal.Decimal
	Paid      decimal.Decimal
}

// add folds one reward into the totals.
func (t *WindowTotals) add(r Reward, ws WindowStatus) {
	switch r.Status {
	case RewardPaid:
		t.Paid = t.Paid.Add(r.Amount)
	case RewardApproved:
		t.Requested = t.Requested.Add(r.Amount)
	case RewardPending:
		if ws.Eligible() {
			t.Available = t.Available.Add(r.Amount)
		} else {
			t.Locked = t.Locked.Add(r.Amount)
		}
	}
}
