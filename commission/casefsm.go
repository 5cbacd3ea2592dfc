/*
casefsm.go - Case lifecycle state machine

PURPOSE:
  Validates and applies case status changes. Transition is pure: it never
  touches a store and never reads the clock. The one side effect of reaching
  "paid" (starting the lock window) is returned explicitly so the caller
  persists it in the same unit of work as the status change.

STATE GRAPH:

  assigned ─▶ contacted ─▶ appointment_scheduled ─▶ paid ─▶ ready_to_apply
     │            │                 │                              │
     └────────────┴────────┬────────┘                              ▼
                           ▼                              registration_submitted
                    closed / lost (terminal)                       │
                                                                   ▼
                                                 visa_stage ─▶ completed

  Only the immediate successor on the happy path is allowed. closed and lost
  are reachable from the three pre-paid stages only.

SEE ALSO:
  - lockwindow.go: CasePaymentWindow evaluates the stamp set here
  - cases.go: Engine.TransitionCase persists the result
*/
package commission

import "time"

// caseStages is the happy path in order.
var caseStages = []CaseStatus{
	CaseAssigned,
	CaseContacted,
	CaseAppointmentScheduled,
	CasePaid,
	CaseReadyToApply,
	CaseRegistrationSubmitted,
	CaseVisaStage,
	CaseCompleted,
}

var caseStageIndex = func() map[CaseStatus]int {
	m := make(map[CaseStatus]int, len(caseStages))
	for i, s := range caseStages {
		m[s] = i
	}
	return m
}()

// IsPrePaid is true for the stages before payment is confirmed.
func (s CaseStatus) IsPrePaid() bool {
	idx, ok := caseStageIndex[s]
	return ok && idx < caseStageIndex[CasePaid]
}

// IsTerminal is true for completed and both branch states.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseCompleted || s == CaseClosed || s == CaseLost
}

// AtOrPastPaid is true once a case has reached paid on the happy path.
func (s CaseStatus) AtOrPastPaid() bool {
	idx, ok := caseStageIndex[s]
	return ok && idx >= caseStageIndex[CasePaid]
}

// CanTransition reports whether current → target is an edge in the graph.
func CanTransition(current, target CaseStatus) bool {
	if target == CaseClosed || target == CaseLost {
		return current.IsPrePaid()
	}
	ci, ok := caseStageIndex[current]
	if !ok {
		return false
	}
	ti, ok := caseStageIndex[target]
	if !ok {
		return false
	}
	return ti == ci+1
}

// TransitionResult is the outcome of a validated case transition.
type TransitionResult struct {
	From CaseStatus
	To   CaseStatus

	// NoOp is set when a paid case is moved to paid again.
	NoOp bool

	// StartLockWindow is non-nil when this transition first reaches paid.
	// Both PaidAt and PaidCountdownStartedAt take this value.
	StartLockWindow *time.Time
}

// Transition validates moving c to target at the given instant.
func Transition(c Case, target CaseStatus, at time.Time) (TransitionResult, error) {
	if c.Status == CasePaid && target == CasePaid {
		return TransitionResult{From: c.Status, To: target, NoOp: true}, nil
	}
	if !CanTransition(c.Status, target) {
		return TransitionResult{}, &TransitionError{CaseID: c.ID, From: c.Status, To: target}
	}

	res := TransitionResult{From: c.Status, To: target}
	if target == CasePaid && c.PaidAt == nil {
		stamp := at
		res.StartLockWindow = &stamp
	}
	return res, nil
}

// ApplyTo writes the transition onto c.
func (r TransitionResult) ApplyTo(c *Case) {
	if r.NoOp {
		return
	}
	c.Status = r.To
	if r.StartLockWindow != nil {
		paidAt := *r.StartLockWindow
		started := *r.StartLockWindow
		c.PaidAt = &paidAt
		c.PaidCountdownStartedAt = &started
	}
}
