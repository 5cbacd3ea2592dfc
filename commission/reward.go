/*
reward.go - Reward lifecycle state machine

PURPOSE:
  Governs the states a single commission claim moves through.

STATES:
  pending ──▶ approved ──▶ paid (terminal)
     ▲  │         │
     │  ▼         ▼
     └─ rejected ◀┘

  approved means "claimed by a live payout request". Cancelling that request
  moves each reward approved → rejected → pending, so the reward becomes
  claimable again with its original CreatedAt (and therefore its original
  lock window).
*/
package commission

import "time"

var rewardMoves = map[RewardStatus][]RewardStatus{
	RewardPending:  {RewardApproved, RewardRejected},
	RewardApproved: {RewardPaid, RewardRejected},
	RewardRejected: {RewardPending},
}

// CanMoveReward reports whether from → to is a legal reward transition.
func CanMoveReward(from, to RewardStatus) bool {
	for _, s := range rewardMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RewardLifecycle applies reward transitions to in-memory records.
type RewardLifecycle struct{}

// Move changes r's status, enforcing the transition table.
// Approval stamps PayoutRequestedAt; returning to pending clears it.
func (RewardLifecycle) Move(r *Reward, to RewardStatus, at time.Time) error {
	if !CanMoveReward(r.Status, to) {
		return &RewardTransitionError{RewardID: r.ID, From: r.Status, To: to}
	}
	r.Status = to
	r.UpdatedAt = at
	switch to {
	case RewardApproved:
		stamp := at
		r.PayoutRequestedAt = &stamp
	case RewardPending:
		r.PayoutRequestedAt = nil
	}
	return nil
}

// Revert releases an approved reward back to pending via rejected.
func (l RewardLifecycle) Revert(r *Reward, at time.Time) error {
	if err := l.Move(r, RewardRejected, at); err != nil {
		return err
	}
	return l.Move(r, RewardPending, at)
}
