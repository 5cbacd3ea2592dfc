/*
reconcile.go - Compensating consistency check

PURPOSE:
  Finds state that the payout guards should have made impossible and repairs
  what can be repaired safely:

  1. An approved reward that no live payout request links is orphaned.
     It is reverted to pending (approved → rejected → pending) so the payee
     can claim it again.
  2. A pending request whose stored amount differs from the live sum of its
     rewards is reported, not changed. MarkPayoutPaid refuses it until an
     administrator cancels and the payee re-requests.

  Reconcile is idempotent: a second run over a consistent store changes
  nothing.
*/
package commission

import (
	"context"
	"time"
)

// ReconcileReport lists what one run found and fixed.
type ReconcileReport struct {
	RanAt      time.Time
	Reverted   []RewardID
	Mismatches []AmountMismatchError
}

// Reconcile runs the consistency check in a single unit of work.
func (e *Engine) Reconcile(ctx context.Context, actor string) (rep ReconcileReport, err error) {
	ctx, span := e.startSpan(ctx, "Reconcile")
	defer func() { endSpan(span, err) }()

	err = e.run(ctx, actor, func(u *unit) error {
		rep = ReconcileReport{RanAt: u.now}

		requests, err := u.store.ListPayoutRequests(ctx, nil)
		if err != nil {
			return err
		}
		held := make(map[RewardID]bool)
		for _, p := range requests {
			if !p.HoldsClaims() {
				continue
			}
			for _, id := range p.LinkedRewardIDs {
				held[id] = true
			}
		}

		approved, err := u.store.ListRewardsByStatus(ctx, RewardApproved)
		if err != nil {
			return err
		}
		for _, r := range approved {
			if held[r.ID] {
				continue
			}
			if err := e.revertReward(ctx, u, r); err != nil {
				return err
			}
			rep.Reverted = append(rep.Reverted, r.ID)
			if err := u.record(ctx, ChangeReward, AuditRewardReconciled, string(r.ID), r.PayeeID, map[string]any{
				"reason": "approved without a live payout request",
			}); err != nil {
				return err
			}
		}

		for _, p := range requests {
			if p.Status != PayoutPending {
				continue
			}
			live, err := liveAmount(ctx, u.store, p)
			if err != nil {
				return err
			}
			if !live.Equal(p.Amount) {
				rep.Mismatches = append(rep.Mismatches, AmountMismatchError{RequestID: p.ID, Stored: p.Amount, Live: live})
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	return rep, nil
}
