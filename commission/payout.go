/*
payout.go - Payout request aggregation and settlement

PURPOSE:
  Bundles a payee's claimable rewards into one payout request and carries
  that request to paid or rejected.

REQUEST FLOW:
  ┌────────────────────────────────────────────────────────────────────┐
  │  bank profile ─▶ claimed ids ─▶ eligible rewards ─▶ threshold check│
  │      │                                                    │        │
  │      ▼                                                    ▼        │
  │  MissingBankDetails                          create request (claim)│
  │                                                           │        │
  │                                           rewards pending → approved
  └────────────────────────────────────────────────────────────────────┘

  Everything after the bank profile check runs in one WithTx unit. The store
  refuses a second live claim on any reward and each reward is moved with a
  compare-and-swap, so two concurrent submissions for one payee can never
  both claim the same reward.

SETTLEMENT:
  pending ──▶ paid      MarkPayoutPaid: request and every linked reward
  pending ──▶ rejected  CancelPayoutRequest: linked rewards revert to pending

SEE ALSO:
  - lockwindow.go: RewardAgeWindow decides eligibility
  - reconcile.go: Repairs approved rewards left without a request
*/
package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// RequestPayout claims every eligible reward of payee in one payout request.
func (e *Engine) RequestPayout(ctx context.Context, payee PayeeID, role Role) (req PayoutRequest, err error) {
	ctx, span := e.startSpan(ctx, "RequestPayout",
		attribute.String("payee.id", string(payee)),
		attribute.String("payee.role", string(role)))
	defer func() { endSpan(span, err) }()

	if role != "" {
		if role, err = ParseRole(string(role)); err != nil {
			return PayoutRequest{}, err
		}
	}

	// 1. Bank details gate everything else.
	profile, err := e.Store.GetProfile(ctx, payee)
	if errors.Is(err, ErrProfileNotFound) {
		return PayoutRequest{}, &BankDetailsError{
			Missing: true,
			Fields:  []string{"bank_name", "bank_branch", "account_number", "confirmed_at"},
		}
	}
	if err != nil {
		return PayoutRequest{}, err
	}
	if err := e.Validator.Validate(profile); err != nil {
		return PayoutRequest{}, err
	}
	if role == "" {
		role = profile.Role
	}

	threshold, err := e.Eligibility.MinPayoutThreshold(ctx)
	if err != nil {
		return PayoutRequest{}, err
	}

	err = e.run(ctx, string(payee), func(u *unit) error {
		// 2. Rewards already held by a live request.
		existing, err := u.store.ListPayoutRequestsByRequestor(ctx, payee)
		if err != nil {
			return err
		}
		claimed := make(map[RewardID]bool)
		for _, p := range existing {
			if !p.HoldsClaims() {
				continue
			}
			for _, id := range p.LinkedRewardIDs {
				claimed[id] = true
			}
		}

		// 3. Pending, unclaimed and past the lock window.
		rewards, err := u.store.ListRewardsByPayee(ctx, payee)
		if err != nil {
			return err
		}
		var eligible []Reward
		for _, r := range rewards {
			if r.Status != RewardPending || claimed[r.ID] {
				continue
			}
			if RewardAgeWindow(r, u.now).DaysRemaining > 0 {
				continue
			}
			eligible = append(eligible, r)
		}

		// 4. Threshold.
		available := SumRewards(eligible)
		if available.LessThan(threshold) {
			return &BelowThresholdError{PayeeID: payee, Eligible: available, Threshold: threshold}
		}
		if len(eligible) == 0 {
			return fmt.Errorf("%w for payee %s", ErrNoEligibleRewards, payee)
		}

		// 5. One request claiming every eligible reward.
		req = PayoutRequest{
			ID:            PayoutRequestID(e.NewID()),
			RequestorID:   payee,
			RequestorRole: role,
			Amount:        available,
			Status:        PayoutPending,
			RequestedAt:   u.now,
			PaymentMethod: profile.PaymentMethod(),
		}
		for _, r := range eligible {
			req.LinkedRewardIDs = append(req.LinkedRewardIDs, r.ID)
			req.LinkedDisplayNames = append(req.LinkedDisplayNames, r.DisplayName())
		}
		if err := u.store.CreatePayoutRequest(ctx, req); err != nil {
			return err
		}

		// 6. pending → approved, guarded per reward.
		for _, r := range eligible {
			next := r
			if err := e.Lifecycle.Move(&next, RewardApproved, u.now); err != nil {
				return err
			}
			err := u.store.CompareAndSetRewardStatus(ctx, r.ID, RewardPending, RewardApproved, next.PayoutRequestedAt, u.now)
			if errors.Is(err, ErrConcurrentModification) {
				return &DuplicateClaimError{RewardID: r.ID, Cause: err}
			}
			if err != nil {
				return err
			}
			u.changes = append(u.changes, Change{Kind: ChangeReward, Action: AuditPayoutRequested, SubjectID: string(r.ID), PayeeID: payee, At: u.now})
		}

		return u.record(ctx, ChangePayout, AuditPayoutRequested, string(req.ID), payee, map[string]any{
			"amount":  req.Amount.String(),
			"rewards": len(req.LinkedRewardIDs),
		})
	})
	if err != nil {
		return PayoutRequest{}, err
	}
	return req, nil
}

// CancelPayoutRequest rejects a pending request and returns its rewards to
// pending so they can be claimed again.
func (e *Engine) CancelPayoutRequest(ctx context.Context, id PayoutRequestID, actor, reason string) (req PayoutRequest, err error) {
	ctx, span := e.startSpan(ctx, "CancelPayoutRequest", attribute.String("payout.id", string(id)))
	defer func() { endSpan(span, err) }()

	err = e.run(ctx, actor, func(u *unit) error {
		req, err = u.store.GetPayoutRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != PayoutPending {
			return &NotCancellableError{RequestID: req.ID, Status: req.Status}
		}

		processed := u.now
		why := reason
		upd := PayoutUpdate{
			Status:       PayoutRejected,
			RejectReason: &why,
			AdminNotes:   req.AdminNotes,
			ProcessedAt:  &processed,
			ProcessedBy:  actor,
		}
		if err := u.store.UpdatePayoutRequestStatus(ctx, req.ID, PayoutPending, upd); err != nil {
			return err
		}
		req.Status, req.RejectReason, req.ProcessedAt, req.ProcessedBy = upd.Status, upd.RejectReason, upd.ProcessedAt, upd.ProcessedBy

		for _, rid := range req.LinkedRewardIDs {
			r, err := u.store.GetReward(ctx, rid)
			if err != nil {
				return err
			}
			if r.Status == RewardPending {
				continue
			}
			if err := e.revertReward(ctx, u, r); err != nil {
				return err
			}
		}

		return u.record(ctx, ChangePayout, AuditPayoutCancelled, string(req.ID), req.RequestorID, map[string]any{
			"reason":  reason,
			"rewards": len(req.LinkedRewardIDs),
		})
	})
	if err != nil {
		return PayoutRequest{}, err
	}
	return req, nil
}

// revertReward walks an approved reward through rejected back to pending.
func (e *Engine) revertReward(ctx context.Context, u *unit, r Reward) error {
	next := r
	if err := e.Lifecycle.Revert(&next, u.now); err != nil {
		return err
	}
	if err := u.store.CompareAndSetRewardStatus(ctx, r.ID, RewardApproved, RewardRejected, r.PayoutRequestedAt, u.now); err != nil {
		return err
	}
	if err := u.store.CompareAndSetRewardStatus(ctx, r.ID, RewardRejected, RewardPending, nil, u.now); err != nil {
		return err
	}
	u.changes = append(u.changes, Change{Kind: ChangeReward, Action: AuditPayoutCancelled, SubjectID: string(r.ID), PayeeID: r.PayeeID, At: u.now})
	return nil
}

// MarkPayoutPaid settles a pending request and every reward it links.
func (e *Engine) MarkPayoutPaid(ctx context.Context, id PayoutRequestID, actor, notes string) (req PayoutRequest, err error) {
	ctx, span := e.startSpan(ctx, "MarkPayoutPaid", attribute.String("payout.id", string(id)))
	defer func() { endSpan(span, err) }()

	err = e.run(ctx, actor, func(u *unit) error {
		req, err = u.store.GetPayoutRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != PayoutPending {
			return fmt.Errorf("%w: request %s is %s", ErrInvalidPayoutTransition, req.ID, req.Status)
		}

		linked := make([]Reward, 0, len(req.LinkedRewardIDs))
		for _, rid := range req.LinkedRewardIDs {
			r, err := u.store.GetReward(ctx, rid)
			if err != nil {
				return err
			}
			if !CanMoveReward(r.Status, RewardPaid) {
				return &RewardTransitionError{RewardID: r.ID, From: r.Status, To: RewardPaid}
			}
			linked = append(linked, r)
		}
		if live := SumRewards(linked); !live.Equal(req.Amount) {
			return &AmountMismatchError{RequestID: req.ID, Stored: req.Amount, Live: live}
		}

		processed := u.now
		upd := PayoutUpdate{
			Status:      PayoutPaid,
			AdminNotes:  notes,
			ProcessedAt: &processed,
			ProcessedBy: actor,
		}
		if err := u.store.UpdatePayoutRequestStatus(ctx, req.ID, PayoutPending, upd); err != nil {
			return err
		}
		req.Status, req.AdminNotes, req.ProcessedAt, req.ProcessedBy = upd.Status, upd.AdminNotes, upd.ProcessedAt, upd.ProcessedBy

		for _, r := range linked {
			if err := u.store.CompareAndSetRewardStatus(ctx, r.ID, RewardApproved, RewardPaid, r.PayoutRequestedAt, u.now); err != nil {
				return err
			}
			u.changes = append(u.changes, Change{Kind: ChangeReward, Action: AuditPayoutPaid, SubjectID: string(r.ID), PayeeID: r.PayeeID, At: u.now})
		}

		return u.record(ctx, ChangePayout, AuditPayoutPaid, string(req.ID), req.RequestorID, map[string]any{
			"amount": req.Amount.String(),
		})
	})
	if err != nil {
		return PayoutRequest{}, err
	}
	return req, nil
}

// GetPayoutRequest loads one request.
func (e *Engine) GetPayoutRequest(ctx context.Context, id PayoutRequestID) (PayoutRequest, error) {
	return e.Store.GetPayoutRequest(ctx, id)
}

// ListPayoutRequests returns requests for the admin queue, optionally by status.
func (e *Engine) ListPayoutRequests(ctx context.Context, status *PayoutStatus) ([]PayoutRequest, error) {
	return e.Store.ListPayoutRequests(ctx, status)
}

// liveAmount sums the current amounts of a request's linked rewards.
func liveAmount(ctx context.Context, s Store, p PayoutRequest) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, rid := range p.LinkedRewardIDs {
		r, err := s.GetReward(ctx, rid)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(r.Amount)
	}
	return total, nil
}
