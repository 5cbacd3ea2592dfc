package commission

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYEE SUMMARY
// =============================================================================

// RewardView pairs a reward with its eligibility window.
type RewardView struct {
	Reward Reward
	Window WindowStatus
}

// PayeeSummary is the payee-facing earnings view.
type PayeeSummary struct {
	PayeeID  PayeeID
	Rewards  []RewardView
	Totals   WindowTotals
	Requests []PayoutRequest

	// Threshold is nil when no threshold is configured.
	Threshold *decimal.Decimal
	// CanRequest is true when a payout request would pass the threshold now.
	CanRequest bool
}

// PayeeSummary evaluates every reward of payee against RewardAgeWindow.
func (e *Engine) PayeeSummary(ctx context.Context, payee PayeeID) (PayeeSummary, error) {
	now := e.Now()
	rewards, err := e.Store.ListRewardsByPayee(ctx, payee)
	if err != nil {
		return PayeeSummary{}, err
	}
	requests, err := e.Store.ListPayoutRequestsByRequestor(ctx, payee)
	if err != nil {
		return PayeeSummary{}, err
	}

	claimed := make(map[RewardID]bool)
	for _, p := range requests {
		if p.HoldsClaims() {
			for _, id := range p.LinkedRewardIDs {
				claimed[id] = true
			}
		}
	}

	sum := PayeeSummary{
		PayeeID:  payee,
		Requests: requests,
		Totals: WindowTotals{
			Locked:    decimal.Zero,
			Available: decimal.Zero,
			Requested: decimal.Zero,
			Paid:      decimal.Zero,
		},
	}
	for _, r := range rewards {
		ws := RewardAgeWindow(r, now)
		sum.Rewards = append(sum.Rewards, RewardView{Reward: r, Window: ws})
		if r.Status == RewardPending && claimed[r.ID] {
			// Held by a live request but not yet approved; counts as requested.
			sum.Totals.Requested = sum.Totals.Requested.Add(r.Amount)
			continue
		}
		sum.Totals.add(r, ws)
	}

	threshold, err := e.Eligibility.MinPayoutThreshold(ctx)
	switch {
	case errors.Is(err, ErrThresholdNotConfigured):
	case err != nil:
		return PayeeSummary{}, err
	default:
		sum.Threshold = &threshold
		sum.CanRequest = sum.Totals.Available.IsPositive() && !sum.Totals.Available.LessThan(threshold)
	}
	return sum, nil
}

// =============================================================================
// CASE OVERSIGHT
// =============================================================================

// CaseOversightRow is one paid case in the admin payout queue.
type CaseOversightRow struct {
	Case    Case
	Window  WindowStatus
	Ledger  LedgerSnapshot
	Rewards []Reward
	// Settled is true once every reward recorded for the case is paid.
	Settled bool
}

// CaseOversight evaluates every case with a started countdown against
// CasePaymentWindow, soonest due first.
func (e *Engine) CaseOversight(ctx context.Context) ([]CaseOversightRow, error) {
	now := e.Now()
	cases, err := e.Store.ListCases(ctx)
	if err != nil {
		return nil, err
	}

	var rows []CaseOversightRow
	for _, c := range cases {
		if c.PaidCountdownStartedAt == nil {
			continue
		}
		rewards, err := e.Store.ListRewardsByCase(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		settled := len(rewards) > 0
		for _, r := range rewards {
			if r.Status != RewardPaid {
				settled = false
				break
			}
		}
		ws, _ := CasePaymentWindow(c, now, settled)
		rows = append(rows, CaseOversightRow{
			Case:    c,
			Window:  ws,
			Ledger:  Snapshot(c),
			Rewards: rewards,
			Settled: settled,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Window.DueDate.Before(rows[j].Window.DueDate)
	})
	return rows, nil
}
