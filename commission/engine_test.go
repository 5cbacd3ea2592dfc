package commission_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/commission/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Duration(days) * 24 * time.Hour)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []commission.Change
}

func (n *recordingNotifier) Notify(_ context.Context, c commission.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changes)
}

type harness struct {
	engine   *commission.Engine
	store    *store.Memory
	clock    *testClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, threshold int64) *harness {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SetMinPayoutThreshold(context.Background(), commission.NewMoney(threshold)))

	var seq atomic.Int64
	h := &harness{
		store:    mem,
		clock:    &testClock{now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
	}
	h.engine = commission.NewEngine(mem, mem,
		commission.WithClock(h.clock.Now),
		commission.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		commission.WithNotifier(h.notifier),
	)
	return h
}

func (h *harness) confirmBank(t *testing.T, payee commission.PayeeID) {
	t.Helper()
	_, err := h.engine.SaveBankDetails(context.Background(), commission.BankDetailsInput{
		PayeeID:       payee,
		Role:          commission.RoleAgent,
		DisplayName:   "Agent " + string(payee),
		BankName:      "Leumi",
		BankBranch:    "800",
		AccountNumber: "44556677",
		Confirm:       true,
		Actor:         string(payee),
	})
	require.NoError(t, err)
}

func (h *harness) reward(t *testing.T, payee commission.PayeeID, amount int64) commission.Reward {
	t.Helper()
	ref := commission.ReferralID(fmt.Sprintf("ref-%s-%d", payee, amount))
	r, err := h.engine.RecordReward(context.Background(), commission.RecordRewardInput{
		PayeeID:    payee,
		ReferralID: &ref,
		Amount:     commission.NewMoney(amount),
		Actor:      "system",
	})
	require.NoError(t, err)
	return r
}

// =============================================================================
// REQUEST PAYOUT
// =============================================================================

func TestRequestPayout_LockWindowAndThresholdScenario(t *testing.T) {
	// GIVEN: Rewards of 300 and 450 created 21 and 10 days ago, threshold 500
	// WHEN: Requesting a payout
	// THEN: Only the 300 is unlocked, below threshold; after the 450 ages
	//       past 20 days a retry succeeds with 750
	h := newHarness(t, 500)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")

	first := h.reward(t, "agent-1", 300)
	h.clock.Advance(11)
	second := h.reward(t, "agent-1", 450)
	h.clock.Advance(10)

	_, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.ErrorIs(t, err, commission.ErrBelowThreshold)
	var below *commission.BelowThresholdError
	require.ErrorAs(t, err, &below)
	assert.True(t, below.Eligible.Equal(commission.NewMoney(300)))
	assert.True(t, below.Threshold.Equal(commission.NewMoney(500)))

	h.clock.Advance(10)
	req, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)

	assert.True(t, req.Amount.Equal(commission.NewMoney(750)))
	assert.Equal(t, commission.PayoutPending, req.Status)
	assert.ElementsMatch(t, []commission.RewardID{first.ID, second.ID}, req.LinkedRewardIDs)
	assert.Equal(t, "Leumi", req.PaymentMethod.BankName)
	assert.Equal(t, "800", req.PaymentMethod.BankBranch)

	for _, id := range req.LinkedRewardIDs {
		r, err := h.store.GetReward(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, commission.RewardApproved, r.Status)
		require.NotNil(t, r.PayoutRequestedAt)
		assert.Equal(t, h.clock.Now(), *r.PayoutRequestedAt)
	}
}

func TestRequestPayout_AmountEqualsSumOfLinkedRewards(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 120)
	h.reward(t, "agent-1", 80)
	h.reward(t, "agent-1", 15)
	h.clock.Advance(20)

	req, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)

	var linked []commission.Reward
	for _, id := range req.LinkedRewardIDs {
		r, err := h.store.GetReward(ctx, id)
		require.NoError(t, err)
		linked = append(linked, r)
	}
	assert.True(t, commission.SumRewards(linked).Equal(req.Amount))
	assert.True(t, req.Amount.Equal(commission.NewMoney(215)))
	assert.Len(t, req.LinkedDisplayNames, 3)
}

func TestRequestPayout_RewardClaimedAtMostOnce(t *testing.T) {
	// GIVEN: A successful payout request
	// WHEN: The payee requests again, with a new reward below threshold
	// THEN: The already-claimed rewards are not eligible again
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 200)
	h.clock.Advance(21)

	_, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)

	h.reward(t, "agent-1", 50)
	h.clock.Advance(21)
	_, err = h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.ErrorIs(t, err, commission.ErrBelowThreshold)
	var below *commission.BelowThresholdError
	require.ErrorAs(t, err, &below)
	assert.True(t, below.Eligible.Equal(commission.NewMoney(50)))
}

func TestRequestPayout_ConcurrentCallsNeverDoubleClaim(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 150)
	h.reward(t, "agent-1", 250)
	h.clock.Advance(30)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, commission.IsConflict(err) || commission.IsClientError(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	reqs, err := h.engine.ListPayoutRequests(ctx, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].LinkedRewardIDs, 2)
}

func TestRequestPayout_MissingBankDetails(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.reward(t, "agent-1", 500)
	h.clock.Advance(25)

	_, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	assert.ErrorIs(t, err, commission.ErrMissingBankDetails)

	// Saved but not confirmed still blocks.
	_, err = h.engine.SaveBankDetails(ctx, commission.BankDetailsInput{
		PayeeID: "agent-1", Role: commission.RoleAgent, BankName: "Leumi", BankBranch: "800", AccountNumber: "44556677",
	})
	require.NoError(t, err)
	_, err = h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	assert.ErrorIs(t, err, commission.ErrMissingBankDetails)

	reqs, err := h.engine.ListPayoutRequests(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestRequestPayout_ThresholdNotConfigured(t *testing.T) {
	mem := store.NewMemory()
	engine := commission.NewEngine(mem, mem)
	ctx := context.Background()
	_, err := engine.SaveBankDetails(ctx, commission.BankDetailsInput{
		PayeeID: "agent-1", Role: commission.RoleAgent, BankName: "Leumi", BankBranch: "800", AccountNumber: "44556677", Confirm: true,
	})
	require.NoError(t, err)

	_, err = engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)

	assert.ErrorIs(t, err, commission.ErrThresholdNotConfigured)
}

func TestRequestPayout_ZeroThresholdNothingEligible(t *testing.T) {
	h := newHarness(t, 0)
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 90)

	_, err := h.engine.RequestPayout(context.Background(), "agent-1", commission.RoleAgent)

	assert.ErrorIs(t, err, commission.ErrNoEligibleRewards)
}

func TestRequestPayout_FailedUnitLeavesNothingBehind(t *testing.T) {
	// GIVEN: An approved reward already claimed out of band
	// WHEN: The payout unit hits the duplicate-claim guard
	// THEN: No request is persisted and no reward is left approved
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	r := h.reward(t, "agent-1", 300)
	h.clock.Advance(21)

	err := h.store.CreatePayoutRequest(ctx, commission.PayoutRequest{
		ID:              "manual-1",
		RequestorID:     "agent-2",
		LinkedRewardIDs: []commission.RewardID{r.ID},
		Amount:          r.Amount,
		Status:          commission.PayoutPending,
		RequestedAt:     h.clock.Now(),
	})
	require.NoError(t, err)
	before := h.notifier.count()

	_, err = h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)

	require.ErrorIs(t, err, commission.ErrDuplicateClaim)
	got, err := h.store.GetReward(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, commission.RewardPending, got.Status)
	mine, err := h.store.ListPayoutRequestsByRequestor(ctx, "agent-1")
	require.NoError(t, err)
	assert.Empty(t, mine)
	assert.Equal(t, before, h.notifier.count(), "rolled back units do not notify")
}

func TestRequestPayout_UnknownRoleRejected(t *testing.T) {
	// GIVEN: A confirmed payee with an aged reward
	// WHEN: Requesting with a role outside agent/handler
	// THEN: Nothing is claimed; an empty role falls back to the profile
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	r := h.reward(t, "agent-1", 300)
	h.clock.Advance(21)

	_, err := h.engine.RequestPayout(ctx, "agent-1", commission.Role("bogus"))

	require.ErrorIs(t, err, commission.ErrUnknownStatus)
	assert.True(t, commission.IsClientError(err))
	got, err := h.store.GetReward(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, commission.RewardPending, got.Status)
	all, err := h.engine.ListPayoutRequests(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	req, err := h.engine.RequestPayout(ctx, "agent-1", "")
	require.NoError(t, err)
	assert.Equal(t, commission.RoleAgent, req.RequestorRole)
}

func TestSaveBankDetails_RequiresKnownRole(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")

	for _, role := range []commission.Role{"", "admin", "Agent"} {
		_, err := h.engine.SaveBankDetails(ctx, commission.BankDetailsInput{
			PayeeID: "agent-1", Role: role, BankName: "Leumi", BankBranch: "800", AccountNumber: "44556677", Confirm: true,
		})
		assert.ErrorIs(t, err, commission.ErrUnknownStatus, "role %q", role)
	}

	// The stored profile is untouched and still readable.
	p, err := h.engine.GetProfile(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, commission.RoleAgent, p.Role)
	assert.NotNil(t, p.ConfirmedAt)
}

// =============================================================================
// CANCEL / MARK PAID
// =============================================================================

func TestCancelPayoutRequest_RestoresRewards(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 120)
	h.reward(t, "agent-1", 130)
	h.clock.Advance(20)

	req, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)

	cancelled, err := h.engine.CancelPayoutRequest(ctx, req.ID, "agent-1", "wrong account")
	require.NoError(t, err)

	assert.Equal(t, commission.PayoutRejected, cancelled.Status)
	require.NotNil(t, cancelled.RejectReason)
	assert.Equal(t, "wrong account", *cancelled.RejectReason)
	for _, id := range req.LinkedRewardIDs {
		r, err := h.store.GetReward(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, commission.RewardPending, r.Status)
		assert.Nil(t, r.PayoutRequestedAt)
	}

	// The same rewards can be claimed again.
	again, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)
	assert.ElementsMatch(t, req.LinkedRewardIDs, again.LinkedRewardIDs)
	assert.True(t, again.Amount.Equal(req.Amount))
}

func TestMarkPayoutPaid_SettlesRequestAndRewards(t *testing.T) {
	// GIVEN: A pending request with two linked rewards
	// WHEN: An admin marks it paid
	// THEN: Request and both rewards are paid, and cancellation is refused
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 200)
	h.reward(t, "agent-1", 300)
	h.clock.Advance(20)
	req, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)
	require.Len(t, req.LinkedRewardIDs, 2)

	paid, err := h.engine.MarkPayoutPaid(ctx, req.ID, "admin-1", "wire 7781")
	require.NoError(t, err)

	assert.Equal(t, commission.PayoutPaid, paid.Status)
	assert.Equal(t, "admin-1", paid.ProcessedBy)
	require.NotNil(t, paid.ProcessedAt)
	for _, id := range req.LinkedRewardIDs {
		r, err := h.store.GetReward(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, commission.RewardPaid, r.Status)
	}

	_, err = h.engine.CancelPayoutRequest(ctx, req.ID, "agent-1", "changed my mind")
	assert.ErrorIs(t, err, commission.ErrNotCancellable)
	var nce *commission.NotCancellableError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, commission.PayoutPaid, nce.Status)

	_, err = h.engine.MarkPayoutPaid(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, commission.ErrInvalidPayoutTransition)
}

func TestCancelPayoutRequest_RejectedIsNotCancellable(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 200)
	h.clock.Advance(20)
	req, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)
	_, err = h.engine.CancelPayoutRequest(ctx, req.ID, "admin-1", "duplicate")
	require.NoError(t, err)

	_, err = h.engine.CancelPayoutRequest(ctx, req.ID, "admin-1", "again")

	assert.ErrorIs(t, err, commission.ErrNotCancellable)
}

func TestPayoutRequest_NotFound(t *testing.T) {
	h := newHarness(t, 100)

	_, err := h.engine.MarkPayoutPaid(context.Background(), "missing", "admin-1", "")

	assert.True(t, commission.IsNotFound(err))
}

// =============================================================================
// CASES
// =============================================================================

func TestTransitionCase_PersistsLockWindowAtomically(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	handler := commission.PayeeID("handler-1")

	c, err := h.engine.OpenCase(ctx, commission.OpenCaseInput{LeadID: "lead-1", HandlerID: &handler, Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, commission.CaseAssigned, c.Status)

	for _, target := range []commission.CaseStatus{commission.CaseContacted, commission.CaseAppointmentScheduled} {
		c, _, err = h.engine.TransitionCase(ctx, c.ID, target, "handler-1")
		require.NoError(t, err)
	}
	h.clock.Advance(1)
	c, res, err := h.engine.TransitionCase(ctx, c.ID, commission.CasePaid, "handler-1")
	require.NoError(t, err)
	require.NotNil(t, res.StartLockWindow)

	stored, err := h.engine.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, commission.CasePaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	require.NotNil(t, stored.PaidCountdownStartedAt)
	assert.Equal(t, h.clock.Now(), *stored.PaidAt)

	// Paid again is a no-op and keeps the original stamp.
	h.clock.Advance(3)
	_, res, err = h.engine.TransitionCase(ctx, c.ID, commission.CasePaid, "handler-1")
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	stored, err = h.engine.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(-3*24*time.Hour), *stored.PaidAt)

	trail, err := h.engine.AuditTrail(ctx, commission.AuditFilter{
		Actions: []commission.AuditAction{commission.AuditCaseTransitioned},
	})
	require.NoError(t, err)
	assert.Len(t, trail, 3)
}

func TestTransitionCase_InvalidLeavesCaseUnchanged(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	c, err := h.engine.OpenCase(ctx, commission.OpenCaseInput{LeadID: "lead-1"})
	require.NoError(t, err)

	_, _, err = h.engine.TransitionCase(ctx, c.ID, commission.CaseVisaStage, "admin-1")

	assert.ErrorIs(t, err, commission.ErrInvalidTransition)
	stored, err := h.engine.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, commission.CaseAssigned, stored.Status)
}

func TestRearmLockWindow_OnlyAfterPaid(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	c, err := h.engine.OpenCase(ctx, commission.OpenCaseInput{LeadID: "lead-1"})
	require.NoError(t, err)

	_, err = h.engine.RearmLockWindow(ctx, c.ID, time.Time{}, "admin-1")
	require.ErrorIs(t, err, commission.ErrCaseNotPaid)

	for _, target := range []commission.CaseStatus{commission.CaseContacted, commission.CaseAppointmentScheduled, commission.CasePaid} {
		_, _, err = h.engine.TransitionCase(ctx, c.ID, target, "admin-1")
		require.NoError(t, err)
	}
	paid, err := h.engine.GetCase(ctx, c.ID)
	require.NoError(t, err)

	h.clock.Advance(5)
	rearmed, err := h.engine.RearmLockWindow(ctx, c.ID, time.Time{}, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, *paid.PaidAt, *rearmed.PaidAt, "paidAt never moves")
	assert.Equal(t, h.clock.Now(), *rearmed.PaidCountdownStartedAt)
}

func TestUpdateFinancials_RejectsNegativeAndDerivesLedger(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	c, err := h.engine.OpenCase(ctx, commission.OpenCaseInput{LeadID: "lead-1"})
	require.NoError(t, err)

	_, err = h.engine.UpdateFinancials(ctx, c.ID, commission.Financials{ServiceFee: commission.NewMoney(-5)}, "admin-1")
	require.ErrorIs(t, err, commission.ErrInvalidAmount)

	_, err = h.engine.UpdateFinancials(ctx, c.ID, commission.Financials{
		ServiceFee:         commission.NewMoney(1000),
		SchoolCommission:   commission.NewMoney(200),
		ReferrerCommission: commission.NewMoney(150),
		HandlerCommission:  commission.NewMoney(100),
		ReferralDiscount:   commission.NewMoney(50),
		TranslationFee:     commission.NewMoney(25),
	}, "admin-1")
	require.NoError(t, err)

	snap, err := h.engine.CaseLedger(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, snap.NetProfit.Equal(commission.NewMoney(875)))
}

func TestRecordReward_CaseMustBePaid(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	c, err := h.engine.OpenCase(ctx, commission.OpenCaseInput{LeadID: "lead-1"})
	require.NoError(t, err)

	_, err = h.engine.RecordReward(ctx, commission.RecordRewardInput{
		PayeeID: "handler-1", CaseID: &c.ID, Amount: commission.NewMoney(100),
	})
	assert.ErrorIs(t, err, commission.ErrCaseNotPaid)

	_, err = h.engine.RecordReward(ctx, commission.RecordRewardInput{PayeeID: "handler-1", Amount: commission.NewMoney(0)})
	assert.ErrorIs(t, err, commission.ErrInvalidAmount)
}

// =============================================================================
// READ MODELS
// =============================================================================

func TestPayeeSummary_Totals(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")

	h.reward(t, "agent-1", 100)
	h.reward(t, "agent-1", 40)
	h.clock.Advance(20)
	req, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)
	_, err = h.engine.MarkPayoutPaid(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)

	h.reward(t, "agent-1", 70)
	h.clock.Advance(20)
	_, err = h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.ErrorIs(t, err, commission.ErrBelowThreshold)
	h.reward(t, "agent-1", 55) // locked

	sum, err := h.engine.PayeeSummary(ctx, "agent-1")
	require.NoError(t, err)

	assert.True(t, sum.Totals.Paid.Equal(commission.NewMoney(140)), "paid %s", sum.Totals.Paid)
	assert.True(t, sum.Totals.Available.Equal(commission.NewMoney(70)), "available %s", sum.Totals.Available)
	assert.True(t, sum.Totals.Locked.Equal(commission.NewMoney(55)), "locked %s", sum.Totals.Locked)
	assert.True(t, sum.Totals.Requested.IsZero())
	assert.False(t, sum.CanRequest)
	require.NotNil(t, sum.Threshold)
	assert.Len(t, sum.Rewards, 4)
	assert.Len(t, sum.Requests, 1)
}

func TestCaseOversight_UsesCasePaymentWindow(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	c, err := h.engine.OpenCase(ctx, commission.OpenCaseInput{LeadID: "lead-1"})
	require.NoError(t, err)
	_, err = h.engine.OpenCase(ctx, commission.OpenCaseInput{LeadID: "lead-2"})
	require.NoError(t, err)
	for _, target := range []commission.CaseStatus{commission.CaseContacted, commission.CaseAppointmentScheduled, commission.CasePaid} {
		_, _, err = h.engine.TransitionCase(ctx, c.ID, target, "admin-1")
		require.NoError(t, err)
	}
	h.clock.Advance(28)

	rows, err := h.engine.CaseOversight(ctx)
	require.NoError(t, err)

	require.Len(t, rows, 1, "cases without a countdown are not listed")
	assert.Equal(t, c.ID, rows[0].Case.ID)
	assert.Equal(t, commission.WindowOverdue, rows[0].Window.State)
	assert.Equal(t, -8, rows[0].Window.DaysRemaining)
	assert.False(t, rows[0].Settled)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_RevertsOrphanedApprovedRewards(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	r := h.reward(t, "agent-1", 200)
	stamp := h.clock.Now()
	require.NoError(t, h.store.CompareAndSetRewardStatus(ctx, r.ID, commission.RewardPending, commission.RewardApproved, &stamp, stamp))

	rep, err := h.engine.Reconcile(ctx, "scheduler")
	require.NoError(t, err)

	assert.Equal(t, []commission.RewardID{r.ID}, rep.Reverted)
	got, err := h.store.GetReward(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, commission.RewardPending, got.Status)
	assert.Nil(t, got.PayoutRequestedAt)

	// Idempotent.
	rep, err = h.engine.Reconcile(ctx, "scheduler")
	require.NoError(t, err)
	assert.Empty(t, rep.Reverted)
}

func TestReconcile_LeavesClaimedRewardsAlone(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()
	h.confirmBank(t, "agent-1")
	h.reward(t, "agent-1", 200)
	h.clock.Advance(20)
	_, err := h.engine.RequestPayout(ctx, "agent-1", commission.RoleAgent)
	require.NoError(t, err)

	rep, err := h.engine.Reconcile(ctx, "scheduler")

	require.NoError(t, err)
	assert.Empty(t, rep.Reverted)
	assert.Empty(t, rep.Mismatches)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSetMinPayoutThreshold(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	require.ErrorIs(t, h.engine.SetMinPayoutThreshold(ctx, commission.NewMoney(-1), "admin-1"), commission.ErrInvalidAmount)
	require.NoError(t, h.engine.SetMinPayoutThreshold(ctx, commission.NewMoney(250), "admin-1"))

	got, err := h.engine.MinPayoutThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(commission.NewMoney(250)))

	ro := commission.NewEngine(h.store, commission.StaticEligibility{Threshold: commission.NewMoney(1)})
	assert.ErrorIs(t, ro.SetMinPayoutThreshold(ctx, commission.NewMoney(5), "admin-1"), commission.ErrThresholdReadOnly)
}

var errAuditDown = errors.New("audit log unavailable")

// txState is what the memory store hands to a WithTx unit.
type txState interface {
	commission.Store
	commission.EligibilityConfig
	commission.ThresholdSetter
}

// auditFailingStore fails every audit append made inside a unit.
type auditFailingStore struct {
	*store.Memory
}

func (f auditFailingStore) WithTx(ctx context.Context, fn func(commission.Store) error) error {
	return f.Memory.WithTx(ctx, func(s commission.Store) error {
		return fn(auditFailingTx{s.(txState)})
	})
}

type auditFailingTx struct {
	txState
}

func (auditFailingTx) AppendAudit(context.Context, commission.AuditEntry) error {
	return errAuditDown
}

func TestSetMinPayoutThreshold_RolledBackWhenAuditFails(t *testing.T) {
	// GIVEN: A threshold of 100 and an audit log that rejects writes
	// WHEN: Changing the threshold to 250
	// THEN: The change is refused and the threshold stays 100
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SetMinPayoutThreshold(ctx, commission.NewMoney(100)))
	f := auditFailingStore{mem}
	e := commission.NewEngine(f, f)

	err := e.SetMinPayoutThreshold(ctx, commission.NewMoney(250), "admin-1")

	require.ErrorIs(t, err, errAuditDown)
	got, err := mem.MinPayoutThreshold(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(commission.NewMoney(100)))
}

func TestSetMinPayoutThreshold_AuditsPreviousValue(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	require.NoError(t, h.engine.SetMinPayoutThreshold(ctx, commission.NewMoney(250), "admin-1"))

	entries, err := h.engine.AuditTrail(ctx, commission.AuditFilter{
		Actions: []commission.AuditAction{commission.AuditThresholdChanged},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "100", entries[0].Payload["previous"])
	assert.Equal(t, "250", entries[0].Payload["current"])
	assert.Equal(t, "admin-1", entries[0].ActorID)
}
