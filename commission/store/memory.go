// Package store provides in-memory implementations of the commission stores.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements commission.TxStore, commission.EligibilityConfig and
// commission.ThresholdSetter. WithTx serializes units under one mutex and
// rolls back by restoring a snapshot.
type Memory struct {
	mu sync.Mutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// state holds the records. Its methods assume the caller holds Memory.mu.
type state struct {
	cases     map[commission.CaseID]commission.Case
	rewards   map[commission.RewardID]commission.Reward
	requests  map[commission.PayoutRequestID]commission.PayoutRequest
	claims    map[commission.RewardID]commission.PayoutRequestID
	profiles  map[commission.PayeeID]commission.PayeeProfile
	audit     []commission.AuditEntry
	threshold *decimal.Decimal
}

func newState() *state {
	return &state{
		cases:    make(map[commission.CaseID]commission.Case),
		rewards:  make(map[commission.RewardID]commission.Reward),
		requests: make(map[commission.PayoutRequestID]commission.PayoutRequest),
		claims:   make(map[commission.RewardID]commission.PayoutRequestID),
		profiles: make(map[commission.PayeeID]commission.PayeeProfile),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.cases {
		c.cases[k] = v
	}
	for k, v := range s.rewards {
		c.rewards[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.claims {
		c.claims[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	c.audit = append([]commission.AuditEntry(nil), s.audit...)
	if s.threshold != nil {
		t := *s.threshold
		c.threshold = &t
	}
	return c
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(commission.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// CASES
// =============================================================================

func (s *state) CreateCase(_ context.Context, c commission.Case) error {
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("case %s already exists", c.ID)
	}
	s.cases[c.ID] = c
	return nil
}

func (s *state) GetCase(_ context.Context, id commission.CaseID) (commission.Case, error) {
	c, ok := s.cases[id]
	if !ok {
		return commission.Case{}, fmt.Errorf("%w: %s", commission.ErrCaseNotFound, id)
	}
	return c, nil
}

func (s *state) UpdateCase(_ context.Context, c commission.Case) error {
	if _, ok := s.cases[c.ID]; !ok {
		return fmt.Errorf("%w: %s", commission.ErrCaseNotFound, c.ID)
	}
	s.cases[c.ID] = c
	return nil
}

func (s *state) ListCases(_ context.Context) ([]commission.Case, error) {
	out := make([]commission.Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return olderFirst(out[i].CreatedAt, out[j].CreatedAt, string(out[i].ID), string(out[j].ID))
	})
	return out, nil
}

// =============================================================================
// REWARDS
// =============================================================================

func (s *state) CreateReward(_ context.Context, r commission.Reward) error {
	if _, ok := s.rewards[r.ID]; ok {
		return fmt.Errorf("reward %s already exists", r.ID)
	}
	s.rewards[r.ID] = r
	return nil
}

func (s *state) GetReward(_ context.Context, id commission.RewardID) (commission.Reward, error) {
	r, ok := s.rewards[id]
	if !ok {
		return commission.Reward{}, fmt.Errorf("%w: %s", commission.ErrRewardNotFound, id)
	}
	return r, nil
}

func (s *state) ListRewardsByPayee(_ context.Context, payee commission.PayeeID) ([]commission.Reward, error) {
	return s.filterRewards(func(r commission.Reward) bool { return r.PayeeID == payee }), nil
}

func (s *state) ListRewardsByStatus(_ context.Context, status commission.RewardStatus) ([]commission.Reward, error) {
	return s.filterRewards(func(r commission.Reward) bool { return r.Status == status }), nil
}

func (s *state) ListRewardsByCase(_ context.Context, caseID commission.CaseID) ([]commission.Reward, error) {
	return s.filterRewards(func(r commission.Reward) bool { return r.CaseID != nil && *r.CaseID == caseID }), nil
}

func (s *state) filterRewards(keep func(commission.Reward) bool) []commission.Reward {
	var out []commission.Reward
	for _, r := range s.rewards {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return olderFirst(out[i].CreatedAt, out[j].CreatedAt, string(out[i].ID), string(out[j].ID))
	})
	return out
}

func (s *state) CompareAndSetRewardStatus(_ context.Context, id commission.RewardID, from, to commission.RewardStatus, payoutRequestedAt *time.Time, at time.Time) error {
	r, ok := s.rewards[id]
	if !ok {
		return fmt.Errorf("%w: %s", commission.ErrRewardNotFound, id)
	}
	if r.Status != from {
		return fmt.Errorf("%w: reward %s is %s, expected %s", commission.ErrConcurrentModification, id, r.Status, from)
	}
	r.Status = to
	r.PayoutRequestedAt = payoutRequestedAt
	r.UpdatedAt = at
	s.rewards[id] = r
	return nil
}

// =============================================================================
// PAYOUT REQUESTS
// =============================================================================

func (s *state) CreatePayoutRequest(_ context.Context, p commission.PayoutRequest) error {
	if _, ok := s.requests[p.ID]; ok {
		return fmt.Errorf("payout request %s already exists", p.ID)
	}
	if len(p.LinkedRewardIDs) == 0 {
		return fmt.Errorf("%w: payout request %s links no rewards", commission.ErrNoEligibleRewards, p.ID)
	}
	seen := make(map[commission.RewardID]bool, len(p.LinkedRewardIDs))
	for _, rid := range p.LinkedRewardIDs {
		if seen[rid] {
			return &commission.DuplicateClaimError{RewardID: rid}
		}
		seen[rid] = true
		if holder, ok := s.claims[rid]; ok {
			return &commission.DuplicateClaimError{RewardID: rid, Cause: fmt.Errorf("held by request %s", holder)}
		}
	}
	p.LinkedRewardIDs = append([]commission.RewardID(nil), p.LinkedRewardIDs...)
	p.LinkedDisplayNames = append([]string(nil), p.LinkedDisplayNames...)
	s.requests[p.ID] = p
	for _, rid := range p.LinkedRewardIDs {
		s.claims[rid] = p.ID
	}
	return nil
}

func (s *state) GetPayoutRequest(_ context.Context, id commission.PayoutRequestID) (commission.PayoutRequest, error) {
	p, ok := s.requests[id]
	if !ok {
		return commission.PayoutRequest{}, fmt.Errorf("%w: %s", commission.ErrPayoutNotFound, id)
	}
	return p, nil
}

func (s *state) ListPayoutRequestsByRequestor(_ context.Context, payee commission.PayeeID) ([]commission.PayoutRequest, error) {
	return s.filterRequests(func(p commission.PayoutRequest) bool { return p.RequestorID == payee }), nil
}

func (s *state) ListPayoutRequests(_ context.Context, status *commission.PayoutStatus) ([]commission.PayoutRequest, error) {
	return s.filterRequests(func(p commission.PayoutRequest) bool { return status == nil || p.Status == *status }), nil
}

func (s *state) filterRequests(keep func(commission.PayoutRequest) bool) []commission.PayoutRequest {
	var out []commission.PayoutRequest
	for _, p := range s.requests {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return olderFirst(out[i].RequestedAt, out[j].RequestedAt, string(out[i].ID), string(out[j].ID))
	})
	return out
}

func (s *state) UpdatePayoutRequestStatus(_ context.Context, id commission.PayoutRequestID, from commission.PayoutStatus, upd commission.PayoutUpdate) error {
	p, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("%w: %s", commission.ErrPayoutNotFound, id)
	}
	if p.Status != from {
		return fmt.Errorf("%w: payout request %s is %s, expected %s", commission.ErrConcurrentModification, id, p.Status, from)
	}
	p.Status = upd.Status
	p.RejectReason = upd.RejectReason
	p.AdminNotes = upd.AdminNotes
	p.ProcessedAt = upd.ProcessedAt
	p.ProcessedBy = upd.ProcessedBy
	s.requests[id] = p

	if upd.Status == commission.PayoutRejected {
		for _, rid := range p.LinkedRewardIDs {
			if s.claims[rid] == id {
				delete(s.claims, rid)
			}
		}
	}
	return nil
}

// =============================================================================
// PROFILES
// =============================================================================

func (s *state) GetProfile(_ context.Context, id commission.PayeeID) (commission.PayeeProfile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return commission.PayeeProfile{}, fmt.Errorf("%w: %s", commission.ErrProfileNotFound, id)
	}
	return p, nil
}

func (s *state) SaveProfile(_ context.Context, p commission.PayeeProfile) error {
	s.profiles[p.PayeeID] = p
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *state) AppendAudit(_ context.Context, e commission.AuditEntry) error {
	s.audit = append(s.audit, e)
	return nil
}

func (s *state) QueryAudit(_ context.Context, f commission.AuditFilter) ([]commission.AuditEntry, error) {
	var out []commission.AuditEntry
	for _, e := range s.audit {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func olderFirst(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID < bID
}

// =============================================================================
// LOCKED ACCESS - commission.Store methods on Memory
// =============================================================================

func (m *Memory) CreateCase(ctx context.Context, c commission.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateCase(ctx, c)
}

func (m *Memory) GetCase(ctx context.Context, id commission.CaseID) (commission.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetCase(ctx, id)
}

func (m *Memory) UpdateCase(ctx context.Context, c commission.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateCase(ctx, c)
}

func (m *Memory) ListCases(ctx context.Context) ([]commission.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListCases(ctx)
}

func (m *Memory) CreateReward(ctx context.Context, r commission.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateReward(ctx, r)
}

func (m *Memory) GetReward(ctx context.Context, id commission.RewardID) (commission.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetReward(ctx, id)
}

func (m *Memory) ListRewardsByPayee(ctx context.Context, payee commission.PayeeID) ([]commission.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListRewardsByPayee(ctx, payee)
}

func (m *Memory) ListRewardsByStatus(ctx context.Context, status commission.RewardStatus) ([]commission.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListRewardsByStatus(ctx, status)
}

func (m *Memory) ListRewardsByCase(ctx context.Context, caseID commission.CaseID) ([]commission.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListRewardsByCase(ctx, caseID)
}

func (m *Memory) CompareAndSetRewardStatus(ctx context.Context, id commission.RewardID, from, to commission.RewardStatus, payoutRequestedAt *time.Time, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CompareAndSetRewardStatus(ctx, id, from, to, payoutRequestedAt, at)
}

func (m *Memory) CreatePayoutRequest(ctx context.Context, p commission.PayoutRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreatePayoutRequest(ctx, p)
}

func (m *Memory) GetPayoutRequest(ctx context.Context, id commission.PayoutRequestID) (commission.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetPayoutRequest(ctx, id)
}

func (m *Memory) ListPayoutRequestsByRequestor(ctx context.Context, payee commission.PayeeID) ([]commission.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListPayoutRequestsByRequestor(ctx, payee)
}

func (m *Memory) ListPayoutRequests(ctx context.Context, status *commission.PayoutStatus) ([]commission.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListPayoutRequests(ctx, status)
}

func (m *Memory) UpdatePayoutRequestStatus(ctx context.Context, id commission.PayoutRequestID, from commission.PayoutStatus, upd commission.PayoutUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdatePayoutRequestStatus(ctx, id, from, upd)
}

func (m *Memory) GetProfile(ctx context.Context, id commission.PayeeID) (commission.PayeeProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetProfile(ctx, id)
}

func (m *Memory) SaveProfile(ctx context.Context, p commission.PayeeProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveProfile(ctx, p)
}

func (m *Memory) AppendAudit(ctx context.Context, e commission.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendAudit(ctx, e)
}

func (m *Memory) QueryAudit(ctx context.Context, f commission.AuditFilter) ([]commission.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.QueryAudit(ctx, f)
}

// =============================================================================
// ELIGIBILITY CONFIG
// =============================================================================

func (m *Memory) MinPayoutThreshold(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MinPayoutThreshold(ctx)
}

func (m *Memory) SetMinPayoutThreshold(ctx context.Context, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetMinPayoutThreshold(ctx, amount)
}

// state carries the threshold too, so a WithTx unit can write it.
func (s *state) MinPayoutThreshold(context.Context) (decimal.Decimal, error) {
	if s.threshold == nil {
		return decimal.Zero, commission.ErrThresholdNotConfigured
	}
	return *s.threshold, nil
}

func (s *state) SetMinPayoutThreshold(_ context.Context, amount decimal.Decimal) error {
	s.threshold = &amount
	return nil
}

var (
	_ commission.TxStore           = (*Memory)(nil)
	_ commission.EligibilityConfig = (*Memory)(nil)
	_ commission.ThresholdSetter   = (*Memory)(nil)
	_ commission.Store             = (*state)(nil)
	_ commission.ThresholdSetter   = (*state)(nil)
)
