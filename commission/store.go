/*
store.go - Persistence interfaces for cases, rewards and payout requests

PURPOSE:
  Defines the boundary between the engine and the record store. The engine
  never assumes a particular database; it needs typed reads, a handful of
  conditional writes and an all-or-nothing unit of work.

KEY INTERFACES:
  CaseStore:         Case records
  RewardStore:       Reward records with compare-and-swap status writes
  PayoutStore:       Payout requests with a unique claim per reward
  ProfileStore:      Payee bank profiles
  EligibilityConfig: Minimum payout threshold source
  AuditLog:          Append-only record of who did what when
  TxStore:           Store plus WithTx

DOUBLE-CLAIM GUARDS:
  Two independent guards keep a reward out of two live payout requests:
  1. CompareAndSetRewardStatus only moves a reward pending → approved if it
     is still pending at write time.
  2. CreatePayoutRequest refuses a reward already linked to a request whose
     status is not rejected (a unique index in SQL implementations).
  Either guard failing inside WithTx rolls the whole unit back.

IMPLEMENTATIONS:
  - commission/store/memory.go: In-memory for tests and local runs
  - store/sqlstore: SQLite and PostgreSQL
  - store/redisstore: EligibilityConfig only

SEE ALSO:
  - payout.go: Uses both guards
  - reconcile.go: Compensating check across stores
*/
package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD STORES
// =============================================================================

type CaseStore interface {
	CreateCase(ctx context.Context, c Case) error
	// GetCase returns ErrCaseNotFound when id is unknown.
	GetCase(ctx context.Context, id CaseID) (Case, error)
	UpdateCase(ctx context.Context, c Case) error
	ListCases(ctx context.Context) ([]Case, error)
}

type RewardStore interface {
	CreateReward(ctx context.Context, r Reward) error
	// GetReward returns ErrRewardNotFound when id is unknown.
	GetReward(ctx context.Context, id RewardID) (Reward, error)
	ListRewardsByPayee(ctx context.Context, payee PayeeID) ([]Reward, error)
	ListRewardsByStatus(ctx context.Context, status RewardStatus) ([]Reward, error)
	ListRewardsByCase(ctx context.Context, caseID CaseID) ([]Reward, error)

	// CompareAndSetRewardStatus moves a reward from → to only if its stored
	// status is still from. Otherwise it returns ErrConcurrentModification.
	// payoutRequestedAt replaces the stored stamp (nil clears it).
	CompareAndSetRewardStatus(ctx context.Context, id RewardID, from, to RewardStatus, payoutRequestedAt *time.Time, at time.Time) error
}

// PayoutUpdate carries the fields written when a request leaves pending.
type PayoutUpdate struct {
	Status       PayoutStatus
	RejectReason *string
	AdminNotes   string
	ProcessedAt  *time.Time
	ProcessedBy  string
}

type PayoutStore interface {
	// CreatePayoutRequest persists p and claims every linked reward.
	// It returns a *DuplicateClaimError if a linked reward is already held
	// by another request that is not rejected.
	CreatePayoutRequest(ctx context.Context, p PayoutRequest) error

	// GetPayoutRequest returns ErrPayoutNotFound when id is unknown.
	GetPayoutRequest(ctx context.Context, id PayoutRequestID) (PayoutRequest, error)
	ListPayoutRequestsByRequestor(ctx context.Context, payee PayeeID) ([]PayoutRequest, error)
	// ListPayoutRequests returns every request, or only those in status when set.
	ListPayoutRequests(ctx context.Context, status *PayoutStatus) ([]PayoutRequest, error)

	// UpdatePayoutRequestStatus applies upd only if the stored status is from.
	// Otherwise it returns ErrConcurrentModification. Moving to rejected
	// releases the request's reward claims.
	UpdatePayoutRequestStatus(ctx context.Context, id PayoutRequestID, from PayoutStatus, upd PayoutUpdate) error
}

type ProfileStore interface {
	// GetProfile returns ErrProfileNotFound when the payee has no profile.
	GetProfile(ctx context.Context, id PayeeID) (PayeeProfile, error)
	SaveProfile(ctx context.Context, p PayeeProfile) error
}

// =============================================================================
// ELIGIBILITY CONFIG
// =============================================================================

// EligibilityConfig supplies the minimum payout threshold.
// A missing value is ErrThresholdNotConfigured, never zero.
type EligibilityConfig interface {
	MinPayoutThreshold(ctx context.Context) (decimal.Decimal, error)
}

// ThresholdSetter is implemented by eligibility sources that accept writes.
// Record stores implement it on their transactional Store as well, so a
// threshold change commits with its audit entry.
type ThresholdSetter interface {
	SetMinPayoutThreshold(ctx context.Context, amount decimal.Decimal) error
}

// StaticEligibility is a fixed threshold.
type StaticEligibility struct {
	Threshold decimal.Decimal
}

func (s StaticEligibility) MinPayoutThreshold(context.Context) (decimal.Decimal, error) {
	return s.Threshold, nil
}

// =============================================================================
// AUDIT LOG - Tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditCaseOpened        AuditAction = "case_opened"
	AuditCaseTransitioned  AuditAction = "case_transitioned"
	AuditLockWindowRearmed AuditAction = "lock_window_rearmed"
	AuditFinancialsUpdated AuditAction = "financials_updated"
	AuditRewardRecorded    AuditAction = "reward_recorded"
	AuditPayoutRequested   AuditAction = "payout_requested"
	AuditPayoutCancelled   AuditAction = "payout_cancelled"
	AuditPayoutPaid        AuditAction = "payout_paid"
	AuditProfileSaved      AuditAction = "profile_saved"
	AuditThresholdChanged  AuditAction = "threshold_changed"
	AuditRewardReconciled  AuditAction = "reward_reconciled"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	SubjectID string         // case, reward, request or payee ID
	Payload   map[string]any // action-specific data
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	SubjectID *string
	ActorID   *string
	Actions   []AuditAction
	From      *time.Time
	To        *time.Time
}

// Matches reports whether e passes every set criterion.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.SubjectID != nil && e.SubjectID != *f.SubjectID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}

// =============================================================================
// STORE - Everything the engine reads and writes
// =============================================================================

type Store interface {
	CaseStore
	RewardStore
	PayoutStore
	ProfileStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to fn
	// is rolled back. If fn returns nil, the writes are committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
