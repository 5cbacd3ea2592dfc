/*
Package commission provides the commission settlement and payout eligibility engine.

PURPOSE:
  This package decides how much money a referrer (an agent or a case handler)
  has earned, when that money becomes claimable, how claims are bundled into
  payout requests, and how a case's lifecycle gates when commissions exist.

KEY CONCEPTS IN THIS FILE (types.go):
  - Case: One student's engagement record, with its monetary line items
  - Reward: One discrete commission claim owed to a payee
  - PayoutRequest: A batch of claimable rewards submitted together
  - PayeeProfile: Bank details snapshot used to pay a payee
  - Status enums: Exhaustive, parsed at every boundary

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, never float64
  2. Type Safety: Distinct ID types prevent mixing case/reward/request IDs
  3. Closed Enums: Unknown status strings are rejected, never passed through
  4. Auditability: Every state change is recorded in the AuditLog

USAGE:
  engine := commission.NewEngine(store, eligibility)
  req, err := engine.RequestPayout(ctx, "agent-42", commission.RoleAgent)
  if errors.Is(err, commission.ErrBelowThreshold) {
      // not enough unlocked rewards yet
  }

SEE ALSO:
  - casefsm.go: Case lifecycle state machine
  - reward.go: Reward lifecycle state machine
  - lockwindow.go: 20-day lock window policy
  - payout.go: Payout request aggregation
*/
package commission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// NewMoney builds an amount from an integer number of currency units.
func NewMoney(units int64) decimal.Decimal {
	return decimal.NewFromInt(units)
}

// MustParseMoney parses a decimal string and panics on malformed input.
func MustParseMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SumRewards totals the amounts of the given rewards.
func SumRewards(rewards []Reward) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rewards {
		total = total.Add(r.Amount)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CaseID string
type LeadID string
type RewardID string
type ReferralID string
type PayoutRequestID string
type PayeeID string

// Role identifies which kind of referrer a payee is.
type Role string

const (
	RoleAgent   Role = "agent"
	RoleHandler Role = "handler"
)

// ParseRole rejects any role other than agent or handler.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAgent, RoleHandler:
		return r, nil
	}
	return "", fmt.Errorf("%w: role %q", ErrUnknownStatus, s)
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// =============================================================================
// CASE
// =============================================================================

// CaseStatus is a stage in the case lifecycle. See casefsm.go.
type CaseStatus string

const (
	CaseAssigned              CaseStatus = "assigned"
	CaseContacted             CaseStatus = "contacted"
	CaseAppointmentScheduled  CaseStatus = "appointment_scheduled"
	CasePaid                  CaseStatus = "paid"
	CaseReadyToApply          CaseStatus = "ready_to_apply"
	CaseRegistrationSubmitted CaseStatus = "registration_submitted"
	CaseVisaStage             CaseStatus = "visa_stage"
	CaseCompleted             CaseStatus = "completed"
	CaseClosed                CaseStatus = "closed"
	CaseLost                  CaseStatus = "lost"
)

// ParseCaseStatus converts a stored or submitted string into a CaseStatus.
// "settled" is accepted as an alias of completed.
func ParseCaseStatus(s string) (CaseStatus, error) {
	if s == "settled" {
		return CaseCompleted, nil
	}
	st := CaseStatus(s)
	if _, ok := caseStageIndex[st]; ok {
		return st, nil
	}
	if st == CaseClosed || st == CaseLost {
		return st, nil
	}
	return "", fmt.Errorf("%w: case status %q", ErrUnknownStatus, s)
}

func (s *CaseStatus) UnmarshalText(b []byte) error {
	v, err := ParseCaseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Financials holds the monetary line items of a case.
// Zero values mean "absent" and count as 0 everywhere.
type Financials struct {
	ServiceFee         decimal.Decimal
	SchoolCommission   decimal.Decimal
	HandlerCommission  decimal.Decimal
	ReferrerCommission decimal.Decimal
	ReferralDiscount   decimal.Decimal
	TranslationFee     decimal.Decimal
}

// Validate rejects negative line items.
func (f Financials) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"service_fee", f.ServiceFee},
		{"school_commission", f.SchoolCommission},
		{"handler_commission", f.HandlerCommission},
		{"referrer_commission", f.ReferrerCommission},
		{"referral_discount", f.ReferralDiscount},
		{"translation_fee", f.TranslationFee},
	}
	for _, fld := range fields {
		if fld.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative (got %s)", ErrInvalidAmount, fld.name, fld.value)
		}
	}
	return nil
}

// Case is the working record for one student once a lead is assigned.
type Case struct {
	ID                CaseID
	LeadID            LeadID
	AssignedHandlerID *PayeeID
	ReferrerID        *PayeeID
	Status            CaseStatus

	// PaidAt is set once, the first time the case reaches paid.
	PaidAt *time.Time
	// PaidCountdownStartedAt starts the lock window; may be re-armed.
	PaidCountdownStartedAt *time.Time

	Financials Financials

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// REWARD
// =============================================================================

// RewardStatus is a state in the reward lifecycle. See reward.go.
type RewardStatus string

const (
	RewardPending  RewardStatus = "pending"
	RewardApproved RewardStatus = "approved"
	RewardPaid     RewardStatus = "paid"
	RewardRejected RewardStatus = "rejected"
)

func ParseRewardStatus(s string) (RewardStatus, error) {
	switch st := RewardStatus(s); st {
	case RewardPending, RewardApproved, RewardPaid, RewardRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: reward status %q", ErrUnknownStatus, s)
}

func (s *RewardStatus) UnmarshalText(b []byte) error {
	v, err := ParseRewardStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Reward is one owed-commission claim for a referrer.
type Reward struct {
	ID         RewardID
	PayeeID    PayeeID
	CaseID     *CaseID
	ReferralID *ReferralID
	Amount     decimal.Decimal
	Status     RewardStatus

	CreatedAt         time.Time
	PayoutRequestedAt *time.Time
	UpdatedAt         time.Time

	// AdminNotes may embed a case or referral identifier for traceability.
	AdminNotes string
}

// DisplayName is the label shown next to a reward in payout audits.
func (r Reward) DisplayName() string {
	switch {
	case r.CaseID != nil:
		return "case " + string(*r.CaseID)
	case r.ReferralID != nil:
		return "referral " + string(*r.ReferralID)
	case r.AdminNotes != "":
		return r.AdminNotes
	}
	return "reward " + string(r.ID)
}

// =============================================================================
// PAYOUT REQUEST
// =============================================================================

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRejected PayoutStatus = "rejected"
)

func ParsePayoutStatus(s string) (PayoutStatus, error) {
	switch st := PayoutStatus(s); st {
	case PayoutPending, PayoutPaid, PayoutRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: payout status %q", ErrUnknownStatus, s)
}

func (s *PayoutStatus) UnmarshalText(b []byte) error {
	v, err := ParsePayoutStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// PaymentMethod is the bank details snapshot taken when a request is created.
type PaymentMethod struct {
	BankName      string `json:"bank_name"`
	BankBranch    string `json:"bank_branch"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder,omitempty"`
}

// PayoutRequest is one batched claim submitted by a requestor.
type PayoutRequest struct {
	ID            PayoutRequestID
	RequestorID   PayeeID
	RequestorRole Role

	// LinkedRewardIDs is a set; never empty for a persisted request.
	LinkedRewardIDs    []RewardID
	LinkedDisplayNames []string

	// Amount equals the sum of linked rewards at creation time.
	Amount decimal.Decimal
	Status PayoutStatus

	RequestedAt   time.Time
	PaymentMethod PaymentMethod
	AdminNotes    string
	RejectReason  *string

	ProcessedAt *time.Time
	ProcessedBy string
}

// Links reports whether the request claims the given reward.
func (p PayoutRequest) Links(id RewardID) bool {
	for _, linked := range p.LinkedRewardIDs {
		if linked == id {
			return true
		}
	}
	return false
}

// HoldsClaims is true for every request that still owns its rewards.
func (p PayoutRequest) HoldsClaims() bool {
	return p.Status != PayoutRejected
}

// =============================================================================
// PAYEE PROFILE (external)
// =============================================================================

// PayeeProfile supplies the bank details a payout is sent to.
// ConfirmedAt gates whether payouts may be requested at all.
type PayeeProfile struct {
	PayeeID       PayeeID
	Role          Role
	DisplayName   string
	BankName      string
	BankBranch    string
	AccountNumber string
	ConfirmedAt   *time.Time
	UpdatedAt     time.Time
}

// PaymentMethod snapshots the profile's bank details.
func (p PayeeProfile) PaymentMethod() PaymentMethod {
	return PaymentMethod{
		BankName:      p.BankName,
		BankBranch:    p.BankBranch,
		AccountNumber: p.AccountNumber,
		AccountHolder: p.DisplayName,
	}
}
