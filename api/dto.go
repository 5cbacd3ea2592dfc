/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the commission domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Cases:
    CaseDTO, CaseDetailDTO, LedgerDTO, FinancialsDTO,
    OpenCaseRequest, TransitionCaseRequest, UpdateFinancialsRequest,
    RearmLockWindowRequest, OversightRowDTO

  Rewards & Payees:
    RewardDTO, WindowDTO, PayeeSummaryDTO, ProfileDTO,
    RecordRewardRequest, BankDetailsRequest

  Payout Requests:
    PayoutRequestDTO, CreatePayoutRequest, CancelPayoutRequestRequest,
    MarkPaidRequest

  Admin:
    ThresholdDTO, SetThresholdRequest, ReconcileReportDTO, AuditEntryDTO

MONEY:
  Amounts are decimal.Decimal and travel as JSON strings ("1250.50").
  Numbers are accepted on input.

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  decodeAndValidate before touching the engine; the engine repeats the
  domain checks (negative amounts, unknown statuses) on its own.

SEE ALSO:
  - handlers.go: Uses these types
  - commission/types.go: Domain records
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// CASES
// =============================================================================

// FinancialsDTO holds a case's monetary line items. Omitted fields are 0.
type FinancialsDTO struct {
	ServiceFee         decimal.Decimal `json:"service_fee" validate:"gte=0"`
	SchoolCommission   decimal.Decimal `json:"school_commission" validate:"gte=0"`
	HandlerCommission  decimal.Decimal `json:"handler_commission" validate:"gte=0"`
	ReferrerCommission decimal.Decimal `json:"referrer_commission" validate:"gte=0"`
	ReferralDiscount   decimal.Decimal `json:"referral_discount" validate:"gte=0"`
	TranslationFee     decimal.Decimal `json:"translation_fee" validate:"gte=0"`
}

// CaseDTO represents a case in API responses.
type CaseDTO struct {
	ID                     string        `json:"id"`
	LeadID                 string        `json:"lead_id"`
	HandlerID              *string       `json:"handler_id,omitempty"`
	ReferrerID             *string       `json:"referrer_id,omitempty"`
	Status                 string        `json:"status"`
	PaidAt                 *time.Time    `json:"paid_at,omitempty"`
	PaidCountdownStartedAt *time.Time    `json:"paid_countdown_started_at,omitempty"`
	Financials             FinancialsDTO `json:"financials"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// LedgerDTO is the derived money view of a case.
type LedgerDTO struct {
	GrossRevenue decimal.Decimal `json:"gross_revenue"`
	TotalPayouts decimal.Decimal `json:"total_payouts"`
	NetProfit    decimal.Decimal `json:"net_profit"`
}

// CaseDetailDTO is returned by GET /api/cases/{id}.
type CaseDetailDTO struct {
	Case   CaseDTO   `json:"case"`
	Ledger LedgerDTO `json:"ledger"`
}

// TransitionDTO is returned by POST /api/cases/{id}/transitions.
type TransitionDTO struct {
	Case CaseDTO `json:"case"`
	From string  `json:"from"`
	To   string  `json:"to"`
	NoOp bool    `json:"no_op"`
	// LockWindowStartedAt is set when this transition first reached paid.
	LockWindowStartedAt *time.Time `json:"lock_window_started_at,omitempty"`
}

// OpenCaseRequest is the body for POST /api/cases.
type OpenCaseRequest struct {
	LeadID     string        `json:"lead_id" validate:"required"`
	HandlerID  *string       `json:"handler_id,omitempty" validate:"omitempty,min=1"`
	ReferrerID *string       `json:"referrer_id,omitempty" validate:"omitempty,min=1"`
	Financials FinancialsDTO `json:"financials"`
	Actor      string        `json:"actor,omitempty"`
}

// TransitionCaseRequest is the body for POST /api/cases/{id}/transitions.
type TransitionCaseRequest struct {
	Status string `json:"status" validate:"required"`
	Actor  string `json:"actor,omitempty"`
}

// UpdateFinancialsRequest is the body for PUT /api/cases/{id}/financials.
type UpdateFinancialsRequest struct {
	FinancialsDTO
	Actor string `json:"actor,omitempty"`
}

// RearmLockWindowRequest is the body for POST /api/cases/{id}/lock-window.
// A missing At restarts the countdown now.
type RearmLockWindowRequest struct {
	At    *time.Time `json:"at,omitempty"`
	Actor string     `json:"actor,omitempty"`
}

// WindowDTO is an evaluated lock window.
type WindowDTO struct {
	Start         time.Time `json:"start"`
	DueDate       time.Time `json:"due_date"`
	DaysRemaining int       `json:"days_remaining"`
	State         string    `json:"state"`
	Eligible      bool      `json:"eligible"`
}

// OversightRowDTO is one row of GET /api/cases/oversight.
type OversightRowDTO struct {
	Case    CaseDTO     `json:"case"`
	Window  WindowDTO   `json:"window"`
	Ledger  LedgerDTO   `json:"ledger"`
	Rewards []RewardDTO `json:"rewards"`
	Settled bool        `json:"settled"`
}

// =============================================================================
// REWARDS & PAYEES
// =============================================================================

// RewardDTO represents a reward in API responses.
type RewardDTO struct {
	ID                string          `json:"id"`
	PayeeID           string          `json:"payee_id"`
	CaseID            *string         `json:"case_id,omitempty"`
	ReferralID        *string         `json:"referral_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	DisplayName       string          `json:"display_name"`
	AdminNotes        string          `json:"admin_notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	PayoutRequestedAt *time.Time      `json:"payout_requested_at,omitempty"`
	Window            *WindowDTO      `json:"window,omitempty"`
}

// RecordRewardRequest is the body for POST /api/rewards.
type RecordRewardRequest struct {
	PayeeID    string          `json:"payee_id" validate:"required"`
	CaseID     *string         `json:"case_id,omitempty" validate:"omitempty,min=1,excluded_with=ReferralID"`
	ReferralID *string         `json:"referral_id,omitempty" validate:"omitempty,min=1"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Notes      string          `json:"notes,omitempty"`
	Actor      string          `json:"actor,omitempty"`
}

// TotalsDTO buckets reward amounts by window state.
type TotalsDTO struct {
	Locked    decimal.Decimal `json:"locked"`
	Available decimal.Decimal `json:"available"`
	Requested decimal.Decimal `json:"requested"`
	Paid      decimal.Decimal `json:"paid"`
}

// PayeeSummaryDTO is returned by GET /api/payees/{id}/summary.
type PayeeSummaryDTO struct {
	PayeeID    string             `json:"payee_id"`
	Rewards    []RewardDTO        `json:"rewards"`
	Totals     TotalsDTO          `json:"totals"`
	Requests   []PayoutRequestDTO `json:"requests"`
	Threshold  *decimal.Decimal   `json:"threshold"`
	CanRequest bool               `json:"can_request"`
}

// ProfileDTO represents a payee's bank profile.
type ProfileDTO struct {
	PayeeID       string     `json:"payee_id"`
	Role          string     `json:"role"`
	DisplayName   string     `json:"display_name,omitempty"`
	BankName      string     `json:"bank_name"`
	BankBranch    string     `json:"bank_branch"`
	AccountNumber string     `json:"account_number"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BankDetailsRequest is the body for PUT /api/payees/{id}/bank-details.
// Format rules (digit counts) are left to the engine so that a saved but
// malformed profile still reports which fields are wrong.
type BankDetailsRequest struct {
	Role          string `json:"role" validate:"required,oneof=agent handler"`
	DisplayName   string `json:"display_name,omitempty"`
	BankName      string `json:"bank_name"`
	BankBranch    string `json:"bank_branch"`
	AccountNumber string `json:"account_number"`
	Confirm       bool   `json:"confirm"`
	Actor         string `json:"actor,omitempty"`
}

// =============================================================================
// PAYOUT REQUESTS
// =============================================================================

// PayoutRequestDTO represents a payout request in API responses.
type PayoutRequestDTO struct {
	ID                 string                   `json:"id"`
	RequestorID        string                   `json:"requestor_id"`
	RequestorRole      string                   `json:"requestor_role"`
	LinkedRewardIDs    []string                 `json:"linked_reward_ids"`
	LinkedDisplayNames []string                 `json:"linked_display_names"`
	Amount             decimal.Decimal          `json:"amount"`
	Status             string                   `json:"status"`
	RequestedAt        time.Time                `json:"requested_at"`
	PaymentMethod      commission.PaymentMethod `json:"payment_method"`
	AdminNotes         string                   `json:"admin_notes,omitempty"`
	RejectReason       *string                  `json:"reject_reason,omitempty"`
	ProcessedAt        *time.Time               `json:"processed_at,omitempty"`
	ProcessedBy        string                   `json:"processed_by,omitempty"`
}

// CreatePayoutRequest is the body for POST /api/payees/{id}/payout-requests.
type CreatePayoutRequest struct {
	Role string `json:"role" validate:"required,oneof=agent handler"`
}

// CancelPayoutRequestRequest is the body for POST /api/payout-requests/{id}/cancel.
type CancelPayoutRequestRequest struct {
	Reason string `json:"reason" validate:"max=500"`
	Actor  string `json:"actor,omitempty"`
}

// MarkPaidRequest is the body for POST /api/payout-requests/{id}/paid.
type MarkPaidRequest struct {
	Notes string `json:"notes" validate:"max=500"`
	Actor string `json:"actor,omitempty"`
}

// =============================================================================
// ADMIN
// =============================================================================

// ThresholdDTO is returned by GET /api/settings/min-payout-threshold.
type ThresholdDTO struct {
	Amount     *decimal.Decimal `json:"amount"`
	Configured bool             `json:"configured"`
}

// SetThresholdRequest is the body for PUT /api/settings/min-payout-threshold.
type SetThresholdRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
	Actor  string          `json:"actor,omitempty"`
}

// ReconcileRequest is the optional body for POST /api/admin/reconcile.
type ReconcileRequest struct {
	Actor string `json:"actor,omitempty"`
}

// MismatchDTO is a payout request whose stored amount drifted.
type MismatchDTO struct {
	RequestID string          `json:"request_id"`
	Stored    decimal.Decimal `json:"stored"`
	Live      decimal.Decimal `json:"live"`
}

// ReconcileReportDTO is returned by POST /api/admin/reconcile.
type ReconcileReportDTO struct {
	RanAt      time.Time     `json:"ran_at"`
	Reverted   []string      `json:"reverted"`
	Mismatches []MismatchDTO `json:"mismatches"`
}

// SchedulerStatusDTO is returned by GET /api/admin/scheduler.
type SchedulerStatusDTO struct {
	Enabled  bool                `json:"enabled"`
	Schedule string              `json:"schedule,omitempty"`
	NextRun  *time.Time          `json:"next_run,omitempty"`
	LastRun  *ReconcileReportDTO `json:"last_run,omitempty"`
	LastErr  string              `json:"last_error,omitempty"`
}

// AuditEntryDTO represents one audit log entry.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	SubjectID string         `json:"subject_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION FUNCTIONS
// =============================================================================

func toFinancialsDTO(f commission.Financials) FinancialsDTO {
	return FinancialsDTO{
		ServiceFee:         f.ServiceFee,
		SchoolCommission:   f.SchoolCommission,
		HandlerCommission:  f.HandlerCommission,
		ReferrerCommission: f.ReferrerCommission,
		ReferralDiscount:   f.ReferralDiscount,
		TranslationFee:     f.TranslationFee,
	}
}

func (f FinancialsDTO) toDomain() commission.Financials {
	return commission.Financials{
		ServiceFee:         f.ServiceFee,
		SchoolCommission:   f.SchoolCommission,
		HandlerCommission:  f.HandlerCommission,
		ReferrerCommission: f.ReferrerCommission,
		ReferralDiscount:   f.ReferralDiscount,
		TranslationFee:     f.TranslationFee,
	}
}

func toCaseDTO(c commission.Case) CaseDTO {
	return CaseDTO{
		ID:                     string(c.ID),
		LeadID:                 string(c.LeadID),
		HandlerID:              idString(c.AssignedHandlerID),
		ReferrerID:             idString(c.ReferrerID),
		Status:                 string(c.Status),
		PaidAt:                 c.PaidAt,
		PaidCountdownStartedAt: c.PaidCountdownStartedAt,
		Financials:             toFinancialsDTO(c.Financials),
		CreatedAt:              c.CreatedAt,
		UpdatedAt:              c.UpdatedAt,
	}
}

func toLedgerDTO(s commission.LedgerSnapshot) LedgerDTO {
	return LedgerDTO{
		GrossRevenue: s.GrossRevenue,
		TotalPayouts: s.TotalPayouts,
		NetProfit:    s.NetProfit,
	}
}

func toWindowDTO(w commission.WindowStatus) WindowDTO {
	return WindowDTO{
		Start:         w.Start,
		DueDate:       w.DueDate,
		DaysRemaining: w.DaysRemaining,
		State:         string(w.State),
		Eligible:      w.Eligible(),
	}
}

func toRewardDTO(r commission.Reward) RewardDTO {
	return RewardDTO{
		ID:                string(r.ID),
		PayeeID:           string(r.PayeeID),
		CaseID:            idString(r.CaseID),
		ReferralID:        idString(r.ReferralID),
		Amount:            r.Amount,
		Status:            string(r.Status),
		DisplayName:       r.DisplayName(),
		AdminNotes:        r.AdminNotes,
		CreatedAt:         r.CreatedAt,
		PayoutRequestedAt: r.PayoutRequestedAt,
	}
}

func toRewardDTOs(rs []commission.Reward) []RewardDTO {
	out := make([]RewardDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRewardDTO(r))
	}
	return out
}

func toPayoutRequestDTO(p commission.PayoutRequest) PayoutRequestDTO {
	ids := make([]string, 0, len(p.LinkedRewardIDs))
	for _, id := range p.LinkedRewardIDs {
		ids = append(ids, string(id))
	}
	names := p.LinkedDisplayNames
	if names == nil {
		names = []string{}
	}
	return PayoutRequestDTO{
		ID:                 string(p.ID),
		RequestorID:        string(p.RequestorID),
		RequestorRole:      string(p.RequestorRole),
		LinkedRewardIDs:    ids,
		LinkedDisplayNames: names,
		Amount:             p.Amount,
		Status:             string(p.Status),
		RequestedAt:        p.RequestedAt,
		PaymentMethod:      p.PaymentMethod,
		AdminNotes:         p.AdminNotes,
		RejectReason:       p.RejectReason,
		ProcessedAt:        p.ProcessedAt,
		ProcessedBy:        p.ProcessedBy,
	}
}

func toPayoutRequestDTOs(ps []commission.PayoutRequest) []PayoutRequestDTO {
	out := make([]PayoutRequestDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPayoutRequestDTO(p))
	}
	return out
}

func toProfileDTO(p commission.PayeeProfile) ProfileDTO {
	return ProfileDTO{
		PayeeID:       string(p.PayeeID),
		Role:          string(p.Role),
		DisplayName:   p.DisplayName,
		BankName:      p.BankName,
		BankBranch:    p.BankBranch,
		AccountNumber: p.AccountNumber,
		ConfirmedAt:   p.ConfirmedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toPayeeSummaryDTO(s commission.PayeeSummary) PayeeSummaryDTO {
	rewards := make([]RewardDTO, 0, len(s.Rewards))
	for _, rv := range s.Rewards {
		dto := toRewardDTO(rv.Reward)
		w := toWindowDTO(rv.Window)
		dto.Window = &w
		rewards = append(rewards, dto)
	}
	return PayeeSummaryDTO{
		PayeeID: string(s.PayeeID),
		Rewards: rewards,
		Totals: TotalsDTO{
			Locked:    s.Totals.Locked,
			Available: s.Totals.Available,
			Requested: s.Totals.Requested,
			Paid:      s.Totals.Paid,
		},
		Requests:   toPayoutRequestDTOs(s.Requests),
		Threshold:  s.Threshold,
		CanRequest: s.CanRequest,
	}
}

func toOversightRowDTO(row commission.CaseOversightRow) OversightRowDTO {
	return OversightRowDTO{
		Case:    toCaseDTO(row.Case),
		Window:  toWindowDTO(row.Window),
		Ledger:  toLedgerDTO(row.Ledger),
		Rewards: toRewardDTOs(row.Rewards),
		Settled: row.Settled,
	}
}

func toReconcileReportDTO(rep commission.ReconcileReport) ReconcileReportDTO {
	dto := ReconcileReportDTO{
		RanAt:      rep.RanAt,
		Reverted:   make([]string, 0, len(rep.Reverted)),
		Mismatches: make([]MismatchDTO, 0, len(rep.Mismatches)),
	}
	for _, id := range rep.Reverted {
		dto.Reverted = append(dto.Reverted, string(id))
	}
	for _, m := range rep.Mismatches {
		dto.Mismatches = append(dto.Mismatches, MismatchDTO{
			RequestID: string(m.RequestID),
			Stored:    m.Stored,
			Live:      m.Live,
		})
	}
	return dto
}

func toAuditEntryDTO(e commission.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		SubjectID: e.SubjectID,
		Payload:   e.Payload,
	}
}

func idString[T ~string](id *T) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func idPtr[T ~string](s *string) *T {
	if s == nil {
		return nil
	}
	id := T(*s)
	return &id
}
