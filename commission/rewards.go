package commission

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// REWARDS
// =============================================================================

// RecordRewardInput describes a commission owed to a referrer.
// At most one of CaseID and ReferralID is expected; both may be nil.
type RecordRewardInput struct {
	PayeeID    PayeeID
	CaseID     *CaseID
	ReferralID *ReferralID
	Amount     decimal.Decimal
	Notes      string
	Actor      string
}

// RecordReward creates a pending reward. A reward tied to a case is only
// accepted once that case has reached paid.
func (e *Engine) RecordReward(ctx context.Context, in RecordRewardInput) (r Reward, err error) {
	ctx, span := e.startSpan(ctx, "RecordReward", attribute.String("payee.id", string(in.PayeeID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(string(in.PayeeID)) == "" {
		return Reward{}, fmt.Errorf("%w: payee id is required", ErrInvalidInput)
	}
	if !in.Amount.IsPositive() {
		return Reward{}, fmt.Errorf("%w: reward amount must be positive (got %s)", ErrInvalidAmount, in.Amount)
	}

	err = e.run(ctx, in.Actor, func(u *unit) error {
		if in.CaseID != nil {
			c, err := u.store.GetCase(ctx, *in.CaseID)
			if err != nil {
				return err
			}
			if !c.Status.AtOrPastPaid() {
				return fmt.Errorf("%w: case %s is %s", ErrCaseNotPaid, c.ID, c.Status)
			}
		}
		r = Reward{
			ID:         RewardID(e.NewID()),
			PayeeID:    in.PayeeID,
			CaseID:     in.CaseID,
			ReferralID: in.ReferralID,
			Amount:     in.Amount,
			Status:     RewardPending,
			CreatedAt:  u.now,
			UpdatedAt:  u.now,
			AdminNotes: in.Notes,
		}
		if err := u.store.CreateReward(ctx, r); err != nil {
			return fmt.Errorf("failed to create reward: %w", err)
		}
		return u.record(ctx, ChangeReward, AuditRewardRecorded, string(r.ID), r.PayeeID, map[string]any{
			"amount": r.Amount.String(),
		})
	})
	if err != nil {
		return Reward{}, err
	}
	return r, nil
}

// =============================================================================
// PAYEE PROFILES
// =============================================================================

// BankDetailsInput is a payee's submitted bank details.
// Confirm stamps ConfirmedAt; saving without it clears any earlier confirmation.
type BankDetailsInput struct {
	PayeeID       PayeeID
	Role          Role
	DisplayName   string
	BankName      string
	BankBranch    string
	AccountNumber string
	Confirm       bool
	Actor         string
}

// SaveBankDetails validates and stores a payee's bank profile.
func (e *Engine) SaveBankDetails(ctx context.Context, in BankDetailsInput) (p PayeeProfile, err error) {
	ctx, span := e.startSpan(ctx, "SaveBankDetails", attribute.String("payee.id", string(in.PayeeID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(string(in.PayeeID)) == "" {
		return PayeeProfile{}, fmt.Errorf("%w: payee id is required", ErrInvalidInput)
	}
	role, err := ParseRole(string(in.Role))
	if err != nil {
		return PayeeProfile{}, err
	}

	err = e.run(ctx, in.Actor, func(u *unit) error {
		p = PayeeProfile{
			PayeeID:       in.PayeeID,
			Role:          role,
			DisplayName:   strings.TrimSpace(in.DisplayName),
			BankName:      strings.TrimSpace(in.BankName),
			BankBranch:    strings.TrimSpace(in.BankBranch),
			AccountNumber: strings.TrimSpace(in.AccountNumber),
			UpdatedAt:     u.now,
		}
		// Field formats are checked as if confirmed so only the fields surface.
		probe := p
		stamp := u.now
		probe.ConfirmedAt = &stamp
		if err := e.Validator.Validate(probe); err != nil {
			return err
		}
		if in.Confirm {
			p.ConfirmedAt = &stamp
		}
		if err := u.store.SaveProfile(ctx, p); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return u.record(ctx, ChangeProfile, AuditProfileSaved, string(p.PayeeID), p.PayeeID, map[string]any{
			"confirmed": in.Confirm,
		})
	})
	if err != nil {
		return PayeeProfile{}, err
	}
	return p, nil
}

// GetProfile loads a payee profile.
func (e *Engine) GetProfile(ctx context.Context, id PayeeID) (PayeeProfile, error) {
	return e.Store.GetProfile(ctx, id)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (e *Engine) MinPayoutThreshold(ctx context.Context) (decimal.Decimal, error) {
	return e.Eligibility.MinPayoutThreshold(ctx)
}

// SetMinPayoutThreshold writes a new threshold and audits the change.
// When the threshold lives in the record store the write and its audit
// entry commit together. An external source (Redis) is written first and
// audited in a second unit.
func (e *Engine) SetMinPayoutThreshold(ctx context.Context, amount decimal.Decimal, actor string) (err error) {
	ctx, span := e.startSpan(ctx, "SetMinPayoutThreshold", attribute.String("threshold", amount.String()))
	defer func() { endSpan(span, err) }()

	if amount.IsNegative() {
		return fmt.Errorf("%w: threshold must not be negative (got %s)", ErrInvalidAmount, amount)
	}
	setter, ok := e.Eligibility.(ThresholdSetter)
	if !ok {
		return ErrThresholdReadOnly
	}

	if any(e.Eligibility) == any(e.Store) {
		return e.run(ctx, actor, func(u *unit) error {
			txSetter, ok := u.store.(ThresholdSetter)
			if !ok {
				return ErrThresholdReadOnly
			}
			previous := ""
			if src, ok := u.store.(EligibilityConfig); ok {
				if cur, err := src.MinPayoutThreshold(ctx); err == nil {
					previous = cur.String()
				}
			}
			if err := txSetter.SetMinPayoutThreshold(ctx, amount); err != nil {
				return fmt.Errorf("failed to set threshold: %w", err)
			}
			return u.recordThreshold(ctx, previous, amount)
		})
	}

	previous := ""
	if cur, err := e.Eligibility.MinPayoutThreshold(ctx); err == nil {
		previous = cur.String()
	}
	if err := setter.SetMinPayoutThreshold(ctx, amount); err != nil {
		return fmt.Errorf("failed to set threshold: %w", err)
	}
	return e.run(ctx, actor, func(u *unit) error {
		return u.recordThreshold(ctx, previous, amount)
	})
}

func (u *unit) recordThreshold(ctx context.Context, previous string, amount decimal.Decimal) error {
	return u.record(ctx, ChangeSettings, AuditThresholdChanged, "min_payout_threshold", "", map[string]any{
		"previous": previous,
		"current":  amount.String(),
	})
}
