package commission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// OpenCaseInput describes a lead being assigned to a handler.
type OpenCaseInput struct {
	LeadID     LeadID
	HandlerID  *PayeeID
	ReferrerID *PayeeID
	Financials Financials
	Actor      string
}

// OpenCase creates a case in assigned.
func (e *Engine) OpenCase(ctx context.Context, in OpenCaseInput) (c Case, err error) {
	ctx, span := e.startSpan(ctx, "OpenCase", attribute.String("lead.id", string(in.LeadID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(string(in.LeadID)) == "" {
		return Case{}, fmt.Errorf("%w: lead id is required", ErrInvalidInput)
	}
	if err := in.Financials.Validate(); err != nil {
		return Case{}, err
	}

	err = e.run(ctx, in.Actor, func(u *unit) error {
		c = Case{
			ID:                CaseID(e.NewID()),
			LeadID:            in.LeadID,
			AssignedHandlerID: in.HandlerID,
			ReferrerID:        in.ReferrerID,
			Status:            CaseAssigned,
			Financials:        in.Financials,
			CreatedAt:         u.now,
			UpdatedAt:         u.now,
		}
		if err := u.store.CreateCase(ctx, c); err != nil {
			return fmt.Errorf("failed to create case: %w", err)
		}
		return u.record(ctx, ChangeCase, AuditCaseOpened, string(c.ID), "", map[string]any{
			"lead_id": string(c.LeadID),
		})
	})
	return c, err
}

// GetCase loads a case.
func (e *Engine) GetCase(ctx context.Context, id CaseID) (Case, error) {
	return e.Store.GetCase(ctx, id)
}

// TransitionCase moves a case to target and persists any lock-window stamp
// in the same unit of work.
func (e *Engine) TransitionCase(ctx context.Context, id CaseID, target CaseStatus, actor string) (c Case, res TransitionResult, err error) {
	ctx, span := e.startSpan(ctx, "TransitionCase",
		attribute.String("case.id", string(id)),
		attribute.String("case.target", string(target)))
	defer func() { endSpan(span, err) }()

	err = e.run(ctx, actor, func(u *unit) error {
		c, err = u.store.GetCase(ctx, id)
		if err != nil {
			return err
		}
		res, err = Transition(c, target, u.now)
		if err != nil {
			return err
		}
		if res.NoOp {
			return nil
		}
		res.ApplyTo(&c)
		c.UpdatedAt = u.now
		if err := u.store.UpdateCase(ctx, c); err != nil {
			return fmt.Errorf("failed to update case: %w", err)
		}
		payload := map[string]any{"from": string(res.From), "to": string(res.To)}
		if res.StartLockWindow != nil {
			payload["lock_window_started_at"] = res.StartLockWindow.Format(time.RFC3339)
		}
		return u.record(ctx, ChangeCase, AuditCaseTransitioned, string(c.ID), "", payload)
	})
	if err != nil {
		return Case{}, TransitionResult{}, err
	}
	return c, res, nil
}

// RearmLockWindow restarts the payment countdown of a paid case at the given
// instant. PaidAt is never changed.
func (e *Engine) RearmLockWindow(ctx context.Context, id CaseID, at time.Time, actor string) (c Case, err error) {
	ctx, span := e.startSpan(ctx, "RearmLockWindow", attribute.String("case.id", string(id)))
	defer func() { endSpan(span, err) }()

	err = e.run(ctx, actor, func(u *unit) error {
		c, err = u.store.GetCase(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.AtOrPastPaid() || c.PaidAt == nil {
			return fmt.Errorf("%w: case %s is %s", ErrCaseNotPaid, c.ID, c.Status)
		}
		if at.IsZero() {
			at = u.now
		}
		var previous string
		if c.PaidCountdownStartedAt != nil {
			previous = c.PaidCountdownStartedAt.Format(time.RFC3339)
		}
		started := at.UTC()
		c.PaidCountdownStartedAt = &started
		c.UpdatedAt = u.now
		if err := u.store.UpdateCase(ctx, c); err != nil {
			return fmt.Errorf("failed to update case: %w", err)
		}
		return u.record(ctx, ChangeCase, AuditLockWindowRearmed, string(c.ID), "", map[string]any{
			"previous": previous,
			"started":  started.Format(time.RFC3339),
		})
	})
	if err != nil {
		return Case{}, err
	}
	return c, nil
}

// UpdateFinancials replaces the line items of a case.
func (e *Engine) UpdateFinancials(ctx context.Context, id CaseID, f Financials, actor string) (c Case, err error) {
	ctx, span := e.startSpan(ctx, "UpdateFinancials", attribute.String("case.id", string(id)))
	defer func() { endSpan(span, err) }()

	if err := f.Validate(); err != nil {
		return Case{}, err
	}

	err = e.run(ctx, actor, func(u *unit) error {
		c, err = u.store.GetCase(ctx, id)
		if err != nil {
			return err
		}
		before := NetProfit(c.Financials)
		c.Financials = f
		c.UpdatedAt = u.now
		if err := u.store.UpdateCase(ctx, c); err != nil {
			return fmt.Errorf("failed to update case: %w", err)
		}
		return u.record(ctx, ChangeCase, AuditFinancialsUpdated, string(c.ID), "", map[string]any{
			"net_profit_before": before.String(),
			"net_profit_after":  NetProfit(f).String(),
		})
	})
	if err != nil {
		return Case{}, err
	}
	return c, nil
}

// CaseLedger derives the ledger snapshot of a stored case.
func (e *Engine) CaseLedger(ctx context.Context, id CaseID) (LedgerSnapshot, error) {
	c, err := e.Store.GetCase(ctx, id)
	if err != nil {
		return LedgerSnapshot{}, err
	}
	return Snapshot(c), nil
}
