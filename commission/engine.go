/*
engine.go - The commission engine service

PURPOSE:
  Engine is the one entry point for every operation that reads or mutates
  commission state. Each call receives its dependencies explicitly, runs its
  writes inside a single store transaction, and returns the fresh aggregate
  it produced. There is no ambient session or global state.

KEY CONCEPTS:
  - Store:       TxStore used for every read and write
  - Eligibility: Minimum payout threshold source
  - Validator:   BankDetailsValidator for payout gating
  - Notifier:    Optional post-commit change notifications
  - Clock / IDs: Injectable for deterministic tests

OPERATIONS:
  cases.go      OpenCase, TransitionCase, RearmLockWindow, UpdateFinancials, CaseLedger
  rewards.go    RecordReward, SaveBankDetails, SetMinPayoutThreshold
  payout.go     RequestPayout, CancelPayoutRequest, MarkPayoutPaid, ListPayoutRequests
  views.go      PayeeSummary, CaseOversight
  reconcile.go  Reconcile

NOTIFICATIONS:
  Changes are collected during the transaction and handed to the Notifier only
  after commit. A rolled-back unit never notifies. Invariants never depend on
  notifications being delivered.
*/
package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

type ChangeKind string

const (
	ChangeCase     ChangeKind = "case"
	ChangeReward   ChangeKind = "reward"
	ChangePayout   ChangeKind = "payout_request"
	ChangeProfile  ChangeKind = "payee_profile"
	ChangeSettings ChangeKind = "settings"
)

// Change describes one committed record change.
type Change struct {
	Kind      ChangeKind  `json:"kind"`
	Action    AuditAction `json:"action"`
	SubjectID string      `json:"subject_id"`
	PayeeID   PayeeID     `json:"payee_id,omitempty"`
	At        time.Time   `json:"at"`
}

// Notifier receives committed changes.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store       TxStore
	Eligibility EligibilityConfig
	Validator   *BankDetailsValidator
	Lifecycle   RewardLifecycle
	Notifier    Notifier

	Now   func() time.Time
	NewID func() string

	tracer trace.Tracer
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.Now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.NewID = gen }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.Notifier = n }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine wires an engine over store with the given threshold source.
func NewEngine(store TxStore, eligibility EligibilityConfig, opts ...Option) *Engine {
	e := &Engine{
		Store:       store,
		Eligibility: eligibility,
		Validator:   NewBankDetailsValidator(),
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       uuid.NewString,
		tracer:      otel.Tracer("github.com/warp/commission-engine/commission"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "commission."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// unit is one transactional operation with its pending notifications.
type unit struct {
	engine  *Engine
	store   Store
	now     time.Time
	actor   string
	changes []Change
}

// run executes fn inside WithTx and notifies only when it commits.
func (e *Engine) run(ctx context.Context, actor string, fn func(u *unit) error) error {
	u := &unit{engine: e, now: e.Now(), actor: actor}
	err := e.Store.WithTx(ctx, func(s Store) error {
		u.store = s
		u.changes = u.changes[:0]
		return fn(u)
	})
	if err != nil {
		return err
	}
	if e.Notifier != nil {
		for _, c := range u.changes {
			e.Notifier.Notify(ctx, c)
		}
	}
	return nil
}

// record appends an audit entry and queues the matching change.
func (u *unit) record(ctx context.Context, kind ChangeKind, action AuditAction, subject string, payee PayeeID, payload map[string]any) error {
	entry := AuditEntry{
		ID:        u.engine.NewID(),
		Timestamp: u.now,
		ActorID:   u.actor,
		Action:    action,
		SubjectID: subject,
		Payload:   payload,
	}
	if err := u.store.AppendAudit(ctx, entry); err != nil {
		return err
	}
	u.changes = append(u.changes, Change{
		Kind:      kind,
		Action:    action,
		SubjectID: subject,
		PayeeID:   payee,
		At:        u.now,
	})
	return nil
}

// AuditTrail returns audit entries matching filter.
func (e *Engine) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return e.Store.QueryAudit(ctx, filter)
}
