/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to commission.Engine.

ENDPOINTS:
  Cases:
    POST   /api/cases                        Open a case for an assigned lead
    GET    /api/cases/oversight              Admin payout queue (paid cases)
    GET    /api/cases/{id}                   Case with ledger
    POST   /api/cases/{id}/transitions       Move a case along its lifecycle
    PUT    /api/cases/{id}/financials        Replace monetary line items
    POST   /api/cases/{id}/lock-window       Re-arm the payment countdown

  Rewards & Payees:
    POST   /api/rewards                      Record a reward for a referrer
    GET    /api/payees/{id}/summary          Earnings view with lock windows
    GET    /api/payees/{id}/bank-details     Stored bank profile
    PUT    /api/payees/{id}/bank-details     Save bank profile
    POST   /api/payees/{id}/payout-requests  Claim every eligible reward

  Payout Requests:
    GET    /api/payout-requests?status=      List, optionally by status
    GET    /api/payout-requests/{id}         One request
    POST   /api/payout-requests/{id}/cancel  Reject and release rewards
    POST   /api/payout-requests/{id}/paid    Settle request and rewards

  Admin:
    GET    /api/settings/min-payout-threshold
    PUT    /api/settings/min-payout-threshold
    POST   /api/admin/reconcile              Run the consistency check now
    GET    /api/admin/scheduler              Reconcile schedule and last run
    GET    /api/audit                        Audit trail (subject, actor, action)
    GET    /api/events                       Server-sent change stream

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: All domain operations
  - Events: Live change stream (optional)
  - Scheduler: Reconcile scheduler (optional)
  - HealthChecks: Dependencies pinged by /healthz

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator tags on *Request types)
  3. Call commission.Engine
  4. Serialize response
  5. Map errors with writeEngineError

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, illegal transitions
  - 404: Resource not found
  - 409: Conflict (duplicate claim, not cancellable, lost race)
  - 422: Payout refused (bank details, threshold, nothing eligible)
  - 503: Minimum payout threshold not configured
  - 500: Internal errors

ACTOR:
  Mutating endpoints record an actor in the audit log: the body's "actor"
  field, else the X-Actor-ID header, else "admin".

SECURITY NOTE:
  No authentication or authorization. Deploy behind a gateway that sets
  X-Actor-ID.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - commission/errors.go: Error classification helpers
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/events"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is a dependency /healthz can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Engine       *commission.Engine
	Events       *events.Manager
	Scheduler    *ReconciliationScheduler
	HealthChecks map[string]Pinger

	validate *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(engine *commission.Engine, em *events.Manager) *Handler {
	return &Handler{
		Engine:       engine,
		Events:       em,
		HealthChecks: make(map[string]Pinger),
		validate:     newValidator(),
	}
}

// newValidator teaches validator to compare decimal amounts.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// =============================================================================
// CASE ENDPOINTS
// =============================================================================

// OpenCase creates a case in assigned.
// POST /api/cases
func (h *Handler) OpenCase(w http.ResponseWriter, r *http.Request) {
	var req OpenCaseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.Engine.OpenCase(r.Context(), commission.OpenCaseInput{
		LeadID:     commission.LeadID(req.LeadID),
		HandlerID:  idPtr[commission.PayeeID](req.HandlerID),
		ReferrerID: idPtr[commission.PayeeID](req.ReferrerID),
		Financials: req.Financials.toDomain(),
		Actor:      actorFor(r, req.Actor),
	})
	if err != nil {
		writeEngineError(w, "Failed to open case", err)
		return
	}

	writeJSON(w, http.StatusCreated, CaseDetailDTO{
		Case:   toCaseDTO(c),
		Ledger: toLedgerDTO(commission.Snapshot(c)),
	})
}

// GetCase returns a case with its ledger.
// GET /api/cases/{id}
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.GetCase(r.Context(), commission.CaseID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get case", err)
		return
	}

	writeJSON(w, http.StatusOK, CaseDetailDTO{
		Case:   toCaseDTO(c),
		Ledger: toLedgerDTO(commission.Snapshot(c)),
	})
}

// TransitionCase moves a case to the requested status.
// POST /api/cases/{id}/transitions
func (h *Handler) TransitionCase(w http.ResponseWriter, r *http.Request) {
	var req TransitionCaseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	target, err := commission.ParseCaseStatus(req.Status)
	if err != nil {
		writeEngineError(w, "Invalid status", err)
		return
	}

	c, res, err := h.Engine.TransitionCase(r.Context(), commission.CaseID(chi.URLParam(r, "id")), target, actorFor(r, req.Actor))
	if err != nil {
		writeEngineError(w, "Failed to transition case", err)
		return
	}

	writeJSON(w, http.StatusOK, TransitionDTO{
		Case:                toCaseDTO(c),
		From:                string(res.From),
		To:                  string(res.To),
		NoOp:                res.NoOp,
		LockWindowStartedAt: res.StartLockWindow,
	})
}

// UpdateFinancials replaces a case's monetary line items.
// PUT /api/cases/{id}/financials
func (h *Handler) UpdateFinancials(w http.ResponseWriter, r *http.Request) {
	var req UpdateFinancialsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.Engine.UpdateFinancials(r.Context(), commission.CaseID(chi.URLParam(r, "id")),
		req.FinancialsDTO.toDomain(), actorFor(r, req.Actor))
	if err != nil {
		writeEngineError(w, "Failed to update financials", err)
		return
	}

	writeJSON(w, http.StatusOK, CaseDetailDTO{
		Case:   toCaseDTO(c),
		Ledger: toLedgerDTO(commission.Snapshot(c)),
	})
}

// RearmLockWindow restarts a paid case's payment countdown.
// POST /api/cases/{id}/lock-window
func (h *Handler) RearmLockWindow(w http.ResponseWriter, r *http.Request) {
	var req RearmLockWindowRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	at := h.Engine.Now()
	if req.At != nil {
		at = req.At.UTC()
	}

	c, err := h.Engine.RearmLockWindow(r.Context(), commission.CaseID(chi.URLParam(r, "id")), at, actorFor(r, req.Actor))
	if err != nil {
		writeEngineError(w, "Failed to re-arm lock window", err)
		return
	}

	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// CaseOversight lists paid cases by payment window, soonest due first.
// GET /api/cases/oversight
func (h *Handler) CaseOversight(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.CaseOversight(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to load case oversight", err)
		return
	}

	dtos := make([]OversightRowDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toOversightRowDTO(row))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REWARD & PAYEE ENDPOINTS
// =============================================================================

// RecordReward creates a pending reward.
// POST /api/rewards
func (h *Handler) RecordReward(w http.ResponseWriter, r *http.Request) {
	var req RecordRewardRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	reward, err := h.Engine.RecordReward(r.Context(), commission.RecordRewardInput{
		PayeeID:    commission.PayeeID(req.PayeeID),
		CaseID:     idPtr[commission.CaseID](req.CaseID),
		ReferralID: idPtr[commission.ReferralID](req.ReferralID),
		Amount:     req.Amount,
		Notes:      req.Notes,
		Actor:      actorFor(r, req.Actor),
	})
	if err != nil {
		writeEngineError(w, "Failed to record reward", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRewardDTO(reward))
}

// PayeeSummary returns a payee's rewards, totals and requests.
// GET /api/payees/{id}/summary
func (h *Handler) PayeeSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Engine.PayeeSummary(r.Context(), commission.PayeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to load payee summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayeeSummaryDTO(sum))
}

// GetBankDetails returns a payee's stored bank profile.
// GET /api/payees/{id}/bank-details
func (h *Handler) GetBankDetails(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.GetProfile(r.Context(), commission.PayeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get bank details", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// SaveBankDetails stores a payee's bank profile.
// PUT /api/payees/{id}/bank-details
func (h *Handler) SaveBankDetails(w http.ResponseWriter, r *http.Request) {
	var req BankDetailsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.Engine.SaveBankDetails(r.Context(), commission.BankDetailsInput{
		PayeeID:       commission.PayeeID(chi.URLParam(r, "id")),
		Role:          commission.Role(req.Role),
		DisplayName:   req.DisplayName,
		BankName:      req.BankName,
		BankBranch:    req.BankBranch,
		AccountNumber: req.AccountNumber,
		Confirm:       req.Confirm,
		Actor:         actorFor(r, req.Actor),
	})
	if err != nil {
		writeEngineError(w, "Failed to save bank details", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// RequestPayout claims every eligible reward of the payee.
// POST /api/payees/{id}/payout-requests
func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req CreatePayoutRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.Engine.RequestPayout(r.Context(), commission.PayeeID(chi.URLParam(r, "id")), commission.Role(req.Role))
	if err != nil {
		writeEngineError(w, "Payout request refused", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayoutRequestDTO(p))
}

// =============================================================================
// PAYOUT REQUEST ENDPOINTS
// =============================================================================

// ListPayoutRequests lists payout requests, newest first.
// GET /api/payout-requests?status=pending
func (h *Handler) ListPayoutRequests(w http.ResponseWriter, r *http.Request) {
	var status *commission.PayoutStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := commission.ParsePayoutStatus(s)
		if err != nil {
			writeEngineError(w, "Invalid status filter", err)
			return
		}
		status = &st
	}

	reqs, err := h.Engine.ListPayoutRequests(r.Context(), status)
	if err != nil {
		writeEngineError(w, "Failed to list payout requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutRequestDTOs(reqs))
}

// GetPayoutRequest returns one payout request.
// GET /api/payout-requests/{id}
func (h *Handler) GetPayoutRequest(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.GetPayoutRequest(r.Context(), commission.PayoutRequestID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get payout request", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutRequestDTO(p))
}

// CancelPayoutRequest rejects a pending request and releases its rewards.
// POST /api/payout-requests/{id}/cancel
func (h *Handler) CancelPayoutRequest(w http.ResponseWriter, r *http.Request) {
	var req CancelPayoutRequestRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	p, err := h.Engine.CancelPayoutRequest(r.Context(), commission.PayoutRequestID(chi.URLParam(r, "id")),
		actorFor(r, req.Actor), req.Reason)
	if err != nil {
		writeEngineError(w, "Failed to cancel payout request", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutRequestDTO(p))
}

// MarkPayoutPaid settles a pending request and every linked reward.
// POST /api/payout-requests/{id}/paid
func (h *Handler) MarkPayoutPaid(w http.ResponseWriter, r *http.Request) {
	var req MarkPaidRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	p, err := h.Engine.MarkPayoutPaid(r.Context(), commission.PayoutRequestID(chi.URLParam(r, "id")),
		actorFor(r, req.Actor), req.Notes)
	if err != nil {
		writeEngineError(w, "Failed to mark payout paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutRequestDTO(p))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// GetThreshold returns the minimum payout threshold.
// GET /api/settings/min-payout-threshold
func (h *Handler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	amt, err := h.Engine.MinPayoutThreshold(r.Context())
	if errors.Is(err, commission.ErrThresholdNotConfigured) {
		writeJSON(w, http.StatusOK, ThresholdDTO{Configured: false})
		return
	}
	if err != nil {
		writeEngineError(w, "Failed to read threshold", err)
		return
	}
	writeJSON(w, http.StatusOK, ThresholdDTO{Amount: &amt, Configured: true})
}

// SetThreshold writes the minimum payout threshold.
// PUT /api/settings/min-payout-threshold
func (h *Handler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req SetThresholdRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.Engine.SetMinPayoutThreshold(r.Context(), req.Amount, actorFor(r, req.Actor)); err != nil {
		writeEngineError(w, "Failed to set threshold", err)
		return
	}
	amt := req.Amount
	writeJSON(w, http.StatusOK, ThresholdDTO{Amount: &amt, Configured: true})
}

// Reconcile runs the consistency check now.
// POST /api/admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	var (
		rep   commission.ReconcileReport
		err   error
		actor = actorFor(r, req.Actor)
	)
	if h.Scheduler != nil {
		rep, err = h.Scheduler.RunNow(r.Context(), actor)
	} else {
		rep, err = h.Engine.Reconcile(r.Context(), actor)
	}
	if err != nil {
		writeEngineError(w, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileReportDTO(rep))
}

// SchedulerStatus reports the reconcile schedule and its last run.
// GET /api/admin/scheduler
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusDTO{Enabled: false})
		return
	}

	dto := SchedulerStatusDTO{
		Enabled:  h.Scheduler.Running(),
		Schedule: h.Scheduler.Schedule,
	}
	if next := h.Scheduler.GetNextRunTime(); !next.IsZero() {
		dto.NextRun = &next
	}
	if rep, err := h.Scheduler.LastRun(); rep != nil {
		last := toReconcileReportDTO(*rep)
		dto.LastRun = &last
		if err != nil {
			dto.LastErr = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// AuditTrail returns audit entries, oldest first.
// GET /api/audit?subject_id=&actor_id=&action=&from=&to=
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter commission.AuditFilter
	if v := q.Get("subject_id"); v != "" {
		filter.SubjectID = &v
	}
	if v := q.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, commission.AuditAction(a))
	}
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(bound.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s (use RFC3339)", bound.key), err)
			return
		}
		*bound.dst = &t
	}

	entries, err := h.Engine.AuditTrail(r.Context(), filter)
	if err != nil {
		writeEngineError(w, "Failed to read audit trail", err)
		return
	}
	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toAuditEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EVENT STREAM
// =============================================================================

// StreamEvents pushes committed changes as server-sent events until the
// client disconnects.
// GET /api/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "Event stream disabled", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	ch, cancel := h.Events.Stream(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[Server] Failed to encode event %s: %v", ev.Type, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health pings every registered dependency.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.HealthChecks))
	for name, p := range h.HealthChecks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an engine error to its HTTP status and code.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("[Server] %s: %v", message, err)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

// classify picks the response status for an engine error. Payout refusals
// are checked before the generic client-error bucket they also belong to.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, commission.ErrThresholdNotConfigured):
		return http.StatusServiceUnavailable, "threshold_not_configured"
	case errors.Is(err, commission.ErrThresholdReadOnly):
		return http.StatusConflict, "threshold_read_only"
	case errors.Is(err, commission.ErrMissingBankDetails):
		return http.StatusUnprocessableEntity, "missing_bank_details"
	case errors.Is(err, commission.ErrInvalidBankDetails):
		return http.StatusUnprocessableEntity, "invalid_bank_details"
	case errors.Is(err, commission.ErrBelowThreshold):
		return http.StatusUnprocessableEntity, "below_threshold"
	case errors.Is(err, commission.ErrNoEligibleRewards):
		return http.StatusUnprocessableEntity, "no_eligible_rewards"
	case commission.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, commission.ErrDuplicateClaim):
		return http.StatusConflict, "duplicate_claim"
	case errors.Is(err, commission.ErrNotCancellable):
		return http.StatusConflict, "not_cancellable"
	case commission.IsConflict(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, commission.ErrInvalidTransition), errors.Is(err, commission.ErrInvalidRewardTransition):
		return http.StatusBadRequest, "invalid_transition"
	case commission.IsClientError(err):
		return http.StatusBadRequest, "invalid_input"
	}
	return http.StatusInternalServerError, "internal"
}

// decodeAndValidate reads a JSON body into dst and runs validator tags.
// It writes a 400 and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return h.check(w, dst)
}

// decodeOptional is decodeAndValidate for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return h.check(w, dst)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return h.check(w, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		writeError(w, http.StatusBadRequest, "Validation failed", errors.New(strings.Join(fields, "; ")))
		return false
	}
	writeError(w, http.StatusBadRequest, "Validation failed", err)
	return false
}

// actorFor resolves who is performing a mutation.
func actorFor(r *http.Request, bodyActor string) string {
	if a := strings.TrimSpace(bodyActor); a != "" {
		return a
	}
	if a := strings.TrimSpace(r.Header.Get("X-Actor-ID")); a != "" {
		return a
	}
	return "admin"
}
