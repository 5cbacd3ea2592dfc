/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (the HTTP layer, background jobs) classify failures with the
  helpers at the bottom of this file instead of matching strings.

ERROR CATEGORIES:
  1. Lifecycle errors - Illegal case, reward or payout transitions
  2. Eligibility errors - Bank details, threshold, duplicate claims
  3. Lookup errors - Missing records and unconfigured settings
  4. Store errors - Concurrent modification detected by compare-and-swap

USAGE:
  req, err := engine.RequestPayout(ctx, payee, commission.RoleAgent)
  var below *commission.BelowThresholdError
  if errors.As(err, &below) {
      fmt.Println("need", below.Threshold.Sub(below.Eligible))
  }

SEE ALSO:
  - casefsm.go, reward.go: Raise transition errors
  - payout.go: Raises eligibility errors
  - api/handlers.go: Maps errors to HTTP status codes
*/
package commission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransition is returned for a case status change not in the graph.
	ErrInvalidTransition = errors.New("invalid case transition")

	// ErrInvalidRewardTransition is returned for an illegal reward status change.
	ErrInvalidRewardTransition = errors.New("invalid reward transition")

	// ErrInvalidPayoutTransition is returned when settling a request that is not pending.
	ErrInvalidPayoutTransition = errors.New("invalid payout request transition")

	// ErrMissingBankDetails is returned when a payee has no usable bank details.
	ErrMissingBankDetails = errors.New("missing bank details")

	// ErrInvalidBankDetails is returned when bank details are present but malformed.
	ErrInvalidBankDetails = errors.New("invalid bank details")

	// ErrBelowThreshold is returned when eligible rewards do not reach the minimum payout.
	ErrBelowThreshold = errors.New("eligible amount below payout threshold")

	// ErrNoEligibleRewards is returned when nothing is claimable at all.
	ErrNoEligibleRewards = errors.New("no eligible rewards")

	// ErrDuplicateClaim is returned when a reward is already linked to a live request.
	ErrDuplicateClaim = errors.New("reward already claimed")

	// ErrNotCancellable is returned when cancelling a request that is not pending.
	ErrNotCancellable = errors.New("payout request not cancellable")

	// ErrAmountMismatch is returned when a request's amount drifted from its rewards.
	ErrAmountMismatch = errors.New("payout amount does not match linked rewards")

	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrCaseNotPaid is returned when an operation needs a case at or past paid.
	ErrCaseNotPaid = errors.New("case has not reached paid")

	// ErrThresholdNotConfigured is returned when the eligibility source has no threshold.
	ErrThresholdNotConfigured = errors.New("minimum payout threshold not configured")

	// ErrThresholdReadOnly is returned when the eligibility source cannot be written.
	ErrThresholdReadOnly = errors.New("payout threshold source is read-only")

	// ErrConcurrentModification is returned when a compare-and-swap lost the race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrCaseNotFound    = errors.New("case not found")
	ErrRewardNotFound  = errors.New("reward not found")
	ErrPayoutNotFound  = errors.New("payout request not found")
	ErrProfileNotFound = errors.New("payee profile not found")

	// ErrUnknownStatus is returned by every status parser for unrecognized input.
	ErrUnknownStatus = errors.New("unknown status")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError describes a rejected case transition.
type TransitionError struct {
	CaseID CaseID
	From   CaseStatus
	To     CaseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid case transition %s -> %s (case %s)", e.From, e.To, e.CaseID)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RewardTransitionError describes a rejected reward transition.
type RewardTransitionError struct {
	RewardID RewardID
	From     RewardStatus
	To       RewardStatus
}

func (e *RewardTransitionError) Error() string {
	return fmt.Sprintf("invalid reward transition %s -> %s (reward %s)", e.From, e.To, e.RewardID)
}

func (e *RewardTransitionError) Unwrap() error {
	return ErrInvalidRewardTransition
}

// BankDetailsError lists the fields that failed validation.
// Missing is true when at least one required field is absent.
type BankDetailsError struct {
	Missing bool
	Fields  []string
}

func (e *BankDetailsError) Error() string {
	kind := "invalid"
	if e.Missing {
		kind = "missing"
	}
	return fmt.Sprintf("%s bank details: %s", kind, strings.Join(e.Fields, ", "))
}

func (e *BankDetailsError) Unwrap() error {
	if e.Missing {
		return ErrMissingBankDetails
	}
	return ErrInvalidBankDetails
}

// BelowThresholdError reports how far a payee is from the minimum payout.
type BelowThresholdError struct {
	PayeeID   PayeeID
	Eligible  decimal.Decimal
	Threshold decimal.Decimal
}

func (e *BelowThresholdError) Error() string {
	return fmt.Sprintf("eligible amount %s below payout threshold %s", e.Eligible, e.Threshold)
}

func (e *BelowThresholdError) Unwrap() error {
	return ErrBelowThreshold
}

// DuplicateClaimError identifies the reward that was already claimed.
type DuplicateClaimError struct {
	RewardID RewardID
	Cause    error
}

func (e *DuplicateClaimError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("reward %s already claimed: %v", e.RewardID, e.Cause)
	}
	return fmt.Sprintf("reward %s already claimed", e.RewardID)
}

func (e *DuplicateClaimError) Unwrap() error {
	return ErrDuplicateClaim
}

// NotCancellableError reports the status that blocked a cancellation.
type NotCancellableError struct {
	RequestID PayoutRequestID
	Status    PayoutStatus
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("payout request %s is %s, only pending requests can be cancelled", e.RequestID, e.Status)
}

func (e *NotCancellableError) Unwrap() error {
	return ErrNotCancellable
}

// AmountMismatchError carries both sides of a drifted payout amount.
type AmountMismatchError struct {
	RequestID PayoutRequestID
	Stored    decimal.Decimal
	Live      decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payout request %s amount %s does not match linked rewards %s", e.RequestID, e.Stored, e.Live)
}

func (e *AmountMismatchError) Unwrap() error {
	return ErrAmountMismatch
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidRewardTransition) ||
		errors.Is(err, ErrMissingBankDetails) ||
		errors.Is(err, ErrInvalidBankDetails) ||
		errors.Is(err, ErrBelowThreshold) ||
		errors.Is(err, ErrNoEligibleRewards) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrCaseNotPaid) ||
		errors.Is(err, ErrUnknownStatus)
}

// IsConflict returns true if the error reflects competing state, not bad input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateClaim) ||
		errors.Is(err, ErrNotCancellable) ||
		errors.Is(err, ErrInvalidPayoutTransition) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCaseNotFound) ||
		errors.Is(err, ErrRewardNotFound) ||
		errors.Is(err, ErrPayoutNotFound) ||
		errors.Is(err, ErrProfileNotFound)
}
