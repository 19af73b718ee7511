// Package shared contains common domain types, errors, and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// State errors
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrTerminalState     = errors.New("entity is in a terminal state")

	// Economy errors
	ErrDuplicate           = errors.New("duplicate submission")
	ErrInsufficientBalance = errors.New("insufficient point balance")
	ErrInconsistentState   = errors.New("invariant violation detected")
	ErrTimezoneUnresolved  = errors.New("timezone cannot be resolved")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "goal", "reward"
	Op      string // Operation that failed, e.g., "Append", "Decide"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Child domain errors
var (
	ErrChildNotFound      = NewDomainError("child", "Find", ErrNotFound, "child not found")
	ErrChildAlreadyExists = NewDomainError("child", "Create", ErrAlreadyExists, "child already exists")
	ErrFamilyNotFound     = NewDomainError("child", "FindFamily", ErrNotFound, "family not found")
)

// Ledger domain errors
var (
	ErrDuplicateActivity = NewDomainError("ledger", "Append", ErrDuplicate, "activity with this dedup key already recorded")
	ErrActivityNotFound  = NewDomainError("ledger", "Find", ErrNotFound, "activity not found")
)

// Goal domain errors
var (
	ErrGoalNotFound  = NewDomainError("goal", "Find", ErrNotFound, "goal not found")
	ErrGoalCompleted = NewDomainError("goal", "Update", ErrTerminalState, "goal already completed")
)

// Achievement domain errors
var (
	ErrAchievementNotFound      = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrAchievementNotEarned     = NewDomainError("achievement", "Acknowledge", ErrInvalidState, "achievement not yet earned")
	ErrAlreadyAcknowledged      = NewDomainError("achievement", "Acknowledge", ErrAlreadyProcessed, "celebration already viewed")
	ErrAchievementAlreadyEarned = NewDomainError("achievement", "Earn", ErrAlreadyProcessed, "achievement already earned")
)

// Reward domain errors
var (
	ErrRewardNotFound = NewDomainError("reward", "Find", ErrNotFound, "reward not found")
	ErrClaimNotFound  = NewDomainError("reward", "FindClaim", ErrNotFound, "claim not found")
	ErrAlreadyDecided = NewDomainError("reward", "Decide", ErrTerminalState, "claim already decided")
	ErrBalanceTooLow  = NewDomainError("reward", "Approve", ErrInsufficientBalance, "child balance is below the reward cost")
)

// Reconciliation errors
var (
	ErrBalanceDrift = NewDomainError("reconcile", "Audit", ErrInconsistentState, "stored balance does not match ledger sum")
)
