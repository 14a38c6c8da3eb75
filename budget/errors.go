/*
errors.go - Centralized error types for the budget engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Key errors        - Malformed BudgetKeys
  2. Validation errors - Rejected allocation requests
  3. Ledger errors     - Persistence and write-race failures

NOT AN ERROR:
  A resolver miss. When no budget record matches an entity name, the
  resolver returns no record and the rollup treats the allocation as
  zero. Absence of budget data is normal state, not a failure.

USAGE:
  var mismatch *budget.AllocationMismatchError
  if errors.As(err, &mismatch) {
      render(mismatch.Expected, mismatch.Actual)
  }

SEE ALSO:
  - writer.go: Produces the validation errors
  - ledger.go: Produces the ledger errors
*/
package budget

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMalformedKey is returned when a BudgetKey has an empty
	// department segment and cannot be parsed.
	ErrMalformedKey = errors.New("malformed budget key")

	// ErrAllocationMismatch is returned when the regional amounts do not
	// sum to the department amount and partial allocation is disallowed.
	ErrAllocationMismatch = errors.New("regional amounts do not sum to department amount")

	// ErrMissingActor is returned when a write carries no user name.
	// The audit trail cannot have an anonymous entry.
	ErrMissingActor = errors.New("allocation write requires an actor name")

	// ErrNegativeAmount is returned when any requested amount is < 0.
	ErrNegativeAmount = errors.New("allocation amounts must be >= 0")

	// ErrConcurrentWriteConflict is returned by ledger implementations
	// that detect a lost-update race. The writer retries once against a
	// fresh snapshot before surfacing it.
	ErrConcurrentWriteConflict = errors.New("concurrent write conflict")

	// ErrWriteFailed is returned when the store cannot persist entries.
	ErrWriteFailed = errors.New("audit write failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedKeyError reports an unparseable BudgetKey.
type MalformedKeyError struct {
	Key    BudgetKey
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed budget key %q: %s", string(e.Key), e.Reason)
}

func (e *MalformedKeyError) Unwrap() error { return ErrMalformedKey }

// AllocationMismatchError carries both totals so the caller can render
// a precise message.
type AllocationMismatchError struct {
	Expected decimal.Decimal // department amount
	Actual   decimal.Decimal // sum of regional amounts
}

func (e *AllocationMismatchError) Error() string {
	return fmt.Sprintf("regional sum %s does not match department amount %s",
		e.Actual.String(), e.Expected.String())
}

func (e *AllocationMismatchError) Unwrap() error { return ErrAllocationMismatch }

// NegativeAmountError identifies which amount was negative.
type NegativeAmountError struct {
	Field  string // "department" or the region name
	Amount decimal.Decimal
}

func (e *NegativeAmountError) Error() string {
	return fmt.Sprintf("negative allocation for %s: %s", e.Field, e.Amount.String())
}

func (e *NegativeAmountError) Unwrap() error { return ErrNegativeAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input and
// should not be retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedKey) ||
		errors.Is(err, ErrAllocationMismatch) ||
		errors.Is(err, ErrMissingActor) ||
		errors.Is(err, ErrNegativeAmount)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentWriteConflict)
}
