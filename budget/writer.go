/*
writer.go - Validated allocation writes

PURPOSE:
  Applies one logical allocation request: one department amount plus
  zero or more regional amounts, written as an atomic group of audit
  entries. This is the ONLY path that mutates budget state.

VALIDATION (all-or-nothing; zero entries written on failure):
  1. Actor name must be non-empty (no anonymous audit entries)
  2. Every amount must be >= 0
  3. Unless partial allocation is allowed, the regional amounts must
     sum to the department amount within the currency epsilon (0.01).
     A deviation of exactly 0.01 is accepted; more is rejected with
     AllocationMismatchError carrying both totals.

SNAPSHOT SEMANTICS:
  On success one entry is written for the department key and one per
  regional key, even when a regional amount is unchanged. The group is
  a full snapshot of the request, not a diff, so history reads replay
  cleanly.

RETRY:
  If the store reports a concurrent write conflict, the writer re-reads
  current values and retries the whole validate-and-apply sequence once
  before surfacing the failure.

SEE ALSO:
  - ledger.go: Performs the atomic group append
  - errors.go: The validation error types
*/
package budget

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// currencyEpsilon is the tolerated rounding slack between a department
// amount and the sum of its regional amounts.
var currencyEpsilon = decimal.NewFromFloat(0.01)

// AllocationRequest is one logical allocation change.
type AllocationRequest struct {
	Department       string
	LocationType     LocationType
	DepartmentAmount decimal.Decimal

	// RegionalAmounts maps region name to amount. May be empty for a
	// department with no regional detail.
	RegionalAmounts map[string]decimal.Decimal

	Actor  Actor
	Reason string

	// AllowPartialAllocation permits the regional amounts to total less
	// (or more) than the department amount.
	AllowPartialAllocation bool
}

// AllocationResult is returned to the caller for UI confirmation.
type AllocationResult struct {
	// Snapshot is the post-write current state across all keys.
	Snapshot Snapshot

	// GroupID ties the written entries together; ChangeIDs lists them
	// individually, department first, regions in sorted name order.
	GroupID   string
	ChangeIDs []string

	AuditEntries int
	UpdatedBy    string
}

// Writer validates and applies allocation requests through a ledger.
type Writer struct {
	Ledger Ledger
}

// NewWriter wraps a ledger.
func NewWriter(ledger Ledger) *Writer {
	return &Writer{Ledger: ledger}
}

// Apply validates the request and writes its audit entry group.
// On any validation failure zero entries are written.
func (w *Writer) Apply(ctx context.Context, req AllocationRequest) (AllocationResult, error) {
	result, err := w.apply(ctx, req)
	if errors.Is(err, ErrConcurrentWriteConflict) {
		// One retry against the latest snapshot, then give up.
		result, err = w.apply(ctx, req)
	}
	return result, err
}

func (w *Writer) apply(ctx context.Context, req AllocationRequest) (AllocationResult, error) {
	if err := validate(req); err != nil {
		return AllocationResult{}, err
	}

	departmentKey, err := BuildKey(req.Department, "", req.LocationType)
	if err != nil {
		return AllocationResult{}, err
	}

	// Build the entry group: department first, then regions in sorted
	// name order so entry order (and Seq order) is deterministic.
	entries := make([]AuditEntry, 0, 1+len(req.RegionalAmounts))

	oldValue, err := w.currentAmount(ctx, departmentKey)
	if err != nil {
		return AllocationResult{}, err
	}
	entries = append(entries, AuditEntry{
		EntityKey:    departmentKey,
		EntityType:   KindDepartment,
		EntityName:   req.Department,
		OldValue:     oldValue,
		NewValue:     req.DepartmentAmount,
		UserName:     req.Actor.UserName,
		UserID:       req.Actor.UserID,
		UserIP:       req.Actor.UserIP,
		ChangeReason: req.Reason,
	})

	for _, region := range sortedRegions(req.RegionalAmounts) {
		regionKey, err := BuildKey(req.Department, region, req.LocationType)
		if err != nil {
			return AllocationResult{}, err
		}
		oldValue, err := w.currentAmount(ctx, regionKey)
		if err != nil {
			return AllocationResult{}, err
		}
		entries = append(entries, AuditEntry{
			EntityKey:    regionKey,
			EntityType:   KindRegion,
			EntityName:   region,
			OldValue:     oldValue,
			NewValue:     req.RegionalAmounts[region],
			UserName:     req.Actor.UserName,
			UserID:       req.Actor.UserID,
			UserIP:       req.Actor.UserIP,
			ChangeReason: req.Reason,
		})
	}

	stored, err := w.Ledger.RecordGroup(ctx, entries)
	if err != nil {
		return AllocationResult{}, err
	}

	snapshot, err := w.Ledger.Snapshot(ctx)
	if err != nil {
		return AllocationResult{}, err
	}

	changeIDs := make([]string, len(stored))
	for i, e := range stored {
		changeIDs[i] = e.ChangeID
	}
	return AllocationResult{
		Snapshot:     snapshot,
		GroupID:      stored[0].GroupID,
		ChangeIDs:    changeIDs,
		AuditEntries: len(stored),
		UpdatedBy:    req.Actor.UserName,
	}, nil
}

func validate(req AllocationRequest) error {
	if req.Actor.UserName == "" {
		return ErrMissingActor
	}
	if req.DepartmentAmount.IsNegative() {
		return &NegativeAmountError{Field: "department", Amount: req.DepartmentAmount}
	}
	for region, amount := range req.RegionalAmounts {
		if amount.IsNegative() {
			return &NegativeAmountError{Field: region, Amount: amount}
		}
	}

	if len(req.RegionalAmounts) > 0 && !req.AllowPartialAllocation {
		sum := decimal.Zero
		for _, amount := range req.RegionalAmounts {
			sum = sum.Add(amount)
		}
		if sum.Sub(req.DepartmentAmount).Abs().GreaterThan(currencyEpsilon) {
			return &AllocationMismatchError{Expected: req.DepartmentAmount, Actual: sum}
		}
	}
	return nil
}

func (w *Writer) currentAmount(ctx context.Context, key BudgetKey) (decimal.Decimal, error) {
	current, err := w.Ledger.CurrentValue(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	if current == nil {
		// First allocation for this key.
		return decimal.Zero, nil
	}
	return current.AllocatedAmount, nil
}

func sortedRegions(amounts map[string]decimal.Decimal) []string {
	regions := make([]string, 0, len(amounts))
	for region := range amounts {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}
