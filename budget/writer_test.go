package budget_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/budget/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestWriter() (*budget.Writer, *budget.AuditLedger) {
	ledger := budget.NewLedger(store.NewMemory())
	return budget.NewWriter(ledger), ledger
}

func bwRequest(departmentAmount float64, regional map[string]float64) budget.AllocationRequest {
	amounts := make(map[string]decimal.Decimal, len(regional))
	for region, v := range regional {
		amounts[region] = decimal.NewFromFloat(v)
	}
	return budget.AllocationRequest{
		Department:       "BW",
		LocationType:     budget.LocationFloor,
		DepartmentAmount: decimal.NewFromFloat(departmentAmount),
		RegionalAmounts:  amounts,
		Actor:            testActor,
		Reason:           "quarterly planning",
	}
}

// =============================================================================
// END-TO-END ALLOCATION TESTS
// =============================================================================

func TestWriter_DepartmentWithRegions_ThreeEntries(t *testing.T) {
	// GIVEN: 50000 for BW split evenly across Stuttgart and Ulm
	// WHEN: Applying with partial allocation disallowed
	// THEN: 3 audit entries (1 department + 2 regions), department
	//       rollup allocated = 50000

	ctx := context.Background()
	writer, ledger := newTestWriter()

	result, err := writer.Apply(ctx, bwRequest(50000, map[string]float64{
		"Stuttgart": 25000,
		"Ulm":       25000,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AuditEntries != 3 || len(result.ChangeIDs) != 3 {
		t.Errorf("expected 3 audit entries, got %d (%d IDs)", result.AuditEntries, len(result.ChangeIDs))
	}
	if result.UpdatedBy != testActor.UserName {
		t.Errorf("updatedBy = %s, want %s", result.UpdatedBy, testActor.UserName)
	}
	if result.GroupID == "" {
		t.Error("expected a group ID")
	}

	// The snapshot reflects the write.
	if rec, ok := result.Snapshot.Departments["BW|Floor"]; !ok || !rec.AllocatedAmount.Equal(amount(50000)) {
		t.Errorf("department record = %+v", rec)
	}
	if rec, ok := result.Snapshot.Regions["BW|Ulm|Floor"]; !ok || !rec.AllocatedAmount.Equal(amount(25000)) {
		t.Errorf("Ulm record = %+v", rec)
	}

	// The department rollup composed from regions sees 50000.
	calc := budget.NewCalculator(result.Snapshot.Records())
	dept := calc.ForDepartment("BW", budget.LocationFloor, []string{"Stuttgart", "Ulm"}, nil)
	if !dept.Allocated.Equal(amount(50000)) {
		t.Errorf("department allocated = %s, want 50000", dept.Allocated.String())
	}
	if !dept.FromRegions {
		t.Error("expected regional composition")
	}

	// History exists for every key.
	for _, key := range []budget.BudgetKey{"BW|Floor", "BW|Stuttgart|Floor", "BW|Ulm|Floor"} {
		history, _ := ledger.History(ctx, key, 0)
		if len(history) != 1 {
			t.Errorf("history(%s) = %d entries, want 1", key, len(history))
		}
	}
}

func TestWriter_Mismatch_RejectedAtomically(t *testing.T) {
	// GIVEN: Regional sum 40000 against department amount 50000
	// WHEN: Partial allocation is disallowed
	// THEN: AllocationMismatch with both totals; ZERO entries written

	ctx := context.Background()
	writer, ledger := newTestWriter()

	_, err := writer.Apply(ctx, bwRequest(50000, map[string]float64{
		"Stuttgart": 20000,
		"Ulm":       20000,
	}))

	var mismatch *budget.AllocationMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected AllocationMismatchError, got %v", err)
	}
	if !mismatch.Expected.Equal(amount(50000)) || !mismatch.Actual.Equal(amount(40000)) {
		t.Errorf("mismatch carries %s/%s, want 50000/40000",
			mismatch.Expected.String(), mismatch.Actual.String())
	}

	for _, key := range []budget.BudgetKey{"BW|Floor", "BW|Stuttgart|Floor", "BW|Ulm|Floor"} {
		history, _ := ledger.History(ctx, key, 0)
		if len(history) != 0 {
			t.Errorf("history(%s) = %d entries, want 0", key, len(history))
		}
	}
}

func TestWriter_EpsilonBoundary(t *testing.T) {
	ctx := context.Background()

	// Deviation of exactly 0.01 is accepted.
	writer, _ := newTestWriter()
	_, err := writer.Apply(ctx, bwRequest(50000, map[string]float64{
		"Stuttgart": 25000,
		"Ulm":       24999.99,
	}))
	if err != nil {
		t.Errorf("deviation of exactly 0.01 must be accepted, got %v", err)
	}

	// Deviation of 0.011 is rejected.
	writer, _ = newTestWriter()
	_, err = writer.Apply(ctx, bwRequest(50000, map[string]float64{
		"Stuttgart": 25000,
		"Ulm":       24999.989,
	}))
	if !errors.Is(err, budget.ErrAllocationMismatch) {
		t.Errorf("deviation above 0.01 must be rejected, got %v", err)
	}
}

func TestWriter_PartialAllocationAllowed(t *testing.T) {
	ctx := context.Background()
	writer, _ := newTestWriter()

	req := bwRequest(50000, map[string]float64{"Stuttgart": 10000})
	req.AllowPartialAllocation = true

	result, err := writer.Apply(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AuditEntries != 2 {
		t.Errorf("expected 2 entries, got %d", result.AuditEntries)
	}
}

func TestWriter_MissingActor_Rejected(t *testing.T) {
	ctx := context.Background()
	writer, ledger := newTestWriter()

	req := bwRequest(50000, nil)
	req.Actor = budget.Actor{}

	_, err := writer.Apply(ctx, req)
	if !errors.Is(err, budget.ErrMissingActor) {
		t.Fatalf("expected ErrMissingActor, got %v", err)
	}

	history, _ := ledger.History(ctx, "BW|Floor", 0)
	if len(history) != 0 {
		t.Error("anonymous write must leave no entries")
	}
}

func TestWriter_NegativeAmounts_Rejected(t *testing.T) {
	ctx := context.Background()
	writer, _ := newTestWriter()

	req := bwRequest(-1, nil)
	if _, err := writer.Apply(ctx, req); !errors.Is(err, budget.ErrNegativeAmount) {
		t.Errorf("negative department amount: expected ErrNegativeAmount, got %v", err)
	}

	req = bwRequest(50000, map[string]float64{"Stuttgart": -25000})
	req.AllowPartialAllocation = true
	_, err := writer.Apply(ctx, req)
	var negative *budget.NegativeAmountError
	if !errors.As(err, &negative) || negative.Field != "Stuttgart" {
		t.Errorf("negative regional amount: expected NegativeAmountError for Stuttgart, got %v", err)
	}
}

func TestWriter_FullSnapshotSemantics_UnchangedRegionStillWritten(t *testing.T) {
	// A repeat write with an unchanged regional amount still produces a
	// regional entry: the group is a snapshot, not a diff.

	ctx := context.Background()
	writer, ledger := newTestWriter()

	first := bwRequest(50000, map[string]float64{"Stuttgart": 25000, "Ulm": 25000})
	if _, err := writer.Apply(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := bwRequest(60000, map[string]float64{"Stuttgart": 35000, "Ulm": 25000})
	result, err := writer.Apply(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if result.AuditEntries != 3 {
		t.Errorf("expected 3 entries on repeat write, got %d", result.AuditEntries)
	}

	history, _ := ledger.History(ctx, "BW|Ulm|Floor", 0)
	if len(history) != 2 {
		t.Fatalf("unchanged region must still be written, history = %d", len(history))
	}
	if !history[0].ChangeAmount.IsZero() {
		t.Errorf("unchanged region entry should have zero change amount, got %s",
			history[0].ChangeAmount.String())
	}
	if !history[0].OldValue.Equal(amount(25000)) || !history[0].NewValue.Equal(amount(25000)) {
		t.Errorf("unchanged region entry old/new = %s/%s, want 25000/25000",
			history[0].OldValue.String(), history[0].NewValue.String())
	}
}

func TestWriter_NoRegions_SumCheckSkipped(t *testing.T) {
	// A department without regional detail has nothing to reconcile.
	ctx := context.Background()
	writer, _ := newTestWriter()

	result, err := writer.Apply(ctx, bwRequest(50000, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AuditEntries != 1 {
		t.Errorf("expected 1 entry, got %d", result.AuditEntries)
	}
}

// =============================================================================
// CONFLICT RETRY TESTS
// =============================================================================

// conflictOnce wraps a ledger and fails the first group append with a
// concurrent write conflict.
type conflictOnce struct {
	budget.Ledger
	conflicted bool
}

func (c *conflictOnce) RecordGroup(ctx context.Context, entries []budget.AuditEntry) ([]budget.AuditEntry, error) {
	if !c.conflicted {
		c.conflicted = true
		return nil, budget.ErrConcurrentWriteConflict
	}
	return c.Ledger.RecordGroup(ctx, entries)
}

func TestWriter_RetriesOnceOnConflict(t *testing.T) {
	ctx := context.Background()
	inner := budget.NewLedger(store.NewMemory())
	writer := budget.NewWriter(&conflictOnce{Ledger: inner})

	result, err := writer.Apply(ctx, bwRequest(50000, nil))
	if err != nil {
		t.Fatalf("one conflict should be retried away, got %v", err)
	}
	if result.AuditEntries != 1 {
		t.Errorf("expected 1 entry after retry, got %d", result.AuditEntries)
	}
}

// conflictAlways fails every group append.
type conflictAlways struct {
	budget.Ledger
	attempts int
}

func (c *conflictAlways) RecordGroup(ctx context.Context, entries []budget.AuditEntry) ([]budget.AuditEntry, error) {
	c.attempts++
	return nil, budget.ErrConcurrentWriteConflict
}

func TestWriter_SurfacesConflictAfterOneRetry(t *testing.T) {
	ctx := context.Background()
	inner := budget.NewLedger(store.NewMemory())
	wrapped := &conflictAlways{Ledger: inner}
	writer := budget.NewWriter(wrapped)

	_, err := writer.Apply(ctx, bwRequest(50000, nil))
	if !errors.Is(err, budget.ErrConcurrentWriteConflict) {
		t.Fatalf("expected surfaced conflict, got %v", err)
	}
	if wrapped.attempts != 2 {
		t.Errorf("expected exactly 2 attempts (original + one retry), got %d", wrapped.attempts)
	}
}
