package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testEntry(changeID string, key budget.BudgetKey, newValue float64) budget.AuditEntry {
	v := decimal.NewFromFloat(newValue)
	return budget.AuditEntry{
		ChangeID:     changeID,
		GroupID:      "grp-" + changeID,
		EntityKey:    key,
		EntityType:   budget.KindDepartment,
		EntityName:   "BW",
		OldValue:     decimal.Zero,
		NewValue:     v,
		ChangeAmount: v,
		UserName:     "a.tester",
		UserID:       "u-1",
		UserIP:       "10.0.0.1",
		ChangeReason: "test",
		Timestamp:    time.Now().UTC(),
	}
}

func TestSQLiteStore_AppendAssignsSequence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, testEntry("c-1", "BW|Floor", 100))
	require.NoError(t, err)
	second, err := store.Append(ctx, testEntry("c-2", "BW|Floor", 200))
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq, "sequence must be monotonic")
}

func TestSQLiteStore_EntriesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := store.Append(ctx, testEntry(fmt.Sprintf("c-%d", i), "BW|Floor", float64(i*100)))
		require.NoError(t, err)
	}

	entries, err := store.Entries(ctx, "BW|Floor", 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i-1].Seq, entries[i].Seq)
	}
	assert.True(t, entries[0].NewValue.Equal(decimal.NewFromInt(500)))

	limited, err := store.Entries(ctx, "BW|Floor", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, "c-5", limited[0].ChangeID)
}

func TestSQLiteStore_RoundTripPreservesFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := testEntry("c-1", "BW|Stuttgart|Floor", 123.45)
	in.EntityType = budget.KindRegion
	in.EntityName = "Stuttgart"
	in.OldValue = decimal.NewFromFloat(23.45)
	in.ChangeAmount = decimal.NewFromInt(100)

	_, err := store.Append(ctx, in)
	require.NoError(t, err)

	got, err := store.Latest(ctx, "BW|Stuttgart|Floor")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, in.ChangeID, got.ChangeID)
	assert.Equal(t, in.GroupID, got.GroupID)
	assert.Equal(t, budget.KindRegion, got.EntityType)
	assert.Equal(t, "Stuttgart", got.EntityName)
	assert.True(t, got.OldValue.Equal(in.OldValue))
	assert.True(t, got.NewValue.Equal(in.NewValue))
	assert.True(t, got.ChangeAmount.Equal(in.ChangeAmount))
	assert.Equal(t, "a.tester", got.UserName)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "10.0.0.1", got.UserIP)
	assert.Equal(t, "test", got.ChangeReason)
	assert.WithinDuration(t, in.Timestamp, got.Timestamp, time.Second)
}

func TestSQLiteStore_AppendGroupIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Seed one entry, then try a group that reuses its change ID. The
	// UNIQUE violation must roll back the whole group.
	_, err := store.Append(ctx, testEntry("c-dup", "BW|Floor", 100))
	require.NoError(t, err)

	_, err = store.AppendGroup(ctx, []budget.AuditEntry{
		testEntry("c-2", "BW|Stuttgart|Floor", 50),
		testEntry("c-dup", "BW|Ulm|Floor", 50),
	})
	require.True(t, errors.Is(err, budget.ErrConcurrentWriteConflict))

	count, err := store.Count(ctx, "BW|Stuttgart|Floor")
	require.NoError(t, err)
	assert.Zero(t, count, "partial group must not survive")
}

func TestSQLiteStore_AppendGroupConsecutiveSequence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.AppendGroup(ctx, []budget.AuditEntry{
		testEntry("c-1", "BW|Floor", 50000),
		testEntry("c-2", "BW|Stuttgart|Floor", 25000),
		testEntry("c-3", "BW|Ulm|Floor", 25000),
	})
	require.NoError(t, err)
	require.Len(t, stored, 3)

	assert.Equal(t, stored[0].Seq+1, stored[1].Seq)
	assert.Equal(t, stored[1].Seq+1, stored[2].Seq)
}

func TestSQLiteStore_LatestAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, testEntry("c-1", "BW|Floor", 100))
	require.NoError(t, err)
	_, err = store.Append(ctx, testEntry("c-2", "BW|Floor", 200))
	require.NoError(t, err)
	_, err = store.Append(ctx, testEntry("c-3", "Vertrieb|HQ", 300))
	require.NoError(t, err)

	latest, err := store.LatestAll(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	assert.True(t, latest["BW|Floor"].NewValue.Equal(decimal.NewFromInt(200)))
	assert.True(t, latest["Vertrieb|HQ"].NewValue.Equal(decimal.NewFromInt(300)))
}

func TestSQLiteStore_LatestUnknownKey(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Latest(context.Background(), "Nope|Floor")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_OptionalFieldsStoredAsNull(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := testEntry("c-1", "BW|Floor", 100)
	entry.UserID = ""
	entry.UserIP = ""
	entry.ChangeReason = ""

	_, err := store.Append(ctx, entry)
	require.NoError(t, err)

	got, err := store.Latest(ctx, "BW|Floor")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.UserID)
	assert.Empty(t, got.UserIP)
	assert.Empty(t, got.ChangeReason)
}

func TestSQLiteStore_LedgerIntegration(t *testing.T) {
	// The ledger drives the store end to end: group write, history,
	// summary, snapshot split.
	store := newTestStore(t)
	ctx := context.Background()
	ledger := budget.NewLedger(store)

	actor := budget.Actor{UserName: "a.tester"}
	_, err := ledger.RecordGroup(ctx, []budget.AuditEntry{
		{EntityKey: "BW|Floor", NewValue: decimal.NewFromInt(50000), UserName: actor.UserName},
		{EntityKey: "BW|Stuttgart|Floor", NewValue: decimal.NewFromInt(25000), UserName: actor.UserName},
		{EntityKey: "BW|Ulm|Floor", NewValue: decimal.NewFromInt(25000), UserName: actor.UserName},
	})
	require.NoError(t, err)

	snapshot, err := ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Departments, 1)
	assert.Len(t, snapshot.Regions, 2)

	summary, err := ledger.Summary(ctx, "BW|Floor")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalChangeCount)
	require.NotNil(t, summary.CurrentBudget)
	assert.True(t, summary.CurrentBudget.AllocatedAmount.Equal(decimal.NewFromInt(50000)))
}
