/*
ledger.go - Append-only audit ledger for allocation changes

PURPOSE:
  The ledger is the immutable source of truth for budget allocations.
  Every allocation change is recorded as an AuditEntry with before and
  after values, attribution, and a reason. The current BudgetRecord for
  a key is DERIVED: it is the newest entry's NewValue. There is no
  separate "current" table that can drift out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. ATTRIBUTED: Every entry names the actor; anonymous writes are
     rejected before they reach the store
  4. ORDERED: Entries are ordered by a store-assigned monotonic write
     sequence, not wall-clock time. Client clocks are not trusted, so a
     later write can never be shadowed by an earlier one that merely
     carries a bigger timestamp.

CONCURRENCY:
  The store is the sole synchronization point. Writes to the same key
  serialize inside the store; readers never block writers and may see
  either side of an in-flight write (read-committed).

SEE ALSO:
  - store.go: AuditStore persistence interface
  - writer.go: The only producer of entry groups
  - store/memory.go: In-memory store for tests
  - ../store/sqlite: Production store
*/
package budget

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AUDIT ENTRY - One immutable allocation change
// =============================================================================

// AuditEntry records one allocation change. Created once per successful
// write; never updated or deleted.
type AuditEntry struct {
	// ChangeID is globally unique and doubles as the idempotency /
	// reference token echoed back to the caller.
	ChangeID string

	// GroupID ties together the entries of one allocation request
	// (one department entry plus its regional entries).
	GroupID string

	// Seq is the store-assigned monotonic write sequence. Zero until
	// the entry has been persisted.
	Seq uint64

	EntityKey  BudgetKey
	EntityType EntityKind
	EntityName string

	OldValue     decimal.Decimal
	NewValue     decimal.Decimal
	ChangeAmount decimal.Decimal // NewValue - OldValue

	UserName     string
	UserID       string
	UserIP       string
	ChangeReason string

	Timestamp time.Time
}

// Summary is the convenience read for UI consumption: derivable purely
// from CurrentValue + History.
type Summary struct {
	Key              BudgetKey
	CurrentBudget    *BudgetRecord
	RecentChanges    []AuditEntry
	TotalChangeCount int
}

// Snapshot is the current budget state across all keys, split the way
// the allocation endpoint reports it.
type Snapshot struct {
	Departments map[BudgetKey]BudgetRecord
	Regions     map[BudgetKey]BudgetRecord
}

// Records flattens a snapshot into the record slice the resolver and
// calculator consume.
func (s Snapshot) Records() []BudgetRecord {
	out := make([]BudgetRecord, 0, len(s.Departments)+len(s.Regions))
	for _, r := range s.Departments {
		out = append(out, r)
	}
	for _, r := range s.Regions {
		out = append(out, r)
	}
	return out
}

// recentChangeCount bounds Summary.RecentChanges.
const recentChangeCount = 5

// =============================================================================
// LEDGER - Query and write surface over an AuditStore
// =============================================================================

// Ledger is the audit surface consumed by the writer and the transport.
type Ledger interface {
	// RecordChange appends one attributed allocation change and returns
	// it with ChangeID and Seq assigned.
	RecordChange(ctx context.Context, key BudgetKey, oldValue, newValue decimal.Decimal, actor Actor, reason string) (AuditEntry, error)

	// RecordGroup appends an allocation request's entries atomically,
	// sharing one GroupID. All entries land or none do.
	RecordGroup(ctx context.Context, entries []AuditEntry) ([]AuditEntry, error)

	// CurrentValue returns the latest record for a key, or nil.
	CurrentValue(ctx context.Context, key BudgetKey) (*BudgetRecord, error)

	// History returns entries for a key, most recent first. limit <= 0
	// means unbounded.
	History(ctx context.Context, key BudgetKey, limit int) ([]AuditEntry, error)

	// Summary combines CurrentValue with the most recent changes.
	Summary(ctx context.Context, key BudgetKey) (Summary, error)

	// Snapshot returns the current record for every key, split into
	// departments and regions.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// AuditLedger is the default Ledger over an AuditStore.
type AuditLedger struct {
	Store AuditStore
}

// NewLedger wraps a store.
func NewLedger(store AuditStore) *AuditLedger {
	return &AuditLedger{Store: store}
}

func (l *AuditLedger) RecordChange(ctx context.Context, key BudgetKey, oldValue, newValue decimal.Decimal, actor Actor, reason string) (AuditEntry, error) {
	entries, err := l.RecordGroup(ctx, []AuditEntry{{
		EntityKey:    key,
		OldValue:     oldValue,
		NewValue:     newValue,
		UserName:     actor.UserName,
		UserID:       actor.UserID,
		UserIP:       actor.UserIP,
		ChangeReason: reason,
	}})
	if err != nil {
		return AuditEntry{}, err
	}
	return entries[0], nil
}

func (l *AuditLedger) RecordGroup(ctx context.Context, entries []AuditEntry) ([]AuditEntry, error) {
	groupID := uuid.NewString()
	now := time.Now().UTC()

	prepared := make([]AuditEntry, len(entries))
	for i, e := range entries {
		parts, err := SplitKey(e.EntityKey)
		if err != nil {
			return nil, err
		}
		if e.UserName == "" {
			return nil, ErrMissingActor
		}

		e.ChangeID = uuid.NewString()
		e.GroupID = groupID
		e.ChangeAmount = e.NewValue.Sub(e.OldValue)
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if e.EntityType == "" {
			e.EntityType = KindDepartment
			if e.EntityKey.IsRegionKey() {
				e.EntityType = KindRegion
			}
		}
		if e.EntityName == "" {
			e.EntityName = parts.Department
			if parts.Region != "" {
				e.EntityName = parts.Region
			}
		}
		prepared[i] = e
	}

	stored, err := l.Store.AppendGroup(ctx, prepared)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (l *AuditLedger) CurrentValue(ctx context.Context, key BudgetKey) (*BudgetRecord, error) {
	latest, err := l.Store.Latest(ctx, key)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	rec := recordFromEntry(*latest)
	return &rec, nil
}

func (l *AuditLedger) History(ctx context.Context, key BudgetKey, limit int) ([]AuditEntry, error) {
	return l.Store.Entries(ctx, key, limit)
}

func (l *AuditLedger) Summary(ctx context.Context, key BudgetKey) (Summary, error) {
	current, err := l.CurrentValue(ctx, key)
	if err != nil {
		return Summary{}, err
	}
	recent, err := l.Store.Entries(ctx, key, recentChangeCount)
	if err != nil {
		return Summary{}, err
	}
	total, err := l.Store.Count(ctx, key)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Key:              key,
		CurrentBudget:    current,
		RecentChanges:    recent,
		TotalChangeCount: total,
	}, nil
}

func (l *AuditLedger) Snapshot(ctx context.Context) (Snapshot, error) {
	latest, err := l.Store.LatestAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Departments: make(map[BudgetKey]BudgetRecord),
		Regions:     make(map[BudgetKey]BudgetRecord),
	}
	for key, entry := range latest {
		rec := recordFromEntry(entry)
		if key.IsRegionKey() {
			snap.Regions[key] = rec
		} else {
			snap.Departments[key] = rec
		}
	}
	return snap, nil
}

// recordFromEntry materializes the current record a ledger entry implies.
func recordFromEntry(e AuditEntry) BudgetRecord {
	locationType := LocationType("")
	if parts, err := SplitKey(e.EntityKey); err == nil {
		locationType = parts.LocationType
	}
	return BudgetRecord{
		Key:             e.EntityKey,
		AllocatedAmount: e.NewValue,
		LocationType:    locationType,
		LastUpdated:     e.Timestamp,
	}
}
