/*
store.go - Persistence interface for audit entries

PURPOSE:
  Defines the interface between the ledger and the database. The store
  maintains append-only semantics and assigns the monotonic write
  sequence that orders history.

APPEND-ONLY CONTRACT:
  - Append():      Single entry write
  - AppendGroup(): Atomic multi-entry write (one allocation request)
  - NO Update() or Delete() methods exist

SEQUENCE ASSIGNMENT:
  The store assigns Seq at commit time, under whatever lock or database
  transaction it uses internally. Two entries for the same key can
  therefore never tie or invert, regardless of the timestamps callers
  put on them.

IMPLEMENTATIONS:
  - budget/store/memory.go: In-memory for tests and dev
  - store/sqlite:           Production SQLite

SEE ALSO:
  - ledger.go: Higher-level surface using AuditStore
*/
package budget

import "context"

// AuditStore persists audit entries.
// IMPORTANT: AuditStore is APPEND-ONLY. No Update, No Delete. Ever.
type AuditStore interface {
	// Append persists one entry, assigning its Seq. Returns the stored
	// entry.
	Append(ctx context.Context, entry AuditEntry) (AuditEntry, error)

	// AppendGroup persists entries atomically in order, assigning
	// consecutive Seq values. Either all land or none do.
	AppendGroup(ctx context.Context, entries []AuditEntry) ([]AuditEntry, error)

	// Entries returns entries for a key ordered by Seq descending
	// (most recent first). limit <= 0 means unbounded.
	Entries(ctx context.Context, key BudgetKey, limit int) ([]AuditEntry, error)

	// Latest returns the highest-Seq entry for a key, or nil.
	Latest(ctx context.Context, key BudgetKey) (*AuditEntry, error)

	// Count returns the number of entries for a key.
	Count(ctx context.Context, key BudgetKey) (int, error)

	// LatestAll returns the highest-Seq entry for every key.
	LatestAll(ctx context.Context) (map[BudgetKey]AuditEntry, error)
}
