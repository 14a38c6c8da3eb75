/*
Package sqlite provides a SQLite-backed implementation of the audit store.

PURPOSE:
  Implements budget.AuditStore using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on budget_changes
  - No DELETE statements on budget_changes
  - The current record for a key is derived from its newest row

WRITE SEQUENCE:
  The INTEGER PRIMARY KEY AUTOINCREMENT column is the monotonic write
  sequence that orders history. SQLite assigns it inside the insert
  transaction, so concurrent writers to the same key cannot produce
  interleaved or inverted sequences even when their client timestamps
  disagree.

KEY TABLE:
  budget_changes: Immutable ledger of every allocation change

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := budget.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - budget/store.go: Interface definition
  - budget/ledger.go: Higher-level ledger using AuditStore
  - budget/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
)

// Store implements budget.AuditStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Budget changes (append-only audit ledger)
	CREATE TABLE IF NOT EXISTS budget_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		change_id TEXT NOT NULL UNIQUE,
		group_id TEXT NOT NULL,
		entity_key TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_name TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		change_amount TEXT NOT NULL,
		user_name TEXT NOT NULL,
		user_id TEXT,
		user_ip TEXT,
		change_reason TEXT,
		recorded_at TEXT NOT NULL
	);

	-- Current-value and history lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_budget_changes_key_seq
		ON budget_changes(entity_key, seq DESC);

	-- One allocation request's entries
	CREATE INDEX IF NOT EXISTS idx_budget_changes_group
		ON budget_changes(group_id);

	-- Per-actor audit queries
	CREATE INDEX IF NOT EXISTS idx_budget_changes_user
		ON budget_changes(user_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// AUDIT STORE (budget.AuditStore interface)
// =============================================================================

// Append adds one entry to the ledger.
func (s *Store) Append(ctx context.Context, entry budget.AuditEntry) (budget.AuditEntry, error) {
	stored, err := s.AppendGroup(ctx, []budget.AuditEntry{entry})
	if err != nil {
		return budget.AuditEntry{}, err
	}
	return stored[0], nil
}

// AppendGroup adds the entries of one allocation request atomically.
func (s *Store) AppendGroup(ctx context.Context, entries []budget.AuditEntry) ([]budget.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO budget_changes
		(change_id, group_id, entity_key, entity_type, entity_name,
		 old_value, new_value, change_amount,
		 user_name, user_id, user_ip, change_reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stored := make([]budget.AuditEntry, len(entries))
	for i, e := range entries {
		res, err := sqlTx.ExecContext(ctx, query,
			e.ChangeID,
			e.GroupID,
			string(e.EntityKey),
			string(e.EntityType),
			e.EntityName,
			e.OldValue.String(),
			e.NewValue.String(),
			e.ChangeAmount.String(),
			e.UserName,
			nullString(e.UserID),
			nullString(e.UserIP),
			nullString(e.ChangeReason),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return nil, budget.ErrConcurrentWriteConflict
			}
			return nil, fmt.Errorf("%w: %v", budget.ErrWriteFailed, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", budget.ErrWriteFailed, err)
		}
		e.Seq = uint64(seq)
		stored[i] = e
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", budget.ErrWriteFailed, err)
	}
	return stored, nil
}

// Entries returns entries for a key, most recent first.
func (s *Store) Entries(ctx context.Context, key budget.BudgetKey, limit int) ([]budget.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT seq, change_id, group_id, entity_key, entity_type, entity_name,
		       old_value, new_value, change_amount,
		       user_name, user_id, user_ip, change_reason, recorded_at
		FROM budget_changes
		WHERE entity_key = ?
		ORDER BY seq DESC
	`
	args := []any{string(key)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryEntries(ctx, query, args...)
}

// Latest returns the newest entry for a key, or nil.
func (s *Store) Latest(ctx context.Context, key budget.BudgetKey) (*budget.AuditEntry, error) {
	entries, err := s.Entries(ctx, key, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Count returns the number of entries for a key.
func (s *Store) Count(ctx context.Context, key budget.BudgetKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM budget_changes WHERE entity_key = ?",
		string(key),
	).Scan(&count)
	return count, err
}

// LatestAll returns the newest entry for every key.
func (s *Store) LatestAll(ctx context.Context) (map[budget.BudgetKey]budget.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT seq, change_id, group_id, entity_key, entity_type, entity_name,
		       old_value, new_value, change_amount,
		       user_name, user_id, user_ip, change_reason, recorded_at
		FROM budget_changes
		WHERE seq IN (SELECT MAX(seq) FROM budget_changes GROUP BY entity_key)
	`

	entries, err := s.queryEntries(ctx, query)
	if err != nil {
		return nil, err
	}

	result := make(map[budget.BudgetKey]budget.AuditEntry, len(entries))
	for _, e := range entries {
		result[e.EntityKey] = e
	}
	return result, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]budget.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budget changes: %w", err)
	}
	defer rows.Close()

	var entries []budget.AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (budget.AuditEntry, error) {
	var (
		entry        budget.AuditEntry
		entityKey    string
		entityType   string
		oldValue     string
		newValue     string
		changeAmount string
		userID       sql.NullString
		userIP       sql.NullString
		changeReason sql.NullString
		recordedAt   string
	)

	err := rows.Scan(
		&entry.Seq, &entry.ChangeID, &entry.GroupID, &entityKey, &entityType,
		&entry.EntityName, &oldValue, &newValue, &changeAmount,
		&entry.UserName, &userID, &userIP, &changeReason, &recordedAt,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan budget change: %w", err)
	}

	entry.EntityKey = budget.BudgetKey(entityKey)
	entry.EntityType = budget.EntityKind(entityType)
	entry.OldValue = parseDecimal(oldValue)
	entry.NewValue = parseDecimal(newValue)
	entry.ChangeAmount = parseDecimal(changeAmount)
	entry.UserID = userID.String
	entry.UserIP = userIP.String
	entry.ChangeReason = changeReason.String
	entry.Timestamp, _ = time.Parse(time.RFC3339Nano, recordedAt)

	return entry, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
