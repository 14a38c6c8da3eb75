// Package store provides AuditStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	entries map[budget.BudgetKey][]budget.AuditEntry
	seq     uint64
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[budget.BudgetKey][]budget.AuditEntry),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, entry budget.AuditEntry) (budget.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(entry), nil
}

// AppendGroup adds the entries of one allocation request atomically.
// The lock makes the whole group one critical section, so a concurrent
// group can never interleave its sequence numbers with this one.
func (m *Memory) AppendGroup(_ context.Context, entries []budget.AuditEntry) ([]budget.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]budget.AuditEntry, len(entries))
	for i, e := range entries {
		stored[i] = m.appendLocked(e)
	}
	return stored, nil
}

func (m *Memory) appendLocked(entry budget.AuditEntry) budget.AuditEntry {
	m.seq++
	entry.Seq = m.seq
	m.entries[entry.EntityKey] = append(m.entries[entry.EntityKey], entry)
	return entry
}

// Entries returns entries for a key, most recent first by Seq.
func (m *Memory) Entries(_ context.Context, key budget.BudgetKey, limit int) ([]budget.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.entries[key]
	n := len(stored)
	if limit > 0 && limit < n {
		n = limit
	}

	// Entries are appended in Seq order; reverse on the way out.
	result := make([]budget.AuditEntry, 0, n)
	for i := len(stored) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, stored[i])
	}
	return result, nil
}

func (m *Memory) Latest(_ context.Context, key budget.BudgetKey) (*budget.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.entries[key]
	if len(stored) == 0 {
		return nil, nil
	}
	latest := stored[len(stored)-1]
	return &latest, nil
}

func (m *Memory) Count(_ context.Context, key budget.BudgetKey) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[key]), nil
}

func (m *Memory) LatestAll(_ context.Context) (map[budget.BudgetKey]budget.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[budget.BudgetKey]budget.AuditEntry, len(m.entries))
	for key, stored := range m.entries {
		if len(stored) > 0 {
			result[key] = stored[len(stored)-1]
		}
	}
	return result, nil
}
