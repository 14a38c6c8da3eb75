/*
Package budget provides the core budget reconciliation and rollup engine.

PURPOSE:
  This package contains the domain types and algorithms for reconciling
  budget allocations against classified financial transactions across a
  three-level organizational hierarchy (department → region → district).
  It resolves loosely-keyed budget records to organizational entities,
  aggregates booked/reserved amounts into rollups, and records every
  allocation change in an append-only audit ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - OrganizationalEntity: A department, region, or district
  - Transaction: A classified financial transaction (read-only input)
  - BudgetRecord: The current allocation for one budget key
  - Actor: Attribution for allocation writes

DESIGN PRINCIPLES:
  1. Statelessness: The engine holds no state between calls; callers
     supply a fresh snapshot of records and transactions each time
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Immutability: Budget changes are appended, never edited
  4. Tolerance: Name drift in external data is resolved, not rejected

USAGE:
  records := []budget.BudgetRecord{...}   // current snapshot
  rec, ok := budget.Resolve(records, "Marketing", "", budget.LocationFloor)
  rollup := budget.ForEntity(rec, transactions)

SEE ALSO:
  - key.go: BudgetKey construction and parsing
  - resolver.go: Fuzzy record resolution
  - rollup.go: Rollup calculation
  - ledger.go: Audit ledger and current-state queries
  - writer.go: Validated allocation writes
*/
package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ORGANIZATIONAL ENTITIES
// =============================================================================

type EntityKind string

const (
	KindDepartment EntityKind = "department"
	KindRegion     EntityKind = "region"
	KindDistrict   EntityKind = "district"
)

// LocationType distinguishes budget records for the same organizational
// name at different sites. HQ and Floor are the two values the source
// data uses; anything else is carried through verbatim.
type LocationType string

const (
	LocationHQ    LocationType = "HQ"
	LocationFloor LocationType = "Floor"
)

// OrganizationalEntity is one node of the hierarchy.
//
// INVARIANT: a Region's parent is always a Department; a District's
// parent is always a Region. Names are externally supplied and NOT
// normalized at ingestion - that is why the resolver exists.
type OrganizationalEntity struct {
	Kind         EntityKind
	Name         string
	LocationType LocationType
	Parent       *OrganizationalEntity
}

// Regions returns the names of an entity's child regions, as supplied
// by the caller alongside the snapshot. The engine never discovers
// hierarchy on its own.
type Hierarchy struct {
	// RegionsByDepartment maps a department name to its region names.
	RegionsByDepartment map[string][]string
}

// RegionsOf returns the region names for a department, or nil.
func (h Hierarchy) RegionsOf(department string) []string {
	if h.RegionsByDepartment == nil {
		return nil
	}
	return h.RegionsByDepartment[department]
}

// =============================================================================
// TRANSACTIONS - Classified financial transactions (read-only input)
// =============================================================================

// Category is the classification assigned by the ingestion pipeline
// before transactions reach this engine.
type Category string

const (
	CategoryDirectCost        Category = "DIRECT_COST"
	CategoryBookedMeasure     Category = "BOOKED_MEASURE"
	CategoryParkedMeasure     Category = "PARKED_MEASURE"
	CategoryUnassignedMeasure Category = "UNASSIGNED_MEASURE"
)

// Booked reports whether the category counts as confirmed spend.
func (c Category) Booked() bool {
	return c == CategoryDirectCost || c == CategoryBookedMeasure
}

// Reserved reports whether the category counts as pending spend.
func (c Category) Reserved() bool {
	return c == CategoryParkedMeasure
}

// Transaction is one classified financial transaction. The engine never
// creates or mutates transactions; they arrive pre-filtered from the
// ingestion collaborator.
//
// A transaction belongs to exactly one department and at most one
// region/district. The three amount fields coexist historically:
// booked transactions carry an actual amount, parked ones usually only
// an estimate, and the oldest records a single undifferentiated amount.
type Transaction struct {
	Department string
	Region     string
	District   string
	Category   Category

	Amount          decimal.Decimal
	ActualAmount    decimal.Decimal
	EstimatedAmount decimal.Decimal
}

// EffectiveAmount picks the amount a rollup should count.
// Booked categories prefer the actual amount, parked ones the estimate;
// both fall back to the undifferentiated Amount field from legacy rows.
func (t Transaction) EffectiveAmount() decimal.Decimal {
	if t.Category.Booked() && !t.ActualAmount.IsZero() {
		return t.ActualAmount
	}
	if t.Category.Reserved() && !t.EstimatedAmount.IsZero() {
		return t.EstimatedAmount
	}
	if !t.Amount.IsZero() {
		return t.Amount
	}
	if !t.ActualAmount.IsZero() {
		return t.ActualAmount
	}
	return t.EstimatedAmount
}

// =============================================================================
// BUDGET RECORDS - Current allocation state, owned by the ledger
// =============================================================================

// BudgetRecord is the current allocation for one BudgetKey.
//
// Records are never deleted, only superseded: the ledger retains every
// prior value in history. AllocatedAmount is always >= 0.
type BudgetRecord struct {
	Key             BudgetKey
	AllocatedAmount decimal.Decimal
	LocationType    LocationType
	LastUpdated     time.Time
}

// =============================================================================
// ATTRIBUTION
// =============================================================================

// Actor identifies who performed an allocation write. UserName is
// required (the audit trail cannot have an anonymous write); the rest
// is opaque metadata carried into the audit entry.
type Actor struct {
	UserName string
	UserID   string
	UserIP   string
}
