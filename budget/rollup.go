/*
rollup.go - Budget usage rollups

PURPOSE:
  Computes the derived usage figures for one entity from its resolved
  budget record and its classified transactions, and composes a
  department-level rollup bottom-up from regional rollups.

ROLLUP COMPONENTS:
  Allocated: The resolved budget record's amount (0 on a resolver miss)
  Booked:    Confirmed spend (DIRECT_COST + BOOKED_MEASURE)
  Reserved:  Pending spend (PARKED_MEASURE)
  Total:     Booked + Reserved
  Remaining: Allocated - Total (may go negative; over-allocation is
             surfaced, never blocked)
  Usage:     Total / Allocated * 100, defined as 0 when Allocated is 0

PRECEDENCE RULE:
  When a department has regions and at least one regional rollup is
  nonzero, the department figures are the SUMS of the regional rollups
  and the department's own budget record is ignored entirely. Regional
  detail is more authoritative than a coarse top-level figure. Only a
  department with no nonzero regional rollup falls back to its own
  record.

STATELESSNESS:
  Rollups are computed on demand from the snapshot the caller supplies
  and are never cached here. Display-layer caching (the transport keeps
  snapshots for up to 30s) is the caller's business.

SEE ALSO:
  - resolver.go: Supplies the resolved records
  - types.go: Transaction categories and amount selection
*/
package budget

import "github.com/shopspring/decimal"

// =============================================================================
// ROLLUP - Derived usage figures for one entity
// =============================================================================

// Status buckets a rollup for display. Thresholds are fixed.
type Status string

const (
	StatusGood    Status = "good"
	StatusWarning Status = "warning"
	StatusOver    Status = "over"
)

var (
	warningThreshold = decimal.NewFromInt(85)
	overThreshold    = decimal.NewFromInt(100)
	hundred          = decimal.NewFromInt(100)
)

// Rollup is derived, never stored.
type Rollup struct {
	Allocated decimal.Decimal
	Booked    decimal.Decimal
	Reserved  decimal.Decimal
	Total     decimal.Decimal
	Remaining decimal.Decimal

	// UsagePercentage is Total/Allocated*100, and exactly 0 when
	// Allocated is 0. Never NaN, never an error.
	UsagePercentage decimal.Decimal
}

// Status returns over (>100%), warning (>85%), or good.
func (r Rollup) Status() Status {
	switch {
	case r.UsagePercentage.GreaterThan(overThreshold):
		return StatusOver
	case r.UsagePercentage.GreaterThan(warningThreshold):
		return StatusWarning
	default:
		return StatusGood
	}
}

// IsZero reports whether every component of the rollup is zero.
func (r Rollup) IsZero() bool {
	return r.Allocated.IsZero() && r.Booked.IsZero() && r.Reserved.IsZero()
}

// RegionRollup pairs a region name with its rollup.
type RegionRollup struct {
	Region string
	Rollup Rollup
}

// DepartmentRollup is a department rollup plus the regional detail it
// was (or was not) composed from.
type DepartmentRollup struct {
	Rollup
	Regions []RegionRollup

	// FromRegions is true when the precedence rule fired and the
	// department figures are regional sums.
	FromRegions bool
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator derives rollups against one record snapshot. Like the
// resolver it wraps, it is built fresh per request.
type Calculator struct {
	Resolver *Resolver
}

// NewCalculator builds a calculator over a record snapshot.
func NewCalculator(records []BudgetRecord) *Calculator {
	return &Calculator{Resolver: NewResolver(records)}
}

// ForEntity computes the rollup for one entity from its resolved record
// and its pre-filtered transactions. A nil record means the resolver
// found nothing: allocation is zero, spend still counts.
func ForEntity(record *BudgetRecord, transactions []Transaction) Rollup {
	booked := decimal.Zero
	reserved := decimal.Zero
	for _, tx := range transactions {
		switch {
		case tx.Category.Booked():
			booked = booked.Add(tx.EffectiveAmount())
		case tx.Category.Reserved():
			reserved = reserved.Add(tx.EffectiveAmount())
		}
	}

	allocated := decimal.Zero
	if record != nil {
		allocated = record.AllocatedAmount
	}
	return derive(allocated, booked, reserved)
}

// ForEntityName resolves the entity's record, then computes its rollup.
// A resolver miss yields a rollup with zero allocation.
func (c *Calculator) ForEntityName(name string, locationType LocationType, transactions []Transaction) Rollup {
	var record *BudgetRecord
	if rec, ok := c.Resolver.Resolve(name, "", locationType); ok {
		record = &rec
	}
	return ForEntity(record, transactions)
}

// ForDepartment computes a department rollup, applying the regional
// precedence rule. transactions must already be filtered to the
// department; regional slices are carved out of it by region name.
func (c *Calculator) ForDepartment(department string, locationType LocationType, regions []string, transactions []Transaction) DepartmentRollup {
	result := DepartmentRollup{}

	for _, region := range regions {
		var record *BudgetRecord
		if rec, ok := c.Resolver.ResolveRegion(department, region, locationType); ok {
			record = &rec
		}
		rr := ForEntity(record, transactionsForRegion(transactions, region))
		result.Regions = append(result.Regions, RegionRollup{Region: region, Rollup: rr})
	}

	// Precedence: any nonzero regional rollup means the department
	// figures are the regional sums, ignoring the direct record.
	for _, rr := range result.Regions {
		if !rr.Rollup.IsZero() {
			result.FromRegions = true
			break
		}
	}

	if result.FromRegions {
		allocated, booked, reserved := decimal.Zero, decimal.Zero, decimal.Zero
		for _, rr := range result.Regions {
			allocated = allocated.Add(rr.Rollup.Allocated)
			booked = booked.Add(rr.Rollup.Booked)
			reserved = reserved.Add(rr.Rollup.Reserved)
		}
		result.Rollup = derive(allocated, booked, reserved)
		return result
	}

	result.Rollup = c.ForEntityName(department, locationType, transactions)
	return result
}

func derive(allocated, booked, reserved decimal.Decimal) Rollup {
	total := booked.Add(reserved)
	usage := decimal.Zero
	if allocated.IsPositive() {
		usage = total.Div(allocated).Mul(hundred)
	}
	return Rollup{
		Allocated:       allocated,
		Booked:          booked,
		Reserved:        reserved,
		Total:           total,
		Remaining:       allocated.Sub(total),
		UsagePercentage: usage,
	}
}

func transactionsForRegion(transactions []Transaction, region string) []Transaction {
	var out []Transaction
	for _, tx := range transactions {
		if tx.Region == region {
			out = append(out, tx)
		}
	}
	return out
}
