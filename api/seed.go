/*
seed.go - Demo dataset loader for testing and demonstrations

PURPOSE:
  Populates the ledger and the in-memory transaction set with a small
  realistic dataset: one department with regional detail, one without,
  and one whose org name drifts from its budget key (exercising the
  fuzzy resolver end to end).

HOW THE SEED WORKS:
  1. Set the organizational hierarchy and transaction set
  2. Apply allocation requests through the writer, so the demo data
     arrives through the same audited path as real writes

NOTE:
  The seed appends to the ledger; it does not reset it. Only use in
  development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - budget/writer.go: The write path the seed exercises
*/
package api

import (
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
)

// LoadSeed loads the demo dataset.
func (h *Handler) LoadSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.SetData(budget.Hierarchy{
		RegionsByDepartment: map[string][]string{
			"BW": {"Stuttgart", "Ulm"},
		},
	}, demoTransactions())

	seedActor := budget.Actor{UserName: "seed", UserID: "system"}

	requests := []budget.AllocationRequest{
		{
			Department:       "BW",
			LocationType:     budget.LocationFloor,
			DepartmentAmount: decimal.NewFromInt(50000),
			RegionalAmounts: map[string]decimal.Decimal{
				"Stuttgart": decimal.NewFromInt(25000),
				"Ulm":       decimal.NewFromInt(25000),
			},
			Actor:  seedActor,
			Reason: "demo seed",
		},
		{
			Department:       "Vertrieb",
			LocationType:     budget.LocationHQ,
			DepartmentAmount: decimal.NewFromInt(10000),
			Actor:            seedActor,
			Reason:           "demo seed",
		},
		{
			// Key drifts from the org name "Marke & Marketing".
			Department:       "marke und marketing",
			LocationType:     budget.LocationFloor,
			DepartmentAmount: decimal.NewFromInt(30000),
			Actor:            seedActor,
			Reason:           "demo seed",
		},
	}

	for _, req := range requests {
		if _, err := h.Writer.Apply(ctx, req); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load seed", err)
			return
		}
	}

	h.cache.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{
		"allocations":  len(requests),
		"transactions": len(demoTransactions()),
	})
}

func demoTransactions() []budget.Transaction {
	return []budget.Transaction{
		{Department: "BW", Region: "Stuttgart", Category: budget.CategoryDirectCost, ActualAmount: decimal.NewFromInt(8000)},
		{Department: "BW", Region: "Stuttgart", Category: budget.CategoryBookedMeasure, ActualAmount: decimal.NewFromInt(4000)},
		{Department: "BW", Region: "Ulm", Category: budget.CategoryParkedMeasure, EstimatedAmount: decimal.NewFromInt(3000)},
		{Department: "Vertrieb", Category: budget.CategoryBookedMeasure, ActualAmount: decimal.NewFromInt(12000)},
		{Department: "Vertrieb", Category: budget.CategoryParkedMeasure, EstimatedAmount: decimal.NewFromInt(3000)},
		{Department: "Marke & Marketing", Category: budget.CategoryDirectCost, ActualAmount: decimal.NewFromInt(5000)},
		{Department: "Marke & Marketing", Category: budget.CategoryUnassignedMeasure, EstimatedAmount: decimal.NewFromInt(9000)},
	}
}
