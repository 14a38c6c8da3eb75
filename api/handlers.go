/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes the budget reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Budget:
    GET    /api/budget-allocation        Current snapshot
    POST   /api/budget-allocation        Apply an allocation request
    GET    /api/budget-summary/{key}     Current record + recent changes
    GET    /api/budget-history           Full history for a key

  Rollups:
    GET    /api/rollups/{department}     Department rollup with regions

  Data:
    GET    /api/data                     Organizational hierarchy
    GET    /api/transactions             Classified transactions
    POST   /api/transactions             Replace the transaction set
    POST   /api/seed                     Load the demo dataset

ATTRIBUTION:
  Allocation writes read the actor from the X-User-Name header and the
  optional reason from X-Change-Reason. Both are opaque strings; only
  non-emptiness of the actor is enforced (by the engine).

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Concurrent write conflict that survived the retry
  - 422: Allocation mismatch (carries both totals)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - cache.go: Read-through snapshot cache
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger budget.Ledger
	Writer *budget.Writer

	cache *snapshotCache

	// The transaction set and hierarchy are supplied by the ingestion
	// collaborator and held here, outside the engine.
	mu           sync.RWMutex
	hierarchy    budget.Hierarchy
	transactions []budget.Transaction
}

// NewHandler creates a new handler over a ledger.
func NewHandler(ledger budget.Ledger) *Handler {
	return &Handler{
		Ledger: ledger,
		Writer: budget.NewWriter(ledger),
		cache:  newSnapshotCache(ledger),
	}
}

// SetData replaces the hierarchy and transaction set.
func (h *Handler) SetData(hierarchy budget.Hierarchy, transactions []budget.Transaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hierarchy = hierarchy
	h.transactions = transactions
}

func (h *Handler) data() (budget.Hierarchy, []budget.Transaction) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hierarchy, h.transactions
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// GetBudgetAllocation returns the current snapshot.
func (h *Handler) GetBudgetAllocation(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load budget snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// PostBudgetAllocation applies one allocation request.
func (h *Handler) PostBudgetAllocation(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	regional := make(map[string]decimal.Decimal, len(req.RegionalAmounts))
	for region, amount := range req.RegionalAmounts {
		regional[region] = decimal.NewFromFloat(amount)
	}

	result, err := h.Writer.Apply(r.Context(), budget.AllocationRequest{
		Department:       req.Department,
		LocationType:     budget.LocationType(req.LocationType),
		DepartmentAmount: decimal.NewFromFloat(req.DepartmentAmount),
		RegionalAmounts:  regional,
		Actor: budget.Actor{
			UserName: r.Header.Get("X-User-Name"),
			UserID:   r.Header.Get("X-User-Id"),
			UserIP:   clientIP(r),
		},
		Reason:                 r.Header.Get("X-Change-Reason"),
		AllowPartialAllocation: req.AllowPartialAllocation,
	})
	if err != nil {
		writeAllocationError(w, err)
		return
	}

	h.cache.Invalidate()

	writeJSON(w, http.StatusOK, AllocationResultDTO{
		Departments:  toRecordDTOs(result.Snapshot.Departments),
		Regions:      toRecordDTOs(result.Snapshot.Regions),
		ChangeID:     result.GroupID,
		ChangeIDs:    result.ChangeIDs,
		AuditEntries: result.AuditEntries,
		UpdatedBy:    result.UpdatedBy,
	})
}

// GetBudgetSummary returns the current record and recent changes for a key.
func (h *Handler) GetBudgetSummary(w http.ResponseWriter, r *http.Request) {
	key := budget.BudgetKey(chi.URLParam(r, "key"))

	summary, err := h.Ledger.Summary(r.Context(), key)
	if err != nil {
		if budget.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid budget key", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load budget summary", err)
		return
	}

	dto := SummaryDTO{
		RecentChanges:    toAuditEntryDTOs(summary.RecentChanges),
		TotalChangeCount: summary.TotalChangeCount,
	}
	if summary.CurrentBudget != nil {
		rec := toRecordDTO(*summary.CurrentBudget)
		dto.CurrentBudget = &rec
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetBudgetHistory returns the change history for a key.
func (h *Handler) GetBudgetHistory(w http.ResponseWriter, r *http.Request) {
	key := budget.BudgetKey(r.URL.Query().Get("entity_key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "entity_key is required", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	entries, err := h.Ledger.History(r.Context(), key, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load budget history", err)
		return
	}

	dto := HistoryDTO{Entries: toAuditEntryDTOs(entries)}
	if dto.Entries == nil {
		dto.Entries = []AuditEntryDTO{}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ROLLUP HANDLERS
// =============================================================================

// GetDepartmentRollup computes the rollup for one department from a
// fresh snapshot, applying the regional precedence rule.
func (h *Handler) GetDepartmentRollup(w http.ResponseWriter, r *http.Request) {
	department := chi.URLParam(r, "department")
	locationType := budget.LocationType(r.URL.Query().Get("location_type"))
	if locationType == "" {
		locationType = budget.LocationFloor
	}

	snap, err := h.cache.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load budget snapshot", err)
		return
	}

	hierarchy, transactions := h.data()
	calc := budget.NewCalculator(snap.Records())
	rollup := calc.ForDepartment(
		department,
		locationType,
		hierarchy.RegionsOf(department),
		transactionsForDepartment(transactions, department),
	)

	dto := DepartmentRollupDTO{
		Department:  department,
		Rollup:      toRollupDTO(rollup.Rollup),
		FromRegions: rollup.FromRegions,
	}
	for _, rr := range rollup.Regions {
		dto.Regions = append(dto.Regions, RegionRollupDTO{
			Region: rr.Region,
			Rollup: toRollupDTO(rr.Rollup),
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// DATA HANDLERS
// =============================================================================

// GetData returns the organizational hierarchy.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	hierarchy, _ := h.data()
	writeJSON(w, http.StatusOK, DataDTO{RegionsByDepartment: hierarchy.RegionsByDepartment})
}

// GetTransactions returns the classified transaction set.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	_, transactions := h.data()
	dtos := make([]TransactionDTO, len(transactions))
	for i, tx := range transactions {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PostTransactions replaces the transaction set. This is the push side
// of the ingestion collaborator; classification happened upstream.
func (h *Handler) PostTransactions(w http.ResponseWriter, r *http.Request) {
	var dtos []TransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	transactions := make([]budget.Transaction, len(dtos))
	for i, dto := range dtos {
		transactions[i] = fromTransactionDTO(dto)
	}

	hierarchy, _ := h.data()
	h.SetData(hierarchy, transactions)
	writeJSON(w, http.StatusOK, map[string]any{"loaded": len(transactions)})
}

// =============================================================================
// HELPERS
// =============================================================================

func transactionsForDepartment(transactions []budget.Transaction, department string) []budget.Transaction {
	var out []budget.Transaction
	for _, tx := range transactions {
		if tx.Department == department {
			out = append(out, tx)
		}
	}
	return out
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

func writeAllocationError(w http.ResponseWriter, err error) {
	var mismatch *budget.AllocationMismatchError
	if errors.As(err, &mismatch) {
		expected, _ := mismatch.Expected.Float64()
		actual, _ := mismatch.Actual.Float64()
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Regional amounts do not sum to the department amount",
			Code:  "allocation_mismatch",
			Details: map[string]float64{
				"expected": expected,
				"actual":   actual,
			},
		})
		return
	}

	switch {
	case errors.Is(err, budget.ErrMissingActor):
		writeError(w, http.StatusBadRequest, "X-User-Name header is required", err)
	case budget.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid allocation request", err)
	case errors.Is(err, budget.ErrConcurrentWriteConflict):
		writeError(w, http.StatusConflict, "Concurrent write conflict, please retry", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to apply allocation", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
