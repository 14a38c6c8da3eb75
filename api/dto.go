/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Amounts cross
  the boundary as float64 for JSON friendliness; everything inside the
  engine stays decimal.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
  - budget/: The domain types these mirror
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BudgetRecordDTO represents one current allocation record.
type BudgetRecordDTO struct {
	Key             string  `json:"key"`
	AllocatedAmount float64 `json:"allocated_amount"`
	LocationType    string  `json:"location_type,omitempty"`
	LastUpdated     string  `json:"last_updated,omitempty"`
}

// SnapshotDTO is the GET /api/budget-allocation response.
type SnapshotDTO struct {
	Departments map[string]BudgetRecordDTO `json:"departments"`
	Regions     map[string]BudgetRecordDTO `json:"regions"`
}

// AllocationRequestDTO is the POST /api/budget-allocation body. Actor
// and reason arrive via the X-User-Name / X-Change-Reason headers, not
// the body.
type AllocationRequestDTO struct {
	Department             string             `json:"department"`
	LocationType           string             `json:"location_type"`
	DepartmentAmount       float64            `json:"department_amount"`
	RegionalAmounts        map[string]float64 `json:"regional_amounts,omitempty"`
	AllowPartialAllocation bool               `json:"allow_partial_allocation,omitempty"`
}

// AllocationResultDTO confirms a successful write.
type AllocationResultDTO struct {
	Departments  map[string]BudgetRecordDTO `json:"departments"`
	Regions      map[string]BudgetRecordDTO `json:"regions"`
	ChangeID     string                     `json:"changeId"`
	ChangeIDs    []string                   `json:"change_ids"`
	AuditEntries int                        `json:"auditEntries"`
	UpdatedBy    string                     `json:"updatedBy"`
}

// AuditEntryDTO represents one immutable allocation change.
type AuditEntryDTO struct {
	ChangeID     string  `json:"change_id"`
	GroupID      string  `json:"group_id"`
	EntityKey    string  `json:"entity_key"`
	EntityType   string  `json:"entity_type"`
	EntityName   string  `json:"entity_name"`
	OldValue     float64 `json:"old_value"`
	NewValue     float64 `json:"new_value"`
	ChangeAmount float64 `json:"change_amount"`
	UserName     string  `json:"user_name"`
	UserID       string  `json:"user_id,omitempty"`
	UserIP       string  `json:"user_ip,omitempty"`
	ChangeReason string  `json:"change_reason,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// SummaryDTO is the GET /api/budget-summary/{key} response.
type SummaryDTO struct {
	CurrentBudget    *BudgetRecordDTO `json:"currentBudget"`
	RecentChanges    []AuditEntryDTO  `json:"recentChanges"`
	TotalChangeCount int              `json:"total_change_count"`
}

// HistoryDTO is the GET /api/budget-history response.
type HistoryDTO struct {
	Entries []AuditEntryDTO `json:"entries"`
}

// RollupDTO represents derived usage figures for one entity.
type RollupDTO struct {
	Allocated       float64 `json:"allocated"`
	Booked          float64 `json:"booked"`
	Reserved        float64 `json:"reserved"`
	Total           float64 `json:"total"`
	Remaining       float64 `json:"remaining"`
	UsagePercentage float64 `json:"usage_percentage"`
	Status          string  `json:"status"`
}

// RegionRollupDTO pairs a region with its rollup.
type RegionRollupDTO struct {
	Region string    `json:"region"`
	Rollup RollupDTO `json:"rollup"`
}

// DepartmentRollupDTO is the GET /api/rollups/{department} response.
type DepartmentRollupDTO struct {
	Department  string            `json:"department"`
	Rollup      RollupDTO         `json:"rollup"`
	Regions     []RegionRollupDTO `json:"regions,omitempty"`
	FromRegions bool              `json:"from_regions"`
}

// TransactionDTO represents one classified transaction.
type TransactionDTO struct {
	Department      string  `json:"department"`
	Region          string  `json:"region,omitempty"`
	District        string  `json:"district,omitempty"`
	Category        string  `json:"category"`
	Amount          float64 `json:"amount,omitempty"`
	ActualAmount    float64 `json:"actual_amount,omitempty"`
	EstimatedAmount float64 `json:"estimated_amount,omitempty"`
}

// DataDTO is the GET /api/data response: the organizational hierarchy.
type DataDTO struct {
	RegionsByDepartment map[string][]string `json:"regions_by_department"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRecordDTO(rec budget.BudgetRecord) BudgetRecordDTO {
	allocated, _ := rec.AllocatedAmount.Float64()
	dto := BudgetRecordDTO{
		Key:             string(rec.Key),
		AllocatedAmount: allocated,
		LocationType:    string(rec.LocationType),
	}
	if !rec.LastUpdated.IsZero() {
		dto.LastUpdated = rec.LastUpdated.Format(time.RFC3339)
	}
	return dto
}

func toRecordDTOs(records map[budget.BudgetKey]budget.BudgetRecord) map[string]BudgetRecordDTO {
	dtos := make(map[string]BudgetRecordDTO, len(records))
	for key, rec := range records {
		dtos[string(key)] = toRecordDTO(rec)
	}
	return dtos
}

func toSnapshotDTO(snap budget.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		Departments: toRecordDTOs(snap.Departments),
		Regions:     toRecordDTOs(snap.Regions),
	}
}

func toAuditEntryDTO(e budget.AuditEntry) AuditEntryDTO {
	oldValue, _ := e.OldValue.Float64()
	newValue, _ := e.NewValue.Float64()
	changeAmount, _ := e.ChangeAmount.Float64()
	return AuditEntryDTO{
		ChangeID:     e.ChangeID,
		GroupID:      e.GroupID,
		EntityKey:    string(e.EntityKey),
		EntityType:   string(e.EntityType),
		EntityName:   e.EntityName,
		OldValue:     oldValue,
		NewValue:     newValue,
		ChangeAmount: changeAmount,
		UserName:     e.UserName,
		UserID:       e.UserID,
		UserIP:       e.UserIP,
		ChangeReason: e.ChangeReason,
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
	}
}

func toAuditEntryDTOs(entries []budget.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	return dtos
}

func toRollupDTO(r budget.Rollup) RollupDTO {
	allocated, _ := r.Allocated.Float64()
	booked, _ := r.Booked.Float64()
	reserved, _ := r.Reserved.Float64()
	total, _ := r.Total.Float64()
	remaining, _ := r.Remaining.Float64()
	usage, _ := r.UsagePercentage.Float64()
	return RollupDTO{
		Allocated:       allocated,
		Booked:          booked,
		Reserved:        reserved,
		Total:           total,
		Remaining:       remaining,
		UsagePercentage: usage,
		Status:          string(r.Status()),
	}
}

func fromTransactionDTO(dto TransactionDTO) budget.Transaction {
	return budget.Transaction{
		Department:      dto.Department,
		Region:          dto.Region,
		District:        dto.District,
		Category:        budget.Category(dto.Category),
		Amount:          decimal.NewFromFloat(dto.Amount),
		ActualAmount:    decimal.NewFromFloat(dto.ActualAmount),
		EstimatedAmount: decimal.NewFromFloat(dto.EstimatedAmount),
	}
}

func toTransactionDTO(tx budget.Transaction) TransactionDTO {
	amount, _ := tx.Amount.Float64()
	actual, _ := tx.ActualAmount.Float64()
	estimated, _ := tx.EstimatedAmount.Float64()
	return TransactionDTO{
		Department:      tx.Department,
		Region:          tx.Region,
		District:        tx.District,
		Category:        string(tx.Category),
		Amount:          amount,
		ActualAmount:    actual,
		EstimatedAmount: estimated,
	}
}
