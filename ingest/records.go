/*
Package ingest parses legacy budget-allocation payloads into records.

PURPOSE:
  The budget table accumulated under two wire shapes over the years.
  The oldest exports are a flat map of key to amount:

    {"marketing|Floor": 50000, "bw": 120000}

  Newer exports carry structured record objects:

    {"records": [
      {"key": "bw|Stuttgart|Floor", "allocated_amount": "25000",
       "location_type": "Floor", "last_updated": "2026-01-15T09:30:00Z"}
    ]}

  Both shapes parse into the same []budget.BudgetRecord. Keys are
  carried through verbatim - normalization to the fullest key form only
  happens on WRITE (through the allocation writer); reads tolerate
  every historical shape via the resolver.

AMOUNT PARSING:
  Amounts arrive as JSON numbers or as strings ("25000", "25.000,50"
  never occurs - exports are machine-written). Both decode through
  decimal to keep precision.

SEE ALSO:
  - budget/resolver.go: Tolerates the key shapes parsed here
  - api/handlers.go: Feeds fetched payloads through this package
*/
package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// WIRE SHAPES
// =============================================================================

// recordJSON is the structured export shape.
type recordJSON struct {
	Key             string          `json:"key"`
	AllocatedAmount json.RawMessage `json:"allocated_amount"`
	LocationType    string          `json:"location_type,omitempty"`
	LastUpdated     string          `json:"last_updated,omitempty"`
}

type recordsEnvelope struct {
	Records []recordJSON `json:"records"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRecords decodes a budget-allocation payload in either historical
// shape into budget records. Records come back sorted by key so
// equivalent payloads produce identical slices.
func ParseRecords(payload []byte) ([]budget.BudgetRecord, error) {
	// Structured shape first: it is self-identifying via "records".
	var envelope recordsEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Records != nil {
		return fromStructured(envelope.Records)
	}

	// Flat map shape.
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, fmt.Errorf("unrecognized budget payload: %w", err)
	}
	return fromFlat(flat)
}

func fromStructured(records []recordJSON) ([]budget.BudgetRecord, error) {
	out := make([]budget.BudgetRecord, 0, len(records))
	for _, r := range records {
		key := budget.BudgetKey(r.Key)
		if _, err := budget.SplitKey(key); err != nil {
			return nil, err
		}

		amount, err := parseAmount(r.AllocatedAmount)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", r.Key, err)
		}

		rec := budget.BudgetRecord{
			Key:             key,
			AllocatedAmount: amount,
			LocationType:    budget.LocationType(r.LocationType),
		}
		if rec.LocationType == "" {
			if parts, err := budget.SplitKey(key); err == nil {
				rec.LocationType = parts.LocationType
			}
		}
		if r.LastUpdated != "" {
			if ts, err := time.Parse(time.RFC3339, r.LastUpdated); err == nil {
				rec.LastUpdated = ts
			}
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func fromFlat(flat map[string]json.RawMessage) ([]budget.BudgetRecord, error) {
	out := make([]budget.BudgetRecord, 0, len(flat))
	for rawKey, rawAmount := range flat {
		key := budget.BudgetKey(rawKey)
		parts, err := budget.SplitKey(key)
		if err != nil {
			return nil, err
		}

		amount, err := parseAmount(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", rawKey, err)
		}

		out = append(out, budget.BudgetRecord{
			Key:             key,
			AllocatedAmount: amount,
			LocationType:    parts.LocationType,
		})
	}
	sortRecords(out)
	return out, nil
}

// parseAmount accepts a JSON number or a numeric string.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(asString)
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %s", string(raw))
	}
	return decimal.NewFromString(asNumber.String())
}

func sortRecords(records []budget.BudgetRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
}
