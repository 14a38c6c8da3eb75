/*
resolver.go - Fuzzy resolution of entity names to budget records

PURPOSE:
  Budget records are keyed by externally supplied names that drift:
  "Marke & Marketing" in the org data vs "marke und marketing|Floor" in
  the budget table. The resolver maps a name (plus optional region and
  location type) to the best-matching record despite that drift.

MATCH TIERS (strict priority order; first hit wins):
  1. Exact qualified:  BuildKey(name, region, locationType) verbatim
  2. Exact bare:       the name alone as a legacy unqualified key
  3. Location-type fallback: name|Floor, then name|HQ, in that order
  4. Case-insensitive substring: a key whose department/region segment
     contains, or is contained by, the name
  5. No match: resolver reports not-found; callers treat the entity's
     allocation as zero, never as an error

  The tier order is a deliberate tie-break, not incidental. Tier 4 has
  its own explicit tie-break: shortest key wins, then lexicographic.
  The match is therefore deterministic regardless of input ordering.

GUARANTEES:
  Pure, read-only, never fails. An empty or partially-loaded record set
  simply yields more not-found results.

SEE ALSO:
  - key.go: Key construction used for tier 1-3 probes
  - rollup.go: The main consumer of resolved records
*/
package budget

import "strings"

// Resolver matches entity names against a snapshot of budget records.
// It holds no state beyond the snapshot it was built from; build a new
// one per request.
type Resolver struct {
	records []BudgetRecord
	byKey   map[BudgetKey]int
}

// NewResolver indexes a record snapshot for resolution. The snapshot
// may be empty or partially loaded.
func NewResolver(records []BudgetRecord) *Resolver {
	byKey := make(map[BudgetKey]int, len(records))
	for i, r := range records {
		// First occurrence wins on duplicate keys in a dirty snapshot.
		if _, ok := byKey[r.Key]; !ok {
			byKey[r.Key] = i
		}
	}
	return &Resolver{records: records, byKey: byKey}
}

// Resolve returns the best-matching record for a name, or ok=false when
// nothing matches. Region qualifies tier-1 probing and may be empty;
// when set, resolution runs against the region's record, never falling
// back to the containing department's own record.
func (r *Resolver) Resolve(name, region string, locationType LocationType) (BudgetRecord, bool) {
	if region != "" {
		return r.ResolveRegion(name, region, locationType)
	}
	if strings.TrimSpace(name) == "" {
		return BudgetRecord{}, false
	}

	// Tier 1: exact qualified match.
	if locationType != "" {
		if rec, ok := r.lookup(BudgetKey(name + KeySeparator + string(locationType))); ok {
			return rec, true
		}
	}

	// Tier 2: exact bare match (legacy unqualified keys).
	if rec, ok := r.lookup(BudgetKey(name)); ok {
		return rec, true
	}

	// Tier 3: location-type fallback, Floor before HQ. Fixed order.
	for _, lt := range []LocationType{LocationFloor, LocationHQ} {
		if rec, ok := r.lookup(BudgetKey(name + KeySeparator + string(lt))); ok {
			return rec, true
		}
	}

	// Tier 4: case-insensitive substring scan.
	return r.substringMatch(name, anySegment)
}

// ResolveRegion resolves a region record under a department. The same
// tiers apply, probed with region-shaped keys. A miss here is a miss:
// the department's own record is never substituted, since callers
// aggregating regional rollups would double-count it.
func (r *Resolver) ResolveRegion(department, region string, locationType LocationType) (BudgetRecord, bool) {
	if strings.TrimSpace(region) == "" {
		return BudgetRecord{}, false
	}

	// Tier 1: exact qualified match on the full three-segment key.
	if locationType != "" {
		if key, err := BuildKey(department, region, locationType); err == nil {
			if rec, ok := r.lookup(key); ok {
				return rec, true
			}
		}
	}

	// Tier 2: bare region name (legacy unqualified keys).
	if rec, ok := r.lookup(BudgetKey(region)); ok {
		return rec, true
	}

	// Tier 3: remaining location types, Floor before HQ, qualified form
	// first, then the two-segment legacy form.
	for _, lt := range []LocationType{LocationFloor, LocationHQ} {
		if department != "" {
			if key, err := BuildKey(department, region, lt); err == nil {
				if rec, ok := r.lookup(key); ok {
					return rec, true
				}
			}
		}
		if rec, ok := r.lookup(BudgetKey(region + KeySeparator + string(lt))); ok {
			return rec, true
		}
	}

	// Tier 4: substring scan restricted to region segments.
	return r.substringMatch(region, regionSegmentOnly)
}

func (r *Resolver) lookup(key BudgetKey) (BudgetRecord, bool) {
	if i, ok := r.byKey[key]; ok {
		return r.records[i], true
	}
	return BudgetRecord{}, false
}

type segmentScope int

const (
	anySegment segmentScope = iota
	regionSegmentOnly
)

// substringMatch scans every key whose department or region segment
// contains, or is contained by, the name (case-insensitive).
//
// Tie-break when several keys match: shortest key wins, then
// lexicographic. Shorter keys are less qualified and therefore closer
// to the bare name being probed.
func (r *Resolver) substringMatch(name string, scope segmentScope) (BudgetRecord, bool) {
	needle := normalizeName(name)

	best := -1
	for i, rec := range r.records {
		parts, err := SplitKey(rec.Key)
		if err != nil {
			continue // unparseable keys never match
		}
		match := segmentMatches(parts.Region, needle)
		if scope == anySegment {
			match = match || segmentMatches(parts.Department, needle)
		}
		if !match {
			continue
		}
		if best < 0 || keyLess(rec.Key, r.records[best].Key) {
			best = i
		}
	}
	if best < 0 {
		return BudgetRecord{}, false
	}
	return r.records[best], true
}

// normalizeName lowercases and folds the spellings that drift between
// the org data and hand-entered budget keys: "&" vs the written-out
// "und", and uneven whitespace.
func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " und ")
	return strings.Join(strings.Fields(s), " ")
}

func segmentMatches(segment, needle string) bool {
	if segment == "" {
		return false
	}
	s := normalizeName(segment)
	return strings.Contains(s, needle) || strings.Contains(needle, s)
}

func keyLess(a, b BudgetKey) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
