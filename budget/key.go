/*
key.go - BudgetKey construction and parsing

PURPOSE:
  BudgetKeys address department and region allocation records. Several
  key shapes coexist in historical data:

    department                      (bare, legacy)
    department|locationType         (department record)
    department|region|locationType  (region record)

  New keys are always written in the fullest form. Old shapes are never
  rewritten in place; the resolver tolerates them at read time instead.

INVARIANT:
  Keys are opaque strings everywhere else in the system. This file and
  resolver.go are the only code allowed to know about the separator.

SEE ALSO:
  - resolver.go: Consumes SplitKey for fuzzy matching
  - ledger.go: Uses keys verbatim as ledger addresses
*/
package budget

import "strings"

// KeySeparator joins the segments of a BudgetKey.
const KeySeparator = "|"

// BudgetKey is a composite identifier for one allocation record.
type BudgetKey string

// KeyParts is the decomposed form of a BudgetKey. Region and
// LocationType are empty for the legacy shorter shapes.
type KeyParts struct {
	Department   string
	Region       string
	LocationType LocationType
}

// BuildKey produces a key in the fullest valid form:
// department|region|locationType for regions, department|locationType
// for departments. The only failure mode is an empty department.
func BuildKey(department, region string, locationType LocationType) (BudgetKey, error) {
	if strings.TrimSpace(department) == "" {
		return "", &MalformedKeyError{Key: "", Reason: "empty department"}
	}
	if region != "" {
		return BudgetKey(department + KeySeparator + region + KeySeparator + string(locationType)), nil
	}
	return BudgetKey(department + KeySeparator + string(locationType)), nil
}

// SplitKey decomposes a key, tolerating 1, 2, or 3 segments.
// Fails only if the department segment is empty.
func SplitKey(key BudgetKey) (KeyParts, error) {
	segments := strings.Split(string(key), KeySeparator)
	if strings.TrimSpace(segments[0]) == "" {
		return KeyParts{}, &MalformedKeyError{Key: key, Reason: "empty department segment"}
	}

	parts := KeyParts{Department: segments[0]}
	switch len(segments) {
	case 1:
		// Bare legacy key: department only.
	case 2:
		parts.LocationType = LocationType(segments[1])
	default:
		// Three or more segments: treat anything beyond the second as
		// the location type. Keys with embedded separators in names do
		// not occur in practice, but truncating beats failing.
		parts.Region = segments[1]
		parts.LocationType = LocationType(segments[2])
	}
	return parts, nil
}

// IsRegionKey reports whether the key addresses a region record
// (three-segment shape).
func (k BudgetKey) IsRegionKey() bool {
	return strings.Count(string(k), KeySeparator) >= 2
}
