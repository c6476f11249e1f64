package release

import (
	"fmt"
	"sort"
)

// Probe reports whether a release is usable, e.g. whether a flavor publishes
// an artifact for it. An error aborts the walk.
type Probe func(VersionRecord) (bool, error)

// Preferred is a predicate selecting preferred-channel records.
func Preferred(r VersionRecord) bool {
	return r.Preferred
}

// SortDescending returns a copy of records ordered newest first.
func SortDescending(records []VersionRecord) []VersionRecord {
	sorted := make([]VersionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) > 0
	})
	return sorted
}

// Filter returns the records satisfying pred, preserving order.
func Filter(records []VersionRecord, pred func(VersionRecord) bool) []VersionRecord {
	var out []VersionRecord
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// SelectLatest returns the record with the highest sort key.
func SelectLatest(records []VersionRecord) (VersionRecord, error) {
	if len(records) == 0 {
		return VersionRecord{}, fmt.Errorf("no releases in listing: %w", ErrNotFound)
	}

	latest := records[0]
	for _, r := range records[1:] {
		if r.Compare(latest) > 0 {
			latest = r
		}
	}
	return latest, nil
}

// SelectLatestMatching returns the highest record satisfying pred.
func SelectLatestMatching(records []VersionRecord, pred func(VersionRecord) bool) (VersionRecord, error) {
	matching := Filter(records, pred)
	if len(matching) == 0 {
		return VersionRecord{}, fmt.Errorf("no matching release among %d: %w", len(records), ErrNotFound)
	}
	return SelectLatest(matching)
}

// SelectWithFallback walks candidates in the given order and returns the
// first one the probe accepts. Callers pass candidates newest first and
// restrict them beforehand (for instance to preferred-channel releases) when
// the walk must stay within one class.
func SelectWithFallback(candidates []VersionRecord, probe Probe) (VersionRecord, error) {
	for _, candidate := range candidates {
		ok, err := probe(candidate)
		if err != nil {
			return VersionRecord{}, fmt.Errorf("probe release %s: %w", candidate.Version, err)
		}
		if ok {
			return candidate, nil
		}
	}
	return VersionRecord{}, fmt.Errorf("tried %d releases: %w", len(candidates), ErrNoAvailableRelease)
}
