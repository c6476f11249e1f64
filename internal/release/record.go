// Package release turns directory listing entries into version records,
// selects releases from them and matches artifact filenames against
// version templates.
package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/clean-dependency-project/isofetch/internal/listing"
)

// Named capture groups understood by Extract.
const (
	GroupVersion = "version"
	GroupMajor   = "major"
	GroupMinor   = "minor"
	GroupPatch   = "patch"
)

// VersionRecord is one release recognized in a listing.
type VersionRecord struct {
	Version   string
	Major     int
	Minor     int
	Patch     int
	Preferred bool // e.g. LTS

	// SortKey orders records by (Major, Minor, Patch).
	SortKey *semver.Version

	// Entry is the listing entry the record came from.
	Entry listing.Entry
}

// NewRecord builds a record with its sort key set.
func NewRecord(version string, major, minor, patch int) VersionRecord {
	return VersionRecord{
		Version: version,
		Major:   major,
		Minor:   minor,
		Patch:   patch,
		SortKey: semver.New(uint64(major), uint64(minor), uint64(patch), "", ""),
	}
}

// Compare returns -1, 0 or 1 as r sorts before, equal to or after other.
func (r VersionRecord) Compare(other VersionRecord) int {
	if r.SortKey != nil && other.SortKey != nil {
		return r.SortKey.Compare(other.SortKey)
	}
	for _, d := range [...]int{r.Major - other.Major, r.Minor - other.Minor, r.Patch - other.Patch} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

func (r VersionRecord) String() string {
	return r.Version
}

// Recognizer decides which listing entries are releases.
//
// Accept, when set, is a cheap test on the entry name (prefix, suffix,
// required tokens). Pattern, when set, must match the entire entry name; its
// named groups major, minor, patch and version fill the record. Groups that
// are absent or did not participate are left at zero, and the version
// defaults to the entry name.
type Recognizer struct {
	Accept  func(name string) bool
	Pattern *regexp.Regexp
}

// Classifier marks records that belong to the preferred channel.
type Classifier func(major, minor int) bool

// Extract returns one record per recognized entry, in listing order.
// Unrecognized entries are skipped. Entries whose version repeats an earlier
// one are dropped.
func Extract(entries []listing.Entry, rec Recognizer, classify Classifier) ([]VersionRecord, error) {
	var (
		records []VersionRecord
		seen    = make(map[string]bool)
		pattern *regexp.Regexp
	)
	if rec.Pattern != nil {
		pattern = regexp.MustCompile(`^(?:` + rec.Pattern.String() + `)$`)
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == "" {
			continue
		}
		if rec.Accept != nil && !rec.Accept(name) {
			continue
		}

		record, ok, err := parseName(name, pattern)
		if err != nil {
			return nil, err
		}
		if !ok || seen[record.Version] {
			continue
		}
		seen[record.Version] = true

		record.Entry = entry
		if classify != nil {
			record.Preferred = classify(record.Major, record.Minor)
		}
		records = append(records, record)
	}

	return records, nil
}

func parseName(name string, pattern *regexp.Regexp) (VersionRecord, bool, error) {
	if pattern == nil {
		return NewRecord(name, 0, 0, 0), true, nil
	}

	idx := pattern.FindStringSubmatchIndex(name)
	if idx == nil {
		return VersionRecord{}, false, nil
	}

	version := name
	var nums [3]int
	for i, group := range pattern.SubexpNames() {
		if group == "" || idx[2*i] < 0 {
			continue
		}
		value := name[idx[2*i]:idx[2*i+1]]

		var slot *int
		switch group {
		case GroupVersion:
			version = value
			continue
		case GroupMajor:
			slot = &nums[0]
		case GroupMinor:
			slot = &nums[1]
		case GroupPatch:
			slot = &nums[2]
		default:
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return VersionRecord{}, false, fmt.Errorf("%w: %q group %s=%q", ErrMalformedRecord, name, group, value)
		}
		*slot = n
	}

	return NewRecord(version, nums[0], nums[1], nums[2]), true, nil
}

// HasPrefix returns an Accept predicate for names starting with prefix.
func HasPrefix(prefix string) func(string) bool {
	return func(name string) bool { return strings.HasPrefix(name, prefix) }
}

// HasSuffix returns an Accept predicate for names ending with suffix.
func HasSuffix(suffix string) func(string) bool {
	return func(name string) bool { return strings.HasSuffix(name, suffix) }
}

// ContainsAll returns an Accept predicate for names containing every token.
func ContainsAll(tokens ...string) func(string) bool {
	return func(name string) bool {
		for _, token := range tokens {
			if !strings.Contains(name, token) {
				return false
			}
		}
		return true
	}
}

// All combines predicates; the result accepts a name only if each does.
func All(preds ...func(string) bool) func(string) bool {
	return func(name string) bool {
		for _, pred := range preds {
			if !pred(name) {
				return false
			}
		}
		return true
	}
}

// FirstMatching returns the first entry whose name is accepted, without
// ranking. It is meant for listings that publish a single qualifying file,
// so entries pointing into other directories are never accepted.
func FirstMatching(entries []listing.Entry, accept func(string) bool) (listing.Entry, error) {
	for _, entry := range entries {
		if name := entry.Name(); name != "" && !strings.Contains(name, "/") && accept(name) {
			return entry, nil
		}
	}
	return listing.Entry{}, ErrNotFound
}
