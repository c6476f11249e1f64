package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/clean-dependency-project/isofetch/internal/listing"
)

// VersionPlaceholder marks where the release version goes in a filename
// template.
const VersionPlaceholder = "{version}"

// Matcher recognizes artifact filenames for one template and version,
// accepting an optional ".N" point release right after the version.
type Matcher struct {
	template string
	version  string
	re       *regexp.Regexp
}

// ArtifactCandidate is a listing entry accepted by a Matcher.
type ArtifactCandidate struct {
	Filename     string
	PointRelease int
	Entry        listing.Entry
}

// BuildMatcher substitutes version into template. The template must contain
// the placeholder exactly once.
func BuildMatcher(template, version string) (*Matcher, error) {
	if n := strings.Count(template, VersionPlaceholder); n != 1 {
		return nil, fmt.Errorf("%w: %q has %d placeholders, want 1", ErrInvalidTemplate, template, n)
	}
	if version == "" {
		return nil, fmt.Errorf("%w: empty version for %q", ErrInvalidTemplate, template)
	}

	prefix, suffix, _ := strings.Cut(template, VersionPlaceholder)
	expr := "^" + regexp.QuoteMeta(prefix) + regexp.QuoteMeta(version) +
		`(?:\.(\d+))?` + regexp.QuoteMeta(suffix) + "$"

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile matcher for %q: %w", template, err)
	}

	return &Matcher{template: template, version: version, re: re}, nil
}

// Match reports whether name is an artifact for the matcher's version and
// returns its point release (0 when there is no suffix).
func (m *Matcher) Match(name string) (int, bool) {
	sub := m.re.FindStringSubmatch(name)
	if sub == nil {
		return 0, false
	}
	if sub[1] == "" {
		return 0, true
	}
	point, err := strconv.Atoi(sub[1])
	if err != nil {
		return 0, false
	}
	return point, true
}

// Filename returns the template with the version filled in and no point
// release.
func (m *Matcher) Filename() string {
	return strings.Replace(m.template, VersionPlaceholder, m.version, 1)
}

// Candidates returns every entry the matcher accepts, in listing order.
func (m *Matcher) Candidates(entries []listing.Entry) []ArtifactCandidate {
	var out []ArtifactCandidate
	for _, entry := range entries {
		name := entry.Name()
		if point, ok := m.Match(name); ok {
			out = append(out, ArtifactCandidate{Filename: name, PointRelease: point, Entry: entry})
		}
	}
	return out
}

// SelectBestCandidate returns the matching entry with the highest point
// release. Equal point releases keep the first one in listing order.
func SelectBestCandidate(entries []listing.Entry, m *Matcher) (ArtifactCandidate, error) {
	candidates := m.Candidates(entries)
	if len(candidates) == 0 {
		return ArtifactCandidate{}, fmt.Errorf("no artifact matching %s for release %s: %w", m.template, m.version, ErrNotFound)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.PointRelease > best.PointRelease {
			best = c
		}
	}
	return best, nil
}
