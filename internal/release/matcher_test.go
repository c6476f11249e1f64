package release

import (
	"errors"
	"strings"
	"testing"

	"github.com/clean-dependency-project/isofetch/internal/listing"
)

func TestBuildMatcher_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		template string
		version  string
	}{
		{"no placeholder", "ubuntu-desktop-amd64.iso", "24.04"},
		{"two placeholders", "ubuntu-{version}-{version}.iso", "24.04"},
		{"empty version", "ubuntu-{version}-desktop-amd64.iso", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildMatcher(tt.template, tt.version)
			if !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("BuildMatcher() error = %v, want ErrInvalidTemplate", err)
			}
		})
	}
}

func TestMatcher_Match(t *testing.T) {
	m, err := BuildMatcher("name-{version}-amd64.iso", "24.04")
	if err != nil {
		t.Fatalf("BuildMatcher() unexpected error: %v", err)
	}

	tests := []struct {
		name      string
		wantPoint int
		wantOK    bool
	}{
		{"name-24.04-amd64.iso", 0, true},
		{"name-24.04.3-amd64.iso", 3, true},
		{"name-24.04.1-amd64.iso", 1, true},
		{"name-24.04.12-amd64.iso", 12, true},
		{"name-24.04.3-amd64.iso.asc", 0, false},
		{"othername-24.04-amd64.iso", 0, false},
		{"name-24.04.-amd64.iso", 0, false},
		{"name-24.04.x-amd64.iso", 0, false},
		{"name-24.10-amd64.iso", 0, false},
		{"name-24x04-amd64.iso", 0, false},
		{"name-24.04-amd64xiso", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point, ok := m.Match(tt.name)
			if ok != tt.wantOK || point != tt.wantPoint {
				t.Errorf("Match(%q) = (%d, %v), want (%d, %v)", tt.name, point, ok, tt.wantPoint, tt.wantOK)
			}
		})
	}

	if got := m.Filename(); got != "name-24.04-amd64.iso" {
		t.Errorf("Filename() = %q", got)
	}
}

func TestSelectBestCandidate(t *testing.T) {
	m, err := BuildMatcher("name-{version}-amd64.iso", "24.04")
	if err != nil {
		t.Fatalf("BuildMatcher() unexpected error: %v", err)
	}

	listed := entries(
		"../",
		"name-24.04-amd64.iso",
		"name-24.04.3-amd64.iso",
		"name-24.04.3-amd64.iso.zsync",
		"name-24.04.1-amd64.iso",
		"SHA256SUMS",
	)

	got, err := SelectBestCandidate(listed, m)
	if err != nil {
		t.Fatalf("SelectBestCandidate() unexpected error: %v", err)
	}
	if got.Filename != "name-24.04.3-amd64.iso" || got.PointRelease != 3 {
		t.Errorf("SelectBestCandidate() = %+v, want name-24.04.3-amd64.iso", got)
	}

	if n := len(m.Candidates(listed)); n != 3 {
		t.Errorf("Candidates() returned %d, want 3", n)
	}
}

func TestSelectBestCandidate_TieKeepsFirst(t *testing.T) {
	m, err := BuildMatcher("{version}.iso", "1")
	if err != nil {
		t.Fatalf("BuildMatcher() unexpected error: %v", err)
	}

	listed := []listing.Entry{
		{Text: "first", Href: "1.2.iso"},
		{Text: "older", Href: "1.1.iso"},
		{Text: "second", Href: "./1.2.iso"},
		{Text: "elsewhere", Href: "mirror/1.3.iso"},
	}

	got, err := SelectBestCandidate(listed, m)
	if err != nil {
		t.Fatalf("SelectBestCandidate() unexpected error: %v", err)
	}
	if got.Entry.Text != "first" {
		t.Errorf("SelectBestCandidate() = %+v, want first of the tied entries", got.Entry)
	}
}

func TestSelectBestCandidate_NotFound(t *testing.T) {
	m, err := BuildMatcher("kubuntu-{version}-desktop-amd64.iso", "24.10")
	if err != nil {
		t.Fatalf("BuildMatcher() unexpected error: %v", err)
	}

	for _, listed := range [][]string{nil, {"kubuntu-24.04-desktop-amd64.iso", "SHA256SUMS"}} {
		_, err := SelectBestCandidate(entries(listed...), m)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("SelectBestCandidate() error = %v, want ErrNotFound", err)
		}
		if !strings.Contains(err.Error(), "24.10") || !strings.Contains(err.Error(), "kubuntu-") {
			t.Errorf("error %q does not name the release and template", err)
		}
	}
}

func TestMatcher_QuotesTemplateLiterals(t *testing.T) {
	m, err := BuildMatcher("haos_ova-{version}.qcow2.xz", "14.2")
	if err != nil {
		t.Fatalf("BuildMatcher() unexpected error: %v", err)
	}

	if _, ok := m.Match("haos_ova-14.2.qcow2.xz"); !ok {
		t.Error("Match() rejected exact filename")
	}
	if _, ok := m.Match("haos_ova-14.2Xqcow2.xz"); ok {
		t.Error("Match() treated '.' in template as a wildcard")
	}
	if _, ok := m.Match("haos_ova-14x2.qcow2.xz"); ok {
		t.Error("Match() treated '.' in version as a wildcard")
	}
}
