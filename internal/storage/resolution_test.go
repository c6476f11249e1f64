package storage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func seedResolutions(t *testing.T, db *DB) {
	t.Helper()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []struct {
		run          string
		line         int
		distribution string
		urls         []string
		status       string
		err          string
		at           time.Time
	}{
		{"run-a", 1, "debian", []string{"https://example.test/debian-13.1.0-amd64-netinst.iso"}, StatusSuccess, "", base},
		{"run-a", 3, "ubuntu", nil, StatusFailed, "ubuntu: lubuntu desktop lts: no available release", base},
		{"run-a", 2, "fedora", []string{"https://example.test/Fedora-Server-dvd-x86_64-42-1.1.iso"}, StatusSuccess, "", base},
		{"run-b", 1, "debian", []string{"https://example.test/debian-13.2.0-amd64-netinst.iso"}, StatusSuccess, "", base.Add(time.Hour)},
	}

	for _, row := range rows {
		r := &Resolution{
			RunID:        row.run,
			Line:         row.line,
			Distribution: row.distribution,
			Args:         "x latest",
			Status:       row.status,
			ErrorMessage: row.err,
			ResolvedAt:   row.at,
		}
		if err := r.SetURLs(row.urls); err != nil {
			t.Fatalf("SetURLs() unexpected error: %v", err)
		}
		if err := db.RecordResolution(r); err != nil {
			t.Fatalf("RecordResolution() unexpected error: %v", err)
		}
	}
}

func TestRecordResolution_Nil(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordResolution(nil); !errors.Is(err, ErrNilResolution) {
		t.Errorf("RecordResolution(nil) error = %v, want ErrNilResolution", err)
	}
}

func TestListResolutions(t *testing.T) {
	db := newTestDB(t)
	seedResolutions(t, db)

	all, err := db.ListResolutions(0)
	if err != nil {
		t.Fatalf("ListResolutions() unexpected error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("ListResolutions(0) = %d rows, want 4", len(all))
	}
	if all[0].RunID != "run-b" {
		t.Errorf("ListResolutions()[0].RunID = %q, want newest run first", all[0].RunID)
	}

	limited, err := db.ListResolutions(2)
	if err != nil {
		t.Fatalf("ListResolutions(2) unexpected error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListResolutions(2) = %d rows, want 2", len(limited))
	}
}

func TestListResolutionsByRun(t *testing.T) {
	db := newTestDB(t)
	seedResolutions(t, db)

	got, err := db.ListResolutionsByRun("run-a")
	if err != nil {
		t.Fatalf("ListResolutionsByRun() unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListResolutionsByRun() = %d rows, want 3", len(got))
	}
	for i, want := range []int{1, 2, 3} {
		if got[i].Line != want {
			t.Errorf("row %d line = %d, want %d", i, got[i].Line, want)
		}
	}

	if _, err := db.ListResolutionsByRun(""); err == nil {
		t.Error("ListResolutionsByRun(\"\") expected error, got nil")
	}
}

func TestListResolutionsByDistribution(t *testing.T) {
	db := newTestDB(t)
	seedResolutions(t, db)

	got, err := db.ListResolutionsByDistribution("debian")
	if err != nil {
		t.Fatalf("ListResolutionsByDistribution() unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListResolutionsByDistribution(debian) = %d rows, want 2", len(got))
	}
}

func TestResolutionURLs(t *testing.T) {
	var r Resolution

	urls, err := r.GetURLs()
	if err != nil || urls != nil {
		t.Errorf("GetURLs() on empty column = (%v, %v), want (nil, nil)", urls, err)
	}

	if err := r.SetURLs(nil); err != nil {
		t.Fatalf("SetURLs(nil) unexpected error: %v", err)
	}
	if r.URLs != "[]" {
		t.Errorf("SetURLs(nil) stored %q, want []", r.URLs)
	}

	want := []string{"https://a.test/1.iso", "https://a.test/2.iso"}
	if err := r.SetURLs(want); err != nil {
		t.Fatalf("SetURLs() unexpected error: %v", err)
	}
	got, err := r.GetURLs()
	if err != nil {
		t.Fatalf("GetURLs() unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("GetURLs() = %v, want %v", got, want)
	}
}

func TestExportResolutionsJSON(t *testing.T) {
	db := newTestDB(t)

	data, err := db.ExportResolutionsJSON(10)
	if err != nil {
		t.Fatalf("ExportResolutionsJSON() unexpected error: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("ExportResolutionsJSON() on empty db = %s, want []", data)
	}

	seedResolutions(t, db)
	data, err = db.ExportResolutionsJSON(10)
	if err != nil {
		t.Fatalf("ExportResolutionsJSON() unexpected error: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("exported JSON does not decode: %v", err)
	}
	if len(decoded) != 4 {
		t.Errorf("exported %d resolutions, want 4", len(decoded))
	}
	if _, ok := decoded[0]["run_id"]; !ok {
		t.Errorf("exported resolution missing run_id: %v", decoded[0])
	}
}
