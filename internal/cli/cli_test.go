package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clean-dependency-project/isofetch/internal/config"
	"github.com/clean-dependency-project/isofetch/internal/distro"
	"github.com/clean-dependency-project/isofetch/internal/jobs"
	"github.com/clean-dependency-project/isofetch/internal/storage"
)

// fakeStrategy resolves "<base>/<name>/<args joined by ->.iso" and rejects
// any job whose last argument is not "latest".
type fakeStrategy struct {
	name string
	base string
}

func (f fakeStrategy) Name() string      { return f.name }
func (f fakeStrategy) Usage() string     { return f.name + " <variant> latest" }
func (f fakeStrategy) Options() []string { return []string{"desktop", "server"} }

func (f fakeStrategy) Resolve(_ context.Context, args []string) ([]string, error) {
	if args[len(args)-1] != "latest" {
		return nil, &distro.ArgumentError{Distribution: f.name, Reason: "channel must be latest", Usage: f.Usage()}
	}
	return []string{f.base + "/" + f.name + "/" + strings.Join(args, "-") + ".iso"}, nil
}

func fakeRegistry(base string) RegistryFactory {
	return func(*config.Config, *slog.Logger, *slog.Logger) (*distro.Registry, error) {
		r := distro.NewRegistry()
		if err := r.Register(fakeStrategy{name: "fake", base: base}); err != nil {
			return nil, err
		}
		return r, nil
	}
}

// writeTestConfig writes a config whose database lives in a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Config.Storage.DatabasePath = filepath.Join(dir, "history.db")
	cfg.Config.OutputDir = filepath.Join(dir, "isos")
	path := filepath.Join(dir, "isofetch.yaml")
	if err := config.SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() unexpected error: %v", err)
	}
	return path
}

func writeJobs(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "distros.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write job list: %v", err)
	}
	return path
}

func runApp(t *testing.T, factory RegistryFactory, args ...string) (string, error) {
	t.Helper()
	app := newApp(factory)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"isofetch", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app.Name != "isofetch" {
		t.Errorf("app.Name = %q", app.Name)
	}

	want := map[string]bool{"resolve": false, "fetch": false, "list": false, "history": false}
	for _, cmd := range app.Commands {
		want[cmd.Name] = true
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %s not registered", name)
		}
	}
}

func TestResolveCommand_InlineJob(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "--no-history", "resolve", "fake", "desktop", "latest")
	if err != nil {
		t.Fatalf("resolve unexpected error: %v", err)
	}
	if out != "https://example.test/fake/desktop-latest.iso\n" {
		t.Errorf("resolve output = %q", out)
	}
}

func TestResolveCommand_FailedJobsDoNotStopBatch(t *testing.T) {
	cfg := writeTestConfig(t)
	jobsFile := writeJobs(t, "# jobs\nfake desktop latest\nonlyonetoken\nfake server lts\nfake server latest\n")

	out, err := runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "--no-history", "resolve", "--jobs", jobsFile)
	if !errors.Is(err, ErrJobsFailed) {
		t.Fatalf("resolve error = %v, want ErrJobsFailed", err)
	}
	want := "https://example.test/fake/desktop-latest.iso\nhttps://example.test/fake/server-latest.iso\n"
	if out != want {
		t.Errorf("resolve output = %q, want %q", out, want)
	}
}

func TestResolveCommand_JSON(t *testing.T) {
	cfg := writeTestConfig(t)
	jobsFile := writeJobs(t, "fake desktop latest\nunknown thing latest\n")

	out, err := runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "--no-history", "resolve", "--jobs", jobsFile, "--output", "json")
	if !errors.Is(err, ErrJobsFailed) {
		t.Fatalf("resolve error = %v, want ErrJobsFailed", err)
	}

	var summary ResolveSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if summary.Total != 2 || summary.Successful != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if !strings.HasPrefix(summary.Results[1].Error, "unknown: ") {
		t.Errorf("failure is not tagged with its distribution: %q", summary.Results[1].Error)
	}
}

func TestResolveCommand_OnlyFilter(t *testing.T) {
	cfg := writeTestConfig(t)
	jobsFile := writeJobs(t, "fake desktop latest\nfake server latest\n")

	out, err := runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "--no-history", "resolve", "--jobs", jobsFile, "--only", "* server *")
	if err != nil {
		t.Fatalf("resolve unexpected error: %v", err)
	}
	if out != "https://example.test/fake/server-latest.iso\n" {
		t.Errorf("resolve output = %q", out)
	}
}

func TestHistoryCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "history")
	if err != nil {
		t.Fatalf("history unexpected error: %v", err)
	}
	if !strings.Contains(out, "no resolutions recorded") {
		t.Errorf("empty history output = %q", out)
	}

	if _, err := runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "resolve", "fake", "desktop", "latest"); err != nil {
		t.Fatalf("resolve unexpected error: %v", err)
	}

	out, err = runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "history", "--output", "json")
	if err != nil {
		t.Fatalf("history unexpected error: %v", err)
	}
	var rows []storage.Resolution
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].Distribution != "fake" || rows[0].Status != storage.StatusSuccess {
		t.Fatalf("history rows = %+v", rows)
	}

	out, err = runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "history", "--run", rows[0].RunID)
	if err != nil {
		t.Fatalf("history --run unexpected error: %v", err)
	}
	if !strings.Contains(out, "https://example.test/fake/desktop-latest.iso") {
		t.Errorf("history text output = %q", out)
	}

	if _, err := runApp(t, fakeRegistry(""), "-c", cfg, "--no-history", "history"); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("history with --no-history error = %v, want ErrHistoryDisabled", err)
	}
}

func TestHistoryCommand_Views(t *testing.T) {
	cfg := writeTestConfig(t)
	jobsFile := writeJobs(t, "fake desktop latest\nfake server lts\n")

	if _, err := runApp(t, fakeRegistry("https://example.test"), "-c", cfg, "resolve", "--jobs", jobsFile); !errors.Is(err, ErrJobsFailed) {
		t.Fatalf("resolve error = %v, want ErrJobsFailed", err)
	}

	out, err := runApp(t, fakeRegistry(""), "-c", cfg, "history", "--stats")
	if err != nil {
		t.Fatalf("history --stats unexpected error: %v", err)
	}
	for _, want := range []string{"total resolutions: 2", "total downloads:   0", "fake", "success", "failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output %q missing %q", out, want)
		}
	}

	out, err = runApp(t, fakeRegistry(""), "-c", cfg, "history", "--stats", "--output", "json")
	if err != nil {
		t.Fatalf("history --stats unexpected error: %v", err)
	}
	var stats struct {
		TotalResolutions int64                 `json:"total_resolutions"`
		ByStatus         []storage.StatusCount `json:"by_status"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if stats.TotalResolutions != 2 || len(stats.ByStatus) != 2 {
		t.Errorf("stats = %+v, want 2 resolutions in 2 statuses", stats)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "by distribution", args: []string{"--distribution", "fake"}, want: 2},
		{name: "by distribution with limit", args: []string{"--distribution", "fake", "--limit", "1"}, want: 1},
		{name: "unknown distribution", args: []string{"--distribution", "other"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-c", cfg, "history", "--output", "json"}, tt.args...)
			out, err := runApp(t, fakeRegistry(""), args...)
			if err != nil {
				t.Fatalf("history unexpected error: %v", err)
			}
			var rows []storage.Resolution
			if err := json.Unmarshal([]byte(out), &rows); err != nil {
				t.Fatalf("history output is not JSON: %v\n%s", err, out)
			}
			if len(rows) != tt.want {
				t.Errorf("history returned %d rows, want %d", len(rows), tt.want)
			}
		})
	}

	exportPath := filepath.Join(t.TempDir(), "export.json")
	out, err = runApp(t, fakeRegistry(""), "-c", cfg, "history", "--export", exportPath, "--limit", "0")
	if err != nil {
		t.Fatalf("history --export unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != exportPath {
		t.Errorf("export output = %q, want %q", out, exportPath)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	var exported []storage.Resolution
	if err := json.Unmarshal(data, &exported); err != nil || len(exported) != 2 {
		t.Errorf("export = %s (err %v), want 2 resolutions", data, err)
	}
}

// The standard logger must keep its writer so main can report errors that
// are never logged through slog.
func TestApp_KeepsStandardLogger(t *testing.T) {
	cfg := writeTestConfig(t)

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	_, err := runApp(t, fakeRegistry(""), "-c", cfg, "--no-history", "history")
	if !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("history error = %v, want ErrHistoryDisabled", err)
	}
	if log.Writer() != io.Writer(&buf) {
		t.Fatal("running the app replaced the standard logger output")
	}
	log.Print(err)
	if !strings.Contains(buf.String(), "history is disabled") {
		t.Errorf("standard logger output = %q, want the error", buf.String())
	}
}

func TestListCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := runApp(t, fakeRegistry(""), "-c", cfg, "list")
	if err != nil {
		t.Fatalf("list unexpected error: %v", err)
	}
	if !strings.Contains(out, "Fake\n  usage:   fake <variant> latest\n  options: desktop, server\n") {
		t.Errorf("list output = %q", out)
	}

	out, err = runApp(t, fakeRegistry(""), "-c", cfg, "list", "--output", "json")
	if err != nil {
		t.Fatalf("list unexpected error: %v", err)
	}
	var infos []DistributionInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("list output is not JSON: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "fake" {
		t.Errorf("list = %+v", infos)
	}
}

func TestFetchCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "image for %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	cfg := writeTestConfig(t)
	outDir := filepath.Join(t.TempDir(), "isos")

	out, err := runApp(t, fakeRegistry(srv.URL), "-c", cfg, "fetch", "--output-dir", outDir, "fake", "server", "latest")
	if err != nil {
		t.Fatalf("fetch unexpected error: %v", err)
	}

	path := filepath.Join(outDir, "server-latest.iso")
	if strings.TrimSpace(out) != path {
		t.Errorf("fetch output = %q, want %q", out, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(data) != "image for /fake/server-latest.iso" {
		t.Errorf("downloaded content = %q", data)
	}

	// second run finds the recorded download and skips it
	out, err = runApp(t, fakeRegistry(srv.URL), "-c", cfg, "fetch", "--output-dir", outDir, "--output", "json", "fake", "server", "latest")
	if err != nil {
		t.Fatalf("second fetch unexpected error: %v", err)
	}
	var summary FetchSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("fetch output is not JSON: %v", err)
	}
	if len(summary.Downloads) != 1 || !summary.Downloads[0].Skipped {
		t.Errorf("second fetch downloads = %+v, want one skipped", summary.Downloads)
	}

	out, err = runApp(t, fakeRegistry(srv.URL), "-c", cfg, "history", "--downloads", "--output", "json")
	if err != nil {
		t.Fatalf("history --downloads unexpected error: %v", err)
	}
	var downloads []storage.Download
	if err := json.Unmarshal([]byte(out), &downloads); err != nil {
		t.Fatalf("downloads output is not JSON: %v\n%s", err, out)
	}
	if len(downloads) != 1 || downloads[0].LocalPath != path || downloads[0].Status != storage.StatusSuccess {
		t.Errorf("downloads = %+v", downloads)
	}

	out, err = runApp(t, fakeRegistry(srv.URL), "-c", cfg, "history", "--url", srv.URL+"/fake/server-latest.iso")
	if err != nil {
		t.Fatalf("history --url unexpected error: %v", err)
	}
	if !strings.Contains(out, path) || !strings.Contains(out, "success") {
		t.Errorf("history --url output = %q", out)
	}

	out, err = runApp(t, fakeRegistry(srv.URL), "-c", cfg, "history", "--downloads", "--distribution", "other")
	if err != nil {
		t.Fatalf("history --downloads unexpected error: %v", err)
	}
	if !strings.Contains(out, "no downloads recorded") {
		t.Errorf("history --downloads output = %q", out)
	}

	if _, err := runApp(t, fakeRegistry(srv.URL), "-c", cfg, "history", "--url", srv.URL+"/never.iso"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("history --url error = %v, want storage.ErrNotFound", err)
	}
}

// --concurrency bounds the downloads as well as the resolutions.
func TestFetchCommand_ConcurrencyFlag(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		fmt.Fprintf(w, "image for %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	cfg := writeTestConfig(t)
	jobsFile := writeJobs(t, "fake a latest\nfake b latest\nfake c latest\n")
	outDir := filepath.Join(t.TempDir(), "isos")

	if _, err := runApp(t, fakeRegistry(srv.URL), "-c", cfg, "--no-history", "fetch",
		"--jobs", jobsFile, "--concurrency", "1", "--output-dir", outDir); err != nil {
		t.Fatalf("fetch unexpected error: %v", err)
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent downloads = %d, want 1", p)
	}
	for _, name := range []string{"a-latest.iso", "b-latest.iso", "c-latest.iso"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing download %s: %v", name, err)
		}
	}
}

func TestApp_Errors(t *testing.T) {
	cfg := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"invalid log format", []string{"--log-format", "xml", "-c", cfg, "list"}},
		{"missing explicit config", []string{"-c", filepath.Join(t.TempDir(), "missing.yaml"), "list"}},
		{"malformed inline job", []string{"-c", cfg, "--no-history", "resolve", "fake"}},
		{"missing jobs file", []string{"-c", cfg, "--no-history", "resolve", "--jobs", filepath.Join(t.TempDir(), "none.txt")}},
		{"invalid only glob", []string{"-c", cfg, "--no-history", "resolve", "--only", "fake[", "fake", "a", "latest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runApp(t, fakeRegistry(""), tt.args...); err == nil {
				t.Errorf("expected error for %v, got nil", tt.args)
			}
		})
	}
}

func TestWriteResolveSummary_Text(t *testing.T) {
	summary := jobs.Summary{
		Results: []jobs.Result{
			{Status: storage.StatusSuccess, URLs: []string{"https://a.test/1.iso", "https://a.test/2.iso"}},
			{Status: storage.StatusFailed, Err: errors.New("boom")},
		},
	}

	var buf bytes.Buffer
	if err := writeResolveSummary(&buf, "text", summary); err != nil {
		t.Fatalf("writeResolveSummary() unexpected error: %v", err)
	}
	if buf.String() != "https://a.test/1.iso\nhttps://a.test/2.iso\n" {
		t.Errorf("output = %q", buf.String())
	}
}
