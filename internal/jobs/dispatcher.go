package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clean-dependency-project/isofetch/internal/distro"
	"github.com/clean-dependency-project/isofetch/internal/storage"
)

// DefaultConcurrency is the number of jobs resolved at once when no limit is
// configured.
const DefaultConcurrency = 4

// Resolver looks up a strategy by distribution name.
type Resolver interface {
	Get(name string) (distro.Strategy, error)
}

// Recorder persists the outcome of each job.
type Recorder interface {
	RecordResolution(*storage.Resolution) error
}

// JobError tags a job failure with its distribution.
type JobError struct {
	Distribution string
	Line         int
	Err          error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Distribution, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one job.
type Result struct {
	Job      Job
	Status   string
	URLs     []string
	Err      error
	Duration time.Duration
}

// Summary aggregates the results of a run. Results keep job-list order.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Results   []Result
}

// Options configures a Dispatcher.
type Options struct {
	// Concurrency bounds how many jobs resolve at once.
	Concurrency int
	// Only restricts the run to jobs whose job-list text matches this glob
	// (e.g. "ubuntu*" or "* lts"). Other jobs are reported as skipped.
	Only string
}

// Dispatcher resolves jobs through a Resolver.
type Dispatcher struct {
	resolver    Resolver
	recorder    Recorder
	concurrency int
	only        glob.Glob
	stdout      *slog.Logger
	stderr      *slog.Logger
}

// NewDispatcher creates a dispatcher. An invalid Only pattern is an error.
func NewDispatcher(resolver Resolver, opts Options, stdout, stderr *slog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		resolver:    resolver,
		concurrency: opts.Concurrency,
		stdout:      stdout,
		stderr:      stderr,
	}
	if d.concurrency <= 0 {
		d.concurrency = DefaultConcurrency
	}
	if opts.Only != "" {
		g, err := glob.Compile(opts.Only)
		if err != nil {
			return nil, fmt.Errorf("invalid job filter %q: %w", opts.Only, err)
		}
		d.only = g
	}
	return d, nil
}

// SetRecorder enables resolution history.
func (d *Dispatcher) SetRecorder(recorder Recorder) {
	d.recorder = recorder
}

// Run resolves every entry and returns the per-job results. A failing job
// never stops the others.
func (d *Dispatcher) Run(ctx context.Context, entries []Entry) Summary {
	summary := Summary{
		RunID:   uuid.NewString(),
		Total:   len(entries),
		Results: make([]Result, len(entries)),
	}

	d.stdout.Info("starting batch",
		"run_id", summary.RunID,
		"jobs", len(entries),
		"concurrency", d.concurrency)

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			summary.Results[i] = d.runOne(ctx, entry)
			return nil
		})
	}
	// jobs report failures through their Result
	_ = g.Wait()

	for _, result := range summary.Results {
		switch result.Status {
		case storage.StatusSuccess:
			summary.Succeeded++
		case storage.StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		d.record(summary.RunID, result)
	}

	d.stdout.Info("batch completed",
		"run_id", summary.RunID,
		"total", summary.Total,
		"successful", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	return summary
}

func (d *Dispatcher) runOne(ctx context.Context, entry Entry) Result {
	job := entry.Job
	result := Result{Job: job, Status: storage.StatusFailed}

	if entry.Err != nil {
		result.Err = &JobError{Distribution: job.Distribution, Line: job.Line, Err: entry.Err}
		d.stderr.Error("job rejected", "line", job.Line, "error", entry.Err)
		return result
	}

	if d.only != nil && !d.only.Match(job.String()) {
		result.Status = storage.StatusSkipped
		d.stdout.Debug("job filtered out", "line", job.Line, "job", job.String())
		return result
	}

	start := time.Now()
	urls, err := d.resolve(ctx, job)
	result.Duration = time.Since(start)

	if err != nil {
		result.Err = &JobError{Distribution: job.Distribution, Line: job.Line, Err: err}
		d.stderr.Error("job failed",
			"line", job.Line,
			"distribution", job.Distribution,
			"args", strings.Join(job.Args, " "),
			"error", err,
			"duration_ms", result.Duration.Milliseconds())
		return result
	}

	result.Status = storage.StatusSuccess
	result.URLs = urls
	d.stdout.Info("job resolved",
		"line", job.Line,
		"distribution", job.Distribution,
		"args", strings.Join(job.Args, " "),
		"urls", len(urls),
		"duration_ms", result.Duration.Milliseconds())
	return result
}

func (d *Dispatcher) resolve(ctx context.Context, job Job) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	strategy, err := d.resolver.Get(job.Distribution)
	if err != nil {
		return nil, err
	}
	return strategy.Resolve(ctx, job.Args)
}

func (d *Dispatcher) record(runID string, result Result) {
	if d.recorder == nil {
		return
	}

	r := &storage.Resolution{
		RunID:        runID,
		Line:         result.Job.Line,
		Distribution: result.Job.Distribution,
		Args:         strings.Join(result.Job.Args, " "),
		Status:       result.Status,
		DurationMS:   result.Duration.Milliseconds(),
		ResolvedAt:   time.Now(),
	}
	if result.Err != nil {
		r.ErrorMessage = result.Err.Error()
	}
	if err := r.SetURLs(result.URLs); err != nil {
		d.stderr.Warn("failed to encode resolved URLs", "line", result.Job.Line, "error", err)
		return
	}

	if err := d.recorder.RecordResolution(r); err != nil {
		d.stderr.Warn("failed to record resolution",
			"run_id", runID,
			"line", result.Job.Line,
			"error", err)
	}
}

// Errors returns the failures of a run in job-list order.
func (s Summary) Errors() []error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
