// Package download fetches resolved image URLs into a local directory,
// resuming partial files.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/inhies/go-bytesize"

	"github.com/clean-dependency-project/isofetch/internal/storage"
)

const (
	DefaultTimeout     = 2 * time.Hour
	DefaultRetryMax    = 3
	DefaultConcurrency = 2
	DefaultUserAgent   = "isofetch/1.0"

	// PartialSuffix marks files that are still being downloaded.
	PartialSuffix = ".part"

	// progressStep is how many bytes pass between progress logs.
	progressStep = 256 << 20
)

// ErrUnexpectedStatus indicates the server answered with a status that
// cannot be used to (re)start the download.
var ErrUnexpectedStatus = errors.New("unexpected download status")

// History is the subset of storage.DB the downloader uses.
type History interface {
	IsAlreadyDownloaded(sourceURL string) (bool, error)
	RecordDownload(*storage.Download) error
}

// Task is one URL to store at OutputPath.
type Task struct {
	URL          string
	Distribution string
	OutputPath   string
}

// Result is the outcome of a Task.
type Result struct {
	Task     Task
	Size     int64
	Resumed  bool
	Skipped  bool
	Duration time.Duration
	Err      error
}

// Options configures a Downloader.
type Options struct {
	Timeout     time.Duration
	RetryMax    int
	UserAgent   string
	Concurrency int
}

// Downloader fetches tasks with a retrying HTTP client.
type Downloader struct {
	opts    Options
	history History
	stdout  *slog.Logger
	stderr  *slog.Logger

	client     *retryablehttp.Client
	clientInit sync.Once
}

// NewDownloader creates a downloader. Zero fields in opts take defaults; a
// negative RetryMax disables retries.
func NewDownloader(opts Options, stdout, stderr *slog.Logger) *Downloader {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = DefaultRetryMax
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Downloader{opts: opts, stdout: stdout, stderr: stderr}
}

// SetHistory enables skipping and recording downloads.
func (d *Downloader) SetHistory(history History) {
	d.history = history
}

func (d *Downloader) httpClient() *retryablehttp.Client {
	d.clientInit.Do(func() {
		d.client = retryablehttp.NewClient()
		d.client.Logger = nil
		d.client.RetryMax = d.opts.RetryMax
		d.client.HTTPClient.Timeout = d.opts.Timeout
	})
	return d.client
}

// TasksFor maps urls to tasks that store each file under outputDir by its
// remote name.
func TasksFor(outputDir, distribution string, urls []string) []Task {
	tasks := make([]Task, 0, len(urls))
	for _, u := range urls {
		tasks = append(tasks, Task{
			URL:          u,
			Distribution: distribution,
			OutputPath:   filepath.Join(outputDir, storage.FilenameFromURL(u)),
		})
	}
	return tasks
}

// ProcessDownloads runs tasks with bounded concurrency. Results keep task
// order; failures are reported per task.
func (d *Downloader) ProcessDownloads(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		d.stdout.Debug("no download tasks to process")
		return []Result{}
	}

	d.stdout.Info("starting downloads",
		"task_count", len(tasks),
		"concurrency", d.opts.Concurrency)

	semaphore := make(chan struct{}, d.opts.Concurrency)
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				results[i] = Result{Task: task, Err: ctx.Err()}
				return
			}

			results[i] = d.Download(ctx, task)
		}()
	}
	wg.Wait()

	var succeeded, failed, skipped int
	var totalSize int64
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			succeeded++
			totalSize += r.Size
		}
	}

	d.stdout.Info("downloads completed",
		"total_tasks", len(tasks),
		"successful", succeeded,
		"skipped", skipped,
		"failed", failed,
		"total_size", bytesize.New(float64(totalSize)).String())

	return results
}

// Download fetches one task. An existing partial file is continued with a
// Range request: 206 appends, 200 restarts from zero and 416 means the
// partial file is already complete.
func (d *Downloader) Download(ctx context.Context, task Task) Result {
	start := time.Now()
	result := Result{Task: task}

	if d.alreadyDownloaded(task) {
		result.Skipped = true
		d.stdout.Info("already downloaded", "url", task.URL, "output_path", task.OutputPath)
		return result
	}

	result.Size, result.Resumed, result.Err = d.fetch(ctx, task)
	result.Duration = time.Since(start)

	if result.Err != nil {
		d.stderr.Error("download failed",
			"url", task.URL,
			"output_path", task.OutputPath,
			"error", result.Err,
			"duration_ms", result.Duration.Milliseconds())
	} else {
		d.stdout.Info("download completed",
			"url", task.URL,
			"output_path", task.OutputPath,
			"size", bytesize.New(float64(result.Size)).String(),
			"resumed", result.Resumed,
			"duration_ms", result.Duration.Milliseconds())
	}

	d.record(result)
	return result
}

// alreadyDownloaded reports whether the final file exists and, when history
// is enabled, was recorded as a successful download.
func (d *Downloader) alreadyDownloaded(task Task) bool {
	if _, err := os.Stat(task.OutputPath); err != nil {
		return false
	}
	if d.history == nil {
		return true
	}
	done, err := d.history.IsAlreadyDownloaded(task.URL)
	if err != nil {
		d.stderr.Warn("failed to check download history", "url", task.URL, "error", err)
		return false
	}
	return done
}

func (d *Downloader) fetch(ctx context.Context, task Task) (int64, bool, error) {
	if err := os.MkdirAll(filepath.Dir(task.OutputPath), 0o755); err != nil {
		return 0, false, fmt.Errorf("failed to create output directory: %w", err)
	}

	partPath := task.OutputPath + PartialSuffix
	var offset int64
	if info, err := os.Stat(partPath); err == nil {
		offset = info.Size()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var flags int
	resumed := false
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if !strings.HasPrefix(resp.Header.Get("Content-Range"), fmt.Sprintf("bytes %d-", offset)) {
			return 0, false, fmt.Errorf("%w: content range %q does not continue at byte %d",
				ErrUnexpectedStatus, resp.Header.Get("Content-Range"), offset)
		}
		flags = os.O_WRONLY | os.O_APPEND
		resumed = true
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			d.stdout.Debug("server ignored range, restarting", "url", task.URL, "partial_size", offset)
		}
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		offset = 0
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		d.stdout.Debug("partial file already complete", "url", task.URL, "size", offset)
		return offset, true, finish(partPath, task.OutputPath)
	default:
		return 0, false, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, task.URL, resp.StatusCode)
	}

	out, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return 0, false, fmt.Errorf("failed to open output file: %w", err)
	}

	written := offset
	nextLog := offset + progressStep
	reader := &ProgressReader{
		Reader: resp.Body,
		Reporter: func(n int64) {
			written += n
			if written >= nextLog {
				d.stdout.Debug("download progress",
					"url", task.URL,
					"downloaded", bytesize.New(float64(written)).String())
				nextLog += progressStep
			}
		},
	}

	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		return 0, false, fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, false, fmt.Errorf("failed to close output file: %w", err)
	}

	return written, resumed, finish(partPath, task.OutputPath)
}

func finish(partPath, outputPath string) error {
	if err := os.Rename(partPath, outputPath); err != nil {
		return fmt.Errorf("failed to move completed download into place: %w", err)
	}
	return nil
}

func (d *Downloader) record(result Result) {
	if d.history == nil {
		return
	}

	download := &storage.Download{
		Distribution: result.Task.Distribution,
		SourceURL:    result.Task.URL,
		Filename:     filepath.Base(result.Task.OutputPath),
		LocalPath:    result.Task.OutputPath,
		FileSize:     result.Size,
		DownloadedAt: time.Now(),
		DurationMS:   result.Duration.Milliseconds(),
		Resumed:      result.Resumed,
		Status:       storage.StatusSuccess,
	}
	if result.Err != nil {
		download.Status = storage.StatusFailed
		download.ErrorMessage = result.Err.Error()
	}

	if err := d.history.RecordDownload(download); err != nil {
		d.stderr.Warn("failed to record download", "url", result.Task.URL, "error", err)
	}
}

// ProgressReader wraps an io.Reader to provide progress updates
type ProgressReader struct {
	Reader   io.Reader
	Reporter func(r int64)
}

func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.Reader.Read(p)
	if n > 0 {
		pr.Reporter(int64(n))
	}
	return
}
