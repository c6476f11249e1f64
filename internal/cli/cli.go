// Package cli provides a unified command-line interface for resolving
// distribution image URLs and downloading them.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clean-dependency-project/isofetch/internal/config"
	"github.com/clean-dependency-project/isofetch/internal/distro"
	"github.com/clean-dependency-project/isofetch/internal/download"
	gh "github.com/clean-dependency-project/isofetch/internal/github"
	"github.com/clean-dependency-project/isofetch/internal/jobs"
	"github.com/clean-dependency-project/isofetch/internal/listing"
	"github.com/clean-dependency-project/isofetch/internal/logger"
	"github.com/clean-dependency-project/isofetch/internal/storage"
)

var (
	// ErrJobsFailed is returned when at least one job of a run failed.
	ErrJobsFailed = errors.New("jobs failed")
	// ErrHistoryDisabled is returned by history when --no-history is set.
	ErrHistoryDisabled = errors.New("history is disabled by --no-history")
)

// JobResult represents one resolved job for JSON output
type JobResult struct {
	Line         int      `json:"line"`
	Distribution string   `json:"distribution"`
	Args         []string `json:"args"`
	Status       string   `json:"status"`
	URLs         []string `json:"urls,omitempty"`
	Error        string   `json:"error,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
}

// ResolveSummary represents the summary of a resolve run for JSON output
type ResolveSummary struct {
	RunID      string      `json:"run_id"`
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Results    []JobResult `json:"results"`
}

// DownloadResult represents a download operation result for JSON output
type DownloadResult struct {
	Distribution string `json:"distribution"`
	URL          string `json:"url"`
	LocalPath    string `json:"local_path"`
	FileSize     int64  `json:"file_size"`
	Success      bool   `json:"success"`
	Resumed      bool   `json:"resumed"`
	Skipped      bool   `json:"skipped"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// FetchSummary represents the summary of a fetch run for JSON output
type FetchSummary struct {
	Resolve    ResolveSummary   `json:"resolve"`
	OutputDir  string           `json:"output_dir"`
	TotalFiles int              `json:"total_files"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Downloads  []DownloadResult `json:"downloads"`
}

// RegistryFactory builds the strategy registry from the loaded configuration.
type RegistryFactory func(cfg *config.Config, stdout, stderr *slog.Logger) (*distro.Registry, error)

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return newApp(buildRegistry)
}

func newApp(registryFactory RegistryFactory) *cli.App {
	jobFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "jobs",
			Aliases: []string{"j"},
			Usage:   "job list file, one job per line (default from config, then distros.txt)",
			EnvVars: []string{"ISOFETCH_JOBS"},
		},
		&cli.StringFlag{
			Name:  "only",
			Usage: "only run jobs matching this glob, e.g. 'ubuntu*' or '* lts'",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "number of jobs resolved at once (default from config)",
		},
		&cli.StringFlag{
			Name:  "output",
			Value: "text",
			Usage: "output format (text, json)",
		},
	}

	return &cli.App{
		Name:     "isofetch",
		Usage:    "Resolve and download current Linux distribution images",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Authors: []*cli.Author{
			{
				Name:  "Clean Dependency Project",
				Email: "info@example.com",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigFile,
				Usage:   "path to configuration file",
				EnvVars: []string{"ISOFETCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"ISOFETCH_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "log format (json, text)",
				EnvVars: []string{"ISOFETCH_LOG_FORMAT"},
			},
			&cli.BoolFlag{
				Name:    "no-history",
				Usage:   "do not read or write the history database",
				EnvVars: []string{"ISOFETCH_NO_HISTORY"},
			},
		},
		Before: func(c *cli.Context) error {
			// reject bad logging flags before any command runs
			if _, err := logger.New(io.Discard, c.String("log-level"), c.String("log-format")); err != nil {
				return fmt.Errorf("invalid logging flags: %w", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "Resolve jobs into download URLs without downloading",
				ArgsUsage: "[distribution args...]",
				Flags:     jobFlags,
				Action: func(c *cli.Context) error {
					return resolveCommand(c, registryFactory)
				},
			},
			{
				Name:      "fetch",
				Usage:     "Resolve jobs and download the images, resuming partial files",
				ArgsUsage: "[distribution args...]",
				Flags: append(jobFlags,
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "output directory for downloads (default from config, then isos)",
					},
				),
				Action: func(c *cli.Context) error {
					return fetchCommand(c, registryFactory)
				},
			},
			{
				Name:  "list",
				Usage: "List supported distributions and their options",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "output",
						Value: "text",
						Usage: "output format (text, json)",
					},
				},
				Action: func(c *cli.Context) error {
					return listCommand(c, registryFactory)
				},
			},
			{
				Name:  "history",
				Usage: "Show recorded resolutions, downloads or statistics from the history database",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "number of resolutions to show or export (0 for all)",
					},
					&cli.StringFlag{
						Name:  "run",
						Usage: "only show the resolutions of this run id",
					},
					&cli.StringFlag{
						Name:  "distribution",
						Usage: "only show resolutions or downloads of this distribution",
					},
					&cli.BoolFlag{
						Name:  "downloads",
						Usage: "show downloads instead of resolutions",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "show the recorded download of this source URL",
					},
					&cli.BoolFlag{
						Name:  "stats",
						Usage: "show resolution and download counts",
					},
					&cli.StringFlag{
						Name:  "export",
						Usage: "write resolutions as JSON to this file",
					},
					&cli.StringFlag{
						Name:  "output",
						Value: "text",
						Usage: "output format (text, json)",
					},
				},
				Action: historyCommand,
			},
		},
	}
}

// loggersFromContext creates loggers from the global CLI flags.
func loggersFromContext(c *cli.Context) (*slog.Logger, *slog.Logger) {
	level := ParseLogLevelOrDefault(c.String("log-level"))
	return NewLoggersWithFormat(level, c.String("log-format"))
}

// loadConfig loads the configuration file. A missing default file yields
// the built-in defaults; a missing file named explicitly is an error.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(c.String("config"), c.IsSet("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// initDB opens the history database unless --no-history is set, in which
// case it returns nil.
func initDB(c *cli.Context, cfg *config.Config) (*storage.DB, error) {
	if c.Bool("no-history") {
		return nil, nil
	}
	return storage.InitDB(storage.Config{
		DatabasePath: cfg.Config.Storage.GetDatabasePath(),
		LogLevel:     "silent", // Database logs are verbose, suppress them
	})
}

func closeDB(db *storage.DB, stderr *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		// Log close error but don't fail - we're in cleanup
		stderr.Warn("failed to close database", "error", err)
	}
}

// buildRegistry wires the listing client, ignore rules and Home Assistant
// version source into the default strategy registry.
func buildRegistry(cfg *config.Config, stdout, stderr *slog.Logger) (*distro.Registry, error) {
	fetcher := listing.NewHTTPFetcher(listing.Config{
		UserAgent: cfg.Config.GetUserAgent(),
		Timeout:   cfg.Config.GetHTTPTimeout(),
	})
	lister := listing.NewClient(fetcher,
		listing.WithCacheTTL(cfg.Config.GetListingCacheTTL()),
		listing.WithLogger(stdout))

	env := distro.Env{Lister: lister, Logger: stdout}

	if cfg.Config.IgnoreFile != "" {
		ignoreConfig, err := config.LoadIgnoreConfig(cfg.Config.IgnoreFile)
		if err != nil {
			stderr.Warn("failed to load ignore config", "ignore_file", cfg.Config.IgnoreFile, "error", err)
		} else {
			stdout.Debug("loaded ignore configuration", "ignore_file", cfg.Config.IgnoreFile)
			env.Ignore = ignoreConfig.IsIgnored
		}
	}

	var source distro.VersionSource
	if cfg.HomeAssistant.GetVersionSource() == config.VersionSourceGitHub {
		client, err := gh.NewClient(os.Getenv("GITHUB_TOKEN"), cfg.HomeAssistant.GetGitHubRepository())
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
		source = distro.GitHubVersionSource{Client: client}
		stdout.Debug("home assistant version from github", "repository", client.Repository())
	}

	return distro.NewDefaultRegistry(env, source), nil
}

// loadEntries returns the inline job given as arguments, or the job list
// file.
func loadEntries(c *cli.Context, cfg *config.Config) ([]jobs.Entry, error) {
	if c.Args().Present() {
		text := strings.Join(c.Args().Slice(), " ")
		job, err := jobs.ParseLine(1, text)
		if err != nil {
			return nil, err
		}
		return []jobs.Entry{{Job: job}}, nil
	}

	path := c.String("jobs")
	if path == "" {
		path = cfg.Config.GetJobsFile()
	}
	return jobs.ParseFile(path)
}

// runJobs loads the configuration, registry and job list, then dispatches
// every job.
func runJobs(c *cli.Context, registryFactory RegistryFactory, stdout, stderr *slog.Logger) (*config.Config, *storage.DB, jobs.Summary, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return nil, nil, jobs.Summary{}, err
	}

	registry, err := registryFactory(cfg, stdout, stderr)
	if err != nil {
		stderr.Error("failed to build registry", "error", err)
		return nil, nil, jobs.Summary{}, err
	}

	entries, err := loadEntries(c, cfg)
	if err != nil {
		stderr.Error("failed to load jobs", "error", err)
		return nil, nil, jobs.Summary{}, err
	}

	dispatcher, err := jobs.NewDispatcher(registry, jobs.Options{
		Concurrency: concurrencyFromContext(c, cfg),
		Only:        c.String("only"),
	}, stdout, stderr)
	if err != nil {
		return nil, nil, jobs.Summary{}, err
	}

	db, err := initDB(c, cfg)
	if err != nil {
		stderr.Error("failed to initialize database", "error", err)
		return nil, nil, jobs.Summary{}, fmt.Errorf("failed to initialize database: %w", err)
	}
	if db != nil {
		dispatcher.SetRecorder(db)
	}

	return cfg, db, dispatcher.Run(c.Context, entries), nil
}

// concurrencyFromContext returns --concurrency when set, else the configured
// value.
func concurrencyFromContext(c *cli.Context, cfg *config.Config) int {
	if n := c.Int("concurrency"); n > 0 {
		return n
	}
	return cfg.Config.GetConcurrency()
}

// resolveCommand implements the resolve command.
func resolveCommand(c *cli.Context, registryFactory RegistryFactory) error {
	stdout, stderr := loggersFromContext(c)

	_, db, summary, err := runJobs(c, registryFactory, stdout, stderr)
	defer closeDB(db, stderr)
	if err != nil {
		return err
	}

	if err := writeResolveSummary(c.App.Writer, c.String("output"), summary); err != nil {
		return err
	}
	return failedJobsError(summary)
}

// fetchCommand implements the fetch command.
func fetchCommand(c *cli.Context, registryFactory RegistryFactory) error {
	stdout, stderr := loggersFromContext(c)

	cfg, db, summary, err := runJobs(c, registryFactory, stdout, stderr)
	defer closeDB(db, stderr)
	if err != nil {
		return err
	}

	outputDir := c.String("output-dir")
	if outputDir == "" {
		outputDir = cfg.Config.GetOutputDir()
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		stderr.Error("failed to create output directory", "output_dir", outputDir, "error", err)
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var tasks []download.Task
	for _, r := range summary.Results {
		if r.Status == storage.StatusSuccess {
			tasks = append(tasks, download.TasksFor(outputDir, r.Job.Distribution, r.URLs)...)
		}
	}

	downloader := download.NewDownloader(download.Options{
		Timeout:     cfg.Config.GetDownloadTimeout(),
		RetryMax:    cfg.Config.GetRetryMax(),
		UserAgent:   cfg.Config.GetUserAgent(),
		Concurrency: concurrencyFromContext(c, cfg),
	}, stdout, stderr)
	if db != nil {
		downloader.SetHistory(db)
	}

	results := downloader.ProcessDownloads(c.Context, tasks)

	fetch := FetchSummary{
		Resolve:    toResolveSummary(summary),
		OutputDir:  outputDir,
		TotalFiles: len(results),
	}
	for _, r := range results {
		if r.Err != nil {
			fetch.Failed++
		} else {
			fetch.Successful++
		}
		fetch.Downloads = append(fetch.Downloads, toDownloadResult(r))
	}

	if err := writeFetchSummary(c.App.Writer, c.String("output"), fetch); err != nil {
		return err
	}
	if fetch.Failed > 0 {
		return fmt.Errorf("%w: %d of %d downloads failed", ErrJobsFailed, fetch.Failed, fetch.TotalFiles)
	}
	return failedJobsError(summary)
}

// listCommand implements the list command.
func listCommand(c *cli.Context, registryFactory RegistryFactory) error {
	stdout, stderr := loggersFromContext(c)

	cfg, err := loadConfig(c)
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return err
	}
	registry, err := registryFactory(cfg, stdout, stderr)
	if err != nil {
		return err
	}

	return writeDistributions(c.App.Writer, c.String("output"), registry)
}

// historyCommand implements the history command.
func historyCommand(c *cli.Context) error {
	_, stderr := loggersFromContext(c)

	if c.Bool("no-history") {
		return ErrHistoryDisabled
	}

	cfg, err := loadConfig(c)
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return err
	}
	db, err := initDB(c, cfg)
	if err != nil {
		stderr.Error("failed to initialize database", "error", err)
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB(db, stderr)

	return showHistory(c, db)
}

// showHistory prints the part of the history the flags select: statistics,
// a JSON export, downloads, or resolutions.
func showHistory(c *cli.Context, store storage.Store) error {
	w, format := c.App.Writer, c.String("output")
	distribution := c.String("distribution")

	switch {
	case c.Bool("stats"):
		stats, err := store.GetStats()
		if err != nil {
			return err
		}
		return writeStats(w, format, stats)

	case c.String("export") != "":
		data, err := store.ExportResolutionsJSON(c.Int("limit"))
		if err != nil {
			return err
		}
		path := c.String("export")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		_, err = fmt.Fprintln(w, path)
		return err

	case c.String("url") != "":
		download, err := store.GetDownload(c.String("url"))
		if err != nil {
			return err
		}
		return writeDownloads(w, format, []*storage.Download{download})

	case c.Bool("downloads"):
		var downloads []*storage.Download
		var err error
		if distribution != "" {
			downloads, err = store.ListByDistribution(distribution)
		} else {
			downloads, err = store.ListDownloads()
		}
		if err != nil {
			return err
		}
		return writeDownloads(w, format, downloads)
	}

	var resolutions []storage.Resolution
	var err error
	switch {
	case c.String("run") != "":
		resolutions, err = store.ListResolutionsByRun(c.String("run"))
	case distribution != "":
		resolutions, err = store.ListResolutionsByDistribution(distribution)
		if limit := c.Int("limit"); err == nil && limit > 0 && len(resolutions) > limit {
			resolutions = resolutions[:limit]
		}
	default:
		resolutions, err = store.ListResolutions(c.Int("limit"))
	}
	if err != nil {
		return err
	}

	return writeHistory(w, format, resolutions)
}

func failedJobsError(summary jobs.Summary) error {
	if summary.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d jobs failed", ErrJobsFailed, summary.Failed, summary.Total)
}

func toResolveSummary(summary jobs.Summary) ResolveSummary {
	out := ResolveSummary{
		RunID:      summary.RunID,
		Total:      summary.Total,
		Successful: summary.Succeeded,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Results:    make([]JobResult, 0, len(summary.Results)),
	}
	for _, r := range summary.Results {
		jr := JobResult{
			Line:         r.Job.Line,
			Distribution: r.Job.Distribution,
			Args:         r.Job.Args,
			Status:       r.Status,
			URLs:         r.URLs,
			DurationMs:   r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		out.Results = append(out.Results, jr)
	}
	return out
}

func toDownloadResult(r download.Result) DownloadResult {
	out := DownloadResult{
		Distribution: r.Task.Distribution,
		URL:          r.Task.URL,
		LocalPath:    r.Task.OutputPath,
		FileSize:     r.Size,
		Success:      r.Err == nil,
		Resumed:      r.Resumed,
		Skipped:      r.Skipped,
		DurationMs:   r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// writeResolveSummary prints one URL per line in text mode. Failures are
// reported through the logs.
func writeResolveSummary(w io.Writer, format string, summary jobs.Summary) error {
	if format == "json" {
		return writeJSON(w, toResolveSummary(summary))
	}
	for _, r := range summary.Results {
		for _, u := range r.URLs {
			if _, err := fmt.Fprintln(w, u); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeFetchSummary prints the local path of every available image in text
// mode.
func writeFetchSummary(w io.Writer, format string, summary FetchSummary) error {
	if format == "json" {
		return writeJSON(w, summary)
	}
	for _, d := range summary.Downloads {
		if d.Success {
			if _, err := fmt.Fprintln(w, d.LocalPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// DistributionInfo describes a registered strategy for JSON output
type DistributionInfo struct {
	Name    string   `json:"name"`
	Usage   string   `json:"usage"`
	Options []string `json:"options"`
}

func writeDistributions(w io.Writer, format string, registry *distro.Registry) error {
	var infos []DistributionInfo
	for _, name := range registry.List() {
		s, err := registry.Get(name)
		if err != nil {
			return err
		}
		infos = append(infos, DistributionInfo{Name: name, Usage: s.Usage(), Options: s.Options()})
	}

	if format == "json" {
		return writeJSON(w, infos)
	}

	title := cases.Title(language.English)
	for _, info := range infos {
		if _, err := fmt.Fprintf(w, "%s\n  usage:   %s\n  options: %s\n\n",
			title.String(info.Name), info.Usage, strings.Join(info.Options, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func writeHistory(w io.Writer, format string, resolutions []storage.Resolution) error {
	if format == "json" {
		if resolutions == nil {
			resolutions = []storage.Resolution{}
		}
		return writeJSON(w, resolutions)
	}

	if len(resolutions) == 0 {
		_, err := fmt.Fprintln(w, "no resolutions recorded")
		return err
	}
	for _, r := range resolutions {
		detail := r.ErrorMessage
		if r.Status != storage.StatusFailed {
			urls, err := r.GetURLs()
			if err != nil {
				return fmt.Errorf("failed to decode urls of resolution %d: %w", r.ID, err)
			}
			detail = strings.Join(urls, " ")
		}
		if _, err := fmt.Fprintf(w, "%s  %s  %-8s %s %s  %s\n",
			r.ResolvedAt.Format(time.RFC3339), r.RunID, r.Status, r.Distribution, r.Args, detail); err != nil {
			return err
		}
	}
	return nil
}

func writeDownloads(w io.Writer, format string, downloads []*storage.Download) error {
	if format == "json" {
		if downloads == nil {
			downloads = []*storage.Download{}
		}
		return writeJSON(w, downloads)
	}

	if len(downloads) == 0 {
		_, err := fmt.Fprintln(w, "no downloads recorded")
		return err
	}
	for _, d := range downloads {
		detail := bytesize.New(float64(d.FileSize)).String()
		if d.Status == storage.StatusFailed {
			detail = d.ErrorMessage
		}
		if _, err := fmt.Fprintf(w, "%s  %-8s %s  %s  %s\n",
			d.DownloadedAt.Format(time.RFC3339), d.Status, d.Distribution, d.LocalPath, detail); err != nil {
			return err
		}
	}
	return nil
}

func writeStats(w io.Writer, format string, stats map[string]interface{}) error {
	if format == "json" {
		return writeJSON(w, stats)
	}

	if _, err := fmt.Fprintf(w, "total resolutions: %v\ntotal downloads:   %v\n",
		stats["total_resolutions"], stats["total_downloads"]); err != nil {
		return err
	}
	if counts, ok := stats["by_distribution"].([]storage.DistributionCount); ok && len(counts) > 0 {
		if _, err := fmt.Fprintln(w, "by distribution:"); err != nil {
			return err
		}
		for _, dc := range counts {
			if _, err := fmt.Fprintf(w, "  %-16s %d\n", dc.Distribution, dc.Count); err != nil {
				return err
			}
		}
	}
	if counts, ok := stats["by_status"].([]storage.StatusCount); ok && len(counts) > 0 {
		if _, err := fmt.Fprintln(w, "by status:"); err != nil {
			return err
		}
		for _, sc := range counts {
			if _, err := fmt.Fprintf(w, "  %-16s %d\n", sc.Status, sc.Count); err != nil {
				return err
			}
		}
	}
	return nil
}
