// Package config provides configuration management for isofetch.
// It handles the optional YAML settings file and the release ignore rules.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a setting is empty or invalid.
const (
	DefaultConfigFile      = "isofetch.yaml"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultDownloadTimeout = 2 * time.Hour
	DefaultUserAgent       = "isofetch/1.0"
	DefaultRetryMax        = 3
	DefaultConcurrency     = 4
	DefaultOutputDir       = "isos"
	DefaultJobsFile        = "distros.txt"
	DefaultDatabasePath    = "isofetch.db"
	DefaultHARepository    = "home-assistant/operating-system"
)

// Home Assistant version sources.
const (
	VersionSourcePage   = "page"
	VersionSourceGitHub = "github"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired      = errors.New("version is required")
	ErrInvalidConcurrency   = errors.New("concurrency must not be negative")
	ErrInvalidRetryMax      = errors.New("retry_max must not be negative")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInvalidVersionSource = errors.New("homeassistant version_source must be 'page' or 'github'")
)

// Config represents the top-level configuration structure.
type Config struct {
	Version       string              `yaml:"version"`
	Config        GlobalConfig        `yaml:"config"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
}

// StorageConfig represents storage configuration for resolution and
// download history.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// GlobalConfig represents global configuration settings.
type GlobalConfig struct {
	HTTPTimeout     string        `yaml:"http_timeout"`
	DownloadTimeout string        `yaml:"download_timeout"`
	UserAgent       string        `yaml:"user_agent"`
	RetryMax        *int          `yaml:"retry_max,omitempty"` // unset means DefaultRetryMax, 0 disables retries
	ListingCacheTTL string        `yaml:"listing_cache_ttl"`
	Concurrency     int           `yaml:"concurrency"`
	OutputDir       string        `yaml:"output_dir"`
	JobsFile        string        `yaml:"jobs_file"`
	IgnoreFile      string        `yaml:"ignore_file"` // JSON or YAML file listing releases to skip per distribution
	Storage         StorageConfig `yaml:"storage"`
}

// HomeAssistantConfig selects where the latest Home Assistant OS version is
// read from.
type HomeAssistantConfig struct {
	VersionSource    string `yaml:"version_source"`
	GitHubRepository string `yaml:"github_repository"`
}

// GetHTTPTimeout parses and returns the listing request timeout
func (g *GlobalConfig) GetHTTPTimeout() time.Duration {
	return parseDuration(g.HTTPTimeout, DefaultHTTPTimeout)
}

// GetDownloadTimeout parses and returns the download timeout duration
func (g *GlobalConfig) GetDownloadTimeout() time.Duration {
	return parseDuration(g.DownloadTimeout, DefaultDownloadTimeout)
}

// GetListingCacheTTL returns how long listing pages are cached. Zero
// disables the cache.
func (g *GlobalConfig) GetListingCacheTTL() time.Duration {
	return parseDuration(g.ListingCacheTTL, 0)
}

// GetUserAgent returns the User-Agent header for outgoing requests.
func (g *GlobalConfig) GetUserAgent() string {
	if g.UserAgent == "" {
		return DefaultUserAgent
	}
	return g.UserAgent
}

// GetConcurrency returns the number of jobs resolved in parallel.
func (g *GlobalConfig) GetConcurrency() int {
	if g.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return g.Concurrency
}

// GetRetryMax returns the number of download retries.
func (g *GlobalConfig) GetRetryMax() int {
	if g.RetryMax == nil {
		return DefaultRetryMax
	}
	return *g.RetryMax
}

// GetOutputDir returns the download directory.
func (g *GlobalConfig) GetOutputDir() string {
	if g.OutputDir == "" {
		return DefaultOutputDir
	}
	return g.OutputDir
}

// GetJobsFile returns the path of the job list.
func (g *GlobalConfig) GetJobsFile() string {
	if g.JobsFile == "" {
		return DefaultJobsFile
	}
	return g.JobsFile
}

// GetDatabasePath returns the history database path.
func (s *StorageConfig) GetDatabasePath() string {
	if s.DatabasePath == "" {
		return DefaultDatabasePath
	}
	return s.DatabasePath
}

// GetVersionSource returns the configured source, page by default.
func (h *HomeAssistantConfig) GetVersionSource() string {
	if h.VersionSource == "" {
		return VersionSourcePage
	}
	return h.VersionSource
}

// GetGitHubRepository returns the repository queried by the github source.
func (h *HomeAssistantConfig) GetGitHubRepository() string {
	if h.GitHubRepository == "" {
		return DefaultHARepository
	}
	return h.GitHubRepository
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback // Default on parse error
	}
	return d
}

// LoadConfig loads and parses the configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// LoadOrDefault loads filePath. When explicit is false and the file does
// not exist, the default configuration is returned instead of an error.
func LoadOrDefault(filePath string, explicit bool) (*Config, error) {
	if !explicit {
		if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
	}
	return LoadConfig(filePath)
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if c.Config.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.Config.RetryMax != nil && *c.Config.RetryMax < 0 {
		return ErrInvalidRetryMax
	}
	for key, value := range map[string]string{
		"http_timeout":      c.Config.HTTPTimeout,
		"download_timeout":  c.Config.DownloadTimeout,
		"listing_cache_ttl": c.Config.ListingCacheTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidDuration, key, value)
		}
	}
	switch c.HomeAssistant.VersionSource {
	case "", VersionSourcePage, VersionSourceGitHub:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidVersionSource, c.HomeAssistant.VersionSource)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	retryMax := DefaultRetryMax
	return &Config{
		Version: "1.0",
		Config: GlobalConfig{
			HTTPTimeout:     DefaultHTTPTimeout.String(),
			DownloadTimeout: DefaultDownloadTimeout.String(),
			UserAgent:       DefaultUserAgent,
			RetryMax:        &retryMax,
			Concurrency:     DefaultConcurrency,
			OutputDir:       DefaultOutputDir,
			JobsFile:        DefaultJobsFile,
			Storage: StorageConfig{
				DatabasePath: DefaultDatabasePath,
			},
		},
		HomeAssistant: HomeAssistantConfig{
			VersionSource:    VersionSourcePage,
			GitHubRepository: DefaultHARepository,
		},
	}
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}
