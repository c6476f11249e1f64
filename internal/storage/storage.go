// Package storage records resolution and download history using GORM and SQLite
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilDownload = errors.New("download cannot be nil")
	ErrNotFound    = errors.New("download not found")
)

// Download represents an image fetched into the output directory
type Download struct {
	ID uint `gorm:"primaryKey"`

	// What was downloaded
	Distribution string `gorm:"not null;index"`
	SourceURL    string `gorm:"not null;uniqueIndex"`
	Filename     string `gorm:"not null"`
	LocalPath    string `gorm:"not null"`
	FileSize     int64

	// When and how
	DownloadedAt time.Time `gorm:"not null"`
	DurationMS   int64
	Resumed      bool `gorm:"not null;default:false"`

	// Status
	Status       string `gorm:"not null;index"`
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for history storage operations
type Store interface {
	Close() error
	RecordDownload(*Download) error
	GetDownload(sourceURL string) (*Download, error)
	IsAlreadyDownloaded(sourceURL string) (bool, error)
	ListDownloads() ([]*Download, error)
	ListByDistribution(distribution string) ([]*Download, error)
	RecordResolution(*Resolution) error
	ListResolutions(limit int) ([]Resolution, error)
	ListResolutionsByRun(runID string) ([]Resolution, error)
	ListResolutionsByDistribution(distribution string) ([]Resolution, error)
	ExportResolutionsJSON(limit int) ([]byte, error)
	GetStats() (map[string]interface{}, error)
}

// DistributionCount is one row of the by_distribution statistic.
type DistributionCount struct {
	Distribution string `json:"distribution"`
	Count        int64  `json:"count"`
}

// StatusCount is one row of the by_status statistic.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// DB wraps gorm.DB with our history operations
type DB struct {
	db *gorm.DB
}

var _ Store = (*DB)(nil)

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema
	if err := db.AutoMigrate(&Download{}, &Resolution{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordDownload stores a download, replacing any earlier record for the
// same source URL
func (d *DB) RecordDownload(download *Download) error {
	if download == nil {
		return ErrNilDownload
	}

	var existing Download
	err := d.db.Where("source_url = ?", download.SourceURL).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := d.db.Create(download).Error; err != nil {
			return fmt.Errorf("failed to record download: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up download: %w", err)
	}

	download.ID = existing.ID
	download.CreatedAt = existing.CreatedAt
	if err := d.db.Save(download).Error; err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	return nil
}

// GetDownload retrieves a download by source URL
func (d *DB) GetDownload(sourceURL string) (*Download, error) {
	var download Download
	err := d.db.Where("source_url = ?", sourceURL).First(&download).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download: %w", err)
	}
	return &download, nil
}

// IsAlreadyDownloaded checks if a URL was downloaded successfully
func (d *DB) IsAlreadyDownloaded(sourceURL string) (bool, error) {
	var count int64
	err := d.db.Model(&Download{}).Where(
		"source_url = ? AND status = ?", sourceURL, StatusSuccess).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check if already downloaded: %w", err)
	}
	return count > 0, nil
}

// ListDownloads returns all downloads, newest first
func (d *DB) ListDownloads() ([]*Download, error) {
	var downloads []*Download
	if err := d.db.Order("downloaded_at DESC").Find(&downloads).Error; err != nil {
		return nil, fmt.Errorf("failed to list all downloads: %w", err)
	}
	return downloads, nil
}

// ListByDistribution returns all downloads for a specific distribution
func (d *DB) ListByDistribution(distribution string) ([]*Download, error) {
	var downloads []*Download
	if err := d.db.Where("distribution = ?", distribution).Order("downloaded_at DESC").Find(&downloads).Error; err != nil {
		return nil, fmt.Errorf("failed to list downloads for %s: %w", distribution, err)
	}
	return downloads, nil
}

// GetStats returns resolution and download statistics
func (d *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	if err := d.db.Model(&Download{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count total downloads: %w", err)
	}
	stats["total_downloads"] = total

	var resolutions int64
	if err := d.db.Model(&Resolution{}).Count(&resolutions).Error; err != nil {
		return nil, fmt.Errorf("failed to count resolutions: %w", err)
	}
	stats["total_resolutions"] = resolutions

	var distributionCounts []DistributionCount
	if err := d.db.Model(&Resolution{}).Select("distribution, COUNT(*) as count").
		Group("distribution").Order("distribution").Scan(&distributionCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to get distribution counts: %w", err)
	}
	stats["by_distribution"] = distributionCounts

	var statusCounts []StatusCount
	if err := d.db.Model(&Resolution{}).Select("status, COUNT(*) as count").
		Group("status").Order("status").Scan(&statusCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	stats["by_status"] = statusCounts

	return stats, nil
}

// FilenameFromURL returns the last path element of a download URL.
func FilenameFromURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
