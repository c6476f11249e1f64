package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNilResolution is returned when a nil resolution is recorded.
var ErrNilResolution = errors.New("resolution cannot be nil")

// RecordResolution inserts a resolution record.
func (d *DB) RecordResolution(resolution *Resolution) error {
	if resolution == nil {
		return ErrNilResolution
	}

	if err := d.db.Create(resolution).Error; err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}

	return nil
}

// ListResolutions returns the most recent resolutions, newest first. A limit
// <= 0 returns all of them.
func (d *DB) ListResolutions(limit int) ([]Resolution, error) {
	query := d.db.Order("resolved_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var resolutions []Resolution
	if err := query.Find(&resolutions).Error; err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}

	return resolutions, nil
}

// ListResolutionsByRun returns the resolutions of one batch run in job order.
func (d *DB) ListResolutionsByRun(runID string) ([]Resolution, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	var resolutions []Resolution
	if err := d.db.Where("run_id = ?", runID).Order("line ASC").Order("id ASC").Find(&resolutions).Error; err != nil {
		return nil, fmt.Errorf("failed to list resolutions for run %s: %w", runID, err)
	}

	return resolutions, nil
}

// ListResolutionsByDistribution returns every resolution of a distribution,
// newest first.
func (d *DB) ListResolutionsByDistribution(distribution string) ([]Resolution, error) {
	if distribution == "" {
		return nil, fmt.Errorf("distribution cannot be empty")
	}

	var resolutions []Resolution
	if err := d.db.Where("distribution = ?", distribution).Order("resolved_at DESC").Find(&resolutions).Error; err != nil {
		return nil, fmt.Errorf("failed to list resolutions for %s: %w", distribution, err)
	}

	return resolutions, nil
}

// ExportResolutionsJSON exports the most recent resolutions as indented JSON.
func (d *DB) ExportResolutionsJSON(limit int) ([]byte, error) {
	resolutions, err := d.ListResolutions(limit)
	if err != nil {
		return nil, err
	}
	if resolutions == nil {
		resolutions = []Resolution{}
	}

	data, err := json.MarshalIndent(resolutions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolutions to JSON: %w", err)
	}

	return data, nil
}
