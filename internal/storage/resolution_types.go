package storage

import (
	"encoding/json"
	"time"
)

// Resolution statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Resolution records the outcome of one job of a batch run.
type Resolution struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunID        string    `gorm:"not null;index" json:"run_id"`
	Line         int       `json:"line"`
	Distribution string    `gorm:"index" json:"distribution"`
	Args         string    `json:"args"`
	URLs         string    `gorm:"type:json" json:"urls"` // JSON array
	Status       string    `gorm:"not null;index" json:"status"`
	ErrorMessage string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	ResolvedAt   time.Time `gorm:"not null;index" json:"resolved_at"`
}

// TableName overrides the table name for GORM.
func (Resolution) TableName() string {
	return "resolutions"
}

// SetURLs stores urls in the JSON column.
func (r *Resolution) SetURLs(urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	r.URLs = string(data)
	return nil
}

// GetURLs decodes the JSON column. An empty column yields no URLs.
func (r *Resolution) GetURLs() ([]string, error) {
	if r.URLs == "" {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(r.URLs), &urls); err != nil {
		return nil, err
	}
	return urls, nil
}
