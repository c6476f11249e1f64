package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// IgnoreConfig lists releases to skip per distribution.
// Structure examples:
//
//		{
//		  "fedora": ["41"],
//		  "ubuntu": {"all": ["24.10"], "kubuntu": ["24.04"], "server": ["22.04"]},
//		  "proxmox": {"ve": ["9.0"]}
//		}
//
//	  - A distribution value can be an array (applies to every qualifier) or an
//	    object with "all" (array) and qualifier keys. A qualifier is the flavor,
//	    variant, board or product named in the job.
//	  - Patterns match a version exactly or as a prefix ending at a '.' or '-'
//	    boundary, so "24" skips "24.04" and "24.10" but not "240".
type IgnoreConfig map[string]any

// LoadIgnoreConfig loads an ignore configuration file if provided.
// Returns an empty config if filePath is empty.
func LoadIgnoreConfig(filePath string) (IgnoreConfig, error) {
	if filePath == "" {
		return IgnoreConfig{}, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", filePath, err)
	}
	var raw map[string]any
	switch ext := filepath.Ext(filePath); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML ignore file %s: %w", filePath, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON ignore file %s: %w", filePath, err)
		}
	}
	return IgnoreConfig(raw), nil
}

// IsIgnored returns true if version should be skipped for the distribution.
// qualifiers are checked in order; an empty qualifier is skipped.
func (ic IgnoreConfig) IsIgnored(distribution, version string, qualifiers ...string) bool {
	v, ok := ic[distribution]
	if !ok {
		return false
	}

	switch rules := v.(type) {
	case []any:
		return matchPatterns(rules, version)
	case map[string]any:
		if all, ok := rules["all"]; ok {
			if arr, ok := all.([]any); ok && matchPatterns(arr, version) {
				return true
			}
		}
		for _, q := range qualifiers {
			if q == "" || q == "all" {
				continue
			}
			if arr, ok := rules[q].([]any); ok && matchPatterns(arr, version) {
				return true
			}
		}
	}

	return false
}

func matchPatterns(patterns []any, version string) bool {
	for _, p := range patterns {
		var s string
		switch val := p.(type) {
		case string:
			s = val
		case int, float64:
			// YAML and JSON decode bare numbers such as 41 or 24.04
			s = fmt.Sprint(val)
		default:
			continue
		}
		if s == "" {
			continue
		}
		if s == version {
			return true
		}
		if len(version) > len(s) && version[:len(s)] == s {
			if next := version[len(s)]; next == '.' || next == '-' {
				return true
			}
		}
	}
	return false
}
