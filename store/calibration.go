package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Calibration is a parsed calibration file, kept as a generic YAML document
// since the core never interprets calibration contents (spec.md §9: vector
// types and the data nodes consume through them are opaque to the core;
// calibration files are the same kind of module-owned data).
type Calibration map[string]interface{}

var calibrationNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// SaveCalibration validates name (no path traversal) and raw as
// well-formed YAML, then writes it under the persistence directory's
// calibration/ folder, matching spec.md §6's "POST /api/calibration
// (multipart YAML) → persist a calibration file."
func (p *Persistence) SaveCalibration(name string, raw []byte) error {
	if !calibrationNamePattern.MatchString(name) {
		return fmt.Errorf("store: invalid calibration file name %q", name)
	}

	var doc Calibration
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("store: calibration file is not valid YAML: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == "" {
		return nil
	}

	path := filepath.Join(p.base, "calibration", name+".yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("store: writing calibration file: %w", err)
	}
	return nil
}

// LoadCalibration reads and parses a previously saved calibration file.
func (p *Persistence) LoadCalibration(name string) (Calibration, error) {
	if !calibrationNamePattern.MatchString(name) {
		return nil, fmt.Errorf("store: invalid calibration file name %q", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == "" {
		return nil, fmt.Errorf("store: persistence disabled, no calibration available")
	}

	data, err := os.ReadFile(filepath.Join(p.base, "calibration", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("store: reading calibration file: %w", err)
	}

	var doc Calibration
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: calibration file is not valid YAML: %w", err)
	}
	return doc, nil
}

// ListCalibrations returns the names (without extension) of all saved
// calibration files.
func (p *Persistence) ListCalibrations() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(filepath.Join(p.base, "calibration"))
	if err != nil {
		return nil, fmt.Errorf("store: listing calibration directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return names, nil
}
