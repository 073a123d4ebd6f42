// Package config loads processing tuning parameters from JSON. Fields
// are pointers so partial config files are safe: anything omitted falls
// back to the documented default through the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for blend processing.
type TuningConfig struct {
	// Pipeline params
	Workers *int `json:"workers,omitempty"`

	// Deblender params
	DeblendModelKey      *string  `json:"deblend_model_key,omitempty"`
	DeblendMaskThreshold *float64 `json:"deblend_mask_threshold,omitempty"`

	// Fitter params
	FitAlgorithmKey *string `json:"fit_algorithm_key,omitempty"`

	// Storage params
	DatabasePath  *string `json:"database_path,omitempty"`
	MigrationsDir *string `json:"migrations_dir,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the size cap.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.DeblendMaskThreshold != nil && *c.DeblendMaskThreshold < 0 {
		return fmt.Errorf("deblend_mask_threshold must be non-negative, got %f", *c.DeblendMaskThreshold)
	}
	if c.DeblendModelKey != nil && *c.DeblendModelKey == "" {
		return fmt.Errorf("deblend_model_key must not be empty when set")
	}
	if c.FitAlgorithmKey != nil && *c.FitAlgorithmKey == "" {
		return fmt.Errorf("fit_algorithm_key must not be empty when set")
	}
	return nil
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetDeblendModelKey returns the deblend_model_key value or the default.
func (c *TuningConfig) GetDeblendModelKey() string {
	if c.DeblendModelKey == nil {
		return "moments"
	}
	return *c.DeblendModelKey
}

// GetDeblendMaskThreshold returns the deblend_mask_threshold value or the default.
func (c *TuningConfig) GetDeblendMaskThreshold() float64 {
	if c.DeblendMaskThreshold == nil {
		return 1e-3
	}
	return *c.DeblendMaskThreshold
}

// GetFitAlgorithmKey returns the fit_algorithm_key value or the default.
func (c *TuningConfig) GetFitAlgorithmKey() string {
	if c.FitAlgorithmKey == nil {
		return "moments"
	}
	return *c.FitAlgorithmKey
}

// GetDatabasePath returns the database_path value or the default.
func (c *TuningConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "multifit.db"
	}
	return *c.DatabasePath
}

// GetMigrationsDir returns the migrations_dir value or the default.
func (c *TuningConfig) GetMigrationsDir() string {
	if c.MigrationsDir == nil {
		return "migrations"
	}
	return *c.MigrationsDir
}
