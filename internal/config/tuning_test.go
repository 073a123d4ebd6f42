package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"workers": 8,
		"deblend_model_key": "sersic",
		"deblend_mask_threshold": 0.01
	}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.GetWorkers(); got != 8 {
		t.Errorf("GetWorkers = %d, want 8", got)
	}
	if got := cfg.GetDeblendModelKey(); got != "sersic" {
		t.Errorf("GetDeblendModelKey = %q, want sersic", got)
	}
	if got := cfg.GetDeblendMaskThreshold(); got != 0.01 {
		t.Errorf("GetDeblendMaskThreshold = %v, want 0.01", got)
	}
	// Unset fields fall back to defaults.
	if got := cfg.GetFitAlgorithmKey(); got != "moments" {
		t.Errorf("GetFitAlgorithmKey = %q, want moments", got)
	}
	if got := cfg.GetDatabasePath(); got != "multifit.db" {
		t.Errorf("GetDatabasePath = %q, want multifit.db", got)
	}
	if got := cfg.GetMigrationsDir(); got != "migrations" {
		t.Errorf("GetMigrationsDir = %q, want migrations", got)
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
	}{
		{"wrong extension", "tuning.yaml", `{}`},
		{"bad json", "bad.json", `{"workers": `},
		{"zero workers", "zero.json", `{"workers": 0}`},
		{"negative threshold", "neg.json", `{"deblend_mask_threshold": -1}`},
		{"empty model key", "key.json", `{"deblend_model_key": ""}`},
		{"empty algorithm key", "alg.json", `{"fit_algorithm_key": ""}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.path, tc.content)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should error")
	}
}

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
	if cfg.GetWorkers() != 4 || cfg.GetDeblendModelKey() != "moments" ||
		cfg.GetDeblendMaskThreshold() != 1e-3 {
		t.Error("defaults disagree with documented values")
	}
}

func TestDefaultsFileParses(t *testing.T) {
	cfg, err := LoadTuningConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("shipped defaults file invalid: %v", err)
	}
	if cfg.GetWorkers() != 4 {
		t.Errorf("defaults file workers = %d, want 4", cfg.GetWorkers())
	}
}
