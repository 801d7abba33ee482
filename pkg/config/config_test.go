package config

import (
	"errors"
	"path/filepath"
	"testing"

	"boldpipe/internal/models"
)

// validConfig returns a default configuration with every required
// subject input filled in.
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Subject.BOLD = "bold.nii"
	cfg.Subject.CSFMask = "csf.nii"
	cfg.Subject.WMMask = "wm.nii"
	cfg.Subject.MotionTable = "motion.par"
	cfg.Subject.Parcellations = []Parcellation{{Scale: "scale1", Volume: "parc1.nii"}}
	return cfg
}

// TestDefaultConfigValidates verifies the defaults pass validation once
// the subject inputs are named.
func TestDefaultConfigValidates(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Default config with subject inputs should validate: %v", err)
	}
}

// TestValidateMissingInputs verifies each selected source without a
// path fails with ErrMissingInput.
func TestValidateMissingInputs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no bold", func(c *Config) { c.Subject.BOLD = "" }},
		{"no parcellations", func(c *Config) { c.Subject.Parcellations = nil }},
		{"global without brain mask", func(c *Config) { c.Functional.Nuisance.Global = true }},
		{"csf without mask", func(c *Config) { c.Subject.CSFMask = "" }},
		{"wm without mask", func(c *Config) { c.Subject.WMMask = "" }},
		{"motion without table", func(c *Config) { c.Subject.MotionTable = "" }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, models.ErrMissingInput) {
			t.Errorf("%s: expected ErrMissingInput, got %v", tc.name, err)
		}
	}
}

// TestValidateRejectsBadValues verifies range and enum checks.
func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad motion tier", func(c *Config) { c.Functional.Nuisance.MotionRegressors = 18 }},
		{"negative discard", func(c *Config) { c.Functional.DiscardFrames = -1 }},
		{"bad detrend order", func(c *Config) { c.Functional.Detrending.Order = "quartic" }},
		{"inverted band", func(c *Config) {
			c.Functional.Bandpass.Enabled = true
			c.Functional.Bandpass.Highpass = 0.2
			c.Functional.Bandpass.Lowpass = 0.1
		}},
		{"scrubbing with zero fd threshold", func(c *Config) {
			c.Connectome.ApplyScrubbing = true
			c.Connectome.FDThreshold = 0
		}},
		{"unknown output format", func(c *Config) { c.Connectome.OutputFormats = []string{"hdf5"} }},
		{"zero workers", func(c *Config) { c.Output.Workers = 0 }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

// TestLoadConfigMissingFile verifies a missing file yields defaults.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Functional.DiscardFrames != 5 {
		t.Errorf("Expected default discardFrames 5, got %d", cfg.Functional.DiscardFrames)
	}
}

// TestConfigRoundTrip verifies save and reload preserve settings.
func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")

	cfg := validConfig()
	cfg.Functional.DiscardFrames = 9
	cfg.Connectome.OutputFormats = []string{"tsv", "graphml"}
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Functional.DiscardFrames != 9 {
		t.Errorf("discardFrames: got %d, want 9", loaded.Functional.DiscardFrames)
	}
	if len(loaded.Connectome.OutputFormats) != 2 || loaded.Connectome.OutputFormats[1] != "graphml" {
		t.Errorf("outputFormats: got %v", loaded.Connectome.OutputFormats)
	}
	if loaded.Subject.BOLD != "bold.nii" {
		t.Errorf("subject.bold: got %q", loaded.Subject.BOLD)
	}
}

// TestMetricsAvailable verifies the FD/DVARS prerequisite check.
func TestMetricsAvailable(t *testing.T) {
	cfg := validConfig()
	if !cfg.MetricsAvailable() {
		t.Error("Expected metrics available with motion table and WM mask")
	}
	cfg.Subject.MotionTable = ""
	if cfg.MetricsAvailable() {
		t.Error("Expected metrics unavailable without a motion table")
	}
}
