// Package config provides configuration loading and validation for
// boldpipe. It handles loading configuration from YAML files, provides
// default values and enforces the pipeline's configuration-time
// preconditions (every selected nuisance source must name its mask).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"boldpipe/internal/models"
)

// Parcellation names one resolution ("scale") of a multi-resolution
// atlas registered to functional space.
type Parcellation struct {
	// Scale is the short identifier used in output filenames
	// (e.g. "scale1").
	Scale string `yaml:"scale"`

	// Volume is the path to the labelled parcellation NIfTI volume.
	Volume string `yaml:"volume"`

	// Labels is an optional path to a tab-separated region table
	// (label, name). When empty, region names are synthesized from
	// the label values.
	Labels string `yaml:"labels"`
}

// Config represents the full pipeline configuration loaded from YAML.
type Config struct {
	// Subject groups the per-run input files.
	Subject struct {
		// BOLD is the path to the raw 4D functional volume.
		BOLD string `yaml:"bold"`

		// BrainMask is the eroded whole-brain mask registered to
		// functional space. Required when nuisance.global is set.
		BrainMask string `yaml:"brainMask"`

		// CSFMask is the eroded CSF mask. Required when nuisance.csf
		// is set.
		CSFMask string `yaml:"csfMask"`

		// WMMask is the eroded white-matter mask. Required when
		// nuisance.wm is set and for DVARS computation.
		WMMask string `yaml:"wmMask"`

		// MotionTable is the whitespace-delimited motion-parameter
		// table from motion correction. Required when nuisance.motion
		// is set and for FD computation.
		MotionTable string `yaml:"motionTable"`

		// Parcellations lists the atlas scales; the first entry also
		// restricts which voxels the regression and detrending stages
		// touch.
		Parcellations []Parcellation `yaml:"parcellations"`
	} `yaml:"subject"`

	// Functional groups the numeric stage parameters.
	Functional struct {
		// DiscardFrames is the number of leading frames dropped before
		// any other processing.
		DiscardFrames int `yaml:"discardFrames"`

		// TrimMotionTable re-aligns the motion table to the
		// frame-discarded volume by dropping its leading rows. When
		// false the table is used as-is and a row-count mismatch is a
		// fatal error at regression time.
		TrimMotionTable bool `yaml:"trimMotionTable"`

		// Nuisance selects which signals are regressed out.
		Nuisance struct {
			Global bool `yaml:"global"`
			CSF    bool `yaml:"csf"`
			WM     bool `yaml:"wm"`
			Motion bool `yaml:"motion"`

			// MotionRegressors is the motion column tier: 6, 12, 24
			// or 36.
			MotionRegressors int `yaml:"motionRegressors"`
		} `yaml:"nuisance"`

		// Detrending removes a polynomial trend per voxel.
		Detrending struct {
			Enabled bool `yaml:"enabled"`

			// Order is one of "linear", "quadratic", "cubic".
			Order string `yaml:"order"`
		} `yaml:"detrending"`

		// Bandpass configures the external frequency-filtering tool.
		Bandpass struct {
			Enabled bool `yaml:"enabled"`

			// Binary is the external tool executable (default
			// "3dBandpass").
			Binary string `yaml:"binary"`

			// Highpass and Lowpass are the band edges in Hz.
			Highpass float64 `yaml:"highpass"`
			Lowpass  float64 `yaml:"lowpass"`

			// TR is the repetition time in seconds; 0 lets the tool
			// read it from the volume header.
			TR float64 `yaml:"tr"`
		} `yaml:"bandpass"`
	} `yaml:"functional"`

	// Connectome groups the connectivity-matrix parameters.
	Connectome struct {
		// ApplyScrubbing excludes high-motion timepoints from the
		// correlation computation. Silently disabled when FD/DVARS
		// are unavailable.
		ApplyScrubbing bool `yaml:"applyScrubbing"`

		// FDThreshold flags timepoints with framewise displacement
		// above this value (mm).
		FDThreshold float64 `yaml:"fdThreshold"`

		// DVARSThreshold flags timepoints with DVARS above this value.
		DVARSThreshold float64 `yaml:"dvarsThreshold"`

		// OutputFormats selects the matrix serializations; subset of
		// {"tsv", "npy", "mat", "graphml"}.
		OutputFormats []string `yaml:"outputFormats"`
	} `yaml:"connectome"`

	// Output groups run-level parameters.
	Output struct {
		// Dir is the directory receiving all stage outputs and the
		// artifact ledger.
		Dir string `yaml:"dir"`

		// Workers is the number of goroutines used by the per-voxel
		// stages.
		Workers int `yaml:"workers"`

		// QCPlots renders FD/DVARS line plots next to the numeric
		// series.
		QCPlots bool `yaml:"qcPlots"`
	} `yaml:"output"`

	// Logging controls the structured logger.
	Logging struct {
		// Level is one of "debug", "info", "warn", "error".
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Functional.DiscardFrames = 5
	cfg.Functional.TrimMotionTable = true
	cfg.Functional.Nuisance.CSF = true
	cfg.Functional.Nuisance.WM = true
	cfg.Functional.Nuisance.Motion = true
	cfg.Functional.Nuisance.MotionRegressors = 36
	cfg.Functional.Detrending.Enabled = true
	cfg.Functional.Detrending.Order = "linear"
	cfg.Functional.Bandpass.Binary = "3dBandpass"
	cfg.Functional.Bandpass.Highpass = 0.01
	cfg.Functional.Bandpass.Lowpass = 0.1

	cfg.Connectome.FDThreshold = 0.2
	cfg.Connectome.DVARSThreshold = 4.0
	cfg.Connectome.OutputFormats = []string{"tsv"}

	cfg.Output.Dir = "derivatives"
	cfg.Output.Workers = runtime.NumCPU()
	cfg.Output.QCPlots = true

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

var validMotionTiers = map[int]bool{6: true, 12: true, 24: true, 36: true}

var validDetrendOrders = map[string]bool{"linear": true, "quadratic": true, "cubic": true}

var validOutputFormats = map[string]bool{"tsv": true, "npy": true, "mat": true, "graphml": true}

// Validate enforces the configuration-time preconditions. Every
// selected nuisance source must name its seed data; violations are
// blocking errors, reported before any array computation begins.
func (cfg *Config) Validate() error {
	if cfg.Subject.BOLD == "" {
		return fmt.Errorf("subject.bold: %w", models.ErrMissingInput)
	}
	if len(cfg.Subject.Parcellations) == 0 {
		return fmt.Errorf("subject.parcellations: %w", models.ErrMissingInput)
	}
	for i, p := range cfg.Subject.Parcellations {
		if p.Scale == "" {
			return fmt.Errorf("subject.parcellations[%d].scale: %w", i, models.ErrMissingInput)
		}
		if p.Volume == "" {
			return fmt.Errorf("subject.parcellations[%d] (%s) volume: %w", i, p.Scale, models.ErrMissingInput)
		}
	}

	nuis := cfg.Functional.Nuisance
	if nuis.Global && cfg.Subject.BrainMask == "" {
		return fmt.Errorf("global nuisance selected but subject.brainMask is empty: %w", models.ErrMissingInput)
	}
	if nuis.CSF && cfg.Subject.CSFMask == "" {
		return fmt.Errorf("csf nuisance selected but subject.csfMask is empty: %w", models.ErrMissingInput)
	}
	if nuis.WM && cfg.Subject.WMMask == "" {
		return fmt.Errorf("wm nuisance selected but subject.wmMask is empty: %w", models.ErrMissingInput)
	}
	if nuis.Motion && cfg.Subject.MotionTable == "" {
		return fmt.Errorf("motion nuisance selected but subject.motionTable is empty: %w", models.ErrMissingInput)
	}
	if nuis.Motion && !validMotionTiers[nuis.MotionRegressors] {
		return fmt.Errorf("nuisance.motionRegressors must be 6, 12, 24 or 36, got %d", nuis.MotionRegressors)
	}

	if cfg.Functional.DiscardFrames < 0 {
		return fmt.Errorf("functional.discardFrames must be >= 0, got %d", cfg.Functional.DiscardFrames)
	}

	if cfg.Functional.Detrending.Enabled && !validDetrendOrders[cfg.Functional.Detrending.Order] {
		return fmt.Errorf("detrending.order must be linear, quadratic or cubic, got %q", cfg.Functional.Detrending.Order)
	}

	bp := cfg.Functional.Bandpass
	if bp.Enabled {
		if bp.Binary == "" {
			return fmt.Errorf("bandpass enabled but bandpass.binary is empty: %w", models.ErrMissingInput)
		}
		if bp.Highpass < 0 || bp.Lowpass <= bp.Highpass {
			return fmt.Errorf("bandpass band [%g, %g] is not a valid frequency range", bp.Highpass, bp.Lowpass)
		}
	}

	if cfg.Connectome.ApplyScrubbing {
		if cfg.Connectome.FDThreshold <= 0 {
			return fmt.Errorf("connectome.fdThreshold must be > 0, got %g", cfg.Connectome.FDThreshold)
		}
		if cfg.Connectome.DVARSThreshold <= 0 {
			return fmt.Errorf("connectome.dvarsThreshold must be > 0, got %g", cfg.Connectome.DVARSThreshold)
		}
	}

	if len(cfg.Connectome.OutputFormats) == 0 {
		return fmt.Errorf("connectome.outputFormats: %w", models.ErrMissingInput)
	}
	for _, f := range cfg.Connectome.OutputFormats {
		if !validOutputFormats[f] {
			return fmt.Errorf("connectome.outputFormats: unsupported format %q", f)
		}
	}

	if cfg.Output.Workers < 1 {
		return fmt.Errorf("output.workers must be >= 1, got %d", cfg.Output.Workers)
	}

	return nil
}

// MetricsAvailable reports whether the inputs needed for FD/DVARS
// computation are configured. Scrubbing is silently disabled when they
// are not.
func (cfg *Config) MetricsAvailable() bool {
	return cfg.Subject.MotionTable != "" && cfg.Subject.WMMask != ""
}
