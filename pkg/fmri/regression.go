package fmri

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"boldpipe/internal/models"
)

// NuisanceOptions selects which nuisance signals are regressed out of
// every gray-matter voxel.
type NuisanceOptions struct {
	// Global regresses the whole-brain mean signal.
	Global bool
	// CSF regresses the cerebrospinal-fluid mean signal.
	CSF bool
	// WM regresses the white-matter mean signal.
	WM bool
	// Motion regresses the motion-parameter columns.
	Motion bool
	// MotionTier is the motion column tier (6/12/24/36).
	MotionTier MotionTier
	// Workers bounds the voxel-loop parallelism; 0 means NumCPU.
	Workers int
}

// NuisanceInputs carries the data sources the selected options draw
// from. Sources for unselected options may be nil.
type NuisanceInputs struct {
	// Volume is the 4D series to clean.
	Volume *models.Volume4D
	// GM restricts processing to voxels with a non-zero label.
	GM *models.Mask3D
	// Brain, CSF, WM are the tissue seed masks (label 1 selects).
	Brain, CSF, WM *models.Mask3D
	// Motion is the motion-parameter table, already aligned to the
	// volume's frame count.
	Motion *models.MotionParams
}

// NuisanceTraces are the mean-centered seed signals that entered the
// design matrix, kept as side outputs. Unselected traces are nil.
type NuisanceTraces struct {
	Global []float64
	CSF    []float64
	WM     []float64
}

// RegressNuisance builds the selected nuisance design and replaces
// every gray-matter voxel's series with its OLS residuals. The output
// volume has the input's shape; voxels outside the gray-matter mask
// are passed through unchanged.
func RegressNuisance(in NuisanceInputs, opts NuisanceOptions) (*models.Volume4D, *NuisanceTraces, error) {
	if in.Volume == nil {
		return nil, nil, fmt.Errorf("nuisance regression: volume: %w", models.ErrMissingInput)
	}
	if in.GM == nil {
		return nil, nil, fmt.Errorf("nuisance regression: gray-matter mask: %w", models.ErrMissingInput)
	}
	if err := in.Volume.CheckSpatial(in.GM); err != nil {
		return nil, nil, fmt.Errorf("nuisance regression: %w", err)
	}
	if !opts.Global && !opts.CSF && !opts.WM && !opts.Motion {
		return nil, nil, fmt.Errorf("nuisance regression: no regressors selected")
	}

	traces := &NuisanceTraces{}
	var signals [][]float64

	if opts.Global {
		if in.Brain == nil {
			return nil, nil, fmt.Errorf("global nuisance selected: brain mask: %w", models.ErrMissingInput)
		}
		s, err := CenteredMeanSeries(in.Volume, in.Brain)
		if err != nil {
			return nil, nil, fmt.Errorf("global signal: %w", err)
		}
		traces.Global = s
		signals = append(signals, s)
	}
	if opts.CSF {
		if in.CSF == nil {
			return nil, nil, fmt.Errorf("csf nuisance selected: csf mask: %w", models.ErrMissingInput)
		}
		s, err := CenteredMeanSeries(in.Volume, in.CSF)
		if err != nil {
			return nil, nil, fmt.Errorf("csf signal: %w", err)
		}
		traces.CSF = s
		signals = append(signals, s)
	}
	if opts.WM {
		if in.WM == nil {
			return nil, nil, fmt.Errorf("wm nuisance selected: wm mask: %w", models.ErrMissingInput)
		}
		s, err := CenteredMeanSeries(in.Volume, in.WM)
		if err != nil {
			return nil, nil, fmt.Errorf("wm signal: %w", err)
		}
		traces.WM = s
		signals = append(signals, s)
	}

	var motionBlock *mat.Dense
	if opts.Motion {
		if in.Motion == nil {
			return nil, nil, fmt.Errorf("motion nuisance selected: motion table: %w", models.ErrMissingInput)
		}
		if in.Motion.Rows != in.Volume.T {
			return nil, nil, fmt.Errorf("motion table has %d rows, volume has %d frames: %w",
				in.Motion.Rows, in.Volume.T, models.ErrShapeMismatch)
		}
		mb, err := MotionRegressors(in.Motion, opts.MotionTier)
		if err != nil {
			return nil, nil, fmt.Errorf("motion regressors: %w", err)
		}
		motionBlock = mb
	}

	design, err := AssembleDesign(in.Volume.T, signals, motionBlock)
	if err != nil {
		return nil, nil, fmt.Errorf("nuisance design: %w", err)
	}

	res, err := NewResidualizer(design)
	if err != nil {
		return nil, nil, fmt.Errorf("nuisance regression: %w", err)
	}

	out, err := residualizeMasked(in.Volume, in.GM, res, opts.Workers)
	if err != nil {
		return nil, nil, fmt.Errorf("nuisance regression: %w", err)
	}
	return out, traces, nil
}
