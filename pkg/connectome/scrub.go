package connectome

import (
	"fmt"

	"boldpipe/internal/models"
)

// ScrubOptions controls motion scrubbing of the correlation input.
type ScrubOptions struct {
	// Enabled turns scrubbing on; it is still silently disabled when
	// FD or DVARS are unavailable.
	Enabled bool

	// FDThreshold excludes timepoints whose framewise displacement
	// exceeds it.
	FDThreshold float64

	// DVARSThreshold excludes timepoints whose DVARS exceeds it.
	DVARSThreshold float64
}

// RetainedTimepoints returns the sorted indices of timepoints that
// survive scrubbing: t is excluded when FD[t] > FDThreshold OR
// DVARS[t] > DVARSThreshold. When scrubbing is disabled, or either
// series is nil, every timepoint is retained. Series lengths must
// match the frame count when provided.
func RetainedTimepoints(frames int, fd, dvars []float64, opts ScrubOptions) ([]int, error) {
	all := func() []int {
		idx := make([]int, frames)
		for t := range idx {
			idx[t] = t
		}
		return idx
	}

	if !opts.Enabled || fd == nil || dvars == nil {
		return all(), nil
	}
	if len(fd) != frames {
		return nil, fmt.Errorf("fd series has %d entries, volume has %d frames: %w",
			len(fd), frames, models.ErrShapeMismatch)
	}
	if len(dvars) != frames {
		return nil, fmt.Errorf("dvars series has %d entries, volume has %d frames: %w",
			len(dvars), frames, models.ErrShapeMismatch)
	}

	idx := make([]int, 0, frames)
	for t := 0; t < frames; t++ {
		if fd[t] > opts.FDThreshold || dvars[t] > opts.DVARSThreshold {
			continue
		}
		idx = append(idx, t)
	}
	return idx, nil
}

// RetainedAsFloat converts the retained index to float64 for numeric
// side-output serialization.
func RetainedAsFloat(idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, v := range idx {
		out[i] = float64(v)
	}
	return out
}
