// Package motion derives per-timepoint head-motion quality metrics
// from motion-parameter tables and functional volumes: framewise
// displacement (FD) and DVARS.
//
// Indexing convention: both series have length T with a leading zero
// sentinel at t=0 ("no prior frame"); for t >= 1, the value reflects
// the transition from frame t-1 to frame t. Downstream scrubbing
// therefore indexes FD and DVARS directly by timepoint.
package motion

import (
	"fmt"
	"math"

	"boldpipe/internal/models"
)

// FramewiseDisplacement computes FD[t] = sum of absolute componentwise
// differences between motion rows t-1 and t, with FD[0] = 0. The
// result is deterministic and non-negative.
func FramewiseDisplacement(mp *models.MotionParams) []float64 {
	fd := make([]float64, mp.Rows)
	for t := 1; t < mp.Rows; t++ {
		prev := mp.Row(t - 1)
		cur := mp.Row(t)
		acc := 0.0
		for c := range cur {
			acc += math.Abs(cur[c] - prev[c])
		}
		fd[t] = acc
	}
	return fd
}

// DVARS computes DVARS[t] = sqrt(mean over in-mask voxels of squared
// intensity differences between frames t-1 and t), with DVARS[0] = 0.
// Every voxel with a positive label is in-mask; an empty mask yields a
// NaN series (degeneracy is propagated, not coerced to zero).
func DVARS(vol *models.Volume4D, mask *models.Mask3D) ([]float64, error) {
	if err := vol.CheckSpatial(mask); err != nil {
		return nil, fmt.Errorf("dvars: %w", err)
	}

	sums := make([]float64, vol.T)
	count := 0
	for vi, label := range mask.Labels {
		if label <= 0 {
			continue
		}
		series := vol.Series(vi)
		for t := 1; t < len(series); t++ {
			d := series[t] - series[t-1]
			sums[t] += d * d
		}
		count++
	}

	dvars := make([]float64, vol.T)
	for t := 1; t < vol.T; t++ {
		dvars[t] = math.Sqrt(sums[t] / float64(count))
	}
	return dvars, nil
}

// Metrics computes FD and DVARS together, checking that the motion
// table covers every frame of the volume.
func Metrics(mp *models.MotionParams, vol *models.Volume4D, mask *models.Mask3D) (fd, dvars []float64, err error) {
	if mp.Rows != vol.T {
		return nil, nil, fmt.Errorf("motion table has %d rows, volume has %d frames: %w",
			mp.Rows, vol.T, models.ErrShapeMismatch)
	}
	dvars, err = DVARS(vol, mask)
	if err != nil {
		return nil, nil, err
	}
	return FramewiseDisplacement(mp), dvars, nil
}
