// Package fmri implements the in-process numeric stages of the
// functional pipeline: masked signal extraction, nuisance-regressor
// assembly, per-voxel least-squares residualization, polynomial
// detrending and frame discarding. All stages are pure transforms:
// they read a volume and return a new one.
package fmri

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"boldpipe/internal/models"
)

// MeanSeries computes the mean intensity across voxels carrying label 1
// at each timepoint. A mask with no selected voxels yields a NaN series
// (degeneracy is propagated, not coerced to zero).
func MeanSeries(vol *models.Volume4D, mask *models.Mask3D) ([]float64, error) {
	if err := vol.CheckSpatial(mask); err != nil {
		return nil, fmt.Errorf("mean series: %w", err)
	}

	sums := make([]float64, vol.T)
	count := 0
	for vi, label := range mask.Labels {
		if label != 1 {
			continue
		}
		series := vol.Series(vi)
		for t, v := range series {
			sums[t] += v
		}
		count++
	}

	for t := range sums {
		sums[t] /= float64(count)
	}
	return sums, nil
}

// CenteredMeanSeries is MeanSeries with the series' own temporal mean
// subtracted, the form used as a nuisance regressor.
func CenteredMeanSeries(vol *models.Volume4D, mask *models.Mask3D) ([]float64, error) {
	series, err := MeanSeries(vol, mask)
	if err != nil {
		return nil, err
	}
	Center(series)
	return series, nil
}

// Center subtracts the mean of v from every element, in place.
func Center(v []float64) {
	m := stat.Mean(v, nil)
	for i := range v {
		v[i] -= m
	}
}
