package connectome

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"boldpipe/internal/models"
)

// RegionSeries averages the volume inside each region of the
// parcellation, producing the regions x T time-series matrix. A region
// with no voxels in the parcellation yields a NaN row.
func RegionSeries(vol *models.Volume4D, parcellation *models.Mask3D, regions []Region) (*mat.Dense, error) {
	if err := vol.CheckSpatial(parcellation); err != nil {
		return nil, fmt.Errorf("region series: %w", err)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("region series: no regions: %w", models.ErrMissingInput)
	}

	rowOf := make(map[int32]int, len(regions))
	for _, r := range regions {
		rowOf[r.Label] = r.ID
	}

	sums := mat.NewDense(len(regions), vol.T, nil)
	counts := make([]int, len(regions))
	for vi, label := range parcellation.Labels {
		if label <= 0 {
			continue
		}
		row, ok := rowOf[label]
		if !ok {
			continue
		}
		series := vol.Series(vi)
		for t, v := range series {
			sums.Set(row, t, sums.At(row, t)+v)
		}
		counts[row]++
	}

	for row, n := range counts {
		for t := 0; t < vol.T; t++ {
			sums.Set(row, t, sums.At(row, t)/float64(n))
		}
	}
	return sums, nil
}
