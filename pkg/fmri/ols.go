package fmri

import (
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"boldpipe/internal/models"
)

// Residualizer removes the span of a fixed design matrix from
// T-length series by ordinary least squares. The pseudo-inverse
// projector X⁺ is computed once; applying it per series costs two
// small matrix-vector products, which keeps the per-voxel loop cheap.
type Residualizer struct {
	t, k int
	// x is the design matrix, row-major.
	x []float64
	// proj is the pseudo-inverse X⁺, row-major k x T.
	proj []float64
}

// NewResidualizer factors the design matrix. Collinear regressors are
// handled through the pseudo-inverse: the projection onto the column
// space is unique even when the coefficients are not, so a constant
// motion column or a redundant regressor never aborts the fit.
func NewResidualizer(x *mat.Dense) (*Residualizer, error) {
	t, k := x.Dims()
	if t <= k {
		return nil, fmt.Errorf("design matrix has %d frames for %d regressors; system is underdetermined", t, k)
	}

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, fmt.Errorf("design matrix SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	// Singular values below the machine-epsilon cutoff count as zero:
	// those directions are dropped rather than amplified.
	tol := float64(t) * 2.220446049250313e-16 * s[0]
	scaled := mat.NewDense(k, k, nil)
	for j := 0; j < k; j++ {
		if s[j] <= tol {
			continue
		}
		inv := 1 / s[j]
		for i := 0; i < k; i++ {
			scaled.Set(i, j, v.At(i, j)*inv)
		}
	}

	var proj mat.Dense
	proj.Mul(scaled, u.T())

	r := &Residualizer{
		t:    t,
		k:    k,
		x:    make([]float64, t*k),
		proj: make([]float64, k*t),
	}
	copy(r.x, x.RawMatrix().Data)
	copy(r.proj, proj.RawMatrix().Data)
	return r, nil
}

// Frames returns the design's row count.
func (r *Residualizer) Frames() int { return r.t }

// ResidualsInto writes the OLS residuals of y into dst. dst and y may
// alias. beta is caller-provided scratch of length k (pass nil to
// allocate).
func (r *Residualizer) ResidualsInto(dst, y, beta []float64) error {
	if len(y) != r.t || len(dst) != r.t {
		return fmt.Errorf("series length %d, design has %d frames: %w", len(y), r.t, models.ErrShapeMismatch)
	}
	if beta == nil {
		beta = make([]float64, r.k)
	}

	for j := 0; j < r.k; j++ {
		acc := 0.0
		row := r.proj[j*r.t : (j+1)*r.t]
		for t, v := range y {
			acc += row[t] * v
		}
		beta[j] = acc
	}

	for t := 0; t < r.t; t++ {
		fit := 0.0
		row := r.x[t*r.k : (t+1)*r.k]
		for j, b := range beta {
			fit += row[j] * b
		}
		dst[t] = y[t] - fit
	}
	return nil
}

// residualizeMasked applies the residualizer to every voxel of vol
// whose mask label is non-zero, in parallel, and returns a new volume.
// Voxels with label 0 are copied through unchanged. Voxel independence
// makes the partitioning safe without synchronization beyond the final
// wait.
func residualizeMasked(vol *models.Volume4D, mask *models.Mask3D, r *Residualizer, workers int) (*models.Volume4D, error) {
	if err := vol.CheckSpatial(mask); err != nil {
		return nil, err
	}
	if vol.T != r.t {
		return nil, fmt.Errorf("volume has %d frames, design has %d: %w", vol.T, r.t, models.ErrShapeMismatch)
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	out := vol.Clone()
	voxels := vol.VoxelCount()
	chunk := (voxels + workers - 1) / workers

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > voxels {
			hi = voxels
		}
		if lo >= hi {
			break
		}

		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			beta := make([]float64, r.k)
			for vi := lo; vi < hi; vi++ {
				if mask.Labels[vi] == 0 {
					continue
				}
				series := out.Series(vi)
				if err := r.ResidualsInto(series, series, beta); err != nil {
					errs[w] = err
					return
				}
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
