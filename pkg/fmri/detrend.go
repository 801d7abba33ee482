package fmri

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"boldpipe/internal/models"
)

// DetrendOrder is the polynomial order of the trend removed per voxel.
type DetrendOrder string

const (
	DetrendLinear    DetrendOrder = "linear"
	DetrendQuadratic DetrendOrder = "quadratic"
	DetrendCubic     DetrendOrder = "cubic"
)

// Degree returns the polynomial degree for the order.
func (o DetrendOrder) Degree() (int, error) {
	switch o {
	case DetrendLinear:
		return 1, nil
	case DetrendQuadratic:
		return 2, nil
	case DetrendCubic:
		return 3, nil
	}
	return 0, fmt.Errorf("detrend order must be linear, quadratic or cubic, got %q", o)
}

// Detrend fits and removes a polynomial trend of the chosen order along
// the time axis of every voxel whose parcellation label is non-zero.
// Voxels with label 0 are copied through untouched, not zeroed. The
// output has the input's shape.
func Detrend(vol *models.Volume4D, parcellation *models.Mask3D, order DetrendOrder, workers int) (*models.Volume4D, error) {
	deg, err := order.Degree()
	if err != nil {
		return nil, err
	}
	if err := vol.CheckSpatial(parcellation); err != nil {
		return nil, fmt.Errorf("detrend: %w", err)
	}

	design, err := polynomialDesign(vol.T, deg)
	if err != nil {
		return nil, fmt.Errorf("detrend: %w", err)
	}
	res, err := NewResidualizer(design)
	if err != nil {
		return nil, fmt.Errorf("detrend: %w", err)
	}

	out, err := residualizeMasked(vol, parcellation, res, workers)
	if err != nil {
		return nil, fmt.Errorf("detrend: %w", err)
	}
	return out, nil
}

// polynomialDesign builds the T x (deg+1) basis [s, s², …, 1] with the
// time axis rescaled to [-1, 1]. The rescaling keeps the Gram matrix
// well conditioned for cubic fits over long runs.
func polynomialDesign(t, deg int) (*mat.Dense, error) {
	if t < deg+2 {
		return nil, fmt.Errorf("%d frames cannot support an order-%d trend fit", t, deg)
	}

	x := mat.NewDense(t, deg+1, nil)
	for i := 0; i < t; i++ {
		s := 0.0
		if t > 1 {
			s = 2*float64(i)/float64(t-1) - 1
		}
		p := s
		for d := 0; d < deg; d++ {
			x.Set(i, d, p)
			p *= s
		}
		x.Set(i, deg, 1)
	}
	return x, nil
}
