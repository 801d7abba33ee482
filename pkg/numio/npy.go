// Package numio persists the pipeline's numeric side outputs: NumPy
// .npy arrays for portability and MATLAB Level 5 .mat files for
// MATLAB-based downstream analysis.
package numio

import (
	"fmt"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"
)

// WriteVectorNpy writes a 1-D float64 array to a .npy file.
func WriteVectorNpy(path string, v []float64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("open npy %s: %w", path, err)
	}
	w.Shape = []int{len(v)}
	w.Version = 2
	if err := w.WriteFloat64(v); err != nil {
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	return nil
}

// WriteMatrixNpy writes a dense row-major matrix to a .npy file.
func WriteMatrixNpy(path string, m *mat.Dense) error {
	rows, cols := m.Dims()
	raw := m.RawMatrix()

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("open npy %s: %w", path, err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2
	if err := w.WriteFloat64(raw.Data); err != nil {
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	return nil
}

// ReadVectorNpy reads a 1-D float64 array from a .npy file. A column
// vector (n x 1) is accepted and flattened.
func ReadVectorNpy(path string) ([]float64, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open npy %s: %w", path, err)
	}
	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("read npy %s: %w", path, err)
	}
	if len(r.Shape) > 1 {
		for _, d := range r.Shape[1:] {
			if d != 1 {
				return nil, fmt.Errorf("npy %s: expected a vector, got shape %v", path, r.Shape)
			}
		}
	}
	return data, nil
}

// ReadMatrixNpy reads a dense 2-D float64 matrix from a .npy file.
func ReadMatrixNpy(path string) (*mat.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open npy %s: %w", path, err)
	}
	if len(r.Shape) != 2 {
		return nil, fmt.Errorf("npy %s: expected a 2-D array, got shape %v", path, r.Shape)
	}
	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("read npy %s: %w", path, err)
	}
	return mat.NewDense(r.Shape[0], r.Shape[1], data), nil
}
