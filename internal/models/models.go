// Package models defines the in-memory array types shared by all
// pipeline stages: 4D BOLD volumes, 3D label masks, motion-parameter
// tables and per-timepoint metric series.
package models

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a volume and a mask (or two
// volumes) disagree on their spatial dimensions, or when a motion
// table's row count does not match a volume's frame count.
var ErrShapeMismatch = errors.New("shape mismatch")

// ErrMissingInput is returned when a selected processing option names a
// data source (mask, motion table, metric series) that was not
// provided. It is a configuration-time failure: it must surface before
// any array computation begins.
var ErrMissingInput = errors.New("missing input")

// Volume4D is a 4-dimensional array of intensities indexed by
// (x, y, z, t). Data is stored voxel-major: the full time series of a
// voxel occupies a contiguous slice, which keeps the per-voxel
// regression loops cache-friendly.
type Volume4D struct {
	// Data holds the intensities, one contiguous T-length series per voxel.
	Data []float64

	// X, Y, Z are the spatial dimensions in voxels.
	X, Y, Z int

	// T is the number of acquired frames.
	T int
}

// NewVolume4D allocates a zero-filled volume with the given dimensions.
func NewVolume4D(x, y, z, t int) *Volume4D {
	return &Volume4D{
		Data: make([]float64, x*y*z*t),
		X:    x,
		Y:    y,
		Z:    z,
		T:    t,
	}
}

// VoxelCount returns the number of spatial voxels (X*Y*Z).
func (v *Volume4D) VoxelCount() int {
	return v.X * v.Y * v.Z
}

// VoxelIndex maps spatial coordinates to the flat voxel index used by
// Series. Masks use the same ordering.
func (v *Volume4D) VoxelIndex(x, y, z int) int {
	return (z*v.Y+y)*v.X + x
}

// Series returns the time series of the voxel at flat index vi as a
// view into the volume's backing array.
func (v *Volume4D) Series(vi int) []float64 {
	return v.Data[vi*v.T : (vi+1)*v.T]
}

// SeriesAt returns the time series of the voxel at (x, y, z).
func (v *Volume4D) SeriesAt(x, y, z int) []float64 {
	return v.Series(v.VoxelIndex(x, y, z))
}

// At returns the intensity at (x, y, z, t).
func (v *Volume4D) At(x, y, z, t int) float64 {
	return v.Data[v.VoxelIndex(x, y, z)*v.T+t]
}

// Set stores the intensity at (x, y, z, t).
func (v *Volume4D) Set(x, y, z, t int, value float64) {
	v.Data[v.VoxelIndex(x, y, z)*v.T+t] = value
}

// Clone returns a deep copy. Stages never mutate their input volume;
// they copy, transform the copy and return it.
func (v *Volume4D) Clone() *Volume4D {
	out := &Volume4D{
		Data: make([]float64, len(v.Data)),
		X:    v.X,
		Y:    v.Y,
		Z:    v.Z,
		T:    v.T,
	}
	copy(out.Data, v.Data)
	return out
}

// SameSpatial reports whether the volume and mask agree on (X, Y, Z).
func (v *Volume4D) SameSpatial(m *Mask3D) bool {
	return v.X == m.X && v.Y == m.Y && v.Z == m.Z
}

// CheckSpatial returns ErrShapeMismatch (wrapped with both shapes) when
// the volume and mask spatial dimensions differ.
func (v *Volume4D) CheckSpatial(m *Mask3D) error {
	if !v.SameSpatial(m) {
		return fmt.Errorf("volume %dx%dx%d vs mask %dx%dx%d: %w",
			v.X, v.Y, v.Z, m.X, m.Y, m.Z, ErrShapeMismatch)
	}
	return nil
}

// Mask3D is a 3-dimensional integer-labelled array with the same
// spatial extent as an associated Volume4D. Tissue masks use label 1;
// parcellations label each voxel with a positive region id, 0 meaning
// background.
type Mask3D struct {
	// Labels holds one label per voxel, in the same flat voxel order
	// as Volume4D.
	Labels []int32

	// X, Y, Z are the spatial dimensions in voxels.
	X, Y, Z int
}

// NewMask3D allocates a zero-filled (all background) mask.
func NewMask3D(x, y, z int) *Mask3D {
	return &Mask3D{
		Labels: make([]int32, x*y*z),
		X:      x,
		Y:      y,
		Z:      z,
	}
}

// VoxelIndex maps spatial coordinates to the flat voxel index.
func (m *Mask3D) VoxelIndex(x, y, z int) int {
	return (z*m.Y+y)*m.X + x
}

// At returns the label at (x, y, z).
func (m *Mask3D) At(x, y, z int) int32 {
	return m.Labels[m.VoxelIndex(x, y, z)]
}

// Set stores the label at (x, y, z).
func (m *Mask3D) Set(x, y, z int, label int32) {
	m.Labels[m.VoxelIndex(x, y, z)] = label
}

// CountLabel returns the number of voxels carrying the given label.
func (m *Mask3D) CountLabel(label int32) int {
	n := 0
	for _, l := range m.Labels {
		if l == label {
			n++
		}
	}
	return n
}

// DistinctLabels returns the sorted distinct positive labels present in
// the mask. Background (0) is never included.
func (m *Mask3D) DistinctLabels() []int32 {
	seen := make(map[int32]struct{})
	for _, l := range m.Labels {
		if l > 0 {
			seen[l] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// MotionParams is the per-frame rigid-motion estimate table produced by
// an external motion-correction tool: one row per acquired frame,
// typically 3 translations followed by 3 rotations.
type MotionParams struct {
	// Data holds the table row-major.
	Data []float64

	// Rows is the number of frames.
	Rows int

	// Cols is the number of motion parameters per frame (usually 6).
	Cols int
}

// NewMotionParams allocates a zero-filled table.
func NewMotionParams(rows, cols int) *MotionParams {
	return &MotionParams{
		Data: make([]float64, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// Row returns row r as a view into the backing array.
func (m *MotionParams) Row(r int) []float64 {
	return m.Data[r*m.Cols : (r+1)*m.Cols]
}

// At returns the value at row r, column c.
func (m *MotionParams) At(r, c int) float64 {
	return m.Data[r*m.Cols+c]
}

// Set stores the value at row r, column c.
func (m *MotionParams) Set(r, c int, value float64) {
	m.Data[r*m.Cols+c] = value
}

// Clone returns a deep copy of the table.
func (m *MotionParams) Clone() *MotionParams {
	out := NewMotionParams(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}
