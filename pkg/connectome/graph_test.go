package connectome

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testRegions(n int) []Region {
	regions := make([]Region, n)
	for i := range regions {
		regions[i] = Region{ID: i, Label: int32(i + 1), Name: "r"}
	}
	return regions
}

func allTimepoints(frames int) []int {
	idx := make([]int, frames)
	for t := range idx {
		idx[t] = t
	}
	return idx
}

// TestBuildSymmetry verifies the matrix is symmetric with a NaN
// diagonal.
func TestBuildSymmetry(t *testing.T) {
	const n, frames = 4, 25
	series := mat.NewDense(n, frames, nil)
	for i := 0; i < n; i++ {
		for f := 0; f < frames; f++ {
			series.Set(i, f, math.Sin(float64(f)*0.3+float64(i)))
		}
	}

	g, err := Build(series, testRegions(n), allTimepoints(frames))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for i := 0; i < n; i++ {
		if !math.IsNaN(g.Weight(i, i)) {
			t.Errorf("Diagonal (%d,%d) = %g, expected NaN", i, i, g.Weight(i, i))
		}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if math.Abs(g.Weight(i, j)-g.Weight(j, i)) > 1e-10 {
				t.Errorf("Asymmetric weights at (%d,%d): %g vs %g", i, j, g.Weight(i, j), g.Weight(j, i))
			}
			if g.Weight(i, j) < -1-1e-10 || g.Weight(i, j) > 1+1e-10 {
				t.Errorf("Weight (%d,%d) = %g outside [-1, 1]", i, j, g.Weight(i, j))
			}
		}
	}
}

// TestBuildIdenticalSeries verifies two regions with the same series
// correlate at 1.
func TestBuildIdenticalSeries(t *testing.T) {
	const frames = 20
	series := mat.NewDense(2, frames, nil)
	for f := 0; f < frames; f++ {
		v := math.Cos(float64(f) * 0.5)
		series.Set(0, f, v)
		series.Set(1, f, v)
	}

	g, err := Build(series, testRegions(2), allTimepoints(frames))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if math.Abs(g.Weight(0, 1)-1) > 1e-12 {
		t.Errorf("Identical series correlate at %g, expected 1", g.Weight(0, 1))
	}
}

// TestBuildScrubbingEquivalence verifies that scrubbing by retained
// index is exactly equivalent to deleting the excluded frames before
// the correlation.
func TestBuildScrubbingEquivalence(t *testing.T) {
	const n, frames = 3, 30
	series := mat.NewDense(n, frames, nil)
	for i := 0; i < n; i++ {
		for f := 0; f < frames; f++ {
			series.Set(i, f, math.Sin(float64(f)*0.4*float64(i+1))+0.1*float64(f%5))
		}
	}

	retained := []int{0, 1, 2, 5, 6, 9, 11, 14, 15, 20, 22, 28}

	scrubbed, err := Build(series, testRegions(n), retained)
	if err != nil {
		t.Fatalf("Build (scrubbed) failed: %v", err)
	}

	manual := mat.NewDense(n, len(retained), nil)
	for i := 0; i < n; i++ {
		for j, f := range retained {
			manual.Set(i, j, series.At(i, f))
		}
	}
	reference, err := Build(manual, testRegions(n), allTimepoints(len(retained)))
	if err != nil {
		t.Fatalf("Build (manual) failed: %v", err)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if scrubbed.Weight(i, j) != reference.Weight(i, j) {
				t.Errorf("Weight (%d,%d): scrubbed %g vs manual %g", i, j,
					scrubbed.Weight(i, j), reference.Weight(i, j))
			}
		}
	}
}

// TestBuildNaNPropagation verifies a zero-variance region yields NaN
// edges, never zero.
func TestBuildNaNPropagation(t *testing.T) {
	const frames = 10
	series := mat.NewDense(2, frames, nil)
	for f := 0; f < frames; f++ {
		series.Set(0, f, 5) // constant, zero variance
		series.Set(1, f, float64(f))
	}

	g, err := Build(series, testRegions(2), allTimepoints(frames))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !math.IsNaN(g.Weight(0, 1)) {
		t.Errorf("Zero-variance edge = %g, expected NaN", g.Weight(0, 1))
	}
}

// TestBuildErrors verifies row-count and retained-index validation.
func TestBuildErrors(t *testing.T) {
	series := mat.NewDense(2, 10, nil)

	if _, err := Build(series, testRegions(3), allTimepoints(10)); err == nil {
		t.Error("Expected error for region/row count mismatch")
	}
	if _, err := Build(series, testRegions(2), []int{0}); err == nil {
		t.Error("Expected error for a single retained timepoint")
	}
	if _, err := Build(series, testRegions(2), []int{0, 10}); err == nil {
		t.Error("Expected error for out-of-range retained timepoint")
	}
}
