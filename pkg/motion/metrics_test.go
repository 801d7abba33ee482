package motion

import (
	"errors"
	"math"
	"testing"

	"boldpipe/internal/models"
)

// TestFramewiseDisplacement verifies the hand-computed FD of a small
// table and the leading zero sentinel.
func TestFramewiseDisplacement(t *testing.T) {
	mp := models.NewMotionParams(3, 6)
	copy(mp.Row(1), []float64{1, -1, 0.5, 0, 0, 0})
	copy(mp.Row(2), []float64{1, -1, 0.5, 0.25, 0, 0})

	fd := FramewiseDisplacement(mp)
	want := []float64{0, 2.5, 0.25}
	if len(fd) != 3 {
		t.Fatalf("Expected FD length 3, got %d", len(fd))
	}
	for i := range want {
		if math.Abs(fd[i]-want[i]) > 1e-12 {
			t.Errorf("FD[%d]: got %g, want %g", i, fd[i], want[i])
		}
	}
}

// TestFramewiseDisplacementProperties verifies non-negativity and
// determinism, and that constant motion yields zero FD.
func TestFramewiseDisplacementProperties(t *testing.T) {
	mp := models.NewMotionParams(20, 6)
	for r := 0; r < mp.Rows; r++ {
		for c := 0; c < mp.Cols; c++ {
			mp.Set(r, c, math.Sin(float64(r*c))*math.Cos(float64(r+c)))
		}
	}

	first := FramewiseDisplacement(mp)
	second := FramewiseDisplacement(mp)
	for i := range first {
		if first[i] < 0 {
			t.Errorf("FD[%d] = %g is negative", i, first[i])
		}
		if first[i] != second[i] {
			t.Errorf("FD[%d] differs between identical runs", i)
		}
	}

	still := models.NewMotionParams(5, 6)
	for r := 0; r < still.Rows; r++ {
		copy(still.Row(r), []float64{1, 2, 3, 4, 5, 6})
	}
	for i, v := range FramewiseDisplacement(still) {
		if v != 0 {
			t.Errorf("Constant motion FD[%d] = %g, expected 0", i, v)
		}
	}
}

// TestDVARS verifies a hand-computed single-voxel DVARS series.
func TestDVARS(t *testing.T) {
	vol := models.NewVolume4D(2, 1, 1, 3)
	copy(vol.Series(0), []float64{1, 3, 0})
	copy(vol.Series(1), []float64{7, 7, 7}) // out of mask

	mask := models.NewMask3D(2, 1, 1)
	mask.Labels[0] = 1

	dvars, err := DVARS(vol, mask)
	if err != nil {
		t.Fatalf("DVARS failed: %v", err)
	}
	want := []float64{0, 2, 3}
	for i := range want {
		if math.Abs(dvars[i]-want[i]) > 1e-12 {
			t.Errorf("DVARS[%d]: got %g, want %g", i, dvars[i], want[i])
		}
	}
}

// TestDVARSMeanOverMask verifies the mean runs over every positive
// label, not only label 1.
func TestDVARSMeanOverMask(t *testing.T) {
	vol := models.NewVolume4D(2, 1, 1, 2)
	copy(vol.Series(0), []float64{0, 1}) // diff 1
	copy(vol.Series(1), []float64{0, 7}) // diff 7

	mask := models.NewMask3D(2, 1, 1)
	mask.Labels[0] = 1
	mask.Labels[1] = 5

	dvars, err := DVARS(vol, mask)
	if err != nil {
		t.Fatalf("DVARS failed: %v", err)
	}
	want := math.Sqrt((1 + 49) / 2.0)
	if math.Abs(dvars[1]-want) > 1e-12 {
		t.Errorf("DVARS[1]: got %g, want %g", dvars[1], want)
	}
}

// TestDVARSEmptyMask verifies an empty mask propagates NaN.
func TestDVARSEmptyMask(t *testing.T) {
	vol := models.NewVolume4D(1, 1, 1, 3)
	copy(vol.Series(0), []float64{1, 2, 3})
	mask := models.NewMask3D(1, 1, 1)

	dvars, err := DVARS(vol, mask)
	if err != nil {
		t.Fatalf("DVARS failed: %v", err)
	}
	for i := 1; i < len(dvars); i++ {
		if !math.IsNaN(dvars[i]) {
			t.Errorf("DVARS[%d]: expected NaN for empty mask, got %g", i, dvars[i])
		}
	}
}

// TestMetricsRowMismatch verifies the motion table must cover every
// frame.
func TestMetricsRowMismatch(t *testing.T) {
	vol := models.NewVolume4D(1, 1, 1, 5)
	mask := models.NewMask3D(1, 1, 1)
	mask.Labels[0] = 1
	mp := models.NewMotionParams(4, 6)

	_, _, err := Metrics(mp, vol, mask)
	if !errors.Is(err, models.ErrShapeMismatch) {
		t.Fatalf("Expected ErrShapeMismatch, got %v", err)
	}
}

// TestMetrics verifies both series come back with the volume's frame
// count.
func TestMetrics(t *testing.T) {
	vol := models.NewVolume4D(1, 1, 1, 4)
	copy(vol.Series(0), []float64{1, 2, 1, 2})
	mask := models.NewMask3D(1, 1, 1)
	mask.Labels[0] = 1
	mp := models.NewMotionParams(4, 6)

	fd, dvars, err := Metrics(mp, vol, mask)
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if len(fd) != 4 || len(dvars) != 4 {
		t.Fatalf("Expected series of length 4, got %d and %d", len(fd), len(dvars))
	}
	if fd[0] != 0 || dvars[0] != 0 {
		t.Error("Expected leading zero sentinels")
	}
}
