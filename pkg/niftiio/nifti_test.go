package niftiio

import "testing"

// TestRoundLabel verifies nearest-integer rounding, including negative
// intensities, which must not collapse toward zero.
func TestRoundLabel(t *testing.T) {
	cases := []struct {
		in   float32
		want int32
	}{
		{0, 0},
		{0.4, 0},
		{0.5, 1},
		{2.6, 3},
		{83.49, 83},
		{-0.4, 0},
		{-0.6, -1},
		{-1.5, -2},
		{-2.4, -2},
	}
	for _, tc := range cases {
		if got := roundLabel(tc.in); got != tc.want {
			t.Errorf("roundLabel(%g) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
