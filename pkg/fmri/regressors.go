package fmri

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"boldpipe/internal/models"
)

// MotionTier selects how many motion-derived regressor columns are
// used. Tiers nest: each larger tier's leading columns equal the
// smaller tier's columns exactly.
type MotionTier int

const (
	// MotionRaw uses the 6 rigid-motion parameters.
	MotionRaw MotionTier = 6
	// MotionSquares adds their squares (12 columns).
	MotionSquares MotionTier = 12
	// MotionDerivatives adds the first backward difference and its
	// square (24 columns).
	MotionDerivatives MotionTier = 24
	// MotionSecondDerivatives adds the second difference and its
	// square (36 columns).
	MotionSecondDerivatives MotionTier = 36
)

// ParseMotionTier validates a configured column count.
func ParseMotionTier(n int) (MotionTier, error) {
	switch MotionTier(n) {
	case MotionRaw, MotionSquares, MotionDerivatives, MotionSecondDerivatives:
		return MotionTier(n), nil
	}
	return 0, fmt.Errorf("motion regressor tier must be 6, 12, 24 or 36, got %d", n)
}

// MotionRegressors expands a motion-parameter table into the selected
// tier of mean-centered regressor columns. Column blocks, in order:
// raw, squares, first difference, squared first difference, second
// difference, squared second difference. Differences are backward
// differences with zero rows where no prior frame exists.
func MotionRegressors(mp *models.MotionParams, tier MotionTier) (*mat.Dense, error) {
	if _, err := ParseMotionTier(int(tier)); err != nil {
		return nil, err
	}

	t := mp.Rows
	p := mp.Cols

	raw := tableColumns(mp)
	blocks := [][][]float64{raw}

	if tier >= MotionSquares {
		blocks = append(blocks, squared(raw))
	}
	if tier >= MotionDerivatives {
		d1 := diff(raw)
		blocks = append(blocks, d1, squared(d1))
	}
	if tier >= MotionSecondDerivatives {
		d2 := diff(diff(raw))
		blocks = append(blocks, d2, squared(d2))
	}

	out := mat.NewDense(t, len(blocks)*p, nil)
	col := 0
	for _, block := range blocks {
		for _, c := range block {
			centered := make([]float64, t)
			copy(centered, c)
			Center(centered)
			out.SetCol(col, centered)
			col++
		}
	}
	return out, nil
}

// tableColumns extracts the table as column slices.
func tableColumns(mp *models.MotionParams) [][]float64 {
	cols := make([][]float64, mp.Cols)
	for c := range cols {
		col := make([]float64, mp.Rows)
		for r := 0; r < mp.Rows; r++ {
			col[r] = mp.At(r, c)
		}
		cols[c] = col
	}
	return cols
}

// diff computes per-column backward differences; row 0 has no prior
// frame and is zero.
func diff(cols [][]float64) [][]float64 {
	out := make([][]float64, len(cols))
	for i, c := range cols {
		d := make([]float64, len(c))
		for t := 1; t < len(c); t++ {
			d[t] = c[t] - c[t-1]
		}
		out[i] = d
	}
	return out
}

// squared squares every element per column.
func squared(cols [][]float64) [][]float64 {
	out := make([][]float64, len(cols))
	for i, c := range cols {
		s := make([]float64, len(c))
		for t, v := range c {
			s[t] = v * v
		}
		out[i] = s
	}
	return out
}

// AssembleDesign stacks the selected mean-centered signal columns, the
// motion regressor block (may be nil) and a trailing intercept column
// into a T x k design matrix.
func AssembleDesign(t int, signals [][]float64, motion *mat.Dense) (*mat.Dense, error) {
	k := 1 // intercept
	for i, s := range signals {
		if len(s) != t {
			return nil, fmt.Errorf("design signal %d has %d rows, volume has %d frames: %w",
				i, len(s), t, models.ErrShapeMismatch)
		}
		k++
	}
	if motion != nil {
		mr, mc := motion.Dims()
		if mr != t {
			return nil, fmt.Errorf("motion regressors have %d rows, volume has %d frames: %w",
				mr, t, models.ErrShapeMismatch)
		}
		k += mc
	}

	x := mat.NewDense(t, k, nil)
	col := 0
	for _, s := range signals {
		x.SetCol(col, s)
		col++
	}
	if motion != nil {
		_, mc := motion.Dims()
		for c := 0; c < mc; c++ {
			x.SetCol(col, mat.Col(nil, c, motion))
			col++
		}
	}
	ones := make([]float64, t)
	for i := range ones {
		ones[i] = 1
	}
	x.SetCol(col, ones)
	return x, nil
}
