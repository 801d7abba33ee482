package connectome

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"boldpipe/internal/models"
)

// Graph is the weighted undirected functional connectivity graph: one
// node per region, edge weights the Pearson correlation of region time
// series. Zero-variance regions produce NaN weights; NaN is carried,
// never coerced to zero, so failed regions stay visible downstream.
type Graph struct {
	// Regions are the nodes, ordered by ID.
	Regions []Region

	// weights is the dense N x N matrix; symmetric, diagonal NaN
	// (self-correlation is undefined/excluded).
	weights []float64
}

// Build computes the connectivity graph from the regions x T series
// matrix, using only the retained timepoints.
func Build(series *mat.Dense, regions []Region, retained []int) (*Graph, error) {
	n, frames := series.Dims()
	if n != len(regions) {
		return nil, fmt.Errorf("series matrix has %d rows, %d regions: %w",
			n, len(regions), models.ErrShapeMismatch)
	}
	if len(retained) < 2 {
		return nil, fmt.Errorf("connectome: %d retained timepoints cannot support a correlation", len(retained))
	}
	for _, t := range retained {
		if t < 0 || t >= frames {
			return nil, fmt.Errorf("retained timepoint %d out of range [0, %d): %w",
				t, frames, models.ErrShapeMismatch)
		}
	}

	// Subsample each region's series to the retained frames once.
	sub := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(retained))
		for j, t := range retained {
			row[j] = series.At(i, t)
		}
		sub[i] = row
	}

	g := &Graph{
		Regions: regions,
		weights: make([]float64, n*n),
	}
	for i := 0; i < n; i++ {
		g.weights[i*n+i] = math.NaN()
		for j := i + 1; j < n; j++ {
			w := stat.Correlation(sub[i], sub[j], nil)
			g.weights[i*n+j] = w
			g.weights[j*n+i] = w
		}
	}
	return g, nil
}

// N returns the node count.
func (g *Graph) N() int { return len(g.Regions) }

// Weight returns the edge weight between nodes i and j. The diagonal
// is NaN.
func (g *Graph) Weight(i, j int) float64 {
	return g.weights[i*g.N()+j]
}

// Dense returns the connectivity matrix as a dense N x N matrix
// (diagonal NaN), for numeric serialization.
func (g *Graph) Dense() *mat.Dense {
	n := g.N()
	data := make([]float64, len(g.weights))
	copy(data, g.weights)
	return mat.NewDense(n, n, data)
}
