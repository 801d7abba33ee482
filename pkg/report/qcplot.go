// Package report renders quality-control artifacts for a pipeline run:
// FD and DVARS line plots with their scrub thresholds.
package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveMetricPlot renders one per-timepoint metric series as a PNG line
// plot with an optional horizontal threshold line (threshold <= 0
// omits it).
func SaveMetricPlot(path, title, yLabel string, series []float64, threshold float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Timepoint"
	p.Y.Label.Text = yLabel

	pts := make(plotter.XYs, 0, len(series))
	for t, v := range series {
		pts = append(pts, plotter.XY{X: float64(t), Y: v})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("qc plot %s: %w", path, err)
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(yLabel, line)

	if threshold > 0 && len(series) > 0 {
		thr := plotter.XYs{
			{X: 0, Y: threshold},
			{X: float64(len(series) - 1), Y: threshold},
		}
		thrLine, err := plotter.NewLine(thr)
		if err != nil {
			return fmt.Errorf("qc plot %s: %w", path, err)
		}
		thrLine.Width = vg.Points(1)
		thrLine.Color = color.RGBA{R: 200, A: 255}
		thrLine.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(thrLine)
		p.Legend.Add("threshold", thrLine)
	}

	p.Legend.Top = true
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("qc plot %s: %w", path, err)
	}
	return nil
}

// SaveMotionPlots renders the FD and DVARS plots into dir and returns
// the written paths.
func SaveMotionPlots(dir string, fd, dvars []float64, fdThr, dvarsThr float64) ([]string, error) {
	fdPath := filepath.Join(dir, "FD.png")
	if err := SaveMetricPlot(fdPath, "Framewise displacement", "FD (mm)", fd, fdThr); err != nil {
		return nil, err
	}
	dvarsPath := filepath.Join(dir, "DVARS.png")
	if err := SaveMetricPlot(dvarsPath, "DVARS", "DVARS", dvars, dvarsThr); err != nil {
		return nil, err
	}
	return []string{fdPath, dvarsPath}, nil
}
