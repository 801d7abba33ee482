package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"boldpipe/internal/models"
	"boldpipe/pkg/bandpass"
	"boldpipe/pkg/connectome"
	"boldpipe/pkg/fmri"
	"boldpipe/pkg/motion"
	"boldpipe/pkg/niftiio"
	"boldpipe/pkg/numio"
	"boldpipe/pkg/report"
)

// BuildStages assembles the stage chain for the configuration. The
// chain always starts with frame discarding (a zero-discard run still
// materializes the working volume); optional stages are appended only
// when enabled, each consuming the previous stage's volume.
func BuildStages(env *Env) ([]Stage, error) {
	if err := env.Cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(env.Layout.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	cfg := env.Cfg
	var stages []Stage

	motionPath := cfg.Subject.MotionTable
	if motionPath != "" && cfg.Functional.TrimMotionTable && cfg.Functional.DiscardFrames > 0 {
		motionPath = env.Layout.TrimmedMotionTable()
	}

	stages = append(stages, &discardStage{env: env})
	current := env.Layout.DiscardedVolume()

	nuis := cfg.Functional.Nuisance
	if nuis.Global || nuis.CSF || nuis.WM || nuis.Motion {
		stages = append(stages, &nuisanceStage{env: env, input: current, motionPath: motionPath})
		current = env.Layout.NuisanceVolume()
	}

	if cfg.Functional.Detrending.Enabled {
		stages = append(stages, &detrendStage{env: env, input: current})
		current = env.Layout.DetrendedVolume()
	}

	if cfg.Functional.Bandpass.Enabled {
		stages = append(stages, &bandpassStage{env: env, input: current})
		current = env.Layout.BandpassedVolume()
	}

	if cfg.MetricsAvailable() {
		stages = append(stages, &metricsStage{env: env, motionPath: motionPath})
	}

	stages = append(stages, &connectomeStage{env: env, input: current})
	return stages, nil
}

// discardStage drops the leading frames and, when configured,
// re-aligns the motion table to the shortened run.
type discardStage struct {
	env *Env
}

func (s *discardStage) Name() string { return "discard" }

func (s *discardStage) trimsMotion() bool {
	cfg := s.env.Cfg
	return cfg.Subject.MotionTable != "" && cfg.Functional.TrimMotionTable && cfg.Functional.DiscardFrames > 0
}

func (s *discardStage) Fingerprint() (string, error) {
	cfg := s.env.Cfg
	params := struct {
		Discard int  `json:"discard"`
		Trim    bool `json:"trim"`
	}{cfg.Functional.DiscardFrames, s.trimsMotion()}

	inputs := []string{cfg.Subject.BOLD}
	if s.trimsMotion() {
		inputs = append(inputs, cfg.Subject.MotionTable)
	}
	return Fingerprint(params, inputs...)
}

func (s *discardStage) Outputs() []string {
	outs := []string{s.env.Layout.DiscardedVolume()}
	if s.trimsMotion() {
		outs = append(outs, s.env.Layout.TrimmedMotionTable())
	}
	return outs
}

func (s *discardStage) Run(ctx context.Context) error {
	cfg := s.env.Cfg
	n := cfg.Functional.DiscardFrames

	vol, err := niftiio.LoadVolume4D(cfg.Subject.BOLD)
	if err != nil {
		return err
	}
	s.env.Log.Info("discarding frames", "frames", vol.T, "discard", n)

	out, err := fmri.DiscardFrames(vol, n)
	if err != nil {
		return err
	}
	if err := niftiio.SaveVolume4D(s.env.Layout.DiscardedVolume(), out, cfg.Subject.BOLD); err != nil {
		return err
	}

	if s.trimsMotion() {
		mp, err := niftiio.LoadMotionTable(cfg.Subject.MotionTable)
		if err != nil {
			return err
		}
		trimmed, err := fmri.TrimMotionTable(mp, n)
		if err != nil {
			return err
		}
		if err := niftiio.SaveMotionTable(s.env.Layout.TrimmedMotionTable(), trimmed); err != nil {
			return err
		}
	}
	return nil
}

// nuisanceStage regresses the selected nuisance signals out of every
// gray-matter voxel and keeps the mean traces as side outputs.
type nuisanceStage struct {
	env        *Env
	input      string
	motionPath string
}

func (s *nuisanceStage) Name() string { return "nuisance" }

func (s *nuisanceStage) Fingerprint() (string, error) {
	cfg := s.env.Cfg
	inputs := []string{s.input, cfg.Subject.Parcellations[0].Volume}
	nuis := cfg.Functional.Nuisance
	if nuis.Global {
		inputs = append(inputs, cfg.Subject.BrainMask)
	}
	if nuis.CSF {
		inputs = append(inputs, cfg.Subject.CSFMask)
	}
	if nuis.WM {
		inputs = append(inputs, cfg.Subject.WMMask)
	}
	if nuis.Motion {
		inputs = append(inputs, s.motionPath)
	}
	return Fingerprint(nuis, inputs...)
}

func (s *nuisanceStage) Outputs() []string {
	l := s.env.Layout
	nuis := s.env.Cfg.Functional.Nuisance
	outs := []string{l.NuisanceVolume()}
	if nuis.Global {
		outs = append(outs, l.AverageGlobalNpy(), l.AverageGlobalMat())
	}
	if nuis.CSF {
		outs = append(outs, l.AverageCSFNpy(), l.AverageCSFMat())
	}
	if nuis.WM {
		outs = append(outs, l.AverageWMNpy(), l.AverageWMMat())
	}
	return outs
}

func (s *nuisanceStage) Run(ctx context.Context) error {
	cfg := s.env.Cfg
	nuis := cfg.Functional.Nuisance

	vol, err := niftiio.LoadVolume4D(s.input)
	if err != nil {
		return err
	}
	gm, err := niftiio.LoadMask3D(cfg.Subject.Parcellations[0].Volume)
	if err != nil {
		return err
	}

	in := fmri.NuisanceInputs{Volume: vol, GM: gm}
	if nuis.Global {
		if in.Brain, err = niftiio.LoadMask3D(cfg.Subject.BrainMask); err != nil {
			return err
		}
	}
	if nuis.CSF {
		if in.CSF, err = niftiio.LoadMask3D(cfg.Subject.CSFMask); err != nil {
			return err
		}
	}
	if nuis.WM {
		if in.WM, err = niftiio.LoadMask3D(cfg.Subject.WMMask); err != nil {
			return err
		}
	}
	if nuis.Motion {
		if in.Motion, err = niftiio.LoadMotionTable(s.motionPath); err != nil {
			return err
		}
	}

	opts := fmri.NuisanceOptions{
		Global:     nuis.Global,
		CSF:        nuis.CSF,
		WM:         nuis.WM,
		Motion:     nuis.Motion,
		MotionTier: fmri.MotionTier(nuis.MotionRegressors),
		Workers:    cfg.Output.Workers,
	}

	s.env.Log.Info("nuisance regression",
		"global", nuis.Global, "csf", nuis.CSF, "wm", nuis.WM,
		"motion", nuis.Motion, "motionTier", nuis.MotionRegressors)

	out, traces, err := fmri.RegressNuisance(in, opts)
	if err != nil {
		return err
	}
	if err := niftiio.SaveVolume4D(s.env.Layout.NuisanceVolume(), out, s.input); err != nil {
		return err
	}

	l := s.env.Layout
	if traces.Global != nil {
		if err := numio.WriteVectorNpy(l.AverageGlobalNpy(), traces.Global); err != nil {
			return err
		}
		if err := numio.WriteMat(l.AverageGlobalMat(), numio.MatVector("avgGlobal", traces.Global)); err != nil {
			return err
		}
	}
	if traces.CSF != nil {
		if err := numio.WriteVectorNpy(l.AverageCSFNpy(), traces.CSF); err != nil {
			return err
		}
		if err := numio.WriteMat(l.AverageCSFMat(), numio.MatVector("avgCSF", traces.CSF)); err != nil {
			return err
		}
	}
	if traces.WM != nil {
		if err := numio.WriteVectorNpy(l.AverageWMNpy(), traces.WM); err != nil {
			return err
		}
		if err := numio.WriteMat(l.AverageWMMat(), numio.MatVector("avgWM", traces.WM)); err != nil {
			return err
		}
	}
	return nil
}

// detrendStage removes the configured polynomial trend from every
// voxel with a non-zero parcellation label.
type detrendStage struct {
	env   *Env
	input string
}

func (s *detrendStage) Name() string { return "detrend" }

func (s *detrendStage) Fingerprint() (string, error) {
	cfg := s.env.Cfg
	params := struct {
		Order string `json:"order"`
	}{cfg.Functional.Detrending.Order}
	return Fingerprint(params, s.input, cfg.Subject.Parcellations[0].Volume)
}

func (s *detrendStage) Outputs() []string {
	return []string{s.env.Layout.DetrendedVolume()}
}

func (s *detrendStage) Run(ctx context.Context) error {
	cfg := s.env.Cfg

	vol, err := niftiio.LoadVolume4D(s.input)
	if err != nil {
		return err
	}
	gm, err := niftiio.LoadMask3D(cfg.Subject.Parcellations[0].Volume)
	if err != nil {
		return err
	}

	s.env.Log.Info("detrending", "order", cfg.Functional.Detrending.Order)
	out, err := fmri.Detrend(vol, gm, fmri.DetrendOrder(cfg.Functional.Detrending.Order), cfg.Output.Workers)
	if err != nil {
		return err
	}
	return niftiio.SaveVolume4D(s.env.Layout.DetrendedVolume(), out, s.input)
}

// bandpassStage shells out to the external frequency-filtering tool.
type bandpassStage struct {
	env   *Env
	input string
}

func (s *bandpassStage) Name() string { return "bandpass" }

func (s *bandpassStage) Fingerprint() (string, error) {
	return Fingerprint(s.env.Cfg.Functional.Bandpass, s.input)
}

func (s *bandpassStage) Outputs() []string {
	return []string{s.env.Layout.BandpassedVolume()}
}

func (s *bandpassStage) Run(ctx context.Context) error {
	bp := s.env.Cfg.Functional.Bandpass
	s.env.Log.Info("bandpass filtering", "binary", bp.Binary, "band", []float64{bp.Highpass, bp.Lowpass})
	return bandpass.Run(ctx, bandpass.Params{
		Binary:   bp.Binary,
		Highpass: bp.Highpass,
		Lowpass:  bp.Lowpass,
		TR:       bp.TR,
		Input:    s.input,
		Output:   s.env.Layout.BandpassedVolume(),
	})
}

// metricsStage computes FD and DVARS on the frame-discarded volume,
// before any signal is regressed out, so the metrics describe the
// acquisition rather than the cleaned data.
type metricsStage struct {
	env        *Env
	motionPath string
}

func (s *metricsStage) Name() string { return "motion-metrics" }

func (s *metricsStage) Fingerprint() (string, error) {
	cfg := s.env.Cfg
	params := struct {
		QCPlots bool `json:"qcPlots"`
	}{cfg.Output.QCPlots}
	return Fingerprint(params,
		s.env.Layout.DiscardedVolume(),
		s.motionPath,
		cfg.Subject.WMMask,
		cfg.Subject.Parcellations[0].Volume,
	)
}

func (s *metricsStage) Outputs() []string {
	l := s.env.Layout
	outs := []string{l.FDNpy(), l.FDMat(), l.DVARSNpy(), l.DVARSMat()}
	if s.env.Cfg.Output.QCPlots {
		outs = append(outs, filepath.Join(l.Dir, "FD.png"), filepath.Join(l.Dir, "DVARS.png"))
	}
	return outs
}

func (s *metricsStage) Run(ctx context.Context) error {
	cfg := s.env.Cfg

	vol, err := niftiio.LoadVolume4D(s.env.Layout.DiscardedVolume())
	if err != nil {
		return err
	}
	wm, err := niftiio.LoadMask3D(cfg.Subject.WMMask)
	if err != nil {
		return err
	}
	gm, err := niftiio.LoadMask3D(cfg.Subject.Parcellations[0].Volume)
	if err != nil {
		return err
	}
	mp, err := niftiio.LoadMotionTable(s.motionPath)
	if err != nil {
		return err
	}

	combined, err := unionMask(wm, gm)
	if err != nil {
		return err
	}

	fd, dvars, err := motion.Metrics(mp, vol, combined)
	if err != nil {
		return err
	}

	l := s.env.Layout
	if err := numio.WriteVectorNpy(l.FDNpy(), fd); err != nil {
		return err
	}
	if err := numio.WriteMat(l.FDMat(), numio.MatVector("FD", fd)); err != nil {
		return err
	}
	if err := numio.WriteVectorNpy(l.DVARSNpy(), dvars); err != nil {
		return err
	}
	if err := numio.WriteMat(l.DVARSMat(), numio.MatVector("DVARS", dvars)); err != nil {
		return err
	}

	if cfg.Output.QCPlots {
		if _, err := report.SaveMotionPlots(l.Dir, fd, dvars,
			cfg.Connectome.FDThreshold, cfg.Connectome.DVARSThreshold); err != nil {
			return err
		}
	}

	s.env.Log.Info("motion metrics written", "frames", len(fd),
		"maxFD", maxOf(fd), "maxDVARS", maxOf(dvars))
	return nil
}

// unionMask marks voxels positive in either mask with label 1.
func unionMask(a, b *models.Mask3D) (*models.Mask3D, error) {
	if a.X != b.X || a.Y != b.Y || a.Z != b.Z {
		return nil, fmt.Errorf("mask %dx%dx%d vs mask %dx%dx%d: %w",
			a.X, a.Y, a.Z, b.X, b.Y, b.Z, models.ErrShapeMismatch)
	}
	out := models.NewMask3D(a.X, a.Y, a.Z)
	for i := range out.Labels {
		if a.Labels[i] > 0 || b.Labels[i] > 0 {
			out.Labels[i] = 1
		}
	}
	return out, nil
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

// connectomeStage builds one connectivity matrix per parcellation
// scale from the fully cleaned volume, scrubbing high-motion
// timepoints when the metrics are available.
type connectomeStage struct {
	env   *Env
	input string
}

func (s *connectomeStage) Name() string { return "connectome" }

// scrubbing is effective only when requested and the metric files can
// exist; otherwise it is silently disabled.
func (s *connectomeStage) scrubbing() bool {
	return s.env.Cfg.Connectome.ApplyScrubbing && s.env.Cfg.MetricsAvailable()
}

func (s *connectomeStage) Fingerprint() (string, error) {
	cfg := s.env.Cfg
	inputs := []string{s.input}
	for _, p := range cfg.Subject.Parcellations {
		inputs = append(inputs, p.Volume)
		if p.Labels != "" {
			inputs = append(inputs, p.Labels)
		}
	}
	if s.scrubbing() {
		inputs = append(inputs, s.env.Layout.FDNpy(), s.env.Layout.DVARSNpy())
	}
	return Fingerprint(cfg.Connectome, inputs...)
}

func (s *connectomeStage) Outputs() []string {
	cfg := s.env.Cfg
	l := s.env.Layout

	var outs []string
	if s.scrubbing() {
		outs = append(outs, l.RetainedNpy(), l.RetainedMat())
	}
	for _, p := range cfg.Subject.Parcellations {
		outs = append(outs, l.TimeseriesNpy(p.Scale), l.TimeseriesMat(p.Scale))
		for _, f := range cfg.Connectome.OutputFormats {
			switch f {
			case "tsv":
				outs = append(outs, l.EdgeListTSV(p.Scale), l.NodeTableTSV(p.Scale))
			case "npy":
				outs = append(outs, l.ConnectomeNpy(p.Scale))
			case "mat":
				outs = append(outs, l.ConnectomeMat(p.Scale))
			case "graphml":
				outs = append(outs, l.ConnectomeGraphML(p.Scale))
			}
		}
	}
	return outs
}

func (s *connectomeStage) Run(ctx context.Context) error {
	cfg := s.env.Cfg
	l := s.env.Layout

	vol, err := niftiio.LoadVolume4D(s.input)
	if err != nil {
		return err
	}

	var fd, dvars []float64
	if s.scrubbing() {
		if fd, err = numio.ReadVectorNpy(l.FDNpy()); err != nil {
			return err
		}
		if dvars, err = numio.ReadVectorNpy(l.DVARSNpy()); err != nil {
			return err
		}
	} else if cfg.Connectome.ApplyScrubbing {
		s.env.Log.Warn("scrubbing requested but FD/DVARS unavailable, disabling")
	}

	retained, err := connectome.RetainedTimepoints(vol.T, fd, dvars, connectome.ScrubOptions{
		Enabled:        s.scrubbing(),
		FDThreshold:    cfg.Connectome.FDThreshold,
		DVARSThreshold: cfg.Connectome.DVARSThreshold,
	})
	if err != nil {
		return err
	}
	if s.scrubbing() {
		s.env.Log.Info("scrubbing", "retained", len(retained), "total", vol.T)
		idx := connectome.RetainedAsFloat(retained)
		if err := numio.WriteVectorNpy(l.RetainedNpy(), idx); err != nil {
			return err
		}
		if err := numio.WriteMat(l.RetainedMat(), numio.MatVector("index", idx)); err != nil {
			return err
		}
	}

	for _, p := range cfg.Subject.Parcellations {
		parc, err := niftiio.LoadMask3D(p.Volume)
		if err != nil {
			return err
		}

		var regions []connectome.Region
		if p.Labels != "" {
			if regions, err = connectome.LoadRegionTable(p.Labels); err != nil {
				return err
			}
			if err := connectome.MatchRegions(regions, parc); err != nil {
				return fmt.Errorf("scale %s: %w", p.Scale, err)
			}
		} else {
			regions = connectome.RegionsFromMask(parc)
		}
		s.env.Log.Info("building connectome", "scale", p.Scale, "regions", len(regions))

		series, err := connectome.RegionSeries(vol, parc, regions)
		if err != nil {
			return fmt.Errorf("scale %s: %w", p.Scale, err)
		}
		if err := numio.WriteMatrixNpy(l.TimeseriesNpy(p.Scale), series); err != nil {
			return err
		}
		if err := numio.WriteMat(l.TimeseriesMat(p.Scale), numio.MatMatrix("TCS", series)); err != nil {
			return err
		}

		graph, err := connectome.Build(series, regions, retained)
		if err != nil {
			return fmt.Errorf("scale %s: %w", p.Scale, err)
		}

		for _, f := range cfg.Connectome.OutputFormats {
			switch f {
			case "tsv":
				if err := connectome.WriteEdgeListTSV(l.EdgeListTSV(p.Scale), graph); err != nil {
					return err
				}
				if err := connectome.WriteNodeTableTSV(l.NodeTableTSV(p.Scale), graph); err != nil {
					return err
				}
			case "npy":
				if err := connectome.WriteDenseNpy(l.ConnectomeNpy(p.Scale), graph); err != nil {
					return err
				}
			case "mat":
				if err := connectome.WriteMat(l.ConnectomeMat(p.Scale), graph); err != nil {
					return err
				}
			case "graphml":
				if err := connectome.WriteGraphML(l.ConnectomeGraphML(p.Scale), graph); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
