// Package pipeline sequences the functional-connectome stages and
// skips any stage whose outputs already exist for its current
// configuration/input fingerprint. Stages are pure file-to-file
// transforms; completion is tracked in the artifact ledger, so re-runs
// are idempotent and a deleted output triggers exactly the stages that
// depend on recomputing it.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"boldpipe/internal/artifacts"
	"boldpipe/pkg/config"
)

// Stage is one pipeline step. Fingerprint must change whenever the
// stage's configuration or any input file changes; Outputs lists every
// file the stage writes.
type Stage interface {
	Name() string
	Fingerprint() (string, error)
	Outputs() []string
	Run(ctx context.Context) error
}

// Env carries the per-run context every stage shares.
type Env struct {
	Cfg    *config.Config
	Log    *slog.Logger
	Layout Layout
}

// Runner executes stages in order against the artifact ledger.
type Runner struct {
	store *artifacts.Store
	log   *slog.Logger
}

// NewRunner wires a runner to the ledger.
func NewRunner(store *artifacts.Store, log *slog.Logger) *Runner {
	return &Runner{store: store, log: log}
}

// Run executes the stages in order. A stage whose fingerprint is
// already recorded with all outputs present is skipped.
func (r *Runner) Run(ctx context.Context, stages []Stage) error {
	for _, st := range stages {
		fp, err := st.Fingerprint()
		if err != nil {
			return fmt.Errorf("stage %s: fingerprint: %w", st.Name(), err)
		}

		done, err := r.store.Completed(ctx, st.Name(), fp)
		if err != nil {
			return fmt.Errorf("stage %s: ledger: %w", st.Name(), err)
		}
		if done {
			r.log.Info("stage already complete, skipping", "stage", st.Name())
			continue
		}

		r.log.Info("running stage", "stage", st.Name())
		start := time.Now()
		if err := st.Run(ctx); err != nil {
			return fmt.Errorf("stage %s: %w", st.Name(), err)
		}

		if _, err := r.store.Record(ctx, st.Name(), fp, st.Outputs()); err != nil {
			return fmt.Errorf("stage %s: record: %w", st.Name(), err)
		}
		r.log.Info("stage finished", "stage", st.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// Fingerprint hashes the stage parameters together with the identity
// (path, size, mtime) of every input file. Parameter structs must be
// JSON-encodable.
func Fingerprint(params any, inputs ...string) (string, error) {
	h := sha256.New()

	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	h.Write(encoded)

	for _, path := range inputs {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("input %s: %w", path, err)
		}
		fmt.Fprintf(h, "|%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Layout names every file the pipeline writes under the output
// directory. Uniquely named outputs keep concurrent subject runs from
// colliding.
type Layout struct {
	Dir string
}

func (l Layout) join(name string) string { return filepath.Join(l.Dir, name) }

func (l Layout) DiscardedVolume() string    { return l.join("fMRI_discard.nii") }
func (l Layout) TrimmedMotionTable() string { return l.join("motion_trimmed.par") }
func (l Layout) NuisanceVolume() string     { return l.join("fMRI_nuisance.nii") }
func (l Layout) DetrendedVolume() string    { return l.join("fMRI_detrend.nii") }
func (l Layout) BandpassedVolume() string   { return l.join("fMRI_bandpass.nii") }

func (l Layout) AverageGlobalNpy() string { return l.join("averageGlobal.npy") }
func (l Layout) AverageGlobalMat() string { return l.join("averageGlobal.mat") }
func (l Layout) AverageCSFNpy() string    { return l.join("averageCSF.npy") }
func (l Layout) AverageCSFMat() string    { return l.join("averageCSF.mat") }
func (l Layout) AverageWMNpy() string     { return l.join("averageWM.npy") }
func (l Layout) AverageWMMat() string     { return l.join("averageWM.mat") }

func (l Layout) FDNpy() string    { return l.join("FD.npy") }
func (l Layout) FDMat() string    { return l.join("FD.mat") }
func (l Layout) DVARSNpy() string { return l.join("DVARS.npy") }
func (l Layout) DVARSMat() string { return l.join("DVARS.mat") }

func (l Layout) RetainedNpy() string { return l.join("tp_after_scrubbing.npy") }
func (l Layout) RetainedMat() string { return l.join("tp_after_scrubbing.mat") }

func (l Layout) TimeseriesNpy(scale string) string {
	return l.join(fmt.Sprintf("averageTimeseries_%s.npy", scale))
}
func (l Layout) TimeseriesMat(scale string) string {
	return l.join(fmt.Sprintf("averageTimeseries_%s.mat", scale))
}
func (l Layout) EdgeListTSV(scale string) string {
	return l.join(fmt.Sprintf("connectome_%s_edges.tsv", scale))
}
func (l Layout) NodeTableTSV(scale string) string {
	return l.join(fmt.Sprintf("connectome_%s_nodes.tsv", scale))
}
func (l Layout) ConnectomeNpy(scale string) string {
	return l.join(fmt.Sprintf("connectome_%s.npy", scale))
}
func (l Layout) ConnectomeMat(scale string) string {
	return l.join(fmt.Sprintf("connectome_%s.mat", scale))
}
func (l Layout) ConnectomeGraphML(scale string) string {
	return l.join(fmt.Sprintf("connectome_%s.graphml", scale))
}
