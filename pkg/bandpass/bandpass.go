// Package bandpass is a thin adapter around an external AFNI-style
// frequency-filtering tool (3dBandpass). It only constructs argument
// lists and invokes the binary; the filtering algorithm itself is the
// external tool's concern.
package bandpass

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// commandContext is swappable for tests.
var commandContext = exec.CommandContext

// Params configures one bandpass invocation.
type Params struct {
	// Binary is the tool executable; default "3dBandpass".
	Binary string

	// Highpass and Lowpass are the band edges in Hz.
	Highpass float64
	Lowpass  float64

	// TR overrides the repetition time in seconds; 0 lets the tool
	// read it from the volume header.
	TR float64

	// Input and Output are the volume paths.
	Input  string
	Output string
}

// Args returns the constructed argument list (excluding the binary).
func (p Params) Args() []string {
	args := []string{}
	if p.TR > 0 {
		args = append(args, "-dt", strconv.FormatFloat(p.TR, 'g', -1, 64))
	}
	args = append(args,
		"-prefix", p.Output,
		strconv.FormatFloat(p.Highpass, 'g', -1, 64),
		strconv.FormatFloat(p.Lowpass, 'g', -1, 64),
		p.Input,
	)
	return args
}

// Run invokes the external tool, returning its combined output on
// failure. Failures here are external-tool failures, surfaced to the
// pipeline runner as stage errors.
func Run(ctx context.Context, p Params) error {
	if p.Binary == "" {
		p.Binary = "3dBandpass"
	}
	if p.Lowpass <= p.Highpass || p.Highpass < 0 {
		return fmt.Errorf("bandpass: invalid band [%g, %g]", p.Highpass, p.Lowpass)
	}

	cmd := commandContext(ctx, p.Binary, p.Args()...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("bandpass: %s failed: %w: %s", p.Binary, err, out)
	}
	return nil
}
