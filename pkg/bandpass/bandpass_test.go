package bandpass

import (
	"context"
	"os/exec"
	"reflect"
	"testing"
)

// TestArgs verifies the argument layout with and without an explicit
// repetition time.
func TestArgs(t *testing.T) {
	p := Params{Highpass: 0.01, Lowpass: 0.1, Input: "in.nii", Output: "out.nii"}
	want := []string{"-prefix", "out.nii", "0.01", "0.1", "in.nii"}
	if got := p.Args(); !reflect.DeepEqual(got, want) {
		t.Errorf("Args() = %v, want %v", got, want)
	}

	p.TR = 2
	want = []string{"-dt", "2", "-prefix", "out.nii", "0.01", "0.1", "in.nii"}
	if got := p.Args(); !reflect.DeepEqual(got, want) {
		t.Errorf("Args() with TR = %v, want %v", got, want)
	}
}

// TestRunInvokesBinary verifies the configured binary and arguments
// reach the command constructor.
func TestRunInvokesBinary(t *testing.T) {
	var gotName string
	var gotArgs []string

	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return exec.CommandContext(ctx, "true")
	}
	defer func() { commandContext = orig }()

	err := Run(context.Background(), Params{
		Binary:   "3dBandpass",
		Highpass: 0.01,
		Lowpass:  0.1,
		Input:    "in.nii",
		Output:   "out.nii",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gotName != "3dBandpass" {
		t.Errorf("Invoked %q, want 3dBandpass", gotName)
	}
	if len(gotArgs) != 5 || gotArgs[0] != "-prefix" {
		t.Errorf("Unexpected args %v", gotArgs)
	}
}

// TestRunDefaultBinary verifies the default executable name.
func TestRunDefaultBinary(t *testing.T) {
	var gotName string

	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		return exec.CommandContext(ctx, "true")
	}
	defer func() { commandContext = orig }()

	if err := Run(context.Background(), Params{Highpass: 0.01, Lowpass: 0.1, Input: "a", Output: "b"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gotName != "3dBandpass" {
		t.Errorf("Default binary %q, want 3dBandpass", gotName)
	}
}

// TestRunRejectsInvalidBand verifies band validation happens before any
// invocation.
func TestRunRejectsInvalidBand(t *testing.T) {
	invoked := false
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		invoked = true
		return exec.CommandContext(ctx, "true")
	}
	defer func() { commandContext = orig }()

	if err := Run(context.Background(), Params{Highpass: 0.2, Lowpass: 0.1}); err == nil {
		t.Fatal("Expected error for inverted band")
	}
	if err := Run(context.Background(), Params{Highpass: -0.1, Lowpass: 0.1}); err == nil {
		t.Fatal("Expected error for negative highpass")
	}
	if invoked {
		t.Error("Binary must not be invoked for an invalid band")
	}
}
