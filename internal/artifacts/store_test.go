package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestRecordAndLookup(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	out := filepath.Join(dir, "fMRI_discard.nii")
	id, err := store.Record(ctx, "discard", "fp-1", []string{out})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := store.Lookup(ctx, "discard", "fp-1")
	require.NoError(t, err)
	require.Equal(t, "discard", run.Stage)
	require.Equal(t, []string{out}, run.Outputs)
	require.False(t, run.CreatedAt.IsZero())
}

func TestLookupNotRun(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Lookup(context.Background(), "discard", "unknown")
	require.ErrorIs(t, err, ErrNotRun)
}

func TestCompletedRequiresOutputs(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	outA := filepath.Join(dir, "a.npy")
	outB := filepath.Join(dir, "b.npy")
	_, err := store.Record(ctx, "metrics", "fp-2", []string{outA, outB})
	require.NoError(t, err)

	// Recorded but outputs missing: not complete.
	done, err := store.Completed(ctx, "metrics", "fp-2")
	require.NoError(t, err)
	require.False(t, done)

	touch(t, outA)
	touch(t, outB)
	done, err = store.Completed(ctx, "metrics", "fp-2")
	require.NoError(t, err)
	require.True(t, done)

	// Deleting one output reverts to not complete.
	require.NoError(t, os.Remove(outB))
	done, err = store.Completed(ctx, "metrics", "fp-2")
	require.NoError(t, err)
	require.False(t, done)
}

func TestCompletedUnknownFingerprint(t *testing.T) {
	store, _ := newTestStore(t)

	done, err := store.Completed(context.Background(), "metrics", "never-ran")
	require.NoError(t, err)
	require.False(t, done)
}

func TestRecordReplacesSameFingerprint(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, "connectome", "fp-3", []string{filepath.Join(dir, "old.tsv")})
	require.NoError(t, err)
	_, err = store.Record(ctx, "connectome", "fp-3", []string{filepath.Join(dir, "new.tsv")})
	require.NoError(t, err)

	run, err := store.Lookup(ctx, "connectome", "fp-3")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "new.tsv")}, run.Outputs)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestRuns(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, "discard", "fp-a", []string{filepath.Join(dir, "a")})
	require.NoError(t, err)
	_, err = store.Record(ctx, "nuisance", "fp-b", []string{filepath.Join(dir, "b")})
	require.NoError(t, err)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
