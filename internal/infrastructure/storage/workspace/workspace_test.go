package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/dockpipe/internal/testutil"
	"github.com/turtacn/dockpipe/pkg/errors"
)

func newMemWorkspace(t *testing.T, files ...string) *Workspace {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte(f), 0o644))
	}
	return NewWithFs(fs, "", DefaultLayout(), nil)
}

func TestFiles_SortedRegularOnly(t *testing.T) {
	ws := newMemWorkspace(t, "b.pdbqt", "a.pdbqt", "results/old.txt")

	names, err := ws.Files(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdbqt", "b.pdbqt"}, names)
}

func TestMoveMatching_Suffix(t *testing.T) {
	ws := newMemWorkspace(t, "rec.pdbqt", "lig_1.pdbqt", "lig_1_out.pdbqt", "lig_1.pdbqt_log.log", "conf.txt")

	moved, err := ws.MoveMatching(Suffix("_out.pdbqt"), "outputs", "rec.pdbqt")
	require.NoError(t, err)
	assert.Equal(t, []string{"lig_1_out.pdbqt"}, moved)

	moved, err = ws.MoveMatching(Suffix(".pdbqt"), "inputs", "rec.pdbqt")
	require.NoError(t, err)
	assert.Equal(t, []string{"lig_1.pdbqt"}, moved)

	assert.True(t, ws.Exists("rec.pdbqt"), "receptor is never moved")
	assert.True(t, ws.Exists("outputs/lig_1_out.pdbqt"))
	assert.True(t, ws.Exists("inputs/lig_1.pdbqt"))
	assert.True(t, ws.Exists("lig_1.pdbqt_log.log"))
	assert.True(t, ws.Exists("conf.txt"))
}

func TestMoveMatching_PrefixIgnoresDirectories(t *testing.T) {
	ws := newMemWorkspace(t, "results.txt", "results_sorted.txt", "myresults.txt")
	require.NoError(t, ws.Fs().MkdirAll("results", 0o755))

	moved, err := ws.MoveMatching(Prefix("results"), "results")
	require.NoError(t, err)
	assert.Equal(t, []string{"results.txt", "results_sorted.txt"}, moved)
	assert.True(t, ws.Exists("myresults.txt"))
}

func TestMoveMatching_EmptySourceCreatesDest(t *testing.T) {
	ws := newMemWorkspace(t)

	moved, err := ws.MoveMatching(Suffix(".log"), "logs")
	require.NoError(t, err)
	assert.Empty(t, moved)

	fi, err := ws.Fs().Stat("logs")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestMoveMatching_ExistingDestinationLeftInPlace(t *testing.T) {
	ws := newMemWorkspace(t, "a.log", "logs/a.log")
	log := testutil.NewMockLogger()
	ws.log = log

	moved, err := ws.MoveMatching(Suffix(".log"), "logs")
	require.NoError(t, err)
	assert.Empty(t, moved)
	assert.True(t, ws.Exists("a.log"))
	assert.Equal(t, 1, log.Count("debug"))
}

func TestReplaceMatching_OverwritesDestination(t *testing.T) {
	ws := newMemWorkspace(t, "a.log", "logs/a.log", "logs/old.log", "rec.log")

	moved, err := ws.ReplaceMatching(Suffix(".log"), "logs", "rec.log")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.log"}, moved)
	assert.False(t, ws.Exists("a.log"))
	assert.True(t, ws.Exists("rec.log"))
	assert.True(t, ws.Exists("logs/old.log"))

	data, err := afero.ReadFile(ws.Fs(), "logs/a.log")
	require.NoError(t, err)
	assert.Equal(t, "a.log", string(data), "root copy replaces the old one")
}

func TestMoveMatching_MkdirFailure(t *testing.T) {
	ws := newMemWorkspace(t, "a.log")
	ws.fs = afero.NewReadOnlyFs(ws.fs)

	_, err := ws.MoveMatching(Suffix(".log"), "logs")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWorkspace))
}

func TestCopyAndRemove(t *testing.T) {
	ws := newMemWorkspace(t, "outputs/a_out.pdbqt")
	require.NoError(t, ws.Fs().MkdirAll("complexes", 0o755))

	require.NoError(t, ws.Copy("outputs/a_out.pdbqt", "complexes/a_out.pdbqt"))
	data, err := afero.ReadFile(ws.Fs(), "complexes/a_out.pdbqt")
	require.NoError(t, err)
	assert.Equal(t, "outputs/a_out.pdbqt", string(data))

	assert.Error(t, ws.Copy("outputs/missing", "complexes/missing"))

	require.NoError(t, ws.Remove("complexes/a_out.pdbqt"))
	require.NoError(t, ws.Remove("complexes/a_out.pdbqt"), "missing file is not an error")
}

func TestNew_OSWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.sdf"), []byte("x"), 0o644))

	ws, err := New(dir, DefaultLayout(), nil)
	require.NoError(t, err)
	assert.True(t, ws.Exists("x.sdf"))
	assert.Equal(t, filepath.Join(dir, "x.sdf"), ws.OSPath("x.sdf"))

	_, err = New(filepath.Join(dir, "x.sdf"), DefaultLayout(), nil)
	assert.Error(t, err)
}
