package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndList(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "results/results_sorted.txt", []byte("Sorted Docking Results\n\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "logs/b.pdbqt_log.log", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "logs/a.pdbqt_log.log", []byte("a"), 0o644))

	n, err := Create(fs, "backup/run-1"+Extension, ParseLevel("fastest"), "results", "logs", "outputs")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := afero.ReadFile(fs, "backup/run-1"+Extension)
	require.NoError(t, err)

	names, err := List(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"results/results_sorted.txt", "logs/a.pdbqt_log.log", "logs/b.pdbqt_log.log"}, names)
}

func TestWalk_ReadsContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "outputs/x_out.pdbqt", []byte("REMARK VINA RESULT: -7.1"), 0o644))

	var buf bytes.Buffer
	w, err := NewWriter(fs, &buf, zstd.SpeedDefault)
	require.NoError(t, err)
	require.NoError(t, w.AddDir("outputs"))
	require.NoError(t, w.Close())

	got := map[string]string{}
	require.NoError(t, Walk(&buf, func(hdr *tar.Header, body io.Reader) error {
		b, err := io.ReadAll(body)
		got[hdr.Name] = string(b)
		return err
	}))
	assert.Equal(t, map[string]string{"outputs/x_out.pdbqt": "REMARK VINA RESULT: -7.1"}, got)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zstd.SpeedFastest, ParseLevel("fastest"))
	assert.Equal(t, zstd.SpeedBetterCompression, ParseLevel("Better"))
	assert.Equal(t, zstd.SpeedBestCompression, ParseLevel("best"))
	assert.Equal(t, zstd.SpeedDefault, ParseLevel("unknown"))
}

func TestWalk_CorruptInput(t *testing.T) {
	err := Walk(bytes.NewReader([]byte("not zstd")), func(*tar.Header, io.Reader) error { return nil })
	assert.Error(t, err)
}
