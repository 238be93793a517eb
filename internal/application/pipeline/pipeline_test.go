package pipeline_test

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/dockpipe/internal/application/pipeline"
	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/external"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/archive"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/workspace"
	"github.com/turtacn/dockpipe/internal/testutil"
	"github.com/turtacn/dockpipe/pkg/errors"
)

const receptorPDBQT = "REMARK receptor\n" +
	"ATOM      1  N   ALA A   1      11.104   6.134  -6.504  1.00  0.00    -0.351 N\n"

func vinaOutput(score float64) string {
	return fmt.Sprintf("MODEL 1\nREMARK VINA RESULT:    %.1f      0.000      0.000\n"+
		"ATOM      1  C   UNL     1       1.000   2.000   3.000  0.00  0.00    +0.000 C\nENDMDL\n", score)
}

// fakeTools simulates obabel and vina against an in-memory filesystem.
type fakeTools struct {
	fs     afero.Fs
	scores map[string]float64
	fail   map[string]bool
}

func (f *fakeTools) handle(_ context.Context, c external.Command) (*external.Result, error) {
	switch c.Name {
	case "obabel":
		switch {
		case c.Args[0] != "-isdf":
			return &external.Result{}, afero.WriteFile(f.fs, external.PreparedLibrary, []byte("prepared"), 0o644)
		case c.Args[1] == external.PreparedLibrary:
			for lig := range f.scores {
				if err := afero.WriteFile(f.fs, lig+".sdf", []byte(lig), 0o644); err != nil {
					return nil, err
				}
			}
			for lig := range f.fail {
				if err := afero.WriteFile(f.fs, lig+".sdf", []byte(lig), 0o644); err != nil {
					return nil, err
				}
			}
			return &external.Result{}, nil
		default:
			return &external.Result{}, afero.WriteFile(f.fs, c.Args[4], []byte("ligand"), 0o644)
		}
	case "vina":
		lig := c.Args[3]
		stem := docking.LigandStem(lig)
		if f.fail[stem] {
			return &external.Result{Stderr: []byte("Parse error on line 3"), ExitCode: 1},
				errors.New(errors.ErrCodeCommandFailed, "exit 1")
		}
		score := f.scores[stem]
		if err := afero.WriteFile(f.fs, docking.OutputName(lig), []byte(vinaOutput(score)), 0o644); err != nil {
			return nil, err
		}
		return &external.Result{Stdout: []byte(fmt.Sprintf("mode | affinity\n-----+---------\n   1   %.1f\nWriting output ... done.\n", score))}, nil
	}
	return nil, errors.Newf(errors.ErrCodeCommandFailed, "unexpected command %s", c.Name)
}

type captureSink struct {
	got []*docking.RunSummary
	err error
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Publish(_ context.Context, s *docking.RunSummary) error {
	c.got = append(c.got, s)
	return c.err
}

type fixture struct {
	fs     afero.Fs
	tools  *fakeTools
	runner *testutil.FakeRunner
	sink   *captureSink
	log    *testutil.MockLogger
	p      *pipeline.Pipeline
}

func newFixture(t *testing.T, opts pipeline.Options, sinks ...pipeline.Sink) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "rec.pdbqt", []byte(receptorPDBQT), 0o644))
	require.NoError(t, afero.WriteFile(fs, "conf.txt", []byte("receptor = rec.pdbqt\nnum_modes = 2\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "library.sdf", []byte("library"), 0o644))

	tools := &fakeTools{
		fs:     fs,
		scores: map[string]float64{"lig_a": -5.1, "lig_b": -8.4},
		fail:   map[string]bool{"lig_c": true},
	}
	runner := testutil.NewFakeRunner(tools.handle)
	sink := &captureSink{}
	log := testutil.NewMockLogger()

	ws := workspace.NewWithFs(fs, "", workspace.DefaultLayout(), log)
	p, err := pipeline.New(pipeline.Deps{
		Workspace: ws,
		Converter: external.NewOpenBabel("obabel", "", runner),
		Engine:    external.NewVina("vina", "conf.txt", "", runner),
		Builder:   external.NewTextMerger(fs),
		Sinks:     append([]pipeline.Sink{sink}, sinks...),
		Logger:    log,
	}, opts)
	require.NoError(t, err)
	return &fixture{fs: fs, tools: tools, runner: runner, sink: sink, log: log, p: p}
}

func runConfig() config.RunConfig {
	return config.RunConfig{
		Receptor:      "rec.pdbqt",
		DockingConfig: "conf.txt",
		PH:            7.4,
		Ligands:       "library.sdf",
		Complexes:     1,
	}
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs, name)
	require.NoError(t, err, name)
	return string(data)
}

func (f *fixture) exists(name string) bool {
	ok, _ := afero.Exists(f.fs, name)
	return ok
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, pipeline.Options{Analysis: true, Bins: 5, Archive: true})

	sum, err := f.p.Run(context.Background(), runConfig())
	require.NoError(t, err)
	require.NotNil(t, sum)

	assert.NotEmpty(t, sum.ID)
	assert.Equal(t, "rec.pdbqt", sum.Receptor)
	assert.Equal(t, 2, sum.Docked)
	assert.Equal(t, 1, sum.DockFailed)
	assert.Equal(t, 0, sum.ParseFailed)
	assert.Equal(t, docking.StatusPartial, sum.Status)
	assert.Equal(t, []string{"lig_b_out.pdbqt", "lig_a_out.pdbqt"}, sum.Ranking.Names())
	assert.Equal(t, []string{filepath.Join("complexes", "complex_lig_b.pdb")}, sum.Complexes)

	assert.Equal(t, "Sorted Docking Results\n\nlig_b_out.pdbqt: -8.4\nlig_a_out.pdbqt: -5.1\n",
		f.read(t, "results/results_sorted.txt"))
	excerpt := f.read(t, "results/results.txt")
	assert.Contains(t, excerpt, "==> lig_a.pdbqt_log.log <==")
	assert.Contains(t, excerpt, "Writing output ... done.")

	// Layout.
	assert.True(t, f.exists("rec.pdbqt"), "receptor stays in place")
	assert.True(t, f.exists("conf.txt"))
	assert.True(t, f.exists("backup/library.sdf"))
	assert.True(t, f.exists("backup/lig_a.sdf"))
	assert.True(t, f.exists("inputs/lig_a.pdbqt"))
	assert.True(t, f.exists("inputs/lig_c.pdbqt"))
	assert.True(t, f.exists("outputs/lig_b_out.pdbqt"))
	assert.Equal(t, "", f.read(t, "logs/lig_c.pdbqt_log.log"), "failed ligand gets an empty log")
	assert.False(t, f.exists(external.PreparedLibrary), "intermediates removed")
	assert.True(t, f.exists("complexes/rec.pdbqt"))
	assert.True(t, f.exists("complexes/lig_b_out.pdbqt"))
	assert.True(t, f.exists("complexes/complex_lig_b.pdb"))
	assert.True(t, f.exists("results/score_histogram.png"))

	// Archive.
	require.NotEmpty(t, sum.ArchivePath)
	data, err := afero.ReadFile(f.fs, sum.ArchivePath)
	require.NoError(t, err)
	names, err := archive.List(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Contains(t, names, "results/results_sorted.txt")
	assert.Contains(t, names, "outputs/lig_a_out.pdbqt")

	// Sinks.
	require.Len(t, f.sink.got, 1)
	assert.Equal(t, sum.ID, f.sink.got[0].ID)

	// The failing ligand was logged with its stderr.
	assert.GreaterOrEqual(t, f.log.Count("error"), 1)
}

func TestRun_SecondRunUsesItsOwnResults(t *testing.T) {
	f := newFixture(t, pipeline.Options{Archive: true})

	first, err := f.p.Run(context.Background(), runConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("complexes", "complex_lig_b.pdb")}, first.Complexes)

	require.NoError(t, afero.WriteFile(f.fs, "library2.sdf", []byte("library"), 0o644))
	f.tools.scores = map[string]float64{"lig_x": -9.9, "lig_y": -3.0}
	f.tools.fail = nil
	rc := runConfig()
	rc.Ligands = "library2.sdf"

	second, err := f.p.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"lig_x_out.pdbqt", "lig_y_out.pdbqt"}, second.Ranking.Names())
	assert.Equal(t, []string{filepath.Join("complexes", "complex_lig_x.pdb")}, second.Complexes)
	assert.Equal(t, "Sorted Docking Results\n\nlig_x_out.pdbqt: -9.9\nlig_y_out.pdbqt: -3.0\n",
		f.read(t, "results/results_sorted.txt"))
	assert.False(t, f.exists("results_sorted.txt"), "report not left in the working directory")
	assert.True(t, f.exists("backup/library2.sdf"))

	data, err := afero.ReadFile(f.fs, second.ArchivePath)
	require.NoError(t, err)
	require.NoError(t, archive.Walk(bytes.NewReader(data), func(hdr *tar.Header, body io.Reader) error {
		if hdr.Name == "results/results_sorted.txt" {
			report, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Contains(t, string(report), "lig_x_out.pdbqt")
			assert.NotContains(t, string(report), "lig_b_out.pdbqt")
		}
		return nil
	}))
}

func TestRun_AllDockingFailedIgnoresEarlierOutputs(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	rc := runConfig()
	rc.Complexes = 0
	_, err := f.p.Run(context.Background(), rc)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(f.fs, "library2.sdf", []byte("library"), 0o644))
	f.tools.scores = nil
	f.tools.fail = map[string]bool{"lig_z": true}
	rc.Ligands = "library2.sdf"

	sum, err := f.p.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Empty(t, sum.Ranking, "outputs of the earlier run are not ranked again")
	assert.Equal(t, 1, sum.DockFailed)
	assert.Equal(t, "Sorted Docking Results\n\n", f.read(t, "results/results_sorted.txt"))
}

func TestRun_DockingOrderAndPH(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	rc := runConfig()
	rc.PH = 0
	rc.Complexes = 0

	_, err := f.p.Run(context.Background(), rc)
	require.NoError(t, err)

	obabel := f.runner.CallsTo("obabel")
	require.NotEmpty(t, obabel)
	assert.NotContains(t, obabel[0].Args, "-p", "pH 0 skips protonation")

	var docked []string
	for _, c := range f.runner.CallsTo("vina") {
		docked = append(docked, c.Args[3])
	}
	assert.Equal(t, []string{"lig_a.pdbqt", "lig_b.pdbqt", "lig_c.pdbqt"}, docked)
	assert.False(t, f.exists("complexes"), "no complexes requested")
}

func TestDock_EchoesEngineOutput(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	rc := runConfig()
	rc.Complexes = 0

	_, err := f.p.Run(context.Background(), rc)
	require.NoError(t, err)

	echoed := map[string]string{}
	for _, m := range f.log.GetMessages() {
		if m.Level != "info" || m.Message != "docking output" {
			continue
		}
		var lig, out string
		for _, fl := range m.Fields {
			switch fl.Key {
			case "ligand":
				lig, _ = fl.Value.(string)
			case "output":
				out, _ = fl.Value.(string)
			}
		}
		echoed[lig] = out
	}
	require.Len(t, echoed, 2, "only docked ligands have output to echo")
	assert.Contains(t, echoed["lig_a.pdbqt"], "mode | affinity")
	assert.Contains(t, echoed["lig_b.pdbqt"], "Writing output ... done.")
}

func TestRun_TooManyComplexes(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	rc := runConfig()
	rc.Complexes = 5

	sum, err := f.p.Run(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientResults))
	require.NotNil(t, sum)
	assert.Len(t, sum.Ranking, 2)
	assert.Len(t, f.sink.got, 1, "summary still published")
}

func TestExecute_StageResults(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	rc := runConfig()
	rc.Complexes = 0

	res, err := f.p.Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"lig_a.pdbqt", "lig_b.pdbqt", "lig_c.pdbqt"}, res.Converted)
	require.NotNil(t, res.Dock)
	assert.Equal(t, []string{"lig_c.pdbqt"}, res.Dock.Failed)
	assert.Len(t, res.Dock.Logs, 3)
	require.NotNil(t, res.Extraction)
	assert.Equal(t, 2, res.Extraction.Scores.Len())
	assert.Same(t, res.Summary, f.sink.got[0])
	assert.Empty(t, res.Archive)
}

func TestRun_InvalidConfig(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	_, err := f.p.Run(context.Background(), config.RunConfig{DockingConfig: "conf.txt"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Empty(t, f.runner.Calls())
}

func TestRun_SinkFailureDoesNotAbort(t *testing.T) {
	failing := &captureSink{err: errors.New(errors.ErrCodeCacheError, "redis down")}
	f := newFixture(t, pipeline.Options{}, failing)
	rc := runConfig()
	rc.Complexes = 0

	sum, err := f.p.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, f.sink.got, 1)
	assert.Len(t, sum.Ranking, 2)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc := runConfig()
	rc.Complexes = 0

	sum, err := f.p.Run(ctx, rc)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
	require.NotNil(t, sum)
	assert.Equal(t, docking.StatusFailed, sum.Status)
}

func TestExtract_OrganisedDirectory(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	require.NoError(t, afero.WriteFile(f.fs, "outputs/x_out.pdbqt", []byte(vinaOutput(-6.0)), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, "outputs/y_out.pdbqt", []byte(vinaOutput(-9.2)), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, "outputs/bad_out.pdbqt", []byte("garbage\n"), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, "logs/x.pdbqt_log.log", []byte("1\n2\n3\n4\n5\n6\n7\n8\n"), 0o644))

	ext, err := f.p.Extract(runConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"y_out.pdbqt", "x_out.pdbqt"}, ext.Ranking.Names())
	assert.Equal(t, []string{"bad_out.pdbqt"}, ext.ParseFailed)
	require.Len(t, ext.Excerpts, 1)
	// num_modes = 2 keeps the last 6 lines.
	assert.Equal(t, []string{"3", "4", "5", "6", "7", "8"}, ext.Excerpts[0].Lines)

	require.NoError(t, f.p.WriteReports(ext, "results"))
	ranking, err := f.p.ReadRanking()
	require.NoError(t, err)
	assert.Equal(t, ext.Ranking.Names(), ranking.Names())
}

func TestExtract_PositionalLabelExample(t *testing.T) {
	f := newFixture(t, pipeline.Options{ScoreMode: docking.ScoreModePositional})
	require.NoError(t, afero.WriteFile(f.fs, "a_out.pdbqt",
		[]byte("header\nEstimated Free Energy of Binding: -7.3 (kcal/mol)\n"), 0o644))

	ext, err := f.p.Extract(runConfig())
	require.NoError(t, err)
	v, ok := ext.Scores.Get("a_out.pdbqt")
	require.True(t, ok)
	assert.Equal(t, -7.3, v)
}

func TestExtract_NonFiniteScoreIsAParseFailure(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	for name, score := range map[string]string{"a": "-5.1", "b": "nan", "c": "-inf", "d": "-8.4"} {
		out := "MODEL 1\nREMARK VINA RESULT: " + score + " 0.000 0.000\nENDMDL\n"
		require.NoError(t, afero.WriteFile(f.fs, name+"_out.pdbqt", []byte(out), 0o644))
	}

	ext, err := f.p.Extract(runConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"d_out.pdbqt", "a_out.pdbqt"}, ext.Ranking.Names())
	assert.Equal(t, []string{"b_out.pdbqt", "c_out.pdbqt"}, ext.ParseFailed)

	require.NoError(t, afero.WriteFile(f.fs, "results/results_sorted.txt",
		[]byte("Sorted Docking Results\n\nd_out.pdbqt: -8.4\nb_out.pdbqt: NaN\n"), 0o644))
	_, err = f.p.ReadRanking()
	assert.True(t, errors.IsCode(err, errors.ErrCodeReportInvalid))
}

func TestOrganize_ReceptorNeverMoved(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	require.NoError(t, afero.WriteFile(f.fs, "results_rec.pdbqt", []byte("x"), 0o644))
	rc := runConfig()
	rc.Receptor = "results_rec.pdbqt"

	moved := f.p.Organize(rc)
	assert.True(t, f.exists("results_rec.pdbqt"))
	assert.True(t, f.exists("inputs/rec.pdbqt"))
	assert.Empty(t, moved["results"])
	for _, dir := range []string{"logs", "outputs", "inputs", "results"} {
		ok, _ := afero.DirExists(f.fs, dir)
		assert.True(t, ok, dir)
	}
}

func TestAssembleComplexes_StagesTopK(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	report := "Sorted Docking Results\n\nb_out.pdbqt: -8.4\nc_out.pdbqt: -6.0\na_out.pdbqt: -5.1\n"
	require.NoError(t, afero.WriteFile(f.fs, "results/results_sorted.txt", []byte(report), 0o644))
	for name, score := range map[string]float64{"a": -5.1, "b": -8.4, "c": -6.0} {
		require.NoError(t, afero.WriteFile(f.fs, "outputs/"+name+"_out.pdbqt", []byte(vinaOutput(score)), 0o644))
	}

	results, err := f.p.AssembleComplexes(context.Background(), runConfig(), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	staged, err := afero.ReadDir(f.fs, "complexes")
	require.NoError(t, err)
	var pdbqt []string
	for _, fi := range staged {
		if strings.HasSuffix(fi.Name(), ".pdbqt") {
			pdbqt = append(pdbqt, fi.Name())
		}
	}
	assert.ElementsMatch(t, []string{"b_out.pdbqt", "c_out.pdbqt", "rec.pdbqt"}, pdbqt)

	_, err = f.p.AssembleComplexes(context.Background(), runConfig(), 4)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientResults))
}

func TestAssembleComplexes_MissingOutput(t *testing.T) {
	f := newFixture(t, pipeline.Options{})
	require.NoError(t, afero.WriteFile(f.fs, "results/results_sorted.txt",
		[]byte("Sorted Docking Results\n\nghost_out.pdbqt: -9.9\n"), 0o644))

	_, err := f.p.AssembleComplexes(context.Background(), runConfig(), 1)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeComplexBuildFailed))
}

func TestNew_RequiresWorkspace(t *testing.T) {
	_, err := pipeline.New(pipeline.Deps{}, pipeline.Options{})
	assert.Error(t, err)
}
