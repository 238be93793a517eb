package pipeline

import (
	"bytes"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/workspace"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// Extraction is the outcome of the extraction step.
type Extraction struct {
	Excerpts    []docking.Excerpt
	Scores      docking.ScoreTable
	Ranking     docking.Ranking
	ParseFailed []string
}

// Extract tails every docking log and scores every docking output.  Files
// are looked up in the working directory first and, when none are there, in
// the layout directory they are organised into, so the step also works on a
// directory that was already organised.  A file that cannot be read or
// scored is logged and left out.
func (p *Pipeline) Extract(rc config.RunConfig) (*Extraction, error) {
	return p.extract(rc, true)
}

// extract scores the working directory only, or also the organised layout
// directories when organised is set.
func (p *Pipeline) extract(rc config.RunConfig, organised bool) (*Extraction, error) {
	tail := p.excerptLines(rc.DockingConfig)
	ext := &Extraction{}

	logDir, logs, err := p.locate(workspace.Suffix(docking.LogSuffix), p.ws.Layout().Logs, organised)
	if err != nil {
		return nil, err
	}
	for _, name := range logs {
		lines, err := p.tailFile(filepath.Join(logDir, name), tail)
		if err != nil {
			p.log.Warn("cannot read docking log", logging.String("file", name), logging.Err(err))
			continue
		}
		ext.Excerpts = append(ext.Excerpts, docking.Excerpt{Name: name, Lines: lines})
	}

	outDir, outputs, err := p.locate(workspace.Suffix(docking.OutputSuffix), p.ws.Layout().Outputs, organised)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(outputs))
	for _, name := range outputs {
		v, err := p.scoreFile(filepath.Join(outDir, name))
		if err != nil {
			p.log.Error("cannot extract score", logging.String("file", name), logging.Err(err))
			ext.ParseFailed = append(ext.ParseFailed, name)
			continue
		}
		scores[name] = v
	}
	ext.Scores = docking.NewScoreTable(scores)
	ext.Ranking = docking.Rank(ext.Scores)

	p.log.Info("scores extracted",
		logging.Int("ranked", len(ext.Ranking)),
		logging.Int("failed", len(ext.ParseFailed)))
	return ext, nil
}

// locate returns the files matching m in the working directory, or in dir
// when the working directory has none and fallback is set.
func (p *Pipeline) locate(m workspace.Matcher, dir string, fallback bool) (string, []string, error) {
	names, err := p.ws.FilesMatching(".", m)
	if err != nil {
		return "", nil, err
	}
	if len(names) > 0 || !fallback {
		return ".", names, nil
	}
	if ok, _ := afero.DirExists(p.ws.Fs(), dir); !ok {
		return ".", nil, nil
	}
	names, err = p.ws.FilesMatching(dir, m)
	return dir, names, err
}

func (p *Pipeline) excerptLines(dockingConfig string) int {
	fallback := docking.DefaultNumModes + 4
	data, err := p.readFile(dockingConfig)
	if err != nil {
		p.log.Warn("cannot read docking config, using default num_modes",
			logging.String("file", dockingConfig), logging.Err(err))
		return fallback
	}
	cfg, err := docking.ParseDockingConfig(bytes.NewReader(data))
	if err != nil {
		return fallback
	}
	n, err := cfg.ExcerptLines()
	if err != nil {
		p.log.Warn("invalid docking config, using default num_modes", logging.Err(err))
		return fallback
	}
	return n
}

// readFile reads a workspace-relative name, or an absolute OS path.
func (p *Pipeline) readFile(name string) ([]byte, error) {
	fs := p.ws.Fs()
	if filepath.IsAbs(name) && p.ws.Root() != "" {
		fs = afero.NewOsFs()
	}
	return afero.ReadFile(fs, name)
}

func (p *Pipeline) tailFile(name string, n int) ([]string, error) {
	f, err := p.ws.Fs().Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return docking.TailLines(f, n)
}

func (p *Pipeline) scoreFile(name string) (float64, error) {
	f, err := p.ws.Fs().Open(name)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeScoreParseFailed, "open docking output")
	}
	defer f.Close()
	return p.parser.Parse(f)
}

// WriteReports writes the excerpt file and the ranked report into dir.
func (p *Pipeline) WriteReports(ext *Extraction, dir string) error {
	if err := p.ws.Fs().MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeWorkspace, "create report directory").WithDetail(dir)
	}

	var buf bytes.Buffer
	if err := docking.WriteExcerpts(&buf, ext.Excerpts); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "render excerpts")
	}
	if err := p.ws.WriteFile(filepath.Join(dir, p.opts.ResultsFile), buf.Bytes()); err != nil {
		return err
	}

	buf.Reset()
	if err := docking.WriteReport(&buf, ext.Ranking); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "render ranked report")
	}
	return p.ws.WriteFile(filepath.Join(dir, p.opts.SortedFile), buf.Bytes())
}

// ReadRanking reads the ranked report from the results directory.
func (p *Pipeline) ReadRanking() (docking.Ranking, error) {
	name := filepath.Join(p.ws.Layout().Results, p.opts.SortedFile)
	f, err := p.ws.Fs().Open(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeReportInvalid, "open ranked report").WithDetail(name)
	}
	defer f.Close()
	return docking.ReadReport(f)
}
