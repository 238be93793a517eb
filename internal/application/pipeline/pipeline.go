// Package pipeline runs a docking job end to end: conversion, docking,
// score extraction and ranking, file organisation, optional complex
// assembly, then analysis, archiving and publication to result sinks.
//
// Steps run strictly in sequence against one working directory.  Each step
// is also exported on its own so that commands can re-run a single stage on
// an existing directory.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/turtacn/dockpipe/internal/application/analysis"
	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/external"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/archive"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/workspace"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// Converter prepares a ligand library and converts single records.
type Converter interface {
	Prepare(ctx context.Context, library string, pH float64) error
	Split(ctx context.Context) error
	ToPDBQT(ctx context.Context, sdf, pdbqt string) error
}

// DockingEngine docks one ligand file.
type DockingEngine interface {
	Dock(ctx context.Context, ligand string) (*external.Result, error)
}

// ComplexBuilder merges ligands with the receptor inside dir.
type ComplexBuilder interface {
	Build(ctx context.Context, dir, receptor string, ligands []string) ([]external.ComplexResult, error)
}

// Sink receives the summary of every finished run.
type Sink interface {
	Name() string
	Publish(ctx context.Context, s *docking.RunSummary) error
}

// Options are the run-independent settings of a Pipeline.
type Options struct {
	ResultsFile string
	SortedFile  string

	ScoreMode   docking.ScoreMode
	ScoreLabels []string

	Analysis      bool
	Bins          int
	HistogramFile string

	Archive      bool
	ArchiveLevel zstd.EncoderLevel
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ResultsFile:   cfg.Layout.ResultsFile,
		SortedFile:    cfg.Layout.SortedFile,
		ScoreMode:     docking.ScoreMode(cfg.Score.Mode),
		ScoreLabels:   cfg.Score.Labels,
		Analysis:      cfg.Analysis.Enabled,
		Bins:          cfg.Analysis.Bins,
		HistogramFile: cfg.Analysis.HistogramFile,
		Archive:       cfg.Archive.Enabled,
		ArchiveLevel:  archive.ParseLevel(cfg.Archive.Level),
	}
}

func (o *Options) applyDefaults() {
	if o.ResultsFile == "" {
		o.ResultsFile = config.DefaultResultsFile
	}
	if o.SortedFile == "" {
		o.SortedFile = config.DefaultSortedFile
	}
	if o.ScoreMode == "" {
		o.ScoreMode = docking.ScoreModeLabel
	}
	if len(o.ScoreLabels) == 0 {
		o.ScoreLabels = config.DefaultScoreLabels
	}
	if o.Bins < 1 {
		o.Bins = config.DefaultHistogramBins
	}
	if o.HistogramFile == "" {
		o.HistogramFile = config.DefaultHistogramFile
	}
}

// Deps are the collaborators of a Pipeline.  Builder, Sinks and Metrics are
// optional.
type Deps struct {
	Workspace *workspace.Workspace
	Converter Converter
	Engine    DockingEngine
	Builder   ComplexBuilder
	Sinks     []Sink
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger
}

// Pipeline runs docking jobs in one working directory.
type Pipeline struct {
	ws        *workspace.Workspace
	converter Converter
	engine    DockingEngine
	builder   ComplexBuilder
	parser    *docking.ScoreParser
	sinks     []Sink
	metrics   *prometheus.AppMetrics
	opts      Options
	log       logging.Logger
}

// New returns a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Workspace == nil {
		return nil, errors.New(errors.ErrCodeValidation, "pipeline: workspace is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	opts.applyDefaults()
	return &Pipeline{
		ws:        deps.Workspace,
		converter: deps.Converter,
		engine:    deps.Engine,
		builder:   deps.Builder,
		parser:    docking.NewScoreParser(opts.ScoreMode, opts.ScoreLabels),
		sinks:     deps.Sinks,
		metrics:   deps.Metrics,
		opts:      opts,
		log:       deps.Logger,
	}, nil
}

// Workspace returns the working directory the pipeline operates on.
func (p *Pipeline) Workspace() *workspace.Workspace { return p.ws }

// RunResult is the in-memory handoff between the steps of one run.
type RunResult struct {
	Summary    *docking.RunSummary
	Converted  []string
	Dock       *DockReport
	Extraction *Extraction
	Stats      analysis.Summary
	Complexes  []external.ComplexResult
	Archive    string
}

// Run executes every step for rc and returns the run summary.  Step
// failures are logged and do not stop later steps; the returned error is
// non-nil when rc is invalid, when the context is cancelled, or when the
// requested complexes could not be assembled.  The summary is returned and
// published in every case except an invalid rc.
func (p *Pipeline) Run(ctx context.Context, rc config.RunConfig) (*docking.RunSummary, error) {
	res, err := p.Execute(ctx, rc)
	if res == nil {
		return nil, err
	}
	return res.Summary, err
}

// Execute is Run returning the per-step results as well.
func (p *Pipeline) Execute(ctx context.Context, rc config.RunConfig) (*RunResult, error) {
	if err := rc.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid run configuration")
	}

	sum := &docking.RunSummary{
		ID:        uuid.NewString(),
		Receptor:  rc.ReceptorName(),
		Library:   rc.Ligands,
		PH:        rc.PH,
		WorkDir:   p.ws.Root(),
		StartedAt: time.Now().UTC(),
	}
	log := p.log.With(logging.String("run_id", sum.ID))
	log.Info("docking run started",
		logging.String("receptor", sum.Receptor),
		logging.String("ligands", rc.Ligands),
		logging.Float64("ph", rc.PH))

	res := &RunResult{Summary: sum}
	var runErr error

	if rc.Ligands != "" {
		p.stage("convert", func() {
			converted, err := p.Convert(ctx, rc)
			if err != nil {
				log.Error("conversion step aborted", logging.Err(err))
			}
			res.Converted = converted
			if _, err := p.ws.ReplaceMatching(workspace.Suffix(docking.LibraryExt), p.ws.Layout().Backup, rc.ReceptorName()); err != nil {
				log.Error("backup of ligand libraries aborted", logging.Err(err))
			}
		})
	}

	dockStart := time.Now()
	p.stage("dock", func() {
		report, err := p.Dock(ctx, rc)
		if err != nil {
			log.Error("docking step aborted", logging.Err(err))
		}
		res.Dock = report
	})

	p.stage("extract", func() {
		ext, err := p.extract(rc, false)
		if err != nil {
			log.Error("extraction step aborted", logging.Err(err))
			return
		}
		if err := p.WriteReports(ext, p.ws.Layout().Results); err != nil {
			log.Error("writing reports failed", logging.Err(err))
		}
		res.Extraction = ext
	})
	log.Info("docking and extraction finished",
		logging.Float64("runtime_mins", time.Since(dockStart).Minutes()))

	p.stage("organize", func() { p.organizeRun(rc) })

	if res.Extraction != nil {
		sum.Ranking = res.Extraction.Ranking
		sum.ParseFailed = len(res.Extraction.ParseFailed)
	}
	if res.Dock != nil {
		sum.Docked = len(res.Dock.Docked)
		sum.DockFailed = len(res.Dock.Failed)
	}

	if p.opts.Analysis && len(sum.Ranking) > 0 {
		p.stage("analysis", func() {
			res.Stats = p.Analyze(sum.Ranking)
			log.Info("score summary", logging.String("summary", res.Stats.String()))
		})
	}

	if rc.Complexes > 0 {
		p.stage("complexes", func() {
			results, err := p.assemble(ctx, rc, sum.Ranking, rc.Complexes)
			if err != nil {
				log.Error("complex assembly failed", logging.Err(err))
				runErr = err
			}
			res.Complexes = results
			for _, r := range results {
				if r.Err != nil {
					sum.ComplexFailed++
					continue
				}
				sum.Complexes = append(sum.Complexes, r.Output)
			}
		})
	}

	if p.opts.Archive {
		p.stage("archive", func() {
			path, err := p.ArchiveRun(sum.ID)
			if err != nil {
				log.Error("archiving failed", logging.Err(err))
				return
			}
			res.Archive = path
			sum.ArchivePath = p.ws.OSPath(path)
		})
	}

	sum.FinishedAt = time.Now().UTC()
	sum.Duration = sum.FinishedAt.Sub(sum.StartedAt)
	sum.Status = sum.ResolveStatus()

	p.publish(ctx, sum)
	if p.metrics != nil {
		prometheus.RecordRun(p.metrics, sum)
	}

	log.Info("docking run finished",
		logging.String("status", string(sum.Status)),
		logging.Int("ranked", len(sum.Ranking)),
		logging.Int("dock_failed", sum.DockFailed),
		logging.Int("parse_failed", sum.ParseFailed),
		logging.Duration("duration", sum.Duration))

	if runErr == nil && ctx.Err() != nil {
		runErr = errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "docking run interrupted")
	}
	return res, runErr
}

func (p *Pipeline) stage(name string, fn func()) {
	start := time.Now()
	fn()
	if p.metrics != nil {
		prometheus.RecordStage(p.metrics, name, time.Since(start))
	}
}

// Analyze summarises r and, when possible, writes the histogram into the
// results directory.  A plotting failure is logged.
func (p *Pipeline) Analyze(r docking.Ranking) analysis.Summary {
	s := analysis.Summarize(r)
	name := filepath.Join(p.ws.Layout().Results, p.opts.HistogramFile)
	if err := p.ws.Fs().MkdirAll(p.ws.Layout().Results, 0o755); err != nil {
		p.log.Warn("cannot create results directory", logging.Err(err))
		return s
	}
	if err := analysis.PlotHistogram(p.ws.Fs(), name, r, p.opts.Bins); err != nil {
		p.log.Warn("histogram not written", logging.Err(err))
	}
	return s
}

// ArchiveRun packs the results, logs, outputs and complexes directories into
// backup/<id>.tar.zst and returns the workspace-relative archive path.
func (p *Pipeline) ArchiveRun(id string) (string, error) {
	l := p.ws.Layout()
	name := filepath.Join(l.Backup, id+archive.Extension)
	n, err := archive.Create(p.ws.Fs(), name, p.opts.ArchiveLevel, l.Results, l.Logs, l.Outputs, l.Complexes)
	if err != nil {
		return "", err
	}
	p.log.Info("run archived", logging.String("archive", name), logging.Int("files", n))
	return name, nil
}

func (p *Pipeline) publish(ctx context.Context, s *docking.RunSummary) {
	for _, sink := range p.sinks {
		err := sink.Publish(ctx, s)
		if p.metrics != nil {
			prometheus.RecordSinkPublish(p.metrics, sink.Name(), err == nil)
		}
		if err != nil {
			p.log.Error("result sink failed", logging.String("sink", sink.Name()), logging.Err(err))
			continue
		}
		p.log.Debug("run published", logging.String("sink", sink.Name()))
	}
}
