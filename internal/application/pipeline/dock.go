package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/workspace"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// DockReport lists what the docking step did.
type DockReport struct {
	Docked []string
	Failed []string
	Logs   []string
}

// Ligands returns the ligand files eligible for docking in the working
// directory, sorted by name: every .pdbqt file except the receptor, docking
// outputs and conversion intermediates.
func (p *Pipeline) Ligands(rc config.RunConfig) ([]string, error) {
	names, err := p.ws.FilesMatching(".", workspace.Suffix(docking.LigandExt))
	if err != nil {
		return nil, err
	}
	receptor := rc.ReceptorName()
	out := names[:0]
	for _, n := range names {
		if n == receptor || strings.HasSuffix(n, docking.OutputSuffix) || isIntermediate(n) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func isIntermediate(name string) bool {
	for _, i := range intermediates {
		if name == i {
			return true
		}
	}
	return false
}

// Dock runs the docking engine once per ligand, one at a time, writing the
// captured output to <ligand>_log.log.  A failed ligand is logged with the
// engine's stderr and its log file gets empty content; the loop continues.
// The error is non-nil only when the ligands cannot be listed or ctx ends.
func (p *Pipeline) Dock(ctx context.Context, rc config.RunConfig) (*DockReport, error) {
	if p.engine == nil {
		return nil, errors.New(errors.ErrCodeValidation, "no docking engine configured")
	}
	ligands, err := p.Ligands(rc)
	if err != nil {
		return nil, err
	}
	p.log.Info("docking ligands", logging.Int("count", len(ligands)))

	report := &DockReport{}
	for i, lig := range ligands {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		start := time.Now()
		res, err := p.engine.Dock(ctx, lig)
		ok := err == nil
		if p.metrics != nil {
			prometheus.RecordDock(p.metrics, ok, time.Since(start))
			prometheus.RecordCommand(p.metrics, "vina", ok)
		}

		output := ""
		if ok {
			output = string(res.Stdout)
			p.log.Info("docking output", logging.String("ligand", lig), logging.String("output", output))
			report.Docked = append(report.Docked, lig)
		} else {
			fields := []logging.Field{logging.String("ligand", lig), logging.Err(err)}
			if res != nil {
				fields = append(fields, logging.String("stderr", string(res.Stderr)))
			}
			p.log.Error("docking failed", fields...)
			report.Failed = append(report.Failed, lig)
		}

		logName := docking.LogName(lig)
		if werr := p.ws.WriteFile(logName, []byte(output)); werr != nil {
			p.log.Error("cannot write docking log", logging.String("file", logName), logging.Err(werr))
		} else {
			report.Logs = append(report.Logs, logName)
		}
		p.log.Debug("ligand docked",
			logging.String("ligand", lig),
			logging.Int("index", i+1),
			logging.Int("total", len(ligands)),
			logging.Bool("ok", ok))
	}
	return report, nil
}
