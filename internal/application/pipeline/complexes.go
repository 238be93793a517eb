package pipeline

import (
	"context"
	"path/filepath"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/external"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// AssembleComplexes stages the top n docking outputs of the ranked report
// together with the receptor in the complexes directory, then merges each
// ligand with the receptor.  Fewer than n ranked entries, or a missing
// docking output, fails the step before anything is merged.  Per-ligand
// merge failures are reported in the results and logged.
func (p *Pipeline) AssembleComplexes(ctx context.Context, rc config.RunConfig, n int) ([]external.ComplexResult, error) {
	ranking, err := p.ReadRanking()
	if err != nil {
		return nil, err
	}
	return p.assemble(ctx, rc, ranking, n)
}

// assemble is AssembleComplexes for an in-memory ranking.
func (p *Pipeline) assemble(ctx context.Context, rc config.RunConfig, ranking docking.Ranking, n int) ([]external.ComplexResult, error) {
	if p.builder == nil {
		return nil, errors.New(errors.ErrCodeValidation, "no complex builder configured")
	}
	names, err := docking.TopNames(ranking, n)
	if err != nil {
		return nil, err
	}

	l := p.ws.Layout()
	if err := p.ws.Fs().MkdirAll(l.Complexes, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWorkspace, "create complexes directory")
	}
	for _, name := range names {
		if err := p.ws.Copy(filepath.Join(l.Outputs, name), filepath.Join(l.Complexes, name)); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeComplexBuildFailed, "stage docking output").WithDetail(name)
		}
	}
	receptor := rc.ReceptorName()
	if err := p.ws.Copy(rc.Receptor, filepath.Join(l.Complexes, receptor)); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeComplexBuildFailed, "stage receptor").WithDetail(rc.Receptor)
	}

	results, err := p.builder.Build(ctx, l.Complexes, receptor, names)
	if err != nil {
		return nil, err
	}
	built := 0
	for _, r := range results {
		if p.metrics != nil {
			prometheus.RecordCommand(p.metrics, "complex", r.Err == nil)
		}
		if r.Err != nil {
			p.log.Error("complex not built", logging.String("ligand", r.Ligand), logging.Err(r.Err))
			continue
		}
		built++
	}
	p.log.Info("complexes assembled", logging.Int("requested", n), logging.Int("built", built))
	return results, nil
}
