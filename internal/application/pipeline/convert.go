package pipeline

import (
	"context"
	"strings"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/external"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/workspace"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// intermediates are removed after conversion.
var intermediates = []string{external.PreparedLibrary, external.PreparedPDBQT, external.ConformersPDBQT}

// Convert prepares rc.Ligands and converts every record it yields into a
// single-ligand .pdbqt file in the working directory.  It returns the names
// of the files produced.  A failure to prepare or split the library aborts
// the step; a failed single-record conversion is logged and skipped.
func (p *Pipeline) Convert(ctx context.Context, rc config.RunConfig) ([]string, error) {
	if p.converter == nil {
		return nil, errors.New(errors.ErrCodeValidation, "no converter configured")
	}
	defer p.removeIntermediates()

	existing, err := p.ws.FilesMatching(".", workspace.Suffix(docking.LibraryExt))
	if err != nil {
		return nil, err
	}
	before := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		before[n] = struct{}{}
	}
	if err := p.converter.Prepare(ctx, rc.Ligands, rc.PH); err != nil {
		return nil, err
	}
	if err := p.converter.Split(ctx); err != nil {
		return nil, err
	}
	after, err := p.ws.FilesMatching(".", workspace.Suffix(docking.LibraryExt))
	if err != nil {
		return nil, err
	}

	var converted []string
	for _, sdf := range after {
		if _, seen := before[sdf]; seen || sdf == external.PreparedLibrary {
			continue
		}
		if ctx.Err() != nil {
			return converted, ctx.Err()
		}
		out := strings.TrimSuffix(sdf, docking.LibraryExt) + docking.LigandExt
		if err := p.converter.ToPDBQT(ctx, sdf, out); err != nil {
			p.log.Error("ligand conversion failed", logging.String("file", sdf), logging.Err(err))
			continue
		}
		converted = append(converted, out)
	}
	p.log.Info("ligand library converted", logging.Int("ligands", len(converted)))
	return converted, nil
}

func (p *Pipeline) removeIntermediates() {
	for _, name := range intermediates {
		if err := p.ws.Remove(name); err != nil {
			p.log.Warn("cannot remove intermediate file", logging.String("file", name), logging.Err(err))
		}
	}
}
