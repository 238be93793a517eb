package pipeline

import (
	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/workspace"
)

// reportPrefix selects the report files moved into the results directory.
const reportPrefix = "results"

type move struct {
	match workspace.Matcher
	dest  string
	what  string
}

// Organize moves logs, docking outputs, converted inputs and reports into
// their layout directories, never touching the receptor.  Files whose
// destination already exists are left in place.  It returns the moved file
// names per destination.  A pass that cannot create its directory or list
// the working directory is logged and skipped.
func (p *Pipeline) Organize(rc config.RunConfig) map[string][]string {
	return p.organize(rc, p.ws.MoveMatching)
}

// organizeRun is Organize for files a run has just produced: they replace
// whatever an earlier run left in the layout directories.
func (p *Pipeline) organizeRun(rc config.RunConfig) map[string][]string {
	return p.organize(rc, p.ws.ReplaceMatching)
}

type moveFunc func(m workspace.Matcher, dest string, exclude ...string) ([]string, error)

func (p *Pipeline) organize(rc config.RunConfig, moveFn moveFunc) map[string][]string {
	l := p.ws.Layout()
	// Order matters: outputs are also .pdbqt files.
	moves := []move{
		{workspace.Suffix(".log"), l.Logs, "logs"},
		{workspace.Suffix(docking.OutputSuffix), l.Outputs, "docking outputs"},
		{workspace.Suffix(docking.LigandExt), l.Inputs, "ligand inputs"},
		{workspace.Prefix(reportPrefix), l.Results, "reports"},
	}

	moved := make(map[string][]string, len(moves))
	for _, m := range moves {
		names, err := moveFn(m.match, m.dest, rc.ReceptorName())
		if err != nil {
			p.log.Error("organize pass aborted", logging.String("pass", m.what), logging.Err(err))
			continue
		}
		moved[m.dest] = names
		p.log.Debug("files organised", logging.String("pass", m.what), logging.Int("moved", len(names)))
	}
	return moved
}
