package external

import (
	"context"

	apperrors "github.com/turtacn/dockpipe/pkg/errors"
)

// Vina is a handle for the AutoDock Vina docking engine.
type Vina struct {
	bin    string
	config string
	dir    string
	runner Runner
}

// NewVina returns a handle that docks against the configuration file config,
// running bin inside dir.
func NewVina(bin, config, dir string, runner Runner) *Vina {
	return &Vina{bin: bin, config: config, dir: dir, runner: runner}
}

// DockArgs builds the per-ligand invocation.
func DockArgs(config, ligand string) []string {
	return []string{"--config", config, "--ligand", ligand}
}

// Dock docks one ligand file and returns the captured output.  On failure
// the Result is still returned when the process ran, so callers can log
// stderr.
func (v *Vina) Dock(ctx context.Context, ligand string) (*Result, error) {
	res, err := v.runner.Run(ctx, Command{Name: v.bin, Args: DockArgs(v.config, ligand), Dir: v.dir})
	if err != nil {
		return res, apperrors.Wrap(err, apperrors.ErrCodeDockingFailed, "docking failed").WithDetail(ligand)
	}
	return res, nil
}
