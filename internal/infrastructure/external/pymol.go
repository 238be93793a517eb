package external

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/dockpipe/pkg/errors"
)

// ScriptName is the PyMOL script written into the staging directory.
const ScriptName = "build_complexes.pml"

// PyMOL builds complexes by driving one headless PyMOL session with a
// generated script.
type PyMOL struct {
	bin    string
	root   string
	fs     afero.Fs
	runner Runner
	log    logging.Logger
}

// NewPyMOL returns a handle.  root is the OS path that fs is rooted at; it is
// needed because the PyMOL process works on the real filesystem.
func NewPyMOL(bin, root string, fs afero.Fs, runner Runner, log logging.Logger) *PyMOL {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &PyMOL{bin: bin, root: root, fs: fs, runner: runner, log: log}
}

// Script renders the PyMOL commands that merge each ligand with receptor.
// The session is reinitialised after every ligand.
func Script(receptor string, ligands []string) string {
	var sb strings.Builder
	for _, lig := range ligands {
		name := ComplexName(lig)
		fmt.Fprintf(&sb, "load %s, receptor\n", receptor)
		fmt.Fprintf(&sb, "load %s, lig\n", lig)
		fmt.Fprintf(&sb, "create %s, receptor or lig\n", name)
		fmt.Fprintf(&sb, "save %s, %s\n", ComplexFile(lig), name)
		sb.WriteString("reinitialize\n")
	}
	sb.WriteString("quit\n")
	return sb.String()
}

// Build writes the script into dir, runs PyMOL there, and reports per ligand
// whether its complex file was produced.  Existing complex files for the
// ligands are removed first.  The returned error is non-nil only when the
// directory could not be prepared; a failed PyMOL process is reported
// through the per-ligand results.
func (p *PyMOL) Build(ctx context.Context, dir, receptor string, ligands []string) ([]ComplexResult, error) {
	if len(ligands) == 0 {
		return nil, nil
	}
	// A complex left over from an earlier session must not pass for this one.
	for _, lig := range ligands {
		out := filepath.Join(dir, ComplexFile(lig))
		if ok, _ := afero.Exists(p.fs, out); !ok {
			continue
		}
		if err := p.fs.Remove(out); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeComplexBuildFailed, "remove stale complex").WithDetail(out)
		}
	}
	script := filepath.Join(dir, ScriptName)
	if err := afero.WriteFile(p.fs, script, []byte(Script(receptor, ligands)), 0o644); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeComplexBuildFailed, "write pymol script")
	}

	cmd := Command{Name: p.bin, Args: []string{"-cq", ScriptName}, Dir: filepath.Join(p.root, dir)}
	res, runErr := p.runner.Run(ctx, cmd)
	if runErr != nil {
		fields := []logging.Field{logging.Err(runErr)}
		if res != nil {
			fields = append(fields, logging.String("stderr", string(res.Stderr)))
		}
		p.log.Error("pymol session failed", fields...)
	}

	results := make([]ComplexResult, 0, len(ligands))
	for _, lig := range ligands {
		out := filepath.Join(dir, ComplexFile(lig))
		r := ComplexResult{Ligand: lig, Output: out}
		if ok, err := afero.Exists(p.fs, out); err != nil || !ok {
			r.Err = apperrors.New(apperrors.ErrCodeComplexBuildFailed, "complex file was not written").WithDetail(out)
			if runErr != nil {
				r.Err = apperrors.Wrap(runErr, apperrors.ErrCodeComplexBuildFailed, "complex file was not written").WithDetail(out)
			}
		}
		results = append(results, r)
	}
	return results, nil
}
