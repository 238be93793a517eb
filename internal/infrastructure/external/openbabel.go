package external

import (
	"context"
	"strconv"

	apperrors "github.com/turtacn/dockpipe/pkg/errors"
)

// Intermediate files produced while preparing a library.
const (
	PreparedLibrary = "prep_subs.sdf"
	PreparedPDBQT   = "prep_subs.pdbqt"
	ConformersPDBQT = "conformers.pdbqt"
)

// dedupOption removes duplicate records by canonical SMILES without
// stereochemistry.
const dedupOption = "cansmiNS"

// OpenBabel is a handle for the obabel format converter.
type OpenBabel struct {
	bin    string
	dir    string
	runner Runner
}

// NewOpenBabel returns a handle running bin inside dir.
func NewOpenBabel(bin, dir string, runner Runner) *OpenBabel {
	return &OpenBabel{bin: bin, dir: dir, runner: runner}
}

// PrepareArgs builds the deduplicate/protonate invocation.  A pH of 0 omits
// the protonation flag.
func PrepareArgs(library string, pH float64) []string {
	args := []string{library, "-O", PreparedLibrary}
	if pH != 0 {
		args = append(args, "-p", strconv.FormatFloat(pH, 'f', -1, 64))
	}
	return append(args, "--unique", dedupOption)
}

// Prepare deduplicates and protonates library into PreparedLibrary.
func (o *OpenBabel) Prepare(ctx context.Context, library string, pH float64) error {
	return o.run(ctx, PrepareArgs(library, pH), "prepare ligand library")
}

// Split writes one .sdf file per record of PreparedLibrary, named after the
// record title.
func (o *OpenBabel) Split(ctx context.Context) error {
	args := []string{"-isdf", PreparedLibrary, "-osdf", "--split", "--unique"}
	return o.run(ctx, args, "split prepared library")
}

// ToPDBQT converts a single .sdf file into a .pdbqt file.
func (o *OpenBabel) ToPDBQT(ctx context.Context, sdf, pdbqt string) error {
	args := []string{"-isdf", sdf, "-opdbqt", "-O", pdbqt}
	return o.run(ctx, args, "convert ligand to pdbqt")
}

func (o *OpenBabel) run(ctx context.Context, args []string, what string) error {
	cmd := Command{Name: o.bin, Args: args, Dir: o.dir}
	res, err := o.runner.Run(ctx, cmd)
	if err != nil {
		ae := apperrors.Wrap(err, apperrors.ErrCodeConversionFailed, what)
		if res != nil && len(res.Stderr) > 0 {
			ae = ae.WithDetail(string(res.Stderr))
		}
		return ae
	}
	return nil
}
