package external

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	apperrors "github.com/turtacn/dockpipe/pkg/errors"
)

// pdbCoordWidth is the width of the fixed-column ATOM/HETATM record up to and
// including the temperature factor.  PDBQT appends charge and atom type after
// it, which plain PDB readers reject.
const pdbCoordWidth = 66

// TextMerger builds complexes in process by concatenating coordinate records:
// the receptor's atoms, a TER record, then the first model of the ligand as
// HETATM records.  It needs no external program.
type TextMerger struct {
	fs afero.Fs
}

// NewTextMerger returns a merger working on fs.
func NewTextMerger(fs afero.Fs) *TextMerger {
	return &TextMerger{fs: fs}
}

// Build merges each ligand in dir with receptor.  Per-ligand failures are
// reported in the results; the error is non-nil only when the receptor
// cannot be read.
func (m *TextMerger) Build(ctx context.Context, dir, receptor string, ligands []string) ([]ComplexResult, error) {
	recAtoms, err := m.readAtoms(filepath.Join(dir, receptor), false)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeComplexBuildFailed, "read receptor").WithDetail(receptor)
	}

	results := make([]ComplexResult, 0, len(ligands))
	for _, lig := range ligands {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		out := filepath.Join(dir, ComplexFile(lig))
		r := ComplexResult{Ligand: lig, Output: out}
		ligAtoms, err := m.readAtoms(filepath.Join(dir, lig), true)
		if err == nil && len(ligAtoms) == 0 {
			err = apperrors.New(apperrors.ErrCodeComplexBuildFailed, "ligand has no atom records")
		}
		if err == nil {
			err = m.write(out, recAtoms, ligAtoms)
		}
		if err != nil {
			r.Err = apperrors.Wrap(err, apperrors.ErrCodeComplexBuildFailed, "merge complex").WithDetail(lig)
		}
		results = append(results, r)
	}
	return results, nil
}

// readAtoms returns the ATOM/HETATM records of path trimmed to plain PDB
// width.  With firstModel set, reading stops at the first ENDMDL.
func (m *TextMerger) readAtoms(path string, firstModel bool) ([]string, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanAtoms(f, firstModel)
}

func scanAtoms(r io.Reader, firstModel bool) ([]string, error) {
	var atoms []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if firstModel && strings.HasPrefix(line, "ENDMDL") {
			break
		}
		if strings.HasPrefix(line, "ATOM  ") || strings.HasPrefix(line, "HETATM") {
			if len(line) > pdbCoordWidth {
				line = line[:pdbCoordWidth]
			}
			atoms = append(atoms, line)
		}
	}
	return atoms, sc.Err()
}

func (m *TextMerger) write(path string, receptor, ligand []string) error {
	f, err := m.fs.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	serial := 0
	emit := func(record, line string) {
		serial++
		if len(line) >= 11 {
			line = record + fmt.Sprintf("%5d", serial%100000) + line[11:]
		}
		fmt.Fprintln(w, line)
	}
	for _, line := range receptor {
		emit(line[:6], line)
	}
	fmt.Fprintln(w, "TER")
	for _, line := range ligand {
		emit("HETATM", line)
	}
	fmt.Fprintln(w, "END")
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
