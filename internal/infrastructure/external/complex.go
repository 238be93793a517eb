package external

import (
	"github.com/turtacn/dockpipe/internal/domain/docking"
)

// ComplexResult is the outcome of merging one ligand with the receptor.
type ComplexResult struct {
	Ligand string
	Output string
	Err    error
}

// ComplexName returns the object name used for a ligand's complex.
func ComplexName(ligand string) string {
	return "complex_" + docking.LigandStem(ligand)
}

// ComplexFile returns the structure file written for a ligand's complex.
func ComplexFile(ligand string) string {
	return ComplexName(ligand) + ".pdb"
}
