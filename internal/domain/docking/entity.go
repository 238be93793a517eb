// Package docking holds the domain model of a docking run: ligands, their
// scores, the ranking built from them and the run summary published to
// result sinks.  Nothing here performs I/O beyond io.Reader / io.Writer.
package docking

import (
	"sort"
	"strings"
	"time"
)

// File name conventions shared by the pipeline steps.
const (
	LigandExt    = ".pdbqt"
	OutputSuffix = "_out.pdbqt"
	LogSuffix    = "_log.log"
	LibraryExt   = ".sdf"
)

// Ligand is one docked compound.  Name is the docking output file name; it is
// the unit of identity throughout the run.
type Ligand struct {
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	LogExcerpt string  `json:"log_excerpt,omitempty"`
}

// ScoreTable maps docking output file names to scores.  It is built once by
// NewScoreTable and never mutated afterwards.
type ScoreTable struct {
	scores map[string]float64
}

// NewScoreTable copies scores into an immutable table.
func NewScoreTable(scores map[string]float64) ScoreTable {
	m := make(map[string]float64, len(scores))
	for k, v := range scores {
		m[k] = v
	}
	return ScoreTable{scores: m}
}

// Len returns the number of scored ligands.
func (t ScoreTable) Len() int { return len(t.scores) }

// Get returns the score for name.
func (t ScoreTable) Get(name string) (float64, bool) {
	v, ok := t.scores[name]
	return v, ok
}

// Names returns all names in lexical order.
func (t ScoreTable) Names() []string {
	names := make([]string, 0, len(t.scores))
	for k := range t.scores {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RankedEntry is one line of the ranked report.
type RankedEntry struct {
	Rank  int     `json:"rank"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Ranking is an ordered list of entries, best (lowest) score first.
type Ranking []RankedEntry

// Names returns entry names in ranking order.
func (r Ranking) Names() []string {
	names := make([]string, len(r))
	for i, e := range r {
		names[i] = e.Name
	}
	return names
}

// Scores returns entry scores in ranking order.
func (r Ranking) Scores() []float64 {
	out := make([]float64, len(r))
	for i, e := range r {
		out[i] = e.Score
	}
	return out
}

// Top returns the first n entries, or all entries when fewer exist.
func (r Ranking) Top(n int) Ranking {
	if n < 0 {
		n = 0
	}
	if n > len(r) {
		n = len(r)
	}
	return r[:n]
}

// LigandStem strips the docking output or ligand extension from a file name:
// "lig_1_out.pdbqt" and "lig_1.pdbqt" both yield "lig_1".
func LigandStem(name string) string {
	if strings.HasSuffix(name, OutputSuffix) {
		return strings.TrimSuffix(name, OutputSuffix)
	}
	return strings.TrimSuffix(name, LigandExt)
}

// OutputName returns the docking output file name for a ligand input file.
func OutputName(ligandFile string) string {
	return strings.TrimSuffix(ligandFile, LigandExt) + OutputSuffix
}

// LogName returns the captured-output file name for a ligand input file.
func LogName(ligandFile string) string {
	return ligandFile + LogSuffix
}

// Status of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// RunSummary is the outcome of one pipeline run, handed to result sinks.
type RunSummary struct {
	ID            string        `json:"id"`
	Receptor      string        `json:"receptor"`
	Library       string        `json:"library,omitempty"`
	PH            float64       `json:"ph"`
	WorkDir       string        `json:"workdir"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Docked        int           `json:"docked"`
	DockFailed    int           `json:"dock_failed"`
	ParseFailed   int           `json:"parse_failed"`
	Ranking       Ranking       `json:"ranking"`
	Complexes     []string      `json:"complexes,omitempty"`
	ComplexFailed int           `json:"complex_failed,omitempty"`
	ArchivePath   string        `json:"archive_path,omitempty"`
	Status        Status        `json:"status"`
	Duration      time.Duration `json:"duration"`
}

// Best returns the top entry.
func (s *RunSummary) Best() (RankedEntry, bool) {
	if s == nil || len(s.Ranking) == 0 {
		return RankedEntry{}, false
	}
	return s.Ranking[0], true
}

// ResolveStatus derives Status from the counters.
func (s *RunSummary) ResolveStatus() Status {
	switch {
	case len(s.Ranking) == 0:
		return StatusFailed
	case s.DockFailed > 0 || s.ParseFailed > 0:
		return StatusPartial
	default:
		return StatusSucceeded
	}
}
