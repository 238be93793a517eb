package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/external"
)

// summaryView renders a run summary.
type summaryView struct {
	*docking.RunSummary
}

func (v summaryView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s (%s)\n", v.ID, v.Status)
	fmt.Fprintf(&sb, "receptor: %s\n", v.Receptor)
	fmt.Fprintf(&sb, "docked: %d, failed: %d, unparsable: %d, ranked: %d\n",
		v.Docked, v.DockFailed, v.ParseFailed, len(v.Ranking))
	if best, ok := v.Best(); ok {
		fmt.Fprintf(&sb, "best: %s %s\n", best.Name, docking.FormatScore(best.Score))
	}
	if len(v.Complexes) > 0 {
		fmt.Fprintf(&sb, "complexes: %s\n", strings.Join(v.Complexes, ", "))
	}
	if v.ArchivePath != "" {
		fmt.Fprintf(&sb, "archive: %s\n", v.ArchivePath)
	}
	fmt.Fprintf(&sb, "duration: %s", v.Duration.Round(time.Millisecond))
	return sb.String()
}

func (v summaryView) TableHeaders() []string { return rankingView(v.Ranking).TableHeaders() }

func (v summaryView) TableRows() [][]string { return rankingView(v.Ranking).TableRows() }

// rankingView renders a ranking.
type rankingView docking.Ranking

func (v rankingView) String() string {
	lines := make([]string, len(v))
	for i, e := range v {
		lines[i] = fmt.Sprintf("%d. %s: %s", e.Rank, e.Name, docking.FormatScore(e.Score))
	}
	return strings.Join(lines, "\n")
}

func (v rankingView) TableHeaders() []string { return []string{"RANK", "LIGAND", "SCORE"} }

func (v rankingView) TableRows() [][]string {
	rows := make([][]string, len(v))
	for i, e := range v {
		rows[i] = []string{strconv.Itoa(e.Rank), e.Name, docking.FormatScore(e.Score)}
	}
	return rows
}

// movesView renders the files moved by the organizer, by directory.
type movesView map[string][]string

func (v movesView) dirs() []string {
	dirs := make([]string, 0, len(v))
	for d := range v {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

func (v movesView) String() string {
	var lines []string
	for _, d := range v.dirs() {
		lines = append(lines, fmt.Sprintf("%s: %d file(s)", d, len(v[d])))
	}
	return strings.Join(lines, "\n")
}

func (v movesView) TableHeaders() []string { return []string{"DIRECTORY", "FILES"} }

func (v movesView) TableRows() [][]string {
	var rows [][]string
	for _, d := range v.dirs() {
		rows = append(rows, []string{d, strings.Join(v[d], " ")})
	}
	return rows
}

// complexesView renders complex assembly results.
type complexesView []external.ComplexResult

type complexJSON struct {
	Ligand string `json:"ligand"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (v complexesView) MarshalJSON() ([]byte, error) {
	out := make([]complexJSON, len(v))
	for i, r := range v {
		out[i] = complexJSON{Ligand: r.Ligand, Output: r.Output}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			out[i].Output = ""
		}
	}
	return json.Marshal(out)
}

func (v complexesView) String() string {
	var lines []string
	for _, r := range v {
		if r.Err != nil {
			lines = append(lines, fmt.Sprintf("%s: failed: %v", r.Ligand, r.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", r.Ligand, r.Output))
	}
	return strings.Join(lines, "\n")
}

func (v complexesView) TableHeaders() []string { return []string{"LIGAND", "COMPLEX", "STATUS"} }

func (v complexesView) TableRows() [][]string {
	rows := make([][]string, len(v))
	for i, r := range v {
		if r.Err != nil {
			rows[i] = []string{r.Ligand, "", "failed"}
			continue
		}
		rows[i] = []string{r.Ligand, r.Output, "ok"}
	}
	return rows
}
