package docking

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/dockpipe/pkg/errors"
)

// ReportHeader is the first line of the ranked report.
const ReportHeader = "Sorted Docking Results"

// reportHeaderLines is the number of lines preceding the first entry.
const reportHeaderLines = 2

// Rank orders the table ascending by score.  Equal scores are ordered by
// name so that the result is deterministic.
func Rank(t ScoreTable) Ranking {
	out := make(Ranking, 0, t.Len())
	for name, score := range t.scores {
		out = append(out, RankedEntry{Name: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// FormatScore renders a score the way the report has always shown it: the
// shortest decimal form, with ".0" appended to whole numbers.
func FormatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// WriteReport writes the ranked report:
//
//	Sorted Docking Results
//
//	lig_3_out.pdbqt: -8.4
//	lig_1_out.pdbqt: -6.0
func WriteReport(w io.Writer, r Ranking) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n\n", ReportHeader); err != nil {
		return err
	}
	for _, e := range r {
		if _, err := fmt.Fprintf(bw, "%s: %s\n", e.Name, FormatScore(e.Score)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadReport parses a ranked report.  The two header lines are skipped; each
// following non-blank line yields an entry whose name is the text before the
// first ':'.  An entry without a finite score fails with
// errors.ErrCodeReportInvalid.
func ReadReport(r io.Reader) (Ranking, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeReportInvalid, "read ranked report")
	}
	if len(lines) < reportHeaderLines {
		return Ranking{}, nil
	}

	var out Ranking
	for i, line := range lines[reportHeaderLines:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, rest, _ := strings.Cut(line, ":")
		score, err := firstFloat(rest)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeReportInvalid, "invalid report entry").
				WithDetail(fmt.Sprintf("line %d: %s", i+reportHeaderLines+1, line))
		}
		out = append(out, RankedEntry{Rank: len(out) + 1, Name: strings.TrimSpace(name), Score: score})
	}
	return out, nil
}

// TopNames returns the names of the first n report entries.  Fewer than n
// entries is an error with code errors.ErrCodeInsufficientResults.
func TopNames(r Ranking, n int) ([]string, error) {
	if n > len(r) {
		return nil, errors.Newf(errors.ErrCodeInsufficientResults,
			"requested %d complexes but only %d ranked ligands are available", n, len(r))
	}
	return r.Top(n).Names(), nil
}
