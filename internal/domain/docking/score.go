package docking

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/turtacn/dockpipe/pkg/errors"
)

// ScoreMode selects how a score is located in a docking output file.
type ScoreMode string

const (
	// ScoreModeLabel applies ScoreModePositional and, when line index 1
	// carries no score, searches for the first labelled line.
	ScoreModeLabel ScoreMode = "label"
	// ScoreModePositional reads the second line of the file only.
	ScoreModePositional ScoreMode = "positional"
)

// scoreLine is the zero-based line that carries the best-pose score in a
// Vina output file ("REMARK VINA RESULT:    -7.3  0.000  0.000").
const scoreLine = 1

// ScoreParser extracts the best-pose score from a docking output file.
type ScoreParser struct {
	mode   ScoreMode
	labels []string
}

// NewScoreParser returns a parser for mode.  Unknown modes behave as
// ScoreModeLabel.  labels are matched as plain substrings.
func NewScoreParser(mode ScoreMode, labels []string) *ScoreParser {
	if mode != ScoreModePositional {
		mode = ScoreModeLabel
	}
	return &ScoreParser{mode: mode, labels: append([]string(nil), labels...)}
}

// Parse reads r and returns the score.  Failures carry
// errors.ErrCodeScoreParseFailed.
func (p *ScoreParser) Parse(r io.Reader) (float64, error) {
	lines, err := readLines(r)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeScoreParseFailed, "read docking output")
	}

	v, err := ParsePositional(lines)
	if err == nil || p.mode == ScoreModePositional {
		return v, err
	}
	if v, ok := p.parseLabelled(lines); ok {
		return v, nil
	}
	return 0, err
}

func (p *ScoreParser) parseLabelled(lines []string) (float64, bool) {
	for _, line := range lines {
		for _, label := range p.labels {
			idx := strings.Index(line, label)
			if idx < 0 {
				continue
			}
			rest := strings.TrimSpace(line[idx+len(label):])
			rest = strings.TrimLeft(rest, ":= \t")
			if v, err := firstFloat(rest); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// ParsePositional applies the fixed-position contract: line index 1, the
// text between the first and second ':', first whitespace token.
func ParsePositional(lines []string) (float64, error) {
	if len(lines) <= scoreLine {
		return 0, errors.Newf(errors.ErrCodeScoreParseFailed, "expected at least %d lines, got %d", scoreLine+1, len(lines))
	}
	parts := strings.Split(lines[scoreLine], ":")
	if len(parts) < 2 {
		return 0, errors.New(errors.ErrCodeScoreParseFailed, "score line has no ':' separator").
			WithDetail(lines[scoreLine])
	}
	v, err := firstFloat(parts[1])
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeScoreParseFailed, "score is not a number").
			WithDetail(lines[scoreLine])
	}
	return v, nil
}

func firstFloat(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, errors.New(errors.ErrCodeScoreParseFailed, "empty score field")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New(errors.ErrCodeScoreParseFailed, "score is not finite").WithDetail(fields[0])
	}
	return v, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}
