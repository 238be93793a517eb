package docking

import (
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/dockpipe/pkg/errors"
)

// DefaultNumModes is the docking engine's default number of output poses.
const DefaultNumModes = 9

// excerptExtraLines is added to num_modes to size the per-log excerpt: the
// pose table has a three-line header and a trailing "Writing output" line.
const excerptExtraLines = 4

// DockingConfig is a parsed "key = value" docking engine configuration.
type DockingConfig map[string]string

// ParseDockingConfig reads a docking configuration.  Blank lines and text
// after '#' are ignored; lines without '=' are skipped.
func ParseDockingConfig(r io.Reader) (DockingConfig, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "read docking config")
	}
	cfg := DockingConfig{}
	for _, line := range lines {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		cfg[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return cfg, nil
}

// NumModes returns num_modes, or DefaultNumModes when unset.
func (c DockingConfig) NumModes() (int, error) {
	raw, ok := c["num_modes"]
	if !ok || raw == "" {
		return DefaultNumModes, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.Newf(errors.ErrCodeValidation, "invalid num_modes %q", raw)
	}
	return n, nil
}

// ExcerptLines is the number of trailing log lines kept per ligand.
func (c DockingConfig) ExcerptLines() (int, error) {
	n, err := c.NumModes()
	if err != nil {
		return 0, err
	}
	return n + excerptExtraLines, nil
}
