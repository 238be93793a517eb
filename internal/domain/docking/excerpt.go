package docking

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Excerpt is the tail of one captured docking log.
type Excerpt struct {
	Name  string
	Lines []string
}

// Text joins the excerpt lines with newlines.
func (e Excerpt) Text() string {
	return strings.Join(e.Lines, "\n")
}

// TailLines returns the last n lines of r.
func TailLines(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	start := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) < n {
			ring = append(ring, sc.Text())
			continue
		}
		ring[start] = sc.Text()
		start = (start + 1) % n
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ring))
	out = append(out, ring[start:]...)
	out = append(out, ring[:start]...)
	return out, nil
}

// WriteExcerpts writes the excerpts in the layout "tail -n N a b ..." uses:
// a "==> name <==" header per file and a blank line between files.
func WriteExcerpts(w io.Writer, excerpts []Excerpt) error {
	bw := bufio.NewWriter(w)
	for i, e := range excerpts {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "==> %s <==\n", e.Name); err != nil {
			return err
		}
		for _, line := range e.Lines {
			if _, err := fmt.Fprintln(bw, line); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
