// Package analysis computes descriptive statistics over a ranking and renders
// the score distribution.
package analysis

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/spf13/afero"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// Summary describes the score distribution of a run.  Lower scores are
// better, so Best is the minimum.
type Summary struct {
	Count  int     `json:"count"`
	Best   float64 `json:"best"`
	Worst  float64 `json:"worst"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
}

// String renders the summary on one line.
func (s Summary) String() string {
	return fmt.Sprintf("n=%d best=%.2f worst=%.2f mean=%.2f sd=%.2f median=%.2f",
		s.Count, s.Best, s.Worst, s.Mean, s.StdDev, s.Median)
}

// finite drops NaN and infinite scores.
func finite(r docking.Ranking) []float64 {
	out := make([]float64, 0, len(r))
	for _, v := range r.Scores() {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Summarize computes the summary of r.  An empty ranking yields a zero
// Summary.  StdDev is 0 for a single score.
func Summarize(r docking.Ranking) Summary {
	x := finite(r)
	if len(x) == 0 {
		return Summary{}
	}
	sort.Float64s(x)
	s := Summary{
		Count:  len(x),
		Best:   floats.Min(x),
		Worst:  floats.Max(x),
		Mean:   stat.Mean(x, nil),
		Median: stat.Quantile(0.5, stat.Empirical, x, nil),
	}
	if len(x) > 1 {
		s.StdDev = stat.StdDev(x, nil)
	}
	return s
}

// Histogram dimensions.
const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// PlotHistogram renders a PNG histogram of the scores in r with the given
// number of bins and writes it to name on fs.
func PlotHistogram(fs afero.Fs, name string, r docking.Ranking, bins int) error {
	x := finite(r)
	if len(x) == 0 {
		return errors.New(errors.ErrCodeValidation, "no scores to plot")
	}
	if bins < 1 {
		bins = 1
	}

	p := plot.New()
	p.Title.Text = "Docking score distribution"
	p.X.Label.Text = "Affinity (kcal/mol)"
	p.Y.Label.Text = "Ligands"
	p.Add(plotter.NewGrid())

	h, err := plotter.NewHist(plotter.Values(x), bins)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "build histogram")
	}
	p.Add(h)

	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "render histogram")
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "encode histogram")
	}
	if err := afero.WriteFile(fs, name, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "write histogram").WithDetail(name)
	}
	return nil
}
