// Package plot draws per-province charts of the reconciled series.
package plot

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/report"
)

const (
	width  = 10 * vg.Inch
	height = 5 * vg.Inch

	// maxRenders bounds how many charts are drawn at once.
	maxRenders = 4
)

var (
	dailyColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	totalColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
)

// New builds the chart of one province: daily new cases and the running
// total on a shared time axis.
func New(province string, rows []history.Row) (*gplot.Plot, error) {
	if len(rows) == 0 {
		return nil, eris.Errorf("plot: %s has no rows", province)
	}

	p := gplot.New()
	p.Title.Text = "SARS-CoV-2 cases: " + province
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Cases"
	p.X.Tick.Marker = gplot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	daily := make(plotter.XYs, len(rows))
	total := make(plotter.XYs, len(rows))
	for i, r := range rows {
		x := float64(r.Date.Unix())
		daily[i] = plotter.XY{X: x, Y: float64(r.Total)}
		total[i] = plotter.XY{X: x, Y: float64(r.TotalSum)}
	}

	dailyLine, err := plotter.NewLine(daily)
	if err != nil {
		return nil, eris.Wrapf(err, "plot: %s daily line", province)
	}
	dailyLine.Color = dailyColor

	totalLine, err := plotter.NewLine(total)
	if err != nil {
		return nil, eris.Wrapf(err, "plot: %s total line", province)
	}
	totalLine.Color = totalColor

	p.Add(dailyLine, totalLine)
	p.Legend.Add("New cases", dailyLine)
	p.Legend.Add("All-time", totalLine)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// FileName returns the PNG name of a province chart.
func FileName(province string) string {
	return "covid19pl_" + report.FileSlug(province) + ".png"
}

// Render writes the chart of one province to path as PNG.
func Render(path, province string, rows []history.Row) error {
	p, err := New(province, rows)
	if err != nil {
		return err
	}
	if err := p.Save(width, height, path); err != nil {
		return eris.Wrapf(err, "plot: save %s", path)
	}
	return nil
}

// RenderAll writes one PNG per province into dir, a few at a time, and
// returns the paths in province order. Provinces without rows are skipped.
func RenderAll(ctx context.Context, dir string, series map[string][]history.Row, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "plot: create %s", dir)
	}

	provinces := make([]string, 0, len(series))
	for p, rows := range series {
		if len(rows) > 0 {
			provinces = append(provinces, p)
		}
	}
	sort.Strings(provinces)

	paths := make([]string, len(provinces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxRenders)
	for i, p := range provinces {
		paths[i] = filepath.Join(dir, FileName(p))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := Render(paths[i], p, series[p]); err != nil {
				return err
			}
			log.Debug("chart rendered", zap.String("province", p), zap.String("path", paths[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
