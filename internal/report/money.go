package report

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"strings"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/groomers/internal/decompose"
	"github.com/banshee-data/groomers/internal/fsutil"
	"github.com/banshee-data/groomers/internal/pipeline"
	"github.com/banshee-data/groomers/internal/ratio"
)

const (
	moneyWidth  = 6 * vg.Inch
	moneyHeight = 6.5 * vg.Inch
	// ratioPanel is the fraction of the money plot height given to the
	// ratio panel.
	ratioPanel = 0.3
)

var (
	truthColor  = color.Black
	unityColor  = color.Gray{Y: 0x80}
	purityColor = color.RGBA{R: 0x6a, G: 0x5a, B: 0xcd, A: 0xff}
)

func unityLine() *hplot.HorizLine {
	l := hplot.HLine(1, nil, nil)
	l.Line.Color = unityColor
	l.Line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	return l
}

func ratioPoints(s *hbook.S2D, c color.Color) *hplot.S2D {
	pts := hplot.NewS2D(s, hplot.WithYErrBars(true), hplot.WithGlyphStyle(draw.GlyphStyle{
		Color:  c,
		Radius: vg.Points(2.5),
		Shape:  draw.CircleGlyph{},
	}))
	if pts.YErrs != nil {
		pts.YErrs.LineStyle.Color = c
	}
	return pts
}

// MoneyPlot draws the stacked category distributions of one slice over
// its truth reference, with the measured/truth and tagging-purity ratios
// in a lower panel, and returns the written path.
func (r *Renderer) MoneyPlot(u pipeline.Unit, res *decompose.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("money plot: %w", ratio.ErrNilResult)
	}
	cfg := u.Configuration()
	xtitle, ytitle := r.titles(cfg.Observable)

	rp := hplot.NewRatioPlot()
	rp.Ratio = ratioPanel
	top, bottom := rp.Top, rp.Bottom

	lines := r.header(cfg.JetR, res.Slice)
	lines = append(lines, u.Sub.FormattedGroomingLabel())
	if dr := deltaRLine(cfg.JetR, res.Slice); dr != "" {
		lines = append(lines, dr)
	}
	top.Title.Text = strings.Join(lines, "\n")
	top.Y.Label.Text = ytitle
	top.Legend.Top = true
	top.Legend.XOffs = -10

	colors := palette(len(res.Categories))
	stack := make([]*hplot.H1D, 0, len(res.Categories))
	for i, c := range res.Categories {
		if len(stack) > 0 && !c.Hist.Compatible(res.Categories[0].Hist) {
			return "", fmt.Errorf("category %s: binning differs from %s", c.Category.Name, res.Categories[0].Category.Name)
		}
		h1, err := toH1D(c.Hist)
		if err != nil {
			return "", fmt.Errorf("category %s: %w", c.Category.Name, err)
		}
		h := hplot.NewH1D(h1)
		h.FillColor = colors[i]
		h.LineStyle = draw.LineStyle{Color: colors[i], Width: vg.Points(1)}
		stack = append(stack, h)
		top.Legend.Add(c.Category.Name, h)
	}
	if len(stack) > 0 {
		top.Add(hplot.NewHStack(stack))
	}

	ref, err := toH1D(res.Reference)
	if err != nil {
		return "", fmt.Errorf("reference: %w", err)
	}
	truth := hplot.NewH1D(ref)
	truth.LineStyle = draw.LineStyle{Color: truthColor, Width: vg.Points(2)}
	top.Add(truth)
	top.Legend.Add("Truth", truth)

	top.X.Min, top.X.Max = u.Layout.Min, u.Layout.Max
	top.Y.Min = 0
	if m := res.Reference.Maximum(); m > 0 {
		top.Y.Max = 2.3 * m
	}

	sum, err := toH1D(res.Sum)
	if err != nil {
		return "", fmt.Errorf("sum: %w", err)
	}
	tagged, err := toH1D(res.TaggedSum)
	if err != nil {
		return "", fmt.Errorf("tagged sum: %w", err)
	}
	mvt, err := divide(sum, ref)
	if err != nil {
		return "", fmt.Errorf("ratio: %w", err)
	}
	purity, err := divide(tagged, sum)
	if err != nil {
		return "", fmt.Errorf("purity: %w", err)
	}

	bottom.X.Label.Text = xtitle
	bottom.Y.Label.Text = "Ratio"
	bottom.Legend.Top = true
	bottom.Legend.XOffs = -10
	bottom.Add(unityLine())
	mvtPts, purityPts := ratioPoints(mvt, truthColor), ratioPoints(purity, purityColor)
	bottom.Add(mvtPts, purityPts)
	bottom.Legend.Add(ratio.MeasuredVsTruth.Title(), mvtPts)
	bottom.Legend.Add(ratio.TaggedPurity.Title(), purityPts)

	bottom.X.Min, bottom.X.Max = u.Layout.Min, u.Layout.Max
	bottom.Y.Min, bottom.Y.Max = 0.01, 1.99
	if _, hi := yRange(mvt); hi > bottom.Y.Max {
		bottom.Y.Max = 1.5 * hi
	}
	if lo, _ := yRange(purity); lo < bottom.Y.Min {
		bottom.Y.Min = 0.8 * lo
	}

	raw, err := hplot.Show(rp, moneyWidth, moneyHeight, r.format)
	if err != nil {
		return "", fmt.Errorf("money plot canvas: %w", err)
	}
	path := r.MoneyPlotPath(cfg, u.Sub.GroomingLabel(), res.Slice)
	if err := fsutil.WriteTo(r.FS, path, bytes.NewBuffer(raw)); err != nil {
		return "", err
	}
	return path, nil
}

// Sink renders a money plot for every processed slice.
func (r *Renderer) Sink() pipeline.Sink {
	return pipeline.SinkFunc(func(ctx context.Context, u pipeline.Unit, res *decompose.Result, _ ratio.Pair) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := r.MoneyPlot(u, res)
		return err
	})
}
