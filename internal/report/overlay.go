package report

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/groomers/internal/fsutil"
	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/monitoring"
	"github.com/banshee-data/groomers/internal/pipeline"
	"github.com/banshee-data/groomers/internal/ratio"
)

var logf = monitoring.Component("report")

const (
	overlayWidth  = 6 * vg.Inch
	overlayHeight = 4.5 * vg.Inch
)

// OverlaySummary lists what RenderOverlays wrote.
type OverlaySummary struct {
	Files []string
	Pages []string
	// Empty counts overlays skipped because none of their configurations
	// had a stored ratio.
	Empty int
}

// band is the step-shaped ±1σ band of a 1D ratio.
func band(h *hist.Histogram, c color.Color) (*hplot.S2D, error) {
	pts, err := scatter(h)
	if err != nil {
		return nil, err
	}
	s := hplot.NewS2D(pts, hplot.WithBand(true), hplot.WithStepsKind(hplot.HiSteps))
	s.GlyphStyle.Radius = 0
	s.Band.FillColor = withAlpha(c, 0.75)
	s.Band.LineStyle.Width = 0
	return s, nil
}

func legendFor(plan pipeline.OverlayPlan, label string) string {
	if l, ok := plan.Legends[label]; ok && l != "" {
		return l
	}
	return label
}

// RatioOverlay draws the stored ratios of one overlay group as filled
// error bands and returns the written path. It writes nothing and returns
// "" when the group has no stored ratio.
func (r *Renderer) RatioOverlay(plan pipeline.OverlayPlan, ov ratio.Overlay) (string, error) {
	if len(ov.Entries) == 0 {
		return "", nil
	}
	req := ov.Request

	p := hplot.New()
	lines := r.header(req.JetR, req.Slice)
	if plan.Layout.ThresholdAxis != "" {
		if dr := deltaRLine(req.JetR, req.Slice); dr != "" {
			lines = append(lines, dr)
		}
	}
	p.Title.Text = strings.Join(lines, "\n")
	p.X.Label.Text = plan.XTitle
	p.Y.Label.Text = req.Kind.Title()
	p.Legend.Top = true
	p.Legend.XOffs = -10

	colors := palette(len(ov.Entries))
	ymax := 2.49
	for i, e := range ov.Entries {
		b, err := band(e.Hist, colors[i])
		if err != nil {
			return "", fmt.Errorf("overlay %s: %w", e.Label, err)
		}
		p.Add(b)
		p.Legend.Add(legendFor(plan, e.Label), b)
		if m := e.Hist.Maximum(); m > 0.5*ymax {
			ymax = 2 * m
		}
	}
	p.Add(unityLine())
	p.X.Min, p.X.Max = plan.Layout.Min, plan.Layout.Max
	p.Y.Min, p.Y.Max = 0.01, ymax

	raw, err := hplot.Show(p, overlayWidth, overlayHeight, r.format)
	if err != nil {
		return "", fmt.Errorf("overlay canvas: %w", err)
	}
	path := r.OverlayPath(req, plan.Index, plan.Layout.ThresholdAxis != "")
	if err := fsutil.WriteTo(r.FS, path, bytes.NewBuffer(raw)); err != nil {
		return "", err
	}
	return path, nil
}

func binLabels(a hist.Axis) []string {
	out := make([]string, a.NBins())
	for i := range out {
		out[i] = strconv.FormatFloat(a.Center(i), 'g', 4, 64)
	}
	return out
}

// overlayChart is the interactive form of one overlay group.
func (r *Renderer) overlayChart(plan pipeline.OverlayPlan, ov ratio.Overlay) (*charts.Line, error) {
	req := ov.Request
	a, err := axisOf(ov.Entries[0].Hist)
	if err != nil {
		return nil, err
	}

	subtitle := fmt.Sprintf("R=%s pT %s group %d", formatFloat(req.JetR), req.Slice.PtLabel(), plan.Index)
	if plan.Layout.ThresholdAxis != "" {
		subtitle += fmt.Sprintf(" dR>%s", formatFloat(DeltaR(req.Slice.MinThreshold, req.JetR)))
	}
	if len(ov.Missing) > 0 {
		subtitle += " missing: " + strings.Join(ov.Missing, ", ")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s: %s", req.Observable, req.Kind.Title()), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: plan.XTitle, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: req.Kind.Title(), NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(binLabels(a))

	colors := palette(len(ov.Entries))
	for i, e := range ov.Entries {
		data := make([]opts.LineData, a.NBins())
		for b := range data {
			data[b] = opts.LineData{Value: e.Hist.Content(b)}
		}
		line.AddSeries(legendFor(plan, e.Label), data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(colors[i])}))
	}
	return line, nil
}

// RenderOverlays draws every overlay plan from the ratios held by b, then
// writes one interactive page per output directory collecting all of that
// directory's overlays. Groups whose ratios are partly missing are drawn
// with what exists.
func (r *Renderer) RenderOverlays(ctx context.Context, plans []pipeline.OverlayPlan, b *ratio.Builder) (OverlaySummary, error) {
	var sum OverlaySummary
	var dirs []string
	pages := make(map[string][]*charts.Line)

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ov := b.Overlay(plan.Request)
		req := plan.Request
		if len(ov.Entries) == 0 {
			sum.Empty++
			logf("no ratios for %s %s overlay %d (%s)", req.Observable, req.Kind, plan.Index, req.Slice)
			continue
		}
		if len(ov.Missing) > 0 {
			logf("%s %s overlay %d (%s): missing %s",
				req.Observable, req.Kind, plan.Index, req.Slice, strings.Join(ov.Missing, ", "))
		}

		path, err := r.RatioOverlay(plan, ov)
		if err != nil {
			return sum, err
		}
		sum.Files = append(sum.Files, path)

		chart, err := r.overlayChart(plan, ov)
		if err != nil {
			return sum, err
		}
		dir := r.Dir(req.Observable, req.JetR, req.RMax)
		if _, ok := pages[dir]; !ok {
			dirs = append(dirs, dir)
		}
		pages[dir] = append(pages[dir], chart)
	}

	for _, dir := range dirs {
		page := components.NewPage()
		for _, c := range pages[dir] {
			page.AddCharts(c)
		}
		var buf bytes.Buffer
		if err := page.Render(&buf); err != nil {
			return sum, fmt.Errorf("render overlay page %s: %w", dir, err)
		}
		path := filepath.Join(dir, OverlayPage)
		if err := fsutil.WriteTo(r.FS, path, &buf); err != nil {
			return sum, err
		}
		sum.Pages = append(sum.Pages, path)
	}
	return sum, nil
}
