// Package report renders the decomposition results: one money plot per
// processed slice (stacked category distributions over the truth reference,
// with a ratio panel below) and the cross-configuration ratio overlays,
// both as static figures via gonum/plot and as an interactive go-echarts
// page per output directory.
package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/groomers/internal/config"
	"github.com/banshee-data/groomers/internal/fsutil"
	"github.com/banshee-data/groomers/internal/ratio"
	"github.com/banshee-data/groomers/internal/selection"
)

// Subdirectories of an output directory holding the overlays of each kind.
const (
	EmbeddedTruthDir = "ratios_Embedded_Truth"
	PurityDir        = "ratios_Purity"
	// OverlayPage is the interactive overlay page written per directory.
	OverlayPage = "ratios.html"
)

var formats = map[string]bool{
	"pdf": true, "png": true, "svg": true, "eps": true,
	"jpg": true, "jpeg": true, "tif": true, "tiff": true,
}

// Renderer writes figures below OutputDir. It is safe for concurrent use
// as long as its FileSystem is.
type Renderer struct {
	FS        fsutil.FileSystem
	OutputDir string
	Config    *config.Config

	format string
}

// New creates a renderer for cfg. An empty outputDir falls back to the
// configured output_dir, then to the working directory.
func New(cfg *config.Config, fsys fsutil.FileSystem, outputDir string) (*Renderer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if outputDir == "" {
		outputDir = "."
	}
	format := strings.ToLower(strings.TrimPrefix(cfg.GetFileFormat(), "."))
	if !formats[format] {
		return nil, fmt.Errorf("unsupported file format %q", cfg.GetFileFormat())
	}
	return &Renderer{FS: fsys, OutputDir: outputDir, Config: cfg, format: format}, nil
}

// Format is the figure format without the leading dot.
func (r *Renderer) Format() string { return r.format }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// DeltaR is the angular cut min_theta*R used in labels and file names,
// rounded so binary noise does not leak into paths.
func DeltaR(minTheta, jetR float64) float64 {
	return math.Round(minTheta*jetR*1e9) / 1e9
}

// Dir is the output directory of one observable, radius and R_max:
// {output}/{observable}/jetR{R}/Rmax{R_max}.
func (r *Renderer) Dir(observable string, jetR, rmax float64) string {
	return filepath.Join(r.OutputDir, observable, "jetR"+formatFloat(jetR), "Rmax"+formatFloat(rmax))
}

// MoneyPlotPath is
// {dir}/{grooming}/money_plot_{label}_{min}-{max}_dR{cut}.{format}.
func (r *Renderer) MoneyPlotPath(cfg ratio.Configuration, grooming string, s selection.Slice) string {
	name := fmt.Sprintf("money_plot_%s_%s_dR%s.%s", cfg.Label, s.PtLabel(),
		config.RemovePeriods(DeltaR(s.MinThreshold, cfg.JetR)), r.format)
	return filepath.Join(r.Dir(cfg.Observable, cfg.JetR, cfg.RMax), grooming, name)
}

// KindDir is the subdirectory holding overlays of one ratio kind.
func KindDir(k ratio.Kind) string {
	if k == ratio.TaggedPurity {
		return PurityDir
	}
	return EmbeddedTruthDir
}

// OverlayPath is
// {dir}/{kind dir}/money_plot_ratio_{min}-{max}_dR{cut}_{index}.{format}.
// Observables without a threshold cut drop the dR part.
func (r *Renderer) OverlayPath(req ratio.OverlayRequest, index int, withThreshold bool) string {
	var name string
	if withThreshold {
		name = fmt.Sprintf("money_plot_ratio_%s_dR%s_%d.%s", req.Slice.PtLabel(),
			config.RemovePeriods(DeltaR(req.Slice.MinThreshold, req.JetR)), index, r.format)
	} else {
		name = fmt.Sprintf("money_plot_ratio_%s_%d.%s", req.Slice.PtLabel(), index, r.format)
	}
	return filepath.Join(r.Dir(req.Observable, req.JetR, req.RMax), KindDir(req.Kind), name)
}

// palette creates n distinct fill colors.
func palette(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.55, 0.6)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// withAlpha returns c with its alpha scaled to a, premultiplied.
func withAlpha(c color.Color, a float64) color.Color {
	r, g, b, _ := c.RGBA()
	return color.RGBA64{
		R: uint16(float64(r) * a), G: uint16(float64(g) * a), B: uint16(float64(b) * a),
		A: uint16(0xffff * a),
	}
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// header is the descriptive text shared by every figure.
func (r *Renderer) header(jetR float64, s selection.Slice) []string {
	lines := []string{
		"PYTHIA8 embedded in thermal background",
		"sqrt(s_NN) = 5.02 TeV, charged jets, anti-kT",
		fmt.Sprintf("R = %s   |eta_jet| < %.2f", formatFloat(jetR), r.Config.EtaMax-jetR),
		fmt.Sprintf("%d < pT,ch jet (PYTHIA) < %d GeV/c", int(s.MinPt), int(s.MaxPt)),
	}
	return lines
}

// deltaRLine is the angular cut annotation, empty when no cut applies.
func deltaRLine(jetR float64, s selection.Slice) string {
	if s.MinThreshold <= 1e-3 {
		return ""
	}
	return "Delta R > " + formatFloat(DeltaR(s.MinThreshold, jetR))
}

func (r *Renderer) titles(observable string) (x, y string) {
	x, y = observable, "density"
	if oc := r.Config.Observables[observable]; oc != nil {
		if oc.CommonSettings.XTitle != "" {
			x = oc.CommonSettings.XTitle
		}
		if oc.CommonSettings.YTitle != "" {
			y = oc.CommonSettings.YTitle
		}
	}
	return x, y
}
