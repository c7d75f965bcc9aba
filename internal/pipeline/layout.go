package pipeline

import (
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/groomers/internal/config"
	"github.com/banshee-data/groomers/internal/selection"
)

// Axis names shared by every measured and truth histogram.
const (
	PtAxis   = "pt"
	FlagAxis = "flag"
)

// Layout describes how one observable is stored and plotted: which axes the
// measured and truth histograms carry, the plotted range and the rebin
// factor.
type Layout struct {
	Observable string
	// Axis is the axis the distributions are projected onto.
	Axis string
	// ThresholdAxis carries the min_theta cut; empty when the observable
	// has none.
	ThresholdAxis string
	Min           float64
	Max           float64
	Rebin         int

	family string
}

var layouts = map[string]Layout{
	"theta_g": {Observable: "theta_g", Axis: "theta_g", ThresholdAxis: "theta_g", Min: 0, Max: 1, Rebin: 5, family: "h_theta_g_zg"},
	"zg":      {Observable: "zg", Axis: "zg", ThresholdAxis: "theta_g", Min: 0, Max: 0.5, Rebin: 5, family: "h_theta_g_zg"},
	"kappa":   {Observable: "kappa", Axis: "kappa", Min: 0, Max: 0.5, Rebin: 1, family: "h_kappa"},
	"tf":      {Observable: "tf", Axis: "tf", Min: 0, Max: 0.5, Rebin: 1, family: "h_tf"},
}

// LayoutFor returns the layout of a known observable.
func LayoutFor(observable string) (Layout, error) {
	l, ok := layouts[observable]
	if !ok {
		return Layout{}, fmt.Errorf("unknown observable %q", observable)
	}
	return l, nil
}

// MeasuredAxes lists the measured histogram's axes in storage order.
func (l Layout) MeasuredAxes() []string {
	if l.family == "h_theta_g_zg" {
		return []string{PtAxis, "zg", "theta_g", FlagAxis}
	}
	return []string{PtAxis, l.Axis, FlagAxis}
}

// TruthAxes lists the truth histogram's axes in storage order.
func (l Layout) TruthAxes() []string {
	axes := l.MeasuredAxes()
	return axes[:len(axes)-1]
}

// Thresholds returns the threshold list this observable iterates over.
// Observables without a threshold axis run once with threshold 0.
func (l Layout) Thresholds(minTheta []float64) []float64 {
	if l.ThresholdAxis == "" || len(minTheta) == 0 {
		return []float64{0}
	}
	return minTheta
}

// Acceptance is the measured-side acceptance factor for a threshold. The
// theta cut removes a fraction of zg entries that the truth side keeps.
func (l Layout) Acceptance(minTheta float64) float64 {
	if l.Observable == "zg" {
		return 1 - minTheta
	}
	return 1
}

// Domain is the plotted observable range for one grooming setting. For zg
// the lower bound is the SoftDrop zcut when beta is zero.
func (l Layout) Domain(sub config.SubConfig) selection.Domain {
	d := selection.Domain{Observable: l.Axis, Min: math.Inf(-1), Max: l.Max, Threshold: l.ThresholdAxis}
	if l.Observable == "zg" {
		d.Min = sub.ZMin()
	}
	return d
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// MeasuredName is the stored name of the measured histogram.
func (l Layout) MeasuredName(jetR, rmax float64, label string) string {
	return fmt.Sprintf("%s_JetPt_R%s_%s_Rmax%s", l.family, formatFloat(jetR), label, formatFloat(rmax))
}

// TruthName is the stored name of the truth histogram.
func (l Layout) TruthName(jetR float64, label string) string {
	return fmt.Sprintf("%s_JetPt_Truth_R%s_%s", l.family, formatFloat(jetR), label)
}
