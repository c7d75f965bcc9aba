// Package selection turns a kinematic window and observable-domain cut into
// axis restrictions on histogram views.
//
// Every restriction is applied to a fresh hist.View, so the source
// histograms handed in by the loader are never masked in place and can be
// shared between workers.
package selection

import (
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/groomers/internal/hist"
)

// Slice is one (pt window, observable threshold) selection. It is a value
// and is never modified after construction.
type Slice struct {
	MinPt        float64
	MaxPt        float64
	MinThreshold float64
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// PtLabel renders the pt window as "min-max".
func (s Slice) PtLabel() string {
	return formatFloat(s.MinPt) + "-" + formatFloat(s.MaxPt)
}

func (s Slice) String() string {
	return fmt.Sprintf("pt %s, threshold %s", s.PtLabel(), formatFloat(s.MinThreshold))
}

// Slices expands consecutive pt-bin edges and a threshold list into the
// ordered slice list: pt windows outermost, thresholds innermost. An empty
// threshold list means a single zero threshold.
func Slices(ptEdges, thresholds []float64) ([]Slice, error) {
	if len(ptEdges) < 2 {
		return nil, fmt.Errorf("need at least two pt edges, got %d", len(ptEdges))
	}
	for i := 1; i < len(ptEdges); i++ {
		if !(ptEdges[i] > ptEdges[i-1]) {
			return nil, fmt.Errorf("pt edges must be strictly ascending: %g then %g", ptEdges[i-1], ptEdges[i])
		}
	}
	if len(thresholds) == 0 {
		thresholds = []float64{0}
	}
	out := make([]Slice, 0, (len(ptEdges)-1)*len(thresholds))
	for i := 0; i+1 < len(ptEdges); i++ {
		for _, th := range thresholds {
			out = append(out, Slice{MinPt: ptEdges[i], MaxPt: ptEdges[i+1], MinThreshold: th})
		}
	}
	return out, nil
}

// Domain describes the observable-domain cut applied to the plotted shape.
type Domain struct {
	// Observable is the axis the distributions are projected onto.
	Observable string
	// Min and Max bound the observable for the shape. Use -Inf/+Inf for no
	// bound on that side.
	Min float64
	Max float64
	// Threshold is the axis carrying the slice's MinThreshold cut; empty
	// disables the threshold cut. It may equal Observable.
	Threshold string
}

// FullDomain returns an unbounded domain on the given observable axis.
func FullDomain(observable string) Domain {
	return Domain{Observable: observable, Min: math.Inf(-1), Max: math.Inf(1)}
}

// Selector applies slice and domain restrictions.
type Selector struct {
	PtAxis string
	Domain Domain
}

// Window returns a view of h restricted to the slice's pt window only.
// Every other axis keeps whatever mask h carries (unrestricted for loader
// sources), which is what the inclusive normalization integral needs.
func (sel Selector) Window(h *hist.Histogram, s Slice) (*hist.Histogram, error) {
	v := h.View()
	if err := v.Restrict(sel.PtAxis, s.MinPt, s.MaxPt); err != nil {
		return nil, fmt.Errorf("pt window %s: %w", s.PtLabel(), err)
	}
	return v, nil
}

// Shape returns a view of h restricted to the slice's pt window, the
// observable domain and the slice's minimum threshold.
func (sel Selector) Shape(h *hist.Histogram, s Slice) (*hist.Histogram, error) {
	v, err := sel.Window(h, s)
	if err != nil {
		return nil, err
	}
	d := sel.Domain
	lo, hi := d.Min, d.Max
	if d.Threshold != "" && d.Threshold == d.Observable {
		lo = math.Max(lo, s.MinThreshold)
	}
	if err := v.Restrict(d.Observable, lo, hi); err != nil {
		return nil, fmt.Errorf("observable domain: %w", err)
	}
	if d.Threshold != "" && d.Threshold != d.Observable {
		if err := v.Restrict(d.Threshold, s.MinThreshold, math.Inf(1)); err != nil {
			return nil, fmt.Errorf("threshold cut: %w", err)
		}
	}
	return v, nil
}
