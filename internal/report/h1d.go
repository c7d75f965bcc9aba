package report

import (
	"fmt"

	"go-hep.org/x/hep/hbook"

	"github.com/banshee-data/groomers/internal/hist"
)

func axisOf(h *hist.Histogram) (hist.Axis, error) {
	if h == nil {
		return hist.Axis{}, fmt.Errorf("nil histogram")
	}
	if h.Dim() != 1 {
		return hist.Axis{}, fmt.Errorf("histogram %q: expected 1 axis, got %d", h.Name, h.Dim())
	}
	return h.Axes()[0], nil
}

// toH1D copies a 1D histogram into an hbook.H1D with the same edges, bin
// contents and sums of squared weights. Bins that are neither filled nor
// carry an error count as empty.
func toH1D(h *hist.Histogram) (*hbook.H1D, error) {
	a, err := axisOf(h)
	if err != nil {
		return nil, err
	}
	out := hbook.NewH1DFromEdges(a.Edges)
	out.Ann["name"] = h.Name
	total := &out.Binning.Dist.Dist
	for i := range out.Binning.Bins {
		v, e := h.Bin(i)
		d := &out.Binning.Bins[i].Dist.Dist
		d.SumW, d.SumW2 = v, e*e
		if v != 0 || e != 0 {
			d.N = 1
		}
		total.N += d.N
		total.SumW += d.SumW
		total.SumW2 += d.SumW2
	}
	return out, nil
}

// divide is the bin-by-bin ratio num/den as points at the bin centres.
// Empty denominator bins give 0 with no error.
func divide(num, den *hbook.H1D) (*hbook.S2D, error) {
	return hbook.DivideH1D(num, den, hbook.DivReplaceNaNs(0))
}

// scatter turns an already-computed 1D ratio into points spanning each
// bin, with the bin error as symmetric y error.
func scatter(h *hist.Histogram) (*hbook.S2D, error) {
	a, err := axisOf(h)
	if err != nil {
		return nil, err
	}
	pts := make([]hbook.Point2D, a.NBins())
	for i := range pts {
		v, e := h.Bin(i)
		x := a.Center(i)
		pts[i] = hbook.Point2D{
			X:    x,
			Y:    v,
			ErrX: hbook.Range{Min: x - a.Edges[i], Max: a.Edges[i+1] - x},
			ErrY: hbook.Range{Min: e, Max: e},
		}
	}
	return hbook.NewS2D(pts...), nil
}

// yRange is the smallest and largest point value of s.
func yRange(s *hbook.S2D) (lo, hi float64) {
	for i, p := range s.Points() {
		if i == 0 || p.Y < lo {
			lo = p.Y
		}
		if i == 0 || p.Y > hi {
			hi = p.Y
		}
	}
	return lo, hi
}
