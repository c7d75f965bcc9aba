package hist

import (
	"fmt"
	"math"
	"sort"
)

// edgeTolerance is the fraction of a bin width within which a range bound
// is considered to sit on the bin edge.
const edgeTolerance = 1e-9

// Axis is one binned dimension of a Histogram. Edges are contiguous and
// strictly ascending; bin i covers [Edges[i], Edges[i+1]).
//
// The active range is a mask over bin indices [first, last] (inclusive).
// It never changes the stored content.
type Axis struct {
	Name  string
	Edges []float64

	first int
	last  int
}

// NewAxis builds an axis from explicit edges.
func NewAxis(name string, edges []float64) (Axis, error) {
	if len(edges) < 2 {
		return Axis{}, fmt.Errorf("axis %q: need at least 2 edges, got %d", name, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return Axis{}, fmt.Errorf("axis %q: edges must be strictly ascending (edge %d = %g, edge %d = %g)",
				name, i-1, edges[i-1], i, edges[i])
		}
	}
	e := make([]float64, len(edges))
	copy(e, edges)
	return Axis{Name: name, Edges: e, first: 0, last: len(e) - 2}, nil
}

// UniformAxis builds an axis of n equal-width bins over [lo, hi).
func UniformAxis(name string, n int, lo, hi float64) (Axis, error) {
	if n < 1 {
		return Axis{}, fmt.Errorf("axis %q: bin count must be positive, got %d", name, n)
	}
	if !(hi > lo) {
		return Axis{}, fmt.Errorf("axis %q: upper bound %g must exceed lower bound %g", name, hi, lo)
	}
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = lo + (hi-lo)*float64(i)/float64(n)
	}
	edges[n] = hi
	return NewAxis(name, edges)
}

// MustUniformAxis is UniformAxis for static definitions and tests.
func MustUniformAxis(name string, n int, lo, hi float64) Axis {
	a, err := UniformAxis(name, n, lo, hi)
	if err != nil {
		panic(err)
	}
	return a
}

// NBins returns the number of bins on the axis.
func (a Axis) NBins() int { return len(a.Edges) - 1 }

// Width returns the width of bin i.
func (a Axis) Width(i int) float64 { return a.Edges[i+1] - a.Edges[i] }

// Center returns the midpoint of bin i.
func (a Axis) Center(i int) float64 { return 0.5 * (a.Edges[i] + a.Edges[i+1]) }

// Low and High return the full extent of the axis.
func (a Axis) Low() float64  { return a.Edges[0] }
func (a Axis) High() float64 { return a.Edges[len(a.Edges)-1] }

// FindBin returns the index of the bin containing x, or -1 when x lies
// outside the axis.
func (a Axis) FindBin(x float64) int {
	if x < a.Edges[0] || x >= a.Edges[len(a.Edges)-1] || math.IsNaN(x) {
		return -1
	}
	// First edge strictly greater than x, minus one.
	return sort.SearchFloat64s(a.Edges, math.Nextafter(x, math.Inf(1))) - 1
}

// ActiveRange returns the inclusive bin index range currently unmasked.
// An empty mask is reported as first > last.
func (a Axis) ActiveRange() (first, last int) { return a.first, a.last }

// IsRestricted reports whether any bin is masked.
func (a Axis) IsRestricted() bool {
	return a.first != 0 || a.last != a.NBins()-1
}

// setRange masks the axis to the bins overlapping [lo, hi). Infinite bounds
// are the "unrestricted" sentinel on that side. A bound within rounding
// distance of a bin edge is treated as that edge.
func (a *Axis) setRange(lo, hi float64) {
	n := a.NBins()
	if math.IsInf(lo, -1) && math.IsInf(hi, 1) {
		a.first, a.last = 0, n-1
		return
	}
	first, last := n, -1
	for i := 0; i < n; i++ {
		tol := edgeTolerance * a.Width(i)
		if a.Edges[i+1]-tol > lo && a.Edges[i]+tol < hi {
			if i < first {
				first = i
			}
			last = i
		}
	}
	if last < 0 {
		// Nothing overlaps: fully masked.
		a.first, a.last = 1, 0
		return
	}
	a.first, a.last = first, last
}

func (a *Axis) setBins(first, last int) {
	n := a.NBins()
	if first < 0 {
		first = 0
	}
	if last > n-1 {
		last = n - 1
	}
	a.first, a.last = first, last
}

func (a *Axis) reset() { a.first, a.last = 0, a.NBins()-1 }

func (a Axis) clone() Axis {
	e := make([]float64, len(a.Edges))
	copy(e, a.Edges)
	return Axis{Name: a.Name, Edges: e, first: a.first, last: a.last}
}

// sameBinning reports whether two axes have identical edges within a
// relative tolerance.
func sameBinning(a, b Axis) bool {
	if len(a.Edges) != len(b.Edges) {
		return false
	}
	for i := range a.Edges {
		scale := math.Max(math.Abs(a.Edges[i]), math.Abs(b.Edges[i]))
		if math.Abs(a.Edges[i]-b.Edges[i]) > 1e-9*math.Max(scale, 1) {
			return false
		}
	}
	return true
}
