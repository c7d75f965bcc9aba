// Package hist provides an N-dimensional binned histogram with per-axis
// range masks, projection, rebinning, scaling and zero-safe division.
//
// Restricting an axis only masks bins; the stored content is untouched and
// the mask can be widened again at any time. Restricted views share their
// parent's storage copy-on-write, so taking a view of a shared source
// histogram is cheap and never disturbs other readers.
//
// Division convention: wherever the divisor bin is zero the quotient bin is
// set to zero (content and error). This holds for every ratio built in this
// module and keeps downstream rendering free of NaN and Inf.
package hist

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// ScaleMode selects how Scale treats bin widths.
type ScaleMode int

const (
	// ScaleCount multiplies every bin by the constant.
	ScaleCount ScaleMode = iota
	// ScaleDensity also divides every bin by its width (the product of the
	// widths along all axes), producing a differential distribution.
	ScaleDensity
)

// storage is the bin content shared between a histogram and its views.
// refs counts the histograms pointing at it; a histogram must copy the
// storage before writing when refs > 1.
type storage struct {
	content []float64
	sumw2   []float64
	refs    atomic.Int32
}

func newStorage(n int) *storage {
	s := &storage{content: make([]float64, n), sumw2: make([]float64, n)}
	s.refs.Store(1)
	return s
}

// Histogram is an axis-ordered N-dimensional array of bin contents with
// accumulated squared weights. Content is stored row-major with the last
// axis varying fastest.
//
// A Histogram is not safe for concurrent mutation. Concurrent readers may
// each take their own View.
type Histogram struct {
	ID   uuid.UUID
	Name string

	axes    []Axis
	strides []int
	data    *storage
}

// New creates an empty histogram over the given axes. Axis names must be
// unique.
func New(name string, axes ...Axis) (*Histogram, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("histogram %q: at least one axis required", name)
	}
	seen := make(map[string]bool, len(axes))
	own := make([]Axis, len(axes))
	for i, a := range axes {
		if a.NBins() < 1 {
			return nil, fmt.Errorf("histogram %q: axis %d has no bins", name, i)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("histogram %q: duplicate axis name %q", name, a.Name)
		}
		seen[a.Name] = true
		own[i] = a.clone()
	}
	h := &Histogram{ID: uuid.New(), Name: name, axes: own}
	h.strides = computeStrides(own)
	h.data = newStorage(totalBins(own))
	return h, nil
}

// MustNew is New for static definitions and tests.
func MustNew(name string, axes ...Axis) *Histogram {
	h, err := New(name, axes...)
	if err != nil {
		panic(err)
	}
	return h
}

func computeStrides(axes []Axis) []int {
	strides := make([]int, len(axes))
	s := 1
	for i := len(axes) - 1; i >= 0; i-- {
		strides[i] = s
		s *= axes[i].NBins()
	}
	return strides
}

func totalBins(axes []Axis) int {
	n := 1
	for _, a := range axes {
		n *= a.NBins()
	}
	return n
}

// Dim returns the number of axes.
func (h *Histogram) Dim() int { return len(h.axes) }

// Axes returns a copy of the histogram's axes, including their masks.
func (h *Histogram) Axes() []Axis {
	out := make([]Axis, len(h.axes))
	for i, a := range h.axes {
		out[i] = a.clone()
	}
	return out
}

// Axis returns a copy of the named axis.
func (h *Histogram) Axis(name string) (Axis, error) {
	i, err := h.axisIndex(name, "axis")
	if err != nil {
		return Axis{}, err
	}
	return h.axes[i].clone(), nil
}

// AxisIndex returns the position of the named axis.
func (h *Histogram) AxisIndex(name string) (int, error) {
	return h.axisIndex(name, "axis")
}

func (h *Histogram) axisIndex(name, op string) (int, error) {
	for i, a := range h.axes {
		if a.Name == name {
			return i, nil
		}
	}
	return -1, &AxisError{Histogram: h.Name, Axis: name, Op: op}
}

// NBins returns the total number of bins across all axes.
func (h *Histogram) NBins() int { return len(h.data.content) }

func (h *Histogram) offset(idx []int) int {
	off := 0
	for i, v := range idx {
		off += v * h.strides[i]
	}
	return off
}

func (h *Histogram) checkIndex(idx []int) error {
	if len(idx) != len(h.axes) {
		return fmt.Errorf("histogram %q: index has %d coordinates, want %d", h.Name, len(idx), len(h.axes))
	}
	for i, v := range idx {
		if v < 0 || v >= h.axes[i].NBins() {
			return fmt.Errorf("histogram %q: bin %d out of range on axis %q", h.Name, v, h.axes[i].Name)
		}
	}
	return nil
}

// Bin returns the content and error at the given per-axis bin indices.
func (h *Histogram) Bin(idx ...int) (content, errv float64) {
	if h.checkIndex(idx) != nil {
		return 0, 0
	}
	off := h.offset(idx)
	return h.data.content[off], math.Sqrt(h.data.sumw2[off])
}

// Content returns the content at the given per-axis bin indices, or 0
// outside the histogram.
func (h *Histogram) Content(idx ...int) float64 {
	c, _ := h.Bin(idx...)
	return c
}

// SetBin overwrites one bin's content and error.
func (h *Histogram) SetBin(content, errv float64, idx ...int) error {
	if err := h.checkIndex(idx); err != nil {
		return err
	}
	h.own()
	off := h.offset(idx)
	h.data.content[off] = content
	h.data.sumw2[off] = errv * errv
	return nil
}

// Fill adds weight w at the point x (one coordinate per axis). Points
// outside any axis are dropped and reported as false.
func (h *Histogram) Fill(w float64, x ...float64) bool {
	if len(x) != len(h.axes) {
		return false
	}
	off := 0
	for i, a := range h.axes {
		b := a.FindBin(x[i])
		if b < 0 {
			return false
		}
		off += b * h.strides[i]
	}
	h.own()
	h.data.content[off] += w
	h.data.sumw2[off] += w * w
	return true
}

// Values returns a copy of the raw content in storage order.
func (h *Histogram) Values() []float64 {
	out := make([]float64, len(h.data.content))
	copy(out, h.data.content)
	return out
}

// Sumw2 returns a copy of the per-bin sum of squared weights.
func (h *Histogram) Sumw2() []float64 {
	out := make([]float64, len(h.data.sumw2))
	copy(out, h.data.sumw2)
	return out
}

// SetValues replaces content and squared errors wholesale. A nil sumw2
// sets errors to sqrt(content), the Poisson default.
func (h *Histogram) SetValues(content, sumw2 []float64) error {
	if len(content) != h.NBins() || (sumw2 != nil && len(sumw2) != h.NBins()) {
		return fmt.Errorf("histogram %q: %w: got %d values for %d bins", h.Name, ErrShapeMismatch, len(content), h.NBins())
	}
	h.own()
	copy(h.data.content, content)
	if sumw2 != nil {
		copy(h.data.sumw2, sumw2)
	} else {
		for i, c := range content {
			h.data.sumw2[i] = math.Abs(c)
		}
	}
	return nil
}

// own makes sure the histogram holds the only reference to its storage.
func (h *Histogram) own() {
	if h.data.refs.Load() <= 1 {
		return
	}
	s := newStorage(len(h.data.content))
	copy(s.content, h.data.content)
	copy(s.sumw2, h.data.sumw2)
	h.data.refs.Add(-1)
	h.data = s
}

// View returns a histogram sharing this one's storage with an independent
// copy of the axis masks. Restricting the view never affects the parent;
// writing to either side first detaches it from the shared storage.
func (h *Histogram) View() *Histogram {
	h.data.refs.Add(1)
	axes := make([]Axis, len(h.axes))
	for i, a := range h.axes {
		axes[i] = a.clone()
	}
	strides := make([]int, len(h.strides))
	copy(strides, h.strides)
	return &Histogram{ID: h.ID, Name: h.Name, axes: axes, strides: strides, data: h.data}
}

// Clone returns a deep copy with a fresh identity.
func (h *Histogram) Clone(name string) *Histogram {
	c := h.View()
	c.ID = uuid.New()
	c.Name = name
	c.own()
	return c
}

// Restrict masks the named axis to the bins overlapping [lo, hi).
// Passing -Inf and +Inf removes the restriction.
func (h *Histogram) Restrict(axis string, lo, hi float64) error {
	i, err := h.axisIndex(axis, "restrict")
	if err != nil {
		return err
	}
	h.axes[i].setRange(lo, hi)
	return nil
}

// RestrictBins masks the named axis to the inclusive bin index range
// [first, last]. Indices are clamped to the axis.
func (h *Histogram) RestrictBins(axis string, first, last int) error {
	i, err := h.axisIndex(axis, "restrict")
	if err != nil {
		return err
	}
	h.axes[i].setBins(first, last)
	return nil
}

// RestrictValue masks the named axis to the single bin containing v. If v
// lies outside the axis every bin is masked.
func (h *Histogram) RestrictValue(axis string, v float64) error {
	i, err := h.axisIndex(axis, "restrict")
	if err != nil {
		return err
	}
	b := h.axes[i].FindBin(v)
	if b < 0 {
		h.axes[i].first, h.axes[i].last = 1, 0
		return nil
	}
	h.axes[i].setBins(b, b)
	return nil
}

// Unrestrict clears the mask on the named axis.
func (h *Histogram) Unrestrict(axis string) error {
	i, err := h.axisIndex(axis, "unrestrict")
	if err != nil {
		return err
	}
	h.axes[i].reset()
	return nil
}

// forEachActive calls fn with the storage offset and per-axis index of every
// unmasked bin.
func (h *Histogram) forEachActive(fn func(off int, idx []int)) {
	idx := make([]int, len(h.axes))
	for i, a := range h.axes {
		if a.first > a.last {
			return
		}
		idx[i] = a.first
	}
	for {
		fn(h.offset(idx), idx)
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] <= h.axes[d].last {
				break
			}
			idx[d] = h.axes[d].first
		}
		if d < 0 {
			return
		}
	}
}

func (h *Histogram) fullyActive() bool {
	for _, a := range h.axes {
		if a.IsRestricted() {
			return false
		}
	}
	return true
}

// Integral returns the sum of content within the active ranges. A fully
// masked histogram integrates to 0.
func (h *Histogram) Integral() float64 {
	if h.fullyActive() {
		return floats.Sum(h.data.content)
	}
	var sum float64
	h.forEachActive(func(off int, _ []int) {
		sum += h.data.content[off]
	})
	return sum
}

// IntegralAndError returns the active-range integral and its uncertainty.
func (h *Histogram) IntegralAndError() (sum, errv float64) {
	var w2 float64
	h.forEachActive(func(off int, _ []int) {
		sum += h.data.content[off]
		w2 += h.data.sumw2[off]
	})
	return sum, math.Sqrt(w2)
}

// Project marginalizes over every axis not named in keep, honoring the
// active range of all axes. The result has the kept axes in the order
// given, each over its full binning and unrestricted; bins outside a kept
// axis's active range are left at zero. The source is not modified.
func (h *Histogram) Project(keep ...string) (*Histogram, error) {
	if len(keep) == 0 {
		return nil, fmt.Errorf("project %q: no axes to keep", h.Name)
	}
	src := make([]int, len(keep))
	seen := make(map[int]bool, len(keep))
	axes := make([]Axis, len(keep))
	for i, name := range keep {
		j, err := h.axisIndex(name, "project")
		if err != nil {
			return nil, err
		}
		if seen[j] {
			return nil, fmt.Errorf("project %q: axis %q listed twice", h.Name, name)
		}
		seen[j] = true
		src[i] = j
		axes[i] = h.axes[j].clone()
		axes[i].reset()
	}
	out := &Histogram{ID: uuid.New(), Name: h.Name + "_proj", axes: axes}
	out.strides = computeStrides(axes)
	out.data = newStorage(totalBins(axes))

	h.forEachActive(func(off int, idx []int) {
		o := 0
		for i, j := range src {
			o += idx[j] * out.strides[i]
		}
		out.data.content[o] += h.data.content[off]
		out.data.sumw2[o] += h.data.sumw2[off]
	})
	return out, nil
}

// Rebin merges groups of factor adjacent bins of a one-dimensional
// histogram, left to right. When factor does not divide the bin count the
// trailing partial group is merged into the last full group; a factor
// larger than the bin count collapses everything into one bin. The active
// range is reset.
func (h *Histogram) Rebin(factor int) error {
	if factor < 1 {
		return fmt.Errorf("rebin %q: %w: factor %d", h.Name, ErrInvalidRebin, factor)
	}
	if len(h.axes) != 1 {
		return fmt.Errorf("rebin %q: %w: histogram has %d axes", h.Name, ErrInvalidRebin, len(h.axes))
	}
	if factor == 1 {
		return nil
	}
	a := h.axes[0]
	n := a.NBins()
	groups := n / factor
	if groups == 0 {
		groups = 1
	}
	edges := make([]float64, groups+1)
	content := make([]float64, groups)
	sumw2 := make([]float64, groups)
	for g := 0; g < groups; g++ {
		edges[g] = a.Edges[g*factor]
	}
	edges[groups] = a.Edges[n]
	for i := 0; i < n; i++ {
		g := i / factor
		if g >= groups {
			g = groups - 1
		}
		content[g] += h.data.content[i]
		sumw2[g] += h.data.sumw2[i]
	}
	h.axes[0] = Axis{Name: a.Name, Edges: edges, first: 0, last: groups - 1}
	h.strides = computeStrides(h.axes)
	if h.data.refs.Load() > 1 {
		h.data.refs.Add(-1)
	}
	s := newStorage(0)
	s.content, s.sumw2 = content, sumw2
	h.data = s
	return nil
}

// binVolume returns the product of bin widths at a multi-index.
func (h *Histogram) binVolume(idx []int) float64 {
	v := 1.0
	for i, b := range idx {
		v *= h.axes[i].Width(b)
	}
	return v
}

// Scale multiplies every bin (regardless of masks) by c. In ScaleDensity
// mode each bin is additionally divided by its width.
func (h *Histogram) Scale(c float64, mode ScaleMode) {
	h.own()
	if mode == ScaleCount {
		floats.Scale(c, h.data.content)
		floats.Scale(c*c, h.data.sumw2)
		return
	}
	idx := make([]int, len(h.axes))
	for off := range h.data.content {
		rem := off
		for i := range idx {
			idx[i] = rem / h.strides[i]
			rem %= h.strides[i]
		}
		f := c / h.binVolume(idx)
		h.data.content[off] *= f
		h.data.sumw2[off] *= f * f
	}
}

// Compatible reports whether o has the same axes and binning as h.
func (h *Histogram) Compatible(o *Histogram) bool {
	if len(h.axes) != len(o.axes) {
		return false
	}
	for i := range h.axes {
		if !sameBinning(h.axes[i], o.axes[i]) {
			return false
		}
	}
	return true
}

func (h *Histogram) checkCompatible(op string, o *Histogram) error {
	if o == nil {
		return fmt.Errorf("%s %q: %w: nil operand", op, h.Name, ErrShapeMismatch)
	}
	if !h.Compatible(o) {
		return fmt.Errorf("%s %q with %q: %w", op, h.Name, o.Name, ErrShapeMismatch)
	}
	return nil
}

// Add accumulates o into h bin by bin.
func (h *Histogram) Add(o *Histogram) error {
	if err := h.checkCompatible("add", o); err != nil {
		return err
	}
	h.own()
	floats.Add(h.data.content, o.data.content)
	floats.Add(h.data.sumw2, o.data.sumw2)
	return nil
}

// Divide replaces h with h / o bin by bin. Bins where o is zero become
// zero with zero error; this never produces NaN or Inf. Errors of non-zero
// quotients are propagated assuming uncorrelated operands.
func (h *Histogram) Divide(o *Histogram) error {
	if err := h.checkCompatible("divide", o); err != nil {
		return err
	}
	h.own()
	num, den := h.data.content, o.data.content
	for i := range num {
		c2 := den[i]
		if c2 == 0 {
			num[i] = 0
			h.data.sumw2[i] = 0
			continue
		}
		c1 := num[i]
		e1, e2 := h.data.sumw2[i], o.data.sumw2[i]
		num[i] = c1 / c2
		h.data.sumw2[i] = (e1*c2*c2 + e2*c1*c1) / (c2 * c2 * c2 * c2)
	}
	return nil
}

// Maximum returns the largest content within the active ranges, or 0 for
// a fully masked histogram.
func (h *Histogram) Maximum() float64 {
	hi, found := math.Inf(-1), false
	h.forEachActive(func(off int, _ []int) {
		found = true
		if v := h.data.content[off]; v > hi {
			hi = v
		}
	})
	if !found {
		return 0
	}
	return hi
}

// Minimum returns the smallest content within the active ranges, or 0 for
// a fully masked histogram.
func (h *Histogram) Minimum() float64 {
	lo, found := math.Inf(1), false
	h.forEachActive(func(off int, _ []int) {
		found = true
		if v := h.data.content[off]; v < lo {
			lo = v
		}
	})
	if !found {
		return 0
	}
	return lo
}
