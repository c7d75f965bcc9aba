// Package decompose splits a measured (pt, observable, flag) distribution
// into one normalized, rebinned observable distribution per matching
// category, plus the all-category sum and the tagged-category sum, and
// builds the matching reference distribution.
package decompose

import (
	"errors"
	"fmt"

	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/normalize"
	"github.com/banshee-data/groomers/internal/partition"
	"github.com/banshee-data/groomers/internal/selection"
)

// CategoryDistribution is the normalized shape of one category.
type CategoryDistribution struct {
	Category partition.Category
	Hist     *hist.Histogram
}

// Result is the complete decomposition of one slice. Histograms are handed
// off for reading; callers clone before mutating.
type Result struct {
	Slice     selection.Slice
	Constants normalize.Constants

	// Categories are in partition order, which is also the stacking order.
	Categories []CategoryDistribution
	Sum        *hist.Histogram
	TaggedSum  *hist.Histogram
	Reference  *hist.Histogram
}

// Decomposer holds the per-observable decomposition settings.
type Decomposer struct {
	PtAxis    string
	FlagAxis  string
	Domain    selection.Domain
	Rebin     int
	Partition *partition.Partition
	// Label is folded into output histogram names.
	Label string
	// MinIntegral overrides normalize.MinIntegral when positive.
	MinIntegral float64
}

func (d Decomposer) selector() selection.Selector {
	return selection.Selector{PtAxis: d.PtAxis, Domain: d.Domain}
}

func (d Decomposer) name(kind string, s selection.Slice) string {
	if d.Label == "" {
		return fmt.Sprintf("%s_%s", kind, s.PtLabel())
	}
	return fmt.Sprintf("%s_%s_%s", kind, d.Label, s.PtLabel())
}

// Process normalizes the slice and, when statistics allow, decomposes it.
// An insufficient-statistics slice returns the normalize error and no
// result; no category distribution is produced for it.
func (d Decomposer) Process(measured, reference *hist.Histogram, s selection.Slice, acceptance float64) (*Result, error) {
	c, err := normalize.Engine{PtAxis: d.PtAxis, Threshold: d.MinIntegral}.Normalize(measured, reference, s, acceptance)
	if err != nil {
		return nil, err
	}
	return d.Decompose(measured, reference, s, c)
}

// Decompose builds the per-category distributions for one slice from
// already computed normalization constants. The observable-domain cut is
// applied here, after normalization, so the constants reflect the full
// domain while the shapes reflect the cut domain.
func (d Decomposer) Decompose(measured, reference *hist.Histogram, s selection.Slice, c normalize.Constants) (*Result, error) {
	if d.Partition == nil {
		return nil, errors.New("decompose: no category partition")
	}
	if c.Measured <= 0 || c.Truth <= 0 {
		return nil, fmt.Errorf("decompose %s: non-positive normalization %+v", s, c)
	}
	sel := d.selector()
	shape, err := sel.Shape(measured, s)
	if err != nil {
		return nil, fmt.Errorf("decompose %s: %w", s, err)
	}

	res := &Result{Slice: s, Constants: c}
	for _, cat := range d.Partition.Categories() {
		h1, err := d.project(shape, cat.Flag, c.Measured)
		if err != nil {
			return nil, fmt.Errorf("decompose %s, category %q: %w", s, cat.Name, err)
		}
		h1.Name = d.name(fmt.Sprintf("h1D_%d", cat.Flag), s)
		res.Categories = append(res.Categories, CategoryDistribution{Category: cat, Hist: h1})

		if res.Sum == nil {
			res.Sum = h1.Clone(d.name("h_sum", s))
			res.TaggedSum = h1.Clone(d.name("h_sum_tagged", s))
			res.TaggedSum.Scale(0, hist.ScaleCount)
		} else if err := res.Sum.Add(h1); err != nil {
			return nil, fmt.Errorf("decompose %s: %w", s, err)
		}
		if cat.Tagged {
			if err := res.TaggedSum.Add(h1); err != nil {
				return nil, fmt.Errorf("decompose %s: %w", s, err)
			}
		}
	}

	ref, err := sel.Shape(reference, s)
	if err != nil {
		return nil, fmt.Errorf("decompose %s, reference: %w", s, err)
	}
	res.Reference, err = d.finish(ref, c.Truth)
	if err != nil {
		return nil, fmt.Errorf("decompose %s, reference: %w", s, err)
	}
	res.Reference.Name = d.name("h_truth", s)
	if !res.Reference.Compatible(res.Sum) {
		return nil, fmt.Errorf("decompose %s: measured and reference binning differ: %w", s, hist.ErrShapeMismatch)
	}
	return res, nil
}

// project selects one flag on a private view of shape and returns its
// normalized observable distribution.
func (d Decomposer) project(shape *hist.Histogram, flag int, norm float64) (*hist.Histogram, error) {
	v := shape.View()
	if err := v.RestrictValue(d.FlagAxis, float64(flag)); err != nil {
		return nil, err
	}
	return d.finish(v, norm)
}

// finish projects onto the observable, rebins, and density-scales by 1/norm.
func (d Decomposer) finish(v *hist.Histogram, norm float64) (*hist.Histogram, error) {
	h1, err := v.Project(d.Domain.Observable)
	if err != nil {
		return nil, err
	}
	if d.Rebin > 1 {
		if err := h1.Rebin(d.Rebin); err != nil {
			return nil, err
		}
	}
	h1.Scale(1/norm, hist.ScaleDensity)
	return h1, nil
}
