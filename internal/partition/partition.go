// Package partition defines the ordered set of matching categories that
// label every entry of a measured groomed-jet distribution.
//
// The flag values and their order come from the producer of the measured
// histograms, so they are loaded as configuration and validated against
// the flag axis of the data rather than hard-coded.
package partition

import (
	"errors"
	"fmt"

	"github.com/banshee-data/groomers/internal/hist"
)

// DefaultNames is the category convention of the groomed-jet matching
// producer: flag 1 is "subleading", flag 2 "leading (swap)" and so on.
var DefaultNames = []string{
	"subleading",
	"leading (swap)",
	"leading (mis-tag)",
	"ungroomed",
	"outside",
	"other",
}

// DefaultTagged names the categories counted as correctly tagged.
var DefaultTagged = []string{"subleading", "leading (swap)"}

// ErrInvalidPartition is returned when a partition definition is
// inconsistent.
var ErrInvalidPartition = errors.New("invalid category partition")

// Category is one mutually exclusive matching label.
type Category struct {
	Flag   int
	Name   string
	Tagged bool
}

// Partition is an ordered sequence of categories with flags 1..K. The
// order is the stacking order of the decomposition.
type Partition struct {
	categories []Category
	byName     map[string]int
}

// New builds a partition where names[i] carries flag i+1. tagged must be a
// non-empty strict subset of names.
func New(names, tagged []string) (*Partition, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidPartition)
	}
	p := &Partition{
		categories: make([]Category, len(names)),
		byName:     make(map[string]int, len(names)),
	}
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: category %d has an empty name", ErrInvalidPartition, i+1)
		}
		if _, dup := p.byName[n]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidPartition, n)
		}
		p.byName[n] = i
		p.categories[i] = Category{Flag: i + 1, Name: n}
	}
	if len(tagged) == 0 {
		return nil, fmt.Errorf("%w: tagged subset is empty", ErrInvalidPartition)
	}
	if len(tagged) >= len(names) {
		return nil, fmt.Errorf("%w: tagged subset must be a strict subset (%d of %d)", ErrInvalidPartition, len(tagged), len(names))
	}
	for _, n := range tagged {
		i, ok := p.byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: tagged category %q is not in the partition", ErrInvalidPartition, n)
		}
		if p.categories[i].Tagged {
			return nil, fmt.Errorf("%w: tagged category %q listed twice", ErrInvalidPartition, n)
		}
		p.categories[i].Tagged = true
	}
	return p, nil
}

// Default returns the standard six-category partition.
func Default() *Partition {
	p, err := New(DefaultNames, DefaultTagged)
	if err != nil {
		panic(err)
	}
	return p
}

// Len returns K, the number of categories.
func (p *Partition) Len() int { return len(p.categories) }

// Categories returns the categories in partition order.
func (p *Partition) Categories() []Category {
	out := make([]Category, len(p.categories))
	copy(out, p.categories)
	return out
}

// Lookup returns the category with the given name.
func (p *Partition) Lookup(name string) (Category, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Category{}, false
	}
	return p.categories[i], true
}

// IsTagged reports whether the named category belongs to the tagged subset.
func (p *Partition) IsTagged(name string) bool {
	c, ok := p.Lookup(name)
	return ok && c.Tagged
}

// Tagged returns the tagged categories in partition order.
func (p *Partition) Tagged() []Category {
	var out []Category
	for _, c := range p.categories {
		if c.Tagged {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the partition against the flag axis of a measured
// histogram: every flag 1..K must fall in its own bin of the axis.
// Additional bins (flag 0 or flags beyond K) are allowed; they are never
// selected by a category restriction.
func (p *Partition) Validate(h *hist.Histogram, flagAxis string) error {
	ax, err := h.Axis(flagAxis)
	if err != nil {
		return err
	}
	seen := make(map[int]int, len(p.categories))
	for _, c := range p.categories {
		b := ax.FindBin(float64(c.Flag))
		if b < 0 {
			return fmt.Errorf("%w: flag %d (%s) is outside axis %q [%g, %g)",
				ErrInvalidPartition, c.Flag, c.Name, flagAxis, ax.Low(), ax.High())
		}
		if prev, dup := seen[b]; dup {
			return fmt.Errorf("%w: flags %d and %d share bin %d of axis %q",
				ErrInvalidPartition, prev, c.Flag, b, flagAxis)
		}
		seen[b] = c.Flag
	}
	return nil
}
