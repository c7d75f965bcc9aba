// Package ratio builds measured/truth and tagging-purity ratios from slice
// decompositions and keeps them in an explicit keyed store for later
// cross-configuration overlays.
package ratio

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/banshee-data/groomers/internal/decompose"
	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/selection"
)

// Kind selects which ratio a key refers to.
type Kind string

const (
	// MeasuredVsTruth is sum / reference.
	MeasuredVsTruth Kind = "measured_vs_truth"
	// TaggedPurity is tagged-sum / sum.
	TaggedPurity Kind = "tagged_purity"
)

// Title is the axis/legend title used by renderers.
func (k Kind) Title() string {
	switch k {
	case MeasuredVsTruth:
		return "Embedded / Truth"
	case TaggedPurity:
		return "Tagging purity"
	}
	return string(k)
}

var (
	// ErrAlreadyBuilt is returned when a configuration/slice pair is built
	// twice. Each pair is processed exactly once.
	ErrAlreadyBuilt = errors.New("ratios already built")
	// ErrNilResult is returned when Build is handed no decomposition.
	ErrNilResult = errors.New("nil decomposition result")
)

// Configuration identifies one measured/reference histogram pair: an
// observable at a jet radius and reconstruction R_max, for one grooming
// subconfiguration.
type Configuration struct {
	Observable string
	JetR       float64
	RMax       float64
	Label      string
}

func (c Configuration) String() string {
	return fmt.Sprintf("%s R%s Rmax%s %s", c.Observable,
		strconv.FormatFloat(c.JetR, 'f', -1, 64),
		strconv.FormatFloat(c.RMax, 'f', -1, 64), c.Label)
}

// Key addresses one stored ratio.
type Key struct {
	Config Configuration
	Slice  selection.Slice
	Kind   Kind
}

// Pair is the two ratios of one slice.
type Pair struct {
	MeasuredVsTruth *hist.Histogram
	TaggedPurity    *hist.Histogram
}

// Builder constructs ratios and owns their storage. It is safe for
// concurrent use; builds under distinct keys never block each other for
// longer than a map insert.
type Builder struct {
	mu     sync.RWMutex
	ratios map[Key]*hist.Histogram
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{ratios: make(map[Key]*hist.Histogram)}
}

// Build computes sum/reference and tagged-sum/sum for one decomposed slice
// and stores both. The aggregates in res are cloned, never modified. Bins
// with a zero divisor are zero in the ratio.
func (b *Builder) Build(cfg Configuration, res *decompose.Result) (Pair, error) {
	if res == nil || res.Sum == nil || res.TaggedSum == nil || res.Reference == nil {
		return Pair{}, fmt.Errorf("build %s: %w", cfg, ErrNilResult)
	}
	mk := Key{Config: cfg, Slice: res.Slice, Kind: MeasuredVsTruth}
	pk := Key{Config: cfg, Slice: res.Slice, Kind: TaggedPurity}

	b.mu.RLock()
	_, dup := b.ratios[mk]
	b.mu.RUnlock()
	if dup {
		return Pair{}, fmt.Errorf("build %s, %s: %w", cfg, res.Slice, ErrAlreadyBuilt)
	}

	mvt := res.Sum.Clone(fmt.Sprintf("h_ratio_%s_%s", cfg.Label, res.Slice.PtLabel()))
	if err := mvt.Divide(res.Reference); err != nil {
		return Pair{}, fmt.Errorf("build %s: %w", cfg, err)
	}
	pur := res.TaggedSum.Clone(fmt.Sprintf("h_ratio_tagged_%s_%s", cfg.Label, res.Slice.PtLabel()))
	if err := pur.Divide(res.Sum); err != nil {
		return Pair{}, fmt.Errorf("build %s: %w", cfg, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.ratios[mk]; dup {
		return Pair{}, fmt.Errorf("build %s, %s: %w", cfg, res.Slice, ErrAlreadyBuilt)
	}
	b.ratios[mk] = mvt
	b.ratios[pk] = pur
	return Pair{MeasuredVsTruth: mvt, TaggedPurity: pur}, nil
}

// Get returns the stored ratio for key. The histogram is shared; clone
// before modifying it.
func (b *Builder) Get(key Key) (*hist.Histogram, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.ratios[key]
	return h, ok
}

// Len returns the number of stored ratios.
func (b *Builder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ratios)
}

// Keys returns every stored key in a stable order.
func (b *Builder) Keys() []Key {
	b.mu.RLock()
	keys := make([]Key, 0, len(b.ratios))
	for k := range b.ratios {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

func keyLess(a, b Key) bool {
	ac, bc := a.Config, b.Config
	switch {
	case ac.Observable != bc.Observable:
		return ac.Observable < bc.Observable
	case ac.JetR != bc.JetR:
		return ac.JetR < bc.JetR
	case ac.RMax != bc.RMax:
		return ac.RMax < bc.RMax
	case ac.Label != bc.Label:
		return ac.Label < bc.Label
	case a.Slice.MinPt != b.Slice.MinPt:
		return a.Slice.MinPt < b.Slice.MinPt
	case a.Slice.MaxPt != b.Slice.MaxPt:
		return a.Slice.MaxPt < b.Slice.MaxPt
	case a.Slice.MinThreshold != b.Slice.MinThreshold:
		return a.Slice.MinThreshold < b.Slice.MinThreshold
	}
	return a.Kind < b.Kind
}

// OverlayRequest selects the ratios of several subconfigurations for the
// same observable, radius, R_max, slice and kind.
type OverlayRequest struct {
	Observable string
	JetR       float64
	RMax       float64
	Slice      selection.Slice
	Kind       Kind
	// Labels are the subconfiguration labels in drawing order.
	Labels []string
}

// OverlayEntry is one drawn ratio.
type OverlayEntry struct {
	Label string
	Hist  *hist.Histogram
}

// Overlay is the set of stored ratios for one overlay group.
type Overlay struct {
	Request OverlayRequest
	Entries []OverlayEntry
	// Missing lists labels with no stored ratio, typically because the
	// slice was skipped for insufficient statistics.
	Missing []string
}

// Overlay reads the stored ratios for an overlay group. It performs no
// arithmetic; the entries are the stored histograms.
func (b *Builder) Overlay(req OverlayRequest) Overlay {
	out := Overlay{Request: req}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, label := range req.Labels {
		k := Key{
			Config: Configuration{Observable: req.Observable, JetR: req.JetR, RMax: req.RMax, Label: label},
			Slice:  req.Slice,
			Kind:   req.Kind,
		}
		if h, ok := b.ratios[k]; ok {
			out.Entries = append(out.Entries, OverlayEntry{Label: label, Hist: h})
		} else {
			out.Missing = append(out.Missing, label)
		}
	}
	return out
}
