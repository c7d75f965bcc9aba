// Package pipeline drives the decomposition over the full iteration space
// of a run: observable, R_max, jet radius, grooming subconfiguration and
// slice. Configurations are independent and run on a bounded worker pool;
// ratios land in a shared ratio.Builder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/groomers/internal/config"
	"github.com/banshee-data/groomers/internal/decompose"
	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/monitoring"
	"github.com/banshee-data/groomers/internal/normalize"
	"github.com/banshee-data/groomers/internal/partition"
	"github.com/banshee-data/groomers/internal/ratio"
	"github.com/banshee-data/groomers/internal/selection"
)

var logf = monitoring.Component("pipeline")

// Unit is one (observable, R_max, jet radius, subconfiguration)
// combination together with the slices it is processed over.
type Unit struct {
	Layout Layout
	JetR   float64
	RMax   float64
	Sub    config.SubConfig
	Slices []selection.Slice
}

// Configuration is the ratio key of the unit.
func (u Unit) Configuration() ratio.Configuration {
	return ratio.Configuration{Observable: u.Layout.Observable, JetR: u.JetR, RMax: u.RMax, Label: u.Sub.Label()}
}

// Sink receives every fully processed slice. It is called from worker
// goroutines and must be safe for concurrent use.
type Sink interface {
	Slice(ctx context.Context, u Unit, res *decompose.Result, pair ratio.Pair) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, u Unit, res *decompose.Result, pair ratio.Pair) error

// Slice implements Sink.
func (f SinkFunc) Slice(ctx context.Context, u Unit, res *decompose.Result, pair ratio.Pair) error {
	return f(ctx, u, res, pair)
}

// Sinks fans every slice out to each non-nil sink in order, stopping at
// the first error.
func Sinks(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(ctx context.Context, u Unit, res *decompose.Result, pair ratio.Pair) error {
		for _, s := range live {
			if err := s.Slice(ctx, u, res, pair); err != nil {
				return err
			}
		}
		return nil
	})
}

// SliceRecord is the final state of one slice.
type SliceRecord struct {
	Config ratio.Configuration
	Slice  selection.Slice
	State  State
	Err    string
	// SinkErr is set when the ratios were built but the sink rejected the
	// slice.
	SinkErr string
}

// Report summarises a run.
type Report struct {
	Units  int
	Slices []SliceRecord
	// Missing lists the source histograms that could not be loaded.
	Missing []string
	// EmptyConfigurations lists configurations where every slice was
	// skipped for insufficient statistics.
	EmptyConfigurations []ratio.Configuration
	// Failed holds the error that aborted each failed observable.
	Failed map[string]error
}

// Count returns the number of slices that ended in state s. Slices the
// sink rejected are not counted.
func (r *Report) Count(s State) int {
	n := 0
	for _, rec := range r.Slices {
		if rec.State == s && rec.SinkErr == "" {
			n++
		}
	}
	return n
}

// SinkFailures returns the number of slices the sink rejected.
func (r *Report) SinkFailures() int {
	n := 0
	for _, rec := range r.Slices {
		if rec.SinkErr != "" {
			n++
		}
	}
	return n
}

// Runner processes every unit of a configuration.
type Runner struct {
	Config    *config.Config
	Source    Source
	Partition *partition.Partition
	Ratios    *ratio.Builder
	// Sink is optional.
	Sink Sink
}

// NewRunner builds a Runner with the category partition named in cfg, or
// the default partition when cfg names none.
func NewRunner(cfg *config.Config, src Source) (*Runner, error) {
	p, err := PartitionFor(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{Config: cfg, Source: src, Partition: p, Ratios: ratio.NewBuilder()}, nil
}

// PartitionFor returns the category partition configured in cfg. When
// categories are given without a tagged subset, the first two (or the
// first, for a two-category partition) are tagged.
func PartitionFor(cfg *config.Config) (*partition.Partition, error) {
	if len(cfg.Categories) == 0 {
		return partition.Default(), nil
	}
	tagged := cfg.TaggedCategories
	if len(tagged) == 0 {
		n := len(partition.DefaultTagged)
		if n >= len(cfg.Categories) {
			n = len(cfg.Categories) - 1
		}
		tagged = cfg.Categories[:n]
	}
	return partition.New(cfg.Categories, tagged)
}

// Units expands the configuration in processing order: observable, R_max,
// jet radius, then subconfiguration in file order.
func (r *Runner) Units() ([]Unit, error) {
	var units []Unit
	for _, obs := range r.Config.ProcessObservables {
		layout, err := LayoutFor(obs)
		if err != nil {
			return nil, err
		}
		oc := r.Config.Observables[obs]
		if oc == nil {
			return nil, fmt.Errorf("observable %q has no configuration block", obs)
		}
		slices, err := selection.Slices(oc.CommonSettings.PtBinsReported, layout.Thresholds(r.Config.GetMinThetaList()))
		if err != nil {
			return nil, fmt.Errorf("observable %q: %w", obs, err)
		}
		for _, rmax := range r.Config.ConstituentSubtractor.MaxDistance {
			for _, jetR := range r.Config.JetR {
				for _, sub := range oc.Subconfigs {
					units = append(units, Unit{Layout: layout, JetR: jetR, RMax: rmax, Sub: sub, Slices: slices})
				}
			}
		}
	}
	return units, nil
}

// Run processes every unit with at most Config.GetWorkers() in flight.
//
// A missing source skips its unit. An insufficient-statistics slice is
// skipped without affecting its siblings. Any other error aborts the
// remaining units of the same observable; other observables continue and
// Run returns the joined observable errors with the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.Ratios == nil {
		r.Ratios = ratio.NewBuilder()
	}
	units, err := r.Units()
	if err != nil {
		return nil, err
	}

	col := &collector{failed: make(map[string]error)}
	aborted := make(map[string]*atomic.Bool)
	for _, u := range units {
		if aborted[u.Layout.Observable] == nil {
			aborted[u.Layout.Observable] = new(atomic.Bool)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Config.GetWorkers())
	for _, u := range units {
		u := u
		stop := aborted[u.Layout.Observable]
		g.Go(func() error {
			if stop.Load() {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			err := r.process(gctx, u, col)
			monitoring.ObserveUnit(u.Layout.Observable, time.Since(start))
			switch {
			case err == nil:
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, ErrMissingSource):
				monitoring.RecordMissingSource(u.Layout.Observable)
				logf("skipping %s: %v", u.Configuration(), err)
				col.missing(err)
				return nil
			default:
				if stop.CompareAndSwap(false, true) {
					logf("aborting observable %s: %v", u.Layout.Observable, err)
					col.fail(u.Layout.Observable, err)
				}
				return nil
			}
		})
	}
	waitErr := g.Wait()

	rep := col.report(len(units))
	if waitErr != nil {
		return rep, waitErr
	}
	if len(rep.Failed) > 0 {
		obs := make([]string, 0, len(rep.Failed))
		for o := range rep.Failed {
			obs = append(obs, o)
		}
		sort.Strings(obs)
		errs := make([]error, 0, len(obs))
		for _, o := range obs {
			errs = append(errs, fmt.Errorf("observable %s: %w", o, rep.Failed[o]))
		}
		return rep, errors.Join(errs...)
	}
	return rep, nil
}

func checkAxes(h *hist.Histogram, names []string) error {
	for _, n := range names {
		if _, err := h.AxisIndex(n); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) process(ctx context.Context, u Unit, col *collector) error {
	l := u.Layout
	meas, err := r.Source.Histogram(ctx, l.MeasuredName(u.JetR, u.RMax, u.Sub.Label()))
	if err != nil {
		return err
	}
	truth, err := r.Source.Histogram(ctx, l.TruthName(u.JetR, u.Sub.Label()))
	if err != nil {
		return err
	}
	if err := checkAxes(meas, l.MeasuredAxes()); err != nil {
		return err
	}
	if err := checkAxes(truth, l.TruthAxes()); err != nil {
		return err
	}
	if err := r.Partition.Validate(meas, FlagAxis); err != nil {
		return err
	}

	d := decompose.Decomposer{
		PtAxis:    PtAxis,
		FlagAxis:  FlagAxis,
		Domain:    l.Domain(u.Sub),
		Rebin:     l.Rebin,
		Partition: r.Partition,
		Label:     u.Sub.Label(),
	}
	eng := normalize.Engine{PtAxis: PtAxis, Threshold: r.Config.GetMinIntegral()}
	cfg := u.Configuration()

	produced := 0
	for _, s := range u.Slices {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := SliceRecord{Config: cfg, Slice: s}
		err := r.processSlice(ctx, u, d, eng, meas, truth, &rec)
		col.slice(rec)
		switch {
		case err == nil:
			produced++
			monitoring.RecordSlice(l.Observable, monitoring.OutcomeDecomposed)
		case errors.Is(err, normalize.ErrInsufficientStatistics):
			monitoring.RecordSlice(l.Observable, monitoring.OutcomeInsufficient)
			logf("skipping slice %s of %s: %v", s, cfg, err)
		default:
			monitoring.RecordSlice(l.Observable, monitoring.OutcomeFailed)
			return fmt.Errorf("%s, %s: %w", cfg, s, err)
		}
	}
	if produced == 0 && len(u.Slices) > 0 {
		logf("warning: every slice of %s was skipped for insufficient statistics", cfg)
		col.empty(cfg)
	}
	return nil
}

func (r *Runner) processSlice(ctx context.Context, u Unit, d decompose.Decomposer, eng normalize.Engine,
	meas, truth *hist.Histogram, rec *SliceRecord) error {
	s := rec.Slice
	fail := func(err error) error {
		rec.Err = err.Error()
		return err
	}
	if err := rec.State.Advance(Normalizing); err != nil {
		return fail(err)
	}
	c, err := eng.Normalize(meas, truth, s, u.Layout.Acceptance(s.MinThreshold))
	if errors.Is(err, normalize.ErrInsufficientStatistics) {
		if aerr := rec.State.Advance(InsufficientStatistics); aerr != nil {
			return fail(aerr)
		}
		return fail(err)
	}
	if err != nil {
		return fail(err)
	}
	if err := rec.State.Advance(Normalized); err != nil {
		return fail(err)
	}
	logf("%s, %s: N_meas = %.4g ± %.2g, N_truth = %.4g ± %.2g",
		u.Configuration(), s, c.Measured, c.MeasuredErr, c.Truth, c.TruthErr)

	res, err := d.Decompose(meas, truth, s, c)
	if err != nil {
		return fail(err)
	}
	if err := rec.State.Advance(Decomposed); err != nil {
		return fail(err)
	}

	pair, err := r.Ratios.Build(u.Configuration(), res)
	if err != nil {
		return fail(err)
	}
	if err := rec.State.Advance(RatiosBuilt); err != nil {
		return fail(err)
	}

	if r.Sink != nil {
		if err := r.Sink.Slice(ctx, u, res, pair); err != nil {
			rec.SinkErr = err.Error()
			return fmt.Errorf("sink: %w", err)
		}
	}
	return nil
}

type collector struct {
	mu      sync.Mutex
	slices  []SliceRecord
	miss    []string
	empties []ratio.Configuration
	failed  map[string]error
}

func (c *collector) slice(rec SliceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slices = append(c.slices, rec)
}

func (c *collector) missing(err error) {
	name := err.Error()
	var mse *MissingSourceError
	if errors.As(err, &mse) {
		name = mse.Name
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.miss = append(c.miss, name)
}

func (c *collector) empty(cfg ratio.Configuration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.empties = append(c.empties, cfg)
}

func (c *collector) fail(observable string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[observable] = err
}

func configLess(a, b ratio.Configuration) bool {
	switch {
	case a.Observable != b.Observable:
		return a.Observable < b.Observable
	case a.JetR != b.JetR:
		return a.JetR < b.JetR
	case a.RMax != b.RMax:
		return a.RMax < b.RMax
	}
	return a.Label < b.Label
}

func sliceLess(a, b selection.Slice) bool {
	switch {
	case a.MinPt != b.MinPt:
		return a.MinPt < b.MinPt
	case a.MaxPt != b.MaxPt:
		return a.MaxPt < b.MaxPt
	}
	return a.MinThreshold < b.MinThreshold
}

func (c *collector) report(units int) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	rep := &Report{
		Units:               units,
		Slices:              append([]SliceRecord(nil), c.slices...),
		Missing:             append([]string(nil), c.miss...),
		EmptyConfigurations: append([]ratio.Configuration(nil), c.empties...),
		Failed:              make(map[string]error, len(c.failed)),
	}
	for k, v := range c.failed {
		rep.Failed[k] = v
	}
	sort.SliceStable(rep.Slices, func(i, j int) bool {
		a, b := rep.Slices[i], rep.Slices[j]
		if a.Config != b.Config {
			return configLess(a.Config, b.Config)
		}
		return sliceLess(a.Slice, b.Slice)
	})
	sort.Strings(rep.Missing)
	rep.Missing = dedupe(rep.Missing)
	sort.Slice(rep.EmptyConfigurations, func(i, j int) bool {
		return configLess(rep.EmptyConfigurations[i], rep.EmptyConfigurations[j])
	})
	return rep
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
