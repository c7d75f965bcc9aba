// Package testutil provides shared fixtures for tests that drive the full
// pipeline: measured and truth source histograms filled with a fixed
// pattern under the names the pipeline looks up.
package testutil

import (
	"testing"

	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/pipeline"
)

// Fixture coordinates shared by every pair.
const (
	JetR = 0.4
	RMax = 0.25
)

// KappaPair builds a measured (pt, kappa, flag) and truth (pt, kappa) pair
// for one subconfiguration label, with a single 60-80 pt bin and five
// kappa bins over [0, 0.5). Every flag from 1 to 6 is filled in every
// kappa bin.
func KappaPair(t testing.TB, label string) (measured, truth *hist.Histogram) {
	t.Helper()
	l, err := pipeline.LayoutFor("kappa")
	if err != nil {
		t.Fatalf("kappa layout: %v", err)
	}
	measured = hist.MustNew(l.MeasuredName(JetR, RMax, label),
		hist.MustUniformAxis(pipeline.PtAxis, 1, 60, 80),
		hist.MustUniformAxis("kappa", 5, 0, 0.5),
		hist.MustUniformAxis(pipeline.FlagAxis, 11, -0.5, 10.5),
	)
	truth = hist.MustNew(l.TruthName(JetR, label),
		hist.MustUniformAxis(pipeline.PtAxis, 1, 60, 80),
		hist.MustUniformAxis("kappa", 5, 0, 0.5),
	)
	for k := 0; k < 5; k++ {
		x := 0.05 + 0.1*float64(k)
		for flag := 1; flag <= 6; flag++ {
			measured.Fill(float64(k+flag), 70, x, float64(flag))
		}
		truth.Fill(float64(k+2), 70, x)
	}
	return measured, truth
}

// KappaSource returns a MemorySource holding a KappaPair per label.
func KappaSource(t testing.TB, labels ...string) *pipeline.MemorySource {
	t.Helper()
	src := pipeline.NewMemorySource()
	for _, label := range labels {
		m, tr := KappaPair(t, label)
		src.Put(m)
		src.Put(tr)
	}
	return src
}
