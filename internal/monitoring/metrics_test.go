package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSlice(t *testing.T) {
	before := testutil.ToFloat64(slicesTotal.WithLabelValues("zg", OutcomeInsufficient))
	RecordSlice("zg", OutcomeInsufficient)
	RecordSlice("zg", OutcomeInsufficient)
	got := testutil.ToFloat64(slicesTotal.WithLabelValues("zg", OutcomeInsufficient))
	if got-before != 2 {
		t.Errorf("insufficient slices delta = %v, want 2", got-before)
	}
}

func TestRecordMissingSource(t *testing.T) {
	before := testutil.ToFloat64(sourcesMissingTotal.WithLabelValues("kappa"))
	RecordMissingSource("kappa")
	if got := testutil.ToFloat64(sourcesMissingTotal.WithLabelValues("kappa")); got-before != 1 {
		t.Errorf("missing sources delta = %v, want 1", got-before)
	}
}

func TestObserveUnit(t *testing.T) {
	ObserveUnit("tf", 20*time.Millisecond)
	if n := testutil.CollectAndCount(unitDuration); n < 1 {
		t.Errorf("unit duration series = %d, want at least 1", n)
	}
}
