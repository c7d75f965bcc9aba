package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groomers/internal/config"
	"github.com/banshee-data/groomers/internal/decompose"
	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/monitoring"
	"github.com/banshee-data/groomers/internal/normalize"
	"github.com/banshee-data/groomers/internal/partition"
	"github.com/banshee-data/groomers/internal/pipeline"
	"github.com/banshee-data/groomers/internal/ratio"
	"github.com/banshee-data/groomers/internal/selection"
	"github.com/banshee-data/groomers/internal/testutil"
	"github.com/banshee-data/groomers/internal/version"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "groomers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_Migrates(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestHistogramStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewHistogramStore(db.DB)
	ctx := context.Background()

	h := hist.MustNew("h_kappa_JetPt_R0.4_05_SD_zcut01_B0_Rmax0.25",
		hist.MustUniformAxis("pt", 2, 60, 100),
		hist.MustUniformAxis("kappa", 5, 0, 0.5),
		hist.MustUniformAxis("flag", 11, -0.5, 10.5),
	)
	h.Fill(2, 70, 0.15, 1)
	h.Fill(3, 70, 0.15, 1)
	h.Fill(1.5, 90, 0.45, 4)
	require.NoError(t, s.Put(ctx, h))

	got, err := s.Histogram(ctx, h.Name)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, h.Values(), got.Values())
	assert.Equal(t, h.Sumw2(), got.Sumw2())
	assert.Equal(t, 13.0, got.Sumw2()[12], "two fills of 2 and 3 in one bin")
	require.Len(t, got.Axes(), 3)
	assert.Equal(t, "kappa", got.Axes()[1].Name)

	again, err := s.Histogram(ctx, h.Name)
	require.NoError(t, err)
	assert.Same(t, got, again, "second load served from cache")

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{h.Name}, names)
}

func TestHistogramStore_Missing(t *testing.T) {
	s := NewHistogramStore(openTestDB(t).DB)
	_, err := s.Histogram(context.Background(), "h_nope")
	assert.True(t, errors.Is(err, pipeline.ErrMissingSource))
	var mse *pipeline.MissingSourceError
	require.True(t, errors.As(err, &mse))
	assert.Equal(t, "h_nope", mse.Name)
}

func TestHistogramStore_PutReplaces(t *testing.T) {
	s := NewHistogramStore(openTestDB(t).DB)
	ctx := context.Background()
	h := hist.MustNew("h", hist.MustUniformAxis("x", 2, 0, 1))
	h.Fill(1, 0.2)
	require.NoError(t, s.Put(ctx, h))
	_, err := s.Histogram(ctx, "h")
	require.NoError(t, err)

	h.Fill(5, 0.7)
	require.NoError(t, s.Put(ctx, h))
	got, err := s.Histogram(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 5}, got.Values())
}

func sliceResult(t *testing.T) (*decompose.Result, ratio.Pair) {
	t.Helper()
	p := partition.Default()
	res := &decompose.Result{
		Slice:     selection.Slice{MinPt: 60, MaxPt: 80, MinThreshold: 0.1},
		Constants: normalize.Constants{Measured: 120, Truth: 100},
	}
	for i, c := range p.Categories() {
		h := hist.MustNew("h1D", hist.MustUniformAxis("zg", 2, 0, 0.5))
		require.NoError(t, h.SetValues([]float64{float64(i), 1}, nil))
		res.Categories = append(res.Categories, decompose.CategoryDistribution{Category: c, Hist: h})
	}
	mvt := hist.MustNew("h_ratio", hist.MustUniformAxis("zg", 2, 0, 0.5))
	require.NoError(t, mvt.SetValues([]float64{0.9, 1.1}, []float64{0.01, 0.02}))
	pur := hist.MustNew("h_ratio_tagged", hist.MustUniformAxis("zg", 2, 0, 0.5))
	require.NoError(t, pur.SetValues([]float64{0.5, 0.6}, nil))
	return res, ratio.Pair{MeasuredVsTruth: mvt, TaggedPurity: pur}
}

func TestResultStore_Run(t *testing.T) {
	db := openTestDB(t)
	rs := NewResultStore(db.DB)
	ctx := context.Background()

	runID, err := rs.BeginRun(ctx, "config/groomers.yaml")
	require.NoError(t, err)
	run, err := rs.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	assert.Equal(t, version.String(), run.Version)

	cfg := ratio.Configuration{Observable: "zg", JetR: 0.4, RMax: 0.25, Label: "SD_zcut01_B0"}
	res, pair := sliceResult(t)
	require.NoError(t, rs.SaveSlice(ctx, runID, cfg, res, pair))

	ratios, err := rs.Ratios(ctx, runID, "zg")
	require.NoError(t, err)
	require.Len(t, ratios, 2)
	assert.Equal(t, ratio.MeasuredVsTruth, ratios[0].Key.Kind)
	assert.Equal(t, cfg, ratios[0].Key.Config)
	assert.Equal(t, res.Slice, ratios[0].Key.Slice)
	assert.Equal(t, []float64{0.9, 1.1}, ratios[0].Hist.Values())
	assert.Equal(t, []float64{0.01, 0.02}, ratios[0].Hist.Sumw2())
	assert.Equal(t, ratio.TaggedPurity, ratios[1].Key.Kind)

	dists, err := rs.Distributions(ctx, runID, cfg, res.Slice)
	require.NoError(t, err)
	require.Len(t, dists, 6)
	assert.Equal(t, 3.0, dists[3].Content(0))

	rep := &pipeline.Report{
		Units:               1,
		Slices:              []pipeline.SliceRecord{{Config: cfg, Slice: res.Slice, State: pipeline.RatiosBuilt}},
		Missing:             []string{"h_theta_g_zg_JetPt_Truth_R0.4_SD_zcut02_B0"},
		EmptyConfigurations: []ratio.Configuration{cfg},
	}
	require.NoError(t, rs.FinishRun(ctx, runID, rep, nil))
	run, err = rs.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunComplete, run.Status)
	assert.Equal(t, 1, run.SlicesBuilt)
	assert.Equal(t, rep.Missing, run.Missing)
	assert.Equal(t, []ratio.Configuration{cfg}, run.Empty)
	assert.NotZero(t, run.FinishedAt)

	// Saving the same slice twice violates the primary key.
	assert.Error(t, rs.SaveSlice(ctx, runID, cfg, res, pair))

	require.NoError(t, rs.DeleteRun(ctx, runID))
	_, err = rs.GetRun(ctx, runID)
	assert.Error(t, err)
	ratios, err = rs.Ratios(ctx, runID, "zg")
	require.NoError(t, err)
	assert.Empty(t, ratios, "ratios cascade with the run")
}

func TestResultStore_FinishUnknownRun(t *testing.T) {
	rs := NewResultStore(openTestDB(t).DB)
	assert.Error(t, rs.FinishRun(context.Background(), "missing", nil, errors.New("boom")))
}

// End to end: sources from SQLite, results back into SQLite.
func TestPipelineWithStores(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	hs := NewHistogramStore(db.DB)
	rs := NewResultStore(db.DB)

	cfg, err := config.Parse([]byte(`
process_observables: [kappa]
jetR: [0.4]
constituent_subtractor:
  max_distance: [0.25]
kappa:
  common_settings:
    pt_bins_reported: [60, 80]
  config1:
    setting: 0.5
    SD: [0.1, 0]
`))
	require.NoError(t, err)

	meas, truth := testutil.KappaPair(t, cfg.Observables["kappa"].Subconfigs[0].Label())
	require.NoError(t, hs.Put(ctx, meas))
	require.NoError(t, hs.Put(ctx, truth))

	runID, err := rs.BeginRun(ctx, "inline")
	require.NoError(t, err)
	r, err := pipeline.NewRunner(cfg, hs)
	require.NoError(t, err)
	r.Sink = rs.Sink(runID)
	rep, err := r.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, rs.FinishRun(ctx, runID, rep, err))

	ratios, err := rs.Ratios(ctx, runID, "kappa")
	require.NoError(t, err)
	assert.Len(t, ratios, 2)
	run, err := rs.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.SlicesBuilt)
}

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.want {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	err := retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryOnBusy(func() error {
		calls++
		return errors.New("constraint failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestHistogramStore_ImportJSON(t *testing.T) {
	s := NewHistogramStore(openTestDB(t).DB)
	ctx := context.Background()

	names, err := s.ImportJSON(ctx, []byte(`[
		{"name": "h_a", "axes": [{"name": "x", "edges": [0, 1, 2]}], "content": [3, 4], "sumw2": [9, 16]},
		{"name": "h_b", "axes": [{"name": "x", "edges": [0, 1]}], "content": [2]}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"h_a", "h_b"}, names)

	a, err := s.Histogram(ctx, "h_a")
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 16}, a.Sumw2())
	b, err := s.Histogram(ctx, "h_b")
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, b.Sumw2(), "unit weights when sumw2 is omitted")

	names, err = s.ImportJSON(ctx, []byte(`{"name": "h_c", "axes": [{"name": "x", "edges": [0, 1]}], "content": [1]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"h_c"}, names)

	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"name": `},
		{"no name", `{"axes": [{"name": "x", "edges": [0, 1]}], "content": [1]}`},
		{"bad edges", `{"name": "h", "axes": [{"name": "x", "edges": [1, 0]}], "content": [1]}`},
		{"shape mismatch", `{"name": "h", "axes": [{"name": "x", "edges": [0, 1]}], "content": [1, 2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ImportJSON(ctx, []byte(tt.data))
			assert.Error(t, err)
		})
	}
}
