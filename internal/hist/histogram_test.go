package hist

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFilled1D(t *testing.T, n int, values []float64) *Histogram {
	t.Helper()
	h := MustNew("h1", MustUniformAxis("x", n, 0, float64(n)))
	require.NoError(t, h.SetValues(values, nil))
	return h
}

// newFlagged builds a (pt, obs, flag) histogram holding, at every
// (pt, obs) bin centre, one entry per flag 1..6 weighted by the flag value.
func newFlagged(t *testing.T) *Histogram {
	t.Helper()
	h := MustNew("h3",
		MustUniformAxis("pt", 4, 0, 100),
		MustUniformAxis("obs", 10, 0, 1),
		MustUniformAxis("flag", 6, 0.5, 6.5),
	)
	for pt := 0; pt < 4; pt++ {
		for obs := 0; obs < 10; obs++ {
			for flag := 1; flag <= 6; flag++ {
				h.Fill(float64(flag), 12.5+25*float64(pt), 0.05+0.1*float64(obs), float64(flag))
			}
		}
	}
	return h
}

func TestFindBin(t *testing.T) {
	a := MustUniformAxis("x", 4, 0, 1)
	testCases := []struct {
		x    float64
		want int
	}{
		{-0.1, -1},
		{0, 0},
		{0.2499, 0},
		{0.25, 1},
		{0.999, 3},
		{1, -1},
		{math.NaN(), -1},
	}
	for _, tc := range testCases {
		if got := a.FindBin(tc.x); got != tc.want {
			t.Errorf("FindBin(%v) = %d, want %d", tc.x, got, tc.want)
		}
	}
}

func TestNewAxisRejectsBadEdges(t *testing.T) {
	if _, err := NewAxis("x", []float64{0}); err == nil {
		t.Error("expected error for single edge")
	}
	if _, err := NewAxis("x", []float64{0, 1, 1}); err == nil {
		t.Error("expected error for repeated edge")
	}
	if _, err := UniformAxis("x", 0, 0, 1); err == nil {
		t.Error("expected error for zero bins")
	}
}

func TestRebin_EvenFactor(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i + 1)
	}
	h := newFilled1D(t, 20, values)

	require.NoError(t, h.Rebin(5))

	ax, err := h.Axis("x")
	require.NoError(t, err)
	require.Equal(t, 4, ax.NBins())
	assert.Equal(t, []float64{0, 5, 10, 15, 20}, ax.Edges)
	for g := 0; g < 4; g++ {
		want := 0.0
		for i := 5 * g; i < 5*g+5; i++ {
			want += values[i]
		}
		assert.Equal(t, want, h.Content(g), "group %d", g)
	}
}

func TestRebin_RemainderMergedIntoLastGroup(t *testing.T) {
	values := make([]float64, 22)
	for i := range values {
		values[i] = 1
	}
	h := newFilled1D(t, 22, values)

	require.NoError(t, h.Rebin(5))

	ax, _ := h.Axis("x")
	require.Equal(t, 4, ax.NBins())
	assert.Equal(t, []float64{0, 5, 10, 15, 22}, ax.Edges)
	assert.Equal(t, 5.0, h.Content(0))
	assert.Equal(t, 7.0, h.Content(3))
	assert.Equal(t, 22.0, h.Integral())
}

func TestRebin_FactorLargerThanBins(t *testing.T) {
	h := newFilled1D(t, 3, []float64{1, 2, 3})
	require.NoError(t, h.Rebin(10))
	ax, _ := h.Axis("x")
	assert.Equal(t, 1, ax.NBins())
	assert.Equal(t, 6.0, h.Content(0))
}

func TestRebin_Invalid(t *testing.T) {
	h := newFilled1D(t, 4, []float64{1, 2, 3, 4})
	if err := h.Rebin(0); !errors.Is(err, ErrInvalidRebin) {
		t.Errorf("Rebin(0) error = %v, want ErrInvalidRebin", err)
	}
	h2 := newFlagged(t)
	if err := h2.Rebin(2); !errors.Is(err, ErrInvalidRebin) {
		t.Errorf("Rebin on 3-D error = %v, want ErrInvalidRebin", err)
	}
}

func TestRestrict_UnknownAxis(t *testing.T) {
	h := newFlagged(t)
	err := h.Restrict("eta", 0, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAxis))

	var axErr *AxisError
	require.True(t, errors.As(err, &axErr))
	assert.Equal(t, "eta", axErr.Axis)

	_, err = h.Project("eta")
	assert.True(t, errors.Is(err, ErrInvalidAxis))
}

func TestRestrict_IsReversible(t *testing.T) {
	h := newFlagged(t)
	before := h.Integral()

	require.NoError(t, h.Restrict("pt", 25, 50))
	require.NoError(t, h.RestrictValue("flag", 2))
	restricted := h.Integral()
	assert.Less(t, restricted, before)
	// 10 obs bins with weight 2 in one pt bin
	assert.Equal(t, 20.0, restricted)

	require.NoError(t, h.Unrestrict("pt"))
	require.NoError(t, h.Restrict("flag", math.Inf(-1), math.Inf(1)))
	assert.Equal(t, before, h.Integral())
}

func TestRestrict_RangeSemantics(t *testing.T) {
	h := newFilled1D(t, 10, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})

	// Upper bound on an edge excludes the bin starting there.
	require.NoError(t, h.Restrict("x", 2, 5))
	assert.Equal(t, 3.0, h.Integral())

	// Bounds inside bins include the partially covered bins.
	require.NoError(t, h.Restrict("x", 2.5, 4.5))
	assert.Equal(t, 3.0, h.Integral())

	// Low side sentinel.
	require.NoError(t, h.Restrict("x", -10, 3))
	assert.Equal(t, 3.0, h.Integral())

	// Nothing overlaps.
	require.NoError(t, h.Restrict("x", 20, 30))
	assert.Equal(t, 0.0, h.Integral())
	assert.Equal(t, 0.0, h.Maximum())
}

func TestIntegral_Empty(t *testing.T) {
	h := MustNew("empty", MustUniformAxis("x", 5, 0, 1))
	if got := h.Integral(); got != 0 {
		t.Errorf("Integral() = %v, want 0", got)
	}
}

func TestIntegralAndError(t *testing.T) {
	h := MustNew("h1", MustUniformAxis("x", 4, 0, 4))
	require.NoError(t, h.SetValues([]float64{1, 2, 3, 4}, []float64{1, 4, 9, 16}))

	sum, errv := h.IntegralAndError()
	assert.Equal(t, 10.0, sum)
	assert.InDelta(t, math.Sqrt(30), errv, 1e-12)

	require.NoError(t, h.Restrict("x", 1, 3))
	sum, errv = h.IntegralAndError()
	assert.Equal(t, h.Integral(), sum)
	assert.Equal(t, 5.0, sum)
	assert.InDelta(t, math.Sqrt(13), errv, 1e-12)
}

func TestProject_RespectsMasksAndLeavesSourceIntact(t *testing.T) {
	h := newFlagged(t)
	require.NoError(t, h.Restrict("pt", 0, 25))
	require.NoError(t, h.Restrict("obs", 0, 0.5))
	require.NoError(t, h.RestrictValue("flag", 3))
	srcIntegral := h.Integral()

	p, err := h.Project("obs")
	require.NoError(t, err)
	require.Equal(t, 1, p.Dim())

	ax, _ := p.Axis("obs")
	assert.Equal(t, 10, ax.NBins(), "projection keeps full binning")
	assert.False(t, ax.IsRestricted())
	for i := 0; i < 5; i++ {
		assert.Equal(t, 3.0, p.Content(i))
	}
	for i := 5; i < 10; i++ {
		assert.Equal(t, 0.0, p.Content(i), "masked obs bin %d", i)
	}
	assert.Equal(t, srcIntegral, p.Integral())
	assert.NotEqual(t, h.ID, p.ID)

	// Source masks are untouched by projection.
	assert.Equal(t, srcIntegral, h.Integral())
	first, last := mustAxis(t, h, "flag").ActiveRange()
	assert.Equal(t, 2, first)
	assert.Equal(t, 2, last)
}

func TestProject_AxisOrder(t *testing.T) {
	h := newFlagged(t)
	p, err := h.Project("flag", "pt")
	require.NoError(t, err)
	axes := p.Axes()
	require.Len(t, axes, 2)
	assert.Equal(t, "flag", axes[0].Name)
	assert.Equal(t, "pt", axes[1].Name)
	// flag 4 in pt bin 1: 10 obs bins of weight 4
	assert.Equal(t, 40.0, p.Content(3, 1))

	_, err = h.Project("pt", "pt")
	assert.Error(t, err)
	_, err = h.Project()
	assert.Error(t, err)
}

func mustAxis(t *testing.T, h *Histogram, name string) Axis {
	t.Helper()
	a, err := h.Axis(name)
	require.NoError(t, err)
	return a
}

func TestScale_Density(t *testing.T) {
	h := MustNew("h", mustEdges(t, "x", []float64{0, 0.5, 1.5, 2}))
	require.NoError(t, h.SetValues([]float64{1, 2, 3}, []float64{1, 4, 9}))

	h.Scale(0.5, ScaleDensity)

	assert.InDelta(t, 1.0, h.Content(0), 1e-12) // 1*0.5/0.5
	assert.InDelta(t, 1.0, h.Content(1), 1e-12) // 2*0.5/1
	assert.InDelta(t, 3.0, h.Content(2), 1e-12) // 3*0.5/0.5
	_, e := h.Bin(1)
	assert.InDelta(t, 1.0, e, 1e-12) // 2*0.5/1
}

func TestScale_Count(t *testing.T) {
	h := newFilled1D(t, 3, []float64{2, 4, 6})
	h.Scale(0.5, ScaleCount)
	assert.Equal(t, []float64{1, 2, 3}, h.Values())
}

func mustEdges(t *testing.T, name string, edges []float64) Axis {
	t.Helper()
	a, err := NewAxis(name, edges)
	require.NoError(t, err)
	return a
}

func TestDivide_ZeroDivisorYieldsZero(t *testing.T) {
	num := newFilled1D(t, 4, []float64{1, 2, 0, 5})
	den := newFilled1D(t, 4, []float64{2, 0, 0, 5})

	require.NoError(t, num.Divide(den))

	want := []float64{0.5, 0, 0, 1}
	for i, w := range want {
		c, e := num.Bin(i)
		if math.IsNaN(c) || math.IsInf(c, 0) || math.IsNaN(e) || math.IsInf(e, 0) {
			t.Fatalf("bin %d not finite: content=%v err=%v", i, c, e)
		}
		assert.InDelta(t, w, c, 1e-12, "bin %d", i)
	}
	_, e := num.Bin(1)
	assert.Equal(t, 0.0, e)
}

func TestDivide_ShapeMismatch(t *testing.T) {
	a := newFilled1D(t, 4, []float64{1, 1, 1, 1})
	b := newFilled1D(t, 5, []float64{1, 1, 1, 1, 1})
	assert.True(t, errors.Is(a.Divide(b), ErrShapeMismatch))
	assert.True(t, errors.Is(a.Add(b), ErrShapeMismatch))
	assert.True(t, errors.Is(a.Add(nil), ErrShapeMismatch))
}

func TestAdd(t *testing.T) {
	a := newFilled1D(t, 3, []float64{1, 2, 3})
	b := newFilled1D(t, 3, []float64{1, 1, 1})
	require.NoError(t, a.Add(b))
	assert.Equal(t, []float64{2, 3, 4}, a.Values())
	assert.Equal(t, []float64{1, 1, 1}, b.Values())
}

func TestClone_IsIndependent(t *testing.T) {
	a := newFilled1D(t, 3, []float64{1, 2, 3})
	c := a.Clone("copy")

	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, "copy", c.Name)

	c.Scale(2, ScaleCount)
	assert.Equal(t, []float64{1, 2, 3}, a.Values())
	assert.Equal(t, []float64{2, 4, 6}, c.Values())
}

func TestView_CopyOnWrite(t *testing.T) {
	parent := newFlagged(t)
	total := parent.Integral()

	v := parent.View()
	require.NoError(t, v.RestrictValue("flag", 1))
	assert.Equal(t, total, parent.Integral(), "restricting a view leaves the parent unmasked")

	v.Scale(10, ScaleCount)
	assert.Equal(t, total, parent.Integral(), "writing a view leaves parent content alone")

	v2 := parent.View()
	parent.Scale(2, ScaleCount)
	assert.Equal(t, total, v2.Integral(), "writing the parent leaves existing views alone")
	assert.Equal(t, 2*total, parent.Integral())
}

func TestMaximumMinimum(t *testing.T) {
	h := newFilled1D(t, 4, []float64{3, -1, 7, 2})
	assert.Equal(t, 7.0, h.Maximum())
	assert.Equal(t, -1.0, h.Minimum())
	require.NoError(t, h.RestrictBins("x", 3, 3))
	assert.Equal(t, 2.0, h.Maximum())
	assert.Equal(t, 2.0, h.Minimum())
}

func TestFill_OutOfRange(t *testing.T) {
	h := MustNew("h", MustUniformAxis("x", 2, 0, 1))
	assert.False(t, h.Fill(1, 2))
	assert.False(t, h.Fill(1, 0.5, 0.5))
	assert.True(t, h.Fill(1, 0.5))
	assert.Equal(t, 1.0, h.Integral())
}
