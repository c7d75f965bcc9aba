// Package normalize computes the inclusive per-slice normalization
// constants of the measured and reference distributions.
package normalize

import (
	"errors"
	"fmt"

	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/selection"
)

// MinIntegral is the smallest normalization integral accepted. Slices
// below it on either side are skipped.
const MinIntegral = 1e-3

var (
	// ErrInsufficientStatistics marks a slice whose measured or reference
	// integral is below the threshold. It is recoverable: skip the slice.
	ErrInsufficientStatistics = errors.New("insufficient statistics")

	// ErrInvalidAcceptance is returned for acceptance factors outside (0, 1].
	ErrInvalidAcceptance = errors.New("acceptance factor must be in (0, 1]")
)

// Side identifies which distribution a constant belongs to.
type Side string

const (
	Measured Side = "measured"
	Truth    Side = "truth"
)

// InsufficientStatisticsError reports which side of which slice failed.
type InsufficientStatisticsError struct {
	Side      Side
	Integral  float64
	Threshold float64
	Slice     selection.Slice
}

func (e *InsufficientStatisticsError) Error() string {
	return fmt.Sprintf("%s integral %g below %g for %s", e.Side, e.Integral, e.Threshold, e.Slice)
}

func (e *InsufficientStatisticsError) Unwrap() error { return ErrInsufficientStatistics }

// Constants holds the normalization of one slice. The Err fields are the
// statistical uncertainties of the integrals, with the acceptance applied
// to the measured side as well.
type Constants struct {
	Measured    float64
	Truth       float64
	MeasuredErr float64
	TruthErr    float64
}

// Engine computes normalization constants. The zero value is not usable;
// set PtAxis.
type Engine struct {
	// PtAxis names the pt axis on both measured and reference histograms.
	PtAxis string
	// Threshold overrides MinIntegral when positive.
	Threshold float64
}

func (e Engine) threshold() float64 {
	if e.Threshold > 0 {
		return e.Threshold
	}
	return MinIntegral
}

// Normalize restricts both histograms to the slice's pt window, leaving the
// flag and observable axes unrestricted, and returns
//
//	Measured = integral(measured) / acceptance
//	Truth    = integral(reference)
//
// Either constant below the threshold yields an *InsufficientStatisticsError.
// The inputs are read through views and never masked.
func (e Engine) Normalize(measured, reference *hist.Histogram, s selection.Slice, acceptance float64) (Constants, error) {
	if !(acceptance > 0 && acceptance <= 1) {
		return Constants{}, fmt.Errorf("%w: got %g", ErrInvalidAcceptance, acceptance)
	}
	sel := selection.Selector{PtAxis: e.PtAxis}

	mv, err := sel.Window(measured, s)
	if err != nil {
		return Constants{}, fmt.Errorf("measured normalization: %w", err)
	}
	nMeas, eMeas := mv.IntegralAndError()
	nMeas, eMeas = nMeas/acceptance, eMeas/acceptance
	if nMeas < e.threshold() {
		return Constants{}, &InsufficientStatisticsError{Side: Measured, Integral: nMeas, Threshold: e.threshold(), Slice: s}
	}

	tv, err := sel.Window(reference, s)
	if err != nil {
		return Constants{}, fmt.Errorf("truth normalization: %w", err)
	}
	nTruth, eTruth := tv.IntegralAndError()
	if nTruth < e.threshold() {
		return Constants{}, &InsufficientStatisticsError{Side: Truth, Integral: nTruth, Threshold: e.threshold(), Slice: s}
	}

	return Constants{Measured: nMeas, Truth: nTruth, MeasuredErr: eMeas, TruthErr: eTruth}, nil
}
