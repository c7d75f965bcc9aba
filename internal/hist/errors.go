package hist

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAxis is returned when an operation names an axis the
	// histogram does not have.
	ErrInvalidAxis = errors.New("invalid axis")

	// ErrShapeMismatch is returned when two histograms combined bin-by-bin
	// do not share the same binning.
	ErrShapeMismatch = errors.New("histogram shape mismatch")

	// ErrInvalidRebin is returned for rebin factors < 1 or rebinning of a
	// histogram that is not one-dimensional.
	ErrInvalidRebin = errors.New("invalid rebin")
)

// AxisError names the offending axis. It unwraps to ErrInvalidAxis.
type AxisError struct {
	Histogram string
	Axis      string
	Op        string
}

func (e *AxisError) Error() string {
	return fmt.Sprintf("%s %q: no axis %q", e.Op, e.Histogram, e.Axis)
}

func (e *AxisError) Unwrap() error { return ErrInvalidAxis }
