package drs4

import (
	"errors"
	"fmt"
	"strings"
)

var ErrPeakNotResolved = errors.New("region peak not resolved for the current event")

type IntegralKind int

const (
	IntegralMean IntegralKind = iota
	IntegralMedian
	IntegralPeakToPeak
	IntegralAbsMean
)

func (k IntegralKind) String() string {
	switch k {
	case IntegralMean:
		return "mean"
	case IntegralMedian:
		return "median"
	case IntegralPeakToPeak:
		return "peak-to-peak"
	case IntegralAbsMean:
		return "abs-mean"
	default:
		return "unknown"
	}
}

// IntegralKindFromName picks the evaluation from the integral name suffix:
// "...PeakToPeak" or "..._ptp" for max-min, "...Median" for the median,
// "..._abs" for the mean of |x| and the signed mean for anything else.
func IntegralKindFromName(name string) IntegralKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, "peaktopeak"), strings.HasSuffix(lower, "_ptp"):
		return IntegralPeakToPeak
	case strings.HasSuffix(lower, "median"):
		return IntegralMedian
	case strings.HasSuffix(lower, "_abs"):
		return IntegralAbsMean
	default:
		return IntegralMean
	}
}

// Integral is a named window. Peak anchored integrals span
// [peak-DownRange, peak+UpRange] around the peak of their region, absolute
// ones span [DownRange, UpRange] directly.
type Integral struct {
	Name      string
	Kind      IntegralKind
	DownRange int
	UpRange   int
	Absolute  bool

	value        float64
	timeIntegral float64
	peakTime     float64
	length       float64
	lowBin       int
	highBin      int
	degenerate   bool
	calculated   bool
}

func NewIntegral(name string, downRange, upRange int) *Integral {
	return &Integral{
		Name:      name,
		Kind:      IntegralKindFromName(name),
		DownRange: downRange,
		UpRange:   upRange,
	}
}

func NewAbsoluteIntegral(name string, low, high int) *Integral {
	in := NewIntegral(name, low, high)
	in.Absolute = true
	return in
}

// Reset marks the integral as stale. Called at the start of every event.
func (in *Integral) Reset() {
	in.calculated = false
}

func (in *Integral) Calculated() bool {
	return in.calculated
}

func (in *Integral) Value() (float64, error) {
	if !in.calculated {
		return 0, fmt.Errorf("%s: %w", in.Name, ErrNotCalculated)
	}
	return in.value, nil
}

func (in *Integral) TimeIntegral() (float64, error) {
	if !in.calculated {
		return 0, fmt.Errorf("%s: %w", in.Name, ErrNotCalculated)
	}
	return in.timeIntegral, nil
}

// PeakTime is the time of the extremal sample inside the evaluated window.
func (in *Integral) PeakTime() (float64, error) {
	if !in.calculated {
		return 0, fmt.Errorf("%s: %w", in.Name, ErrNotCalculated)
	}
	return in.peakTime, nil
}

// Length is the time covered by the time weighted integral.
func (in *Integral) Length() (float64, error) {
	if !in.calculated {
		return 0, fmt.Errorf("%s: %w", in.Name, ErrNotCalculated)
	}
	return in.length, nil
}

// Degenerate reports whether the last time weighted evaluation fell back to
// the peak sample.
func (in *Integral) Degenerate() bool {
	return in.degenerate
}

// Bins returns the sample window used in the last evaluation.
func (in *Integral) Bins() (int, int) {
	return in.lowBin, in.highBin
}

// SignalRegion is a search window for the peak of a signal. The peak
// position is found again for every event and all integrals of the region
// are anchored to it.
type SignalRegion struct {
	Name       string
	LowBorder  int
	HighBorder int
	Polarity   int
	integrals  []*Integral
	peak       int
	resolved   bool
}

func NewSignalRegion(name string, low, high, polarity int) *SignalRegion {
	if polarity == 0 {
		polarity = 1
	}
	return &SignalRegion{
		Name:       name,
		LowBorder:  low,
		HighBorder: high,
		Polarity:   polarity,
	}
}

func (r *SignalRegion) AddIntegral(in *Integral) {
	r.integrals = append(r.integrals, in)
}

func (r *SignalRegion) Integrals() []*Integral {
	return r.integrals
}

func (r *SignalRegion) Integral(name string) (*Integral, error) {
	for _, in := range r.integrals {
		if in.Name == name {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%s in region %s: %w", name, r.Name, ErrUnknownIntegral)
}

// Reset forgets the peak of the previous event and marks all integrals stale.
func (r *SignalRegion) Reset() {
	r.resolved = false
	for _, in := range r.integrals {
		in.Reset()
	}
}

// Peak returns the peak index found for the current event.
func (r *SignalRegion) Peak() (int, error) {
	if !r.resolved {
		return 0, fmt.Errorf("%s: %w", r.Name, ErrPeakNotResolved)
	}
	return r.peak, nil
}

// ResolvePeak finds the extremal sample of w inside the region borders.
func (r *SignalRegion) ResolvePeak(w *Waveform) (int, error) {
	r.Reset()
	n := w.Len()
	if r.LowBorder < 0 || r.HighBorder >= n || r.LowBorder > r.HighBorder {
		return 0, &DataError{
			Channel: w.Channel,
			Index:   r.HighBorder,
			Limit:   n,
			Reason:  fmt.Sprintf("region %s [%d, %d] outside waveform", r.Name, r.LowBorder, r.HighBorder),
		}
	}
	r.peak = PeakIndex(w.Samples, r.LowBorder, r.HighBorder, r.Polarity)
	r.resolved = true
	return r.peak, nil
}

// Evaluate computes every integral of the region for the current event.
// The first failing integral stops the evaluation.
func (r *SignalRegion) Evaluate(w *Waveform, tb *TimeBase, samplingRate float64) error {
	for _, in := range r.integrals {
		if err := EvaluateIntegral(in, r, w, tb, samplingRate); err != nil {
			return err
		}
	}
	return nil
}
