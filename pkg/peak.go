package drs4

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	riseNearFraction = 0.8
	riseFarFraction  = 0.2
)

// PeakIndex returns the index of the maximum (polarity > 0) or minimum
// (polarity < 0) sample in [low, high]. The window is clamped to the buffer.
func PeakIndex(samples []float64, low, high, polarity int) int {
	if len(samples) == 0 {
		return 0
	}
	low = clamp(low, 0, len(samples)-1)
	high = clamp(high, 0, len(samples)-1)
	sign := 1.0
	if polarity < 0 {
		sign = -1
	}
	best := low
	for i := low + 1; i <= high; i++ {
		if sign*samples[i] > sign*samples[best] {
			best = i
		}
	}
	return best
}

type edgeDirection int

const (
	leadingEdge  edgeDirection = -1
	trailingEdge edgeDirection = 1
)

// pulseAmplitude is the polarity corrected height of sample i above baseline.
func pulseAmplitude(w *Waveform, i int, baseline float64) float64 {
	return float64(w.Polarity) * (w.Samples[i] - baseline)
}

// crossingTime walks from peak along dir until the amplitude first drops
// below level and interpolates the crossing time between the two bracketing
// samples. It also returns the index of the first sample below level.
func crossingTime(w *Waveform, tb *TimeBase, peak int, baseline, level float64, dir edgeDirection) (float64, int, error) {
	n := w.Len()
	for i := peak; ; i += int(dir) {
		next := i + int(dir)
		if next < 0 || next >= n {
			break
		}
		a, b := pulseAmplitude(w, i, baseline), pulseAmplitude(w, next, baseline)
		if b < level {
			x := interpolateCrossing(float64(i), a, float64(next), b, level)
			return tb.Interpolate(x), next, nil
		}
	}
	return 0, -1, &NumericalError{
		Channel:   w.Channel,
		Operation: "edge crossing",
		Reason:    fmt.Sprintf("amplitude never drops below %.3g", level),
	}
}

func peakAmplitude(w *Waveform, peak int, baseline float64) (float64, error) {
	amplitude := pulseAmplitude(w, peak, baseline)
	if !(amplitude > 0) {
		return 0, &NumericalError{Channel: w.Channel, Operation: "pulse shape", Reason: "peak not above baseline"}
	}
	return amplitude, nil
}

// RiseTime is the time between the 20 % and 80 % crossings of the leading edge.
func RiseTime(w *Waveform, tb *TimeBase, peak int, baseline float64) (float64, error) {
	return edgeTime(w, tb, peak, baseline, leadingEdge)
}

// FallTime is the time between the 80 % and 20 % crossings of the trailing edge.
func FallTime(w *Waveform, tb *TimeBase, peak int, baseline float64) (float64, error) {
	return edgeTime(w, tb, peak, baseline, trailingEdge)
}

func edgeTime(w *Waveform, tb *TimeBase, peak int, baseline float64, dir edgeDirection) (float64, error) {
	amplitude, err := peakAmplitude(w, peak, baseline)
	if err != nil {
		return 0, err
	}
	near, _, err := crossingTime(w, tb, peak, baseline, riseNearFraction*amplitude, dir)
	if err != nil {
		return 0, err
	}
	far, _, err := crossingTime(w, tb, peak, baseline, riseFarFraction*amplitude, dir)
	if err != nil {
		return 0, err
	}
	return math.Abs(near - far), nil
}

// WaveformStartTime fits a straight line to the leading edge samples between
// the 20 % and 80 % crossings and returns the time at which it reaches the
// baseline. With less than two samples on the edge the line through the two
// interpolated crossings is used instead.
func WaveformStartTime(w *Waveform, tb *TimeBase, peak int, baseline float64) (float64, error) {
	amplitude, err := peakAmplitude(w, peak, baseline)
	if err != nil {
		return 0, err
	}
	t80, i80, err := crossingTime(w, tb, peak, baseline, riseNearFraction*amplitude, leadingEdge)
	if err != nil {
		return 0, err
	}
	t20, i20, err := crossingTime(w, tb, peak, baseline, riseFarFraction*amplitude, leadingEdge)
	if err != nil {
		return 0, err
	}

	// samples with 20 % <= amplitude < 80 %
	times := make([]float64, 0, i80-i20)
	amps := make([]float64, 0, i80-i20)
	for i := i20 + 1; i <= i80; i++ {
		times = append(times, tb.At(i))
		amps = append(amps, pulseAmplitude(w, i, baseline))
	}
	if len(times) >= 2 {
		alpha, beta := stat.LinearRegression(times, amps, nil, false)
		if beta > 0 && !math.IsNaN(alpha) {
			return -alpha / beta, nil
		}
	}

	if t80 <= t20 {
		return t20, &NumericalError{Channel: w.Channel, Operation: "start time", Reason: "flat leading edge"}
	}
	slope := (riseNearFraction - riseFarFraction) * amplitude / (t80 - t20)
	return t20 - riseFarFraction*amplitude/slope, nil
}

// ConstantFractionTime is the time at which the leading edge crosses
// fraction*amplitude above baseline.
func ConstantFractionTime(w *Waveform, tb *TimeBase, peak int, baseline, amplitude, fraction float64) (float64, error) {
	if !(amplitude > 0) || !(fraction > 0 && fraction < 1) {
		return 0, &NumericalError{
			Channel:   w.Channel,
			Operation: "constant fraction",
			Reason:    fmt.Sprintf("invalid amplitude %.3g or fraction %.3g", amplitude, fraction),
		}
	}
	t, _, err := crossingTime(w, tb, peak, baseline, fraction*amplitude, leadingEdge)
	return t, err
}

// PeakEstimate is the result of the sub-sample peak search. Without a
// converged fit it carries the coarse sample time and value.
type PeakEstimate struct {
	Index     int
	Time      float64
	Amplitude float64
	Fitted    bool
}

// SubSamplePeak refines the coarse peak with fitter over the samples in
// [peak-halfWindow, peak+halfWindow]. Amplitude is returned with the sign
// of the waveform.
func SubSamplePeak(w *Waveform, tb *TimeBase, peak, halfWindow int, fitter PeakFitter) (PeakEstimate, error) {
	coarse := PeakEstimate{Index: peak, Time: tb.At(peak), Amplitude: w.Samples[peak]}
	if fitter == nil || halfWindow < 1 {
		return coarse, nil
	}
	low := clamp(peak-halfWindow, 0, w.Len()-1)
	high := clamp(peak+halfWindow, 0, w.Len()-1)
	if high-low < 2 {
		return coarse, &NumericalError{Channel: w.Channel, Operation: "peak fit", Reason: "window too short"}
	}

	polarity := float64(w.Polarity)
	if polarity == 0 {
		polarity = 1
	}
	times := make([]float64, 0, high-low+1)
	values := make([]float64, 0, high-low+1)
	for i := low; i <= high; i++ {
		times = append(times, tb.At(i))
		values = append(values, polarity*w.Samples[i])
	}

	t, amplitude, converged := fitter.FitPeak(times, values)
	if !converged || t < times[0] || t > times[len(times)-1] || math.IsNaN(amplitude) {
		return coarse, &NumericalError{Channel: w.Channel, Operation: "peak fit", Reason: "fit did not converge"}
	}
	return PeakEstimate{Index: peak, Time: t, Amplitude: polarity * amplitude, Fitted: true}, nil
}
