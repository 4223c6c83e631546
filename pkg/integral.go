package drs4

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// AmplitudeIntegral is the mean of the samples (or of their absolute values)
// in [low, high], normalized by the number of samples.
func AmplitudeIntegral(samples []float64, low, high int, absolute bool) (float64, error) {
	if low < 0 || high >= len(samples) || low > high {
		return 0, &DataError{Index: high, Limit: len(samples), Reason: fmt.Sprintf("amplitude window [%d, %d] outside waveform", low, high)}
	}
	window := samples[low : high+1]
	if !absolute {
		return floats.Sum(window) / float64(len(window)), nil
	}
	var sum float64
	for _, v := range window {
		sum += math.Abs(v)
	}
	return sum / float64(len(window)), nil
}

// TimeWeightedIntegral integrates the waveform outwards from peak with the
// trapezoid rule on the calibrated time axis. The left walk stops after
// (peak-low)/samplingRate and the right walk after (high-peak)/samplingRate,
// clipping the last bin in time. The result is normalized by the elapsed
// time, so the window means the same physical time on every channel
// whatever its bin widths are. It also returns the elapsed time.
func TimeWeightedIntegral(samples []float64, tb *TimeBase, low, high, peak int, samplingRate float64) (float64, float64, error) {
	n := len(samples)
	if n == 0 || tb.Len() < n {
		return 0, 0, &DataError{Channel: tb.Channel, Limit: tb.Len(), Index: n, Reason: "time base shorter than waveform"}
	}
	if peak < 0 || peak >= n || low > peak || high < peak {
		return 0, 0, &DataError{Channel: tb.Channel, Index: peak, Limit: n, Reason: fmt.Sprintf("peak %d outside window [%d, %d]", peak, low, high)}
	}
	if low == peak && high == peak {
		return samples[peak], 0, nil
	}
	if !(samplingRate > 0) {
		return samples[peak], 0, &NumericalError{Channel: tb.Channel, Operation: "time weighted integral", Reason: "sampling rate must be positive"}
	}

	leftBudget := float64(peak-low) / samplingRate
	rightBudget := float64(high-peak) / samplingRate

	var integral, leftTime, rightTime float64
	for i := peak; i > 0 && leftTime < leftBudget; i-- {
		width := tb.Width(i - 1)
		a, b := samples[i], samples[i-1]
		if leftTime+width > leftBudget {
			clip := leftBudget - leftTime
			end := a + (b-a)*clip/width
			integral += clip * (a + end) / 2
			leftTime = leftBudget
			break
		}
		integral += width * (a + b) / 2
		leftTime += width
	}
	for i := peak; i < n-1 && rightTime < rightBudget; i++ {
		width := tb.Width(i)
		a, b := samples[i], samples[i+1]
		if rightTime+width > rightBudget {
			clip := rightBudget - rightTime
			end := a + (b-a)*clip/width
			integral += clip * (a + end) / 2
			rightTime = rightBudget
			break
		}
		integral += width * (a + b) / 2
		rightTime += width
	}

	elapsed := leftTime + rightTime
	if elapsed <= 0 {
		return samples[peak], 0, &NumericalError{Channel: tb.Channel, Operation: "time weighted integral", Reason: "zero width window"}
	}
	return integral / elapsed, elapsed, nil
}

// TimeAveragedAmplitude is the trapezoid integral of [low, high] divided by
// the time it spans. It also returns the time span.
func TimeAveragedAmplitude(samples []float64, tb *TimeBase, low, high int) (float64, float64, error) {
	n := len(samples)
	if low < 0 || high >= n || low > high || tb.Len() < n {
		return 0, 0, &DataError{Channel: tb.Channel, Index: high, Limit: n, Reason: fmt.Sprintf("window [%d, %d] outside waveform", low, high)}
	}
	if low == high {
		return samples[low], 0, nil
	}
	var integral float64
	for i := low; i < high; i++ {
		integral += tb.Width(i) * (samples[i] + samples[i+1]) / 2
	}
	span := tb.Between(low, high)
	if span <= 0 {
		return samples[low], 0, &NumericalError{Channel: tb.Channel, Operation: "time averaged amplitude", Reason: "zero width window"}
	}
	return integral / span, span, nil
}

// windowStatistic evaluates the kind of an integral over [low, high].
func windowStatistic(samples []float64, low, high int, kind IntegralKind) (float64, error) {
	switch kind {
	case IntegralMedian:
		return median(samples[low : high+1]), nil
	case IntegralPeakToPeak:
		window := samples[low : high+1]
		return floats.Max(window) - floats.Min(window), nil
	default:
		return AmplitudeIntegral(samples, low, high, kind == IntegralAbsMean)
	}
}

// EvaluateIntegral computes in for the current event. Peak anchored
// integrals need the peak of r resolved for this event first. A degenerate
// time weighted window falls back to the peak sample and marks the integral
// as degenerate instead of failing.
func EvaluateIntegral(in *Integral, r *SignalRegion, w *Waveform, tb *TimeBase, samplingRate float64) error {
	in.Reset()
	n := w.Len()
	polarity := w.Polarity
	if r != nil {
		polarity = r.Polarity
	}
	if polarity == 0 {
		polarity = 1
	}

	var low, high, peak int
	if in.Absolute {
		low, high = in.DownRange, in.UpRange
		if low < 0 || high >= n || low > high {
			return &DataError{Channel: w.Channel, Index: high, Limit: n, Reason: fmt.Sprintf("integral %s [%d, %d] outside waveform", in.Name, low, high)}
		}
		peak = PeakIndex(w.Samples, low, high, polarity)
	} else {
		if r == nil {
			return fmt.Errorf("integral %s: %w", in.Name, ErrPeakNotResolved)
		}
		var err error
		peak, err = r.Peak()
		if err != nil {
			return fmt.Errorf("integral %s: %w", in.Name, err)
		}
		low = clamp(peak-in.DownRange, 0, n-1)
		high = clamp(peak+in.UpRange, 0, n-1)
	}

	value, err := windowStatistic(w.Samples, low, high, in.Kind)
	if err != nil {
		return err
	}
	if in.Kind == IntegralMean || in.Kind == IntegralMedian {
		value *= float64(polarity)
	}

	var timeIntegral, length float64
	if in.Absolute {
		timeIntegral, length, err = TimeAveragedAmplitude(w.Samples, tb, low, high)
	} else {
		timeIntegral, length, err = TimeWeightedIntegral(w.Samples, tb, low, high, peak, samplingRate)
	}
	in.degenerate = false
	if err != nil {
		var numErr *NumericalError
		if !errors.As(err, &numErr) {
			return err
		}
		in.degenerate = true
	}

	in.value = value
	in.timeIntegral = float64(polarity) * timeIntegral
	in.peakTime = tb.At(PeakIndex(w.Samples, low, high, polarity))
	in.length = length
	in.lowBin = low
	in.highBin = high
	in.calculated = true
	return nil
}
