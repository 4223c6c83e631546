package drs4

import (
	"errors"
	"fmt"
	"math"
)

const (
	bucketSignalSigma    = 3
	pedBucketSignalSigma = 4
)

// IsPulser reports whether the time averaged amplitude of w in
// [region[0], region[1]], corrected by the pulser polarity, exceeds threshold.
func IsPulser(w *Waveform, tb *TimeBase, region [2]int, threshold float64) (bool, error) {
	value, _, err := TimeAveragedAmplitude(w.Samples, tb, region[0], region[1])
	if err != nil {
		return false, fmt.Errorf("pulser region: %w", err)
	}
	polarity := w.PulserPolarity
	if polarity == 0 {
		polarity = 1
	}
	return float64(polarity)*value > threshold, nil
}

// BucketResult holds the pileup flags of one channel together with the
// polarity corrected integrals they were derived from.
type BucketResult struct {
	Bucket    bool
	PedBucket bool
	Signal    float64
	Forward   float64
	Backward  float64
	// Shift is one bunch spacing in samples.
	Shift int
}

// BunchShift converts the bunch spacing in ns to a number of samples.
func BunchShift(bunchSpacing, samplingRate float64) int {
	return int(math.Round(bunchSpacing * samplingRate))
}

// BucketFlags compares the time weighted integral around the signal peak of
// r with the same integral around the peaks found one bunch later (forward)
// and one bunch earlier (backward). r must have its peak resolved for the
// current event. bucket is set when the energy sits in the following bunch
// and not in the signal one. ped_bucket is set when the preceding bunch
// carries a signal. A shifted window that leaves the waveform leaves the
// corresponding flag unset.
func BucketFlags(w *Waveform, tb *TimeBase, r *SignalRegion, in *Integral, noise *NoiseEstimator, samplingRate, bunchSpacing float64) (BucketResult, error) {
	var result BucketResult
	peak, err := r.Peak()
	if err != nil {
		return result, err
	}
	if in == nil {
		return result, fmt.Errorf("bucket integral for region %s: %w", r.Name, ErrUnknownIntegral)
	}
	result.Shift = BunchShift(bunchSpacing, samplingRate)
	polarity := float64(r.Polarity)

	result.Signal, err = anchoredIntegral(w, tb, in, peak, samplingRate)
	if err != nil {
		return result, err
	}
	result.Signal *= polarity

	forward, ok, err := shiftedIntegral(w, tb, r, in, result.Shift, samplingRate)
	if err != nil {
		return result, err
	}
	if ok {
		result.Forward = polarity * forward
		result.Bucket = result.Forward > noise.Threshold(r.Polarity, bucketSignalSigma) &&
			result.Signal < noise.Threshold(r.Polarity, bucketSignalSigma)
	}

	backward, ok, err := shiftedIntegral(w, tb, r, in, -result.Shift, samplingRate)
	if err != nil {
		return result, err
	}
	if ok {
		result.Backward = polarity * backward
		result.PedBucket = result.Backward > noise.Threshold(r.Polarity, pedBucketSignalSigma)
	}
	return result, nil
}

// shiftedIntegral searches the peak in the region moved by shift samples and
// integrates around it. ok is false when the moved region is not contained
// in the waveform.
func shiftedIntegral(w *Waveform, tb *TimeBase, r *SignalRegion, in *Integral, shift int, samplingRate float64) (float64, bool, error) {
	low, high := r.LowBorder+shift, r.HighBorder+shift
	if low < 0 || high >= w.Len() {
		return 0, false, nil
	}
	peak := PeakIndex(w.Samples, low, high, r.Polarity)
	value, err := anchoredIntegral(w, tb, in, peak, samplingRate)
	return value, err == nil, err
}

func anchoredIntegral(w *Waveform, tb *TimeBase, in *Integral, peak int, samplingRate float64) (float64, error) {
	n := w.Len()
	low := clamp(peak-in.DownRange, 0, n-1)
	high := clamp(peak+in.UpRange, 0, n-1)
	value, _, err := TimeWeightedIntegral(w.Samples, tb, low, high, peak, samplingRate)
	if err != nil {
		var numErr *NumericalError
		if errors.As(err, &numErr) {
			return value, nil
		}
		return 0, err
	}
	return value, nil
}
