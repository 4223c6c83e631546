package drs4

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpectrumModes is the number of low order mode magnitudes kept per channel.
const SpectrumModes = 5

// SpectrumSummary describes the one sided magnitude spectrum of a waveform.
// Frequencies are in GHz when the sampling rate is in samples per ns.
type SpectrumSummary struct {
	MeanMagnitude float64
	MeanFrequency float64
	MinMagnitude  float64
	MinFrequency  float64
	MaxMagnitude  float64
	MaxFrequency  float64
	Modes         [SpectrumModes]float64
}

// FrequencyAnalyzer keeps the FFT plan and buffers of one channel. It is not
// safe for concurrent use.
type FrequencyAnalyzer struct {
	fft    *fourier.FFT
	n      int
	coeffs []complex128
}

func NewFrequencyAnalyzer(nSamples int) *FrequencyAnalyzer {
	return &FrequencyAnalyzer{
		fft: fourier.NewFFT(nSamples),
		n:   nSamples,
	}
}

// Analyze computes the summary of samples taken at samplingRate. The DC bin
// is left out of the mean, min and max but kept as the first mode. The mean
// frequency is the magnitude weighted centroid of the spectrum.
func (a *FrequencyAnalyzer) Analyze(channel uint16, samples []float64, samplingRate float64) (SpectrumSummary, error) {
	var summary SpectrumSummary
	if len(samples) != a.n {
		return summary, &DataError{Channel: channel, Index: len(samples), Limit: a.n, Reason: "waveform length differs from FFT length"}
	}
	if !(samplingRate > 0) {
		return summary, &NumericalError{Channel: channel, Operation: "frequency analysis", Reason: "sampling rate must be positive"}
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, samples)
	bins := len(a.coeffs)
	for i := 0; i < SpectrumModes && i < bins; i++ {
		summary.Modes[i] = cmplx.Abs(a.coeffs[i]) / float64(a.n)
	}
	if bins < 2 {
		summary.MeanMagnitude = summary.Modes[0]
		summary.MinMagnitude = summary.Modes[0]
		summary.MaxMagnitude = summary.Modes[0]
		return summary, nil
	}

	summary.MinMagnitude = math.Inf(1)
	summary.MaxMagnitude = math.Inf(-1)
	var total, weighted float64
	for i := 1; i < bins; i++ {
		magnitude := cmplx.Abs(a.coeffs[i]) / float64(a.n)
		frequency := a.fft.Freq(i) * samplingRate
		total += magnitude
		weighted += magnitude * frequency
		if magnitude < summary.MinMagnitude {
			summary.MinMagnitude = magnitude
			summary.MinFrequency = frequency
		}
		if magnitude > summary.MaxMagnitude {
			summary.MaxMagnitude = magnitude
			summary.MaxFrequency = frequency
		}
	}
	summary.MeanMagnitude = total / float64(bins-1)
	if total > 0 {
		summary.MeanFrequency = weighted / total
	}
	return summary, nil
}
