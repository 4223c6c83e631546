package testUtils

import "math"

// GaussianPulse returns n samples on a flat baseline with a gaussian bump of the given amplitude,
// centre and width, all in samples
func GaussianPulse(n int, baseline, amplitude, centre, width float64) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = baseline
	}
	AddGaussian(samples, amplitude, centre, width)
	return samples
}

// AddGaussian adds a gaussian bump to samples in place
func AddGaussian(samples []float64, amplitude, centre, width float64) {
	for i := range samples {
		d := (float64(i) - centre) / width
		samples[i] += amplitude * math.Exp(-0.5*d*d)
	}
}

// DoublePulse returns a waveform with two gaussian bumps of the same width
func DoublePulse(n int, amplitude1, centre1, amplitude2, centre2, width float64) []float64 {
	samples := GaussianPulse(n, 0, amplitude1, centre1, width)
	AddGaussian(samples, amplitude2, centre2, width)
	return samples
}

// Negate returns a copy of samples with the sign flipped
func Negate(samples []float64) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = -v
	}
	return out
}

// UniformWidths returns n bin widths equal to width
func UniformWidths(n int, width float64) []float64 {
	widths := make([]float64, n)
	for i := range widths {
		widths[i] = width
	}
	return widths
}

// OutlierWidths returns n bin widths equal to width except the bin at index outlier, which is factor times wider
func OutlierWidths(n int, width float64, outlier int, factor float64) []float64 {
	widths := UniformWidths(n, width)
	widths[outlier] *= factor
	return widths
}

// ScaledWidths returns a copy of widths multiplied by factor
func ScaledWidths(widths []float64, factor float64) []float64 {
	out := make([]float64, len(widths))
	for i, w := range widths {
		out[i] = w * factor
	}
	return out
}

// RippleWidths returns n bin widths oscillating by +-fraction around width, as seen on real DRS4 chips
func RippleWidths(n int, width, fraction float64) []float64 {
	widths := make([]float64, n)
	for i := range widths {
		widths[i] = width * (1 + fraction*math.Sin(2*math.Pi*float64(i)/16))
	}
	return widths
}
