package testUtils

import "math/rand"

// DRNGGaussianSlice returns length normally distributed values with the given mean and sigma.
// Calling with the same seed will yield the same sequence
func DRNGGaussianSlice(length int, seed int64, mean, sigma float64) []float64 {
	dRNG := rand.New(rand.NewSource(seed))
	buf := make([]float64, length)
	for i := range buf {
		buf[i] = mean + sigma*dRNG.NormFloat64()
	}
	return buf
}

// AddNoise adds gaussian noise of the given sigma to a copy of samples
func AddNoise(samples []float64, seed int64, sigma float64) []float64 {
	noise := DRNGGaussianSlice(len(samples), seed, 0, sigma)
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v + noise[i]
	}
	return out
}
