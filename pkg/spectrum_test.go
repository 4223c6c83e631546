package drs4

import (
	"testing"

	"github.com/diamondIPP/eudaq-drs4-sub000/testUtils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func defaultSearch() PeakSearchParameters {
	return PeakSearchParameters{
		Sigma:            5,
		ThresholdPercent: 10,
		DeconIterations:  100,
		AverageWindow:    3,
	}
}

func TestFindPeaksSeparatesTwoPulses(t *testing.T) {
	samples := testUtils.DoublePulse(1024, 200, 300, 150, 700, 5)

	peaks := FindPeaks(samples, 0, 1, defaultSearch())
	require.Len(t, peaks, 2)
	assert.True(t, testUtils.IntsWithin(peaks, []int{300, 700}, 2), "got %v", peaks)
}

func TestFindPeaksIgnoresSmallSignals(t *testing.T) {
	samples := testUtils.GaussianPulse(1024, 0, 3, 512, 5)
	assert.Nil(t, FindPeaks(samples, 0, 1, defaultSearch()))

	flat := make([]float64, 1024)
	assert.Nil(t, FindPeaks(flat, 0, 1, defaultSearch()))
}

func TestFindPeaksOnNoisyBaseline(t *testing.T) {
	samples := testUtils.DoublePulse(1024, 200, 300, 150, 700, 5)
	for i := range samples {
		samples[i] += 20
	}
	noisy := testUtils.AddNoise(samples, 7, 1)

	peaks := FindPeaks(noisy, 20, 1, defaultSearch())
	require.Len(t, peaks, 2)
	assert.True(t, testUtils.IntsWithin(peaks, []int{300, 700}, 2), "got %v", peaks)
}

func TestFindPeaksWithBackgroundRemoval(t *testing.T) {
	samples := testUtils.DoublePulse(1024, 200, 300, 150, 700, 5)
	for i := range samples {
		samples[i] += 0.05 * float64(i)
	}
	params := defaultSearch()
	params.BackgroundRemoval = true

	peaks := FindPeaks(samples, 0, 1, params)
	require.Len(t, peaks, 2)
	assert.True(t, testUtils.IntsWithin(peaks, []int{300, 700}, 2), "got %v", peaks)
}

func TestMergeCandidatesKeepsHighest(t *testing.T) {
	source := make([]float64, 100)
	source[10] = 5
	source[12] = 8
	source[40] = 3

	assert.Equal(t, []int{12, 40}, mergeCandidates([]int{40, 12, 10}, source, 10))
	assert.Equal(t, []int{10, 12, 40}, mergeCandidates([]int{10, 12, 40}, source, 1))
	assert.Nil(t, mergeCandidates(nil, source, 10))
}

func TestMinSeparationDefaultsToTwoSigma(t *testing.T) {
	assert.Equal(t, 10, PeakSearchParameters{Sigma: 5}.minSeparation())
	assert.Equal(t, 3, PeakSearchParameters{Sigma: 5, MinSeparation: 3}.minSeparation())
}

func TestClassifyPeaks(t *testing.T) {
	tb := NewUniformTimeBase(0, 1024, 0.5)

	result := ClassifyPeaks([]int{100, 300, 700}, tb, [2]float64{100, 200})
	assert.Equal(t, 1, result.NBefore)
	assert.Equal(t, 1, result.NInside)
	assert.Equal(t, 1, result.NAfter)
	assert.Equal(t, 3, result.NTotal)
	assert.Equal(t, []float64{50, 150, 350}, result.Times)

	// without a region of interest every peak is inside
	result = ClassifyPeaks([]int{100, 300}, tb, [2]float64{})
	assert.Equal(t, 2, result.NInside)
	assert.Equal(t, 0, result.NBefore+result.NAfter)

	result = ClassifyPeaks(nil, tb, [2]float64{100, 200})
	assert.Equal(t, 0, result.NTotal)
}

func TestGaussianResponseIsNormalized(t *testing.T) {
	kernel := gaussianResponse(2.5)
	require.Len(t, kernel, 2*8+1)
	assert.InDelta(t, 1, floats.Sum(kernel), 1e-12)
	for i := range kernel {
		assert.InDelta(t, kernel[i], kernel[len(kernel)-1-i], 1e-15)
	}
	assert.Equal(t, 8, floats.MaxIdx(kernel))
}

func TestGoldDeconvolutionSharpensPeak(t *testing.T) {
	kernel := gaussianResponse(4)
	spike := make([]float64, 256)
	spike[128] = 100
	blurred := convolve(spike, kernel)

	decon := goldDeconvolution(blurred, kernel, 200)
	assert.Equal(t, 128, floats.MaxIdx(decon))
	assert.Greater(t, floats.Max(decon), 1.5*floats.Max(blurred))
	for _, v := range decon {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestSnipBackgroundFollowsLinearBaseline(t *testing.T) {
	samples := testUtils.GaussianPulse(512, 0, 100, 256, 3)
	for i := range samples {
		samples[i] += 0.1 * float64(i)
	}
	background := snipBackground(samples, 16)

	assert.InDelta(t, 25.6, background[256], 1)
	assert.InDelta(t, 10, background[100], 1e-9)
}

func TestMarkovSmoothKeepsArea(t *testing.T) {
	samples := testUtils.GaussianPulse(256, 0, 50, 128, 6)

	smoothed := markovSmooth(samples, 3)
	require.Len(t, smoothed, len(samples))
	assert.InEpsilon(t, floats.Sum(samples), floats.Sum(smoothed), 1e-9)
	for _, v := range smoothed {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}
