package drs4

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// significance of the global maximum needed before searching for peaks
const peakSearchSigma = 4

// PeakSearchParameters tunes the multi peak search.
type PeakSearchParameters struct {
	// Sigma is the expected peak width in samples. It sets the deconvolution
	// response and the background clipping window.
	Sigma float64
	// ThresholdPercent rejects candidates lower than this percentage of the
	// highest one.
	ThresholdPercent  float64
	DeconIterations   int
	AverageWindow     int
	Markov            bool
	BackgroundRemoval bool
	// MinSeparation merges candidates closer than this many samples.
	// Zero means twice Sigma.
	MinSeparation int
}

func (p PeakSearchParameters) minSeparation() int {
	if p.MinSeparation > 0 {
		return p.MinSeparation
	}
	return int(math.Ceil(2 * p.Sigma))
}

// PeakSearchResult lists the peaks found in one waveform together with
// their calibrated times and their position relative to the region of
// interest.
type PeakSearchResult struct {
	Positions []int
	Times     []float64
	NBefore   int
	NInside   int
	NAfter    int
	NTotal    int
}

// FindPeaks searches signed (samples already multiplied by the polarity) for
// all significant peaks. baseline and sigma are the polarity corrected noise
// mean and spread. Nothing is searched when the global maximum is less than
// 4 sigma above the baseline. The returned indices are sorted.
func FindPeaks(signed []float64, baseline, sigma float64, params PeakSearchParameters) []int {
	n := len(signed)
	if n < 3 || !(params.Sigma > 0) {
		return nil
	}
	if floats.Max(signed) < baseline+peakSearchSigma*sigma {
		return nil
	}

	clipped := make([]float64, n)
	for i, v := range signed {
		clipped[i] = math.Max(v-baseline, 0)
	}
	if params.BackgroundRemoval {
		background := snipBackground(clipped, int(math.Ceil(4*params.Sigma)))
		for i := range clipped {
			clipped[i] = math.Max(clipped[i]-background[i], 0)
		}
	}
	clippedMax := floats.Max(clipped)
	if !(clippedMax > 0) {
		return nil
	}

	source := clipped
	if params.Markov && params.AverageWindow > 0 {
		source = markovSmooth(clipped, params.AverageWindow)
	}
	iterations := params.DeconIterations
	if iterations < 1 {
		iterations = 1
	}
	decon := goldDeconvolution(source, gaussianResponse(params.Sigma), iterations)
	deconMax := floats.Max(decon)
	if !(deconMax > 0) {
		return nil
	}

	// candidates are deconvolution maxima, moved to the highest sample
	// nearby and kept when that sample is significant
	deconCut := params.ThresholdPercent / 100 * deconMax
	amplitudeCut := math.Max(params.ThresholdPercent/100*clippedMax, peakSearchSigma*sigma)
	reach := int(math.Ceil(params.Sigma))
	candidates := make([]int, 0)
	for i := 1; i < n-1; i++ {
		if decon[i] <= deconCut || decon[i] <= decon[i-1] || decon[i] < decon[i+1] {
			continue
		}
		best := PeakIndex(clipped, i-reach, i+reach, 1)
		if clipped[best] < amplitudeCut || clipped[best] == 0 {
			continue
		}
		candidates = append(candidates, best)
	}
	return mergeCandidates(candidates, clipped, params.minSeparation())
}

// mergeCandidates keeps the highest of any candidates closer than separation.
func mergeCandidates(candidates []int, source []float64, separation int) []int {
	if len(candidates) == 0 {
		return nil
	}
	sort.Ints(candidates)
	merged := []int{candidates[0]}
	for _, c := range candidates[1:] {
		last := merged[len(merged)-1]
		if c-last < separation {
			if source[c] > source[last] {
				merged[len(merged)-1] = c
			}
			continue
		}
		merged = append(merged, c)
	}
	return merged
}

// ClassifyPeaks converts peak indices to times and counts them against the
// region of interest [roi[0], roi[1]]. An empty ROI counts everything inside.
func ClassifyPeaks(positions []int, tb *TimeBase, roi [2]float64) PeakSearchResult {
	result := PeakSearchResult{
		Positions: positions,
		Times:     make([]float64, len(positions)),
		NTotal:    len(positions),
	}
	useROI := roi[1] > roi[0]
	for i, p := range positions {
		t := tb.At(p)
		result.Times[i] = t
		switch {
		case useROI && t < roi[0]:
			result.NBefore++
		case useROI && t > roi[1]:
			result.NAfter++
		default:
			result.NInside++
		}
	}
	return result
}

// gaussianResponse is a unit area Gaussian kernel sampled over +-3 sigma.
func gaussianResponse(sigma float64) []float64 {
	half := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*half+1)
	for k := -half; k <= half; k++ {
		d := float64(k) / sigma
		kernel[k+half] = math.Exp(-0.5 * d * d)
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// convolve applies the centred symmetric kernel with zero padding.
func convolve(x, kernel []float64) []float64 {
	n := len(x)
	half := len(kernel) / 2
	out := make([]float64, n)
	for i := range out {
		var sum float64
		for k := -half; k <= half; k++ {
			j := i - k
			if j < 0 || j >= n {
				continue
			}
			sum += kernel[k+half] * x[j]
		}
		out[i] = sum
	}
	return out
}

// goldDeconvolution runs the Gold ratio iteration
// x <- x * (H^T y) / (H^T H x) for a symmetric response H.
func goldDeconvolution(y, kernel []float64, iterations int) []float64 {
	x := make([]float64, len(y))
	copy(x, y)
	numerator := convolve(y, kernel)
	for it := 0; it < iterations; it++ {
		denominator := convolve(convolve(x, kernel), kernel)
		for i := range x {
			if denominator[i] > 1e-12 {
				x[i] *= numerator[i] / denominator[i]
			} else {
				x[i] = 0
			}
		}
	}
	return x
}

// snipBackground estimates a slowly varying background with the SNIP
// clipping algorithm over windows growing up to width samples.
func snipBackground(source []float64, width int) []float64 {
	n := len(source)
	background := make([]float64, n)
	copy(background, source)
	work := make([]float64, n)
	for p := 1; p <= width; p++ {
		copy(work, background)
		for i := p; i < n-p; i++ {
			average := (background[i-p] + background[i+p]) / 2
			work[i] = math.Min(background[i], average)
		}
		copy(background, work)
	}
	return background
}

// markovSmooth replaces the spectrum by the stationary distribution of a
// Markov chain whose transition probabilities follow the local slope over
// window neighbours, scaled back to the original area.
func markovSmooth(source []float64, window int) []float64 {
	n := len(source)
	maxValue := floats.Max(source)
	area := floats.Sum(source)
	if !(maxValue > 0) || n < 2 {
		return source
	}
	chain := make([]float64, n)
	chain[0] = 1
	norm := 1.0
	last := n - 1
	for i := 0; i < last; i++ {
		here := source[i] / maxValue
		next := source[i+1] / maxValue
		var up, down float64
		for l := 1; l <= window; l++ {
			a := source[min(i+l, last)] / maxValue
			up += markovStep(a, here)
			b := source[max(i-l+1, 0)] / maxValue
			down += markovStep(b, next)
		}
		chain[i+1] = chain[i] * up / down
		norm += chain[i+1]
	}
	smoothed := make([]float64, n)
	for i := range chain {
		smoothed[i] = chain[i] / norm * area
	}
	return smoothed
}

func markovStep(neighbour, centre float64) float64 {
	scale := 1.0
	if neighbour+centre > 0 {
		scale = math.Sqrt(neighbour + centre)
	}
	return math.Exp((neighbour - centre) / scale)
}
