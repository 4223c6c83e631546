package drs4

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultNoiseCapacity = 1000
	defaultNoiseWarmup   = 10
	noiseRejectionSigma  = 6
)

// NoiseEstimator keeps a bounded history of the raw value at the pedestal
// sample of one channel. Values far outside the current estimate are
// rejected once the history is warmed up, so pulses landing on the pedestal
// sample do not pull the baseline.
type NoiseEstimator struct {
	Channel  uint16
	capacity int
	warmup   int
	history  []float64
	next     int
	mean     float64
	sigma    float64
}

func NewNoiseEstimator(channel uint16, capacity, warmup int) *NoiseEstimator {
	if capacity <= 0 {
		capacity = defaultNoiseCapacity
	}
	if warmup < 0 {
		warmup = defaultNoiseWarmup
	}
	return &NoiseEstimator{
		Channel:  channel,
		capacity: capacity,
		warmup:   warmup,
		history:  make([]float64, 0, capacity),
	}
}

// Accepts reports whether v would enter the history.
func (n *NoiseEstimator) Accepts(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if len(n.history) < n.warmup {
		return true
	}
	return math.Abs(v) < noiseRejectionSigma*n.sigma+math.Abs(n.mean)
}

// Update pushes v into the history if it passes the outlier filter and
// recomputes mean and sigma. The oldest entry is evicted when full.
func (n *NoiseEstimator) Update(v float64) bool {
	if !n.Accepts(v) {
		return false
	}
	if len(n.history) < n.capacity {
		n.history = append(n.history, v)
	} else {
		n.history[n.next] = v
	}
	n.next = (n.next + 1) % n.capacity
	n.recompute()
	return true
}

func (n *NoiseEstimator) recompute() {
	switch len(n.history) {
	case 0:
		n.mean, n.sigma = 0, 0
	case 1:
		n.mean, n.sigma = n.history[0], 0
	default:
		n.mean, n.sigma = stat.MeanStdDev(n.history, nil)
	}
}

func (n *NoiseEstimator) Mean() float64 {
	return n.mean
}

func (n *NoiseEstimator) Sigma() float64 {
	return n.sigma
}

func (n *NoiseEstimator) Len() int {
	return len(n.history)
}

func (n *NoiseEstimator) Capacity() int {
	return n.capacity
}

// Threshold is the significance cut polarity*mean + nSigma*sigma.
func (n *NoiseEstimator) Threshold(polarity int, nSigma float64) float64 {
	return float64(polarity)*n.mean + nSigma*n.sigma
}
