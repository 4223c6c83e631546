package drs4

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n, bin int, amplitude, offset float64) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = offset + amplitude*math.Sin(2*math.Pi*float64(bin*i)/float64(n))
	}
	return samples
}

func TestAnalyzeFindsSineFrequency(t *testing.T) {
	analyzer := NewFrequencyAnalyzer(1024)

	summary, err := analyzer.Analyze(2, sine(1024, 64, 10, 0), 2)
	require.NoError(t, err)
	// 64 cycles in 1024 samples at 2 samples/ns
	assert.InDelta(t, 0.125, summary.MaxFrequency, 1e-12)
	assert.InDelta(t, 5, summary.MaxMagnitude, 1e-9)
	assert.InDelta(t, 0.125, summary.MeanFrequency, 1e-6)
	assert.InDelta(t, 0, summary.MinMagnitude, 1e-9)
	assert.InDelta(t, 5.0/512, summary.MeanMagnitude, 1e-9)
	assert.InDelta(t, 0, summary.Modes[0], 1e-9)
}

func TestAnalyzeKeepsDCAsFirstMode(t *testing.T) {
	analyzer := NewFrequencyAnalyzer(256)

	summary, err := analyzer.Analyze(0, sine(256, 2, 1, 3), 5)
	require.NoError(t, err)
	assert.InDelta(t, 3, summary.Modes[0], 1e-9)
	assert.InDelta(t, 0.5, summary.Modes[2], 1e-9)
	assert.InDelta(t, 0, summary.Modes[1], 1e-9)
	// the DC term is not the maximum
	assert.InDelta(t, 0.5, summary.MaxMagnitude, 1e-9)
	assert.InDelta(t, 2.0/256*5, summary.MaxFrequency, 1e-12)
}

func TestAnalyzeReusesBuffers(t *testing.T) {
	analyzer := NewFrequencyAnalyzer(128)

	first, err := analyzer.Analyze(0, sine(128, 8, 1, 0), 1)
	require.NoError(t, err)
	_, err = analyzer.Analyze(0, sine(128, 20, 4, 1), 1)
	require.NoError(t, err)
	again, err := analyzer.Analyze(0, sine(128, 8, 1, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	analyzer := NewFrequencyAnalyzer(64)

	_, err := analyzer.Analyze(4, make([]float64, 32), 2)
	var dataErr *DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, uint16(4), dataErr.Channel)

	_, err = analyzer.Analyze(4, make([]float64, 64), 0)
	var numErr *NumericalError
	assert.True(t, errors.As(err, &numErr))
}
