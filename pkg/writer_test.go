package drs4

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenEvent(t *testing.T) {
	nan := math.NaN()
	features := &EventFeatures{
		EventNumber: 12,
		IsPulser:    true,
		Channels: []ChannelFeatures{
			{
				Channel:      0,
				Valid:        true,
				PeakPosition: 512,
				PeakFitted:   true,
				FitPeakTime:  256.1,
				RiseTime:     nan,
				Integrals: []IntegralResult{
					{Name: "signal_a", Region: "signal", TimeIntegral: 120, LowBin: 508, HighBin: 520, Valid: true},
					{Name: "pedestal", TimeIntegral: nan, Degenerate: true},
				},
				Bucket:   BucketResult{PedBucket: true},
				Spectrum: &SpectrumSummary{MaxFrequency: 0.125, Modes: [SpectrumModes]float64{3, 0, 0.5}},
			},
			{
				Channel: 2,
				Valid:   true,
				Peaks: &PeakSearchResult{
					Positions: []int{300, 700},
					Times:     []float64{150, 350},
					NInside:   1,
					NAfter:    1,
					NTotal:    2,
				},
			},
			{Channel: 3, Valid: false},
		},
	}

	channels, integrals, peaks, spectra := flattenEvent(features)
	require.Len(t, channels, 3)
	assert.Equal(t, int32(12), channels[0].evt_number)
	assert.Equal(t, int8(1), channels[0].valid)
	assert.Equal(t, int8(1), channels[0].fitted)
	assert.Equal(t, int8(1), channels[0].ped_bucket)
	assert.Equal(t, int8(0), channels[0].bucket)
	assert.Equal(t, int32(512), channels[0].peak_position)
	assert.True(t, math.IsNaN(channels[0].rise_time))
	assert.Equal(t, int32(2), channels[1].n_peaks)
	assert.Equal(t, int32(1), channels[1].n_peaks_after)
	assert.Equal(t, int8(0), channels[2].valid)

	require.Len(t, integrals, 2)
	assert.Equal(t, convertToHdf5String("signal_a"), integrals[0].name)
	assert.Equal(t, 120.0, integrals[0].time_integral)
	assert.Equal(t, int32(508), integrals[0].low_bin)
	assert.Equal(t, int32(520), integrals[0].high_bin)
	assert.Equal(t, int8(1), integrals[0].valid)
	assert.Equal(t, int8(0), integrals[1].valid)
	assert.Equal(t, int8(1), integrals[1].degenerate)

	require.Len(t, peaks, 2)
	assert.Equal(t, PeakHDF5{evt_number: 12, channel: 2, position: 700, time: 350}, peaks[1])

	require.Len(t, spectra, 1)
	assert.Equal(t, int32(0), spectra[0].channel)
	assert.Equal(t, 3.0, spectra[0].mode0)
	assert.Equal(t, 0.5, spectra[0].mode2)
	assert.Equal(t, 0.125, spectra[0].max_freq)
}

func TestWaveformBlock(t *testing.T) {
	features := &EventFeatures{
		Channels: []ChannelFeatures{
			{Channel: 0, Waveform: []float64{1, 2, 3, 4}},
			{Channel: 1},
			{Channel: 4, Waveform: []float64{5, 6, 7, 8, 9}},
		},
	}

	block := waveformBlock(features, []uint16{0, 4, 7}, 4)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0}, block)
}

func TestConvertToHdf5String(t *testing.T) {
	s := convertToHdf5String("diamond")
	assert.Equal(t, "diamond", string(s[:7]))
	assert.Equal(t, byte(0), s[7])

	long := convertToHdf5String("a_sensor_name_that_does_not_fit_in_the_table")
	assert.Equal(t, byte('a'), long[0])
	assert.Len(t, long, STRLEN)
}
