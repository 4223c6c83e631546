package drs4

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBit(t *testing.T) {
	assert.True(t, CheckBit(0x5, 0))
	assert.False(t, CheckBit(0x5, 1))
	assert.True(t, CheckBit(0x5, 2))
	assert.True(t, CheckBit(0x8000, 15))
	assert.True(t, CheckBit(1<<40, 40))
	assert.True(t, CheckBit(1<<63, 63))
	assert.False(t, CheckBit(^uint64(0), 64))
}

func TestPolarityDefaults(t *testing.T) {
	config := Configuration{Polarities: []int{-1, 0, 1}}
	assert.Equal(t, -1, config.Polarity(0))
	assert.Equal(t, 1, config.Polarity(1))
	assert.Equal(t, 1, config.Polarity(7))
	assert.Equal(t, 1, config.PulserPolarity(0))
}

func TestNamesAreSorted(t *testing.T) {
	config := Configuration{
		Regions:        map[string][2]int{"signal_b": {0, 1}, "pulser": {0, 1}, "signal_a": {0, 1}},
		Ranges:         map[string][2]int{"b": {1, 2}, "a": {1, 2}},
		AbsoluteRanges: map[string][2]int{"ped": {0, 1}},
	}
	assert.Equal(t, []string{"pulser", "signal_a", "signal_b"}, config.RegionNames())
	assert.Equal(t, []string{"a", "b"}, config.RangeNames())
	assert.Equal(t, []string{"ped"}, config.AbsoluteRangeNames())
	assert.Empty(t, Configuration{}.RegionNames())
}

func TestMedianAndMean(t *testing.T) {
	assert.Equal(t, 2.0, median([]int{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(median([]float64{})))
	assert.Equal(t, 2.5, mean([]int{1, 2, 3, 4}))
	assert.Equal(t, 3, clamp(7, 0, 3))
	assert.Equal(t, 2.5, abs(-2.5))
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigurationJSON(t *testing.T) {
	path := writeConfigFile(t, "run.json", `{
		"file_in": "run_00042.dat",
		"num_workers": 8,
		"polarities": [1, -1],
		"regions": {"signal_b": [420, 470]},
		"ranges": {"a": [4, 8]},
		"absolute_ranges": {"pedestal": [0, 100]},
		"spectrum_markov": false
	}`)

	config, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "run_00042.dat", config.FileIn)
	assert.Equal(t, 8, config.NumWorkers)
	assert.Equal(t, -1, config.Polarity(1))
	assert.Equal(t, [2]int{420, 470}, config.Regions["signal_b"])
	assert.Equal(t, [2]int{0, 100}, config.AbsoluteRanges["pedestal"])
	assert.False(t, config.SpectrumMarkov)
	// defaults survive
	assert.Equal(t, 1024, config.NSamples)
	assert.Equal(t, -1, config.PulserChannel)
	assert.Equal(t, 4, config.CompressionLevel)
	assert.True(t, config.WriteData)
}

func TestLoadConfigurationYAML(t *testing.T) {
	path := writeConfigFile(t, "run.yaml", `
file_out: features.h5
pulser_channel: 3
pulser_region: [800, 1000]
bunch_spacing: 19.75
regions:
  signal: [490, 530]
spectrum_deconIterations: 10
write_data: false
active_regions: 0x100000
`)

	config, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "features.h5", config.FileOut)
	assert.Equal(t, 3, config.PulserChannel)
	assert.Equal(t, [2]int{800, 1000}, config.PulserRegion)
	assert.Equal(t, 19.75, config.BunchSpacing)
	assert.Equal(t, [2]int{490, 530}, config.Regions["signal"])
	assert.Equal(t, 10, config.SpectrumDeconIterations)
	assert.Equal(t, 0.5, config.ConstantFraction)
	assert.False(t, config.WriteData)
	assert.True(t, CheckBit(config.ActiveRegions, 20))
}

func TestLoadConfigurationErrors(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeConfigFile(t, "broken.json", `{"num_workers": "many"}`)
	_, err = LoadConfiguration(path)
	assert.Error(t, err)
}
