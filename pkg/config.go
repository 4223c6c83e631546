package drs4

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Configuration struct {
	MaxEvents  int    `json:"max_events" yaml:"max_events"`
	Verbosity  int    `json:"verbosity" yaml:"verbosity"`
	FileIn     string `json:"file_in" yaml:"file_in"`
	FileOut    string `json:"file_out" yaml:"file_out"`
	Skip       int    `json:"skip" yaml:"skip"`
	NumWorkers int    `json:"num_workers" yaml:"num_workers"`
	RunNumber  int    `json:"run_number" yaml:"run_number"`
	WriteData  bool   `json:"write_data" yaml:"write_data"`

	CompressionLevel int `json:"compression_level" yaml:"compression_level"`

	NoDB   bool   `json:"no_db" yaml:"no_db"`
	Host   string `json:"host" yaml:"host"`
	User   string `json:"user" yaml:"user"`
	Passwd string `json:"pass" yaml:"pass"`
	DBName string `json:"dbname" yaml:"dbname"`

	NSamples        int     `json:"n_samples" yaml:"n_samples"`
	SamplingRate    float64 `json:"sampling_rate" yaml:"sampling_rate"`
	PedestalIndex   int     `json:"pedestal_index" yaml:"pedestal_index"`
	SaturationLevel float64 `json:"saturation_level" yaml:"saturation_level"`
	NoiseCapacity   int     `json:"noise_capacity" yaml:"noise_capacity"`
	NoiseWarmup     int     `json:"noise_warmup" yaml:"noise_warmup"`

	// Channel bitmasks, bit n enables channel n
	ActiveRegions     uint64 `json:"active_regions" yaml:"active_regions"`
	SaveWaveforms     uint64 `json:"save_waveforms" yaml:"save_waveforms"`
	SpectrumWaveforms uint64 `json:"spectrum_waveforms" yaml:"spectrum_waveforms"`
	FFTWaveforms      uint64 `json:"fft_waveforms" yaml:"fft_waveforms"`

	Polarities       []int    `json:"polarities" yaml:"polarities"`
	PulserPolarities []int    `json:"pulser_polarities" yaml:"pulser_polarities"`
	SensorNames      []string `json:"sensor_names" yaml:"sensor_names"`

	PulserChannel   int     `json:"pulser_channel" yaml:"pulser_channel"`
	PulserRegion    [2]int  `json:"pulser_region" yaml:"pulser_region"`
	PulserThreshold float64 `json:"pulser_threshold" yaml:"pulser_threshold"`

	PeakFindingROI            [2]float64 `json:"peak_finding_roi" yaml:"peak_finding_roi"`
	SpectrumSigma             float64    `json:"spectrum_sigma" yaml:"spectrum_sigma"`
	SpectrumThreshold         float64    `json:"spectrum_threshold" yaml:"spectrum_threshold"`
	SpectrumDeconIterations   int        `json:"spectrum_deconIterations" yaml:"spectrum_deconIterations"`
	SpectrumAverageWindow     int        `json:"spectrum_averageWindow" yaml:"spectrum_averageWindow"`
	SpectrumMarkov            bool       `json:"spectrum_markov" yaml:"spectrum_markov"`
	SpectrumBackgroundRemoval bool       `json:"spectrum_background_removal" yaml:"spectrum_background_removal"`
	SpectrumMinSeparation     int        `json:"spectrum_min_separation" yaml:"spectrum_min_separation"`

	// Signal regions as absolute sample windows and integral ranges as
	// offsets around the peak found in each region.
	Regions map[string][2]int `json:"regions" yaml:"regions"`
	Ranges  map[string][2]int `json:"ranges" yaml:"ranges"`
	// Integrals over fixed sample windows, evaluated on every channel with
	// active regions.
	AbsoluteRanges map[string][2]int `json:"absolute_ranges" yaml:"absolute_ranges"`

	BunchSpacing float64 `json:"bunch_spacing" yaml:"bunch_spacing"`
	BucketRegion string  `json:"bucket_region" yaml:"bucket_region"`
	BucketRange  string  `json:"bucket_range" yaml:"bucket_range"`

	ConstantFraction float64 `json:"constant_fraction" yaml:"constant_fraction"`
	FitWindow        int     `json:"fit_window" yaml:"fit_window"`
	PeakFitter       string  `json:"peak_fitter" yaml:"peak_fitter"`
}

// DefaultConfiguration returns the values used for every key missing in the
// configuration file.
func DefaultConfiguration() Configuration {
	var config Configuration

	config.MaxEvents = 1000000000
	config.Verbosity = 0
	config.Skip = 0
	config.NumWorkers = 4
	config.WriteData = true
	config.CompressionLevel = 4
	config.NoDB = true
	config.Host = "localhost"
	config.User = "drs4reader"
	config.Passwd = "readonly"
	config.DBName = "DRS4"

	config.NSamples = 1024
	config.SamplingRate = 0
	config.PedestalIndex = 20
	config.SaturationLevel = 498
	config.NoiseCapacity = 1000
	config.NoiseWarmup = 10

	config.ActiveRegions = 0x0F
	config.PulserChannel = -1
	config.PulserRegion = [2]int{800, 1000}
	config.PulserThreshold = 80

	config.SpectrumSigma = 5
	config.SpectrumThreshold = 10
	config.SpectrumDeconIterations = 3
	config.SpectrumAverageWindow = 3
	config.SpectrumMarkov = true
	config.SpectrumBackgroundRemoval = false

	config.BunchSpacing = 19.8
	config.ConstantFraction = 0.5
	config.FitWindow = 5
	config.PeakFitter = "gaussian"
	return config
}

// LoadConfiguration reads filename on top of DefaultConfiguration. Files
// ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("error parsing %s: %w", filename, err)
	}
	return config, nil
}

func (c Configuration) Polarity(channel int) int {
	return signAt(c.Polarities, channel)
}

func (c Configuration) PulserPolarity(channel int) int {
	return signAt(c.PulserPolarities, channel)
}

func (c Configuration) SensorName(channel int) string {
	if channel < len(c.SensorNames) {
		return c.SensorNames[channel]
	}
	return ""
}

// RegionNames returns the configured region names in a stable order.
func (c Configuration) RegionNames() []string {
	return sortedKeys(c.Regions)
}

func (c Configuration) AbsoluteRangeNames() []string {
	return sortedKeys(c.AbsoluteRanges)
}

// RangeNames returns the configured integral range names in a stable order.
func (c Configuration) RangeNames() []string {
	return sortedKeys(c.Ranges)
}

func signAt(values []int, channel int) int {
	if channel < 0 || channel >= len(values) || values[channel] >= 0 {
		return 1
	}
	return -1
}

func sortedKeys(m map[string][2]int) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxChannels is the number of channels the configuration bitmasks can address.
const MaxChannels = 64

func CheckBit(mask uint64, pos uint16) bool {
	if pos >= MaxChannels {
		return false
	}
	return (mask & (1 << pos)) != 0
}
