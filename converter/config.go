package main

import (
	"fmt"

	"github.com/diamondIPP/eudaq-drs4-sub000/logging"
	drs4 "github.com/diamondIPP/eudaq-drs4-sub000/pkg"
)

func printConfiguration(config drs4.Configuration, logger logging.Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Samples: %d, pedestal index: %d", config.NSamples, config.PedestalIndex), "config")
	logger.Info(fmt.Sprintf("Active regions: %#x, waveforms: %#x, peak search: %#x, fft: %#x",
		config.ActiveRegions, config.SaveWaveforms, config.SpectrumWaveforms, config.FFTWaveforms), "config")
	logger.Info(fmt.Sprintf("Regions: %v", config.Regions), "config")
	logger.Info(fmt.Sprintf("Ranges: %v", config.Ranges), "config")
	logger.Info(fmt.Sprintf("Pulser channel: %d, region: %v, threshold: %.1f", config.PulserChannel, config.PulserRegion, config.PulserThreshold), "config")
	logger.Info(fmt.Sprintf("Bunch spacing: %.2f ns", config.BunchSpacing), "config")
	logger.Info(fmt.Sprintf("Peak fitter: %s", config.PeakFitter), "config")
}
