package drs4

import (
	"errors"
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// HDF5Writer stores the features of a run in one HDF5 file:
//
//	/Run/events, /Run/runInfo, /Run/sensors
//	/Features/channels, /Features/integrals, /Features/peaks, /Features/spectrum
//	/Waveforms/samples  [event, channel, sample]
type HDF5Writer struct {
	File           *hdf5.File
	Filename       string
	FirstEvt       bool
	RunGroup       *hdf5.Group
	FeaturesGroup  *hdf5.Group
	WaveformsGroup *hdf5.Group
	EventTable     *hdf5.Dataset
	RunInfoTable   *hdf5.Dataset
	SensorTable    *hdf5.Dataset
	ChannelTable   *hdf5.Dataset
	IntegralTable  *hdf5.Dataset
	PeakTable      *hdf5.Dataset
	SpectrumTable  *hdf5.Dataset
	Waveforms      *hdf5.Dataset
	EvtCounter     int

	compression      int
	nSamples         int
	sensors          []SensorHDF5
	waveformChannels []uint16
	channelRows      int
	integralRows     int
	peakRows         int
	spectrumRows     int
}

// NewHDF5Writer creates filename and the tables for the channels of rc.
func NewHDF5Writer(filename string, rc *RunContext) (*HDF5Writer, error) {
	config := rc.Config()
	w := &HDF5Writer{
		Filename:    filename,
		compression: config.CompressionLevel,
		nSamples:    config.NSamples,
	}
	for _, state := range rc.Channels() {
		w.sensors = append(w.sensors, SensorHDF5{
			channel:         int32(state.Channel),
			name:            convertToHdf5String(state.Name),
			polarity:        int32(state.Polarity),
			pulser_polarity: int32(state.PulserPolarity),
			sampling_rate:   state.SamplingRate,
		})
		if state.caps.waveform {
			w.waveformChannels = append(w.waveformChannels, state.Channel)
		}
	}

	logger.Info(fmt.Sprintf("Creating file: %s", filename), "hdf5writer")
	var err error
	if w.File, err = openFile(filename); err != nil {
		return nil, err
	}
	if err := w.createLayout(); err != nil {
		return nil, errors.Join(err, w.Close())
	}
	return w, nil
}

func (w *HDF5Writer) createLayout() error {
	var err error
	if w.RunGroup, err = createGroup(w.File, "Run"); err != nil {
		return err
	}
	if w.FeaturesGroup, err = createGroup(w.File, "Features"); err != nil {
		return err
	}
	if w.EventTable, err = createTable(w.RunGroup, "events", EventDataHDF5{}, w.compression); err != nil {
		return err
	}
	if w.RunInfoTable, err = createTable(w.RunGroup, "runInfo", RunInfoHDF5{}, w.compression); err != nil {
		return err
	}
	if w.SensorTable, err = createTable(w.RunGroup, "sensors", SensorHDF5{}, w.compression); err != nil {
		return err
	}
	if w.ChannelTable, err = createTable(w.FeaturesGroup, "channels", ChannelFeaturesHDF5{}, w.compression); err != nil {
		return err
	}
	if w.IntegralTable, err = createTable(w.FeaturesGroup, "integrals", IntegralHDF5{}, w.compression); err != nil {
		return err
	}
	if w.PeakTable, err = createTable(w.FeaturesGroup, "peaks", PeakHDF5{}, w.compression); err != nil {
		return err
	}
	if w.SpectrumTable, err = createTable(w.FeaturesGroup, "spectrum", SpectrumHDF5{}, w.compression); err != nil {
		return err
	}
	if len(w.waveformChannels) > 0 {
		if w.WaveformsGroup, err = createGroup(w.File, "Waveforms"); err != nil {
			return err
		}
		if w.Waveforms, err = create3dArray(w.WaveformsGroup, "samples", len(w.waveformChannels), w.nSamples, w.compression); err != nil {
			return err
		}
	}
	return nil
}

// Consume appends one event to every table.
func (w *HDF5Writer) Consume(features *EventFeatures) error {
	if !w.FirstEvt {
		if err := writeEntryToTable(w.RunInfoTable, RunInfoHDF5{run_number: int32(features.RunNumber)}, 0); err != nil {
			return fmt.Errorf("error writing run info: %w", err)
		}
		if err := writeArrayToTable(w.SensorTable, &w.sensors, 0); err != nil {
			return fmt.Errorf("error writing sensors: %w", err)
		}
		w.FirstEvt = true
	}

	event := EventDataHDF5{
		evt_number:   int32(features.EventNumber),
		timestamp:    uint64(features.Timestamp.UnixMilli()),
		trigger_cell: int32(features.TriggerCell),
		is_pulser:    boolToInt8(features.IsPulser),
	}
	if err := writeEntryToTable(w.EventTable, event, w.EvtCounter); err != nil {
		return fmt.Errorf("error writing event %d: %w", features.EventNumber, err)
	}

	channels, integrals, peaks, spectra := flattenEvent(features)
	if err := writeArrayToTable(w.ChannelTable, &channels, w.channelRows); err != nil {
		return fmt.Errorf("error writing channels of event %d: %w", features.EventNumber, err)
	}
	w.channelRows += len(channels)
	if err := writeArrayToTable(w.IntegralTable, &integrals, w.integralRows); err != nil {
		return fmt.Errorf("error writing integrals of event %d: %w", features.EventNumber, err)
	}
	w.integralRows += len(integrals)
	if err := writeArrayToTable(w.PeakTable, &peaks, w.peakRows); err != nil {
		return fmt.Errorf("error writing peaks of event %d: %w", features.EventNumber, err)
	}
	w.peakRows += len(peaks)
	if err := writeArrayToTable(w.SpectrumTable, &spectra, w.spectrumRows); err != nil {
		return fmt.Errorf("error writing spectra of event %d: %w", features.EventNumber, err)
	}
	w.spectrumRows += len(spectra)

	if w.Waveforms != nil {
		data := waveformBlock(features, w.waveformChannels, w.nSamples)
		if err := write3dArray(w.Waveforms, &data, w.EvtCounter, len(w.waveformChannels), w.nSamples); err != nil {
			return fmt.Errorf("error writing waveforms of event %d: %w", features.EventNumber, err)
		}
	}

	w.EvtCounter++
	return nil
}

// flattenEvent converts the features of one event to table rows.
func flattenEvent(features *EventFeatures) ([]ChannelFeaturesHDF5, []IntegralHDF5, []PeakHDF5, []SpectrumHDF5) {
	evt := int32(features.EventNumber)
	channels := make([]ChannelFeaturesHDF5, 0, len(features.Channels))
	integrals := make([]IntegralHDF5, 0)
	peaks := make([]PeakHDF5, 0)
	spectra := make([]SpectrumHDF5, 0)

	for i := range features.Channels {
		f := &features.Channels[i]
		ch := int32(f.Channel)
		row := ChannelFeaturesHDF5{
			evt_number:     evt,
			channel:        ch,
			valid:          boolToInt8(f.Valid),
			saturated:      boolToInt8(f.IsSaturated),
			median:         f.Median,
			average:        f.Average,
			noise_mean:     f.NoiseMean,
			noise_sigma:    f.NoiseSigma,
			peak_position:  int32(f.PeakPosition),
			peak_value:     f.PeakValue,
			peak_time:      f.PeakTime,
			fitted:         boolToInt8(f.PeakFitted),
			fit_peak_time:  f.FitPeakTime,
			fit_peak_value: f.FitPeakValue,
			rise_time:      f.RiseTime,
			fall_time:      f.FallTime,
			start_time:     f.StartTime,
			peaking_time:   f.PeakingTime,
			cfd_time:       f.CFDTime,
			bucket:         boolToInt8(f.Bucket.Bucket),
			ped_bucket:     boolToInt8(f.Bucket.PedBucket),
		}
		if f.Peaks != nil {
			row.n_peaks_before = int32(f.Peaks.NBefore)
			row.n_peaks_inside = int32(f.Peaks.NInside)
			row.n_peaks_after = int32(f.Peaks.NAfter)
			row.n_peaks = int32(f.Peaks.NTotal)
			for j, pos := range f.Peaks.Positions {
				peaks = append(peaks, PeakHDF5{evt_number: evt, channel: ch, position: int32(pos), time: f.Peaks.Times[j]})
			}
		}
		channels = append(channels, row)

		for _, in := range f.Integrals {
			integrals = append(integrals, IntegralHDF5{
				evt_number:    evt,
				channel:       ch,
				name:          convertToHdf5String(in.Name),
				value:         in.Value,
				time_integral: in.TimeIntegral,
				peak_time:     in.PeakTime,
				length:        in.Length,
				low_bin:       int32(in.LowBin),
				high_bin:      int32(in.HighBin),
				valid:         boolToInt8(in.Valid),
				degenerate:    boolToInt8(in.Degenerate),
			})
		}

		if s := f.Spectrum; s != nil {
			spectra = append(spectra, SpectrumHDF5{
				evt_number: evt,
				channel:    ch,
				mean_mag:   s.MeanMagnitude,
				mean_freq:  s.MeanFrequency,
				min_mag:    s.MinMagnitude,
				min_freq:   s.MinFrequency,
				max_mag:    s.MaxMagnitude,
				max_freq:   s.MaxFrequency,
				mode0:      s.Modes[0],
				mode1:      s.Modes[1],
				mode2:      s.Modes[2],
				mode3:      s.Modes[3],
				mode4:      s.Modes[4],
			})
		}
	}
	return channels, integrals, peaks, spectra
}

// waveformBlock lays out the saved waveforms of one event channel by
// channel. Channels without samples are left as zeros.
func waveformBlock(features *EventFeatures, channels []uint16, nSamples int) []float32 {
	data := make([]float32, len(channels)*nSamples)
	for i, channel := range channels {
		f, ok := features.Channel(channel)
		if !ok {
			continue
		}
		for j, v := range f.Waveform {
			if j >= nSamples {
				break
			}
			data[i*nSamples+j] = float32(v)
		}
	}
	return data
}

func (w *HDF5Writer) Close() error {
	logger.Info(fmt.Sprintf("Closing file %s", w.Filename), "hdf5writer")
	var errs []error

	datasets := []struct {
		name string
		dset *hdf5.Dataset
	}{
		{"event table", w.EventTable},
		{"run info table", w.RunInfoTable},
		{"sensor table", w.SensorTable},
		{"channel table", w.ChannelTable},
		{"integral table", w.IntegralTable},
		{"peak table", w.PeakTable},
		{"spectrum table", w.SpectrumTable},
		{"waveforms", w.Waveforms},
	}
	for _, d := range datasets {
		if d.dset == nil {
			continue
		}
		if err := d.dset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", d.name, err))
		}
	}

	groups := []struct {
		name  string
		group *hdf5.Group
	}{
		{"run group", w.RunGroup},
		{"features group", w.FeaturesGroup},
		{"waveforms group", w.WaveformsGroup},
	}
	for _, g := range groups {
		if g.group == nil {
			continue
		}
		if err := g.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", g.name, err))
		}
	}

	if w.File != nil {
		if err := w.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
