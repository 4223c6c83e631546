package drs4

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// capabilities are the optional analyses enabled for a channel. They are
// decided once from the configuration bitmasks.
type capabilities struct {
	regions  bool
	waveform bool
	spectrum bool
	fft      bool
}

// ChannelState is everything the engine keeps for one channel during a run.
// Only the worker processing the channel touches it within an event.
type ChannelState struct {
	Channel        uint16
	Name           string
	Polarity       int
	PulserPolarity int

	Calibration  *CalibrationTable
	Noise        *NoiseEstimator
	Regions      []*SignalRegion
	Absolute     []*Integral
	SamplingRate float64

	primary        *SignalRegion
	bucketIntegral *Integral
	fitter         PeakFitter
	analyzer       *FrequencyAnalyzer
	caps           capabilities
}

func (s *ChannelState) Region(name string) (*SignalRegion, bool) {
	for _, r := range s.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// RunContext owns the per channel state of one run. Events must be fed in
// non decreasing event number order.
type RunContext struct {
	config   Configuration
	channels []*ChannelState
	byID     map[uint16]*ChannelState
	search   PeakSearchParameters
	metrics  *Metrics

	started   bool
	lastEvent uint32
}

type RunOption func(*RunContext)

// WithMetrics records the run counters in m.
func WithMetrics(m *Metrics) RunOption {
	return func(rc *RunContext) {
		rc.metrics = m
	}
}

// NewRunContext validates config against the calibration tables and builds
// the state of every calibrated channel. Any problem is returned as a
// ConfigurationError and the run must not start.
func NewRunContext(config Configuration, calibrations map[uint16][]float64, opts ...RunOption) (*RunContext, error) {
	if len(calibrations) == 0 {
		return nil, &ConfigurationError{Channel: -1, Key: "calibration", Reason: "no calibration tables"}
	}
	if err := validateGlobal(config); err != nil {
		return nil, err
	}

	rc := &RunContext{
		config: config,
		byID:   make(map[uint16]*ChannelState, len(calibrations)),
		search: PeakSearchParameters{
			Sigma:             config.SpectrumSigma,
			ThresholdPercent:  config.SpectrumThreshold,
			DeconIterations:   config.SpectrumDeconIterations,
			AverageWindow:     config.SpectrumAverageWindow,
			Markov:            config.SpectrumMarkov,
			BackgroundRemoval: config.SpectrumBackgroundRemoval,
			MinSeparation:     config.SpectrumMinSeparation,
		},
	}
	for _, opt := range opts {
		opt(rc)
	}

	ids := make([]int, 0, len(calibrations))
	for id := range calibrations {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		state, err := newChannelState(config, uint16(id), calibrations[uint16(id)])
		if err != nil {
			return nil, err
		}
		rc.channels = append(rc.channels, state)
		rc.byID[state.Channel] = state
	}

	if config.PulserChannel >= 0 {
		if _, ok := rc.byID[uint16(config.PulserChannel)]; !ok {
			return nil, &ConfigurationError{Channel: config.PulserChannel, Key: "pulser_channel", Reason: "channel has no calibration"}
		}
	}
	return rc, nil
}

func validateGlobal(config Configuration) error {
	n := config.NSamples
	if n <= 0 {
		return &ConfigurationError{Channel: -1, Key: "n_samples", Reason: "must be positive"}
	}
	if config.NumWorkers < 0 {
		return &ConfigurationError{Channel: -1, Key: "num_workers", Reason: "must not be negative"}
	}
	if config.PedestalIndex < 0 || config.PedestalIndex >= n {
		return &ConfigurationError{Channel: -1, Key: "pedestal_index", Reason: fmt.Sprintf("%d outside [0, %d)", config.PedestalIndex, n)}
	}
	if config.SamplingRate < 0 {
		return &ConfigurationError{Channel: -1, Key: "sampling_rate", Reason: "must not be negative"}
	}
	for name, r := range config.Regions {
		if r[0] < 0 || r[1] >= n || r[0] > r[1] {
			return &ConfigurationError{Channel: -1, Key: "regions", Reason: fmt.Sprintf("%s [%d, %d] outside [0, %d)", name, r[0], r[1], n)}
		}
	}
	for name, r := range config.Ranges {
		if r[0] < 0 || r[1] < 0 {
			return &ConfigurationError{Channel: -1, Key: "ranges", Reason: fmt.Sprintf("%s offsets must not be negative", name)}
		}
	}
	for name, r := range config.AbsoluteRanges {
		if r[0] < 0 || r[1] >= n || r[0] > r[1] {
			return &ConfigurationError{Channel: -1, Key: "absolute_ranges", Reason: fmt.Sprintf("%s [%d, %d] outside [0, %d)", name, r[0], r[1], n)}
		}
	}
	if config.BucketRegion != "" {
		if _, ok := config.Regions[config.BucketRegion]; !ok {
			return &ConfigurationError{Channel: -1, Key: "bucket_region", Reason: fmt.Sprintf("unknown region %q", config.BucketRegion)}
		}
	}
	if config.BucketRange != "" {
		if _, ok := config.Ranges[config.BucketRange]; !ok {
			return &ConfigurationError{Channel: -1, Key: "bucket_range", Reason: fmt.Sprintf("unknown range %q", config.BucketRange)}
		}
	}
	if config.PulserChannel >= 0 {
		r := config.PulserRegion
		if r[0] < 0 || r[1] >= n || r[0] > r[1] {
			return &ConfigurationError{Channel: config.PulserChannel, Key: "pulser_region", Reason: fmt.Sprintf("[%d, %d] outside [0, %d)", r[0], r[1], n)}
		}
	}
	if config.SpectrumWaveforms != 0 && !(config.SpectrumSigma > 0) {
		return &ConfigurationError{Channel: -1, Key: "spectrum_sigma", Reason: "must be positive"}
	}
	if config.BunchSpacing < 0 {
		return &ConfigurationError{Channel: -1, Key: "bunch_spacing", Reason: "must not be negative"}
	}
	return nil
}

func newChannelState(config Configuration, channel uint16, widths []float64) (*ChannelState, error) {
	if channel >= MaxChannels {
		return nil, &ConfigurationError{
			Channel: int(channel),
			Key:     "channels",
			Reason:  fmt.Sprintf("channel id outside the %d channel masks", MaxChannels),
		}
	}
	if len(widths) != config.NSamples {
		return nil, &ConfigurationError{
			Channel: int(channel),
			Key:     "calibration",
			Reason:  fmt.Sprintf("%d bin widths for %d samples", len(widths), config.NSamples),
		}
	}
	table, err := NewCalibrationTable(channel, widths)
	if err != nil {
		return nil, err
	}

	state := &ChannelState{
		Channel:        channel,
		Name:           config.SensorName(int(channel)),
		Polarity:       config.Polarity(int(channel)),
		PulserPolarity: config.PulserPolarity(int(channel)),
		Calibration:    table,
		Noise:          NewNoiseEstimator(channel, config.NoiseCapacity, config.NoiseWarmup),
		SamplingRate:   config.SamplingRate,
		caps: capabilities{
			regions:  CheckBit(config.ActiveRegions, channel),
			waveform: CheckBit(config.SaveWaveforms, channel),
			spectrum: CheckBit(config.SpectrumWaveforms, channel),
			fft:      CheckBit(config.FFTWaveforms, channel),
		},
	}
	if state.SamplingRate == 0 {
		state.SamplingRate = table.SamplingRate()
	}
	if state.caps.fft {
		state.analyzer = NewFrequencyAnalyzer(config.NSamples)
	}
	if !state.caps.regions {
		return state, nil
	}

	if len(config.Regions) == 0 {
		return nil, &ConfigurationError{Channel: int(channel), Key: "regions", Reason: "active channel without signal regions"}
	}
	state.fitter, err = NewPeakFitter(config.PeakFitter)
	if err != nil {
		return nil, err
	}
	for _, name := range config.RegionNames() {
		border := config.Regions[name]
		polarity := state.Polarity
		if strings.HasPrefix(strings.ToLower(name), "pulser") {
			polarity = state.PulserPolarity
		}
		region := NewSignalRegion(name, border[0], border[1], polarity)
		for _, rangeName := range config.RangeNames() {
			offsets := config.Ranges[rangeName]
			region.AddIntegral(NewIntegral(name+"_"+rangeName, offsets[0], offsets[1]))
		}
		state.Regions = append(state.Regions, region)
	}
	for _, name := range config.AbsoluteRangeNames() {
		window := config.AbsoluteRanges[name]
		state.Absolute = append(state.Absolute, NewAbsoluteIntegral(name, window[0], window[1]))
	}

	state.primary = primaryRegion(config, state)
	rangeName := config.BucketRange
	if rangeName == "" {
		if names := config.RangeNames(); len(names) > 0 {
			rangeName = names[0]
		}
	}
	if rangeName != "" {
		state.bucketIntegral, _ = state.primary.Integral(state.primary.Name + "_" + rangeName)
	}
	return state, nil
}

// primaryRegion is the region whose peak describes the channel: the bucket
// region when configured, else the first region named signal*, else the
// first region.
func primaryRegion(config Configuration, state *ChannelState) *SignalRegion {
	if r, ok := state.Region(config.BucketRegion); ok {
		return r
	}
	for _, r := range state.Regions {
		if strings.HasPrefix(strings.ToLower(r.Name), "signal") {
			return r
		}
	}
	return state.Regions[0]
}

func (rc *RunContext) Config() Configuration {
	return rc.config
}

// Channels returns the channel states ordered by channel id.
func (rc *RunContext) Channels() []*ChannelState {
	return rc.channels
}

func (rc *RunContext) Channel(channel uint16) (*ChannelState, bool) {
	state, ok := rc.byID[channel]
	return state, ok
}

// Threshold is the noise significance cut of channel.
func (rc *RunContext) Threshold(channel uint16, nSigma float64) (float64, error) {
	state, ok := rc.byID[channel]
	if !ok {
		return 0, &DataError{Channel: channel, Reason: "unknown channel"}
	}
	return state.Noise.Threshold(state.Polarity, nSigma), nil
}

// ProcessEvent runs the whole pipeline on every channel of event. Channel
// level problems end up in the returned features. Only an event out of
// order is an error.
func (rc *RunContext) ProcessEvent(event *Event) (*EventFeatures, error) {
	if rc.started && event.EventNumber < rc.lastEvent {
		return nil, fmt.Errorf("event %d after %d: %w", event.EventNumber, rc.lastEvent, ErrEventOrder)
	}
	rc.started = true
	rc.lastEvent = event.EventNumber
	start := time.Now()

	features := &EventFeatures{
		RunNumber:   event.RunNumber,
		EventNumber: event.EventNumber,
		Timestamp:   event.Timestamp,
		TriggerCell: event.TriggerCell,
		Channels:    make([]ChannelFeatures, len(rc.channels)),
	}
	features.IsPulser = rc.pulser(event)

	var g errgroup.Group
	workers := rc.config.NumWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, state := range rc.channels {
		g.Go(func() error {
			features.Channels[i] = state.process(rc.config, rc.search, event)
			return nil
		})
	}
	_ = g.Wait()

	rc.record(features, time.Since(start))
	return features, nil
}

func (rc *RunContext) pulser(event *Event) bool {
	if rc.config.PulserChannel < 0 {
		return false
	}
	channel := uint16(rc.config.PulserChannel)
	state := rc.byID[channel]
	samples := event.Waveforms[channel]
	tb, err := state.Calibration.TimeBase(event.TriggerCellOf(channel), len(samples))
	if err != nil {
		logger.Error(fmt.Sprintf("event %d: pulser: %v", event.EventNumber, err))
		return false
	}
	w := &Waveform{Channel: channel, Samples: samples, Polarity: state.Polarity, PulserPolarity: state.PulserPolarity}
	isPulser, err := IsPulser(w, tb, rc.config.PulserRegion, rc.config.PulserThreshold)
	if err != nil {
		logger.Error(fmt.Sprintf("event %d: %v", event.EventNumber, err))
		return false
	}
	return isPulser
}

func (rc *RunContext) record(features *EventFeatures, elapsed time.Duration) {
	for _, ch := range features.Channels {
		if !ch.Valid && rc.config.Verbosity > 1 {
			logger.Error(fmt.Sprintf("event %d: %v", features.EventNumber, ch.Error))
		}
	}
	if rc.metrics == nil {
		return
	}
	rc.metrics.EventsProcessed.Inc()
	rc.metrics.EventDuration.Observe(elapsed.Seconds())
	if features.IsPulser {
		rc.metrics.PulserEvents.Inc()
	}
	for _, ch := range features.Channels {
		if !ch.Valid {
			rc.metrics.ChannelsInvalid.WithLabelValues(invalidReason(ch.Error)).Inc()
			continue
		}
		if ch.HasShape && !ch.PeakFitted {
			rc.metrics.FitsFailed.Inc()
		}
		if ch.Bucket.Bucket {
			rc.metrics.BucketFlags.WithLabelValues("bucket").Inc()
		}
		if ch.Bucket.PedBucket {
			rc.metrics.BucketFlags.WithLabelValues("ped_bucket").Inc()
		}
	}
}

// process runs the channel pipeline. A panic on malformed input is turned
// into a DataError for this channel only.
func (s *ChannelState) process(config Configuration, search PeakSearchParameters, event *Event) (features ChannelFeatures) {
	defer func() {
		if r := recover(); r != nil {
			features = invalidChannel(s.Channel, s.Name, &DataError{
				Channel: s.Channel,
				Reason:  fmt.Sprintf("recovered from panic: %v", r),
			})
		}
	}()

	samples := event.Waveforms[s.Channel]
	if len(samples) == 0 {
		return invalidChannel(s.Channel, s.Name, &DataError{Channel: s.Channel, Reason: "empty waveform"})
	}
	if len(samples) != s.Calibration.Len() {
		return invalidChannel(s.Channel, s.Name, &DataError{
			Channel: s.Channel,
			Index:   len(samples),
			Limit:   s.Calibration.Len(),
			Reason:  "waveform length differs from calibration",
		})
	}
	triggerCell := event.TriggerCellOf(s.Channel)
	tb, err := s.Calibration.TimeBase(triggerCell, len(samples))
	if err != nil {
		return invalidChannel(s.Channel, s.Name, err)
	}
	w := &Waveform{
		Channel:        s.Channel,
		Name:           s.Name,
		Samples:        samples,
		TriggerCell:    triggerCell,
		Polarity:       s.Polarity,
		PulserPolarity: s.PulserPolarity,
	}

	s.Noise.Update(samples[config.PedestalIndex])
	features = ChannelFeatures{
		Channel:    s.Channel,
		Name:       s.Name,
		Valid:      true,
		NoiseMean:  s.Noise.Mean(),
		NoiseSigma: s.Noise.Sigma(),
	}
	clearShape(&features)

	signed := make([]float64, len(samples))
	for i := range samples {
		signed[i] = w.Signed(i)
		if abs(samples[i]) >= config.SaturationLevel {
			features.IsSaturated = true
		}
	}
	features.Median = median(signed)
	features.Average = mean(signed)

	if s.caps.regions {
		if err := s.analyzeRegions(config, w, tb, &features); err != nil {
			return invalidChannel(s.Channel, s.Name, err)
		}
	}
	if s.caps.spectrum {
		baseline := float64(s.Polarity) * s.Noise.Mean()
		positions := FindPeaks(signed, baseline, s.Noise.Sigma(), search)
		result := ClassifyPeaks(positions, tb, config.PeakFindingROI)
		features.Peaks = &result
	}
	if s.caps.fft {
		summary, err := s.analyzer.Analyze(s.Channel, samples, s.SamplingRate)
		if err != nil {
			return invalidChannel(s.Channel, s.Name, err)
		}
		features.Spectrum = &summary
	}
	if s.caps.waveform {
		features.Waveform = append([]float64(nil), samples...)
	}
	return features
}

// analyzeRegions resolves the peak of every region, evaluates all integrals
// and extracts the pulse shape around the peak of the primary region.
// Numerical problems leave NaN in the affected features.
func (s *ChannelState) analyzeRegions(config Configuration, w *Waveform, tb *TimeBase, features *ChannelFeatures) error {
	for _, r := range s.Regions {
		if _, err := r.ResolvePeak(w); err != nil {
			return err
		}
		if err := r.Evaluate(w, tb, s.SamplingRate); err != nil {
			return err
		}
		for _, in := range r.Integrals() {
			features.Integrals = append(features.Integrals, snapshotIntegral(in, r.Name))
		}
	}
	for _, in := range s.Absolute {
		if err := EvaluateIntegral(in, nil, w, tb, s.SamplingRate); err != nil {
			return err
		}
		features.Integrals = append(features.Integrals, snapshotIntegral(in, ""))
	}

	peak, err := s.primary.Peak()
	if err != nil {
		return err
	}
	baseline := s.Noise.Mean()
	features.HasShape = true
	features.Region = s.primary.Name
	features.PeakPosition = peak
	features.PeakValue = w.Samples[peak]
	features.PeakTime = tb.At(peak)

	estimate, err := SubSamplePeak(w, tb, peak, config.FitWindow, s.fitter)
	features.PeakFitted = estimate.Fitted
	if err == nil && estimate.Fitted {
		features.FitPeakTime = estimate.Time
		features.FitPeakValue = estimate.Amplitude
	}

	if v, err := RiseTime(w, tb, peak, baseline); err == nil {
		features.RiseTime = v
	}
	if v, err := FallTime(w, tb, peak, baseline); err == nil {
		features.FallTime = v
	}
	if v, err := WaveformStartTime(w, tb, peak, baseline); err == nil {
		features.StartTime = v
		features.PeakingTime = estimate.Time - v
	}
	amplitude := float64(s.Polarity) * (estimate.Amplitude - baseline)
	if v, err := ConstantFractionTime(w, tb, peak, baseline, amplitude, config.ConstantFraction); err == nil {
		features.CFDTime = v
	}

	if s.bucketIntegral != nil && config.BunchSpacing > 0 {
		bucket, err := BucketFlags(w, tb, s.primary, s.bucketIntegral, s.Noise, s.SamplingRate, config.BunchSpacing)
		var numErr *NumericalError
		switch {
		case err == nil:
			features.HasBucket = true
			features.Bucket = bucket
		case errors.As(err, &numErr):
		default:
			return err
		}
	}

	if math.IsNaN(features.RiseTime) && config.Verbosity > 2 {
		logger.Info(fmt.Sprintf("channel %d: no rise time", s.Channel), "runContext")
	}
	return nil
}
