package drs4

import (
	"fmt"
	"math"
	"time"
)

// IntegralResult is the snapshot of one evaluated integral. Values are NaN
// when the integral could not be evaluated for the event.
type IntegralResult struct {
	Name         string
	Region       string
	Value        float64
	TimeIntegral float64
	PeakTime     float64
	Length       float64
	LowBin       int
	HighBin      int
	Degenerate   bool
	Valid        bool
}

// ChannelFeatures is the feature vector of one channel for one event.
// Shape quantities that could not be computed are NaN. An invalid channel
// only carries its id, name and the error.
type ChannelFeatures struct {
	Channel uint16
	Name    string
	Valid   bool
	Error   error

	IsSaturated bool
	Median      float64
	Average     float64
	NoiseMean   float64
	NoiseSigma  float64

	HasShape     bool
	Region       string
	PeakPosition int
	PeakValue    float64
	PeakTime     float64
	PeakFitted   bool
	FitPeakTime  float64
	FitPeakValue float64
	RiseTime     float64
	FallTime     float64
	StartTime    float64
	PeakingTime  float64
	CFDTime      float64

	Integrals []IntegralResult

	HasBucket bool
	Bucket    BucketResult

	Peaks    *PeakSearchResult
	Spectrum *SpectrumSummary
	Waveform []float64
}

// Integral returns the result of the named integral.
func (f *ChannelFeatures) Integral(name string) (IntegralResult, error) {
	for _, in := range f.Integrals {
		if in.Name == name {
			return in, nil
		}
	}
	return IntegralResult{}, fmt.Errorf("%s on channel %d: %w", name, f.Channel, ErrUnknownIntegral)
}

func invalidChannel(channel uint16, name string, err error) ChannelFeatures {
	return ChannelFeatures{Channel: channel, Name: name, Valid: false, Error: err}
}

func clearShape(f *ChannelFeatures) {
	nan := math.NaN()
	f.PeakValue = nan
	f.PeakTime = nan
	f.FitPeakTime = nan
	f.FitPeakValue = nan
	f.RiseTime = nan
	f.FallTime = nan
	f.StartTime = nan
	f.PeakingTime = nan
	f.CFDTime = nan
}

func snapshotIntegral(in *Integral, region string) IntegralResult {
	result := IntegralResult{Name: in.Name, Region: region, Degenerate: in.Degenerate()}
	value, err := in.Value()
	if err != nil {
		nan := math.NaN()
		result.Value, result.TimeIntegral, result.PeakTime, result.Length = nan, nan, nan, nan
		return result
	}
	result.Value = value
	result.TimeIntegral, _ = in.TimeIntegral()
	result.PeakTime, _ = in.PeakTime()
	result.Length, _ = in.Length()
	result.LowBin, result.HighBin = in.Bins()
	result.Valid = true
	return result
}

// EventFeatures collects the feature vectors of every channel of one event,
// ordered by channel id.
type EventFeatures struct {
	RunNumber   uint32
	EventNumber uint32
	Timestamp   time.Time
	TriggerCell int
	IsPulser    bool
	Channels    []ChannelFeatures
}

func (e *EventFeatures) Channel(channel uint16) (*ChannelFeatures, bool) {
	for i := range e.Channels {
		if e.Channels[i].Channel == channel {
			return &e.Channels[i], true
		}
	}
	return nil, false
}
