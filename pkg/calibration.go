package drs4

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// CalibrationTable holds the bin widths of one channel of the switched
// capacitor array and the cumulative time axis built from them. The table
// is built once per run and never modified afterwards.
type CalibrationTable struct {
	Channel    uint16
	widths     []float64
	cumulative []float64
}

// NewCalibrationTable copies widths and builds the cumulative time array of
// length 2N-1 so that (triggerCell + i) can be addressed without wrapping.
func NewCalibrationTable(channel uint16, widths []float64) (*CalibrationTable, error) {
	n := len(widths)
	if n == 0 {
		return nil, &ConfigurationError{Channel: int(channel), Key: "calibration", Reason: "empty bin width table"}
	}
	for i, w := range widths {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, &ConfigurationError{
				Channel: int(channel),
				Key:     "calibration",
				Reason:  fmt.Sprintf("bin %d has invalid width %v", i, w),
			}
		}
	}

	table := &CalibrationTable{
		Channel:    channel,
		widths:     make([]float64, n),
		cumulative: make([]float64, 2*n-1),
	}
	copy(table.widths, widths)
	for k := 1; k < len(table.cumulative); k++ {
		table.cumulative[k] = table.cumulative[k-1] + widths[(k-1)%n]
	}
	return table, nil
}

func (c *CalibrationTable) Len() int {
	return len(c.widths)
}

// Widths returns a copy of the bin widths.
func (c *CalibrationTable) Widths() []float64 {
	widths := make([]float64, len(c.widths))
	copy(widths, c.widths)
	return widths
}

// Cumulative returns a copy of the cumulative time array.
func (c *CalibrationTable) Cumulative() []float64 {
	cumulative := make([]float64, len(c.cumulative))
	copy(cumulative, c.cumulative)
	return cumulative
}

// SamplingRate is the mean number of samples per time unit over the full
// circular buffer (GHz when widths are in ns).
func (c *CalibrationTable) SamplingRate() float64 {
	return float64(len(c.widths)) / floats.Sum(c.widths)
}

// TimeAt returns the time of sampleIndex relative to the trigger cell.
func (c *CalibrationTable) TimeAt(sampleIndex, triggerCell int) (float64, error) {
	if err := c.checkIndex(sampleIndex, triggerCell); err != nil {
		return 0, err
	}
	return c.cumulative[sampleIndex+triggerCell] - c.cumulative[triggerCell], nil
}

// TimeBetween returns the time elapsed between the samples low and high.
func (c *CalibrationTable) TimeBetween(low, high, triggerCell int) (float64, error) {
	if err := c.checkIndex(low, triggerCell); err != nil {
		return 0, err
	}
	if err := c.checkIndex(high, triggerCell); err != nil {
		return 0, err
	}
	return c.cumulative[high+triggerCell] - c.cumulative[low+triggerCell], nil
}

func (c *CalibrationTable) checkIndex(sampleIndex, triggerCell int) error {
	if triggerCell < 0 || triggerCell >= len(c.widths) {
		return &DataError{Channel: c.Channel, Index: triggerCell, Limit: len(c.widths), Reason: "trigger cell out of calibrated range"}
	}
	if sampleIndex < 0 || sampleIndex+triggerCell >= len(c.cumulative) {
		return &DataError{Channel: c.Channel, Index: sampleIndex + triggerCell, Limit: len(c.cumulative), Reason: "sample index out of calibrated range"}
	}
	return nil
}

// TimeBase resolves the times of the first nSamples samples of an event
// with the given trigger cell.
func (c *CalibrationTable) TimeBase(triggerCell, nSamples int) (*TimeBase, error) {
	if nSamples <= 0 {
		return nil, &DataError{Channel: c.Channel, Reason: "empty waveform"}
	}
	if err := c.checkIndex(nSamples-1, triggerCell); err != nil {
		return nil, err
	}
	times := make([]float64, nSamples)
	origin := c.cumulative[triggerCell]
	for i := range times {
		times[i] = c.cumulative[i+triggerCell] - origin
	}
	return &TimeBase{Channel: c.Channel, TriggerCell: triggerCell, times: times}, nil
}

// TimeBase is the calibrated time axis of one channel for one event.
type TimeBase struct {
	Channel     uint16
	TriggerCell int
	times       []float64
}

// NewUniformTimeBase builds an ideal time base with a constant sample period.
func NewUniformTimeBase(channel uint16, nSamples int, period float64) *TimeBase {
	times := make([]float64, nSamples)
	for i := range times {
		times[i] = float64(i) * period
	}
	return &TimeBase{Channel: channel, times: times}
}

func (tb *TimeBase) Len() int {
	return len(tb.times)
}

// At returns the time of sample i. i must be inside [0, Len()).
func (tb *TimeBase) At(i int) float64 {
	return tb.times[i]
}

// Width returns the time between sample i and sample i+1.
func (tb *TimeBase) Width(i int) float64 {
	return tb.times[i+1] - tb.times[i]
}

// Between returns the time between samples low and high.
func (tb *TimeBase) Between(low, high int) float64 {
	return tb.times[high] - tb.times[low]
}

// Interpolate returns the time at the fractional sample position x.
func (tb *TimeBase) Interpolate(x float64) float64 {
	if x <= 0 {
		return tb.times[0]
	}
	last := len(tb.times) - 1
	if x >= float64(last) {
		return tb.times[last]
	}
	i := int(x)
	return tb.times[i] + (x-float64(i))*tb.Width(i)
}
