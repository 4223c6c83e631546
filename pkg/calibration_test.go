package drs4

import (
	"errors"
	"testing"

	"github.com/diamondIPP/eudaq-drs4-sub000/testUtils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCumulativeTimeIsStrictlyIncreasing(t *testing.T) {
	tables := map[string][]float64{
		"uniform": testUtils.UniformWidths(1024, 0.5),
		"ripple":  testUtils.RippleWidths(1024, 0.5, 0.2),
		"outlier": testUtils.OutlierWidths(1024, 0.5, 100, 2),
	}
	for name, widths := range tables {
		t.Run(name, func(t *testing.T) {
			table, err := NewCalibrationTable(3, widths)
			require.NoError(t, err)

			cumulative := table.Cumulative()
			require.Len(t, cumulative, 2*1024-1)
			assert.Equal(t, 0.0, cumulative[0])
			for i := 1; i < len(cumulative); i++ {
				require.Greater(t, cumulative[i], cumulative[i-1], "bin %d", i)
			}
		})
	}
}

func TestCalibrationRejectsInvalidWidths(t *testing.T) {
	_, err := NewCalibrationTable(1, nil)
	var confErr *ConfigurationError
	require.True(t, errors.As(err, &confErr))
	assert.Equal(t, 1, confErr.Channel)

	widths := testUtils.UniformWidths(16, 0.5)
	widths[7] = 0
	_, err = NewCalibrationTable(2, widths)
	require.True(t, errors.As(err, &confErr))
	assert.Equal(t, "calibration", confErr.Key)

	widths[7] = -0.1
	_, err = NewCalibrationTable(2, widths)
	assert.Error(t, err)
}

func TestTimeAtUsesTriggerCell(t *testing.T) {
	table, err := NewCalibrationTable(0, testUtils.UniformWidths(1024, 0.5))
	require.NoError(t, err)

	for _, triggerCell := range []int{0, 17, 1000, 1023} {
		got, err := table.TimeAt(10, triggerCell)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, got, 1e-9)
	}

	// the last sample of an event starting at the last cell wraps around
	got, err := table.TimeAt(1023, 1023)
	require.NoError(t, err)
	assert.InDelta(t, 511.5, got, 1e-9)

	between, err := table.TimeBetween(100, 140, 512)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, between, 1e-9)
	assert.InDelta(t, 2.0, table.SamplingRate(), 1e-12)
}

func TestTimeAtOutOfRange(t *testing.T) {
	table, err := NewCalibrationTable(4, testUtils.UniformWidths(1024, 0.5))
	require.NoError(t, err)

	var dataErr *DataError
	_, err = table.TimeAt(1024, 1023)
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, uint16(4), dataErr.Channel)

	_, err = table.TimeAt(0, 1024)
	assert.True(t, errors.As(err, &dataErr))

	_, err = table.TimeAt(-1, 0)
	assert.True(t, errors.As(err, &dataErr))

	_, err = table.TimeBase(1023, 1025)
	assert.True(t, errors.As(err, &dataErr))
}

func TestTimeBaseFollowsCalibration(t *testing.T) {
	table, err := NewCalibrationTable(0, testUtils.OutlierWidths(1024, 0.5, 100, 2))
	require.NoError(t, err)

	tb, err := table.TimeBase(90, 1024)
	require.NoError(t, err)
	require.Equal(t, 1024, tb.Len())
	assert.Equal(t, 0.0, tb.At(0))
	assert.InDelta(t, 0.5, tb.Width(9), 1e-12)
	assert.InDelta(t, 1.0, tb.Width(10), 1e-12)
	assert.InDelta(t, 0.5, tb.Width(11), 1e-12)
	assert.InDelta(t, 5.0+1.0+0.5, tb.Between(0, 12), 1e-12)

	// the outlier cell is at the start of the event when triggered on it
	tb, err = table.TimeBase(100, 1024)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tb.Width(0), 1e-12)
}

func TestTimeBaseInterpolate(t *testing.T) {
	tb := NewUniformTimeBase(0, 100, 0.5)

	assert.InDelta(t, 1.25, tb.Interpolate(2.5), 1e-12)
	assert.Equal(t, 0.0, tb.Interpolate(-3))
	assert.InDelta(t, 49.5, tb.Interpolate(200), 1e-12)
}
