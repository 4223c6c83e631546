package drs4

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diamondIPP/eudaq-drs4-sub000/testUtils"
)

type testBoard struct {
	serial uint16
	inputs []int
}

type testDRSEvent struct {
	header       drsEventHeader
	triggerCells []uint16
	// raw samples per board and input
	raw [][][]uint16
}

// encodeDRS writes a file in the layout produced by the DRS4 evaluation
// board software.
func encodeDRS(t *testing.T, boards []testBoard, events []testDRSEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	write := func(data any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, data))
	}
	tag := func(prefix string, value uint16) {
		buf.WriteString(prefix)
		write(value)
	}
	channelTag := func(input int) {
		buf.WriteString("C00")
		buf.WriteByte(byte('0' + input))
	}

	buf.WriteString("DRS2")
	buf.WriteString("TIME")
	for b, board := range boards {
		tag("B#", board.serial)
		for _, input := range board.inputs {
			channelTag(input)
			widths := make([]float32, DRSSamples)
			for i := range widths {
				widths[i] = 0.5 + 0.001*float32(b*ChannelsPerBoard+input)
			}
			write(widths)
		}
	}
	for _, event := range events {
		buf.WriteString("EHDR")
		write(event.header)
		for b, board := range boards {
			tag("B#", board.serial)
			tag("T#", event.triggerCells[b])
			for i, input := range board.inputs {
				channelTag(input)
				write(uint32(0))
				write(event.raw[b][i])
			}
		}
	}
	return buf.Bytes()
}

func constantRaw(value uint16) []uint16 {
	raw := make([]uint16, DRSSamples)
	for i := range raw {
		raw[i] = value
	}
	return raw
}

func testDRSFile(t *testing.T) ([]testBoard, []testDRSEvent, []byte) {
	boards := []testBoard{
		{serial: 2241, inputs: []int{1, 3}},
		{serial: 2242, inputs: []int{2}},
	}
	ramp := make([]uint16, DRSSamples)
	for i := range ramp {
		ramp[i] = uint16(i * 64)
	}
	events := []testDRSEvent{
		{
			header:       drsEventHeader{Serial: 1, Year: 2018, Month: 10, Day: 3, Hour: 14, Minute: 5, Second: 9, Millisecond: 250, Range: 0},
			triggerCells: []uint16{17, 600},
			raw:          [][][]uint16{{constantRaw(32768), ramp}, {constantRaw(0)}},
		},
		{
			header:       drsEventHeader{Serial: 2, Year: 2018, Month: 10, Day: 3, Hour: 14, Minute: 5, Second: 10, Range: 200},
			triggerCells: []uint16{1023, 0},
			raw:          [][][]uint16{{constantRaw(65535), constantRaw(1)}, {constantRaw(32768)}},
		},
	}
	return boards, events, encodeDRS(t, boards, events)
}

func TestDRSReaderHeader(t *testing.T) {
	_, _, data := testDRSFile(t)

	reader, err := NewDRSReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, byte('2'), reader.Version)
	assert.Equal(t, []uint16{2241, 2242}, reader.BoardSerials())

	calibration := reader.Calibration()
	require.Len(t, calibration, 3)
	for _, channel := range []uint16{0, 2, 5} {
		require.Contains(t, calibration, channel)
		assert.Len(t, calibration[channel], DRSSamples)
	}
	expected := make([]float64, DRSSamples)
	for i := range expected {
		expected[i] = 0.503
	}
	assert.True(t, testUtils.FloatSliceEqUpTo(calibration[2], expected, 1e-6))
	assert.True(t, testUtils.FloatEqUpTo(calibration[5][0], 0.506, 1e-6))

	// the copy is detached from the reader
	calibration[0][0] = 99
	assert.NotEqual(t, 99.0, reader.Calibration()[0][0])
}

func TestDRSReaderEvents(t *testing.T) {
	_, _, data := testDRSFile(t)
	reader, err := NewDRSReader(bytes.NewReader(data))
	require.NoError(t, err)
	reader.RunNumber = 77

	event, err := reader.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, uint32(77), event.RunNumber)
	assert.Equal(t, uint32(1), event.EventNumber)
	assert.Equal(t, time.Date(2018, 10, 3, 14, 5, 9, 250*int(time.Millisecond), time.UTC), event.Timestamp)
	assert.Equal(t, uint16(2241), event.BoardSerial)
	assert.Equal(t, 17, event.TriggerCell)
	assert.Equal(t, []int{17, 600}, event.TriggerCells)
	assert.Equal(t, 600, event.TriggerCellOf(5))
	require.Len(t, event.Waveforms, 3)
	assert.InDelta(t, 0, event.Waveforms[0][100], 1e-9)
	assert.InDelta(t, -500, event.Waveforms[5][0], 1e-9)
	assert.InDelta(t, RawToMillivolt(64*10, 0), event.Waveforms[2][10], 1e-9)

	event, err = reader.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), event.EventNumber)
	assert.Equal(t, int16(200), event.RangeMV)
	assert.Equal(t, 1023, event.TriggerCell)
	assert.InDelta(t, 65535.0/65536*1000-300, event.Waveforms[0][0], 1e-9)
	assert.InDelta(t, -300, event.Waveforms[2][0], 0.02)

	_, err = reader.NextEvent()
	assert.Equal(t, io.EOF, err)
}

func TestDRSReaderTruncatedEvent(t *testing.T) {
	_, _, data := testDRSFile(t)
	reader, err := NewDRSReader(bytes.NewReader(data[:len(data)-100]))
	require.NoError(t, err)

	_, err = reader.NextEvent()
	require.NoError(t, err)
	_, err = reader.NextEvent()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDRSReaderMalformed(t *testing.T) {
	boards, events, data := testDRSFile(t)

	corrupt := func(modify func([]byte) []byte) []byte {
		return modify(append([]byte(nil), data...))
	}
	eventStart := bytes.Index(data, []byte("EHDR"))
	require.Positive(t, eventStart)

	_, err := NewDRSReader(bytes.NewReader(corrupt(func(b []byte) []byte {
		copy(b, "XYZ1")
		return b
	})))
	assert.ErrorIs(t, err, ErrMalformedFile)

	_, err = NewDRSReader(bytes.NewReader(corrupt(func(b []byte) []byte {
		copy(b[4:], "TIMX")
		return b
	})))
	assert.ErrorIs(t, err, ErrMalformedFile)

	// an unknown tag ends up in the time header
	_, err = NewDRSReader(bytes.NewReader(corrupt(func(b []byte) []byte {
		copy(b[eventStart:], "EHDX")
		return b
	})))
	assert.ErrorIs(t, err, ErrMalformedFile)

	secondEvent := bytes.LastIndex(data, []byte("EHDR"))
	require.Greater(t, secondEvent, eventStart)
	reader, err := NewDRSReader(bytes.NewReader(corrupt(func(b []byte) []byte {
		copy(b[secondEvent:], "EHDX")
		return b
	})))
	require.NoError(t, err)
	_, err = reader.NextEvent()
	require.NoError(t, err)
	_, err = reader.NextEvent()
	assert.ErrorIs(t, err, ErrMalformedFile)

	events[0].triggerCells[0] = 1024
	reader, err = NewDRSReader(bytes.NewReader(encodeDRS(t, boards, events)))
	require.NoError(t, err)
	_, err = reader.NextEvent()
	assert.ErrorIs(t, err, ErrMalformedFile)
}

func TestDRSReaderEmptyHeader(t *testing.T) {
	_, err := NewDRSReader(bytes.NewReader([]byte("DRS2TIME")))
	assert.ErrorIs(t, err, ErrMalformedFile)

	_, err = NewDRSReader(bytes.NewReader([]byte("DR")))
	assert.Error(t, err)
}

func TestChannelInput(t *testing.T) {
	input, err := channelInput([4]byte{'C', '0', '0', '3'})
	require.NoError(t, err)
	assert.Equal(t, 3, input)

	_, err = channelInput([4]byte{'C', '0', '0', '5'})
	assert.Error(t, err)
	_, err = channelInput([4]byte{'C', 'x', '0', '1'})
	assert.Error(t, err)
}

func TestRawToMillivolt(t *testing.T) {
	assert.InDelta(t, -500, RawToMillivolt(0, 0), 1e-12)
	assert.InDelta(t, 0, RawToMillivolt(32768, 0), 1e-12)
	assert.InDelta(t, 100, RawToMillivolt(32768, 100), 1e-12)
	assert.Less(t, RawToMillivolt(65535, 0), 500.0)
}

func TestDRSReaderErrorsCarryOffset(t *testing.T) {
	_, _, data := testDRSFile(t)
	eventStart := bytes.Index(data, []byte("EHDR"))
	corrupted := append([]byte(nil), data...)
	copy(corrupted[eventStart:], "EHDX")

	_, err := NewDRSReader(bytes.NewReader(corrupted))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFile))
	assert.Contains(t, err.Error(), fmt.Sprintf("offset %d", eventStart+4))

	secondEvent := bytes.LastIndex(data, []byte("EHDR"))
	corrupted = append([]byte(nil), data...)
	copy(corrupted[secondEvent:], "EHDX")

	reader, err := NewDRSReader(bytes.NewReader(corrupted))
	require.NoError(t, err)
	_, err = reader.NextEvent()
	require.NoError(t, err)
	_, err = reader.NextEvent()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFile))
	assert.Contains(t, err.Error(), fmt.Sprintf("offset %d", secondEvent+4))
}
