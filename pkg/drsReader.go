package drs4

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// DRSSamples is the number of cells of a DRS4 channel.
const DRSSamples = 1024

const (
	fileTag    = "DRS"
	timeTag    = "TIME"
	eventTag   = "EHDR"
	boardTag   = "B#"
	triggerTag = "T#"
)

// ErrMalformedFile is wrapped by every format error of the DRS reader.
var ErrMalformedFile = errors.New("malformed DRS4 binary file")

type drsEventHeader struct {
	Serial      uint32
	Year        uint16
	Month       uint16
	Day         uint16
	Hour        uint16
	Minute      uint16
	Second      uint16
	Millisecond uint16
	Range       int16
}

type drsBoard struct {
	serial   uint16
	channels []uint16
	inputs   []int
}

// DRSReader decodes the binary files written by the DRS4 evaluation board
// software. The time calibration in the file header is read on creation.
type DRSReader struct {
	RunNumber uint32
	Version   byte

	r           *bufio.Reader
	offset      int64
	boards      []drsBoard
	calibration map[uint16][]float64
	raw         []uint16
}

func NewDRSReader(r io.Reader) (*DRSReader, error) {
	d := &DRSReader{
		r:           bufio.NewReader(r),
		calibration: make(map[uint16][]float64),
		raw:         make([]uint16, DRSSamples),
	}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DRSReader) malformed(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrMalformedFile, d.offset, fmt.Sprintf(format, args...))
}

func (d *DRSReader) read(data any) error {
	if err := binary.Read(d.r, binary.LittleEndian, data); err != nil {
		return err
	}
	d.offset += int64(binary.Size(data))
	return nil
}

func (d *DRSReader) readTag() ([4]byte, error) {
	var tag [4]byte
	_, err := io.ReadFull(d.r, tag[:])
	if err == nil {
		d.offset += 4
	}
	return tag, err
}

func (d *DRSReader) readHeader() error {
	tag, err := d.readTag()
	if err != nil {
		return fmt.Errorf("error reading file header: %w", err)
	}
	if string(tag[:3]) != fileTag {
		return d.malformed("file tag %q", tag[:])
	}
	d.Version = tag[3]

	if tag, err = d.readTag(); err != nil {
		return fmt.Errorf("error reading time header: %w", err)
	}
	if string(tag[:]) != timeTag {
		return d.malformed("time header tag %q", tag[:])
	}

	for {
		next, err := d.r.Peek(4)
		if errors.Is(err, io.EOF) && len(next) == 0 {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading time calibration: %w", err)
		}
		if string(next) == eventTag {
			break
		}
		tag, _ = d.readTag()

		switch {
		case string(tag[:2]) == boardTag:
			d.boards = append(d.boards, drsBoard{serial: binary.LittleEndian.Uint16(tag[2:])})
		case tag[0] == 'C':
			input, err := channelInput(tag)
			if err != nil {
				return d.malformed("%v", err)
			}
			if len(d.boards) == 0 {
				d.boards = append(d.boards, drsBoard{})
			}
			board := &d.boards[len(d.boards)-1]
			channel := uint16((len(d.boards)-1)*ChannelsPerBoard + input - 1)
			widths := make([]float32, DRSSamples)
			if err := d.read(widths); err != nil {
				return fmt.Errorf("error reading bin widths of channel %d: %w", channel, err)
			}
			table := make([]float64, DRSSamples)
			for i, w := range widths {
				table[i] = float64(w)
			}
			d.calibration[channel] = table
			board.channels = append(board.channels, channel)
			board.inputs = append(board.inputs, input)
		default:
			return d.malformed("unexpected tag %q in time header", tag[:])
		}
	}

	if len(d.calibration) == 0 {
		return d.malformed("no channels in time header")
	}
	logger.Info(fmt.Sprintf("DRS file version %c: %d boards, %d channels", d.Version, len(d.boards), len(d.calibration)), "drsReader")
	return nil
}

// channelInput parses the input number n of a "C00n" tag.
func channelInput(tag [4]byte) (int, error) {
	input, err := strconv.Atoi(string(tag[1:]))
	if err != nil || input < 1 || input > ChannelsPerBoard {
		return 0, fmt.Errorf("invalid channel tag %q", tag[:])
	}
	return input, nil
}

// Calibration returns a copy of the bin widths in ns of every channel.
func (d *DRSReader) Calibration() map[uint16][]float64 {
	tables := make(map[uint16][]float64, len(d.calibration))
	for channel, widths := range d.calibration {
		tables[channel] = append([]float64(nil), widths...)
	}
	return tables
}

// BoardSerials returns the serial numbers in file order.
func (d *DRSReader) BoardSerials() []uint16 {
	serials := make([]uint16, len(d.boards))
	for i, b := range d.boards {
		serials[i] = b.serial
	}
	return serials
}

// NextEvent decodes the following event. It returns io.EOF after the last
// complete event.
func (d *DRSReader) NextEvent() (*Event, error) {
	tag, err := d.readTag()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("error reading event tag: %w", err)
	}
	if string(tag[:]) != eventTag {
		return nil, d.malformed("event tag %q", tag[:])
	}

	var header drsEventHeader
	if err := d.read(&header); err != nil {
		return nil, fmt.Errorf("error reading event header: %w", unexpected(err))
	}
	event := &Event{
		RunNumber:   d.RunNumber,
		EventNumber: header.Serial,
		Timestamp: time.Date(int(header.Year), time.Month(header.Month), int(header.Day),
			int(header.Hour), int(header.Minute), int(header.Second), int(header.Millisecond)*int(time.Millisecond), time.UTC),
		RangeMV:      header.Range,
		TriggerCells: make([]int, len(d.boards)),
		Waveforms:    make(map[uint16][]float64, len(d.calibration)),
	}

	for b, board := range d.boards {
		if tag, err = d.readTag(); err != nil {
			return nil, fmt.Errorf("error reading board tag of event %d: %w", header.Serial, unexpected(err))
		}
		if string(tag[:2]) != boardTag {
			return nil, d.malformed("board tag %q in event %d", tag[:], header.Serial)
		}
		serial := binary.LittleEndian.Uint16(tag[2:])
		if serial != board.serial {
			return nil, d.malformed("board %d in event %d, expected %d", serial, header.Serial, board.serial)
		}
		if tag, err = d.readTag(); err != nil {
			return nil, fmt.Errorf("error reading trigger cell of event %d: %w", header.Serial, unexpected(err))
		}
		if string(tag[:2]) != triggerTag {
			return nil, d.malformed("trigger cell tag %q in event %d", tag[:], header.Serial)
		}
		triggerCell := int(binary.LittleEndian.Uint16(tag[2:]))
		if triggerCell >= DRSSamples {
			return nil, d.malformed("trigger cell %d in event %d", triggerCell, header.Serial)
		}
		event.TriggerCells[b] = triggerCell
		if b == 0 {
			event.BoardSerial = serial
			event.TriggerCell = triggerCell
		}

		for i, channel := range board.channels {
			if err := d.readChannel(event, board.inputs[i], channel); err != nil {
				return nil, err
			}
		}
	}
	return event, nil
}

func (d *DRSReader) readChannel(event *Event, input int, channel uint16) error {
	tag, err := d.readTag()
	if err != nil {
		return fmt.Errorf("error reading channel tag of event %d: %w", event.EventNumber, unexpected(err))
	}
	got, err := channelInput(tag)
	if err != nil || got != input {
		return d.malformed("channel tag %q in event %d, expected input %d", tag[:], event.EventNumber, input)
	}
	var scaler uint32
	if err := d.read(&scaler); err != nil {
		return fmt.Errorf("error reading scaler of channel %d: %w", channel, unexpected(err))
	}
	if err := d.read(d.raw); err != nil {
		return fmt.Errorf("error reading samples of channel %d: %w", channel, unexpected(err))
	}
	samples := make([]float64, DRSSamples)
	for i, raw := range d.raw {
		samples[i] = RawToMillivolt(raw, event.RangeMV)
	}
	event.Waveforms[channel] = samples
	return nil
}

// RawToMillivolt converts a 16 bit sample to mV for a board whose input
// range is centred on rangeMV.
func RawToMillivolt(raw uint16, rangeMV int16) float64 {
	return float64(raw)/65536*1000 + float64(rangeMV) - 500
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
