package drs4

import "time"

// Event is one trigger as delivered by the reader: raw waveforms keyed by
// channel id plus the trigger cell of the circular sampling buffer.
type Event struct {
	RunNumber   uint32
	EventNumber uint32
	Timestamp   time.Time
	BoardSerial uint16
	RangeMV     int16
	TriggerCell int
	// TriggerCells holds the trigger cell of every board, channel c being
	// read by board c/4. Empty for single board data.
	TriggerCells []int
	Waveforms    map[uint16][]float64
	Error        bool
}

// ChannelsPerBoard is the number of input channels of one DRS4 board.
const ChannelsPerBoard = 4

// TriggerCellOf returns the trigger cell of the board reading channel.
func (e *Event) TriggerCellOf(channel uint16) int {
	board := int(channel) / ChannelsPerBoard
	if board < len(e.TriggerCells) {
		return e.TriggerCells[board]
	}
	return e.TriggerCell
}

// Waveform is the per-channel view of an event used by the analysis. It is
// not modified once built.
type Waveform struct {
	Channel        uint16
	Name           string
	Samples        []float64
	TriggerCell    int
	Polarity       int
	PulserPolarity int
}

func (w *Waveform) Len() int {
	return len(w.Samples)
}

// Signed returns the sample multiplied by the signal polarity.
func (w *Waveform) Signed(i int) float64 {
	return float64(w.Polarity) * w.Samples[i]
}
