package main

import (
	"fmt"
	"io"

	drs4 "github.com/diamondIPP/eudaq-drs4-sub000/pkg"
)

// EventSource yields events until io.EOF.
type EventSource interface {
	NextEvent() (*drs4.Event, error)
}

// FileReader applies the skip and max_events settings on top of an event
// source.
type FileReader struct {
	source    EventSource
	skip      int
	maxEvents int
	EvtCount  int
}

func NewFileReader(source EventSource, skip, maxEvents int) *FileReader {
	return &FileReader{source: source, skip: skip, maxEvents: maxEvents, EvtCount: -1}
}

func (f *FileReader) getNextEvent() (*drs4.Event, error) {
	for {
		event, err := f.source.NextEvent()
		if err != nil {
			return nil, err
		}
		f.EvtCount++
		if f.maxEvents > 0 && f.EvtCount >= f.skip+f.maxEvents {
			if VerbosityLevel > 0 {
				logger.Info("Max events reached", "fileReader")
			}
			return nil, io.EOF
		}
		if f.EvtCount < f.skip {
			if VerbosityLevel > 1 {
				logger.Info(fmt.Sprintf("Skipping event %d with ID %d", f.EvtCount, event.EventNumber), "fileReader")
			}
			continue
		}
		if VerbosityLevel > 1 {
			logger.Info(fmt.Sprintf("Reading event %d with ID %d", f.EvtCount, event.EventNumber), "fileReader")
		}
		return event, nil
	}
}
