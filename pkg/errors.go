package drs4

import (
	"errors"
	"fmt"
)

// ErrNotCalculated is returned when an integral is read before it has been
// evaluated for the current event.
var ErrNotCalculated = errors.New("integral not calculated for the current event")

// ErrEventOrder is returned when events are fed with a decreasing event number.
var ErrEventOrder = errors.New("event number decreased")

var ErrUnknownIntegral = errors.New("unknown integral")

// ConfigurationError reports a setup problem that prevents a run from starting.
type ConfigurationError struct {
	Channel int
	Key     string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Channel < 0 {
		return fmt.Sprintf("configuration error in %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("configuration error in %q for channel %d: %s", e.Key, e.Channel, e.Reason)
}

// DataError reports malformed event data. The affected channel is skipped for
// the event, everything else goes on.
type DataError struct {
	Channel uint16
	Index   int
	Limit   int
	Reason  string
}

func (e *DataError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("data error on channel %d: %s (index %d, limit %d)", e.Channel, e.Reason, e.Index, e.Limit)
	}
	return fmt.Sprintf("data error on channel %d: %s", e.Channel, e.Reason)
}

// NumericalError reports a degenerate computation. Callers fall back to the
// coarse estimate and flag the feature as not fitted.
type NumericalError struct {
	Channel   uint16
	Operation string
	Reason    string
	Err       error
}

func (e *NumericalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on channel %d: %s: %v", e.Operation, e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s on channel %d: %s", e.Operation, e.Channel, e.Reason)
}

func (e *NumericalError) Unwrap() error {
	return e.Err
}

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ErrCreateGroup represents an error when creating a group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error {
	return e.Err
}

// ErrCreateTable represents an error when creating a table.
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}

func (e *ErrCreateTable) Unwrap() error {
	return e.Err
}
