package drs4

import (
	"errors"
	"fmt"
)

// FeatureConsumer receives the features of every processed event, in event
// order. Persistence backends implement it.
type FeatureConsumer interface {
	Consume(features *EventFeatures) error
	Close() error
}

// MultiConsumer hands every event to each of its consumers.
type MultiConsumer struct {
	consumers []FeatureConsumer
}

func NewMultiConsumer(consumers ...FeatureConsumer) *MultiConsumer {
	return &MultiConsumer{consumers: consumers}
}

func (m *MultiConsumer) Add(c FeatureConsumer) {
	m.consumers = append(m.consumers, c)
}

// Consume stops at the first failing consumer.
func (m *MultiConsumer) Consume(features *EventFeatures) error {
	for i, c := range m.consumers {
		if err := c.Consume(features); err != nil {
			return fmt.Errorf("consumer %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every consumer and joins their errors.
func (m *MultiConsumer) Close() error {
	var errs []error
	for i, c := range m.consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing consumer %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ConsumerFunc adapts a function to a FeatureConsumer with nothing to close.
type ConsumerFunc func(*EventFeatures) error

func (f ConsumerFunc) Consume(features *EventFeatures) error {
	return f(features)
}

func (f ConsumerFunc) Close() error {
	return nil
}
