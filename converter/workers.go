package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	drs4 "github.com/diamondIPP/eudaq-drs4-sub000/pkg"
)

const eventQueueSize = 100

// sendEventsToWorkers reads events until the end of the file and queues
// them for processing.
func sendEventsToWorkers(ctx context.Context, fileReader *FileReader, jobs chan<- *drs4.Event) error {
	defer close(jobs)
	for {
		event, err := fileReader.getNextEvent()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading event: %w", err)
		}
		select {
		case jobs <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// processEvents feeds the queued events through the run context, in file
// order, and hands the features to consumer.
func processEvents(rc *drs4.RunContext, jobs <-chan *drs4.Event, consumer drs4.FeatureConsumer) (int, error) {
	processed := 0
	for event := range jobs {
		features, err := rc.ProcessEvent(event)
		if err != nil {
			return processed, err
		}
		if err := consumer.Consume(features); err != nil {
			return processed, fmt.Errorf("error writing event %d: %w", event.EventNumber, err)
		}
		processed++
	}
	return processed, nil
}

// runPipeline overlaps reading the file with processing the events.
func runPipeline(ctx context.Context, fileReader *FileReader, rc *drs4.RunContext, consumer drs4.FeatureConsumer) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan *drs4.Event, eventQueueSize)

	var processed int
	g.Go(func() error {
		return sendEventsToWorkers(ctx, fileReader, jobs)
	})
	g.Go(func() error {
		var err error
		processed, err = processEvents(rc, jobs, consumer)
		return err
	})
	err := g.Wait()
	return processed, err
}
