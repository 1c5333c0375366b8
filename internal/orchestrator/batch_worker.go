package orchestrator

import (
	"context"

	"bulkload/internal/model"
)

// BatchWorker handles one kind of queued task
type BatchWorker interface {
	// HandleTask runs the task to completion. A returned error is reported
	// to the queue, which decides on redelivery.
	HandleTask(context.Context, model.Task) error

	// Name returns the worker name
	Name() string

	// Description returns a short human description
	Description() string

	// Type returns the job type routed to this worker
	Type() string

	// ActiveTasks returns how many tasks the worker is running
	ActiveTasks() int
}

// SplitIntoBatches is a generic function that divides a slice of items
// into batches of the specified size
func SplitIntoBatches[T any](items []T, batchSize int) [][]T {
	// Handle edge cases
	if batchSize <= 0 {
		return nil
	}

	if len(items) == 0 {
		return [][]T{}
	}

	batches := make([][]T, 0, (len(items)+batchSize-1)/batchSize)

	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		batches = append(batches, items[i:end:end])
	}

	return batches
}
