package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchWriterEmptyBatch(t *testing.T) {
	store := newMemoryWriter()
	result := NewBatchWriter(store).Write(context.Background(), nil)

	require.Zero(t, result.Inserted)
	require.Empty(t, result.Failures)
	require.Zero(t, store.bulkCalls)
}

func TestBatchWriterBulkSuccess(t *testing.T) {
	store := newMemoryWriter()
	batch := stores("a", "b", "c")

	result := NewBatchWriter(store).Write(context.Background(), batch)

	require.Equal(t, 3, result.Inserted)
	require.Empty(t, result.Failures)
	require.Zero(t, store.oneCalls)
	require.Len(t, store.stored, 3)
}

func TestBatchWriterFallbackClassifiesOutcomes(t *testing.T) {
	store := newMemoryWriter()
	store.rejects["bad"] = errValidation
	// already present from an earlier job
	require.NoError(t, store.insert(stores("old")[0]))

	batch := stores("a", "old", "bad", "b")
	result := NewBatchWriter(store).Write(context.Background(), batch)

	require.Equal(t, 3, result.Inserted)
	require.Len(t, result.Failures, 1)
	require.Equal(t, 2, result.Failures[0].Index)
	require.Equal(t, "bad", result.Failures[0].Record.StoreName)
	require.Equal(t, "Document failed validation", result.Failures[0].Reason)
	require.Equal(t, len(batch), result.Inserted+result.Failed())
}

func TestBatchWriterBulkErrorFallsBackInOrder(t *testing.T) {
	store := newMemoryWriter()
	store.bulkErr = errors.New("connection reset")

	batch := stores("a", "b", "c")
	result := NewBatchWriter(store).Write(context.Background(), batch)

	require.Equal(t, 3, result.Inserted)
	require.Zero(t, result.Duplicates)
	require.Equal(t, 3, store.oneCalls)
}

func TestBatchWriterDuplicatesAcrossBatches(t *testing.T) {
	store := newMemoryWriter()
	writer := NewBatchWriter(store)

	first := writer.Write(context.Background(), stores("a", "b"))
	second := writer.Write(context.Background(), stores("b", "c"))

	require.Equal(t, 2, first.Inserted)
	require.Equal(t, 2, second.Inserted)
	require.Equal(t, 1, second.Duplicates)
	require.Empty(t, second.Failures)
	require.Len(t, store.stored, 3)
}

func TestClassify(t *testing.T) {
	require.Equal(t, OutcomeSuccess, Classify(nil).Outcome())
	require.Equal(t, OutcomeFailure, Classify(errValidation).Outcome())
	require.Equal(t, "Document failed validation", Classify(errValidation).Message())
	require.True(t, OutcomeDuplicate.Counted())
	require.False(t, OutcomeFailure.Counted())
}
