package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"bulkload/internal/model"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsDuplicateKey(t *testing.T) {
	driverDup := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error collection: stores"}},
	}
	otherWrite := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 121, Message: "Document failed validation"}},
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: ErrDuplicateKey, want: true},
		{name: "wrapped sentinel", err: fmt.Errorf("insert: %w", ErrDuplicateKey), want: true},
		{name: "driver duplicate", err: driverDup, want: true},
		{name: "driver validation", err: otherWrite, want: false},
		{name: "plain", err: errors.New("connection reset"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsDuplicateKey(tt.err))
		})
	}
}

func TestWrapDuplicate(t *testing.T) {
	driverDup := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}},
	}

	wrapped := wrapDuplicate(driverDup)
	require.ErrorIs(t, wrapped, ErrDuplicateKey)
	require.Contains(t, wrapped.Error(), "E11000")

	plain := errors.New("timeout")
	require.Equal(t, plain, wrapDuplicate(plain))
	require.NoError(t, wrapDuplicate(nil))
}

func TestJobUpdateFields(t *testing.T) {
	now := time.Now()
	fields := jobUpdateFields(model.JobUpdate{
		Status:       model.Ptr(model.StatusCompleted),
		SuccessCount: model.Ptr(997),
		FailureCount: model.Ptr(3),
		CompletedAt:  &now,
	})

	require.Len(t, fields, 4)
	require.Equal(t, model.StatusCompleted, fields["status"])
	require.Equal(t, 997, fields["success_count"])
	require.Equal(t, 3, fields["failure_count"])
	require.Equal(t, now, fields["completed_at"])

	require.Empty(t, jobUpdateFields(model.JobUpdate{}))
}
