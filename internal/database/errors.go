package database

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrFailedJobNotFound = errors.New("failed job not found")
	// ErrJobTerminal is returned when a status transition targets a completed or failed job
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrFailedJobConflict is returned when the failure list changed since it was loaded
	ErrFailedJobConflict = errors.New("failed records changed concurrently")
	// ErrDuplicateKey marks a write rejected by a uniqueness constraint
	ErrDuplicateKey = errors.New("duplicate key")
)

// IsDuplicateKey reports whether err was caused by a uniqueness violation,
// either wrapped as ErrDuplicateKey or straight from the driver (E11000)
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDuplicateKey) || mongo.IsDuplicateKeyError(err)
}

func wrapDuplicate(err error) error {
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}
