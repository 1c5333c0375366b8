package processor

import (
	"fmt"

	"bulkload/internal/database"
)

// Outcome classifies the result of writing one record
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailure   Outcome = "failure"
)

// Counted reports whether the outcome counts towards the inserted total.
// A duplicate means the record is already stored.
func (o Outcome) Counted() bool {
	return o == OutcomeSuccess || o == OutcomeDuplicate
}

type StatusError interface {
	Error() string
	Outcome() Outcome
	Message() string
}

type statusError struct {
	outcome Outcome
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.outcome, e.message)
}

func (e *statusError) Outcome() Outcome {
	return e.outcome
}

func (e *statusError) Message() string {
	return e.message
}

func NewSuccessError() StatusError {
	return &statusError{outcome: OutcomeSuccess}
}

func NewDuplicateError(err error) StatusError {
	return &statusError{outcome: OutcomeDuplicate, message: err.Error()}
}

func NewFailureError(err error) StatusError {
	return &statusError{outcome: OutcomeFailure, message: err.Error()}
}

// Classify maps the error of a single-record write to its outcome
func Classify(err error) StatusError {
	switch {
	case err == nil:
		return NewSuccessError()
	case database.IsDuplicateKey(err):
		return NewDuplicateError(err)
	default:
		return NewFailureError(err)
	}
}
