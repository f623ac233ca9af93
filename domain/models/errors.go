package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a dataset cannot be resolved by any source.
	ErrNotFound = errors.New("dataset not found")

	// ErrNoActiveSession is returned when a question is asked before a session started.
	ErrNoActiveSession = errors.New("no active analysis session")

	// ErrSessionBusy is returned when a session already has a question in flight.
	ErrSessionBusy = errors.New("analysis session is busy")

	// ErrRemoteService marks failures of the hosted analysis service.
	ErrRemoteService = errors.New("remote service error")

	// ErrMissingCredential is returned when the analysis service has no API key.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrSchemaMismatch is recorded when a metric column is absent.
	ErrSchemaMismatch = errors.New("column not found")

	// ErrEmptyQuestion is returned for blank analysis questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

// RemoteError describes a failed call to the analysis service.
type RemoteError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteService
}
