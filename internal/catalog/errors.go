package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by Action and Close when no session is open.
	ErrSessionClosed = errors.New("catalog session is not open")
	// ErrSessionOpen is returned by Open when a session is already open.
	ErrSessionOpen = errors.New("catalog session is already open")
	// ErrSessionBusy is returned when another call is in flight on the session.
	ErrSessionBusy = errors.New("catalog session has a call in flight")
)

// BatchError reports the batch that aborted an action.
type BatchError struct {
	Verb  Verb
	Batch Batch
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s batch %d (items %d-%d): %v",
		e.Verb, e.Batch.Index, e.Batch.Start, e.Batch.End-1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
