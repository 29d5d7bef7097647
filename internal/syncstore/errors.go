package syncstore

import "errors"

var (
	// ErrNotFound indicates the entity is absent from the local collection.
	ErrNotFound = errors.New("syncstore: entity not in local collection")
	// ErrMutationFailed indicates a remote write was rejected after the
	// optimistic change was rolled back.
	ErrMutationFailed = errors.New("syncstore: remote mutation failed")
	// ErrFetchFailed indicates a remote read failed; local data is retained.
	ErrFetchFailed = errors.New("syncstore: remote fetch failed")
	// ErrClosed indicates the store has been disposed.
	ErrClosed = errors.New("syncstore: store closed")
)
