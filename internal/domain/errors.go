package domain

import "errors"

var (
	// ErrMalformed marks an inbound payload that could not be decoded into a record.
	ErrMalformed = errors.New("malformed payload")

	// ErrPersist marks a failed append to the event store.
	ErrPersist = errors.New("persist failed")

	// ErrTransport marks a connection level failure.
	ErrTransport = errors.New("transport failure")

	// ErrProtocolViolation marks a message received out of protocol order,
	// such as an incremental message before the snapshot.
	ErrProtocolViolation = errors.New("protocol violation")
)
