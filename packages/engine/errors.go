package engine

import "errors"

var (
	// ErrProtocol is returned for messages that are not a well-formed get or
	// set. the client gets an error reply.
	ErrProtocol = errors.New("invalid command")

	// ErrSelfReference is returned for a set whose expression reads the cell
	// being set, directly or through a range
	ErrSelfReference = errors.New("self reference")

	// ErrEvaluation is returned for a set whose expression evaluated to an
	// error value
	ErrEvaluation = errors.New("evaluation failed")

	// ErrClosed is returned once the engine has been closed
	ErrClosed = errors.New("engine closed")
)
