package session

import "errors"

// Synchronous misuse errors. These signal caller mistakes in the session
// lifecycle and are never retried.
var (
	// ErrAlreadyRecording is returned when a start request hits a channel
	// that already has an active session.
	ErrAlreadyRecording = errors.New("channel is already recording")

	// ErrNotRecording is returned when a stop or frame arrives for a
	// channel with no active recording.
	ErrNotRecording = errors.New("channel is not recording")

	// ErrAlreadyStopping is returned to the losers of a concurrent stop
	// race. Exactly one stop wins and runs the pipeline.
	ErrAlreadyStopping = errors.New("session is already stopping")
)
