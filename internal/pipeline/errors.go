package pipeline

import "errors"

var (
	// ErrSourceOpen wraps any failure to open the video source.
	ErrSourceOpen = errors.New("cannot open video source")

	// ErrAlreadyStarted is returned by Start on a running pipeline.
	ErrAlreadyStarted = errors.New("pipeline already started")

	// ErrStopped is returned by Start after Stop; pipelines run once.
	ErrStopped = errors.New("pipeline stopped")

	// errNilFrame marks a source that returned neither a frame nor an error.
	errNilFrame = errors.New("source returned nil frame")
)
