package domain

import "errors"

var (
	// ErrInvalidDuration indicates a non-positive timeout.
	ErrInvalidDuration = errors.New("duration must be greater than zero")

	// ErrNoCountdownOverlays indicates an empty countdown overlay list.
	ErrNoCountdownOverlays = errors.New("at least one countdown overlay is required")

	// ErrCaptureTimeout indicates the camera did not deliver a still in time.
	ErrCaptureTimeout = errors.New("timed out waiting for snapshot frame")

	// ErrEmptyFrame indicates the camera delivered no pixels.
	ErrEmptyFrame = errors.New("empty frame")
)
