package domain

import "errors"

var (
	ErrCaptureDeclined    = errors.New("capture declined by environment")
	ErrNoActiveStream     = errors.New("no active stream")
	ErrStreamNotReady     = errors.New("stream has no dimensions yet")
	ErrMissingCredential  = errors.New("missing API credential")
	ErrAlreadyRecording   = errors.New("recording already in progress")
	ErrNotRecording       = errors.New("no recording in progress")
	ErrSessionNotFound    = errors.New("session not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
