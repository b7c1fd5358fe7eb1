package capture

import (
	"context"
	"image"
)

// Stream is a handle to a live capture stream. It is exclusively owned by
// the source that produced it; consumers only read frames from it.
type Stream interface {
	// Frame returns the current video frame.
	Frame(ctx context.Context) (image.Image, error)

	// Bounds returns the negotiated stream dimensions. Zero values mean
	// the stream has not finished negotiating yet.
	Bounds() (width, height int)

	// Done is closed when the environment terminates the stream
	// unilaterally or the stream is closed locally.
	Done() <-chan struct{}

	// Close releases all underlying resources. Safe to call more than once.
	Close()
}

// Source owns live stream acquisition. Start surfaces
// domain.ErrCaptureDeclined when the environment refuses the capture;
// callers treat that as a non-fatal return to the not-sharing state.
type Source interface {
	Start(ctx context.Context) (Stream, error)
}
