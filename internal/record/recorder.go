package record

import (
	"context"
	"fmt"
	"sync"

	"github.com/dershov/screenassist/internal/capture"
	"github.com/dershov/screenassist/internal/config"
	"github.com/dershov/screenassist/internal/domain"
)

// Encoding is one active encoding run. Chunks delivers encoded data in
// arrival order and closes after the final flush triggered by Finalize.
type Encoding interface {
	Chunks() <-chan []byte

	// Finalize asks the encoder to flush any buffered data. The flush is
	// asynchronous; completion is observed through the Chunks channel
	// closing.
	Finalize() error
}

// Encoder creates encoding runs for live streams.
type Encoder interface {
	// Supports reports whether the encoder can produce the given MIME type.
	Supports(mimeType string) bool

	// Encode begins encoding the stream. An empty mimeType lets the
	// encoder pick its own default.
	Encode(stream capture.Stream, mimeType string) (Encoding, error)
}

type state int

const (
	stateIdle state = iota
	stateRecording
)

// Recorder accumulates encoded chunks for one live session. It cycles
// Idle -> Recording -> Idle; the chunk buffer is reset each time a new
// recording starts, so only the current cycle's chunks end up in the
// assembled media.
type Recorder struct {
	encoder Encoder

	mu        sync.Mutex
	state     state
	mimeType  string
	run       Encoding
	collected chan [][]byte
}

func NewRecorder(encoder Encoder) *Recorder {
	return &Recorder{encoder: encoder}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateRecording
}

// Start negotiates an encoding and begins collecting chunks. The first
// supported entry of the preference list wins; if none are supported the
// encoder negotiates with an empty hint.
func (r *Recorder) Start(stream capture.Stream) error {
	if stream == nil {
		return domain.ErrNoActiveStream
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateRecording {
		return domain.ErrAlreadyRecording
	}

	mimeType := ""
	for _, candidate := range config.MediaTypePreference {
		if r.encoder.Supports(candidate) {
			mimeType = candidate
			break
		}
	}

	run, err := r.encoder.Encode(stream, mimeType)
	if err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	r.mimeType = mimeType
	r.run = run
	r.collected = make(chan [][]byte, 1)
	r.state = stateRecording

	go collect(run.Chunks(), r.collected)
	return nil
}

// collect buffers chunks in arrival order and hands the buffer back once
// the encoding's channel closes. The buffer is local to the goroutine, so
// a cycle abandoned after a failed finalize can never leak late chunks
// into a later cycle. Zero-length chunks are discarded.
func collect(chunks <-chan []byte, collected chan<- [][]byte) {
	var buf [][]byte
	for chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		buf = append(buf, chunk)
	}
	collected <- buf
}

// Stop finalizes the encoder, waits for the flush, and assembles the
// accumulated chunks into one media object. No chunk delivered after the
// assembly belongs to the artifact. An empty buffer still yields a valid
// empty media object.
func (r *Recorder) Stop(ctx context.Context) (domain.Media, error) {
	r.mu.Lock()
	if r.state != stateRecording {
		r.mu.Unlock()
		return domain.Media{}, domain.ErrNotRecording
	}
	run := r.run
	collected := r.collected
	r.mu.Unlock()

	if err := run.Finalize(); err != nil {
		r.mu.Lock()
		r.state = stateIdle
		r.run = nil
		r.mu.Unlock()
		return domain.Media{}, fmt.Errorf("finalize encoder: %w", err)
	}

	var chunks [][]byte
	select {
	case chunks = <-collected:
	case <-ctx.Done():
		return domain.Media{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	data := make([]byte, 0, total)
	for _, chunk := range chunks {
		data = append(data, chunk...)
	}

	mimeType := r.mimeType
	if mimeType == "" {
		mimeType = config.DefaultMediaType
	}

	r.state = stateIdle
	r.run = nil

	return domain.Media{MIMEType: mimeType, Data: data}, nil
}
