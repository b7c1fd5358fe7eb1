package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"sync"
	"time"

	"github.com/dershov/screenassist/internal/config"
	"github.com/dershov/screenassist/internal/domain"
)

// DisplaySource captures an X11 display through ffmpeg. It is the
// production implementation of Source; a refused or unreachable display
// surfaces domain.ErrCaptureDeclined so the caller falls back to the
// not-sharing state.
type DisplaySource struct {
	ffmpegPath string
	display    string
	width      int
	height     int
	probeEvery time.Duration
}

func NewDisplaySource(cfg *config.Config) *DisplaySource {
	return &DisplaySource{
		ffmpegPath: cfg.FFmpegPath,
		display:    cfg.Display,
		width:      cfg.CaptureWidth,
		height:     cfg.CaptureHeight,
		probeEvery: 5 * time.Second,
	}
}

func (s *DisplaySource) Start(ctx context.Context) (Stream, error) {
	// One-shot probe grab; failure means the environment refused the
	// capture (missing display, denied access).
	if err := s.probe(ctx); err != nil {
		return nil, domain.ErrCaptureDeclined
	}

	ds := &displayStream{
		ffmpegPath: s.ffmpegPath,
		display:    s.display,
		width:      s.width,
		height:     s.height,
		done:       make(chan struct{}),
	}
	go ds.watch(s.probeEvery)
	return ds, nil
}

func (s *DisplaySource) probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "x11grab",
		"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
		"-i", s.display,
		"-frames:v", "1",
		"-f", "null", "-",
	)
	return cmd.Run()
}

type displayStream struct {
	ffmpegPath string
	display    string
	width      int
	height     int

	done      chan struct{}
	closeOnce sync.Once
}

func (d *displayStream) Frame(ctx context.Context) (image.Image, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "x11grab",
		"-video_size", fmt.Sprintf("%dx%d", d.width, d.height),
		"-i", d.display,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "png", "pipe:1",
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("grab display frame: %w", err)
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decode display frame: %w", err)
	}
	return img, nil
}

func (d *displayStream) Bounds() (int, int) {
	return d.width, d.height
}

func (d *displayStream) Done() <-chan struct{} {
	return d.done
}

func (d *displayStream) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// watch polls the display so a disappearing environment (closed X
// session, revoked access) terminates the stream like a local Close.
func (d *displayStream) watch(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			cmd := exec.CommandContext(ctx, d.ffmpegPath,
				"-hide_banner", "-loglevel", "error",
				"-f", "x11grab",
				"-video_size", fmt.Sprintf("%dx%d", d.width, d.height),
				"-i", d.display,
				"-frames:v", "1",
				"-f", "null", "-",
			)
			err := cmd.Run()
			cancel()
			if err != nil {
				d.Close()
				return
			}
		}
	}
}
