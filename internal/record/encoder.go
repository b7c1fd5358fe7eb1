package record

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/dershov/screenassist/internal/capture"
	"github.com/dershov/screenassist/internal/config"
)

const chunkSize = 32 * 1024

// FFmpegEncoder encodes live stream frames through an ffmpeg child
// process. Frames are pumped as raw RGBA into stdin and encoded output is
// read back from stdout in chunks.
type FFmpegEncoder struct {
	ffmpegPath string
	framerate  int
}

func NewFFmpegEncoder(cfg *config.Config) *FFmpegEncoder {
	return &FFmpegEncoder{
		ffmpegPath: cfg.FFmpegPath,
		framerate:  cfg.Framerate,
	}
}

func (e *FFmpegEncoder) Supports(mimeType string) bool {
	switch mimeType {
	case "video/webm;codecs=vp9", "video/webm":
		return true
	default:
		// mp4 needs a seekable output, which a pipe is not.
		return false
	}
}

func (e *FFmpegEncoder) Encode(stream capture.Stream, mimeType string) (Encoding, error) {
	width, height := stream.Bounds()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("stream has no dimensions")
	}

	codec := "libvpx"
	if mimeType == "video/webm;codecs=vp9" {
		codec = "libvpx-vp9"
	}

	cmd := exec.Command(e.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", e.framerate),
		"-i", "pipe:0",
		"-c:v", codec,
		"-deadline", "realtime",
		"-f", "webm", "pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &ffmpegEncoding{
		cmd:    cmd,
		stdin:  stdin,
		chunks: make(chan []byte),
		cancel: cancel,
	}

	go run.pump(ctx, stream, width, height, e.framerate)
	go run.read(stdout)
	return run, nil
}

type ffmpegEncoding struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	chunks chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

func (f *ffmpegEncoding) Chunks() <-chan []byte {
	return f.chunks
}

// Finalize stops the frame pump and closes stdin, letting ffmpeg flush
// its remaining output. Chunks closes once the flush reaches EOF.
func (f *ffmpegEncoding) Finalize() error {
	f.once.Do(func() {
		f.cancel()
		f.stdin.Close()
	})
	return nil
}

// pump feeds raw frames to ffmpeg at the configured framerate until
// finalized or the stream ends.
func (f *ffmpegEncoding) pump(ctx context.Context, stream capture.Stream, width, height, framerate int) {
	interval := time.Second / time.Duration(framerate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := image.NewRGBA(image.Rect(0, 0, width, height))

	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.Done():
			f.Finalize()
			return
		case <-ticker.C:
			frame, err := stream.Frame(ctx)
			if err != nil {
				continue
			}
			draw.Draw(buf, buf.Bounds(), frame, image.Point{}, draw.Src)
			if _, err := f.stdin.Write(buf.Pix); err != nil {
				return
			}
		}
	}
}

// read drains encoded output into the chunk channel in arrival order and
// closes it after the process exits.
func (f *ffmpegEncoding) read(stdout io.Reader) {
	defer close(f.chunks)
	defer f.cmd.Wait()

	for {
		buf := make([]byte, chunkSize)
		n, err := stdout.Read(buf)
		if n > 0 {
			f.chunks <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}
