package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"github.com/dershov/screenassist/internal/config"
	"github.com/dershov/screenassist/internal/domain"
)

// Sampler extracts a single still image from a live stream for analysis
// requests. Frames are compressed to JPEG at the stream's native
// resolution.
type Sampler struct {
	quality int
}

func NewSampler() *Sampler {
	return &Sampler{quality: config.FrameQuality}
}

func (s *Sampler) Capture(ctx context.Context, stream Stream) (domain.StillImage, error) {
	if stream == nil {
		return domain.StillImage{}, domain.ErrNoActiveStream
	}

	w, h := stream.Bounds()
	if w == 0 || h == 0 {
		return domain.StillImage{}, domain.ErrStreamNotReady
	}

	frame, err := stream.Frame(ctx)
	if err != nil {
		return domain.StillImage{}, fmt.Errorf("grab frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: s.quality}); err != nil {
		return domain.StillImage{}, fmt.Errorf("encode frame: %w", err)
	}

	return domain.StillImage{MIMEType: "image/jpeg", Data: buf.Bytes()}, nil
}
