package encoder

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/bdougie/motionvec/internal/extractor"
)

// Preview shows frames in an ffplay window, downscaled to at most maxWidth.
type Preview struct {
	pipe   *pipe
	width  int
	height int
}

// PreviewSize returns the window size for a video, keeping its aspect ratio.
// A non-positive maxWidth keeps the original size.
func PreviewSize(info extractor.VideoInfo, maxWidth int) (int, int) {
	if maxWidth <= 0 || info.Width <= maxWidth {
		return info.Width, info.Height
	}
	h := float64(info.Height) * float64(maxWidth) / float64(info.Width)
	return maxWidth, int(math.Max(1, math.Floor(h+0.5)))
}

// PreviewArgs builds the ffplay command line for raw RGBA frames on stdin.
func PreviewArgs(width, height int, fps float64) []string {
	return []string{
		"-loglevel", "error",
		"-window_title", "motionoverlay",
		"-autoexit",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
	}
}

// NewPreview starts ffplay.
func NewPreview(ctx context.Context, binary string, info extractor.VideoInfo, maxWidth int) (*Preview, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffplay"
	}
	w, h := PreviewSize(info, maxWidth)
	p, err := startPipe(ctx, binary, PreviewArgs(w, h, info.FPS), w, h)
	if err != nil {
		return nil, err
	}
	return &Preview{pipe: p, width: w, height: h}, nil
}

// newWriterPreview shows frames by writing them to w.
func newWriterPreview(w io.WriteCloser, width, height int) *Preview {
	return &Preview{pipe: &pipe{w: w, width: width, height: height}, width: width, height: height}
}

// Show displays a scaled copy of img. img is only read.
func (p *Preview) Show(img image.Image) error {
	var scaled *image.NRGBA
	if b := img.Bounds(); b.Dx() == p.width && b.Dy() == p.height {
		scaled = imaging.Clone(img)
	} else {
		scaled = imaging.Resize(img, p.width, p.height, imaging.Linear)
	}
	return p.pipe.writeFrame(scaled.Pix, scaled.Stride, scaled.Bounds())
}

// Close closes the window once ffplay has drained its input.
func (p *Preview) Close() error {
	return p.pipe.close()
}
