// Package extractor reads video metadata with ffprobe and decodes frames
// with ffmpeg as raw RGBA.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Decoder yields decoded frames in presentation order.
type Decoder struct {
	r      io.Reader
	info   VideoInfo
	frames int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	done   bool
}

// NewDecoder starts ffmpeg decoding the video at path to raw RGBA frames of
// the probed size. The process is killed when ctx is cancelled.
func NewDecoder(ctx context.Context, binary, path string, info VideoInfo) (*Decoder, error) {
	// Check if video file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("video file does not exist at path: '%s'", path)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrNoVideo, info.Width, info.Height)
	}
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:v:0",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg decoder: %w", err)
	}

	d := NewReaderDecoder(stdout, info)
	d.cmd = cmd
	d.stdout = stdout
	d.stderr = &stderr
	return d, nil
}

// NewReaderDecoder decodes raw RGBA frames of the given size from r.
func NewReaderDecoder(r io.Reader, info VideoInfo) *Decoder {
	return &Decoder{r: r, info: info}
}

// Info returns the metadata the decoder was created with.
func (d *Decoder) Info() VideoInfo {
	return d.info
}

// Frames returns the number of frames read so far.
func (d *Decoder) Frames() int {
	return d.frames
}

// ReadFrame fills dst with the next frame. dst must match the video size.
// It returns io.EOF once the video is exhausted; a trailing partial frame
// counts as exhaustion.
func (d *Decoder) ReadFrame(dst *image.RGBA) error {
	if d.done {
		return io.EOF
	}
	b := dst.Bounds()
	if b.Dx() != d.info.Width || b.Dy() != d.info.Height || dst.Stride != d.info.Width*4 {
		return fmt.Errorf("frame buffer %dx%d does not match video %dx%d", b.Dx(), b.Dy(), d.info.Width, d.info.Height)
	}

	_, err := io.ReadFull(d.r, dst.Pix[:d.info.FrameSize()])
	switch {
	case err == nil:
		d.frames++
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		d.done = true
		if werr := d.wait(); werr != nil {
			return werr
		}
		return io.EOF
	default:
		return fmt.Errorf("read frame %d: %w", d.frames+1, err)
	}
}

// wait reaps ffmpeg after its output ended and reports decode failures.
func (d *Decoder) wait() error {
	if d.cmd == nil {
		return nil
	}
	cmd := d.cmd
	d.cmd = nil
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg decode failed: %w: %s", err, strings.TrimSpace(d.stderr.String()))
	}
	return nil
}

// Close stops the decoder. Stopping before the end of the video is not an error.
func (d *Decoder) Close() error {
	if d.cmd == nil {
		return nil
	}
	cmd := d.cmd
	d.cmd = nil
	d.done = true
	if d.stdout != nil {
		d.stdout.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
	return nil
}
