// Package encoder writes annotated frames to a video file through ffmpeg
// and shows them in an ffplay preview window.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bdougie/motionvec/internal/extractor"
)

// ErrUnknownCodec is returned for FourCC codes without an ffmpeg mapping.
var ErrUnknownCodec = errors.New("unknown codec")

// codecArgs maps a FourCC code to ffmpeg output options.
var codecArgs = map[string][]string{
	"XVID": {"-c:v", "mpeg4", "-vtag", "XVID", "-q:v", "3", "-pix_fmt", "yuv420p"},
	"MP4V": {"-c:v", "mpeg4", "-q:v", "3", "-pix_fmt", "yuv420p"},
	"MJPG": {"-c:v", "mjpeg", "-q:v", "3", "-pix_fmt", "yuvj420p"},
	"H264": {"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p"},
	"AVC1": {"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p", "-tag:v", "avc1"},
}

// CodecArgs returns the ffmpeg options for a FourCC code.
func CodecArgs(fourcc string) ([]string, error) {
	args, ok := codecArgs[strings.ToUpper(strings.TrimSpace(fourcc))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, fourcc)
	}
	return append([]string(nil), args...), nil
}

// EncodeArgs builds the ffmpeg command line that reads raw RGBA frames from
// stdin and writes them to output.
func EncodeArgs(output string, info extractor.VideoInfo, fourcc string) ([]string, error) {
	codec, err := CodecArgs(fourcc)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.FormatFloat(info.FPS, 'f', -1, 64),
		"-i", "-",
		"-an",
	}
	args = append(args, codec...)
	return append(args, output), nil
}

// pipe writes raw frames to a subprocess's stdin.
type pipe struct {
	w      io.WriteCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	width  int
	height int
	frames int
}

func startPipe(ctx context.Context, binary string, args []string, width, height int) (*pipe, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdin pipe: %w", binary, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	return &pipe{w: stdin, cmd: cmd, stderr: &stderr, width: width, height: height}, nil
}

// writeFrame writes the frame's rows. It returns once every byte was handed
// to the pipe, so the caller may reuse pix afterwards.
func (p *pipe) writeFrame(pix []uint8, stride int, bounds image.Rectangle) error {
	if bounds.Dx() != p.width || bounds.Dy() != p.height {
		return fmt.Errorf("frame %dx%d does not match output %dx%d", bounds.Dx(), bounds.Dy(), p.width, p.height)
	}
	row := p.width * 4
	if stride == row {
		if _, err := p.w.Write(pix[:row*p.height]); err != nil {
			return err
		}
	} else {
		for y := 0; y < p.height; y++ {
			off := y * stride
			if _, err := p.w.Write(pix[off : off+row]); err != nil {
				return err
			}
		}
	}
	p.frames++
	return nil
}

func (p *pipe) close() error {
	closeErr := p.w.Close()
	if p.cmd == nil {
		return closeErr
	}
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(p.stderr.String()))
	}
	return closeErr
}

// Encoder is a frame sink backed by an ffmpeg process.
type Encoder struct {
	pipe *pipe
	path string
}

// NewEncoder starts ffmpeg writing to path with the given FourCC codec.
func NewEncoder(ctx context.Context, binary, path string, info extractor.VideoInfo, fourcc string) (*Encoder, error) {
	args, err := EncodeArgs(path, info, fourcc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	p, err := startPipe(ctx, binary, args, info.Width, info.Height)
	if err != nil {
		return nil, err
	}
	return &Encoder{pipe: p, path: path}, nil
}

// newWriterEncoder writes raw frames to w instead of ffmpeg.
func newWriterEncoder(w io.WriteCloser, width, height int) *Encoder {
	return &Encoder{pipe: &pipe{w: w, width: width, height: height}}
}

// WriteFrame encodes img. img is not retained.
func (e *Encoder) WriteFrame(img *image.RGBA) error {
	if err := e.pipe.writeFrame(img.Pix, img.Stride, img.Bounds()); err != nil {
		return fmt.Errorf("encode frame %d: %w", e.pipe.frames+1, err)
	}
	return nil
}

// Frames returns the number of frames written.
func (e *Encoder) Frames() int {
	return e.pipe.frames
}

// Close finishes the output file.
func (e *Encoder) Close() error {
	if err := e.pipe.close(); err != nil {
		return fmt.Errorf("finish %s: %w", e.path, err)
	}
	return nil
}
