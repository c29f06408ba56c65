// Package overlay draws motion vectors onto decoded video frames.
//
// The renderer owns a single frame buffer. A FrameSource fills it, the
// vectors of that frame are painted over it and the FrameSink consumes it
// before the next frame is read. Previews only ever receive the buffer for
// reading and must copy what they keep.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/bdougie/motionvec/internal/vectors"
)

// FrameSource yields decoded frames in order. ReadFrame returns io.EOF when
// no frames are left.
type FrameSource interface {
	ReadFrame(dst *image.RGBA) error
}

// FrameSink consumes annotated frames. WriteFrame must not retain img.
type FrameSink interface {
	WriteFrame(img *image.RGBA) error
}

// Previewer displays annotated frames. Show must not retain or modify img.
type Previewer interface {
	Show(img image.Image) error
}

// Options configure a Renderer.
type Options struct {
	// LineThickness is the segment width in pixels. Zero selects 2.
	LineThickness float64
	// AllFrames keeps reading past the table's last frame until the source
	// is exhausted.
	AllFrames bool
	// Preview, when set, is shown every annotated frame. Preview failures
	// disable the preview but do not stop rendering.
	Preview Previewer
	// Progress, when set, is called after every written frame.
	Progress func(frame int)
	Logger   *slog.Logger
}

// Stats summarise a rendering pass.
type Stats struct {
	Frames  int
	Vectors int
}

// Renderer paints vectors over frames of a fixed size.
type Renderer struct {
	opts    Options
	frame   *image.RGBA
	painter *Painter
	logger  *slog.Logger
}

// NewRenderer creates a renderer for width x height frames.
func NewRenderer(width, height int, opts Options) *Renderer {
	if opts.LineThickness <= 0 {
		opts.LineThickness = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		opts:    opts,
		frame:   image.NewRGBA(image.Rect(0, 0, width, height)),
		painter: NewPainter(opts.LineThickness),
		logger:  logger,
	}
}

// Render annotates frames 1 through table.MaxFrame(), or every frame of the
// source when AllFrames is set. Running out of source frames ends rendering
// without an error.
func (r *Renderer) Render(ctx context.Context, table *vectors.Table, source FrameSource, sink FrameSink) (Stats, error) {
	var stats Stats
	index := table.FrameIndex()
	last := table.MaxFrame()
	preview := r.opts.Preview

	for frame := 1; r.opts.AllFrames || frame <= last; frame++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		r.logger.Debug("loading frame", "frame", frame)
		if err := source.ReadFrame(r.frame); err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Info("no more images in video", "frame", frame, "written", stats.Frames)
				break
			}
			return stats, fmt.Errorf("read frame %d: %w", frame, err)
		}

		rows := index[frame]
		if len(rows) == 0 && frame <= last {
			r.logger.Info("no vector info for frame", "frame", frame)
		}
		for _, row := range rows {
			v := table.Rows[row]
			x1, y1 := int(v.SrcX), int(v.SrcY)
			x2, y2 := int(v.DstX), int(v.DstY)
			r.painter.Line(r.frame, x1, y1, x2, y2, VectorColor(x2-x1, y2-y1))
		}
		stats.Vectors += len(rows)

		if preview != nil {
			if err := preview.Show(r.frame); err != nil {
				r.logger.Warn("preview stopped", "frame", frame, tint.Err(err))
				preview = nil
			}
		}

		if err := sink.WriteFrame(r.frame); err != nil {
			return stats, fmt.Errorf("write frame %d: %w", frame, err)
		}
		stats.Frames++
		if r.opts.Progress != nil {
			r.opts.Progress(frame)
		}
	}

	return stats, nil
}
