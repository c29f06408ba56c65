package overlay

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/motionvec/internal/models"
	"github.com/bdougie/motionvec/internal/vectors"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var gray = color.RGBA{R: 40, G: 40, B: 40, A: 255}

// fakeSource yields n uniformly gray frames.
type fakeSource struct {
	n    int
	read int
	err  error
}

func (s *fakeSource) ReadFrame(dst *image.RGBA) error {
	if s.err != nil && s.read == s.n {
		return s.err
	}
	if s.read >= s.n {
		return io.EOF
	}
	s.read++
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = gray.R, gray.G, gray.B, gray.A
	}
	return nil
}

// recordingSink keeps a copy of every frame it receives.
type recordingSink struct {
	frames []*image.RGBA
	err    error
}

func (s *recordingSink) WriteFrame(img *image.RGBA) error {
	if s.err != nil {
		return s.err
	}
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	s.frames = append(s.frames, cp)
	return nil
}

type failingPreview struct {
	calls int
}

func (p *failingPreview) Show(image.Image) error {
	p.calls++
	return errors.New("window closed")
}

type rgbaPreview struct{}

func (rgbaPreview) Show(img image.Image) error {
	if _, ok := img.(*image.RGBA); !ok {
		return errors.New("unexpected image type")
	}
	return nil
}

func tableWith(vs ...models.Vector) *vectors.Table {
	t := vectors.NewTable()
	for _, v := range vs {
		t.Append(v)
	}
	return t
}

func horizontal(frame int) models.Vector {
	return models.Vector{Frame: frame, SrcX: 4, SrcY: 10, DstX: 20.9, DstY: 10.4, BlockW: 16, BlockH: 16}
}

func TestVectorColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 127, G: 127, B: 255, A: 255}, VectorColor(0, 0))
	assert.Equal(t, color.RGBA{R: 117, G: 142, B: 255, A: 255}, VectorColor(3, -2))
	assert.Equal(t, color.RGBA{R: 0, G: 255, B: 255, A: 255}, VectorColor(40, -40))
	assert.Equal(t, color.RGBA{R: 255, G: 0, B: 255, A: 255}, VectorColor(-26, 26))
}

func TestPainterDrawsThickLine(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	c := VectorColor(16, 0)
	NewPainter(2).Line(img, 4, 10, 20, 10, c)

	for x := 4; x <= 20; x++ {
		assert.Equal(t, c, img.RGBAAt(x, 10), "x=%d", x)
	}
	// Anti-aliased edges above and below.
	edge := img.RGBAAt(12, 9)
	assert.NotZero(t, edge.A)
	assert.Less(t, edge.A, uint8(255))
	assert.Zero(t, img.RGBAAt(12, 13).A)
	assert.Zero(t, img.RGBAAt(25, 10).A)
}

func TestPainterZeroLengthAndClipping(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	c := VectorColor(0, 0)
	p := NewPainter(2)

	p.Line(img, 3, 3, 3, 3, c)
	assert.Equal(t, c, img.RGBAAt(3, 3))

	assert.NotPanics(t, func() {
		p.Line(img, -20, -20, -10, -5, c)
		p.Line(img, 100, 100, 200, 150, c)
		p.Line(img, -5, 4, 12, 4, c)
	})
	assert.Equal(t, c, img.RGBAAt(0, 4))
	assert.Equal(t, c, img.RGBAAt(7, 4))
}

func TestRenderStopsWhenVideoIsShort(t *testing.T) {
	table := tableWith(horizontal(1), horizontal(10))
	source := &fakeSource{n: 4}
	sink := &recordingSink{}

	stats, err := NewRenderer(32, 32, Options{Logger: discard}).Render(context.Background(), table, source, sink)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Frames)
	assert.Equal(t, 1, stats.Vectors)
	assert.Len(t, sink.frames, 4)
}

func TestRenderStopsAtLastTableFrame(t *testing.T) {
	table := tableWith(horizontal(2))
	sink := &recordingSink{}

	stats, err := NewRenderer(32, 32, Options{Logger: discard}).Render(context.Background(), table, &fakeSource{n: 6}, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Frames)

	// Frame 1 has no vectors and is written unchanged.
	assert.Equal(t, gray, sink.frames[0].RGBAAt(12, 10))
	assert.Equal(t, VectorColor(16, 0), sink.frames[1].RGBAAt(12, 10))
}

func TestRenderAllFrames(t *testing.T) {
	table := tableWith(horizontal(1))
	sink := &recordingSink{}

	stats, err := NewRenderer(32, 32, Options{AllFrames: true, Logger: discard}).Render(context.Background(), table, &fakeSource{n: 5}, sink)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Frames)
	assert.Equal(t, gray, sink.frames[4].RGBAAt(12, 10))
}

func TestRenderEmptyTable(t *testing.T) {
	stats, err := NewRenderer(8, 8, Options{Logger: discard}).Render(context.Background(), vectors.NewTable(), &fakeSource{n: 3}, &recordingSink{})
	require.NoError(t, err)
	assert.Zero(t, stats.Frames)
}

func TestRenderPreviewFailureKeepsOutput(t *testing.T) {
	table := tableWith(horizontal(1), horizontal(2), horizontal(3))
	preview := &failingPreview{}
	sink := &recordingSink{}

	var progress []int
	stats, err := NewRenderer(32, 32, Options{
		Preview:  preview,
		Progress: func(frame int) { progress = append(progress, frame) },
		Logger:   discard,
	}).Render(context.Background(), table, &fakeSource{n: 3}, sink)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Frames)
	assert.Equal(t, 1, preview.calls)
	assert.Equal(t, []int{1, 2, 3}, progress)

	_, err = NewRenderer(32, 32, Options{Preview: rgbaPreview{}, Logger: discard}).Render(context.Background(), table, &fakeSource{n: 3}, &recordingSink{})
	require.NoError(t, err)
}

func TestRenderPropagatesErrors(t *testing.T) {
	table := tableWith(horizontal(3))
	boom := errors.New("boom")

	_, err := NewRenderer(8, 8, Options{Logger: discard}).Render(context.Background(), table, &fakeSource{n: 1, err: boom}, &recordingSink{})
	assert.ErrorIs(t, err, boom)

	_, err = NewRenderer(8, 8, Options{Logger: discard}).Render(context.Background(), table, &fakeSource{n: 3}, &recordingSink{err: boom})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRenderer(8, 8, Options{Logger: discard}).Render(ctx, table, &fakeSource{n: 3}, &recordingSink{})
	assert.ErrorIs(t, err, context.Canceled)
}
