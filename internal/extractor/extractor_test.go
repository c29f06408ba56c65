package extractor

import (
	"bytes"
	"context"
	"image"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameRate(t *testing.T) {
	cases := map[string]struct {
		want float64
		ok   bool
	}{
		"30000/1001": {30000.0 / 1001.0, true},
		"25/1":       {25, true},
		"24":         {24, true},
		" 60 ":       {60, true},
		"0/0":        {0, false},
		"0/1":        {0, false},
		"":           {0, false},
		"nan":        {0, false},
		"abc/1":      {0, false},
		"-25/1":      {0, false},
	}
	for in, tc := range cases {
		got, ok := ParseFrameRate(in)
		assert.Equal(t, tc.ok, ok, in)
		assert.InDelta(t, tc.want, got, 1e-9, in)
	}
}

func TestParseProbe(t *testing.T) {
	output := []byte(`{"streams":[
		{"codec_type":"audio","codec_name":"aac"},
		{"codec_type":"video","codec_name":"h264","width":640,"height":480,"r_frame_rate":"30000/1001","avg_frame_rate":"0/0"}
	]}`)

	info, err := parseProbe(output, 30)
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 480, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.False(t, info.FPSDefaulted)
	assert.Equal(t, 640*480*4, info.FrameSize())
}

func TestParseProbeFallsBackToDefaultFPS(t *testing.T) {
	output := []byte(`{"streams":[{"codec_type":"video","width":320,"height":240,"r_frame_rate":"0/0","avg_frame_rate":""}]}`)

	info, err := parseProbe(output, 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, info.FPS)
	assert.True(t, info.FPSDefaulted)
	assert.False(t, math.IsNaN(info.FPS))

	output = []byte(`{"streams":[{"codec_type":"video","width":320,"height":240,"r_frame_rate":"0/0","avg_frame_rate":"15/1"}]}`)
	info, err = parseProbe(output, 30)
	require.NoError(t, err)
	assert.Equal(t, 15.0, info.FPS)
	assert.False(t, info.FPSDefaulted)
}

func TestParseProbeRequiresResolution(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}]}`), 30)
	assert.ErrorIs(t, err, ErrNoVideo)

	_, err = parseProbe([]byte(`{"streams":[{"codec_type":"video","width":0,"height":240}]}`), 30)
	assert.ErrorIs(t, err, ErrNoVideo)

	_, err = parseProbe([]byte(`not json`), 30)
	assert.Error(t, err)
}

func TestReaderDecoderStopsAtPartialFrame(t *testing.T) {
	info := VideoInfo{Width: 4, Height: 2, FPS: 30}
	raw := make([]byte, info.FrameSize()*2+info.FrameSize()/2)
	for i := range raw {
		raw[i] = byte(i / info.FrameSize())
	}

	dec := NewReaderDecoder(bytes.NewReader(raw), info)
	frame := image.NewRGBA(image.Rect(0, 0, 4, 2))

	require.NoError(t, dec.ReadFrame(frame))
	assert.Equal(t, byte(0), frame.Pix[0])
	require.NoError(t, dec.ReadFrame(frame))
	assert.Equal(t, byte(1), frame.Pix[len(frame.Pix)-1])

	assert.ErrorIs(t, dec.ReadFrame(frame), io.EOF)
	assert.ErrorIs(t, dec.ReadFrame(frame), io.EOF)
	assert.Equal(t, 2, dec.Frames())
	assert.NoError(t, dec.Close())
}

func TestReaderDecoderRejectsWrongBuffer(t *testing.T) {
	info := VideoInfo{Width: 4, Height: 2}
	dec := NewReaderDecoder(bytes.NewReader(make([]byte, info.FrameSize())), info)
	assert.Error(t, dec.ReadFrame(image.NewRGBA(image.Rect(0, 0, 2, 2))))
}

func TestNewDecoderMissingFile(t *testing.T) {
	_, err := NewDecoder(context.Background(), "ffmpeg", filepath.Join(t.TempDir(), "missing.avi"), VideoInfo{Width: 4, Height: 4})
	assert.Error(t, err)
}

func TestProbeRealFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	_, err := Probe(context.Background(), "ffprobe", filepath.Join(t.TempDir(), "missing.avi"), 30)
	assert.Error(t, err)
}
