package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/motionvec/internal/encoder"
	"github.com/bdougie/motionvec/internal/extractor"
	"github.com/bdougie/motionvec/internal/vectors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stderr.String(), err
}

func writeVectors(t *testing.T, dir string, frames int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("framenum,srcx,srcy,dstx,dsty,blockw,blockh\n")
	for f := 1; f <= frames; f++ {
		fmt.Fprintf(&b, "%d,8,8,%d,12,16,16\n", f, 8+f)
	}
	path := filepath.Join(dir, "vectors.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRequiredFlags(t *testing.T) {
	_, err := execute(t, "-i", "vectors.csv", "-o", "out.avi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video")
}

func TestRejectsUnknownCodecBeforeProbing(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "-f", filepath.Join(dir, "in.avi"), "-i", writeVectors(t, dir, 2), "-o", filepath.Join(dir, "out.avi"), "--codec", "WXYZ")
	assert.ErrorIs(t, err, encoder.ErrUnknownCodec)
}

func TestMissingVectorsFile(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "-f", filepath.Join(dir, "in.avi"), "-i", filepath.Join(dir, "missing.csv"), "-o", filepath.Join(dir, "out.avi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read vectors")
}

func TestOverlayStopsAtShortVideo(t *testing.T) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}

	ctx := context.Background()
	dir := t.TempDir()
	video := filepath.Join(dir, "in.avi")
	gen := exec.CommandContext(ctx, "ffmpeg", "-v", "error", "-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-frames:v", "5", "-c:v", "mpeg4", video)
	out, err := gen.CombinedOutput()
	require.NoError(t, err, string(out))

	output := filepath.Join(dir, "out.avi")
	stderr, err := execute(t, "-f", video, "-i", writeVectors(t, dir, 8), "-o", output, "-v")
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "no more images in video")

	info, err := extractor.Probe(ctx, "ffprobe", output, 30)
	require.NoError(t, err)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)

	dec, err := extractor.NewDecoder(ctx, "ffmpeg", output, info)
	require.NoError(t, err)
	defer dec.Close()
	frame := image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
	for dec.ReadFrame(frame) == nil {
	}
	assert.Equal(t, 5, dec.Frames())

	table, err := vectors.ReadFile(filepath.Join(dir, "vectors.csv"))
	require.NoError(t, err)
	assert.Equal(t, 8, table.MaxFrame())
}
