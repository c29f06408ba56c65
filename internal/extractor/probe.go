package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideo is returned when the input has no video stream with a resolution.
var ErrNoVideo = errors.New("no video stream with a usable resolution")

// VideoInfo is the metadata needed to decode and re-encode a video.
type VideoInfo struct {
	Width  int
	Height int
	FPS    float64
	// FPSDefaulted is set when the input reported no usable frame rate.
	FPSDefaulted bool
	Codec        string
}

// FrameSize returns the size in bytes of one RGBA frame.
func (v VideoInfo) FrameSize() int {
	return v.Width * v.Height * 4
}

func (v VideoInfo) String() string {
	return fmt.Sprintf("%dx%d@%g", v.Width, v.Height, v.FPS)
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
}

// Probe executes ffprobe against the video and extracts the first video
// stream's resolution and frame rate. defaultFPS is used when the frame rate
// is missing, zero or not a number.
func Probe(ctx context.Context, binary, path string, defaultFPS float64) (VideoInfo, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return VideoInfo{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-hide_banner",
		"-select_streams", "v:0",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return VideoInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(output, defaultFPS)
}

func parseProbe(output []byte, defaultFPS float64) (VideoInfo, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	for _, stream := range result.Streams {
		if !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		if stream.Width <= 0 || stream.Height <= 0 {
			return VideoInfo{}, fmt.Errorf("%w: %dx%d", ErrNoVideo, stream.Width, stream.Height)
		}
		info := VideoInfo{
			Width:  stream.Width,
			Height: stream.Height,
			Codec:  stream.CodecName,
		}
		fps, ok := ParseFrameRate(stream.RFrameRate)
		if !ok {
			fps, ok = ParseFrameRate(stream.AvgFrameRate)
		}
		if !ok {
			fps = defaultFPS
			info.FPSDefaulted = true
		}
		info.FPS = fps
		return info, nil
	}
	return VideoInfo{}, ErrNoVideo
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
// It reports false for missing, zero or non-finite rates.
func ParseFrameRate(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	var rate float64
	if num, den, found := strings.Cut(value, "/"); found {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, false
		}
		rate = n / d
	} else {
		r, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		rate = r
	}

	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, false
	}
	return rate, true
}
