package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/bdougie/motionvec/internal/analyzer"
)

//go:embed sample_config.toml
var sampleConfig string

// Classifier contains the per-frame fit settings.
type Classifier struct {
	Threshold        float64 `toml:"threshold"`
	Confidence       float64 `toml:"confidence"`
	MaxIterations    int     `toml:"max_iterations"`
	Refine           bool    `toml:"refine"`
	Seed             uint64  `toml:"seed"`
	Workers          int     `toml:"workers"`
	DegeneratePolicy string  `toml:"degenerate_policy"`
}

// Video contains the external tool paths and rendering settings.
type Video struct {
	FFmpeg        string  `toml:"ffmpeg"`
	FFprobe       string  `toml:"ffprobe"`
	FFplay        string  `toml:"ffplay"`
	Codec         string  `toml:"codec"`
	DefaultFPS    float64 `toml:"default_fps"`
	LineThickness float64 `toml:"line_thickness"`
	PreviewWidth  int     `toml:"preview_width"`
}

// Logging contains log level and output format.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full set of tunables for both command line tools.
type Config struct {
	Classifier Classifier `toml:"classifier"`
	Video      Video      `toml:"video"`
	Logging    Logging    `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Classifier: Classifier{
			Threshold:        defaultThreshold,
			Confidence:       defaultConfidence,
			MaxIterations:    defaultMaxIterations,
			Refine:           defaultRefine,
			Seed:             defaultSeed,
			Workers:          defaultWorkers,
			DegeneratePolicy: defaultDegeneratePolicy,
		},
		Video: Video{
			FFmpeg:        defaultFFmpeg,
			FFprobe:       defaultFFprobe,
			FFplay:        defaultFFplay,
			Codec:         defaultCodec,
			DefaultFPS:    defaultFPS,
			LineThickness: defaultLineThickness,
			PreviewWidth:  defaultPreviewWidth,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Sample returns an annotated config file holding the defaults.
func Sample() string {
	return sampleConfig
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Classifier.DegeneratePolicy = strings.ToLower(strings.TrimSpace(c.Classifier.DegeneratePolicy))
	c.Video.Codec = strings.ToUpper(strings.TrimSpace(c.Video.Codec))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// ClassifierOptions converts the classifier section to analyzer options.
func (c *Config) ClassifierOptions() analyzer.Options {
	return analyzer.Options{
		Threshold:     c.Classifier.Threshold,
		Confidence:    c.Classifier.Confidence,
		MaxIterations: c.Classifier.MaxIterations,
		Refine:        c.Classifier.Refine,
		Seed:          c.Classifier.Seed,
		Workers:       c.Classifier.Workers,
		Policy:        analyzer.Policy(c.Classifier.DegeneratePolicy),
	}
}
