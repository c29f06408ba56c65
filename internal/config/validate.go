package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.ClassifierOptions().Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateVideo() error {
	switch {
	case c.Video.FFmpeg == "":
		return errors.New("video.ffmpeg must be set")
	case c.Video.FFprobe == "":
		return errors.New("video.ffprobe must be set")
	case c.Video.FFplay == "":
		return errors.New("video.ffplay must be set")
	case len(c.Video.Codec) != 4:
		return fmt.Errorf("video.codec %q must be a four character code", c.Video.Codec)
	case c.Video.DefaultFPS <= 0:
		return errors.New("video.default_fps must be positive")
	case c.Video.LineThickness <= 0:
		return errors.New("video.line_thickness must be positive")
	case c.Video.PreviewWidth < 0:
		return errors.New("video.preview_width must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}
