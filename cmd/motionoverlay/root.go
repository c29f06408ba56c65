package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bdougie/motionvec/internal/config"
	"github.com/bdougie/motionvec/internal/encoder"
	"github.com/bdougie/motionvec/internal/extractor"
	"github.com/bdougie/motionvec/internal/logging"
	"github.com/bdougie/motionvec/internal/overlay"
	"github.com/bdougie/motionvec/internal/vectors"
)

type overlayOptions struct {
	video      string
	input      string
	output     string
	configPath string
	codec      string
	display    bool
	verbose    bool
	allFrames  bool
}

func newRootCommand() *cobra.Command {
	opts := overlayOptions{}

	rootCmd := &cobra.Command{
		Use:   "motionoverlay -f VIDEO -i VECTORS -o OUTPUT",
		Short: "Create a video of the motion vector field",
		Long: "motionoverlay draws every motion vector of a CSV table onto the frames\n" +
			"of the video it was extracted from and encodes the result.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("codec") {
				opts.codec = ""
			}
			return runOverlay(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.video, "video", "f", "", "input video")
	flags.StringVarP(&opts.input, "input_path", "i", "", "input path to motion vector file (.csv)")
	flags.StringVarP(&opts.output, "output_path", "o", "", "output path to video")
	flags.BoolVarP(&opts.display, "display", "d", false, "show frames in a preview window while processing")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress at info level")
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file path (TOML)")
	flags.StringVar(&opts.codec, "codec", "XVID", "output FourCC codec (XVID, MJPG, MP4V, H264, AVC1)")
	flags.BoolVar(&opts.allFrames, "all-frames", false, "keep rendering past the last frame with vectors")
	for _, name := range []string{"video", "input_path", "output_path"} {
		_ = rootCmd.MarkFlagRequired(name)
	}

	return rootCmd
}

func runOverlay(ctx context.Context, opts overlayOptions, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.codec != "" {
		cfg.Video.Codec = opts.codec
	}
	if _, err := encoder.CodecArgs(cfg.Video.Codec); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg, opts.verbose, stderr)
	if err != nil {
		return err
	}

	logger.Info("reading vectors", "path", opts.input)
	table, err := vectors.ReadFile(opts.input)
	if err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}

	logger.Info("retrieving video info", "path", opts.video)
	info, err := extractor.Probe(ctx, cfg.Video.FFprobe, opts.video, cfg.Video.DefaultFPS)
	if err != nil {
		return err
	}
	if info.FPSDefaulted {
		logger.Warn("unable to read fps value from input video, using default", "fps", info.FPS)
	}
	logger.Info("video info", "size", info.String(), "codec", info.Codec)

	decoder, err := extractor.NewDecoder(ctx, cfg.Video.FFmpeg, opts.video, info)
	if err != nil {
		return err
	}
	defer decoder.Close()
	info = decoder.Info()

	logger.Info("creating video file", "path", opts.output, "codec", cfg.Video.Codec)
	sink, err := encoder.NewEncoder(ctx, cfg.Video.FFmpeg, opts.output, info, cfg.Video.Codec)
	if err != nil {
		return err
	}

	var preview overlay.Previewer
	if opts.display {
		p, err := encoder.NewPreview(ctx, cfg.Video.FFplay, info, cfg.Video.PreviewWidth)
		if err != nil {
			logger.Warn("preview unavailable", tint.Err(err))
		} else {
			defer closePreview(p, logger)
			preview = p
		}
	}

	bar := newProgress(stderr, table.MaxFrame(), opts.allFrames)
	renderer := overlay.NewRenderer(info.Width, info.Height, overlay.Options{
		LineThickness: cfg.Video.LineThickness,
		AllFrames:     opts.allFrames,
		Preview:       preview,
		Progress:      bar.frameDone,
		Logger:        logger,
	})

	stats, renderErr := renderer.Render(ctx, table, decoder, sink)
	bar.finish()
	if err := sink.Close(); err != nil && renderErr == nil {
		renderErr = err
	}
	if renderErr != nil {
		return renderErr
	}

	logger.Info("exiting",
		"frames", humanize.Comma(int64(stats.Frames)),
		"vectors", humanize.Comma(int64(stats.Vectors)),
		"output", opts.output)
	return nil
}

func closePreview(p *encoder.Preview, logger *slog.Logger) {
	if err := p.Close(); err != nil {
		logger.Warn("preview closed with error", tint.Err(err))
	}
}
