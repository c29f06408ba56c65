package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bdougie/motionvec/internal/analyzer"
	"github.com/bdougie/motionvec/internal/config"
	"github.com/bdougie/motionvec/internal/logging"
	"github.com/bdougie/motionvec/internal/storage"
	"github.com/bdougie/motionvec/internal/vectors"
)

type filterOptions struct {
	input      string
	output     string
	configPath string
	threshold  float64
	seed       uint64
	workers    int
	report     string
	stats      bool
	verbose    bool

	// set records which classifier flags were given explicitly.
	set map[string]bool
}

func newRootCommand() *cobra.Command {
	opts := filterOptions{}

	rootCmd := &cobra.Command{
		Use:   "motionfilter INPUT OUTPUT",
		Short: "Keep only the motion vectors of moving objects",
		Long: "motionfilter reads a motion vector CSV table, fits the dominant camera\n" +
			"motion of every frame with RANSAC and writes the vectors that do not\n" +
			"follow it to OUTPUT.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.input, opts.output = args[0], args[1]
			opts.set = map[string]bool{}
			for _, name := range []string{"threshold", "seed", "workers"} {
				opts.set[name] = cmd.Flags().Changed(name)
			}
			return runFilter(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.Flags()
	flags.Float64VarP(&opts.threshold, "threshold", "t", 2.0, "reprojection error in pixels above which a vector is moving")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress at info level")
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file path (TOML)")
	flags.Uint64Var(&opts.seed, "seed", 1, "random seed for sampling")
	flags.IntVar(&opts.workers, "workers", 1, "number of frames classified concurrently")
	flags.StringVar(&opts.report, "report", "", "write a per-frame fit report (.json, or .db for SQLite)")
	flags.BoolVar(&opts.stats, "stats", false, "print a per-frame summary table")

	rootCmd.AddCommand(newConfigCommand())
	return rootCmd
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print a configuration file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), config.Sample())
			return err
		},
	}
}

func runFilter(ctx context.Context, opts filterOptions, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.set["threshold"] {
		cfg.Classifier.Threshold = opts.threshold
	}
	if opts.set["seed"] {
		cfg.Classifier.Seed = opts.seed
	}
	if opts.set["workers"] {
		cfg.Classifier.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
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

	var store storage.Storage
	if opts.report != "" {
		run := storage.NewRunInfo(opts.input, cfg.Classifier.Threshold, cfg.Classifier.Seed)
		s, err := storage.Open(ctx, opts.report, run)
		if err != nil {
			return fmt.Errorf("open report: %w", err)
		}
		defer closeStore(s, logger)
		store = s
		logger.Info("writing frame report", "path", opts.report, "run", run.ID)
	}

	result, err := analyzer.NewClassifier(cfg.ClassifierOptions(), store, logger).Classify(ctx, table)
	if err != nil {
		return fmt.Errorf("classify %s: %w", opts.input, err)
	}

	filtered, err := vectors.Filter(table, result.Mask)
	if err != nil {
		return err
	}
	logger.Info("writing vectors", "path", opts.output,
		"kept", humanize.Comma(int64(filtered.Len())),
		"total", humanize.Comma(int64(table.Len())))
	if err := vectors.WriteFile(opts.output, filtered); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	if opts.stats {
		fmt.Fprintln(stdout, renderStats(result))
	}
	return nil
}

func closeStore(s storage.Storage, logger *slog.Logger) {
	if err := s.Close(); err != nil {
		logger.Error("failed to close report", tint.Err(err))
	}
}
