// Package analyzer classifies motion vectors as moving or static.
//
// Every frame is fitted independently: the dominant homography between the
// block sources and destinations is taken to be camera motion, and vectors
// that disagree with it by more than the threshold are marked as moving.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/motionvec/internal/homography"
	"github.com/bdougie/motionvec/internal/models"
	"github.com/bdougie/motionvec/internal/storage"
	"github.com/bdougie/motionvec/internal/vectors"
)

const maxWorkers = 64

// Policy decides how rows of a frame without a usable fit are marked.
type Policy string

const (
	// PolicyStatic marks unfittable rows as static, dropping them from filtered output.
	PolicyStatic Policy = "static"
	// PolicyMoving marks unfittable rows as moving, keeping them.
	PolicyMoving Policy = "moving"
)

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("analyzer: invalid options")

// ParsePolicy converts a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyStatic, PolicyMoving:
		return p, nil
	case "":
		return PolicyStatic, nil
	default:
		return "", fmt.Errorf("%w: unknown degenerate policy %q", ErrInvalidOptions, s)
	}
}

// Options tune the per-frame estimator and the worker pool.
type Options struct {
	Threshold     float64
	Confidence    float64
	MaxIterations int
	Refine        bool
	Seed          uint64
	Workers       int
	Policy        Policy
}

// DefaultOptions returns the options used by the command line tools.
func DefaultOptions() Options {
	return Options{
		Threshold:     2.0,
		Confidence:    homography.DefaultConfidence,
		MaxIterations: homography.DefaultMaxIterations,
		Refine:        true,
		Seed:          1,
		Workers:       1,
		Policy:        PolicyStatic,
	}
}

// Validate reports the first option that cannot be used.
func (o Options) Validate() error {
	switch {
	case o.Threshold < 0 || math.IsNaN(o.Threshold) || math.IsInf(o.Threshold, 0):
		return fmt.Errorf("%w: threshold %v must be a finite non-negative number", ErrInvalidOptions, o.Threshold)
	case o.Confidence <= 0 || o.Confidence >= 1:
		return fmt.Errorf("%w: confidence %v must be in (0, 1)", ErrInvalidOptions, o.Confidence)
	case o.MaxIterations < 1:
		return fmt.Errorf("%w: max iterations %d must be positive", ErrInvalidOptions, o.MaxIterations)
	case o.Workers < 1 || o.Workers > maxWorkers:
		return fmt.Errorf("%w: workers %d must be between 1 and %d", ErrInvalidOptions, o.Workers, maxWorkers)
	}
	_, err := ParsePolicy(string(o.Policy))
	return err
}

// Result is the outcome of one classification pass.
type Result struct {
	// Mask is aligned with the classified table.
	Mask models.Mask
	// Frames holds one entry per frame that had vectors, in frame order.
	Frames []models.FrameResult
}

// Degenerate returns the number of frames that could not be fitted.
func (r *Result) Degenerate() int {
	n := 0
	for _, f := range r.Frames {
		if f.Status == models.StatusDegenerate {
			n++
		}
	}
	return n
}

// Classifier runs the per-frame fits over a table.
type Classifier struct {
	opts    Options
	storage storage.Storage
	logger  *slog.Logger
}

// NewClassifier creates a classifier. A nil store disables the frame report
// and a nil logger uses slog.Default.
func NewClassifier(opts Options, store storage.Storage, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		opts:    opts,
		storage: store,
		logger:  logger,
	}
}

// Classify is a shorthand for a single-worker pass with default options
// and the given threshold. It does not log.
func Classify(ctx context.Context, table *vectors.Table, threshold float64) (models.Mask, error) {
	opts := DefaultOptions()
	opts.Threshold = threshold
	res, err := NewClassifier(opts, nil, slog.New(slog.DiscardHandler)).Classify(ctx, table)
	if err != nil {
		return nil, err
	}
	return res.Mask, nil
}

// Classify fits every frame of table and returns the motion mask.
// The table is only read.
func (c *Classifier) Classify(ctx context.Context, table *vectors.Table) (*Result, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}

	work := c.plan(table)
	results, err := c.processFrames(ctx, table, work)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Mask:   make(models.Mask, table.Len()),
		Frames: results,
	}
	for _, r := range results {
		if r.Status == models.StatusDegenerate {
			c.logger.Warn("frame could not be fitted",
				"frame", r.Frame,
				"vectors", r.Vectors,
				"policy", string(c.opts.Policy),
				tint.Err(errors.New(r.Error)))
		} else {
			c.logger.Debug("frame fitted", "frame", r.Frame, "inliers", r.Inliers, "outliers", r.Outliers, "iterations", r.Iterations)
		}
		for i, row := range r.Rows {
			res.Mask[row] = r.Moving[i]
		}
		if c.storage != nil {
			if err := c.storage.AddResult(ctx, r); err != nil {
				return nil, fmt.Errorf("failed to store frame %d: %w", r.Frame, err)
			}
		}
	}

	if c.storage != nil {
		if err := c.storage.Flush(); err != nil {
			return nil, fmt.Errorf("failed to flush final results: %w", err)
		}
	}

	c.logger.Info("classification finished",
		"frames", humanize.Comma(int64(len(results))),
		"vectors", humanize.Comma(int64(table.Len())),
		"moving", humanize.Comma(int64(res.Mask.Count())),
		"degenerate", res.Degenerate())
	return res, nil
}

// plan groups table rows into one work item per frame, in frame order.
// Gaps between frame numbers are logged as ranges.
func (c *Classifier) plan(table *vectors.Table) []models.WorkItem {
	index := table.FrameIndex()
	frames := table.Frames()

	work := make([]models.WorkItem, 0, len(frames))
	next := 1
	for _, frame := range frames {
		if frame < 1 {
			continue
		}
		if frame > next {
			c.logger.Info("no vectors for frame", "frame", next, "through", frame-1)
		}
		next = frame + 1
		work = append(work, models.WorkItem{
			Seq:   len(work),
			Frame: frame,
			Rows:  index[frame],
		})
	}
	for i := range work {
		work[i].Total = len(work)
	}
	return work
}

func (c *Classifier) processFrames(ctx context.Context, table *vectors.Table, work []models.WorkItem) ([]models.FrameResult, error) {
	results := make([]models.FrameResult, len(work))
	if len(work) == 0 {
		return results, nil
	}

	workers := min(c.opts.Workers, len(work))
	g, ctx := errgroup.WithContext(ctx)
	workChan := make(chan models.WorkItem)

	// Send work to workers
	g.Go(func() error {
		defer close(workChan)
		for _, item := range work {
			select {
			case workChan <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for item := range workChan {
				if err := ctx.Err(); err != nil {
					return err
				}
				c.logger.Debug("fitting frame", "frame", item.Frame, "item", item.Seq+1, "of", item.Total)
				// Each worker owns distinct Seq slots.
				results[item.Seq] = c.classifyFrame(table, item)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// classifyFrame fits one frame. Estimator failures resolve the frame by policy.
func (c *Classifier) classifyFrame(table *vectors.Table, item models.WorkItem) models.FrameResult {
	src := make([]homography.Point, len(item.Rows))
	dst := make([]homography.Point, len(item.Rows))
	for i, row := range item.Rows {
		v := table.Rows[row]
		src[i] = homography.Point{X: v.SrcX, Y: v.SrcY}
		dst[i] = homography.Point{X: v.DstX, Y: v.DstY}
	}

	result := models.FrameResult{
		Frame:   item.Frame,
		Vectors: len(item.Rows),
		Rows:    item.Rows,
		Moving:  make([]bool, len(item.Rows)),
	}

	est := homography.Estimator{
		Threshold:     c.opts.Threshold,
		Confidence:    c.opts.Confidence,
		MaxIterations: c.opts.MaxIterations,
		Refine:        c.opts.Refine,
		Source:        rand.NewPCG(c.opts.Seed, uint64(item.Frame)),
	}
	fit, err := est.Estimate(src, dst)
	result.Iterations = fit.Iterations
	if err != nil {
		result.Status = models.StatusDegenerate
		result.Error = err.Error()
		if c.opts.Policy == PolicyMoving {
			for i := range result.Moving {
				result.Moving[i] = true
			}
			result.Outliers = len(item.Rows)
		} else {
			result.Inliers = len(item.Rows)
		}
		return result
	}

	result.Status = models.StatusFitted
	result.Homography = fit.H.Slice()
	result.Inliers = fit.NumInliers
	result.Outliers = fit.Outliers()
	for i, inlier := range fit.Inliers {
		result.Moving[i] = !inlier
	}
	return result
}
