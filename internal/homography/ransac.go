package homography

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/sampleuv"
)

// Estimator defaults.
const (
	DefaultConfidence    = 0.995
	DefaultMaxIterations = 2000
	// DefaultOutlierRatio is the outlier share the sampling budget is sized for.
	DefaultOutlierRatio = 0.6

	// maxSampleAttempts bounds how many draws one iteration may spend looking
	// for a non-degenerate minimal sample.
	maxSampleAttempts = 100

	// errTolerance absorbs floating point noise in exact fits, so a zero
	// threshold still accepts correspondences the model reproduces exactly.
	errTolerance = 1e-9
)

var (
	// ErrNoConsensus is returned when no minimal sample produced a model.
	ErrNoConsensus = errors.New("homography: no consensus model found")
	// ErrInvalidThreshold is returned for negative or non-finite thresholds.
	ErrInvalidThreshold = errors.New("homography: threshold must be a finite non-negative number")
)

// Estimator fits a dominant homography with random sample consensus.
//
// The candidate models depend only on the correspondences, the Source and
// the sampling parameters, never on Threshold. Raising the threshold can
// therefore only grow the winning consensus set.
type Estimator struct {
	// Threshold is the largest reprojection error, in pixels, of an inlier.
	Threshold float64
	// Confidence is the probability of drawing at least one outlier-free
	// sample. Values outside (0, 1) select DefaultConfidence.
	Confidence float64
	// OutlierRatio is the assumed outlier share used to size the sampling
	// budget. Values outside (0, 1) select DefaultOutlierRatio.
	OutlierRatio float64
	// MaxIterations caps the number of minimal samples evaluated.
	MaxIterations int
	// Refine adds a least-median-of-squares refit to the candidates.
	Refine bool
	// Source drives sampling. A nil Source uses a fixed seed.
	Source rand.Source
}

// Result is the winning model and its consensus set.
type Result struct {
	H          Matrix
	Inliers    []bool
	NumInliers int
	Iterations int
}

// Outliers returns the number of correspondences outside the consensus set.
func (r Result) Outliers() int {
	return len(r.Inliers) - r.NumInliers
}

type candidate struct {
	h       Matrix
	inliers []bool
	count   int
	cost    float64
}

func (c *candidate) beats(o *candidate) bool {
	return o == nil || c.count > o.count || (c.count == o.count && c.cost < o.cost)
}

// Budget returns the number of minimal samples Estimate draws.
func (e Estimator) Budget() int {
	confidence := e.Confidence
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidence
	}
	ratio := e.OutlierRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultOutlierRatio
	}
	maxIters := e.MaxIterations
	if maxIters <= 0 {
		maxIters = DefaultMaxIterations
	}
	return max(1, updateBudget(confidence, ratio, maxIters))
}

// Estimate finds the homography supported by the most correspondences.
// Equal support is resolved in favour of the lower truncated squared error.
func (e Estimator) Estimate(src, dst []Point) (Result, error) {
	if len(src) != len(dst) {
		return Result{}, ErrMismatch
	}
	if e.Threshold < 0 || math.IsNaN(e.Threshold) || math.IsInf(e.Threshold, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, e.Threshold)
	}
	n := len(src)
	if n < MinSamples {
		return Result{}, ErrTooFewPoints
	}

	source := e.Source
	if source == nil {
		source = rand.NewPCG(0, 0)
	}

	var (
		best      *candidate
		median    *Matrix
		medianErr = math.Inf(1)
		errs      = make([]float64, n)
		idx       = make([]int, MinSamples)
		sampleSrc = make([]Point, MinSamples)
		sampleDst = make([]Point, MinSamples)
		keep      = medianRank(n)
	)

	budget := e.Budget()
	iter := 0
	for ; iter < budget; iter++ {
		if !drawSample(idx, n, source, src, dst) {
			break
		}
		for j, k := range idx {
			sampleSrc[j], sampleDst[j] = src[k], dst[k]
		}
		h, err := Fit(sampleSrc, sampleDst)
		if err != nil {
			continue
		}
		if c := e.score(h, src, dst); c.beats(best) {
			best = &c
		}
		if e.Refine {
			reprojectionErrors(h, src, dst, errs)
			if m := kthSmallest(errs, keep); m < medianErr {
				medianErr = m
				median = &h
			}
		}
	}

	if best == nil {
		return Result{Iterations: iter}, ErrNoConsensus
	}

	result := Result{
		H:          best.h,
		Inliers:    best.inliers,
		NumInliers: best.count,
		Iterations: iter,
	}
	if median != nil {
		if c, ok := e.refine(*median, keep, src, dst); ok && c.beats(best) {
			result.H = c.h
			result.Inliers = c.inliers
			result.NumInliers = c.count
		}
	}
	return result, nil
}

// score counts the correspondences within the threshold of h.
func (e Estimator) score(h Matrix, src, dst []Point) candidate {
	c := candidate{h: h, inliers: make([]bool, len(src))}
	limit := e.Threshold + errTolerance
	for i := range src {
		err := h.ReprojectionError(src[i], dst[i])
		if err <= limit {
			c.inliers[i] = true
			c.count++
			c.cost += err * err
		} else {
			c.cost += limit * limit
		}
	}
	return c
}

// refine re-fits on the keep correspondences h reproduces best and scores
// the result. The refit set does not depend on the threshold.
func (e Estimator) refine(h Matrix, keep int, src, dst []Point) (candidate, bool) {
	errs := make([]float64, len(src))
	reprojectionErrors(h, src, dst, errs)
	order := make([]int, len(src))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return errs[order[a]] < errs[order[b]] })

	inSrc := make([]Point, keep)
	inDst := make([]Point, keep)
	for i, k := range order[:keep] {
		inSrc[i], inDst[i] = src[k], dst[k]
	}
	refit, err := Fit(inSrc, inDst)
	if err != nil {
		return candidate{}, false
	}
	return e.score(refit, src, dst), true
}

// medianRank is the size of the subset least-median refits use.
func medianRank(n int) int {
	return max(MinSamples, (n+1)/2)
}

func reprojectionErrors(h Matrix, src, dst []Point, out []float64) {
	for i := range src {
		out[i] = h.ReprojectionError(src[i], dst[i])
	}
}

// kthSmallest returns the k-th smallest value of errs (1-based). errs is reordered.
func kthSmallest(errs []float64, k int) float64 {
	sort.Float64s(errs)
	return errs[k-1]
}

// drawSample fills idx with a minimal sample whose points are in general
// position in both sets. It reports false when no such sample was found.
func drawSample(idx []int, n int, source rand.Source, src, dst []Point) bool {
	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		sampleuv.WithoutReplacement(idx, n, source)
		if !hasCollinearTriple(idx, src) && !hasCollinearTriple(idx, dst) {
			return true
		}
	}
	return false
}

func hasCollinearTriple(idx []int, pts []Point) bool {
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			for k := j + 1; k < len(idx); k++ {
				if collinear(pts[idx[i]], pts[idx[j]], pts[idx[k]]) {
					return true
				}
			}
		}
	}
	return false
}

func collinear(a, b, c Point) bool {
	dx1, dy1 := b.X-a.X, b.Y-a.Y
	dx2, dy2 := c.X-a.X, c.Y-a.Y
	cross := math.Abs(dx1*dy2 - dy1*dx2)
	return cross <= 1e-7*(math.Abs(dx1)+math.Abs(dy1)+math.Abs(dx2)+math.Abs(dy2))
}

// updateBudget returns the number of iterations needed to draw an
// outlier-free minimal sample with the given confidence when a fraction
// outlierRatio of the correspondences are outliers.
func updateBudget(confidence, outlierRatio float64, maxIters int) int {
	outlierRatio = math.Max(0, math.Min(1, outlierRatio))
	num := math.Max(1-confidence, math.SmallestNonzeroFloat64)
	denom := 1 - math.Pow(1-outlierRatio, MinSamples)
	if denom < math.SmallestNonzeroFloat64 {
		return 0
	}
	num = math.Log(num)
	denom = math.Log(denom)
	if denom >= 0 || -num >= float64(maxIters)*(-denom) {
		return maxIters
	}
	return int(math.Round(num / denom))
}
