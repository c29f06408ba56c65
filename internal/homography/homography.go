// Package homography fits 2D projective transforms to point correspondences.
//
// Fit solves the normalized direct linear transform for four or more
// correspondences. Estimator wraps it in random sample consensus so a
// dominant transform can be recovered when a large share of the
// correspondences do not follow it.
package homography

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinSamples is the number of correspondences that determine a homography.
const MinSamples = 4

var (
	// ErrTooFewPoints is returned when fewer than MinSamples correspondences are given.
	ErrTooFewPoints = errors.New("homography: at least 4 correspondences are required")
	// ErrDegenerate is returned when the correspondences do not determine a unique transform.
	ErrDegenerate = errors.New("homography: degenerate point configuration")
	// ErrMismatch is returned when source and destination sets differ in length.
	ErrMismatch = errors.New("homography: source and destination lengths differ")
)

// rankTolerance is the smallest ratio between the second-smallest and largest
// singular value of the DLT system for which the null space is considered unique.
const rankTolerance = 1e-10

// Point is a pixel position.
type Point struct {
	X, Y float64
}

// Matrix is a 3x3 projective transform in row-major order.
type Matrix [9]float64

// Translation returns the transform that shifts points by (dx, dy).
func Translation(dx, dy float64) Matrix {
	return Matrix{1, 0, dx, 0, 1, dy, 0, 0, 1}
}

func scaling(s float64) Matrix {
	return Matrix{s, 0, 0, 0, s, 0, 0, 0, 1}
}

// Project maps p through h. It reports false when p maps to the line at infinity.
func (h Matrix) Project(p Point) (Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// ReprojectionError is the distance between dst and src mapped through h.
// Unprojectable points have an infinite error.
func (h Matrix) ReprojectionError(src, dst Point) float64 {
	p, ok := h.Project(src)
	if !ok {
		return math.Inf(1)
	}
	return math.Hypot(p.X-dst.X, p.Y-dst.Y)
}

// Mul returns h·o.
func (h Matrix) Mul(o Matrix) Matrix {
	var out mat.Dense
	out.Mul(mat.NewDense(3, 3, h[:]), mat.NewDense(3, 3, o[:]))
	var m Matrix
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r*3+c] = out.At(r, c)
		}
	}
	return m
}

// Slice returns the coefficients as a freshly allocated slice.
func (h Matrix) Slice() []float64 {
	return append([]float64(nil), h[:]...)
}

// normalized scales h so that h22 is 1, or to unit norm when h22 vanishes.
func (h Matrix) normalized() Matrix {
	scale := h[8]
	if math.Abs(scale) < 1e-12 {
		scale = 0
		for _, v := range h {
			scale += v * v
		}
		scale = math.Sqrt(scale)
	}
	if scale == 0 {
		return h
	}
	for i := range h {
		h[i] /= scale
	}
	return h
}

// Fit computes the homography mapping src onto dst in the least-squares
// algebraic sense. Points are conditioned (centroid at the origin, mean
// distance sqrt(2)) before the system is solved by SVD.
func Fit(src, dst []Point) (Matrix, error) {
	if len(src) != len(dst) {
		return Matrix{}, ErrMismatch
	}
	n := len(src)
	if n < MinSamples {
		return Matrix{}, ErrTooFewPoints
	}

	srcNorm, srcT, _, ok := condition(src)
	if !ok {
		return Matrix{}, ErrDegenerate
	}
	dstNorm, _, dstTInv, ok := condition(dst)
	if !ok {
		return Matrix{}, ErrDegenerate
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := srcNorm[i].X, srcNorm[i].Y
		u, v := dstNorm[i].X, dstNorm[i].Y
		a.SetRow(2*i, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
		a.SetRow(2*i+1, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFullV) {
		return Matrix{}, ErrDegenerate
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7]/values[0] < rankTolerance {
		return Matrix{}, ErrDegenerate
	}

	var v mat.Dense
	svd.VTo(&v)
	var hn Matrix
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	h := dstTInv.Mul(hn).Mul(srcT)
	return h.normalized(), nil
}

// condition returns the points translated to their centroid and scaled to a
// mean distance of sqrt(2), with the forward and inverse conditioning transforms.
func condition(pts []Point) ([]Point, Matrix, Matrix, bool) {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	cx, cy := stat.Mean(xs, nil), stat.Mean(ys, nil)

	var meanDist float64
	for i := range pts {
		meanDist += math.Hypot(xs[i]-cx, ys[i]-cy)
	}
	meanDist /= float64(len(pts))
	if meanDist < 1e-12 || math.IsNaN(meanDist) || math.IsInf(meanDist, 0) {
		return nil, Matrix{}, Matrix{}, false
	}

	s := math.Sqrt2 / meanDist
	out := make([]Point, len(pts))
	for i := range pts {
		out[i] = Point{X: (xs[i] - cx) * s, Y: (ys[i] - cy) * s}
	}
	t := scaling(s).Mul(Translation(-cx, -cy))
	tInv := Translation(cx, cy).Mul(scaling(1 / s))
	return out, t, tInv, true
}
