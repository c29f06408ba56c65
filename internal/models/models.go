package models

import "fmt"

// Vector is one block correspondence for a single frame.
// Record holds the raw CSV fields so unknown columns survive a round trip.
type Vector struct {
	Frame  int
	SrcX   float64
	SrcY   float64
	DstX   float64
	DstY   float64
	BlockW int
	BlockH int
	Record []string
}

// Mask marks table rows whose motion is inconsistent with the frame's
// dominant transform. It is aligned with the table it was computed from.
type Mask []bool

// Count returns the number of rows marked as moving.
func (m Mask) Count() int {
	n := 0
	for _, moving := range m {
		if moving {
			n++
		}
	}
	return n
}

// FrameStatus describes how a frame was resolved by the classifier.
type FrameStatus string

const (
	StatusFitted     FrameStatus = "fitted"
	StatusDegenerate FrameStatus = "degenerate"
)

// WorkItem represents a frame to be classified
type WorkItem struct {
	Seq   int // position in frame order
	Frame int
	Rows  []int // table row indices, in table order
	Total int
}

// FrameResult is the outcome of classifying one frame.
type FrameResult struct {
	Frame      int         `json:"frame"`
	Vectors    int         `json:"vectors"`
	Inliers    int         `json:"inliers"`
	Outliers   int         `json:"outliers"`
	Iterations int         `json:"iterations"`
	Status     FrameStatus `json:"status"`
	Homography []float64   `json:"homography,omitempty"`
	Error      string      `json:"error,omitempty"`

	// Moving is aligned with the WorkItem rows the result was built from.
	Moving []bool `json:"-"`
	Rows   []int  `json:"-"`
}

func (r FrameResult) String() string {
	return fmt.Sprintf("frame %d: %d vectors, %d inliers, %d outliers (%s)",
		r.Frame, r.Vectors, r.Inliers, r.Outliers, r.Status)
}
