// Package vectors holds the in-memory motion vector table and its CSV codec.
//
// A Table keeps rows in file order. That order defines the alignment of any
// motion mask computed from the table and the order rows are written back out.
package vectors

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bdougie/motionvec/internal/models"
)

// Required column names.
const (
	ColFrame  = "framenum"
	ColSrcX   = "srcx"
	ColSrcY   = "srcy"
	ColDstX   = "dstx"
	ColDstY   = "dsty"
	ColBlockW = "blockw"
	ColBlockH = "blockh"
)

// RequiredColumns lists the columns every vector file must carry.
var RequiredColumns = []string{ColFrame, ColSrcX, ColSrcY, ColDstX, ColDstY, ColBlockW, ColBlockH}

var (
	// ErrMalformed is returned when a vector file cannot be parsed.
	ErrMalformed = errors.New("malformed vector table")
	// ErrMaskLength is returned when a mask is not aligned with its table.
	ErrMaskLength = errors.New("mask length does not match table length")
)

// Table is an ordered set of motion vectors plus the header they came with.
type Table struct {
	Header []string
	Rows   []models.Vector
}

// NewTable creates an empty table with the standard column set.
func NewTable() *Table {
	header := make([]string, len(RequiredColumns))
	copy(header, RequiredColumns)
	return &Table{Header: header}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// MaxFrame returns the highest frame index present, or 0 for an empty table.
func (t *Table) MaxFrame() int {
	if t == nil {
		return 0
	}
	maxFrame := 0
	for _, row := range t.Rows {
		if row.Frame > maxFrame {
			maxFrame = row.Frame
		}
	}
	return maxFrame
}

// FrameIndex groups row indices by frame. Indices within a frame keep table order.
func (t *Table) FrameIndex() map[int][]int {
	index := make(map[int][]int)
	if t == nil {
		return index
	}
	for i, row := range t.Rows {
		index[row.Frame] = append(index[row.Frame], i)
	}
	return index
}

// Frames returns the frame indices present in the table, ascending.
func (t *Table) Frames() []int {
	index := t.FrameIndex()
	frames := make([]int, 0, len(index))
	for frame := range index {
		frames = append(frames, frame)
	}
	sort.Ints(frames)
	return frames
}

// Append adds a vector, synthesising its CSV record when none is attached.
func (t *Table) Append(v models.Vector) {
	if v.Record == nil {
		v.Record = t.recordFor(v)
	}
	t.Rows = append(t.Rows, v)
}

func (t *Table) recordFor(v models.Vector) []string {
	record := make([]string, len(t.Header))
	for i, name := range t.Header {
		switch name {
		case ColFrame:
			record[i] = fmt.Sprintf("%d", v.Frame)
		case ColSrcX:
			record[i] = formatFloat(v.SrcX)
		case ColSrcY:
			record[i] = formatFloat(v.SrcY)
		case ColDstX:
			record[i] = formatFloat(v.DstX)
		case ColDstY:
			record[i] = formatFloat(v.DstY)
		case ColBlockW:
			record[i] = fmt.Sprintf("%d", v.BlockW)
		case ColBlockH:
			record[i] = fmt.Sprintf("%d", v.BlockH)
		}
	}
	return record
}

// Filter returns the rows whose mask entry is true, in their original order.
// The mask must have exactly one entry per row.
func Filter(t *Table, mask models.Mask) (*Table, error) {
	if len(mask) != t.Len() {
		return nil, fmt.Errorf("%w: mask has %d entries, table has %d rows", ErrMaskLength, len(mask), t.Len())
	}
	out := &Table{Header: append([]string(nil), t.Header...)}
	out.Rows = make([]models.Vector, 0, mask.Count())
	for i, keep := range mask {
		if keep {
			out.Append(t.Rows[i])
		}
	}
	return out, nil
}
