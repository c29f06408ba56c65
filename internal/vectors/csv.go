package vectors

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bdougie/motionvec/internal/models"
)

// ReadFile reads a vector table from a CSV file.
func ReadFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector file: %w", err)
	}
	defer file.Close()

	table, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return table, nil
}

// Read parses a CSV vector table. The first record is the header; it must
// contain every required column, in any order, alongside any extra columns.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	header = trimHeader(header)

	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	table := &Table{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		line, _ := reader.FieldPos(0)
		row, err := cols.parse(record)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// WriteFile writes the table to path, replacing any existing file.
func WriteFile(path string, t *Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	if err := Write(file, t); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// Write emits the header followed by every row's record. No index column is added.
func Write(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := row.Record
		if record == nil {
			record = t.recordFor(row)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type columns struct {
	frame, srcX, srcY, dstX, dstY, blockW, blockH int
}

func locateColumns(header []string) (columns, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := pos[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("%w: missing columns %s", ErrMalformed, strings.Join(missing, ", "))
	}
	return columns{
		frame:  pos[ColFrame],
		srcX:   pos[ColSrcX],
		srcY:   pos[ColSrcY],
		dstX:   pos[ColDstX],
		dstY:   pos[ColDstY],
		blockW: pos[ColBlockW],
		blockH: pos[ColBlockH],
	}, nil
}

func (c columns) parse(record []string) (models.Vector, error) {
	var v models.Vector
	var err error

	if v.Frame, err = parseInt(record[c.frame]); err != nil {
		return v, fieldError(ColFrame, record[c.frame], err)
	}
	if v.Frame < 1 {
		return v, fmt.Errorf("column %q: frame index %d is not positive", ColFrame, v.Frame)
	}
	coords := []struct {
		name string
		idx  int
		dst  *float64
	}{
		{ColSrcX, c.srcX, &v.SrcX},
		{ColSrcY, c.srcY, &v.SrcY},
		{ColDstX, c.dstX, &v.DstX},
		{ColDstY, c.dstY, &v.DstY},
	}
	for _, coord := range coords {
		value, err := parseFloat(record[coord.idx])
		if err != nil {
			return v, fieldError(coord.name, record[coord.idx], err)
		}
		*coord.dst = value
	}
	if v.BlockW, err = parseInt(record[c.blockW]); err != nil {
		return v, fieldError(ColBlockW, record[c.blockW], err)
	}
	if v.BlockH, err = parseInt(record[c.blockH]); err != nil {
		return v, fieldError(ColBlockH, record[c.blockH], err)
	}
	v.Record = record
	return v, nil
}

func fieldError(column, value string, err error) error {
	return fmt.Errorf("column %q: invalid value %q: %v", column, value, err)
}

func parseFloat(value string) (float64, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, errors.New("not a finite number")
	}
	return parsed, nil
}

// parseInt accepts plain integers and integral floats such as "16.0".
func parseInt(value string) (int, error) {
	cleaned := strings.TrimSpace(value)
	if parsed, err := strconv.Atoi(cleaned); err == nil {
		return parsed, nil
	}
	f, err := parseFloat(cleaned)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, errors.New("not an integer")
	}
	return int(f), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func trimHeader(header []string) []string {
	out := make([]string, len(header))
	for i, name := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	return out
}
