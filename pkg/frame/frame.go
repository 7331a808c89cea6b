// Package frame provides a small in-memory table of named columns and
// ordered rows, the unit the transform and the function registry work on.
package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mchmarny/wilson/pkg/score"
)

// Frame is an ordered set of rows over named columns.
// A Frame is not safe for concurrent mutation; concurrent reads are fine.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty frame with the given columns.
func New(columns ...string) (*Frame, error) {
	f := &Frame{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("%w: empty column name", score.ErrInvalidArgument)
		}
		if _, ok := f.index[c]; ok {
			return nil, fmt.Errorf("%w: duplicate column: %s", score.ErrInvalidArgument, c)
		}
		f.index[c] = len(f.columns)
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// Append adds a row. The number of values must match the number of columns.
func (f *Frame) Append(values ...any) error {
	row := make([]any, len(values))
	copy(row, values)
	return f.appendRow(row)
}

func (f *Frame) appendRow(row []any) error {
	if len(row) != len(f.columns) {
		return fmt.Errorf("%w: row has %d values, frame has %d columns",
			score.ErrInvalidArgument, len(row), len(f.columns))
	}
	f.rows = append(f.rows, row)
	return nil
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Has reports whether the frame has the named column.
func (f *Frame) Has(col string) bool {
	_, ok := f.index[col]
	return ok
}

func (f *Frame) Len() int {
	return len(f.rows)
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.rows[i]))
	copy(out, f.rows[i])
	return out
}

// Value returns the cell at row i of column col.
func (f *Frame) Value(i int, col string) (any, error) {
	idx, ok := f.index[col]
	if !ok {
		return nil, fmt.Errorf("%w: column not found: %s", score.ErrInvalidArgument, col)
	}
	if i < 0 || i >= len(f.rows) {
		return nil, fmt.Errorf("%w: row %d out of range [0, %d)", score.ErrInvalidArgument, i, len(f.rows))
	}
	return f.rows[i][idx], nil
}

// Column returns the values of column col in row order.
func (f *Frame) Column(col string) ([]any, error) {
	idx, ok := f.index[col]
	if !ok {
		return nil, fmt.Errorf("%w: column not found: %s", score.ErrInvalidArgument, col)
	}
	out := make([]any, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// WithColumn returns a new frame with values as column name. An existing
// column of that name is replaced in place, otherwise the column is appended.
// The receiver is not modified.
func (f *Frame) WithColumn(name string, values []any) (*Frame, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty column name", score.ErrInvalidArgument)
	}
	if len(values) != len(f.rows) {
		return nil, fmt.Errorf("%w: column %s has %d values, frame has %d rows",
			score.ErrInvalidArgument, name, len(values), len(f.rows))
	}

	idx, replace := f.index[name]
	cols := f.Columns()
	if !replace {
		idx = len(cols)
		cols = append(cols, name)
	}

	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]any, len(f.rows))
	for i, r := range f.rows {
		row := make([]any, len(cols))
		copy(row, r)
		row[idx] = values[i]
		out.rows[i] = row
	}
	return out, nil
}

// Records returns the rows as column-keyed maps, for encoding.
func (f *Frame) Records() []map[string]any {
	list := make([]map[string]any, 0, len(f.rows))
	for _, r := range f.rows {
		m := make(map[string]any, len(f.columns))
		for i, c := range f.columns {
			m[c] = r[i]
		}
		list = append(list, m)
	}
	return list
}

// Int64 converts a cell to a count. Integral floats and strings holding an
// integral number are accepted; nulls, text and fractional values are
// invalid arguments.
func Int64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: value overflows int64: %d", score.ErrInvalidArgument, t)
		}
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%w: value overflows int64: %d", score.ErrInvalidArgument, t)
		}
		return int64(t), nil
	case float32:
		return floatToInt64(float64(t))
	case float64:
		return floatToInt64(t)
	case string:
		return parseInt64(t)
	case []byte:
		return parseInt64(string(t))
	case nil:
		return 0, fmt.Errorf("%w: null value", score.ErrInvalidArgument)
	default:
		return 0, fmt.Errorf("%w: non-numeric value of type %T", score.ErrInvalidArgument, v)
	}
}

func parseInt64(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", score.ErrInvalidArgument)
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric value: %q", score.ErrInvalidArgument, s)
	}
	return floatToInt64(f)
}

func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: not an integral value: %v", score.ErrInvalidArgument, f)
	}
	return int64(f), nil
}
