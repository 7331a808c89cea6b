package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV reads a frame from CSV. The first record is the header. Cells are
// kept as the strings read so that WriteCSV reproduces them unchanged; use
// Int64 to read counts out of them.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv input is empty")
		}
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	f, err := New(header...)
	if err != nil {
		return nil, err
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv line %d: %w", line, err)
		}

		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		if err := f.appendRow(row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}

	return f, nil
}

// WriteCSV writes the frame as CSV with a header record.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.columns); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	rec := make([]string, len(f.columns))
	for _, r := range f.rows {
		for i, v := range r {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("error writing csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
