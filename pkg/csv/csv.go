package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Record is anything that renders as one CSV row.
type Record interface {
	CSVRow() []string
}

type FilterFunc[T Record] func(T) bool

// Create writes header followed by every record the filter keeps. A nil
// filter keeps everything.
func Create[T Record](header []string, records []T, filter FilterFunc[T]) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	for i, r := range records {
		if filter != nil && !filter(r) {
			continue
		}
		if err := w.Write(r.CSVRow()); err != nil {
			return nil, fmt.Errorf("writing record %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}
