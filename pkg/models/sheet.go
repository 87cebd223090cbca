package models

import "strings"

// SheetKind tells how a Sheet's rows were laid out in the source file.
type SheetKind int

const (
	// SheetGrid rows are arrays of cells; the first non-empty row is the header.
	SheetGrid SheetKind = iota
	// SheetRecords rows are header-keyed objects (JSON arrays of objects).
	SheetRecords
)

func (k SheetKind) String() string {
	switch k {
	case SheetGrid:
		return "grid"
	case SheetRecords:
		return "records"
	default:
		return "unknown"
	}
}

// RawRow is a single data row keyed by header. Cell values are the original
// cells coerced to strings.
type RawRow struct {
	Index  int
	Values map[string]string
}

// Get returns the cell under header, or "" when the header is empty or absent.
func (r RawRow) Get(header string) string {
	if header == "" {
		return ""
	}
	return r.Values[header]
}

// Sheet is a parsed statement file. The row shape is resolved once at parse
// time so that downstream code only ever sees RawRow.
type Sheet struct {
	Name    string
	Kind    SheetKind
	headers []string
	rows    []RawRow
}

// NewGridSheet builds a Sheet from array-of-cells rows. Leading empty rows
// are skipped, the first remaining row becomes the header and fully empty
// data rows are dropped.
func NewGridSheet(name string, cells [][]string) *Sheet {
	s := &Sheet{Name: name, Kind: SheetGrid}

	start := 0
	for start < len(cells) && isEmptyRow(cells[start]) {
		start++
	}
	if start == len(cells) {
		return s
	}

	for _, h := range cells[start] {
		s.headers = append(s.headers, cleanHeader(h))
	}

	for _, row := range cells[start+1:] {
		if isEmptyRow(row) {
			continue
		}
		values := make(map[string]string, len(s.headers))
		for j, h := range s.headers {
			if h == "" {
				continue
			}
			if _, seen := values[h]; seen {
				continue // first column wins on duplicate headers
			}
			if j < len(row) {
				values[h] = row[j]
			} else {
				values[h] = ""
			}
		}
		s.rows = append(s.rows, RawRow{Index: len(s.rows), Values: values})
	}
	return s
}

// NewRecordSheet builds a Sheet from header-keyed objects. keys fixes the
// header order; records missing a key read as "".
func NewRecordSheet(name string, keys []string, records []map[string]string) *Sheet {
	s := &Sheet{Name: name, Kind: SheetRecords}
	for _, k := range keys {
		s.headers = append(s.headers, cleanHeader(k))
	}
	for _, rec := range records {
		values := make(map[string]string, len(rec))
		for k, v := range rec {
			values[cleanHeader(k)] = v
		}
		s.rows = append(s.rows, RawRow{Index: len(s.rows), Values: values})
	}
	return s
}

// Headers returns the header row in source order.
func (s *Sheet) Headers() []string {
	return s.headers
}

// Len returns the number of data rows.
func (s *Sheet) Len() int {
	return len(s.rows)
}

// Row returns the i-th data row.
func (s *Sheet) Row(i int) RawRow {
	return s.rows[i]
}

// Rows returns all data rows in source order.
func (s *Sheet) Rows() []RawRow {
	return s.rows
}

func cleanHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
