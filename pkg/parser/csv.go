package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/yurifrl/budgetu/pkg/models"
)

var delimiters = []rune{',', ';', '\t'}

// ParseCSV reads delimited text. The delimiter is whichever of ',', ';' or
// tab appears most often on the first non-empty line.
func (p *Parser) ParseCSV(data []byte, name string) (*models.Sheet, error) {
	data = bytes.TrimPrefix(data, bom)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1 // bank exports pad or truncate trailing columns
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	p.logger.Debug("read csv", "records", len(records), "delimiter", string(r.Comma))
	return models.NewGridSheet(name, records), nil
}

func sniffDelimiter(data []byte) rune {
	var first string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			first = line
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range delimiters {
		if n := strings.Count(first, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
