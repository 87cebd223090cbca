package parser

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"github.com/yurifrl/budgetu/pkg/models"
)

// ParseXLSX reads the first worksheet of an Office Open XML workbook.
func (p *Parser) ParseXLSX(data []byte, name string) (*models.Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in workbook")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}

	p.logger.Debug("read xlsx", "sheet", sheets[0], "rows", len(rows))
	return models.NewGridSheet(name, rows), nil
}
