package parser

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
	"github.com/yurifrl/budgetu/pkg/models"
)

const maxXLSRows = 65536

// ParseXLS reads the first worksheet of a legacy BIFF workbook.
func (p *Parser) ParseXLS(data []byte, name string) (sheet *models.Sheet, err error) {
	// extrame/xls panics on some malformed BIFF streams.
	defer func() {
		if r := recover(); r != nil {
			sheet, err = nil, fmt.Errorf("corrupt workbook: %v", r)
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}

	ws := workbook.GetSheet(0)
	if ws == nil {
		return nil, fmt.Errorf("no sheets found in workbook")
	}

	var rows [][]string
	for i := 0; i <= int(ws.MaxRow) && i < maxXLSRows; i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := range cells {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}

	p.logger.Debug("read xls", "sheet", ws.Name, "rows", len(rows))
	return models.NewGridSheet(name, rows), nil
}
