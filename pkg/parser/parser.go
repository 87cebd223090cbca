package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/yurifrl/budgetu/pkg/models"
)

var (
	// ErrUnsupportedFormat is returned for file extensions no reader handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("file is empty")
)

var bom = []byte("\ufeff")

type FileType string

const (
	CSV  FileType = "csv"
	XLSX FileType = "xlsx"
	XLS  FileType = "xls"
	JSON FileType = "json"
)

type Parser struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Parser {
	return &Parser{
		logger: logger,
	}
}

// Supported reports whether filename has an extension ProcessBytes can read.
func Supported(filename string) bool {
	return detectType(filename) != ""
}

// ProcessBytes reads a statement file into a Sheet. The format is chosen by
// the file extension.
func (p *Parser) ProcessBytes(data []byte, filename string) (*models.Sheet, error) {
	fileType := detectType(filename)
	p.logger.Debug("detected file type", "type", fileType, "filename", filename)

	if fileType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrEmptyFile)
	}

	name := filepath.Base(filename)

	var (
		sheet *models.Sheet
		err   error
	)
	switch fileType {
	case CSV:
		sheet, err = p.ParseCSV(data, name)
	case XLSX:
		sheet, err = p.ParseXLSX(data, name)
	case XLS:
		sheet, err = p.ParseXLS(data, name)
	case JSON:
		sheet, err = p.ParseJSON(data, name)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	if len(sheet.Headers()) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}

	p.logger.Info("parsed statement", "file", name, "kind", sheet.Kind, "headers", len(sheet.Headers()), "rows", sheet.Len())
	return sheet, nil
}

func detectType(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return CSV
	case ".xlsx":
		return XLSX
	case ".xls":
		return XLS
	case ".json":
		return JSON
	}
	return ""
}
