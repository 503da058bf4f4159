// Package parsers turns uploaded CSV and XLSX files into queue batch items
package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kosarica/chunk-service/internal/parsers/csv"
	"github.com/kosarica/chunk-service/internal/parsers/xlsx"
	"github.com/kosarica/chunk-service/internal/taskqueue"
)

// Format is a supported file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DefaultPriority is used for rows without a priority column
const DefaultPriority = 1

// Options controls file parsing
type Options struct {
	Format    Format // detected from the extension when empty
	Sheet     string
	Delimiter csv.Delimiter
}

// FormatFromPath maps a file extension to a format
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// ParseFile reads path and returns one batch item per data row
func ParseFile(path string, opts Options) ([]taskqueue.BatchItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if opts.Format == "" {
		if opts.Format, err = FormatFromPath(path); err != nil {
			return nil, err
		}
	}
	return Parse(content, opts)
}

// Parse converts file content to batch items
func Parse(content []byte, opts Options) ([]taskqueue.BatchItem, error) {
	var (
		rows [][]string
		err  error
	)
	switch opts.Format {
	case FormatCSV:
		rows, err = csv.ReadRows(content, csv.Options{Delimiter: opts.Delimiter})
	case FormatXLSX:
		rows, err = xlsx.ReadRows(content, xlsx.Options{Sheet: opts.Sheet})
	default:
		return nil, fmt.Errorf("unsupported format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}
	return FromRows(rows)
}

// FromRows maps rows to batch items. A first row naming a "text" column is
// treated as a header and may also name a "priority" column; without a header
// the first column is the text and the optional second one the priority.
func FromRows(rows [][]string) ([]taskqueue.BatchItem, error) {
	textCol, priorityCol := 0, 1
	if len(rows) > 0 {
		if t, p, ok := headerColumns(rows[0]); ok {
			textCol, priorityCol = t, p
			rows = rows[1:]
		}
	}

	items := make([]taskqueue.BatchItem, 0, len(rows))
	for i, row := range rows {
		if textCol >= len(row) || strings.TrimSpace(row[textCol]) == "" {
			continue
		}

		item := taskqueue.BatchItem{Text: strings.TrimSpace(row[textCol]), Priority: DefaultPriority}
		if priorityCol >= 0 && priorityCol < len(row) {
			if raw := strings.TrimSpace(row[priorityCol]); raw != "" {
				p, err := strconv.Atoi(raw)
				if err != nil {
					return nil, fmt.Errorf("row %d: invalid priority %q", i+1, raw)
				}
				item.Priority = p
			}
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no chunks found")
	}
	return items, nil
}

func headerColumns(row []string) (textCol, priorityCol int, ok bool) {
	textCol, priorityCol = -1, -1
	for i, cell := range row {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "text":
			textCol = i
		case "priority":
			priorityCol = i
		}
	}
	return textCol, priorityCol, textCol >= 0
}
