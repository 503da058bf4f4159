// Package xlsx reads worksheet rows from Excel workbooks
package xlsx

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Options selects the worksheet; an empty Sheet means the first one
type Options struct {
	Sheet string
}

// ReadRows returns the non-empty rows of the selected worksheet
func ReadRows(content []byte, opts Options) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	rows := make([][]string, 0, len(raw))
	for _, row := range raw {
		if isEmpty(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
