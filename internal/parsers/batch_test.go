package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kosarica/chunk-service/internal/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFromRows(t *testing.T) {
	tests := []struct {
		name     string
		rows     [][]string
		expected []taskqueue.BatchItem
	}{
		{
			name:     "header with reordered columns",
			rows:     [][]string{{"Priority", "Text"}, {"3", "alpha"}, {"", "beta"}},
			expected: []taskqueue.BatchItem{{Text: "alpha", Priority: 3}, {Text: "beta", Priority: 1}},
		},
		{
			name:     "header without priority",
			rows:     [][]string{{"id", "text"}, {"1", "alpha"}, {"2", "beta"}},
			expected: []taskqueue.BatchItem{{Text: "alpha", Priority: 1}, {Text: "beta", Priority: 1}},
		},
		{
			name:     "no header",
			rows:     [][]string{{"alpha", "5"}, {"beta"}},
			expected: []taskqueue.BatchItem{{Text: "alpha", Priority: 5}, {Text: "beta", Priority: 1}},
		},
		{
			name:     "blank text rows skipped",
			rows:     [][]string{{"text"}, {"  "}, {"gamma"}},
			expected: []taskqueue.BatchItem{{Text: "gamma", Priority: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := FromRows(tt.rows)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, items)
		})
	}
}

func TestFromRowsErrors(t *testing.T) {
	_, err := FromRows([][]string{{"text", "priority"}, {"a", "high"}})
	assert.ErrorContains(t, err, "invalid priority")

	_, err = FromRows([][]string{{"text"}})
	assert.ErrorContains(t, err, "no chunks")
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("chunks.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = FormatFromPath("/tmp/book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = FormatFromPath("data.json")
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "chunks.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("text;priority\nfirst;2\nsecond;1\n"), 0644))

	items, err := ParseFile(csvPath, Options{})
	require.NoError(t, err)
	assert.Equal(t, []taskqueue.BatchItem{{Text: "first", Priority: 2}, {Text: "second", Priority: 1}}, items)

	book := excelize.NewFile()
	require.NoError(t, book.SetSheetRow("Sheet1", "A1", &[]any{"text"}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A2", &[]any{"from excel"}))
	xlsxPath := filepath.Join(dir, "chunks.xlsx")
	require.NoError(t, book.SaveAs(xlsxPath))
	require.NoError(t, book.Close())

	items, err = ParseFile(xlsxPath, Options{})
	require.NoError(t, err)
	assert.Equal(t, []taskqueue.BatchItem{{Text: "from excel", Priority: 1}}, items)

	_, err = ParseFile(filepath.Join(dir, "missing.csv"), Options{})
	assert.Error(t, err)
}
