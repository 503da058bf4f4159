// Package csv reads delimited text files with encoding and delimiter detection
package csv

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kosarica/chunk-service/internal/parsers/charset"
)

// Options controls reading; zero values are detected from the content
type Options struct {
	Delimiter Delimiter
	Encoding  charset.Encoding
	Quote     rune
}

// ReadRows decodes content and splits it into rows of fields.
// Blank lines are skipped. Quoted fields may not span lines.
func ReadRows(content []byte, opts Options) ([][]string, error) {
	if opts.Encoding == "" {
		opts.Encoding = charset.DetectEncoding(content)
	}
	decoded, err := charset.Decode(content, opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	if opts.Delimiter == "" {
		opts.Delimiter = DetectDelimiter(decoded)
	}
	if opts.Quote == 0 {
		opts.Quote = '"'
	}
	delim, _ := utf8.DecodeRuneInString(string(opts.Delimiter))

	var rows [][]string
	for _, line := range strings.Split(decoded, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, SplitLine(line, delim, opts.Quote))
	}
	return rows, nil
}
