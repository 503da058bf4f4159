package csv

import (
	"strings"
	"unicode/utf8"
)

// Delimiter is a supported field separator
type Delimiter string

const (
	DelimiterComma     Delimiter = ","
	DelimiterSemicolon Delimiter = ";"
	DelimiterTab       Delimiter = "\t"
)

const sampleLineCount = 5

// DetectDelimiter picks the delimiter that appears most consistently across the first lines
func DetectDelimiter(content string) Delimiter {
	sample := make([]string, 0, sampleLineCount)
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sample = append(sample, trimmed)
			if len(sample) == sampleLineCount {
				break
			}
		}
	}
	if len(sample) == 0 {
		return DelimiterComma
	}

	best := DelimiterComma
	bestScore := 0.0
	for _, delim := range []Delimiter{DelimiterComma, DelimiterSemicolon, DelimiterTab} {
		counts := make([]int, len(sample))
		sum := 0
		for i, line := range sample {
			counts[i] = strings.Count(line, string(delim))
			sum += counts[i]
		}
		avg := float64(sum) / float64(len(counts))
		if avg == 0 {
			continue
		}

		variance := 0.0
		for _, c := range counts {
			diff := float64(c) - avg
			variance += diff * diff
		}
		variance /= float64(len(counts))

		if score := avg / (1.0 + variance); score > bestScore {
			bestScore = score
			best = delim
		}
	}
	return best
}

// SplitLine splits a line on delimiter, honouring quoted fields and doubled quotes
func SplitLine(line string, delimiter, quote rune) []string {
	fields := make([]string, 0, 4)
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(line); {
		r, width := utf8.DecodeRuneInString(line[i:])
		i += width

		switch {
		case inQuotes && r == quote:
			if next, w := utf8.DecodeRuneInString(line[i:]); i < len(line) && next == quote {
				current.WriteRune(quote)
				i += w
				continue
			}
			inQuotes = false
		case inQuotes:
			current.WriteRune(r)
		case r == quote:
			inQuotes = true
		case r == delimiter:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(fields, current.String())
}
