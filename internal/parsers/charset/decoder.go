// Package charset normalises uploaded text files to UTF-8
package charset

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding represents a text encoding
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1250 Encoding = "windows-1250"
	EncodingISO88592    Encoding = "iso-8859-2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectEncoding reports UTF-8 for valid UTF-8 input and Windows-1250 otherwise
func DetectEncoding(data []byte) Encoding {
	if bytes.HasPrefix(data, utf8BOM) || utf8.Valid(data) {
		return EncodingUTF8
	}
	return EncodingWindows1250
}

// Decode converts data in the given encoding to a UTF-8 string.
// Valid UTF-8 input is returned as is whatever encoding was requested.
func Decode(data []byte, enc Encoding) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	var cm *charmap.Charmap
	switch enc {
	case EncodingUTF8, "", EncodingWindows1250:
		cm = charmap.Windows1250
	case EncodingISO88592:
		cm = charmap.ISO8859_2
	default:
		return "", fmt.Errorf("unsupported encoding %q", enc)
	}

	out, err := cm.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", enc, err)
	}
	return string(out), nil
}
