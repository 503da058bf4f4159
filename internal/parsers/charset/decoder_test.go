package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEncoding(t *testing.T) {
	assert.Equal(t, EncodingUTF8, DetectEncoding([]byte("plain ascii")))
	assert.Equal(t, EncodingUTF8, DetectEncoding([]byte("čćžšđ")))
	assert.Equal(t, EncodingUTF8, DetectEncoding(append([]byte{0xEF, 0xBB, 0xBF}, "x"...)))
	assert.Equal(t, EncodingWindows1250, DetectEncoding([]byte{'a', 0x8A, 'b'}))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		enc      Encoding
		expected string
	}{
		{name: "utf-8 passthrough", data: []byte("žaba"), enc: EncodingUTF8, expected: "žaba"},
		{name: "bom stripped", data: append([]byte{0xEF, 0xBB, 0xBF}, "hello"...), enc: EncodingUTF8, expected: "hello"},
		{name: "windows-1250", data: []byte{0x8A, 'k', 'o', 'l', 'a'}, enc: EncodingWindows1250, expected: "Škola"},
		{name: "undetected falls back to windows-1250", data: []byte{0x9E, 'i', 'v', 'o'}, enc: "", expected: "živo"},
		{name: "iso-8859-2", data: []byte{0xA9, 'u', 'm', 'a'}, enc: EncodingISO88592, expected: "Šuma"},
		{name: "mislabelled utf-8", data: []byte("čaj"), enc: EncodingWindows1250, expected: "čaj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data, tt.enc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := Decode([]byte{0x8A}, "ebcdic")
	assert.Error(t, err)
}
