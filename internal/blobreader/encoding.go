package blobreader

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Encoding is a Unicode text encoding recognizable from a byte-order mark.
type Encoding int

const (
	UTF8 Encoding = iota
	UTF16LE
	UTF16BE
	UTF32LE
	UTF32BE
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	case UTF32LE:
		return "utf-32le"
	case UTF32BE:
		return "utf-32be"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding picks an encoding from the byte-order mark at the start of
// data, defaulting to UTF-8. The UTF-32 LE mark begins with the UTF-16 LE
// mark, so the four-byte patterns are tested first.
func DetectEncoding(data []byte) Encoding {
	if len(data) > 4 {
		data = data[:4]
	}
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return UTF8
	case bytes.HasPrefix(data, bomUTF32LE):
		return UTF32LE
	case bytes.HasPrefix(data, bomUTF32BE):
		return UTF32BE
	case bytes.HasPrefix(data, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return UTF16BE
	default:
		return UTF8
	}
}

// textEncoding returns a decoder that strips a leading BOM matching enc.
func (e Encoding) textEncoding() encoding.Encoding {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case UTF32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.UseBOM)
	case UTF32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.UseBOM)
	default:
		return unicode.UTF8BOM
	}
}

// Decode converts data to a string using enc. The byte-order mark is
// consumed, never emitted; malformed sequences become U+FFFD.
func Decode(data []byte, enc Encoding) (string, error) {
	out, err := enc.textEncoding().NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", enc, err)
	}
	return string(out), nil
}

// textKeywords mark a content type as text-like when they appear anywhere in it.
var textKeywords = []string{"json", "xml", "yaml", "csv", "markdown"}

// IsTextLike reports whether contentType names something decodable to text:
// a text/* type, or one mentioning json, xml, yaml, csv or markdown.
// Matching is case-insensitive; an empty content type is not text-like.
func IsTextLike(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return false
	}
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, kw := range textKeywords {
		if strings.Contains(ct, kw) {
			return true
		}
	}
	return false
}
