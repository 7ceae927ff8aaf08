package core

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DecodeTextString converts a PDF text string to UTF-8. Strings starting
// with a UTF-16 byte order mark are decoded as UTF-16, a UTF-8 BOM is
// stripped, and anything else is read as PDFDocEncoding, approximated by
// Latin-1 which agrees on every printable ASCII and most upper-half codes.
func DecodeTextString(s String) string {
	b := []byte(s)
	switch {
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}), bytes.HasPrefix(b, []byte{0xFF, 0xFE}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(b)
		if err != nil {
			return string(s)
		}
		return string(out)
	case bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}):
		return string(b[3:])
	}

	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(s)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(s)
	}
	return string(out)
}

// EncodeTextString returns s as a PDF text string: unchanged when it is
// plain ASCII, UTF-16BE with a byte order mark otherwise.
func EncodeTextString(s string) String {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
			out, err := enc.String(s)
			if err != nil {
				return String(s)
			}
			return String(out)
		}
	}
	return String(s)
}
