package filters

import (
	"bytes"
	"fmt"
)

// ASCIIHexDecode decodes ASCII hexadecimal encoded data.
// Whitespace is ignored, > marks end of data, and an odd final digit is
// padded with 0.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	var result bytes.Buffer
	var hi byte
	half := false

	for _, c := range data {
		if isWhitespace(c) {
			continue
		}
		if c == '>' {
			break
		}
		v, err := hexDigitToByte(c)
		if err != nil {
			return nil, err
		}
		if half {
			result.WriteByte(hi<<4 | v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		result.WriteByte(hi << 4)
	}
	return result.Bytes(), nil
}

// ASCIIHexEncode encodes data as upper-case hexadecimal digits without the
// end-of-data marker.
func ASCIIHexEncode(data []byte) []byte {
	const digits = "0123456789ABCDEF"
	out := make([]byte, len(data)*2)
	for i, b := range data {
		out[2*i] = digits[b>>4]
		out[2*i+1] = digits[b&0xf]
	}
	return out
}

// ASCII85Decode decodes ASCII base-85 (Ascii85) encoded data.
// 'z' stands for four zero bytes and ~> marks end of data.
func ASCII85Decode(data []byte) ([]byte, error) {
	var result bytes.Buffer
	var group [5]byte
	n := 0

	flush := func(count int) {
		for i := count; i < 5; i++ {
			group[i] = 84 // pad with 'u'
		}
		value := uint32(0)
		for _, d := range group {
			value = value*85 + uint32(d)
		}
		for j := 0; j < count-1; j++ {
			result.WriteByte(byte(value >> (24 - j*8)))
		}
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case isWhitespace(c):
			continue
		case c == '~':
			if n > 0 {
				flush(n)
			}
			return result.Bytes(), nil
		case c == 'z' && n == 0:
			result.Write([]byte{0, 0, 0, 0})
			continue
		case c < '!' || c > 'u':
			return nil, fmt.Errorf("invalid ASCII85 character: %c", c)
		}
		group[n] = c - '!'
		n++
		if n == 5 {
			flush(5)
			n = 0
		}
	}
	if n > 0 {
		flush(n)
	}
	return result.Bytes(), nil
}

// hexDigitToByte converts a hexadecimal character to its numeric value (0-15).
func hexDigitToByte(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit: %c", c)
	}
}

// isWhitespace reports whether c is a PDF whitespace character.
func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}
