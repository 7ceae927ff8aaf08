package core

import (
	"bytes"
	"io"
	"math"
	"strconv"
)

// AppendObject appends the PDF syntax of obj to buf. Dictionaries are written
// with sorted keys so equal objects always serialize to equal bytes.
// Stream /Length is rewritten to match the data.
func AppendObject(buf []byte, obj Object) []byte {
	switch v := obj.(type) {
	case nil, Null:
		return append(buf, "null"...)
	case Bool:
		return append(buf, v.String()...)
	case Int:
		return strconv.AppendInt(buf, int64(v), 10)
	case Real:
		return appendReal(buf, float64(v))
	case String:
		return appendString(buf, string(v))
	case Name:
		return appendName(buf, string(v))
	case IndirectRef:
		buf = strconv.AppendInt(buf, int64(v.Number), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(v.Generation), 10)
		return append(buf, " R"...)
	case Array:
		buf = append(buf, '[')
		for i, elem := range v {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = AppendObject(buf, elem)
		}
		return append(buf, ']')
	case Dict:
		buf = append(buf, "<<"...)
		for _, key := range v.Keys() {
			buf = appendName(buf, key)
			buf = append(buf, ' ')
			buf = AppendObject(buf, v[key])
		}
		return append(buf, ">>"...)
	case *Stream:
		dict := v.Dict
		if dict == nil {
			dict = Dict{}
		}
		if n, ok := dict.GetInt("Length"); !ok || int(n) != len(v.Data) {
			dict = Clone(dict).(Dict)
			dict["Length"] = Int(len(v.Data))
		}
		buf = AppendObject(buf, dict)
		buf = append(buf, "\nstream\n"...)
		buf = append(buf, v.Data...)
		return append(buf, "\nendstream"...)
	default:
		return append(buf, "null"...)
	}
}

// Serialize returns the PDF syntax of obj.
func Serialize(obj Object) []byte {
	return AppendObject(nil, obj)
}

// WriteObject writes the PDF syntax of obj to w.
func WriteObject(w io.Writer, obj Object) error {
	_, err := w.Write(Serialize(obj))
	return err
}

// AppendIndirectObject appends a complete "N G obj ... endobj" definition.
func AppendIndirectObject(buf []byte, ref IndirectRef, obj Object) []byte {
	buf = strconv.AppendInt(buf, int64(ref.Number), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(ref.Generation), 10)
	buf = append(buf, " obj\n"...)
	buf = AppendObject(buf, obj)
	return append(buf, "\nendobj\n"...)
}

func appendReal(buf []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(buf, '0')
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.AppendInt(buf, int64(f), 10)
	}
	return strconv.AppendFloat(buf, f, 'f', -1, 64)
}

func appendName(buf []byte, name string) []byte {
	buf = append(buf, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			buf = append(buf, '#', hexDigits[c>>4], hexDigits[c&0xf])
			continue
		}
		buf = append(buf, c)
	}
	return buf
}

const hexDigits = "0123456789ABCDEF"

// appendString writes a literal string unless the content is mostly binary,
// in which case hexadecimal syntax is shorter and safer.
func appendString(buf []byte, s string) []byte {
	binary := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 0x20 || c > 0x7e) && c != '\n' && c != '\r' && c != '\t' {
			binary++
		}
	}
	if binary > len(s)/4 {
		buf = append(buf, '<')
		for i := 0; i < len(s); i++ {
			buf = append(buf, hexDigits[s[i]>>4], hexDigits[s[i]&0xf])
		}
		return append(buf, '>')
	}

	buf = append(buf, '(')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(', ')', '\\':
			buf = append(buf, '\\', c)
		case '\n':
			buf = append(buf, `\n`...)
		case '\r':
			buf = append(buf, `\r`...)
		case '\t':
			buf = append(buf, `\t`...)
		default:
			if c < 0x20 || c > 0x7e {
				buf = append(buf, '\\', '0'+(c>>6), '0'+((c>>3)&7), '0'+(c&7))
			} else {
				buf = append(buf, c)
			}
		}
	}
	return append(buf, ')')
}

// HexString returns s in hexadecimal string syntax regardless of content.
func HexString(s []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(s)*2 + 2)
	b.WriteByte('<')
	for _, c := range s {
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0xf])
	}
	b.WriteByte('>')
	return b.Bytes()
}
