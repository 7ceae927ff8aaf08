package core

import (
	"fmt"
	"sort"
	"strconv"
)

// XRefRow is one cross-reference entry to be written.
type XRefRow struct {
	Num   int
	Entry XRefEntry
}

// SortXRefRows orders rows by object number.
func SortXRefRows(rows []XRefRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Num < rows[j].Num })
}

// XRefSubsections groups sorted rows into runs of consecutive numbers.
func XRefSubsections(rows []XRefRow) []Subsection {
	var subs []Subsection
	for i, row := range rows {
		if i > 0 && row.Num == rows[i-1].Num+1 {
			subs[len(subs)-1].Count++
			continue
		}
		subs = append(subs, Subsection{Start: row.Num, Count: 1})
	}
	return subs
}

// AppendXRefTable appends a classic "xref" table for rows, which must be
// sorted by number. Every entry line is exactly 20 bytes. Compressed entries
// cannot be expressed in a table.
func AppendXRefTable(buf []byte, rows []XRefRow) ([]byte, error) {
	buf = append(buf, "xref\n"...)
	i := 0
	for _, sub := range XRefSubsections(rows) {
		buf = strconv.AppendInt(buf, int64(sub.Start), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(sub.Count), 10)
		buf = append(buf, '\n')
		for end := i + sub.Count; i < end; i++ {
			e := rows[i].Entry
			var flag byte
			switch e.Type {
			case XRefEntryFree:
				flag = 'f'
			case XRefEntryUncompressed:
				flag = 'n'
			default:
				return nil, fmt.Errorf("object %d is compressed and needs an xref stream: %w", rows[i].Num, ErrUnsupported)
			}
			buf = fmt.Appendf(buf, "%010d %05d %c \n", e.Offset, e.Generation, flag)
		}
	}
	return buf, nil
}

// AppendTrailer appends the trailer dictionary and the startxref footer.
func AppendTrailer(buf []byte, trailer Dict, startxref int64) []byte {
	buf = append(buf, "trailer\n"...)
	buf = AppendObject(buf, trailer)
	buf = append(buf, '\n')
	return AppendStartXRef(buf, startxref)
}

// AppendStartXRef appends "startxref", the offset and the end-of-file marker.
func AppendStartXRef(buf []byte, startxref int64) []byte {
	buf = append(buf, "startxref\n"...)
	buf = strconv.AppendInt(buf, startxref, 10)
	return append(buf, "\n%%EOF\n"...)
}

// NewXRefStream encodes rows (sorted by number) as a Flate-compressed
// cross-reference stream. trailer supplies the document keys (/Root, /Info,
// /ID, /Prev, /Size); field widths and /Index are computed from the rows.
func NewXRefStream(rows []XRefRow, trailer Dict) (*Stream, error) {
	var max2, max3 int64
	for _, row := range rows {
		if row.Entry.Offset > max2 {
			max2 = row.Entry.Offset
		}
		if int64(row.Entry.Generation) > max3 {
			max3 = int64(row.Entry.Generation)
		}
	}
	w := [3]int{1, byteWidth(max2), byteWidth(max3)}

	data := make([]byte, 0, len(rows)*(w[0]+w[1]+w[2]))
	for _, row := range rows {
		data = appendBigEndian(data, int64(row.Entry.Type), w[0])
		data = appendBigEndian(data, row.Entry.Offset, w[1])
		data = appendBigEndian(data, int64(row.Entry.Generation), w[2])
	}

	var index Array
	for _, sub := range XRefSubsections(rows) {
		index = append(index, Int(sub.Start), Int(sub.Count))
	}

	dict := Clone(trailer).(Dict)
	dict["Type"] = Name("XRef")
	dict["W"] = Array{Int(w[0]), Int(w[1]), Int(w[2])}
	dict["Index"] = index
	return NewFlateStream(dict, data)
}

// byteWidth returns the number of bytes needed to hold v, at least one.
func byteWidth(v int64) int {
	n := 1
	for v > 0xff {
		v >>= 8
		n++
	}
	return n
}

func appendBigEndian(buf []byte, v int64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
