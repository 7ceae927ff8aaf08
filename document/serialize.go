package document

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/tsawler/pdfrev/core"
)

// binaryMarker follows the header so transfer tools treat the file as binary.
const binaryMarker = "%\xE2\xE3\xCF\xD3\n"

// headerVersion returns the version written in the header of a full save.
// Cross-reference streams need at least 1.5.
func (st *saveState) headerVersion() (PDFVersion, error) {
	v := st.doc.version
	if st.opts.Version != "" {
		var err error
		if v, err = ParseVersion(st.opts.Version); err != nil {
			return v, err
		}
	}
	streams := PDFVersion{Major: 1, Minor: 5}
	if st.strategy.xrefStream() && v.Less(streams) {
		v = streams
	}
	return v, nil
}

// serialize renders objects, index and trailer into st.buf.
func (st *saveState) serialize() error {
	if st.strategy.incremental() {
		eol, err := st.sourceEndsWithEOL()
		if err != nil {
			return err
		}
		if !eol {
			st.buf = append(st.buf, '\n')
		}
	} else {
		v, err := st.headerVersion()
		if err != nil {
			return err
		}
		st.version = v
		st.buf = fmt.Appendf(st.buf, "%%PDF-%s\n", v)
		st.buf = append(st.buf, binaryMarker...)
	}

	for _, num := range st.numbers() {
		so := st.objects[num]
		if so.container != 0 {
			continue
		}
		start := len(st.buf)
		st.written[num] = st.base + int64(start)
		st.buf = core.AppendIndirectObject(st.buf, core.IndirectRef{Number: num, Generation: so.gen}, so.obj)
		st.spans[num] = [2]int{start, len(st.buf)}
	}

	st.size = max(st.maxNumber()+1, 1)
	if st.strategy.incremental() {
		st.size = max(st.size, st.doc.chain.bound(st.doc.chain.topIndex(), false))
		if prev := st.doc.lastCommitted(); prev.Committed() {
			st.trailer["Prev"] = core.Int(prev.Offset)
		}
	} else {
		st.trailer.Delete("Prev")
	}
	st.trailer["ID"] = st.fileID()
	st.rows = st.buildRows()

	if st.strategy.xrefStream() {
		xnum := st.size
		st.size++
		st.trailer["Size"] = core.Int(st.size)
		st.xrefOffset = st.base + int64(len(st.buf))
		st.rows = append(st.rows, core.XRefRow{Num: xnum, Entry: core.XRefEntry{
			Type:   core.XRefEntryUncompressed,
			Offset: st.xrefOffset,
			InUse:  true,
		}})
		stream, err := core.NewXRefStream(st.rows, st.trailer)
		if err != nil {
			return fmt.Errorf("encoding xref stream: %w", err)
		}
		st.written[xnum] = st.xrefOffset
		st.buf = core.AppendIndirectObject(st.buf, core.IndirectRef{Number: xnum}, stream)
		st.buf = core.AppendStartXRef(st.buf, st.xrefOffset)
		return nil
	}

	st.trailer["Size"] = core.Int(st.size)
	st.xrefOffset = st.base + int64(len(st.buf))
	buf, err := core.AppendXRefTable(st.buf, st.rows)
	if err != nil {
		return err
	}
	st.buf = core.AppendTrailer(buf, st.trailer, st.xrefOffset)
	return nil
}

// buildRows returns the index rows, ascending. A full save describes every
// number below /Size; an incremental save only what changed. Free rows are
// linked into a list in number order.
func (st *saveState) buildRows() []core.XRefRow {
	var rows []core.XRefRow
	add := func(num int) {
		if so, ok := st.objects[num]; ok {
			if so.container != 0 {
				rows = append(rows, core.XRefRow{Num: num, Entry: core.XRefEntry{
					Type: core.XRefEntryCompressed, Offset: int64(so.container), Generation: so.index, InUse: true,
				}})
				return
			}
			rows = append(rows, core.XRefRow{Num: num, Entry: core.XRefEntry{
				Type: core.XRefEntryUncompressed, Offset: st.written[num], Generation: so.gen, InUse: true,
			}})
			return
		}
		gen := st.doc.chain.generation(num, false)
		if num == 0 {
			gen = core.MaxGeneration
		}
		rows = append(rows, core.XRefRow{Num: num, Entry: core.XRefEntry{Type: core.XRefEntryFree, Generation: gen}})
	}

	if st.strategy.incremental() {
		nums := append(st.numbers(), st.free...)
		sort.Ints(nums)
		for _, num := range nums {
			add(num)
		}
	} else {
		for num := 0; num < st.size; num++ {
			add(num)
		}
	}

	last := -1
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Entry.Type != core.XRefEntryFree {
			continue
		}
		if last >= 0 {
			rows[i].Entry.Offset = int64(rows[last].Num)
		}
		last = i
	}
	return rows
}

// fileID keeps the permanent half of an existing /ID and sets a fresh
// changing half.
func (st *saveState) fileID() core.Array {
	id := uuid.New()
	fresh := core.String(id[:])
	if arr, ok := st.trailer.GetArray("ID"); ok && len(arr) == 2 {
		if first, ok := arr[0].(core.String); ok {
			return core.Array{first, fresh}
		}
	}
	return core.Array{fresh, fresh}
}

func (st *saveState) sourceEndsWithEOL() (bool, error) {
	d := st.doc
	if d.size == 0 {
		return true, nil
	}
	var last [1]byte
	if _, err := d.src.ReadAt(last[:], d.size-1); err != nil && err != io.EOF {
		return false, core.IOError("read source", err)
	}
	return last[0] == '\n' || last[0] == '\r', nil
}
