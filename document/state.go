package document

import (
	"context"
	"errors"
	"sort"

	"github.com/tsawler/pdfrev/core"
)

// saveObject is one object of the working set a save writes.
type saveObject struct {
	gen       int
	obj       core.Object
	container int // object stream holding the object, 0 when written directly
	index     int
}

// saveState carries one save from collection to commit. The working set is
// private to the save: the document is not touched until the output was
// written.
type saveState struct {
	doc      *Document
	opts     SaveOptions
	strategy writeStrategy
	version  PDFVersion
	edit     *Section

	objects    map[int]*saveObject
	free       []int // incremental: numbers freed in the edit section
	trailer    core.Dict
	pins       map[*Pin]core.IndirectRef
	signatures []*pendingSignature

	// mapping follows every collected number to its current number through
	// deduplication and renumbering.
	mapping map[int]int
	removed int
	packed  int

	base       int64 // output offset of buf[0]
	buf        []byte
	spans      map[int][2]int // buf range of each directly written object
	written    map[int]int64  // output offset of each directly written object
	rows       []core.XRefRow
	size       int
	xrefOffset int64
}

func newSaveState(d *Document, opts SaveOptions, strategy writeStrategy) *saveState {
	st := &saveState{
		doc:      d,
		opts:     opts,
		strategy: strategy,
		version:  d.version,
		objects:  make(map[int]*saveObject),
		pins:     make(map[*Pin]core.IndirectRef, len(d.pins)),
		mapping:  make(map[int]int),
		spans:    make(map[int][2]int),
		written:  make(map[int]int64),
	}
	if top := d.chain.top(); len(d.chain.sections) > 0 && !top.Committed() {
		st.edit = top
		st.signatures = top.signatures
	}
	st.trailer = core.Clone(d.chain.top().Trailer).(core.Dict)
	st.trailer.Delete("Prev")
	st.trailer.Delete("XRefStm")
	for p := range d.pins {
		st.pins[p] = p.ref
	}
	if strategy.incremental() {
		st.base = d.size
	}
	return st
}

// numbers returns the numbers of the working set, ascending.
func (st *saveState) numbers() []int {
	nums := make([]int, 0, len(st.objects))
	for num := range st.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

func (st *saveState) maxNumber() int {
	n := 0
	for num := range st.objects {
		n = max(n, num)
	}
	return n
}

// load copies object num at the newest version into the working set. It
// returns nil for cross-reference and object streams, which every save
// regenerates.
func (st *saveState) load(num int) (*saveObject, error) {
	if so, ok := st.objects[num]; ok {
		return so, nil
	}
	d := st.doc
	sec, e, err := d.chain.lookup(num, d.chain.topIndex(), false)
	if err != nil {
		return nil, err
	}
	obj, err := d.materialize(num, sec, e)
	if err != nil {
		return nil, err
	}
	if s, ok := obj.(*core.Stream); ok && (s.Dict.IsType("XRef") || s.Dict.IsType("ObjStm")) {
		return nil, nil
	}
	so := &saveObject{gen: entryGeneration(e), obj: core.Clone(obj)}
	st.objects[num] = so
	st.mapping[num] = num
	return so, nil
}

func missing(err error) bool {
	return errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrRange)
}

// collectAll loads every live object.
func (st *saveState) collectAll(ctx context.Context) error {
	d := st.doc
	bound := d.chain.bound(d.chain.topIndex(), false)
	for num := 1; num < bound; num++ {
		if num%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := st.load(num); err != nil && !missing(err) {
			return err
		}
	}
	return nil
}

// collectReachable loads the objects reachable from the roots. Entries never
// reached are counted as removed without being read.
func (st *saveState) collectReachable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	marked, err := st.mark(st.load)
	if err != nil {
		return err
	}
	d := st.doc
	top := d.chain.topIndex()
	regenerated := st.regenerated()
	for num := 1; num < d.chain.bound(top, false); num++ {
		if marked[num] || regenerated[num] {
			continue
		}
		if _, _, err := d.chain.lookup(num, top, false); err == nil {
			st.removed++
		}
	}
	return nil
}

// regenerated returns the numbers of the chain's cross-reference streams and
// object stream containers, which a save rebuilds instead of carrying over.
func (st *saveState) regenerated() map[int]bool {
	nums := make(map[int]bool)
	for _, s := range st.doc.chain.sections {
		for num := range s.entries {
			e := &s.entries[num]
			switch {
			case e.Kind == KindCompressed:
				nums[e.Container] = true
			case e.Kind == KindNormal && s.XRefStream && e.Offset == s.Offset:
				nums[num] = true
			}
		}
	}
	return nums
}

// collectIncremental takes the entries written in the edit section.
func (st *saveState) collectIncremental() error {
	if st.edit == nil {
		return nil
	}
	for _, num := range st.edit.dirtyNumbers() {
		e := &st.edit.entries[num]
		if e.Kind == KindFree {
			st.free = append(st.free, num)
			continue
		}
		st.objects[num] = &saveObject{gen: e.Generation, obj: core.Clone(e.value)}
		st.mapping[num] = num
	}
	return nil
}

// compress Flate-encodes unfiltered streams of the working set.
func (st *saveState) compress() error {
	for num, so := range st.objects {
		s, ok := so.obj.(*core.Stream)
		if !ok || s.Dict.IsType("ObjStm") || !s.IsCompressible() {
			continue
		}
		if err := s.Compress(); err != nil {
			return &core.ObjectError{Num: num, Gen: so.gen, Op: "compress", Err: err}
		}
	}
	return nil
}
