package document

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tsawler/pdfrev/core"
)

// Get returns the object numbered num at the newest version, including the
// local overlay. The value is shared with the store: use Mutable or Update
// to change it.
func (d *Document) Get(num int) (core.Object, error) {
	return d.get(num, d.chain.topIndex(), true)
}

// GetObject is Get under the name the page and resolver helpers expect.
func (d *Document) GetObject(num int) (core.Object, error) {
	return d.Get(num)
}

// ResolveReference resolves an indirect reference at the newest version.
// Free and undefined objects resolve to null. Generations are not enforced.
func (d *Document) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return nullIfMissing(d.Get(ref.Number))
}

// Resolve follows obj when it is an indirect reference and returns it
// unchanged otherwise.
func (d *Document) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return d.ResolveReference(ref)
	}
	return obj, nil
}

func nullIfMissing(obj core.Object, err error) (core.Object, error) {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrRange) {
		return core.Null{}, nil
	}
	return obj, err
}

// get resolves num at horizon, repairing the document once when a stored
// object turns out to be unreadable.
func (d *Document) get(num, horizon int, local bool) (core.Object, error) {
	obj, err := d.resolve(num, horizon, local)
	if err == nil || !errors.Is(err, core.ErrFormat) || !d.canRepair() {
		return obj, err
	}

	d.logger.Warn("object unreadable, repairing document", "num", num, "err", err)
	if rerr := d.repair(context.Background()); rerr != nil {
		return nil, fmt.Errorf("%w (repair failed: %v)", err, rerr)
	}
	return d.resolve(num, min(horizon, d.chain.topIndex()), local)
}

func (d *Document) canRepair() bool {
	return d.allowRepair && !d.repaired && !d.repairing && d.src != nil
}

// resolve looks num up and materializes the value.
func (d *Document) resolve(num, horizon int, local bool) (core.Object, error) {
	sec, e, err := d.chain.lookup(num, horizon, local)
	if err != nil {
		return nil, err
	}
	return d.materialize(num, sec, e)
}

// materialize returns the cached value of e, loading it on first use.
func (d *Document) materialize(num, sec int, e *Entry) (core.Object, error) {
	if e.value != nil {
		return e.value, nil
	}
	if e.loading {
		return nil, core.NewObjectError(num, e.Generation, "load", core.ErrRecursiveReference, "object is being loaded")
	}
	e.loading = true
	defer func() { e.loading = false }()

	var obj core.Object
	var err error
	switch e.Kind {
	case KindNormal:
		obj, err = d.parseAt(num, e, sec)
	case KindCompressed:
		obj, err = d.loadCompressed(num, e, sec)
	default:
		return nil, core.NewObjectError(num, e.Generation, "load", core.ErrNotFound, "entry kind %s", e.Kind)
	}
	if err != nil {
		return nil, err
	}
	e.value = obj
	return obj, nil
}

// parseAt reads the object stored at e.Offset. Indirect stream lengths are
// resolved at the horizon of the owning section.
func (d *Document) parseAt(num int, e *Entry, sec int) (core.Object, error) {
	if d.src == nil {
		return nil, core.NewObjectError(num, e.Generation, "load", core.ErrIO, "document is closed")
	}
	if e.Offset < 0 || e.Offset >= d.size {
		return nil, core.NewObjectError(num, e.Generation, "load", core.ErrFormat, "offset %d outside file of %d bytes", e.Offset, d.size)
	}

	parser := core.NewParser(io.NewSectionReader(d.src, e.Offset, d.size-e.Offset))
	parser.SetMaxStreamLength(d.size - e.Offset)
	parser.SetReferenceResolver(horizonResolver{doc: d, horizon: max(sec, 0)})

	indObj, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, &core.ObjectError{Num: num, Gen: e.Generation, Op: "load", Err: err}
	}
	if indObj.Ref.Number != num {
		return nil, core.NewObjectError(num, e.Generation, "load", core.ErrFormat,
			"offset %d holds object %d", e.Offset, indObj.Ref.Number)
	}
	if s, ok := indObj.Object.(*core.Stream); ok {
		s.DataOffset += e.Offset
	}
	return indObj.Object, nil
}

// loadCompressed extracts a member of an object stream. The container is
// looked up at the horizon of the section that references it.
func (d *Document) loadCompressed(num int, e *Entry, sec int) (core.Object, error) {
	horizon := sec
	if sec == localLayer {
		horizon = d.chain.topIndex()
	}
	csec, ce, err := d.chain.lookup(e.Container, horizon, false)
	if err != nil {
		return nil, core.NewObjectError(num, 0, "load", core.ErrInconsistentContainer, "container %d: %v", e.Container, err)
	}
	if ce.objstm == nil {
		obj, err := d.materialize(e.Container, csec, ce)
		if err != nil {
			return nil, err
		}
		stream, ok := obj.(*core.Stream)
		if !ok {
			return nil, core.NewObjectError(num, 0, "load", core.ErrInconsistentContainer, "container %d is a %T", e.Container, obj)
		}
		objstm, err := core.NewObjectStream(stream)
		if err != nil {
			return nil, &core.ObjectError{Num: e.Container, Op: "load", Err: err}
		}
		ce.objstm = objstm
	}

	obj, member, err := ce.objstm.GetObjectByIndex(e.Index)
	if err != nil {
		return nil, &core.ObjectError{Num: num, Op: "load", Err: err}
	}
	if member != num {
		return nil, core.NewObjectError(num, 0, "load", core.ErrInconsistentContainer,
			"container %d index %d holds object %d", e.Container, e.Index, member)
	}
	return obj, nil
}

// horizonResolver resolves references as of a fixed version.
type horizonResolver struct {
	doc     *Document
	horizon int
}

func (r horizonResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return nullIfMissing(r.doc.resolve(ref.Number, r.horizon, false))
}
