package document

import (
	"fmt"

	"github.com/tsawler/pdfrev/core"
)

// editSection returns the in-memory section on top of the chain, appending
// one when the newest section is already in the file. Its trailer starts as
// a copy of the previous one without the chaining keys.
func (d *Document) editSection() *Section {
	top := d.chain.top()
	if len(d.chain.sections) > 0 && !top.Committed() {
		return top
	}
	trailer := core.Clone(top.Trailer).(core.Dict)
	trailer.Delete("Prev")
	trailer.Delete("XRefStm")
	s := newSection(trailer)
	d.chain.sections = append(d.chain.sections, s)
	return s
}

// writeTarget is the section that receives edits: the local overlay while a
// local scope is open, the edit section otherwise.
func (d *Document) writeTarget() (*Section, bool) {
	if d.chain.localDepth > 0 {
		return d.chain.local, true
	}
	return d.editSection(), false
}

// put stores obj as the value of num in the write target.
func (d *Document) put(num, gen int, obj core.Object) {
	target, local := d.writeTarget()
	*target.ensure(num) = Entry{Kind: KindNormal, Generation: gen, Offset: -1, value: obj, dirty: true}
	if !local {
		d.chain.hints[num] = d.chain.topIndex()
	}
}

// Update replaces the value of an existing object number. The store takes
// ownership of obj.
func (d *Document) Update(num int, obj core.Object) error {
	if num <= 0 || num >= d.NumObjects() {
		return core.NewObjectError(num, 0, "update", core.ErrRange, "outside %d known objects", d.NumObjects())
	}
	if obj == nil {
		obj = core.Null{}
	}
	local := d.chain.localDepth > 0
	d.put(num, d.chain.generation(num, local), obj)
	return nil
}

// Delete frees num. The next value stored under the number carries a
// bumped generation.
func (d *Document) Delete(num int) error {
	if num <= 0 {
		return core.NewObjectError(num, 0, "delete", core.ErrRange, "object 0 is reserved")
	}
	local := d.chain.localDepth > 0
	if _, _, err := d.chain.lookup(num, d.chain.topIndex(), local); err != nil {
		return err
	}
	gen := d.chain.generation(num, local)
	if gen < core.MaxGeneration {
		gen++
	}
	target, local := d.writeTarget()
	*target.ensure(num) = Entry{Kind: KindFree, Generation: gen, dirty: true}
	if !local {
		d.chain.hints[num] = d.chain.topIndex()
	}
	return nil
}

// Create stores obj under a new object number and returns its reference.
// Numbers are allocated past every known bound; freed numbers are not reused.
func (d *Document) Create(obj core.Object) (core.IndirectRef, error) {
	num := max(d.NumObjects(), 1)
	if num >= maxObjects {
		return core.IndirectRef{}, fmt.Errorf("creating object %d: %w", num, core.ErrSecurityLimit)
	}
	if obj == nil {
		obj = core.Null{}
	}
	d.put(num, 0, obj)
	return core.IndirectRef{Number: num}, nil
}

// Mutable returns a private copy of object num placed in the write target.
// Changes to the returned value are saved; older versions keep their own
// copy.
func (d *Document) Mutable(num int) (core.Object, error) {
	target, local := d.writeTarget()
	if e := target.entry(num); e != nil && e.Kind == KindNormal && e.dirty {
		return e.value, nil
	}
	obj, err := d.get(num, d.chain.topIndex(), true)
	if err != nil {
		return nil, err
	}
	clone := core.Clone(obj)
	d.put(num, d.chain.generation(num, local), clone)
	return clone, nil
}

// MutableDict is Mutable for dictionary objects.
func (d *Document) MutableDict(num int) (core.Dict, error) {
	obj, err := d.Mutable(num)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(core.Dict)
	if !ok {
		return nil, core.NewObjectError(num, 0, "mutable", core.ErrFormat, "object is a %T, not a dictionary", obj)
	}
	return dict, nil
}

// BeginLocal opens a local editing scope. Until the matching EndLocal,
// edits go to a scratch overlay that is visible to Get but never saved.
// Scopes nest.
func (d *Document) BeginLocal() {
	if d.chain.localDepth == 0 {
		d.chain.local = newSection(nil)
	}
	d.chain.localDepth++
}

// EndLocal closes a local scope. Closing the outermost scope discards the
// overlay.
func (d *Document) EndLocal() {
	if d.chain.localDepth == 0 {
		return
	}
	d.chain.localDepth--
	if d.chain.localDepth == 0 {
		d.chain.local = nil
	}
}

// LocalDepth returns the number of open local scopes.
func (d *Document) LocalDepth() int {
	return d.chain.localDepth
}

// Pin is a reference held outside the object graph, kept up to date when a
// save renumbers objects. Pinned objects are never garbage collected.
type Pin struct {
	ref core.IndirectRef
	doc *Document
}

// Pin registers ref as an external anchor.
func (d *Document) Pin(ref core.IndirectRef) *Pin {
	p := &Pin{ref: ref, doc: d}
	d.pins[p] = struct{}{}
	return p
}

// Ref returns the current reference.
func (p *Pin) Ref() core.IndirectRef {
	return p.ref
}

// Release unregisters the pin.
func (p *Pin) Release() {
	if p.doc != nil {
		delete(p.doc.pins, p)
		p.doc = nil
	}
}
