package validate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tsawler/pdfrev/core"
	"github.com/tsawler/pdfrev/document"
)

// Rejection is one unauthorized change.
type Rejection struct {
	Num    int
	Field  string // fully qualified field name, empty outside the form
	Reason string
}

func (r Rejection) String() string {
	if r.Field != "" {
		return fmt.Sprintf("object %d (field %s): %s", r.Num, r.Field, r.Reason)
	}
	return fmt.Sprintf("object %d: %s", r.Num, r.Reason)
}

// Result is the outcome of a validation.
type Result struct {
	Accepted bool
	// Version is the version holding the first unauthorized change, or -1.
	Version  int
	Policy   LockSpec
	Rejected []Rejection
	// Partial is set when the context ended the scan early. Accepted is
	// then false and Rejected holds what was found so far.
	Partial  bool
}

// Err returns an error matching core.ErrValidationRejected for a rejected
// result and nil otherwise.
func (r *Result) Err() error {
	if r.Accepted || r.Partial {
		return nil
	}
	return fmt.Errorf("version %d: %d unauthorized change(s): %w", r.Version, len(r.Rejected), core.ErrValidationRejected)
}

// keys an unlocked field may change
var fillKeys = map[string]bool{"V": true, "AP": true, "AS": true}

// keys a signed catalog may change
var catalogKeys = map[string]bool{"AcroForm": true, "Metadata": true, "Perms": true, "DSS": true, "Extensions": true}

// keys never followed when collecting subtrees
var upwardKeys = map[string]bool{"Parent": true, "P": true, "Data": true}

// Check decides whether every change between version signed and version
// current is allowed by the locking policy in force at signed. Only I/O
// failures are returned as errors.
func Check(ctx context.Context, doc *document.Document, signed, current int) (*Result, error) {
	if signed < 0 || current >= doc.Versions() || signed > current {
		return nil, fmt.Errorf("versions %d..%d of %d: %w", signed, current, doc.Versions(), core.ErrRange)
	}
	res, err := check(ctx, doc, signed, current)
	if err != nil && ctx.Err() != nil {
		return &Result{Version: -1, Partial: true}, nil
	}
	return res, err
}

func check(ctx context.Context, doc *document.Document, signed, current int) (*Result, error) {
	sv, err := doc.View(signed)
	if err != nil {
		return nil, err
	}
	cv, err := doc.View(current)
	if err != nil {
		return nil, err
	}
	a, err := newState(ctx, sv)
	if err != nil {
		return nil, err
	}
	policy, err := policyAt(a, a.fields)
	if err != nil {
		return nil, err
	}
	res := &Result{Accepted: true, Version: -1, Policy: policy}
	if policy.Empty() {
		return res, nil
	}
	b, err := newState(ctx, cv)
	if err != nil {
		return nil, err
	}
	changed, err := doc.ChangedBetween(signed, current)
	if err != nil {
		return nil, err
	}

	ck := &checker{
		ctx:      ctx,
		a:        a,
		b:        b,
		policy:   policy,
		cmp:      newComparer(ctx, a, b),
		allowed:  make(map[int]bool),
		rejected: make(map[int]Rejection),
	}
	err = ck.run(changed)
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	res.Rejected = ck.rejections()
	if err != nil {
		res.Partial = true
		res.Accepted = false
		return res, nil
	}
	if len(res.Rejected) > 0 {
		res.Accepted = false
		res.Version = current
	}
	return res, nil
}

// History checks every pair of adjacent versions, oldest first, and reports
// the earliest version holding an unauthorized change.
func History(ctx context.Context, doc *document.Document) (*Result, error) {
	last := &Result{Accepted: true, Version: -1}
	for v := 1; v < doc.Versions(); v++ {
		res, err := Check(ctx, doc, v-1, v)
		if err != nil {
			return nil, err
		}
		if res.Partial || !res.Accepted {
			return res, nil
		}
		last.Policy = res.Policy
	}
	return last, nil
}

type checker struct {
	ctx    context.Context
	a, b   *state
	policy LockSpec
	cmp    *comparer

	allowed  map[int]bool
	rejected map[int]Rejection
}

// locked reports whether f must stay unchanged. Signature fields still
// unsigned at the signed version may always be signed.
func (ck *checker) locked(f *Field) bool {
	if !ck.policy.Locked(f.Name) {
		return false
	}
	return f.Type != "Sig" || ck.a.signed[f.Num]
}

func (ck *checker) reject(num int, field, reason string) {
	if _, ok := ck.rejected[num]; !ok {
		ck.rejected[num] = Rejection{Num: num, Field: field, Reason: reason}
	}
}

func (ck *checker) rejections() []Rejection {
	out := make([]Rejection, 0, len(ck.rejected))
	for _, r := range ck.rejected {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out
}

func (ck *checker) run(changed []int) error {
	if err := ck.lockedFields(); err != nil {
		return err
	}
	if ck.policy.Permissions != PermNoChanges {
		if err := ck.appearances(); err != nil {
			return err
		}
	}
	unconditional, err := ck.unconditional()
	if err != nil {
		return err
	}

	var deferred []int
	for _, num := range changed {
		if err := ck.ctx.Err(); err != nil {
			return err
		}
		x, err := ck.a.object(num)
		if err != nil {
			return err
		}
		y, err := ck.b.object(num)
		if err != nil {
			return err
		}
		if core.Equal(x, y) || isContainer(x) || isContainer(y) || unconditional[num] {
			continue
		}
		if f := ck.a.byNum[num]; f != nil && ck.locked(f) {
			continue // compared in full by lockedFields
		}
		if ck.policy.Permissions == PermNoChanges {
			ck.reject(num, "", "no changes are permitted")
			continue
		}
		handled, err := ck.structural(num, x, y)
		if err != nil {
			return err
		}
		if !handled {
			deferred = append(deferred, num)
		}
	}
	for _, num := range deferred {
		if !ck.allowed[num] {
			ck.reject(num, "", "unauthorized change")
		}
	}
	return nil
}

// lockedFields compares every locked field and its widgets in full.
func (ck *checker) lockedFields() error {
	for _, f := range ck.a.fields {
		if !ck.locked(f) {
			continue
		}
		if ck.b.byNum[f.Num] == nil {
			ck.reject(f.Num, f.Name, "locked field removed from the form")
			continue
		}
		for _, num := range append([]int{f.Num}, f.Widgets...) {
			same, err := ck.cmp.objects(num)
			if err != nil {
				return err
			}
			if !same {
				ck.reject(num, f.Name, "locked field changed")
			}
		}
	}
	return nil
}

// appearances allows the appearance subtrees of unlocked fields.
func (ck *checker) appearances() error {
	for _, f := range ck.b.fields {
		if ck.locked(f) {
			continue
		}
		for _, num := range append([]int{f.Num}, f.Widgets...) {
			if err := ck.fieldSubtree(num, "AP"); err != nil {
				return err
			}
		}
	}
	return nil
}

// unconditional returns the objects any change may rewrite: document
// information, metadata, encryption and signature values.
func (ck *checker) unconditional() (map[int]bool, error) {
	nums := make(map[int]bool)
	for _, st := range []*state{ck.a, ck.b} {
		trailer := st.src.Trailer()
		for _, key := range []string{"Info", "Encrypt"} {
			if ref, ok := trailer.GetIndirectRef(key); ok {
				nums[ref.Number] = true
			}
		}
		if ref, ok := st.catalog.GetIndirectRef("Metadata"); ok {
			nums[ref.Number] = true
		}
	}
	for _, f := range ck.b.fields {
		if f.Type != "Sig" {
			continue
		}
		d, err := ck.b.dict(f.Num)
		if err != nil {
			return nil, err
		}
		if ref, ok := d.GetIndirectRef("V"); ok {
			nums[ref.Number] = true
		}
	}
	return nums, nil
}

// structural handles changes to form fields, pages, the form and the
// catalog. It reports false for objects of no known role.
func (ck *checker) structural(num int, x, y core.Object) (bool, error) {
	if f := ck.a.byNum[num]; f != nil {
		return true, ck.filledField(num, f)
	}
	if f := ck.b.byNum[num]; f != nil {
		return true, ck.newField(num, f, x)
	}
	if ref, ok := ck.a.src.Trailer().GetIndirectRef("Root"); ok && ref.Number == num {
		return true, ck.catalog(num)
	}
	if ref, ok := ck.a.catalog.GetIndirectRef("AcroForm"); ok && ref.Number == num {
		return true, ck.form(num, x, y)
	}
	xd, _ := x.(core.Dict)
	if xd.IsType("Page") {
		return true, ck.page(num, xd, y)
	}
	if ck.a.annots[num] {
		return true, ck.appended(num, x, y)
	}
	return false, nil
}

func (ck *checker) filledField(num int, f *Field) error {
	if ck.b.byNum[num] == nil {
		ck.reject(num, f.Name, "field removed from the form")
		return nil
	}
	same, err := ck.cmp.objectExcept(num, fillKeys)
	if err != nil {
		return err
	}
	if !same {
		ck.reject(num, f.Name, "field changed beyond its value and appearance")
		return nil
	}
	if err := ck.fieldSubtree(num, "V"); err != nil {
		return err
	}
	return ck.fieldSubtree(num, "AP")
}

func (ck *checker) newField(num int, f *Field, old core.Object) error {
	if _, null := old.(core.Null); !null {
		ck.reject(num, f.Name, "existing object turned into a form field")
		return nil
	}
	if ck.policy.Permissions == PermFormFill && f.Type != "Sig" {
		ck.reject(num, f.Name, "only signature fields may be added")
		return nil
	}
	d, err := ck.b.dict(num)
	if err != nil {
		return err
	}
	if err := ck.collect(d.Get("V")); err != nil {
		return err
	}
	return ck.collect(d.Get("AP"))
}

func (ck *checker) catalog(num int) error {
	same, err := ck.cmp.objectExcept(num, catalogKeys)
	if err != nil {
		return err
	}
	if !same {
		ck.reject(num, "", "catalog changed")
		return nil
	}
	if form, ok := ck.b.catalog.GetDict("AcroForm"); ok {
		old, _ := ck.a.catalog.GetDict("AcroForm")
		if !keepsFields(old, form) {
			ck.reject(num, "", "form fields removed")
		}
	}
	return nil
}

func (ck *checker) form(num int, x, y core.Object) error {
	old, _ := x.(core.Dict)
	cur, _ := y.(core.Dict)
	if cur == nil || !keepsFields(old, cur) {
		ck.reject(num, "", "form fields removed")
		return nil
	}
	return ck.collect(cur.Get("DR"))
}

// keepsFields reports whether every top-level field of old is still listed.
func keepsFields(old, cur core.Dict) bool {
	oldFields, _ := old.GetArray("Fields")
	curFields, _ := cur.GetArray("Fields")
	kept := make(map[core.IndirectRef]bool, len(curFields))
	for _, elem := range curFields {
		if ref, ok := elem.(core.IndirectRef); ok {
			kept[ref] = true
		}
	}
	for _, elem := range oldFields {
		if ref, ok := elem.(core.IndirectRef); ok && !kept[ref] {
			return false
		}
	}
	return true
}

func (ck *checker) page(num int, old core.Dict, y core.Object) error {
	same, err := ck.cmp.objectExcept(num, map[string]bool{"Annots": true})
	if err != nil {
		return err
	}
	if !same {
		ck.reject(num, "", "page changed")
		return nil
	}
	cur, _ := y.(core.Dict)
	xa, err := ck.a.resolve(old.Get("Annots"))
	if err != nil {
		return err
	}
	ya, err := ck.b.resolve(cur.Get("Annots"))
	if err != nil {
		return err
	}
	return ck.appended(num, xa, ya)
}

// appended accepts an annotation array that only grew at the end, together
// with the newly created annotations.
func (ck *checker) appended(num int, x, y core.Object) error {
	if ck.policy.Permissions == PermNoChanges {
		ck.reject(num, "", "no changes are permitted")
		return nil
	}
	old, _ := x.(core.Array)
	cur, ok := y.(core.Array)
	if !ok && len(old) > 0 {
		ck.reject(num, "", "annotations removed")
		return nil
	}
	if len(cur) < len(old) {
		ck.reject(num, "", "annotations removed")
		return nil
	}
	for i := range old {
		if !core.Equal(old[i], cur[i]) {
			ck.reject(num, "", "annotations reordered or replaced")
			return nil
		}
	}
	for _, elem := range cur[len(old):] {
		ref, ok := elem.(core.IndirectRef)
		if !ok {
			continue
		}
		if ck.policy.Permissions == PermFormFill {
			if f := ck.b.byNum[ref.Number]; f == nil || f.Type != "Sig" {
				ck.reject(num, "", "only signature widgets may be added")
				return nil
			}
		}
		if err := ck.collect(ref); err != nil {
			return err
		}
	}
	return nil
}

// fieldSubtree allows what key of field object num reaches: objects the
// same key already reached at the signed version, and objects created since.
func (ck *checker) fieldSubtree(num int, key string) error {
	old, err := ck.a.dict(num)
	if err != nil {
		return err
	}
	err = ck.reach(ck.a, old.Get(key), func(n int) (bool, error) {
		ck.allowed[n] = true
		return true, nil
	})
	if err != nil {
		return err
	}
	cur, err := ck.b.dict(num)
	if err != nil {
		return err
	}
	return ck.collect(cur.Get(key))
}

// collect allows the objects reachable from obj in the current state that
// did not exist at the signed version. Traversal continues through existing
// objects only when they are already allowed.
func (ck *checker) collect(obj core.Object) error {
	return ck.reach(ck.b, obj, func(n int) (bool, error) {
		existed, err := ck.a.exists(n)
		if err != nil {
			return false, err
		}
		if existed {
			return ck.allowed[n], nil
		}
		ck.allowed[n] = true
		return true, nil
	})
}

// reach walks the objects referenced from obj in st. visit is called once
// per object number and reports whether to descend into it. Upward links
// are not followed.
func (ck *checker) reach(st *state, obj core.Object, visit func(num int) (bool, error)) error {
	seen := make(map[int]bool)
	var walk func(obj core.Object) error
	walk = func(obj core.Object) error {
		switch v := obj.(type) {
		case core.IndirectRef:
			if seen[v.Number] {
				return nil
			}
			seen[v.Number] = true
			if err := ck.ctx.Err(); err != nil {
				return err
			}
			descend, err := visit(v.Number)
			if err != nil || !descend {
				return err
			}
			target, err := st.object(v.Number)
			if err != nil {
				return err
			}
			return walk(target)
		case core.Array:
			for _, elem := range v {
				if err := walk(elem); err != nil {
					return err
				}
			}
		case core.Dict:
			for key, val := range v {
				if upwardKeys[key] {
					continue
				}
				if err := walk(val); err != nil {
					return err
				}
			}
		case *core.Stream:
			if v != nil {
				return walk(v.Dict)
			}
		}
		return nil
	}
	return walk(obj)
}

func isContainer(obj core.Object) bool {
	s, ok := obj.(*core.Stream)
	return ok && s != nil && (s.Dict.IsType("XRef") || s.Dict.IsType("ObjStm"))
}

// IsRejected reports whether err is a validation rejection.
func IsRejected(err error) bool {
	return errors.Is(err, core.ErrValidationRejected)
}
