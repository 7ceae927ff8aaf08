package document

import (
	"github.com/tsawler/pdfrev/core"
)

// rewrite replaces every reference in the working set and the trailer with
// fn's result. A reference replaced by null disappears: dictionary entries
// are removed, array elements become null.
func (st *saveState) rewrite(fn func(core.IndirectRef) core.Object) {
	for _, so := range st.objects {
		so.obj = rewriteRefs(so.obj, fn)
	}
	st.trailer = rewriteRefs(st.trailer, fn).(core.Dict)
}

func rewriteRefs(obj core.Object, fn func(core.IndirectRef) core.Object) core.Object {
	switch v := obj.(type) {
	case core.IndirectRef:
		return fn(v)
	case core.Array:
		for i, elem := range v {
			v[i] = rewriteRefs(elem, fn)
		}
		return v
	case core.Dict:
		for k, val := range v {
			val = rewriteRefs(val, fn)
			if _, null := val.(core.Null); null {
				delete(v, k)
				continue
			}
			v[k] = val
		}
		return v
	case *core.Stream:
		if v != nil && v.Dict != nil {
			rewriteRefs(v.Dict, fn)
		}
		return v
	default:
		return obj
	}
}

// renumber gives the working set the numbers 1..n in ascending order of the
// current numbers, all with generation 0. References to objects outside the
// working set become null. It reports whether anything moved.
func (st *saveState) renumber() bool {
	nums := st.numbers()
	moved := false
	next := make(map[int]int, len(nums))
	for i, num := range nums {
		next[num] = i + 1
		if num != i+1 || st.objects[num].gen != 0 {
			moved = true
		}
	}
	if !moved {
		return false
	}

	objects := make(map[int]*saveObject, len(nums))
	for old, num := range next {
		so := st.objects[old]
		so.gen = 0
		objects[num] = so
	}
	st.objects = objects
	st.rewrite(func(ref core.IndirectRef) core.Object {
		if num, ok := next[ref.Number]; ok {
			return core.IndirectRef{Number: num}
		}
		return core.Null{}
	})

	for p, ref := range st.pins {
		if num, ok := next[ref.Number]; ok {
			st.pins[p] = core.IndirectRef{Number: num}
		}
	}
	for orig, cur := range st.mapping {
		if num, ok := next[cur]; ok {
			st.mapping[orig] = num
		} else {
			delete(st.mapping, orig)
		}
	}
	return true
}
