package document

import (
	"github.com/tsawler/pdfrev/core"
)

// roots returns the object numbers the trailer and the pins refer to.
func (st *saveState) roots() []int {
	var nums []int
	visitRefs(st.trailer, func(ref core.IndirectRef) {
		nums = append(nums, ref.Number)
	})
	for _, ref := range st.pins {
		nums = append(nums, ref.Number)
	}
	return nums
}

// mark returns the numbers reachable from the roots, fetching objects through
// load. The traversal keeps its own stack so deep graphs cannot exhaust the
// goroutine stack.
func (st *saveState) mark(load func(int) (*saveObject, error)) (map[int]bool, error) {
	marked := make(map[int]bool)
	stack := st.roots()
	for len(stack) > 0 {
		num := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if num <= 0 || marked[num] {
			continue
		}
		so, err := load(num)
		if err != nil {
			if missing(err) {
				continue
			}
			return nil, err
		}
		if so == nil {
			continue
		}
		marked[num] = true
		visitRefs(so.obj, func(ref core.IndirectRef) {
			if !marked[ref.Number] {
				stack = append(stack, ref.Number)
			}
		})
	}
	return marked, nil
}

// sweep drops unreachable objects from the working set and returns how many
// went.
func (st *saveState) sweep() int {
	marked, _ := st.mark(func(num int) (*saveObject, error) {
		return st.objects[num], nil
	})
	n := 0
	for num := range st.objects {
		if !marked[num] {
			delete(st.objects, num)
			n++
		}
	}
	if n > 0 {
		st.removed += n
		st.forget()
	}
	return n
}

// forget drops mapping entries whose object left the working set.
func (st *saveState) forget() {
	for orig, cur := range st.mapping {
		if _, ok := st.objects[cur]; !ok {
			delete(st.mapping, orig)
		}
	}
}

// visitRefs calls fn for every reference inside obj without following it.
func visitRefs(obj core.Object, fn func(core.IndirectRef)) {
	switch v := obj.(type) {
	case core.IndirectRef:
		fn(v)
	case core.Array:
		for _, elem := range v {
			visitRefs(elem, fn)
		}
	case core.Dict:
		for _, val := range v {
			visitRefs(val, fn)
		}
	case *core.Stream:
		if v != nil {
			visitRefs(v.Dict, fn)
		}
	}
}
