package document

import (
	"github.com/cespare/xxhash/v2"

	"github.com/tsawler/pdfrev/core"
)

// mergeable reports whether obj may be replaced by an identical object.
// Pages keep their identity because viewers and structure trees tell them
// apart by reference; signature dictionaries are patched after writing.
func mergeable(obj core.Object) bool {
	var dict core.Dict
	switch v := obj.(type) {
	case core.Dict:
		dict = v
	case *core.Stream:
		dict = v.Dict
	default:
		return true
	}
	return !dict.IsType("Page") && !dict.IsType("Sig")
}

// dedup redirects references from each object to the lowest-numbered object
// with the same serialized form, then drops the copies. Candidates are
// bucketed by xxhash and confirmed with a structural comparison. It reports
// whether anything merged.
func (st *saveState) dedup() bool {
	buckets := make(map[uint64][]int)
	for _, num := range st.numbers() {
		so := st.objects[num]
		if !mergeable(so.obj) {
			continue
		}
		h := xxhash.Sum64(core.Serialize(so.obj))
		buckets[h] = append(buckets[h], num)
	}

	redirect := make(map[int]int)
	for _, nums := range buckets {
		for i, num := range nums {
			if _, dup := redirect[num]; dup {
				continue
			}
			for _, other := range nums[i+1:] {
				if _, dup := redirect[other]; dup {
					continue
				}
				if core.Equal(st.objects[num].obj, st.objects[other].obj) {
					redirect[other] = num
				}
			}
		}
	}
	if len(redirect) == 0 {
		return false
	}

	for dup := range redirect {
		delete(st.objects, dup)
	}
	st.removed += len(redirect)
	st.rewrite(func(ref core.IndirectRef) core.Object {
		if to, ok := redirect[ref.Number]; ok {
			return core.IndirectRef{Number: to, Generation: st.objects[to].gen}
		}
		return ref
	})
	for p, ref := range st.pins {
		if to, ok := redirect[ref.Number]; ok {
			st.pins[p] = core.IndirectRef{Number: to, Generation: st.objects[to].gen}
		}
	}
	for orig, cur := range st.mapping {
		if to, ok := redirect[cur]; ok {
			st.mapping[orig] = to
		}
	}
	return true
}
