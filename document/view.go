package document

import (
	"fmt"
	"sort"

	"github.com/tsawler/pdfrev/core"
)

// View reads the document as of an older version. Views never see the local
// overlay and never modify anything; values are shared with the store.
type View struct {
	doc     *Document
	horizon int
	epoch   int
}

// View returns a read-only view of version v, where 0 is the base file and
// Versions()-1 the newest.
func (d *Document) View(v int) (*View, error) {
	if v < 0 || v >= len(d.chain.sections) {
		return nil, fmt.Errorf("version %d of %d: %w", v, len(d.chain.sections), core.ErrRange)
	}
	return &View{doc: d, horizon: v, epoch: d.chain.epoch}, nil
}

// Version returns the version the view reads.
func (v *View) Version() int {
	return v.horizon
}

func (v *View) check() error {
	if v.epoch != v.doc.chain.epoch {
		return fmt.Errorf("view of version %d is stale after repair or save: %w", v.horizon, core.ErrUnsupported)
	}
	return nil
}

// Get returns object num as of the view's version.
func (v *View) Get(num int) (core.Object, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	return v.doc.get(num, v.horizon, false)
}

// GetObject is Get under the name resolver helpers expect.
func (v *View) GetObject(num int) (core.Object, error) {
	return v.Get(num)
}

// ResolveReference resolves ref as of the view's version; free and
// undefined objects resolve to null.
func (v *View) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return nullIfMissing(v.Get(ref.Number))
}

// Resolve follows obj when it is an indirect reference.
func (v *View) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return v.ResolveReference(ref)
	}
	return obj, nil
}

// Trailer returns the trailer of the view's version.
func (v *View) Trailer() core.Dict {
	return v.doc.chain.sections[v.horizon].Trailer
}

// GetCatalog returns the catalog as of the view's version.
func (v *View) GetCatalog() (core.Dict, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	return catalogOf(v, v.Trailer())
}

// NumObjects returns one past the highest object number at the view's version.
func (v *View) NumObjects() int {
	return v.doc.chain.bound(v.horizon, false)
}

// ChangedBetween returns the object numbers that sections after version a
// up to and including version b define, ascending. These are the only
// numbers whose value can differ between the two versions.
func (d *Document) ChangedBetween(a, b int) ([]int, error) {
	if a < 0 || b >= len(d.chain.sections) || a > b {
		return nil, fmt.Errorf("versions %d..%d of %d: %w", a, b, len(d.chain.sections), core.ErrRange)
	}
	seen := make(map[int]bool)
	var nums []int
	for i := a + 1; i <= b; i++ {
		for _, num := range d.chain.sections[i].Numbers() {
			if num > 0 && !seen[num] {
				seen[num] = true
				nums = append(nums, num)
			}
		}
	}
	sort.Ints(nums)
	return nums, nil
}
