package pages

import (
	"context"
	"fmt"

	"github.com/tsawler/pdfrev/core"
)

// Getter loads indirect objects by number. Documents and views satisfy it.
type Getter interface {
	Get(num int) (core.Object, error)
}

// Page is a leaf of the page tree.
type Page struct {
	Ref   core.IndirectRef
	Dict  core.Dict
	Index int // 0-based position in document order

	getter  Getter
	parents []core.Dict // ancestors, nearest first
}

// Walk returns the pages below the catalog's /Pages in document order.
// Nodes reached twice are visited once, so cyclic /Kids arrays terminate.
// Nodes that are not dictionaries are skipped.
func Walk(ctx context.Context, g Getter, catalog core.Dict) ([]*Page, error) {
	root, ok := catalog.GetIndirectRef("Pages")
	if !ok {
		return nil, core.FormatErrorf("catalog missing /Pages entry")
	}
	w := &walker{ctx: ctx, g: g, seen: make(map[int]bool)}
	if err := w.node(root, nil); err != nil {
		return nil, fmt.Errorf("failed to traverse page tree: %w", err)
	}
	return w.pages, nil
}

type walker struct {
	ctx   context.Context
	g     Getter
	seen  map[int]bool
	pages []*Page
}

func (w *walker) node(ref core.IndirectRef, parents []core.Dict) error {
	if w.seen[ref.Number] {
		return nil
	}
	w.seen[ref.Number] = true
	if len(parents) > core.MaxNestingDepth {
		return fmt.Errorf("page tree deeper than %d: %w", core.MaxNestingDepth, core.ErrSecurityLimit)
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}

	obj, err := w.g.Get(ref.Number)
	if err != nil {
		return fmt.Errorf("failed to load page node %s: %w", ref, err)
	}
	dict, ok := obj.(core.Dict)
	if !ok {
		return nil
	}

	kids, err := resolve(w.g, dict.Get("Kids"))
	if err != nil {
		return err
	}
	karr, isNode := kids.(core.Array)
	if dict.IsType("Page") || (!dict.IsType("Pages") && !isNode) {
		w.pages = append(w.pages, &Page{
			Ref:     ref,
			Dict:    dict,
			Index:   len(w.pages),
			getter:  w.g,
			parents: parents,
		})
		return nil
	}

	inner := append([]core.Dict{dict}, parents...)
	for _, kid := range karr {
		kref, ok := kid.(core.IndirectRef)
		if !ok {
			continue
		}
		if err := w.node(kref, inner); err != nil {
			return err
		}
	}
	return nil
}

func resolve(g Getter, obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return g.Get(ref.Number)
	}
	return obj, nil
}

// Inherited returns key from the page or the nearest ancestor defining it,
// unresolved. Resources, MediaBox, CropBox and Rotate are inheritable.
func (p *Page) Inherited(key string) core.Object {
	if v := p.Dict.Get(key); v != nil {
		return v
	}
	for _, parent := range p.parents {
		if v := parent.Get(key); v != nil {
			return v
		}
	}
	return nil
}

// MediaBox returns the page media box [x1 y1 x2 y2]
func (p *Page) MediaBox() ([]float64, error) {
	return p.getBox("MediaBox")
}

// CropBox returns the page crop box, defaulting to the media box.
func (p *Page) CropBox() ([]float64, error) {
	if p.Inherited("CropBox") == nil {
		return p.MediaBox()
	}
	return p.getBox("CropBox")
}

func (p *Page) getBox(name string) ([]float64, error) {
	boxObj := p.Inherited(name)
	if boxObj == nil {
		return nil, fmt.Errorf("%s not found", name)
	}
	boxResolved, err := resolve(p.getter, boxObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	boxArr, ok := boxResolved.(core.Array)
	if !ok || len(boxArr) != 4 {
		return nil, core.FormatErrorf("invalid %s: %s", name, boxResolved)
	}

	box := make([]float64, 4)
	for i, elem := range boxArr {
		switch v := elem.(type) {
		case core.Int:
			box[i] = float64(v)
		case core.Real:
			box[i] = float64(v)
		default:
			return nil, core.FormatErrorf("invalid %s element type: %T", name, elem)
		}
	}
	return box, nil
}

// Rotate returns the page rotation (0, 90, 180, or 270)
func (p *Page) Rotate() int {
	if rotate, ok := p.Inherited("Rotate").(core.Int); ok {
		return ((int(rotate) % 360) + 360) % 360
	}
	return 0
}

// Size returns the width and height of the media box.
func (p *Page) Size() (float64, float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, 0, err
	}
	return box[2] - box[0], box[3] - box[1], nil
}

// Annots returns the annotation references of the page and, when the array
// is an indirect object, its reference.
func (p *Page) Annots() (core.Array, *core.IndirectRef, error) {
	obj := p.Dict.Get("Annots")
	var holder *core.IndirectRef
	if ref, ok := obj.(core.IndirectRef); ok {
		holder = &ref
	}
	resolved, err := resolve(p.getter, obj)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve /Annots: %w", err)
	}
	arr, _ := resolved.(core.Array)
	return arr, holder, nil
}
