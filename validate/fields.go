package validate

import (
	"context"
	"errors"

	"github.com/tsawler/pdfrev/core"
	"github.com/tsawler/pdfrev/pages"
)

// source is a read-only version of a document.
type source interface {
	Get(num int) (core.Object, error)
	Trailer() core.Dict
	GetCatalog() (core.Dict, error)
}

// state is one side of a comparison.
type state struct {
	src     source
	catalog core.Dict
	fields  []*Field
	byNum   map[int]*Field // field dictionaries and their widgets
	signed  map[int]bool   // signature fields holding a value
	annots  map[int]bool   // indirect /Annots arrays of pages
}

func newState(ctx context.Context, src source) (*state, error) {
	st := &state{
		src:    src,
		byNum:  make(map[int]*Field),
		signed: make(map[int]bool),
		annots: make(map[int]bool),
	}
	catalog, err := src.GetCatalog()
	if err != nil {
		if errors.Is(err, core.ErrIO) {
			return nil, err
		}
		catalog = core.Dict{}
	}
	st.catalog = catalog
	if err := st.walkFields(ctx); err != nil {
		return nil, err
	}
	if err := st.walkPages(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// object loads num. Only I/O failures are errors; anything unreadable
// counts as null so that comparisons stay definite.
func (st *state) object(num int) (core.Object, error) {
	obj, err := st.src.Get(num)
	if err != nil {
		if errors.Is(err, core.ErrIO) {
			return nil, err
		}
		return core.Null{}, nil
	}
	return obj, nil
}

func (st *state) resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return st.object(ref.Number)
	}
	return obj, nil
}

func (st *state) dict(num int) (core.Dict, error) {
	obj, err := st.object(num)
	if err != nil {
		return nil, err
	}
	d, _ := obj.(core.Dict)
	return d, nil
}

// exists reports whether num is defined.
func (st *state) exists(num int) (bool, error) {
	obj, err := st.object(num)
	if err != nil {
		return false, err
	}
	_, null := obj.(core.Null)
	return !null, nil
}

// Field is a form field of the interactive form.
type Field struct {
	Name    string    // fully qualified, parts joined by '.'
	Num     int       // object number of the field dictionary
	Type    core.Name // /FT, inherited from ancestors
	Widgets []int     // kid widget annotations without their own /T
}

// Fields returns the form fields reachable from the catalog's
// /AcroForm /Fields of src.
func Fields(ctx context.Context, src source) ([]*Field, error) {
	st, err := newState(ctx, src)
	if err != nil {
		return nil, err
	}
	return st.fields, nil
}

func (st *state) walkFields(ctx context.Context) error {
	form, err := st.resolve(st.catalog.Get("AcroForm"))
	if err != nil {
		return err
	}
	fd, _ := form.(core.Dict)
	roots, err := st.resolve(fd.Get("Fields"))
	if err != nil {
		return err
	}
	arr, _ := roots.(core.Array)
	visiting := make(map[int]bool)
	for _, elem := range arr {
		if ref, ok := elem.(core.IndirectRef); ok {
			if err := st.walkField(ctx, ref.Number, "", "", visiting); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *state) walkField(ctx context.Context, num int, parent string, ft core.Name, visiting map[int]bool) error {
	if visiting[num] || st.byNum[num] != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	visiting[num] = true
	defer delete(visiting, num)

	d, err := st.dict(num)
	if err != nil || d == nil {
		return err
	}
	name := parent
	if t, ok := d.GetString("T"); ok {
		if name != "" {
			name += "."
		}
		name += core.DecodeTextString(t)
	}
	if v, ok := d.GetName("FT"); ok {
		ft = v
	}
	f := &Field{Name: name, Num: num, Type: ft}
	if ft == "Sig" && d.Has("V") {
		st.signed[num] = true
	}
	st.fields = append(st.fields, f)
	st.byNum[num] = f

	kids, err := st.resolve(d.Get("Kids"))
	if err != nil {
		return err
	}
	karr, _ := kids.(core.Array)
	for _, elem := range karr {
		ref, ok := elem.(core.IndirectRef)
		if !ok {
			continue
		}
		kid, err := st.dict(ref.Number)
		if err != nil {
			return err
		}
		if kid.Has("T") {
			if err := st.walkField(ctx, ref.Number, name, ft, visiting); err != nil {
				return err
			}
			continue
		}
		if st.byNum[ref.Number] == nil {
			f.Widgets = append(f.Widgets, ref.Number)
			st.byNum[ref.Number] = f
		}
	}
	return nil
}

// walkPages records the indirect annotation arrays of the page tree.
func (st *state) walkPages(ctx context.Context) error {
	if !st.catalog.Has("Pages") {
		return nil
	}
	list, err := pages.Walk(ctx, getterFunc(st.object), st.catalog)
	if err != nil {
		if errors.Is(err, core.ErrIO) || ctx.Err() != nil {
			return err
		}
		return nil
	}
	for _, p := range list {
		if _, holder, err := p.Annots(); err == nil && holder != nil {
			st.annots[holder.Number] = true
		}
	}
	return nil
}

type getterFunc func(num int) (core.Object, error)

func (f getterFunc) Get(num int) (core.Object, error) { return f(num) }
