package resolver

import (
	"fmt"

	"github.com/tsawler/pdfrev/core"
)

// DefaultMaxDepth bounds deep resolution when no option overrides it.
const DefaultMaxDepth = 100

// ObjectReader is the object source the resolver reads from. Both
// *document.Document and *document.View satisfy it.
type ObjectReader interface {
	GetObject(objNum int) (core.Object, error)
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// ObjectResolver resolves indirect references in PDF objects.
// It can recursively resolve references in dictionaries and arrays.
type ObjectResolver struct {
	reader   ObjectReader
	maxDepth int
}

// Option configures the resolver
type Option func(*ObjectResolver)

// WithMaxDepth sets the maximum nesting depth of deep resolution.
func WithMaxDepth(depth int) Option {
	return func(r *ObjectResolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// NewResolver creates a new object resolver
func NewResolver(reader ObjectReader, opts ...Option) *ObjectResolver {
	r := &ObjectResolver{
		reader:   reader,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// walk carries the state of one resolution: the references on the current
// path and the nesting depth.
type walk struct {
	r       *ObjectResolver
	deep    bool
	onPath  map[int]bool
	current int
}

// Resolve follows obj when it is an indirect reference, including chains of
// references to references. Containers are returned as they are.
func (r *ObjectResolver) Resolve(obj core.Object) (core.Object, error) {
	w := &walk{r: r, onPath: make(map[int]bool)}
	return w.resolve(obj)
}

// ResolveDeep returns a copy of obj with every reachable reference replaced
// by its target. A reference back to an object that is still being expanded
// (/Parent of a page, for instance) is kept as a reference, so the result is
// always finite.
func (r *ObjectResolver) ResolveDeep(obj core.Object) (core.Object, error) {
	w := &walk{r: r, deep: true, onPath: make(map[int]bool)}
	return w.resolve(obj)
}

func (w *walk) resolve(obj core.Object) (core.Object, error) {
	if w.current >= w.r.maxDepth {
		return nil, fmt.Errorf("maximum resolution depth (%d) exceeded: %w", w.r.maxDepth, core.ErrSecurityLimit)
	}

	switch v := obj.(type) {
	case core.IndirectRef:
		if w.onPath[v.Number] {
			if w.deep {
				return v, nil
			}
			return nil, fmt.Errorf("reference %s points back to itself: %w", v, core.ErrRecursiveReference)
		}
		w.onPath[v.Number] = true
		defer delete(w.onPath, v.Number)

		resolved, err := w.r.reader.ResolveReference(v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve reference %s: %w", v, err)
		}
		return w.nested(resolved)

	case core.Dict:
		if !w.deep {
			return v, nil
		}
		resolved := make(core.Dict, len(v))
		for key, value := range v {
			rv, err := w.nested(value)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve dict key %s: %w", key, err)
			}
			resolved[key] = rv
		}
		return resolved, nil

	case core.Array:
		if !w.deep {
			return v, nil
		}
		resolved := make(core.Array, len(v))
		for i, elem := range v {
			re, err := w.nested(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve array element %d: %w", i, err)
			}
			resolved[i] = re
		}
		return resolved, nil

	case *core.Stream:
		if !w.deep || v == nil {
			return v, nil
		}
		dict, err := w.nested(v.Dict)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve stream dict: %w", err)
		}
		d, _ := dict.(core.Dict)
		return &core.Stream{Dict: d, Data: v.Data, DataOffset: v.DataOffset}, nil

	default:
		return obj, nil
	}
}

func (w *walk) nested(obj core.Object) (core.Object, error) {
	w.current++
	defer func() { w.current-- }()
	return w.resolve(obj)
}

// ResolveDict deep-resolves a dictionary.
func (r *ObjectResolver) ResolveDict(dict core.Dict) (core.Dict, error) {
	resolved, err := r.ResolveDeep(dict)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Dict), nil
}

// ResolveArray deep-resolves an array.
func (r *ObjectResolver) ResolveArray(arr core.Array) (core.Array, error) {
	resolved, err := r.ResolveDeep(arr)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Array), nil
}

// GetObject loads an object by number.
func (r *ObjectResolver) GetObject(objNum int) (core.Object, error) {
	return r.reader.GetObject(objNum)
}

// GetObjectResolvedDeep loads and fully resolves an object by number. The
// object itself counts as being expanded, so references back to it stay
// references.
func (r *ObjectResolver) GetObjectResolvedDeep(objNum int) (core.Object, error) {
	obj, err := r.reader.GetObject(objNum)
	if err != nil {
		return nil, err
	}
	w := &walk{r: r, deep: true, onPath: map[int]bool{objNum: true}}
	return w.resolve(obj)
}
