package validate

import (
	"bytes"
	"context"

	"github.com/tsawler/pdfrev/core"
)

// comparer decides structural equality of objects across two states,
// following references. Keys in shallow link to other parts of the graph
// that are checked on their own, so only the reference itself is compared.
type comparer struct {
	ctx      context.Context
	a, b     *state
	shallow  map[string]bool
	visiting map[int]bool
	equal    map[int]bool
	pending  []int // proven equal under assumptions of the current root
}

func newComparer(ctx context.Context, a, b *state) *comparer {
	return &comparer{
		ctx:      ctx,
		a:        a,
		b:        b,
		shallow:  map[string]bool{"Parent": true, "P": true, "Kids": true},
		visiting: make(map[int]bool),
		equal:    make(map[int]bool),
	}
}

// objects compares object num in both states.
func (c *comparer) objects(num int) (bool, error) {
	if c.visiting[num] || c.equal[num] {
		return true, nil
	}
	if err := c.ctx.Err(); err != nil {
		return false, err
	}
	x, err := c.a.object(num)
	if err != nil {
		return false, err
	}
	y, err := c.b.object(num)
	if err != nil {
		return false, err
	}
	root := len(c.visiting) == 0
	c.visiting[num] = true
	same, err := c.values(x, y)
	delete(c.visiting, num)
	if same && err == nil {
		c.equal[num] = true
		c.pending = append(c.pending, num)
	}
	if root {
		if !same || err != nil {
			for _, n := range c.pending {
				delete(c.equal, n)
			}
		}
		c.pending = c.pending[:0]
	}
	return same, err
}

// values compares two direct values.
func (c *comparer) values(x, y core.Object) (bool, error) {
	switch xv := x.(type) {
	case core.IndirectRef:
		yv, ok := y.(core.IndirectRef)
		if !ok || xv.Number != yv.Number {
			return false, nil
		}
		return c.objects(xv.Number)
	case core.Array:
		yv, ok := y.(core.Array)
		if !ok || len(xv) != len(yv) {
			return false, nil
		}
		for i := range xv {
			if same, err := c.values(xv[i], yv[i]); !same || err != nil {
				return false, err
			}
		}
		return true, nil
	case core.Dict:
		yv, ok := y.(core.Dict)
		if !ok {
			return false, nil
		}
		return c.dicts(xv, yv, nil)
	case *core.Stream:
		yv, ok := y.(*core.Stream)
		if !ok || !bytes.Equal(xv.Data, yv.Data) {
			return false, nil
		}
		return c.dicts(xv.Dict, yv.Dict, nil)
	default:
		return core.Equal(x, y), nil
	}
}

// dicts compares two dictionaries, ignoring the keys in skip.
func (c *comparer) dicts(x, y core.Dict, skip map[string]bool) (bool, error) {
	count := 0
	for key, xval := range x {
		if skip[key] {
			continue
		}
		count++
		yval, ok := y[key]
		if !ok {
			return false, nil
		}
		if c.shallow[key] {
			if !core.Equal(xval, yval) {
				return false, nil
			}
			continue
		}
		if same, err := c.values(xval, yval); !same || err != nil {
			return false, err
		}
	}
	for key := range y {
		if !skip[key] {
			count--
		}
	}
	return count == 0, nil
}

// objectExcept compares object num in both states ignoring the keys in
// skip. Both sides must be dictionaries.
func (c *comparer) objectExcept(num int, skip map[string]bool) (bool, error) {
	x, err := c.a.dict(num)
	if err != nil {
		return false, err
	}
	y, err := c.b.dict(num)
	if err != nil || x == nil || y == nil {
		return false, err
	}
	c.visiting[num] = true
	same, err := c.dicts(x, y, skip)
	delete(c.visiting, num)
	if !same || err != nil {
		for _, n := range c.pending {
			delete(c.equal, n)
		}
	}
	c.pending = c.pending[:0]
	return same, err
}
