package document

import (
	"github.com/tsawler/pdfrev/core"
)

// localLayer is the section index reported for entries of the local overlay.
const localLayer = -1

// chain is the ordered stack of sections, oldest first, so that a version
// number is a stable index. hints maps an object number to the newest
// section holding a typed entry for it; a hint h answers any lookup whose
// horizon is at least h.
type chain struct {
	sections []*Section
	hints    map[int]int

	local      *Section
	localDepth int

	// epoch changes whenever the chain is replaced, invalidating views.
	epoch int
}

func (c *chain) reset() {
	c.sections = nil
	c.hints = make(map[int]int)
	c.local = nil
	c.localDepth = 0
	c.epoch++
}

func (c *chain) topIndex() int {
	return len(c.sections) - 1
}

func (c *chain) top() *Section {
	if len(c.sections) == 0 {
		return newSection(nil)
	}
	return c.sections[len(c.sections)-1]
}

// bound returns one past the highest object number known at horizon: the
// largest section or declared /Size, whichever is larger.
func (c *chain) bound(horizon int, local bool) int {
	n := 0
	for i := 0; i <= horizon && i < len(c.sections); i++ {
		s := c.sections[i]
		n = max(n, s.Len())
		if size, ok := s.Trailer.GetInt("Size"); ok && int(size) <= maxObjects {
			n = max(n, int(size))
		}
	}
	if local && c.local != nil {
		n = max(n, c.local.Len())
	}
	return n
}

// lookup finds the entry that defines num as seen at horizon. The local
// overlay takes part only when local is set. It returns the index of the
// owning section (localLayer for the overlay) and the entry.
func (c *chain) lookup(num, horizon int, local bool) (int, *Entry, error) {
	if num < 0 || num >= c.bound(horizon, local) {
		return 0, nil, core.NewObjectError(num, 0, "lookup", core.ErrRange, "outside %d known objects", c.bound(horizon, local))
	}

	if local && c.local != nil {
		if e := c.local.entry(num); e != nil && e.Kind != KindNone {
			if e.Kind == KindFree {
				return 0, nil, core.NewObjectError(num, e.Generation, "lookup", core.ErrNotFound, "freed")
			}
			return localLayer, e, nil
		}
	}

	full := horizon == c.topIndex()
	start := horizon
	if h, ok := c.hints[num]; ok && h <= horizon {
		start = h
	}

	for i := start; i >= 0; i-- {
		e := c.sections[i].entry(num)
		if e == nil || e.Kind == KindNone {
			continue
		}
		if full {
			c.hints[num] = i
		}
		if e.Kind == KindFree {
			return 0, nil, core.NewObjectError(num, e.Generation, "lookup", core.ErrNotFound, "freed")
		}
		return i, e, nil
	}
	return 0, nil, core.NewObjectError(num, 0, "lookup", core.ErrNotFound, "never defined")
}

// generation returns the generation a new value for num must carry: the
// current one for live objects, the bumped one for freed numbers.
func (c *chain) generation(num int, local bool) int {
	if local && c.local != nil {
		if e := c.local.entry(num); e != nil && e.Kind != KindNone {
			return entryGeneration(e)
		}
	}
	for i := c.topIndex(); i >= 0; i-- {
		if e := c.sections[i].entry(num); e != nil && e.Kind != KindNone {
			return entryGeneration(e)
		}
	}
	return 0
}

func entryGeneration(e *Entry) int {
	if e.Kind == KindCompressed {
		return 0
	}
	return e.Generation
}
