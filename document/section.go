package document

import (
	"fmt"

	"github.com/tsawler/pdfrev/core"
)

// maxObjects bounds the object numbers a section may hold.
const maxObjects = 1 << 23

// Section is one layer of the version chain: the entries introduced by a
// cross-reference section plus its trailer. Sections are always solid: the
// entry slice is indexed directly by object number.
type Section struct {
	entries     []Entry
	subsections []core.Subsection

	// Trailer is the trailer dictionary of the section.
	Trailer core.Dict

	// PreRepairTrailer is the trailer in effect before repair rebuilt the
	// chain, or nil.
	PreRepairTrailer core.Dict

	// Offset is the file offset of the section's cross-reference index, or
	// -1 for the in-memory edit section.
	Offset int64

	// XRefStream reports whether the index is a cross-reference stream.
	XRefStream bool

	// recovered sections hold values the repair scan parsed leniently; they
	// cannot be reloaded from their offsets.
	recovered bool

	signatures []*pendingSignature
}

// newSection returns an empty in-memory section.
func newSection(trailer core.Dict) *Section {
	if trailer == nil {
		trailer = make(core.Dict)
	}
	return &Section{Trailer: trailer, Offset: -1}
}

// sectionFromXRef builds a solid section from a parsed cross-reference section.
func sectionFromXRef(t *core.XRefTable) (*Section, error) {
	bound := t.Bound()
	if bound > maxObjects {
		return nil, fmt.Errorf("section at %d covers %d objects: %w", t.Offset, bound, core.ErrSecurityLimit)
	}
	s := &Section{
		entries:     make([]Entry, bound),
		subsections: t.Subsections,
		Trailer:     t.Trailer,
		Offset:      t.Offset,
		XRefStream:  t.IsStream,
	}
	for _, num := range t.Numbers() {
		s.entries[num] = entryFromXRef(t.Entries[num])
	}
	return s, nil
}

// Len returns one past the highest object number the section can hold.
func (s *Section) Len() int {
	return len(s.entries)
}

// Committed reports whether the section exists in the source file.
func (s *Section) Committed() bool {
	return s.Offset >= 0
}

// Subsections returns the physical segmentation of the section as read.
func (s *Section) Subsections() []core.Subsection {
	return s.subsections
}

// entry returns the slot for num, or nil when num is outside the section.
func (s *Section) entry(num int) *Entry {
	if num < 0 || num >= len(s.entries) {
		return nil
	}
	return &s.entries[num]
}

// Entry returns a copy of the slot for num.
func (s *Section) Entry(num int) (Entry, bool) {
	e := s.entry(num)
	if e == nil || e.Kind == KindNone {
		return Entry{}, false
	}
	return *e, true
}

// ensure grows the section to hold num and returns its slot.
func (s *Section) ensure(num int) *Entry {
	if num >= len(s.entries) {
		grown := make([]Entry, num+1, max(num+1, 2*len(s.entries)))
		copy(grown, s.entries)
		s.entries = grown
	}
	return &s.entries[num]
}

// Numbers returns the object numbers with an entry in this section, ascending.
func (s *Section) Numbers() []int {
	var nums []int
	for num := range s.entries {
		if s.entries[num].Kind != KindNone {
			nums = append(nums, num)
		}
	}
	return nums
}

// dirtyNumbers returns the numbers written in memory, ascending.
func (s *Section) dirtyNumbers() []int {
	var nums []int
	for num := range s.entries {
		if s.entries[num].dirty {
			nums = append(nums, num)
		}
	}
	return nums
}
