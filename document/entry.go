package document

import (
	"github.com/tsawler/pdfrev/core"
)

// EntryKind tells how a section knows an object number.
type EntryKind uint8

const (
	// KindNone means the section says nothing about the number; lookups
	// continue in older sections.
	KindNone EntryKind = iota
	// KindFree means the number was freed in this section.
	KindFree
	// KindNormal is an object stored directly, at Offset in the source.
	KindNormal
	// KindCompressed is an object stored in an object stream.
	KindCompressed
)

func (k EntryKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFree:
		return "free"
	case KindNormal:
		return "normal"
	case KindCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// Entry is one object slot of a section. An entry and its cached value are
// owned by exactly one section.
type Entry struct {
	Kind       EntryKind
	Generation int
	Offset     int64 // KindNormal: offset of the "N G obj" header, -1 when not yet written
	Container  int   // KindCompressed: object stream number
	Index      int   // KindCompressed: member index

	value   core.Object
	objstm  *core.ObjectStream // decoded container, when this entry holds one
	loading bool
	dirty   bool
}

// Value returns the materialized value, or nil if it was never loaded.
func (e *Entry) Value() core.Object {
	return e.value
}

// Dirty reports whether the entry was written in memory and not yet saved.
func (e *Entry) Dirty() bool {
	return e.dirty
}

// entryFromXRef converts a parsed cross-reference entry.
func entryFromXRef(x *core.XRefEntry) Entry {
	switch x.Type {
	case core.XRefEntryUncompressed:
		return Entry{Kind: KindNormal, Generation: x.Generation, Offset: x.Offset}
	case core.XRefEntryCompressed:
		return Entry{Kind: KindCompressed, Container: x.Container(), Index: x.Index()}
	default:
		return Entry{Kind: KindFree, Generation: x.Generation}
	}
}
