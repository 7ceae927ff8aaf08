package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tsawler/pdfrev/core"
)

// GarbageLevel selects how much of the write-back pipeline runs on a full save.
type GarbageLevel int

const (
	// GarbageNone writes every live object.
	GarbageNone GarbageLevel = iota
	// GarbageCollect drops objects unreachable from the trailer and pins.
	GarbageCollect
	// GarbageCompact also renumbers the survivors densely from 1.
	GarbageCompact
	// GarbageDeduplicate also merges structurally identical objects.
	GarbageDeduplicate
)

func (g GarbageLevel) String() string {
	switch g {
	case GarbageNone:
		return "none"
	case GarbageCollect:
		return "collect"
	case GarbageCompact:
		return "compact"
	case GarbageDeduplicate:
		return "deduplicate"
	default:
		return fmt.Sprintf("GarbageLevel(%d)", int(g))
	}
}

// ParseGarbageLevel maps a level name to its value.
func ParseGarbageLevel(s string) (GarbageLevel, error) {
	for g := GarbageNone; g <= GarbageDeduplicate; g++ {
		if g.String() == s {
			return g, nil
		}
	}
	return GarbageNone, fmt.Errorf("unknown garbage level %q", s)
}

// SaveOptions controls Save.
type SaveOptions struct {
	// Incremental appends a new section instead of rewriting the file.
	Incremental bool
	// Snapshot writes an incremental section without committing the edits;
	// it implies Incremental and forbids every rewriting option.
	Snapshot bool
	// Garbage is the garbage collection level of a full save.
	Garbage GarbageLevel
	// ObjectStreams packs small objects into object streams (full saves);
	// it implies XRefStream.
	ObjectStreams bool
	// XRefStream writes the index as a compressed cross-reference stream.
	XRefStream bool
	// CompressStreams Flate-compresses unfiltered streams.
	CompressStreams bool
	// Version overrides the header version of a full save, e.g. "1.7".
	Version string
}

// Output is the destination of a save. *os.File satisfies it.
type Output interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// SaveResult describes a completed save.
type SaveResult struct {
	Written    int64       // bytes appended to the output
	Objects    int         // indirect objects written, containers included
	Removed    int         // objects not carried over: unreachable or merged
	Packed     int         // objects stored in object streams
	XRefOffset int64       // offset of the new cross-reference index
	Renumbered map[int]int // old number to new number, when objects moved
}

// writeStrategy is the output format, chosen once per save.
type writeStrategy int

const (
	writeTable writeStrategy = iota
	writeStream
	writePacked
	writeIncrementalTable
	writeIncrementalStream
)

func (w writeStrategy) String() string {
	switch w {
	case writeTable:
		return "table"
	case writeStream:
		return "xref-stream"
	case writePacked:
		return "xref-stream+objstm"
	case writeIncrementalTable:
		return "incremental-table"
	case writeIncrementalStream:
		return "incremental-xref-stream"
	default:
		return "unknown"
	}
}

func (w writeStrategy) incremental() bool {
	return w == writeIncrementalTable || w == writeIncrementalStream
}

func (w writeStrategy) xrefStream() bool {
	return w == writeStream || w == writePacked || w == writeIncrementalStream
}

// chooseStrategy validates the option combination and picks the format.
func (d *Document) chooseStrategy(opts SaveOptions) (writeStrategy, error) {
	if d.chain.localDepth > 0 {
		return 0, fmt.Errorf("save inside a local scope: %w", core.ErrUnsupported)
	}
	if opts.Version != "" {
		if _, err := ParseVersion(opts.Version); err != nil {
			return 0, err
		}
	}
	if opts.Snapshot {
		if opts.CompressStreams || opts.ObjectStreams || opts.Garbage != GarbageNone || opts.Version != "" {
			return 0, fmt.Errorf("snapshot saves cannot rewrite objects: %w", core.ErrUnsupported)
		}
		opts.Incremental = true
	}

	if opts.Incremental {
		if opts.Garbage != GarbageNone {
			return 0, fmt.Errorf("incremental save with garbage collection: %w", core.ErrUnsupported)
		}
		if opts.ObjectStreams {
			return 0, fmt.Errorf("incremental save with object streams: %w", core.ErrUnsupported)
		}
		if d.repaired {
			return 0, fmt.Errorf("incremental save of a repaired document: %w", core.ErrUnsupported)
		}
		if d.src == nil {
			return 0, fmt.Errorf("incremental save of a document without a file: %w", core.ErrUnsupported)
		}
		if opts.XRefStream || d.lastCommitted().XRefStream {
			return writeIncrementalStream, nil
		}
		return writeIncrementalTable, nil
	}

	if d.Encrypted() {
		return 0, fmt.Errorf("full save of an encrypted document: %w", core.ErrUnsupported)
	}
	switch {
	case opts.ObjectStreams:
		return writePacked, nil
	case opts.XRefStream:
		return writeStream, nil
	default:
		return writeTable, nil
	}
}

// lastCommitted returns the newest section present in the file.
func (d *Document) lastCommitted() *Section {
	for i := len(d.chain.sections) - 1; i >= 0; i-- {
		if s := d.chain.sections[i]; s.Committed() {
			return s
		}
	}
	return newSection(nil)
}

// Save writes the document to out.
//
// A full save needs an empty output. An incremental save appends to an
// output that already holds the source, or writes source and new section
// to an empty one; without edits the first leaves the output alone and the
// second gets a copy of the source plus an empty section. An output of the
// source's length counts as holding the source when its last bytes match,
// checked only if it implements io.ReaderAt. The output is written once,
// after the whole result was built in memory; on failure it is truncated
// back to its original length and the document is left as it was.
//
// On success, when out also implements io.ReaderAt, the document is rebound
// to it: an incremental save commits the edit section, a full save replaces
// the chain with the single written section. Snapshot saves never commit.
func (d *Document) Save(ctx context.Context, out Output, opts SaveOptions) (*SaveResult, error) {
	strategy, err := d.chooseStrategy(opts)
	if err != nil {
		return nil, err
	}

	origLen, err := out.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, core.IOError("seek output", err)
	}
	if strategy.incremental() {
		if origLen != 0 && origLen != d.size {
			return nil, fmt.Errorf("output holds %d bytes, source has %d: %w", origLen, d.size, core.ErrUnsupported)
		}
		if origLen != 0 {
			if err := d.checkHoldsSource(out); err != nil {
				return nil, err
			}
		}
	} else if origLen != 0 {
		return nil, fmt.Errorf("full save needs an empty output, got %d bytes: %w", origLen, core.ErrUnsupported)
	}

	st := newSaveState(d, opts, strategy)
	d.logger.Debug("saving", "strategy", strategy, "garbage", opts.Garbage)

	if err := st.build(ctx); err != nil {
		return nil, err
	}
	if strategy.incremental() && st.edit == nil && origLen != 0 {
		d.logger.Debug("nothing to save")
		return &SaveResult{}, nil
	}
	if err := st.serialize(); err != nil {
		return nil, err
	}
	if err := st.sign(ctx); err != nil {
		return nil, err
	}

	written, err := st.write(out, origLen)
	if err != nil {
		if terr := truncate(out, origLen); terr != nil {
			err = errors.Join(err, terr)
		}
		return nil, err
	}

	result := st.result(written)
	if !opts.Snapshot && d.commit(st, out) {
		for _, sig := range st.signatures {
			sig.pin.Release()
		}
	}
	d.logger.Info("saved", "strategy", strategy, "bytes", written, "objects", result.Objects, "removed", result.Removed)
	return result, nil
}

// build runs the object-level steps of the pipeline.
func (st *saveState) build(ctx context.Context) error {
	if st.strategy.incremental() {
		return st.collectIncremental()
	}

	if st.opts.Garbage == GarbageNone {
		if err := st.collectAll(ctx); err != nil {
			return err
		}
	} else {
		if err := st.collectReachable(ctx); err != nil {
			return err
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed := false
			if st.opts.Garbage >= GarbageDeduplicate && st.dedup() {
				changed = true
			}
			if st.opts.Garbage >= GarbageCompact && st.renumber() {
				changed = true
			}
			if st.sweep() > 0 {
				changed = true
			}
			if !changed {
				break
			}
		}
	}

	if st.strategy == writePacked {
		if err := st.pack(); err != nil {
			return err
		}
	}
	if st.opts.CompressStreams {
		return st.compress()
	}
	return nil
}

// tailCheck is how many trailing bytes checkHoldsSource compares.
const tailCheck = 1024

// checkHoldsSource compares the end of out with the end of the source.
func (d *Document) checkHoldsSource(out Output) error {
	ra, ok := out.(io.ReaderAt)
	if !ok {
		return nil
	}
	n := min(d.size, tailCheck)
	want := make([]byte, n)
	if _, err := d.src.ReadAt(want, d.size-n); err != nil && !errors.Is(err, io.EOF) {
		return core.IOError("read source", err)
	}
	got := make([]byte, n)
	if _, err := ra.ReadAt(got, d.size-n); err != nil && !errors.Is(err, io.EOF) {
		return core.IOError("read output", err)
	}
	if !bytes.Equal(want, got) {
		return fmt.Errorf("output does not hold the source: %w", core.ErrUnsupported)
	}
	return nil
}

func (st *saveState) write(out Output, origLen int64) (int64, error) {
	var written int64
	if st.strategy.incremental() && origLen == 0 {
		n, err := io.Copy(out, io.NewSectionReader(st.doc.src, 0, st.doc.size))
		written += n
		if err != nil {
			return written, core.IOError("copy source", err)
		}
	}
	n, err := out.Write(st.buf)
	written += int64(n)
	if err != nil {
		return written, core.IOError("write output", err)
	}
	return written, nil
}

func truncate(out Output, size int64) error {
	if err := out.Truncate(size); err != nil {
		return core.IOError("truncate output", err)
	}
	if _, err := out.Seek(size, io.SeekStart); err != nil {
		return core.IOError("seek output", err)
	}
	return nil
}

func (st *saveState) result(written int64) *SaveResult {
	r := &SaveResult{
		Written:    written,
		Objects:    len(st.written),
		Removed:    st.removed,
		Packed:     st.packed,
		XRefOffset: st.xrefOffset,
	}
	for old, cur := range st.mapping {
		if old != cur {
			if r.Renumbered == nil {
				r.Renumbered = make(map[int]int)
			}
			r.Renumbered[old] = cur
		}
	}
	return r
}

// commit rebinds the document to what was written and reports whether it
// could.
func (d *Document) commit(st *saveState, out Output) bool {
	ra, ok := out.(io.ReaderAt)
	if !ok {
		d.logger.Debug("output is not readable, document stays bound to its source")
		return false
	}
	total := st.base + int64(len(st.buf))

	if st.strategy.incremental() {
		edit := d.editSection()
		for num, off := range st.written {
			e := edit.ensure(num)
			*e = Entry{Kind: KindNormal, Generation: e.Generation, Offset: off}
		}
		for _, num := range st.free {
			edit.entries[num].dirty = false
		}
		edit.Offset = st.xrefOffset
		edit.XRefStream = st.strategy.xrefStream()
		edit.Trailer = st.trailer
		edit.signatures = nil
		d.src, d.size = ra, total
		return true
	}

	s := &Section{
		entries:    make([]Entry, st.size),
		Trailer:    st.trailer,
		Offset:     st.xrefOffset,
		XRefStream: st.strategy.xrefStream(),
	}
	for _, row := range st.rows {
		s.entries[row.Num] = entryFromXRef(&row.Entry)
	}
	d.chain.reset()
	d.chain.sections = []*Section{s}
	for p := range d.pins {
		if ref, ok := st.pins[p]; ok {
			p.ref = ref
		}
	}
	d.src, d.size = ra, total
	d.version = st.version
	d.repaired = false
	return true
}
