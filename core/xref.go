package core

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// XRefEntryType distinguishes the three kinds of cross-reference entries.
type XRefEntryType int

const (
	XRefEntryFree         XRefEntryType = iota // type 0, 'f'
	XRefEntryUncompressed                      // type 1, 'n'
	XRefEntryCompressed                        // type 2, 'o'
)

func (t XRefEntryType) String() string {
	switch t {
	case XRefEntryFree:
		return "free"
	case XRefEntryUncompressed:
		return "normal"
	case XRefEntryCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// XRefEntry represents a single cross-reference table entry.
//
// For compressed entries Offset holds the object stream number and
// Generation holds the index within that stream.
type XRefEntry struct {
	Type       XRefEntryType
	Offset     int64 // Byte offset in file (in use), next free object number (free), or container number (compressed)
	Generation int   // Generation number, or member index (compressed)
	InUse      bool  // false only for free entries
}

// Container returns the object stream number of a compressed entry.
func (e *XRefEntry) Container() int {
	return int(e.Offset)
}

// Index returns the member index of a compressed entry.
func (e *XRefEntry) Index() int {
	return e.Generation
}

// Subsection is a contiguous run of object numbers covered by one section.
type Subsection struct {
	Start int
	Count int
}

// XRefTable represents one cross-reference section: a classic table or a
// cross-reference stream, with its trailer.
type XRefTable struct {
	Entries     map[int]*XRefEntry // Map from object number to XRef entry
	Subsections []Subsection       // Physical segmentation, in file order
	Trailer     Dict               // Trailer dictionary
	Offset      int64              // Offset of the section in the file
	IsStream    bool               // Cross-reference stream rather than table
	StreamRef   IndirectRef        // Object holding the stream, when IsStream
}

// NewXRefTable creates a new empty XRef table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]*XRefEntry),
		Trailer: make(Dict),
	}
}

// Get retrieves an XRef entry by object number
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set adds or updates an XRef entry
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries in the table
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// Bound returns one past the highest object number with an entry.
func (x *XRefTable) Bound() int {
	bound := 0
	for num := range x.Entries {
		if num+1 > bound {
			bound = num + 1
		}
	}
	return bound
}

// Numbers returns the object numbers with entries, ascending.
func (x *XRefTable) Numbers() []int {
	nums := make([]int, 0, len(x.Entries))
	for num := range x.Entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// Prev returns the /Prev offset of the trailer, if any.
func (x *XRefTable) Prev() (int64, bool) {
	prev, ok := x.Trailer.GetInt("Prev")
	return int64(prev), ok
}

// XRefParser parses PDF cross-reference sections from random-access input.
type XRefParser struct {
	reader   io.ReaderAt
	size     int64
	startPos int64 // Starting position for current parse

	// Resolver resolves indirect /Length entries of cross-reference streams.
	Resolver ReferenceResolver
}

// NewXRefParser creates a new XRef parser over the first size bytes of r.
func NewXRefParser(r io.ReaderAt, size int64) *XRefParser {
	return &XRefParser{
		reader: r,
		size:   size,
	}
}

// section returns a reader positioned at off.
func (x *XRefParser) section(off int64) io.Reader {
	return io.NewSectionReader(x.reader, off, x.size-off)
}

// FindXRef finds the byte offset of the newest section by scanning from EOF.
// PDFs end with "startxref\n<offset>\n%%EOF"
func (x *XRefParser) FindXRef() (int64, error) {
	readSize := int64(1024)
	if x.size < readSize {
		readSize = x.size
	}

	buf := make([]byte, readSize)
	n, err := x.reader.ReadAt(buf, x.size-readSize)
	if err != nil && err != io.EOF {
		return 0, IOError("read startxref area", err)
	}
	buf = buf[:n]

	idx := bytes.LastIndex(buf, []byte("startxref"))
	if idx == -1 {
		return 0, FormatErrorf("startxref not found")
	}

	fields := bytes.Fields(buf[idx+len("startxref"):])
	if len(fields) == 0 {
		return 0, FormatErrorf("startxref without offset")
	}
	offset, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0, FormatErrorf("invalid xref offset %q", fields[0])
	}
	if offset < 0 || offset >= x.size {
		return 0, FormatErrorf("xref offset %d outside file of %d bytes", offset, x.size)
	}
	return offset, nil
}

// isXRefStream reports whether the section at startPos is a cross-reference
// stream ("N G obj") rather than a classic table ("xref").
func (x *XRefParser) isXRefStream() (bool, error) {
	lexer := NewLexer(x.section(x.startPos))
	token, err := lexer.NextToken()
	if err != nil {
		return false, err
	}
	switch {
	case token.Is("xref"):
		return false, nil
	case token.Type == TokenInteger:
		return true, nil
	default:
		return false, FormatErrorf("no cross-reference section at offset %d", x.startPos)
	}
}

// ParseXRef parses the section at the given byte offset. A classic table
// whose trailer names a hybrid /XRefStm is supplemented from that stream.
func (x *XRefParser) ParseXRef(offset int64) (*XRefTable, error) {
	if offset < 0 || offset >= x.size {
		return nil, FormatErrorf("xref offset %d outside file of %d bytes", offset, x.size)
	}
	x.startPos = offset

	isStream, err := x.isXRefStream()
	if err != nil {
		return nil, err
	}
	if isStream {
		return x.parseXRefStream()
	}

	table, err := x.parseXRefTable()
	if err != nil {
		return nil, err
	}

	if stm, ok := table.Trailer.GetInt("XRefStm"); ok {
		x.startPos = int64(stm)
		hybrid, err := x.parseXRefStream()
		if err != nil {
			return nil, fmt.Errorf("hybrid xref stream at %d: %w", stm, err)
		}
		for num, entry := range hybrid.Entries {
			if cur, ok := table.Entries[num]; !ok || cur.Type == XRefEntryFree {
				table.Entries[num] = entry
			}
		}
		x.startPos = offset
	}
	return table, nil
}

// parseXRefTable parses a classic table. Entries are tokenized rather than
// sliced at fixed columns, so 19- and 20-byte lines both work.
func (x *XRefParser) parseXRefTable() (*XRefTable, error) {
	lexer := NewLexer(x.section(x.startPos))
	token, err := lexer.NextToken()
	if err != nil {
		return nil, err
	}
	if !token.Is("xref") {
		return nil, FormatErrorf("expected 'xref' keyword at offset %d", x.startPos)
	}

	table := NewXRefTable()
	table.Offset = x.startPos

	for {
		token, err := lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if token.Is("trailer") {
			break
		}
		if token.Type != TokenInteger {
			return nil, FormatErrorf("invalid subsection header %q", token.Value)
		}
		start, err := strconv.Atoi(string(token.Value))
		if err != nil {
			return nil, FormatErrorf("invalid first object number %q", token.Value)
		}
		n, err := x.nextInt(lexer)
		if err != nil {
			return nil, err
		}
		count := int(n)
		if start < 0 || n < 0 || n > x.size/18 {
			return nil, FormatErrorf("invalid subsection %d %d", start, count)
		}

		for i := 0; i < count; i++ {
			entry, err := x.parseEntry(lexer)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", start+i, err)
			}
			table.Set(start+i, entry)
		}
		table.Subsections = append(table.Subsections, Subsection{Start: start, Count: count})
	}

	trailer, err := x.parseTrailer(x.startPos + lexer.Pos())
	if err != nil {
		return nil, err
	}
	table.Trailer = trailer
	return table, nil
}

func (x *XRefParser) nextInt(lexer *Lexer) (int64, error) {
	token, err := lexer.NextToken()
	if err != nil {
		return 0, err
	}
	if token.Type != TokenInteger {
		return 0, FormatErrorf("expected integer in xref table, got %q", token.Value)
	}
	v, err := strconv.ParseInt(string(token.Value), 10, 64)
	if err != nil {
		return 0, FormatErrorf("invalid integer %q in xref table", token.Value)
	}
	return v, nil
}

// parseEntry parses a single XRef entry: "nnnnnnnnnn ggggg n".
// The type letter is n (in use), f (free) or o (in object stream, in which
// case the two numbers are the container and the index).
func (x *XRefParser) parseEntry(lexer *Lexer) (*XRefEntry, error) {
	offset, err := x.nextInt(lexer)
	if err != nil {
		return nil, err
	}
	gen, err := x.nextInt(lexer)
	if err != nil {
		return nil, err
	}
	flag, err := lexer.NextToken()
	if err != nil {
		return nil, err
	}
	if offset < 0 || gen < 0 || gen > MaxGeneration {
		return nil, FormatErrorf("xref entry out of range: %d %d", offset, gen)
	}

	entry := &XRefEntry{Offset: offset, Generation: int(gen)}
	switch {
	case flag.Is("n"):
		entry.Type = XRefEntryUncompressed
		entry.InUse = true
	case flag.Is("f"):
		entry.Type = XRefEntryFree
	case flag.Is("o"):
		entry.Type = XRefEntryCompressed
		entry.InUse = true
	default:
		return nil, FormatErrorf("invalid in-use flag: %q", flag.Value)
	}
	return entry, nil
}

// parseTrailer parses the trailer dictionary that follows "trailer".
func (x *XRefParser) parseTrailer(offset int64) (Dict, error) {
	parser := NewParser(x.section(offset))
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer dictionary: %w", err)
	}
	dict, ok := obj.(Dict)
	if !ok {
		return nil, FormatErrorf("trailer is not a dictionary, got %T", obj)
	}
	return dict, nil
}

// parseXRefStream parses a cross-reference stream object at startPos.
func (x *XRefParser) parseXRefStream() (*XRefTable, error) {
	parser := NewParser(x.section(x.startPos))
	parser.SetMaxStreamLength(x.size - x.startPos)
	if x.Resolver != nil {
		parser.SetReferenceResolver(x.Resolver)
	}
	indObj, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse xref stream: %w", err)
	}
	stream, ok := indObj.Object.(*Stream)
	if !ok {
		return nil, FormatErrorf("xref stream object %d is a %T", indObj.Ref.Number, indObj.Object)
	}
	if !stream.Dict.IsType("XRef") {
		return nil, FormatErrorf("object %d is not a cross-reference stream", indObj.Ref.Number)
	}

	size, ok := stream.Dict.GetInt("Size")
	if !ok || size < 0 {
		return nil, FormatErrorf("xref stream missing /Size")
	}
	w, err := xrefWidths(stream.Dict)
	if err != nil {
		return nil, err
	}
	index, err := xrefIndex(stream.Dict, int(size))
	if err != nil {
		return nil, err
	}

	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}

	table := NewXRefTable()
	table.Offset = x.startPos
	table.IsStream = true
	table.StreamRef = indObj.Ref

	pos := 0
	for _, sub := range index {
		for i := 0; i < sub.Count; i++ {
			entry, n, err := x.parseXRefStreamEntry(data[pos:], w)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", sub.Start+i, err)
			}
			pos += n
			table.Set(sub.Start+i, entry)
		}
	}
	table.Subsections = index

	trailer := Clone(stream.Dict).(Dict)
	for _, key := range []string{"Type", "W", "Index", "Length", "Filter", "DecodeParms"} {
		trailer.Delete(key)
	}
	table.Trailer = trailer
	return table, nil
}

// xrefWidths validates /W.
func xrefWidths(dict Dict) ([]int, error) {
	arr, ok := dict.GetArray("W")
	if !ok || len(arr) != 3 {
		return nil, FormatErrorf("xref stream /W must hold three widths")
	}
	w := make([]int, 3)
	for i := range w {
		v, ok := arr.GetInt(i)
		if !ok || v < 0 || v > 8 {
			return nil, FormatErrorf("invalid xref stream width %v", arr.Get(i))
		}
		w[i] = int(v)
	}
	if w[1] == 0 {
		return nil, FormatErrorf("xref stream /W has zero-width offset field")
	}
	return w, nil
}

// xrefIndex reads /Index, defaulting to [0 Size].
func xrefIndex(dict Dict, size int) ([]Subsection, error) {
	arr, ok := dict.GetArray("Index")
	if !ok {
		return []Subsection{{Start: 0, Count: size}}, nil
	}
	if len(arr)%2 != 0 {
		return nil, FormatErrorf("xref stream /Index has odd length %d", len(arr))
	}
	subs := make([]Subsection, 0, len(arr)/2)
	for i := 0; i < len(arr); i += 2 {
		start, ok1 := arr.GetInt(i)
		count, ok2 := arr.GetInt(i + 1)
		if !ok1 || !ok2 || start < 0 || count < 0 {
			return nil, FormatErrorf("invalid xref stream /Index pair %v %v", arr.Get(i), arr.Get(i+1))
		}
		subs = append(subs, Subsection{Start: int(start), Count: int(count)})
	}
	return subs, nil
}

// parseXRefStreamEntry decodes one binary entry using field widths w and
// returns it with the number of bytes consumed. A zero-width type field
// defaults to type 1.
func (x *XRefParser) parseXRefStreamEntry(data []byte, w []int) (*XRefEntry, int, error) {
	n := w[0] + w[1] + w[2]
	if len(data) < n {
		return nil, 0, FormatErrorf("xref stream truncated: need %d bytes, have %d", n, len(data))
	}

	typ := int64(1)
	if w[0] > 0 {
		typ = readBigEndianInt(data, w[0])
	}
	field2 := readBigEndianInt(data[w[0]:], w[1])
	field3 := readBigEndianInt(data[w[0]+w[1]:], w[2])
	if field2 < 0 || field3 < 0 || field3 > int64(MaxObjectStreamMembers) {
		return nil, 0, FormatErrorf("xref stream entry out of range")
	}

	entry := &XRefEntry{Offset: field2, Generation: int(field3)}
	switch typ {
	case 0:
		entry.Type = XRefEntryFree
	case 1:
		entry.Type = XRefEntryUncompressed
		entry.InUse = true
	case 2:
		entry.Type = XRefEntryCompressed
		entry.InUse = true
	default:
		// unknown types are treated as references to the null object
		entry.Type = XRefEntryFree
	}
	return entry, n, nil
}

// readBigEndianInt reads a big-endian unsigned integer of width bytes.
func readBigEndianInt(data []byte, width int) int64 {
	var v int64
	for i := 0; i < width && i < len(data); i++ {
		v = v<<8 | int64(data[i])
	}
	return v
}

// ParseAllXRefs parses the newest section and every section reachable
// through /Prev. Returns them in order from oldest to newest. A /Prev loop
// is a format error.
func (x *XRefParser) ParseAllXRefs() ([]*XRefTable, error) {
	offset, err := x.FindXRef()
	if err != nil {
		return nil, err
	}

	var tables []*XRefTable
	seen := make(map[int64]bool)
	for {
		if seen[offset] {
			return nil, FormatErrorf("/Prev loop at offset %d", offset)
		}
		seen[offset] = true

		table, err := x.ParseXRef(offset)
		if err != nil {
			return nil, fmt.Errorf("xref section at %d: %w", offset, err)
		}
		tables = append(tables, table)

		prev, ok := table.Prev()
		if !ok {
			break
		}
		offset = prev
	}

	// oldest first
	for i, j := 0, len(tables)-1; i < j; i, j = i+1, j-1 {
		tables[i], tables[j] = tables[j], tables[i]
	}
	return tables, nil
}
