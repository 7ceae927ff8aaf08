package core

import (
	"bytes"
	"fmt"
	"strconv"
)

// ObjectStream represents a PDF Object Stream (Type /ObjStm), introduced in PDF 1.5.
// Object streams store multiple objects in a single compressed stream, providing
// better compression than storing objects individually.
type ObjectStream struct {
	stream  *Stream              // Underlying stream object
	n       int                  // Number of objects in stream
	first   int                  // Byte offset of first object in decoded data
	objects map[int]Object       // Cached parsed objects (index -> object)
	offsets []objectStreamOffset // Parsed offset pairs from header
	decoded []byte               // Decoded stream data (cached)
}

// objectStreamOffset pairs an object number with its byte offset within the decoded data.
type objectStreamOffset struct {
	ObjNum int
	Offset int // relative to First
}

// NewObjectStream creates an ObjectStream from a Stream object.
// The stream must have Type /ObjStm and required entries /N and /First.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is nil: %w", ErrInconsistentContainer)
	}
	if !stream.Dict.IsType("ObjStm") {
		return nil, fmt.Errorf("stream is not an object stream, got type %v: %w",
			stream.Dict.Get("Type"), ErrInconsistentContainer)
	}

	n, ok := stream.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, fmt.Errorf("object stream has invalid /N %v: %w", stream.Dict.Get("N"), ErrInconsistentContainer)
	}
	if n > MaxObjectStreamMembers {
		return nil, fmt.Errorf("object stream declares %d members: %w", n, ErrSecurityLimit)
	}
	first, ok := stream.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream has invalid /First %v: %w", stream.Dict.Get("First"), ErrInconsistentContainer)
	}

	return &ObjectStream{
		stream:  stream,
		n:       int(n),
		first:   int(first),
		objects: make(map[int]Object),
	}, nil
}

// N returns the number of objects stored in the stream.
func (os *ObjectStream) N() int {
	return os.n
}

// First returns the byte offset to the first object's data in the decoded stream.
func (os *ObjectStream) First() int {
	return os.first
}

// decode decodes the stream data and parses the header. Called lazily on first access.
func (os *ObjectStream) decode() error {
	if os.decoded != nil {
		return nil
	}
	decoded, err := os.stream.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode object stream: %w", err)
	}
	if os.first > len(decoded) {
		return fmt.Errorf("/First %d exceeds decoded length %d: %w", os.first, len(decoded), ErrInconsistentContainer)
	}
	os.decoded = decoded
	if err := os.parseHeader(); err != nil {
		os.decoded = nil
		return err
	}
	return nil
}

// parseHeader parses the N "objNum offset" pairs preceding /First.
func (os *ObjectStream) parseHeader() error {
	fields := bytes.Fields(os.decoded[:os.first])
	if len(fields) < 2*os.n {
		return fmt.Errorf("header holds %d pairs, /N is %d: %w", len(fields)/2, os.n, ErrInconsistentContainer)
	}

	os.offsets = make([]objectStreamOffset, os.n)
	for i := 0; i < os.n; i++ {
		num, err1 := strconv.Atoi(string(fields[2*i]))
		off, err2 := strconv.Atoi(string(fields[2*i+1]))
		if err1 != nil || err2 != nil || num < 0 || off < 0 {
			return fmt.Errorf("malformed header pair %d: %w", i, ErrInconsistentContainer)
		}
		os.offsets[i] = objectStreamOffset{ObjNum: num, Offset: off}
	}
	return nil
}

// memberEnd returns the end of member index's data: the next larger member
// offset, or the end of the decoded data. Offsets need not be sorted.
func (os *ObjectStream) memberEnd(index int) int {
	start := os.offsets[index].Offset
	end := len(os.decoded) - os.first
	for _, e := range os.offsets {
		if e.Offset > start && e.Offset < end {
			end = e.Offset
		}
	}
	return os.first + end
}

// GetObjectByIndex extracts an object by its index within the stream (0-based).
// Only the requested member is sliced and parsed; results are cached so the
// same index always yields the same object.
func (os *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(os.offsets) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d): %w", index, len(os.offsets), ErrInconsistentContainer)
	}
	if obj, ok := os.objects[index]; ok {
		return obj, os.offsets[index].ObjNum, nil
	}

	offset := os.first + os.offsets[index].Offset
	if offset >= len(os.decoded) {
		return nil, 0, fmt.Errorf("member %d offset %d exceeds decoded length %d: %w",
			index, offset, len(os.decoded), ErrInconsistentContainer)
	}

	parser := NewParser(bytes.NewReader(os.decoded[offset:os.memberEnd(index)]))
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse object at index %d: %w", index, err)
	}

	os.objects[index] = obj
	return obj, os.offsets[index].ObjNum, nil
}

// ObjectNumbers returns the object numbers stored in this stream, in index order.
func (os *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}
	nums := make([]int, len(os.offsets))
	for i, entry := range os.offsets {
		nums[i] = entry.ObjNum
	}
	return nums, nil
}

// LoadAll parses every member eagerly. Members that fail to parse are
// reported in the returned error but do not stop the others.
func (os *ObjectStream) LoadAll() (map[int]Object, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}
	out := make(map[int]Object, len(os.offsets))
	var firstErr error
	for i := range os.offsets {
		obj, num, err := os.GetObjectByIndex(i)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[num] = obj
	}
	return out, firstErr
}

// ObjectStreamBuilder packs objects into a new object stream. It refuses new
// members once either the member count or the byte budget is reached; the
// caller then builds the stream and starts another.
type ObjectStreamBuilder struct {
	maxMembers int
	maxBytes   int
	nums       []int
	offsets    []int
	body       []byte
}

// NewObjectStreamBuilder returns a builder bounded by maxMembers and maxBytes.
func NewObjectStreamBuilder(maxMembers, maxBytes int) *ObjectStreamBuilder {
	return &ObjectStreamBuilder{maxMembers: maxMembers, maxBytes: maxBytes}
}

// Add appends obj as member num and returns its index. ok is false when the
// builder is full; an empty builder always accepts one member.
func (b *ObjectStreamBuilder) Add(num int, obj Object) (index int, ok bool) {
	data := Serialize(obj)
	if len(b.nums) > 0 && (len(b.nums) >= b.maxMembers || len(b.body)+len(data) > b.maxBytes) {
		return 0, false
	}
	b.nums = append(b.nums, num)
	b.offsets = append(b.offsets, len(b.body))
	b.body = append(b.body, data...)
	b.body = append(b.body, '\n')
	return len(b.nums) - 1, true
}

// Len returns the number of members added since the last Reset.
func (b *ObjectStreamBuilder) Len() int {
	return len(b.nums)
}

// Members returns the member object numbers in index order.
func (b *ObjectStreamBuilder) Members() []int {
	return append([]int(nil), b.nums...)
}

// Build returns the Flate-compressed container stream.
func (b *ObjectStreamBuilder) Build() (*Stream, error) {
	var header []byte
	for i, num := range b.nums {
		if i > 0 {
			header = append(header, ' ')
		}
		header = strconv.AppendInt(header, int64(num), 10)
		header = append(header, ' ')
		header = strconv.AppendInt(header, int64(b.offsets[i]), 10)
	}
	header = append(header, '\n')

	data := make([]byte, 0, len(header)+len(b.body))
	data = append(data, header...)
	data = append(data, b.body...)

	return NewFlateStream(Dict{
		"Type":  Name("ObjStm"),
		"N":     Int(len(b.nums)),
		"First": Int(len(header)),
	}, data)
}

// Reset empties the builder for the next container.
func (b *ObjectStreamBuilder) Reset() {
	b.nums = b.nums[:0]
	b.offsets = b.offsets[:0]
	b.body = b.body[:0]
}

