package core

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Object represents a PDF object
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType represents the type of PDF object
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjIndirect
)

// String returns the string representation of the object type
func (t ObjectType) String() string {
	switch t {
	case ObjNull:
		return "Null"
	case ObjBool:
		return "Bool"
	case ObjInt:
		return "Int"
	case ObjReal:
		return "Real"
	case ObjString:
		return "String"
	case ObjName:
		return "Name"
	case ObjArray:
		return "Array"
	case ObjDict:
		return "Dict"
	case ObjStream:
		return "Stream"
	case ObjIndirect:
		return "IndirectRef"
	default:
		return "Unknown"
	}
}

// Null represents a PDF null object
type Null struct{}

func (n Null) Type() ObjectType { return ObjNull }
func (n Null) String() string   { return "null" }

// Bool represents a PDF boolean
type Bool bool

func (b Bool) Type() ObjectType { return ObjBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int represents a PDF integer
type Int int64

func (i Int) Type() ObjectType { return ObjInt }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Real represents a PDF real number
type Real float64

func (r Real) Type() ObjectType { return ObjReal }
func (r Real) String() string   { return strconv.FormatFloat(float64(r), 'f', -1, 64) }

// String represents a PDF string. The value holds the decoded bytes; whether
// the source used literal or hexadecimal syntax is not preserved.
type String string

func (s String) Type() ObjectType { return ObjString }
func (s String) String() string   { return string(s) }

// Name represents a PDF name
type Name string

func (n Name) Type() ObjectType { return ObjName }
func (n Name) String() string   { return "/" + string(n) }

// Array represents a PDF array
type Array []Object

func (a Array) Type() ObjectType { return ObjArray }
func (a Array) String() string {
	var parts []string
	for _, obj := range a {
		parts = append(parts, obj.String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Len returns the length of the array
func (a Array) Len() int {
	return len(a)
}

// Get retrieves an element at the given index
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

// GetInt retrieves an integer at the given index
func (a Array) GetInt(index int) (Int, bool) {
	i, ok := a.Get(index).(Int)
	return i, ok
}

// GetName retrieves a name at the given index
func (a Array) GetName(index int) (Name, bool) {
	n, ok := a.Get(index).(Name)
	return n, ok
}

// Dict represents a PDF dictionary
type Dict map[string]Object

func (d Dict) Type() ObjectType { return ObjDict }
func (d Dict) String() string {
	var parts []string
	for _, key := range d.Keys() {
		parts = append(parts, fmt.Sprintf("/%s %s", key, d[key].String()))
	}
	return "<<" + strings.Join(parts, " ") + ">>"
}

// Get retrieves a value from the dictionary
func (d Dict) Get(key string) Object {
	return d[key]
}

// GetName retrieves a name value
func (d Dict) GetName(key string) (Name, bool) {
	name, ok := d[key].(Name)
	return name, ok
}

// GetInt retrieves an integer value
func (d Dict) GetInt(key string) (Int, bool) {
	i, ok := d[key].(Int)
	return i, ok
}

// GetDict retrieves a dictionary value
func (d Dict) GetDict(key string) (Dict, bool) {
	dict, ok := d[key].(Dict)
	return dict, ok
}

// GetArray retrieves an array value
func (d Dict) GetArray(key string) (Array, bool) {
	arr, ok := d[key].(Array)
	return arr, ok
}

// GetString retrieves a string value
func (d Dict) GetString(key string) (String, bool) {
	s, ok := d[key].(String)
	return s, ok
}

// GetIndirectRef retrieves an indirect reference
func (d Dict) GetIndirectRef(key string) (IndirectRef, bool) {
	ref, ok := d[key].(IndirectRef)
	return ref, ok
}

// Has checks if a key exists in the dictionary
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Set sets a value in the dictionary
func (d Dict) Set(key string, value Object) {
	d[key] = value
}

// Delete removes a key from the dictionary
func (d Dict) Delete(key string) {
	delete(d, key)
}

// Keys returns all keys in the dictionary in sorted order, so that anything
// derived from a Dict (serialization, hashing) is deterministic.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsType reports whether the dictionary's /Type is the given name.
func (d Dict) IsType(name string) bool {
	t, ok := d.GetName("Type")
	return ok && string(t) == name
}

// Stream represents a PDF stream object. Data holds the raw (still encoded)
// bytes exactly as stored in the file.
type Stream struct {
	Dict Dict
	Data []byte

	// DataOffset is the offset of the first data byte relative to the start
	// of the input the stream was parsed from, or -1 when unknown.
	DataOffset int64

	decoded []byte
}

func (s *Stream) Type() ObjectType { return ObjStream }
func (s *Stream) String() string {
	return fmt.Sprintf("stream %s (%d bytes)", s.Dict.String(), len(s.Data))
}

// Decoded returns the decoded stream data, caching the result.
func (s *Stream) Decoded() ([]byte, error) {
	if s.decoded != nil {
		return s.decoded, nil
	}
	data, err := s.Decode()
	if err != nil {
		return nil, err
	}
	s.decoded = data
	return data, nil
}

// SetData replaces the raw stream bytes and keeps /Length in sync.
func (s *Stream) SetData(data []byte) {
	s.Data = data
	s.decoded = nil
	if s.Dict == nil {
		s.Dict = make(Dict)
	}
	s.Dict["Length"] = Int(len(data))
}

// IndirectRef represents an indirect object reference. It doubles as the
// object identifier (number, generation) throughout the store.
type IndirectRef struct {
	Number     int
	Generation int
}

func (r IndirectRef) Type() ObjectType { return ObjIndirect }
func (r IndirectRef) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// IndirectObject represents an indirect object with its reference
type IndirectObject struct {
	Ref    IndirectRef
	Object Object

	// Offset is the position of the object header relative to the parser input.
	Offset int64
}

// Clone returns a deep copy of obj. Indirect references are copied as values,
// not followed.
func Clone(obj Object) Object {
	switch v := obj.(type) {
	case Array:
		out := make(Array, len(v))
		for i, elem := range v {
			out[i] = Clone(elem)
		}
		return out
	case Dict:
		out := make(Dict, len(v))
		for k, val := range v {
			out[k] = Clone(val)
		}
		return out
	case *Stream:
		if v == nil {
			return v
		}
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		var dict Dict
		if v.Dict != nil {
			dict = Clone(v.Dict).(Dict)
		}
		return &Stream{Dict: dict, Data: data, DataOffset: v.DataOffset}
	default:
		return obj
	}
}

// Equal reports whether a and b are structurally identical. References are
// compared by value, never followed; use a resolver-aware comparison to look
// through them.
func Equal(a, b Object) bool {
	return equalDepth(a, b, 0)
}

func equalDepth(a, b Object, depth int) bool {
	if depth > MaxNestingDepth {
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalDepth(av[i], bv[i], depth+1) {
				return false
			}
		}
		return true
	case Dict:
		bv, ok := b.(Dict)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, val := range av {
			other, ok := bv[k]
			if !ok || !equalDepth(val, other, depth+1) {
				return false
			}
		}
		return true
	case *Stream:
		bv, ok := b.(*Stream)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == bv
		}
		return bytes.Equal(av.Data, bv.Data) && equalDepth(av.Dict, bv.Dict, depth+1)
	case Real:
		// 1 and 1.0 are the same number
		switch bv := b.(type) {
		case Real:
			return av == bv
		case Int:
			return float64(av) == float64(bv)
		}
		return false
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Real:
			return float64(av) == float64(bv)
		}
		return false
	default:
		return a == b
	}
}

// Walk calls fn for every indirect reference reachable inside obj without
// following references. fn may replace the reference by returning a new one.
func Walk(obj Object, fn func(ref IndirectRef) IndirectRef) Object {
	switch v := obj.(type) {
	case IndirectRef:
		return fn(v)
	case Array:
		for i, elem := range v {
			v[i] = Walk(elem, fn)
		}
		return v
	case Dict:
		for k, val := range v {
			v[k] = Walk(val, fn)
		}
		return v
	case *Stream:
		if v != nil && v.Dict != nil {
			Walk(v.Dict, fn)
		}
		return v
	default:
		return obj
	}
}
