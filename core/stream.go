package core

import (
	"fmt"

	"github.com/tsawler/pdfrev/internal/filters"
)

// Decode decodes the stream data according to the Filter(s) specified in the
// stream dictionary. It supports FlateDecode, ASCIIHexDecode, ASCII85Decode
// and chains of them. Image codecs are passed through untouched.
func (s *Stream) Decode() ([]byte, error) {
	filterNames, params, err := s.filterChain()
	if err != nil {
		return nil, err
	}

	data := s.Data
	for i, name := range filterNames {
		data, err = decodeWithFilter(data, name, params[i])
		if err != nil {
			return nil, fmt.Errorf("filter %d (%s) failed: %w", i, name, err)
		}
	}
	return data, nil
}

// filterChain normalizes /Filter and /DecodeParms into parallel slices.
func (s *Stream) filterChain() ([]string, []Dict, error) {
	switch f := s.Dict.Get("Filter").(type) {
	case nil, Null:
		return nil, nil, nil
	case Name:
		return []string{string(f)}, []Dict{paramsObjToDict(s.Dict.Get("DecodeParms"))}, nil
	case Array:
		names := make([]string, len(f))
		params := make([]Dict, len(f))
		paramsArray, isArray := s.Dict.Get("DecodeParms").(Array)
		for i, elem := range f {
			name, ok := elem.(Name)
			if !ok {
				return nil, nil, fmt.Errorf("filter %d is not a name: %T", i, elem)
			}
			names[i] = string(name)
			if isArray {
				params[i] = paramsObjToDict(paramsArray.Get(i))
			} else {
				params[i] = paramsObjToDict(s.Dict.Get("DecodeParms"))
			}
		}
		return names, params, nil
	default:
		return nil, nil, fmt.Errorf("invalid Filter type: %T", f)
	}
}

// IsCompressible reports whether the stream carries no filter yet and can be
// Flate-compressed on save without changing its meaning.
func (s *Stream) IsCompressible() bool {
	f := s.Dict.Get("Filter")
	if f == nil {
		return true
	}
	if arr, ok := f.(Array); ok && len(arr) == 0 {
		return true
	}
	return false
}

// Compress Flate-encodes unfiltered stream data in place.
func (s *Stream) Compress() error {
	if !s.IsCompressible() {
		return nil
	}
	encoded, err := filters.FlateEncode(s.Data)
	if err != nil {
		return err
	}
	s.Dict = Clone(s.Dict).(Dict)
	s.Dict.Delete("DecodeParms")
	s.Dict["Filter"] = Name("FlateDecode")
	s.SetData(encoded)
	return nil
}

// NewFlateStream builds a Flate-compressed stream holding data.
func NewFlateStream(dict Dict, data []byte) (*Stream, error) {
	if dict == nil {
		dict = make(Dict)
	}
	s := &Stream{Dict: dict, Data: data, DataOffset: -1}
	if err := s.Compress(); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeWithFilter applies a single decompression filter to data.
func decodeWithFilter(data []byte, filterName string, params Dict) ([]byte, error) {
	switch filterName {
	case "FlateDecode", "Fl":
		return filters.FlateDecode(data, dictToParams(params))
	case "ASCIIHexDecode", "AHx":
		return filters.ASCIIHexDecode(data)
	case "ASCII85Decode", "A85":
		return filters.ASCII85Decode(data)
	case "DCTDecode", "DCT", "JPXDecode", "CCITTFaxDecode", "CCF", "JBIG2Decode":
		// image codecs belong to the consumer
		return data, nil
	default:
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, filterName)
	}
}

// paramsObjToDict converts a DecodeParms object to a Dict.
func paramsObjToDict(obj Object) Dict {
	dict, _ := obj.(Dict)
	return dict
}

// dictToParams converts a Dict to filters.Params, translating PDF object
// types to Go primitive types.
func dictToParams(dict Dict) filters.Params {
	if dict == nil {
		return nil
	}
	params := make(filters.Params, len(dict))
	for k, v := range dict {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case Name:
			params[k] = string(obj)
		default:
			params[k] = v
		}
	}
	return params
}
