// Package filters provides the PDF stream filters the object store needs:
// decoding for reading and Flate and hex encoding for writing.
//
// # Supported Filters
//
// FlateDecode (zlib/deflate):
//
//	decoded, err := filters.FlateDecode(data, params)
//
// FlateDecode supports PNG predictors for improved compression of image data.
// The Predictor parameter specifies the algorithm:
//   - 1: No prediction (default)
//   - 2: TIFF Predictor 2
//   - 10-15: PNG predictors (None, Sub, Up, Average, Paeth)
//
// ASCIIHexDecode:
//
//	decoded, err := filters.ASCIIHexDecode(data)
//
// Decodes hexadecimal-encoded data. Whitespace is ignored. ASCIIHexEncode
// produces the upper-case digits written into signature placeholders.
//
// FlateEncode compresses with zlib at the default level; saves use it for
// object streams, cross-reference streams and optional stream compression.
//
// ASCII85Decode:
//
//	decoded, err := filters.ASCII85Decode(data)
//
// Decodes ASCII base-85 encoded data (also known as Ascii85).
//
// # Decode Parameters
//
// Filters accept a Params map for additional parameters:
//
//	params := filters.Params{
//	    "Predictor": 12,
//	    "Columns":   100,
//	    "Colors":    3,
//	}
//	decoded, err := filters.FlateDecode(data, params)
package filters
