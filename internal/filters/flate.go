package filters

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Params represents decode parameters from PDF stream dictionaries.
// Common parameters include Predictor, Columns, Colors, and BitsPerComponent.
type Params map[string]interface{}

// maxInflated bounds the output of a single FlateDecode call.
const maxInflated = 1 << 30

// ErrTooLarge is returned when decompressed data exceeds maxInflated.
var ErrTooLarge = fmt.Errorf("inflated data exceeds %d bytes", maxInflated)

// FlateDecode decompresses Flate (zlib/deflate) compressed data and undoes
// the predictor named in params, if any.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	decompressed, err := zlibDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}

	predictor := getIntParam(params, "Predictor", 1)
	if predictor == 1 {
		return decompressed, nil
	}
	decompressed, err = applyPredictor(decompressed, predictor, params)
	if err != nil {
		return nil, fmt.Errorf("predictor failed: %w", err)
	}
	return decompressed, nil
}

// FlateEncode compresses data with zlib at the default level.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	return buf.Bytes(), nil
}

// zlibDecompress inflates data. A truncated stream keeps whatever was
// recovered before the damage, which matches how viewers treat such files.
func zlibDecompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, maxInflated+1))
	if n > maxInflated {
		return nil, ErrTooLarge
	}
	if err != nil {
		if err == io.ErrUnexpectedEOF && buf.Len() > 0 {
			return buf.Bytes(), nil
		}
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return buf.Bytes(), nil
}

// applyPredictor undoes TIFF Predictor 2 or the PNG predictors (10-15).
func applyPredictor(data []byte, predictor int, params Params) ([]byte, error) {
	switch {
	case predictor == 2:
		return applyTIFFPredictor2(data, params)
	case predictor >= 10 && predictor <= 15:
		return applyPNGPredictor(data, params)
	default:
		return nil, fmt.Errorf("unsupported predictor: %d", predictor)
	}
}

// applyTIFFPredictor2 predicts each sample from the sample to its left.
func applyTIFFPredictor2(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	if bpc := getIntParam(params, "BitsPerComponent", 8); bpc != 8 {
		return nil, fmt.Errorf("TIFF Predictor 2 only supports 8 bits per component, got %d", bpc)
	}

	rowSize := columns * colors
	if rowSize <= 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("data size %d is not a multiple of row size %d", len(data), rowSize)
	}

	result := make([]byte, len(data))
	copy(result, data)
	for rowStart := 0; rowStart < len(result); rowStart += rowSize {
		for col := colors; col < rowSize; col++ {
			result[rowStart+col] += result[rowStart+col-colors]
		}
	}
	return result, nil
}

// applyPNGPredictor undoes PNG row filtering. Every row starts with a filter
// type byte (0-4); the PDF predictor value only announces that PNG filtering
// is in use. A trailing partial row is dropped.
func applyPNGPredictor(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	if bpc := getIntParam(params, "BitsPerComponent", 8); bpc != 8 {
		return nil, fmt.Errorf("PNG predictor only supports 8 bits per component, got %d", bpc)
	}

	bpp := colors
	rowLen := columns * colors
	if rowLen <= 0 {
		return nil, fmt.Errorf("invalid row length %d", rowLen)
	}
	numRows := len(data) / (rowLen + 1)
	if numRows == 0 && len(data) > 0 {
		return nil, fmt.Errorf("data size %d is smaller than one row of %d", len(data), rowLen+1)
	}

	result := make([]byte, numRows*rowLen)
	prev := make([]byte, rowLen)
	for row := 0; row < numRows; row++ {
		in := data[row*(rowLen+1):]
		filter, in := in[0], in[1:rowLen+1]
		out := result[row*rowLen : (row+1)*rowLen]

		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			up := prev[i]
			if i >= bpp {
				left = out[i-bpp]
				upLeft = prev[i-bpp]
			}

			var predicted byte
			switch filter {
			case 0:
			case 1:
				predicted = left
			case 2:
				predicted = up
			case 3:
				predicted = byte((int(left) + int(up)) / 2)
			case 4:
				predicted = paethPredictor(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown PNG filter %d in row %d", filter, row)
			}
			out[i] = in[i] + predicted
		}
		prev = out
	}
	return result, nil
}

// paethPredictor selects the neighbor (left, above, or upper-left) closest
// to the linear prediction a + b - c.
func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

// getIntParam extracts an integer parameter, returning defaultValue when it
// is missing or not numeric.
func getIntParam(params Params, key string, defaultValue int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
