package filters

import (
	"bytes"
	"testing"
)

func mustEncode(t *testing.T, data []byte) []byte {
	t.Helper()
	encoded, err := FlateEncode(data)
	if err != nil {
		t.Fatalf("FlateEncode failed: %v", err)
	}
	return encoded
}

func TestFlateRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("Hello, World! This is test data for FlateDecode.")},
		{"empty", []byte{}},
		{"binary", bytes.Repeat([]byte{0, 0xff, 7}, 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := FlateDecode(mustEncode(t, tt.data), Params{"Predictor": 1})
			if err != nil {
				t.Fatalf("FlateDecode failed: %v", err)
			}
			if !bytes.Equal(decoded, tt.data) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(decoded), len(tt.data))
			}
		})
	}
}

func TestFlateEncodeCompresses(t *testing.T) {
	data := bytes.Repeat([]byte("BT /F1 12 Tf ET\n"), 200)
	if encoded := mustEncode(t, data); len(encoded) >= len(data) {
		t.Errorf("expected compression, got %d bytes from %d", len(encoded), len(data))
	}
}

func TestFlateDecodeInvalid(t *testing.T) {
	if _, err := FlateDecode([]byte("not zlib data"), nil); err == nil {
		t.Error("expected error for invalid zlib data")
	}
}

func TestPNGPredictor(t *testing.T) {
	raw := []byte{
		1, 1, 1, 1, // Sub
		2, 1, 1, 1, // Up
		3, 0, 0, 0, // Average
		4, 0, 0, 0, // Paeth
		0, 9, 9, 9, // None
		2, 5, // partial row, dropped
	}
	want := []byte{1, 2, 3, 2, 3, 4, 1, 2, 3, 1, 2, 3, 9, 9, 9}

	decoded, err := FlateDecode(mustEncode(t, raw), Params{"Predictor": 12, "Columns": 3})
	if err != nil {
		t.Fatalf("FlateDecode failed: %v", err)
	}
	if !bytes.Equal(decoded, want) {
		t.Errorf("got %v, want %v", decoded, want)
	}
}

func TestTIFFPredictor2(t *testing.T) {
	raw := []byte{1, 1, 1, 5, 0, 0}
	decoded, err := FlateDecode(mustEncode(t, raw), Params{"Predictor": int64(2), "Columns": float64(3)})
	if err != nil {
		t.Fatalf("FlateDecode failed: %v", err)
	}
	if want := []byte{1, 2, 3, 5, 5, 5}; !bytes.Equal(decoded, want) {
		t.Errorf("got %v, want %v", decoded, want)
	}
}

func TestPredictorErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		params Params
	}{
		{"unsupported predictor", []byte{0, 1}, Params{"Predictor": 7}},
		{"PNG wrong bits", []byte{0, 1}, Params{"Predictor": 10, "BitsPerComponent": 16}},
		{"PNG unknown filter", []byte{9, 1}, Params{"Predictor": 10}},
		{"PNG short data", []byte{0, 1}, Params{"Predictor": 10, "Columns": 4}},
		{"TIFF ragged rows", []byte{1, 2, 3}, Params{"Predictor": 2, "Columns": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FlateDecode(mustEncode(t, tt.data), tt.params); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestPaethPredictor(t *testing.T) {
	tests := []struct {
		a, b, c byte
		want    byte
	}{
		{0, 0, 0, 0},
		{10, 20, 10, 20},
		{20, 10, 10, 20},
		{10, 10, 20, 10},
		{100, 50, 75, 75},
	}

	for _, tt := range tests {
		if got := paethPredictor(tt.a, tt.b, tt.c); got != tt.want {
			t.Errorf("paethPredictor(%d, %d, %d) = %d, want %d", tt.a, tt.b, tt.c, got, tt.want)
		}
	}
}

func TestGetIntParam(t *testing.T) {
	params := Params{"I": 3, "L": int64(4), "F": 5.0, "S": "x"}
	tests := []struct {
		key  string
		want int
	}{
		{"I", 3},
		{"L", 4},
		{"F", 5},
		{"S", -1},
		{"Missing", -1},
	}

	for _, tt := range tests {
		if got := getIntParam(params, tt.key, -1); got != tt.want {
			t.Errorf("getIntParam(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
	if got := getIntParam(nil, "I", 9); got != 9 {
		t.Errorf("nil params should yield the default, got %d", got)
	}
}
