package core

import "testing"

func TestDecodeTextString(t *testing.T) {
	tests := []struct {
		name string
		in   String
		want string
	}{
		{"ascii", String("Signature1"), "Signature1"},
		{"utf16 big endian", String("\xfe\xff\x00A\x00\xe9"), "Aé"},
		{"utf16 little endian", String("\xff\xfeA\x00\xe9\x00"), "Aé"},
		{"utf8 bom", String("\xef\xbb\xbfcafé"), "café"},
		{"latin1", String("caf\xe9"), "café"},
		{"empty", String(""), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeTextString(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeTextString(t *testing.T) {
	if got := EncodeTextString("plain"); got != "plain" {
		t.Errorf("ascii should stay unchanged, got %q", got)
	}
	got := EncodeTextString("Zoë")
	if got != "\xfe\xff\x00Z\x00o\x00\xeb" {
		t.Errorf("unexpected encoding %q", got)
	}
	if back := DecodeTextString(got); back != "Zoë" {
		t.Errorf("round trip gave %q", back)
	}
}
