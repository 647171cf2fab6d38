package textutil

import (
	"testing"

	"github.com/mailpod/mailpod/internal/testutil"
)

func TestEnsureUTF8ValidPassthrough(t *testing.T) {
	inputs := []string{
		"",
		"plain ascii",
		"accented: café, naïve",
		"japanese: こんにちは",
		"emoji: ✉",
	}
	for _, in := range inputs {
		if got := EnsureUTF8(in); got != in {
			t.Errorf("EnsureUTF8(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestEnsureUTF8Windows1252(t *testing.T) {
	// "smart quotes" and an em dash as Windows-1252 bytes.
	raw := string([]byte{0x93, 0x73, 0x6d, 0x61, 0x72, 0x74, 0x94, 0x20, 0x97})
	got := EnsureUTF8(raw)
	testutil.AssertValidUTF8(t, got)
	testutil.AssertContainsAll(t, got, []string{"smart"})
}

func TestEnsureUTF8Latin1(t *testing.T) {
	// "café" in Latin-1: é is 0xE9.
	raw := string([]byte{0x63, 0x61, 0x66, 0xE9})
	got := EnsureUTF8(raw)
	testutil.AssertValidUTF8(t, got)
}

func TestEnsureUTF8GarbageIsSanitized(t *testing.T) {
	raw := string([]byte{0xff, 0xfe, 0xfd})
	got := EnsureUTF8(raw)
	testutil.AssertValidUTF8(t, got)
}

func TestSanitizeUTF8(t *testing.T) {
	raw := "ok" + string([]byte{0xff}) + "ok"
	got := SanitizeUTF8(raw)
	testutil.AssertValidUTF8(t, got)
	if got != "ok�ok" {
		t.Errorf("SanitizeUTF8 = %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 0, ""},
		{"hello", 2, "he"},
		{"こんにちは世界", 6, "こんに..."},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
