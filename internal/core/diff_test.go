package core

import (
	"strings"
	"testing"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    bool
	}{
		{"plain ASCII text", []byte("Hello, World!\nThis is a test."), true},
		{"UTF-8 with special chars", []byte("Hello 世界! Ñoño café"), true},
		{"empty", []byte(""), true},
		{"newlines and spaces", []byte("\n\n  \t  \n"), true},
		{"null bytes", []byte("abc\x00def"), false},
		{"invalid UTF-8", []byte{0xff, 0xfe, 0xfd}, false},
		{"control characters", []byte{1, 2, 3, 4, 5, 6, 7, 8, 'a', 'b'}, false},
		{"rune cut at sample boundary", []byte(strings.Repeat("a", BinarySampleSize-1) + "世界"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFileType(tt.content)
			if got != tt.want {
				t.Errorf("DetectFileType() for %s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestGenerateUnifiedDiff(t *testing.T) {
	old := []byte("line1\nline2\nline3\n")
	updated := []byte("line1\nchanged\nline3\n")

	diff, err := GenerateUnifiedDiff("e1", old, updated)
	if err != nil {
		t.Fatalf("GenerateUnifiedDiff failed: %v", err)
	}
	if !strings.Contains(diff, "--- vault/e1") || !strings.Contains(diff, "+++ new/e1") {
		t.Errorf("missing headers in diff:\n%s", diff)
	}
	if !strings.Contains(diff, "-line2") || !strings.Contains(diff, "+changed") {
		t.Errorf("missing changes in diff:\n%s", diff)
	}

	same, err := GenerateUnifiedDiff("e1", old, old)
	if err != nil {
		t.Fatalf("GenerateUnifiedDiff failed: %v", err)
	}
	if same != "" {
		t.Errorf("expected empty diff for identical content, got %q", same)
	}

	bin, err := GenerateUnifiedDiff("e1", []byte{0, 1, 2}, []byte{0, 1, 3})
	if err != nil {
		t.Fatalf("GenerateUnifiedDiff failed: %v", err)
	}
	if !strings.Contains(bin, "Binary entry e1") {
		t.Errorf("expected binary notice, got %q", bin)
	}
}

func TestDiffStat(t *testing.T) {
	ins, del := DiffStat([]byte("a\nb\nc\n"), []byte("a\nx\ny\nc\n"))
	if ins != 2 || del != 1 {
		t.Errorf("DiffStat = +%d -%d, want +2 -1", ins, del)
	}

	ins, del = DiffStat([]byte("same\n"), []byte("same\n"))
	if ins != 0 || del != 0 {
		t.Errorf("DiffStat of identical text = +%d -%d", ins, del)
	}
}
