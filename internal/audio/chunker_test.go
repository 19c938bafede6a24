package audio

import (
	"strings"
	"testing"
)

func TestChunkStringReconstructs(t *testing.T) {
	cases := []struct {
		input string
		size  int
		want  int
	}{
		{"abcdefghij", 3, 4},
		{"abcdefghij", 5, 2},
		{"abcdefghij", 10, 1},
		{"abcdefghij", 100, 1},
		{"a", 1, 1},
	}
	for _, tc := range cases {
		chunks := ChunkString(tc.input, tc.size)
		if len(chunks) != tc.want {
			t.Errorf("ChunkString(%q, %d): expected %d chunks, got %d", tc.input, tc.size, tc.want, len(chunks))
		}
		if joined := strings.Join(chunks, ""); joined != tc.input {
			t.Errorf("ChunkString(%q, %d): reconstruction mismatch %q", tc.input, tc.size, joined)
		}
		for i, c := range chunks[:len(chunks)-1] {
			if len(c) != tc.size {
				t.Errorf("chunk %d: expected size %d, got %d", i, tc.size, len(c))
			}
		}
	}
}

func TestChunkStringDegenerate(t *testing.T) {
	if got := ChunkString("", 4); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := ChunkString("abc", 0); len(got) != 1 || got[0] != "abc" {
		t.Errorf("expected single chunk for non-positive size, got %v", got)
	}
	if got := ChunkString("abc", -5); len(got) != 1 || got[0] != "abc" {
		t.Errorf("expected single chunk for negative size, got %v", got)
	}
}
