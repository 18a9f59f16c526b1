package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%04d", i)
	}
	return strings.Join(words, " ")
}

func TestSplit_ShortTextSingleSegment(t *testing.T) {
	s := NewRecursiveSplitter(1000, 200, nil)
	text := "What does my policy cover?\nIt covers fire and theft."
	got := s.Split(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(got))
	}
	if got[0] != text {
		t.Errorf("expected segment to equal input, got %q", got[0])
	}
}

func TestSplit_EmptyText(t *testing.T) {
	s := NewRecursiveSplitter(1000, 200, nil)
	if got := s.Split("   \n\n  "); len(got) != 0 {
		t.Fatalf("expected no segments, got %v", got)
	}
}

func TestSplit_LongTextOverlaps(t *testing.T) {
	s := NewRecursiveSplitter(1000, 200, nil)
	text := numberedWords(600) // 3599 characters
	got := s.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected several segments, got %d", len(got))
	}
	for i, seg := range got {
		if n := utf8.RuneCountInString(seg); n > 1000 {
			t.Errorf("segment %d has %d characters", i, n)
		}
	}
	for i := 1; i < len(got); i++ {
		prev, next := got[i-1], got[i]
		tail := strings.TrimSpace(prev[len(prev)-150:])
		head := next
		if len(head) > 250 {
			head = head[:250]
		}
		if !strings.Contains(head, tail) {
			t.Errorf("segment %d does not repeat the tail of segment %d", i, i-1)
		}
	}
	if !strings.HasPrefix(got[0], "w0000") || !strings.HasSuffix(got[len(got)-1], "w0599") {
		t.Error("segments must cover the text from start to end")
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	s := NewRecursiveSplitter(40, 0, nil)
	text := "First paragraph is here.\n\nSecond paragraph is here."
	got := s.Split(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d: %q", len(got), got)
	}
	if got[0] != "First paragraph is here." || got[1] != "Second paragraph is here." {
		t.Errorf("unexpected segments %q", got)
	}
}

func TestSplit_FallsBackToCharacters(t *testing.T) {
	s := NewRecursiveSplitter(10, 2, nil)
	text := strings.Repeat("x", 25)
	got := s.Split(text)
	if len(got) < 3 {
		t.Fatalf("expected at least 3 segments, got %d", len(got))
	}
	for _, seg := range got {
		if len(seg) > 10 {
			t.Errorf("segment too long: %q", seg)
		}
	}
}

func TestNewRecursiveSplitter_Defaults(t *testing.T) {
	s := NewRecursiveSplitter(0, -1, nil)
	if s.chunkSize != 1000 || s.chunkOverlap != 0 {
		t.Errorf("unexpected defaults: size=%d overlap=%d", s.chunkSize, s.chunkOverlap)
	}
	if len(s.separators) != 4 {
		t.Errorf("expected 4 default separators, got %d", len(s.separators))
	}
}
