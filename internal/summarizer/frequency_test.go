package summarizer

import (
	"strings"
	"testing"
)

const faq = `What does the policy cover? The policy covers fire damage and flood damage to the insured home.
Flood damage claims require photos of the flood damage. Premiums are paid monthly.
Contact support by phone.`

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize(faq, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "The policy covers fire damage and flood damage to the insured home. Flood damage claims require photos of the flood damage."
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestSummarize_DefaultLimit(t *testing.T) {
	got, _ := NewFrequencySummarizer().Summarize(faq, 0)
	if n := strings.Count(got, ".") + strings.Count(got, "?"); n != defaultMaxSentences {
		t.Fatalf("expected %d sentences, got %d in %q", defaultMaxSentences, n, got)
	}
}

func TestSummarize_NoPunctuation(t *testing.T) {
	got, _ := NewFrequencySummarizer().Summarize("  just a heading\n", 3)
	if got != "just a heading" {
		t.Fatalf("got %q", got)
	}
}

func TestSummarize_Empty(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("", 3)
	if err != nil || got != "" {
		t.Fatalf("got %q %v", got, err)
	}
}
