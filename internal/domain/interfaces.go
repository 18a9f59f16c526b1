package domain

import "context"

// Segment is one unit of source text produced by splitting, with its position in the ingested sequence.
type Segment struct {
	Index int
	Text  string
}

// Vector is a fixed-length embedding.
type Vector []float32

// Matrix holds one vector per segment, in segment order.
type Matrix []Vector

// Dimension returns the length of the first vector, or 0 for an empty matrix.
func (m Matrix) Dimension() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Mode tells the embedding provider what the text will be used for.
type Mode int

const (
	// ModeDocument marks text that is stored for later retrieval.
	ModeDocument Mode = iota
	// ModeQuery marks a live query.
	ModeQuery
)

func (m Mode) String() string {
	switch m {
	case ModeDocument:
		return "document"
	case ModeQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Texts returns the text of each segment, in order.
func Texts(segments []Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Text
	}
	return out
}

// Splitter produces ordered text segments from raw text.
type Splitter interface {
	Split(text string) []string
}

// Extractor turns a raw document into its full text.
type Extractor interface {
	Extract(path string) (string, error)
}

// Generator produces text from a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
