package retriever

import (
	"context"
	"errors"
	"fmt"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// QueryEmbedder embeds texts for one purpose. *embedding.Embedder satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string, mode domain.Mode) (domain.Matrix, error)
}

// Retriever finds the segments of a bundle nearest to a question.
type Retriever struct {
	embedder QueryEmbedder
}

// New returns a Retriever that embeds queries with embedder.
func New(embedder QueryEmbedder) *Retriever { return &Retriever{embedder: embedder} }

// Retrieve embeds query in query mode and returns up to topK segment texts,
// nearest first. Positions the index reports outside the segment list are skipped.
func (r *Retriever) Retrieve(ctx context.Context, query string, bundle *vectorstore.Bundle, topK int) ([]string, error) {
	segments, err := r.RetrieveSegments(ctx, query, bundle, topK)
	if err != nil {
		return nil, err
	}
	return domain.Texts(segments), nil
}

// RetrieveSegments is Retrieve keeping each segment's position in the bundle.
func (r *Retriever) RetrieveSegments(ctx context.Context, query string, bundle *vectorstore.Bundle, topK int) ([]domain.Segment, error) {
	if topK <= 0 {
		return nil, domain.ValidationError("retrieve", fmt.Errorf("top_k must be positive, got %d", topK))
	}
	if bundle == nil || bundle.Index == nil {
		return nil, domain.NotFoundError("retrieve", errors.New("no bundle"))
	}
	if bundle.Index.Len() == 0 {
		return nil, nil
	}
	m, err := r.embedder.Embed(ctx, []string{query}, domain.ModeQuery)
	if err != nil {
		return nil, err
	}
	if len(m) != 1 {
		return nil, domain.ProviderError("retrieve", fmt.Errorf("expected 1 query vector, got %d", len(m)))
	}
	neighbors, err := bundle.Index.Search(ctx, m[0], topK)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Segment, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Position < 0 || n.Position >= len(bundle.Segments) {
			continue
		}
		out = append(out, domain.Segment{Index: n.Position, Text: bundle.Segments[n.Position]})
	}
	return out, nil
}
