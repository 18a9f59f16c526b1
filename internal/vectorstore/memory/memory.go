package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Store keeps the current bundle in process memory. Nothing survives a restart.
type Store struct {
	mu         sync.RWMutex
	name       string
	generation int
	bundle     *vectorstore.Bundle
}

// NewStore returns an empty in-process store for the bundle name.
func NewStore(name string) *Store { return &Store{name: name} }

func (s *Store) Build(ctx context.Context, segments []string, matrix domain.Matrix) (vectorstore.BuildResult, error) {
	if err := vectorstore.ValidateBuild(segments, matrix); err != nil {
		return vectorstore.BuildResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return vectorstore.BuildResult{}, err
	}
	idx := NewFlat(matrix.Dimension())
	if err := idx.Add(matrix...); err != nil {
		return vectorstore.BuildResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	gen := strconv.Itoa(s.generation)
	s.bundle = &vectorstore.Bundle{
		Name:       s.name,
		Generation: gen,
		Index:      idx,
		Segments:   append([]string(nil), segments...),
	}
	return vectorstore.BuildResult{
		Generation:   gen,
		IndexPath:    "memory://" + s.name + "-" + gen + ".index",
		SegmentsPath: "memory://" + s.name + "-" + gen + ".segments",
		Count:        idx.Len(),
	}, nil
}

func (s *Store) Load(_ context.Context) (*vectorstore.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bundle == nil {
		return nil, domain.NotFoundError("load", errors.New("no bundle "+s.name))
	}
	return s.bundle, nil
}

var _ vectorstore.Store = (*Store)(nil)
