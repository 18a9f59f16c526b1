package memory

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/domain"
)

func TestStore_LoadBeforeBuild(t *testing.T) {
	_, err := NewStore("faq").Load(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_BuildThenLoad(t *testing.T) {
	s := NewStore("faq")
	segments := []string{"Apple is a fruit", "Car is a vehicle", "Banana is yellow"}
	res, err := s.Build(context.Background(), segments, scenarioMatrix())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("expected count 3, got %d", res.Count)
	}
	b, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.Index.Len() != len(b.Segments) || b.Segments[1] != "Car is a vehicle" {
		t.Fatalf("unexpected bundle %+v", b)
	}
	segments[0] = "mutated"
	if b.Segments[0] != "Apple is a fruit" {
		t.Fatal("bundle must not alias caller segments")
	}
}

func TestStore_RebuildReplaces(t *testing.T) {
	s := NewStore("faq")
	first, _ := s.Build(context.Background(), []string{"a"}, domain.Matrix{{1}})
	second, _ := s.Build(context.Background(), []string{"b", "c"}, domain.Matrix{{1, 2}, {3, 4}})
	if first.Generation == second.Generation {
		t.Fatal("expected a new generation")
	}
	b, _ := s.Load(context.Background())
	if b.Index.Len() != 2 || b.Index.Dimension() != 2 {
		t.Fatalf("expected the second bundle, got %d x %d", b.Index.Len(), b.Index.Dimension())
	}
}

func TestStore_BuildValidation(t *testing.T) {
	cases := map[string]struct {
		segments []string
		matrix   domain.Matrix
	}{
		"empty":          {nil, nil},
		"count mismatch": {[]string{"a", "b"}, domain.Matrix{{1}}},
		"ragged":         {[]string{"a", "b"}, domain.Matrix{{1, 2}, {1}}},
		"zero dimension": {[]string{"a"}, domain.Matrix{{}}},
	}
	for name, tc := range cases {
		s := NewStore("faq")
		if _, err := s.Build(context.Background(), tc.segments, tc.matrix); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
		if _, err := s.Load(context.Background()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("%s: failed build must not leave a bundle", name)
		}
	}
}
