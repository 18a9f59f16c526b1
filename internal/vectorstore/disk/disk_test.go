package disk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docqa/internal/domain"
)

var (
	scenarioSegments = []string{"Apple is a fruit", "Car is a vehicle", "Banana is yellow"}
	scenarioMatrix   = domain.Matrix{{1, 0}, {0, 1}, {1, 0.1}}
)

func TestLoad_NoBundle(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"), "faq")
	if _, err := s.Load(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBuildLoad_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	s := NewStore(dir, "faq")
	res, err := s.Build(context.Background(), scenarioSegments, scenarioMatrix)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("expected count 3, got %d", res.Count)
	}
	for _, p := range []string{res.IndexPath, res.SegmentsPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("artifact %s: %v", p, err)
		}
	}

	// a fresh store value sees the same bundle
	b, err := NewStore(dir, "faq").Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.Generation != res.Generation {
		t.Fatalf("generation %s, want %s", b.Generation, res.Generation)
	}
	for i, seg := range scenarioSegments {
		if b.Segments[i] != seg {
			t.Errorf("segment %d: got %q, want %q", i, b.Segments[i], seg)
		}
	}
	got, err := b.Index.Search(context.Background(), domain.Vector{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].Position != 0 || got[1].Position != 2 {
		t.Fatalf("unexpected neighbours %+v", got)
	}
}

func TestBuild_SwapKeepsPreviousAndPrunesOlder(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "faq")
	var gens []string
	for i := range 3 {
		res, err := s.Build(context.Background(), []string{strings.Repeat("x", i+1)}, domain.Matrix{{float32(i)}})
		if err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
		gens = append(gens, res.Generation)
	}
	m, err := s.Manifest()
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m.Generation != gens[2] || m.Previous != gens[1] {
		t.Fatalf("manifest %+v, want current %s previous %s", m, gens[2], gens[1])
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), gens[0]) {
			t.Errorf("oldest generation not pruned: %s", e.Name())
		}
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "faq-"+gens[1]+".index")); err != nil {
		t.Errorf("previous generation must be kept: %v", err)
	}
}

func TestBuild_PruneIgnoresOtherBundles(t *testing.T) {
	dir := t.TempDir()
	other := NewStore(dir, "faq-archive")
	if _, err := other.Build(context.Background(), []string{"a"}, domain.Matrix{{1}}); err != nil {
		t.Fatalf("build other: %v", err)
	}
	s := NewStore(dir, "faq")
	for range 3 {
		if _, err := s.Build(context.Background(), []string{"b"}, domain.Matrix{{2}}); err != nil {
			t.Fatalf("build: %v", err)
		}
	}
	if _, err := other.Load(context.Background()); err != nil {
		t.Fatalf("other bundle damaged: %v", err)
	}
}

func TestBuild_ValidationLeavesPreviousBundle(t *testing.T) {
	s := NewStore(t.TempDir(), "faq")
	first, err := s.Build(context.Background(), scenarioSegments, scenarioMatrix)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = s.Build(context.Background(), []string{"only one"}, scenarioMatrix)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	b, err := s.Load(context.Background())
	if err != nil || b.Generation != first.Generation {
		t.Fatalf("expected first bundle to stay current, got %v %v", b, err)
	}
}

func TestLoad_MissingArtifact(t *testing.T) {
	s := NewStore(t.TempDir(), "faq")
	res, err := s.Build(context.Background(), scenarioSegments, scenarioMatrix)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := os.Remove(res.SegmentsPath); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoad_CountMismatch(t *testing.T) {
	s := NewStore(t.TempDir(), "faq")
	res, err := s.Build(context.Background(), scenarioSegments, scenarioMatrix)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := os.WriteFile(res.SegmentsPath, []byte(`["only one"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoad_CorruptIndex(t *testing.T) {
	s := NewStore(t.TempDir(), "faq")
	res, _ := s.Build(context.Background(), scenarioSegments, scenarioMatrix)
	if err := os.WriteFile(res.IndexPath, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background()); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestConcurrentBuildAndLoad(t *testing.T) {
	s := NewStore(t.TempDir(), "faq")
	if _, err := s.Build(context.Background(), scenarioSegments, scenarioMatrix); err != nil {
		t.Fatalf("build: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			n := i%3 + 1
			segs := scenarioSegments[:n]
			if _, err := s.Build(context.Background(), segs, scenarioMatrix[:n]); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			b, err := s.Load(context.Background())
			if err != nil {
				errs <- err
				return
			}
			if b.Index.Len() != len(b.Segments) {
				errs <- errors.New("torn bundle")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
