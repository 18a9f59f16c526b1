package hashing

import (
	"context"
	"math"
	"testing"

	"docqa/internal/domain"
)

func sqDist(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		d := float64(a[i] - b[i])
		s += d * d
	}
	return s
}

func TestEmbedBatch_ShapeAndNorm(t *testing.T) {
	e := NewEmbedder(64)
	out, err := e.EmbedBatch(context.Background(), []string{"Apple is a fruit", "Car is a vehicle"}, domain.ModeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(out))
	}
	for i, v := range out {
		if len(v) != 64 {
			t.Fatalf("vector %d has dimension %d", i, len(v))
		}
		norm := 0.0
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("vector %d not normalized: %f", i, norm)
		}
	}
}

func TestEmbedBatch_Deterministic(t *testing.T) {
	e := NewEmbedder(0)
	a, _ := e.EmbedBatch(context.Background(), []string{"coverage for flood damage"}, domain.ModeDocument)
	b, _ := e.EmbedBatch(context.Background(), []string{"coverage for flood damage"}, domain.ModeQuery)
	if len(a[0]) != defaultDimension {
		t.Fatalf("expected default dimension %d, got %d", defaultDimension, len(a[0]))
	}
	if sqDist(a[0], b[0]) != 0 {
		t.Fatal("same text must embed identically")
	}
	if e.LastMode() != domain.ModeQuery {
		t.Errorf("expected last mode query, got %v", e.LastMode())
	}
}

func TestEmbedBatch_SharedTokensAreCloser(t *testing.T) {
	e := NewEmbedder(256)
	out, err := e.EmbedBatch(context.Background(), []string{
		"flood damage coverage",
		"premium payment schedule",
		"flood coverage",
	}, domain.ModeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sqDist(out[2], out[0]) >= sqDist(out[2], out[1]) {
		t.Error("expected overlapping text to be nearer")
	}
}

func TestEmbedBatch_EmptyTextFails(t *testing.T) {
	e := NewEmbedder(16)
	if _, err := e.EmbedBatch(context.Background(), []string{"ok", "  "}, domain.ModeDocument); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestEmbedBatch_CancelledContext(t *testing.T) {
	e := NewEmbedder(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedBatch(ctx, []string{"x"}, domain.ModeDocument); err == nil {
		t.Fatal("expected context error")
	}
}
