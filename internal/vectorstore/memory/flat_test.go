package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"docqa/internal/domain"
)

func scenarioMatrix() domain.Matrix {
	return domain.Matrix{{1, 0}, {0, 1}, {1, 0.1}}
}

func TestFlatSearch_OrdersByDistance(t *testing.T) {
	f := NewFlat(2)
	if err := f.Add(scenarioMatrix()...); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := f.Search(context.Background(), domain.Vector{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].Position != 0 || got[1].Position != 2 {
		t.Fatalf("unexpected neighbours %+v", got)
	}
	if got[0].Distance != 0 {
		t.Errorf("expected exact match distance 0, got %f", got[0].Distance)
	}
	if d := got[1].Distance; d < 0.0099 || d > 0.0101 {
		t.Errorf("expected squared distance 0.01, got %f", d)
	}
}

func TestFlatSearch_TiesPreferLowerPosition(t *testing.T) {
	f := NewFlat(1)
	_ = f.Add(domain.Vector{2}, domain.Vector{0}, domain.Vector{2}, domain.Vector{0})
	got, _ := f.Search(context.Background(), domain.Vector{1}, 4)
	want := []int{0, 1, 2, 3}
	for i, n := range got {
		if n.Position != want[i] {
			t.Fatalf("position %d: got %d, want %d", i, n.Position, want[i])
		}
	}
}

func TestFlatSearch_Bounds(t *testing.T) {
	f := NewFlat(2)
	_ = f.Add(scenarioMatrix()...)
	cases := []struct {
		name string
		k    int
		want int
	}{
		{"zero", 0, 0},
		{"negative", -1, 0},
		{"one", 1, 1},
		{"more than stored", 10, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Search(context.Background(), domain.Vector{0, 0}, tc.k)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d neighbours, got %d", tc.want, len(got))
			}
		})
	}
}

func TestFlatSearch_EmptyIndex(t *testing.T) {
	got, err := NewFlat(2).Search(context.Background(), domain.Vector{1, 0}, 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no neighbours, got %v %v", got, err)
	}
}

func TestFlatSearch_DimensionMismatch(t *testing.T) {
	f := NewFlat(2)
	_ = f.Add(scenarioMatrix()...)
	_, err := f.Search(context.Background(), domain.Vector{1, 0, 0}, 1)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFlatAdd_DimensionMismatch(t *testing.T) {
	f := NewFlat(2)
	if err := f.Add(domain.Vector{1, 2}, domain.Vector{1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.Len() != 0 {
		t.Fatalf("failed add must not change the index, len %d", f.Len())
	}
}

func TestFlatCodec_RoundTrip(t *testing.T) {
	f := NewFlat(2)
	_ = f.Add(scenarioMatrix()...)
	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != int64(buf.Len()) || n != int64(len(flatMagic)+12+3*2*4) {
		t.Fatalf("unexpected byte count %d (buffer %d)", n, buf.Len())
	}
	got, err := ReadFlat(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Len() != 3 || got.Dimension() != 2 {
		t.Fatalf("unexpected shape %dx%d", got.Len(), got.Dimension())
	}
	for i, want := range scenarioMatrix() {
		v := got.Vector(i)
		if v[0] != want[0] || v[1] != want[1] {
			t.Errorf("vector %d: got %v, want %v", i, v, want)
		}
	}
}

func TestReadFlat_Rejects(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": []byte("NOTFLAT!\x02\x00\x00\x00\x01\x00\x00\x00\x00\x00\x00\x00"),
		"truncated": append([]byte(flatMagic), 2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	}
	for name, data := range cases {
		if _, err := ReadFlat(bytes.NewReader(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
