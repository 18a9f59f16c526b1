package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"docqa/internal/domain"
)

// Neighbor is one search hit: a position in the bundle and its squared L2 distance to the query.
type Neighbor struct {
	Position int
	Distance float32
}

// Index is an exact nearest-neighbour index over squared Euclidean distance.
// Search returns at most k neighbours sorted by ascending distance, ties by lower position.
type Index interface {
	Len() int
	Dimension() int
	Search(ctx context.Context, query domain.Vector, k int) ([]Neighbor, error)
}

// Bundle pairs an index with the segment texts it was built from.
// Segments[i] is the text of the vector at position i.
type Bundle struct {
	Name       string
	Generation string
	Index      Index
	Segments   []string
}

// BuildResult identifies the artifacts written by Build.
type BuildResult struct {
	Generation   string
	IndexPath    string
	SegmentsPath string
	Count        int
}

// Store persists bundles. Build replaces the current bundle atomically;
// Load returns the current one, or a NotFound error when there is none.
type Store interface {
	Build(ctx context.Context, segments []string, matrix domain.Matrix) (BuildResult, error)
	Load(ctx context.Context) (*Bundle, error)
}

// ValidateBuild checks the Build preconditions: a non-empty matrix with one row per
// segment and a uniform positive dimension.
func ValidateBuild(segments []string, matrix domain.Matrix) error {
	if len(matrix) == 0 {
		return domain.ValidationError("build", errors.New("empty matrix"))
	}
	if len(segments) != len(matrix) {
		return domain.ValidationError("build", fmt.Errorf("%d segments for %d vectors", len(segments), len(matrix)))
	}
	dim := matrix.Dimension()
	if dim == 0 {
		return domain.ValidationError("build", errors.New("zero dimension"))
	}
	for i, v := range matrix {
		if len(v) != dim {
			return domain.ValidationError("build", fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim))
		}
	}
	return nil
}

// ValidateQuery checks that a query vector matches the index dimension.
func ValidateQuery(dim int, query domain.Vector) error {
	if len(query) != dim {
		return domain.ValidationError("search", fmt.Errorf("query dimension %d, index dimension %d", len(query), dim))
	}
	return nil
}
