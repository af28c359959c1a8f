// Package vector provides the in-process vector index used by the local shot store.
package vector

import "context"

// VectorIndex stores one vector per id and answers nearest-neighbor queries.
type VectorIndex interface {
	// Upsert inserts or replaces the vectors for ids.
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k ids by descending similarity. When allow is
	// non-nil only ids it accepts are considered.
	Search(ctx context.Context, query []float32, k int, allow func(id string) bool) ([]*VectorResult, error)
	Get(id string) ([]float32, bool)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity clamped to [0, 1]
}
