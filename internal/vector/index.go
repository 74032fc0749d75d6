// Package vector provides append-only vector indices with exhaustive inner-product search.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrSlotOutOfRange is returned by Reconstruct for a slot the index does not hold.
	ErrSlotOutOfRange = errors.New("slot out of range")
	// ErrCorrupt is returned by Load when a persisted index fails validation.
	ErrCorrupt = errors.New("corrupt index file")
)

// VectorIndex is an append-only sequence of vectors. A vector's position (its slot)
// is its permanent handle: slots are assigned 0, 1, 2, ... and never reused.
type VectorIndex interface {
	// Add appends vec and returns its slot, which equals Size() before the call.
	Add(ctx context.Context, vec []float32) (int64, error)
	// Search returns at most min(k, Size()) hits by descending inner product.
	// An empty index returns no hits and no error.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Reconstruct returns a copy of the vector stored at slot.
	Reconstruct(slot int64) ([]float32, error)
	// Save writes the index to path; a reader never sees a half-written file.
	Save(path string) error
	// Load replaces the contents with the index persisted at path.
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
	Type() string
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	Slot  int64
	Score float64 // raw inner product; cosine similarity for unit vectors
}
