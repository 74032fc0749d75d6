//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"fmt"
)

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

var errNoFAISS = fmt.Errorf("FAISS not available")

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	return nil, fmt.Errorf("FAISS not available: build with -tags=faiss and install FAISS library")
}

func (f *FAISSIndex) Add(ctx context.Context, vec []float32) (int64, error) { return -1, errNoFAISS }

func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	return nil, errNoFAISS
}

func (f *FAISSIndex) Reconstruct(slot int64) ([]float32, error) { return nil, errNoFAISS }
func (f *FAISSIndex) Save(path string) error                    { return errNoFAISS }
func (f *FAISSIndex) Load(path string) error                    { return errNoFAISS }
func (f *FAISSIndex) Size() int                                 { return 0 }
func (f *FAISSIndex) Dimensions() int                           { return 0 }
func (f *FAISSIndex) Close() error                              { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
