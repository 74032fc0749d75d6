package vector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS IndexFlatIP (still exhaustive).
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "memory" (default), "faiss".
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", indexType)
	}
}

// Open creates an index and loads path into it if the file exists. A file that
// fails to load is logged and replaced by an empty index; the caller re-adds what is
// missing. recovered reports whether that happened.
func Open(indexType string, dimensions int, path string, logger *zap.Logger) (idx VectorIndex, recovered bool, err error) {
	idx, err = NewVectorIndex(indexType, dimensions)
	if err != nil {
		return nil, false, err
	}
	if path == "" || !utils.FileExists(path) {
		return idx, false, nil
	}
	if err := idx.Load(path); err != nil {
		utils.OrNop(logger).Warn("vector index unreadable, starting empty",
			zap.String("path", path),
			zap.Error(err))
		_ = idx.Close()
		idx, err = NewVectorIndex(indexType, dimensions)
		if err != nil {
			return nil, false, err
		}
		return idx, true, nil
	}
	return idx, false, nil
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
