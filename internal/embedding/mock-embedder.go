package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// featuresPerWord is how many dimensions each word contributes to.
const featuresPerWord = 8

// MockEmbedder is a deterministic embedder for tests. Text vectors are a bag of
// hashed words, so texts sharing words are similar; image vectors are seeded from
// the content hash, so identical bytes embed identically.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns a deterministic embedding based on the words of text.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	words := Words(text)
	if len(words) == 0 {
		emb[0] = 1
		return emb, nil
	}
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		for i := 0; i < featuresPerWord; i++ {
			idx := int((sum >> (i * 7)) % uint64(e.dimensions))
			if (sum>>(i+56))&1 == 1 {
				emb[idx] -= 1
			} else {
				emb[idx] += 1
			}
		}
	}
	if utils.NormalizeL2(emb) == 0 {
		emb[0] = 1
	}
	return emb, nil
}

// EmbedImage returns a deterministic embedding seeded from the bytes' hash.
func (e *MockEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrInvalidInput
	}
	sum := sha256.Sum256(data)
	rng := rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(sum[:8]))))
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(rng.NormFloat64())
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
