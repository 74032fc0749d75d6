//go:build faiss && cgo
// +build faiss,cgo

package vector

import "testing"

func newFAISS(t *testing.T, dim int) VectorIndex {
	t.Helper()
	idx, err := NewFAISSIndex(dim)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestFAISSIndex_Contract(t *testing.T) {
	runIndexContract(t, newFAISS)
}
