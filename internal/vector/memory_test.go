package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newMemory(t *testing.T, dim int) VectorIndex {
	t.Helper()
	idx, err := NewMemoryIndex(dim)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestMemoryIndex_Contract(t *testing.T) {
	runIndexContract(t, newMemory)
}

func TestMemoryIndex_AddCopiesInput(t *testing.T) {
	idx := newMemory(t, 2)
	vec := []float32{1, 0}
	_, _ = idx.Add(context.Background(), vec)
	vec[0] = 0
	got, _ := idx.Reconstruct(0)
	if got[0] != 1 {
		t.Error("index must not alias the caller's slice")
	}
}

func TestMemoryIndex_TiesKeepSlotOrder(t *testing.T) {
	idx := newMemory(t, 2)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, _ = idx.Add(ctx, []float32{1, 0})
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, 4)
	for i, r := range results {
		if r.Slot != int64(i) {
			t.Fatalf("tie order: position %d has slot %d", i, r.Slot)
		}
	}
}

func TestMemoryIndex_LoadRejectsCorruption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "image.idx")
	idx := newMemory(t, 4)
	_, _ = idx.Add(ctx, []float32{1, 2, 3, 4})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string][]byte{
		"truncated":  data[:len(data)-3],
		"bit flip":   flipByte(data, indexHeaderSize+2),
		"bad magic":  flipByte(data, 0),
		"empty file": {},
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "bad.idx")
			if err := os.WriteFile(p, corrupt, 0644); err != nil {
				t.Fatal(err)
			}
			fresh := newMemory(t, 4)
			if err := fresh.Load(p); !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
			if fresh.Size() != 0 {
				t.Errorf("failed load must not change contents")
			}
		})
	}
}

func flipByte(data []byte, at int) []byte {
	out := append([]byte(nil), data...)
	out[at] ^= 0xff
	return out
}

func TestMemoryIndex_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	idx := newMemory(t, 2)
	_, _ = idx.Add(context.Background(), []float32{1, 0})
	if err := idx.Save(filepath.Join(dir, "t.idx")); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the index file, got %d entries", len(entries))
	}
}
