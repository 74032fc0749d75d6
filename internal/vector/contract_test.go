package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// runIndexContract checks the behaviour every VectorIndex implementation shares.
func runIndexContract(t *testing.T, newIndex func(t *testing.T, dim int) VectorIndex) {
	ctx := context.Background()

	t.Run("slots are sequential", func(t *testing.T) {
		idx := newIndex(t, 2)
		for want := int64(0); want < 5; want++ {
			slot, err := idx.Add(ctx, []float32{1, float32(want)})
			if err != nil {
				t.Fatal(err)
			}
			if slot != want {
				t.Fatalf("slot = %d, want %d", slot, want)
			}
		}
		if idx.Size() != 5 {
			t.Errorf("Size=%d, want 5", idx.Size())
		}
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		idx := newIndex(t, 3)
		if _, err := idx.Add(ctx, []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Add: expected ErrDimensionMismatch, got %v", err)
		}
		if _, err := idx.Search(ctx, []float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Search: expected ErrDimensionMismatch, got %v", err)
		}
		if idx.Size() != 0 {
			t.Errorf("rejected vector was stored")
		}
	})

	t.Run("search orders by inner product", func(t *testing.T) {
		idx := newIndex(t, 3)
		for _, v := range [][]float32{{0, 1, 0}, {1, 0, 0}, {0.9, 0.1, 0}} {
			if _, err := idx.Add(ctx, v); err != nil {
				t.Fatal(err)
			}
		}
		results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Slot != 1 || results[1].Slot != 2 {
			t.Errorf("unexpected order: %d, %d", results[0].Slot, results[1].Slot)
		}
		if results[0].Score < results[1].Score {
			t.Error("scores not descending")
		}

		all, _ := idx.Search(ctx, []float32{1, 0, 0}, 100)
		if len(all) != 3 {
			t.Errorf("k larger than size should return size hits, got %d", len(all))
		}
	})

	t.Run("empty index", func(t *testing.T) {
		idx := newIndex(t, 3)
		results, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Errorf("expected empty results, got %d", len(results))
		}
	})

	t.Run("reconstruct", func(t *testing.T) {
		idx := newIndex(t, 2)
		_, _ = idx.Add(ctx, []float32{0.6, 0.8})
		got, err := idx.Reconstruct(0)
		if err != nil {
			t.Fatal(err)
		}
		if got[0] != 0.6 || got[1] != 0.8 {
			t.Errorf("Reconstruct = %v", got)
		}
		if _, err := idx.Reconstruct(1); !errors.Is(err, ErrSlotOutOfRange) {
			t.Errorf("expected ErrSlotOutOfRange, got %v", err)
		}
		if _, err := idx.Reconstruct(-1); !errors.Is(err, ErrSlotOutOfRange) {
			t.Errorf("expected ErrSlotOutOfRange for -1, got %v", err)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "title.idx")
		idx := newIndex(t, 2)
		_, _ = idx.Add(ctx, []float32{1, 0})
		_, _ = idx.Add(ctx, []float32{0, 1})
		if err := idx.Save(path); err != nil {
			t.Fatal(err)
		}

		loaded := newIndex(t, 2)
		if err := loaded.Load(path); err != nil {
			t.Fatal(err)
		}
		if loaded.Size() != 2 {
			t.Fatalf("loaded Size=%d, want 2", loaded.Size())
		}
		before, _ := idx.Search(ctx, []float32{0, 1}, 2)
		after, _ := loaded.Search(ctx, []float32{0, 1}, 2)
		for i := range before {
			if before[i].Slot != after[i].Slot || before[i].Score != after[i].Score {
				t.Errorf("hit %d differs after reload: %+v vs %+v", i, before[i], after[i])
			}
		}
		slot, _ := loaded.Add(ctx, []float32{1, 1})
		if slot != 2 {
			t.Errorf("slot after reload = %d, want 2", slot)
		}

		wrongDim := newIndex(t, 3)
		if err := wrongDim.Load(path); !errors.Is(err, ErrCorrupt) {
			t.Errorf("expected ErrCorrupt for dimension mismatch, got %v", err)
		}
	})

	t.Run("load missing file", func(t *testing.T) {
		idx := newIndex(t, 2)
		if err := idx.Load(filepath.Join(t.TempDir(), "absent.idx")); err != nil {
			t.Errorf("missing file should not error: %v", err)
		}
	})
}
