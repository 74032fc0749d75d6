package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func mustIndex(t *testing.T, idx *BleveIndex, imgs ...*models.Image) {
	t.Helper()
	for _, img := range imgs {
		if err := idx.Index(context.Background(), img); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}
}

func ids(results []*KeywordResult) map[string]bool {
	out := make(map[string]bool, len(results))
	for _, r := range results {
		out[r.UUID] = true
	}
	return out
}

func TestBleveIndex_SearchModes(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx,
		&models.Image{UUID: "a", Title: "Mountain Lake", Description: "calm water at dawn"},
		&models.Image{UUID: "b", Title: "City", Description: "a lake in the park"},
		&models.Image{UUID: "c", Title: "Forest", Description: "trees", Tags: []string{"lake"}},
	)
	ctx := context.Background()

	tests := []struct {
		mode models.TextMatchMode
		want []string
	}{
		{models.TextMatchTitle, []string{"a"}},
		{models.TextMatchDescription, []string{"b"}},
		{models.TextMatchCombined, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			results, err := idx.Search(ctx, "Lake", tt.mode, 10, nil)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(results) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.want))
			}
			got := ids(results)
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("missing %s", id)
				}
			}
		})
	}

	if _, err := idx.Search(ctx, "lake", models.TextMatchMode("body"), 10, nil); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestBleveIndex_SearchText_Normalized(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx,
		&models.Image{UUID: "a", Title: "sunset sunset"},
		&models.Image{UUID: "b", Description: "a long description that mentions a sunset once among many other words"},
	)
	hits, err := idx.SearchText(context.Background(), "sunset", models.TextMatchCombined, 10)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Score != 1 {
		t.Errorf("top score = %v, want 1", hits[0].Score)
	}
	for _, h := range hits {
		if h.Score <= 0 || h.Score > 1 {
			t.Errorf("score %v out of (0,1]", h.Score)
		}
	}

	none, err := idx.SearchText(context.Background(), "nothing", models.TextMatchCombined, 10)
	if err != nil || len(none) != 0 {
		t.Errorf("no match = %v, %v", none, err)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx, &models.Image{UUID: "a", Title: "mountain"})
	ctx := context.Background()

	exact, err := idx.Search(ctx, "mountin", models.TextMatchTitle, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(exact) != 0 {
		t.Errorf("exact search should miss a typo, got %d", len(exact))
	}
	fuzzy, err := idx.Search(ctx, "mountin", models.TextMatchTitle, 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) != 1 || fuzzy[0].UUID != "a" {
		t.Errorf("fuzzy = %v", fuzzy)
	}
}

func TestBleveIndex_StopWordsAreSearchable(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx, &models.Image{UUID: "a", Title: "Before and After"})
	mustIndex(t, idx, &models.Image{UUID: "b", Title: "Harbor boats"})
	ctx := context.Background()

	for _, q := range []string{"before", "AFTER", "and"} {
		got, err := idx.SearchText(ctx, q, models.TextMatchTitle, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].UUID != "a" {
			t.Errorf("SearchText(%q) = %v, want [a]", q, got)
		}
	}
}

func TestBleveIndex_SearchTextUsesConfiguredFuzziness(t *testing.T) {
	dir := t.TempDir()
	exact, err := NewBleveIndex(filepath.Join(dir, "exact"))
	if err != nil {
		t.Fatal(err)
	}
	defer exact.Close()
	fuzzy, err := NewBleveIndex(filepath.Join(dir, "fuzzy"), WithSearchOptions(OptionsFromFuzziness(1)))
	if err != nil {
		t.Fatal(err)
	}
	defer fuzzy.Close()
	ctx := context.Background()
	for _, idx := range []*BleveIndex{exact, fuzzy} {
		mustIndex(t, idx, &models.Image{UUID: "a", Title: "mountain lake"})
	}

	if got, _ := exact.SearchText(ctx, "mountin", models.TextMatchCombined, 10); len(got) != 0 {
		t.Errorf("exact index matched a typo: %v", got)
	}
	got, err := fuzzy.SearchText(ctx, "mountin", models.TextMatchCombined, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UUID != "a" || got[0].Score != 1 {
		t.Errorf("fuzzy SearchText = %v", got)
	}
}

func TestOptionsFromFuzziness(t *testing.T) {
	if got := OptionsFromFuzziness(0); got.FuzzyEnabled {
		t.Errorf("0 should stay exact, got %+v", got)
	}
	if got := OptionsFromFuzziness(2); !got.FuzzyEnabled || got.Fuzziness != 2 {
		t.Errorf("OptionsFromFuzziness(2) = %+v", got)
	}
}

func TestTokenizeQuery(t *testing.T) {
	got := tokenizeQuery("Red-Fox, in SNOW!")
	want := []string{"red", "fox", "in", "snow"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBleveIndex_ReindexReplaces(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	mustIndex(t, idx, &models.Image{UUID: "a", Title: "lighthouse"})
	mustIndex(t, idx, &models.Image{UUID: "a", Title: "harbor"})

	if got, _ := idx.Search(ctx, "lighthouse", models.TextMatchTitle, 10, nil); len(got) != 0 {
		t.Errorf("stale title still matches: %v", got)
	}
	if got, _ := idx.Search(ctx, "harbor", models.TextMatchTitle, 10, nil); len(got) != 1 {
		t.Errorf("new title should match, got %v", got)
	}
	n, err := idx.DocCount()
	if err != nil || n != 1 {
		t.Errorf("DocCount = %d, %v", n, err)
	}
}

func TestBleveIndex_OpenExisting(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "bleve")
	ctx := context.Background()

	idx1, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	if err := idx1.Index(ctx, &models.Image{UUID: "a", Title: "uniqueword"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex (open existing): %v", err)
	}
	defer func() { _ = idx2.Close() }()

	results, err := idx2.Search(ctx, "uniqueword", models.TextMatchTitle, 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("reopened index should keep documents, got %d results", len(results))
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	mustIndex(t, idx, &models.Image{UUID: "a", Description: "onlyindoc1"})

	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, err := idx.Search(ctx, "onlyindoc1", models.TextMatchCombined, 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(results))
	}
}

func TestNewBleveIndex_createsDir(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "sub", "bleve")

	idx, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	_ = idx.Close()

	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("index path should exist: %v", err)
	}
}
