// Package integration exercises the stores together against real files on disk.
package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/indexer"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/keyword"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/search"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
	"github.com/li-xiu-qi/SmartlmageFinder/test/e2e"
)

const dims = 256

type stack struct {
	store   *storage.SQLiteStorage
	vectors *vectorstore.Manager
	kw      *keyword.BleveIndex
	engine  *search.Engine
	idx     *indexer.Indexer
}

func (s *stack) close() {
	_ = s.kw.Close()
	_ = s.vectors.Close()
	_ = s.store.Close()
}

func openStack(t *testing.T, cfg *config.Config) *stack {
	t.Helper()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, storage.WithDriver(storage.DriverPureGo))
	if err != nil {
		t.Fatal(err)
	}
	vectors, err := vectorstore.NewManager(cfg.Vector.IndexType, dims, vectorstore.Paths{
		Title:       cfg.Storage.TitleIndexPath,
		Description: cfg.Storage.DescriptionIndexPath,
		Image:       cfg.Storage.ImageIndexPath,
		IdentityMap: cfg.Storage.IdentityMapPath,
	}, vectorstore.WithEmbedder(embedding.NewMockEmbedder(dims)))
	if err != nil {
		t.Fatal(err)
	}
	if err := vectors.Load(); err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	return &stack{
		store:   store,
		vectors: vectors,
		kw:      kw,
		engine:  search.NewEngine(store, kw, vectors, cfg.Search),
		idx: indexer.NewIndexer(store, vectors,
			indexer.WithKeywordIndex(kw),
			indexer.WithUploadDir(cfg.Storage.UploadDir)),
	}
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:         filepath.Join(dir, "db.sqlite"),
			UploadDir:            filepath.Join(dir, "images"),
			TitleIndexPath:       filepath.Join(dir, "vectors", "title.idx"),
			DescriptionIndexPath: filepath.Join(dir, "vectors", "description.idx"),
			ImageIndexPath:       filepath.Join(dir, "vectors", "image.idx"),
			IdentityMapPath:      filepath.Join(dir, "vectors", "uuid_map.gob"),
			BleveIndexPath:       filepath.Join(dir, "bleve"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: dims},
		Search:    config.SearchConfig{TextBackend: "bleve"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func createImage(t *testing.T, idx *indexer.Indexer, seed int, title, description string) string {
	t.Helper()
	data, err := e2e.EncodeImage("png", seed)
	if err != nil {
		t.Fatal(err)
	}
	res, err := idx.Create(context.Background(), models.ImageInput{
		Filename:    title + ".png",
		Data:        data,
		Title:       title,
		Description: description,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.VectorsIndexed || !res.Persisted {
		t.Fatalf("create %q: vectors_indexed=%v persisted=%v", title, res.VectorsIndexed, res.Persisted)
	}
	return res.Image.UUID
}

func TestIntegration_Search(t *testing.T) {
	cfg := testConfig(t)
	s := openStack(t, cfg)
	defer s.close()
	ctx := context.Background()

	fox := createImage(t, s.idx, 1, "Red fox", "A fox hunting in fresh snow")
	createImage(t, s.idx, 2, "Harbor boats", "Fishing boats moored in a small harbor")

	resp, err := s.engine.Search(ctx, &models.SearchRequest{Query: "fox", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total < 1 {
		t.Fatalf("expected at least 1 result, got %d", resp.Total)
	}
	if resp.Results[0].UUID != fox {
		t.Errorf("top result = %s, want %s", resp.Results[0].UUID, fox)
	}
}

func TestIntegration_RestartKeepsEverything(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s := openStack(t, cfg)
	fox := createImage(t, s.idx, 1, "Red fox", "A fox hunting in fresh snow")
	boats := createImage(t, s.idx, 2, "Harbor boats", "Fishing boats moored in a small harbor")
	if _, err := s.idx.Delete(ctx, boats); err != nil {
		t.Fatal(err)
	}
	before, err := s.engine.Search(ctx, &models.SearchRequest{Query: "fox", Type: models.SearchVector, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	s.close()

	s = openStack(t, cfg)
	defer s.close()

	if _, ok := s.vectors.Entry(boats); ok {
		t.Error("deleted record came back after restart")
	}
	entry, ok := s.vectors.Entry(fox)
	if !ok {
		t.Fatal("fox record lost after restart")
	}
	for _, f := range identity.Fields {
		if _, ok := entry.Slot(f); !ok {
			t.Errorf("fox missing %s vector after restart", f)
		}
	}

	after, err := s.engine.Search(ctx, &models.SearchRequest{Query: "fox", Type: models.SearchVector, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Results) != len(before.Results) {
		t.Fatalf("got %d results after restart, want %d", len(after.Results), len(before.Results))
	}
	for i := range before.Results {
		if after.Results[i].UUID != before.Results[i].UUID {
			t.Errorf("result %d = %s after restart, want %s", i, after.Results[i].UUID, before.Results[i].UUID)
		}
	}

	text, err := s.engine.Search(ctx, &models.SearchRequest{Query: "harbor", Type: models.SearchText, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(text.Results) != 0 {
		t.Errorf("deleted record still matches keyword search: %+v", text.Results)
	}
}

func TestIntegration_ReembedFillsMissingVectors(t *testing.T) {
	cfg := testConfig(t)
	s := openStack(t, cfg)
	defer s.close()
	ctx := context.Background()

	fox := createImage(t, s.idx, 1, "Red fox", "A fox hunting in fresh snow")
	if !s.vectors.RemoveField(fox, identity.FieldDescription) {
		t.Fatal("expected description vector to be removed")
	}

	res, err := s.idx.Reembed(ctx, indexer.ReembedOptions{MissingOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 1 || res.Updated != 1 || res.Failed != 0 {
		t.Errorf("reembed = %+v, want 1 scanned and 1 updated", res)
	}
	entry, _ := s.vectors.Entry(fox)
	if _, ok := entry.Slot(identity.FieldDescription); !ok {
		t.Error("description vector not restored")
	}

	res, err = s.idx.Reembed(ctx, indexer.ReembedOptions{MissingOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Updated != 0 {
		t.Errorf("second reembed = %+v, want everything skipped", res)
	}
}

func TestIntegration_CompactAfterDeletes(t *testing.T) {
	cfg := testConfig(t)
	s := openStack(t, cfg)
	defer s.close()
	ctx := context.Background()

	var keep string
	for i := 1; i <= 6; i++ {
		id := createImage(t, s.idx, i, "Photo", "Test photo")
		if i == 1 {
			keep = id
			continue
		}
		if i%2 == 0 {
			if _, err := s.idx.Delete(ctx, id); err != nil {
				t.Fatal(err)
			}
		}
	}
	if r := s.vectors.OrphanRatio(); r <= 0 {
		t.Fatalf("orphan ratio = %v, want > 0", r)
	}

	res, err := s.vectors.Compact(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reclaimed[identity.FieldImage] != 3 || !res.Persisted {
		t.Errorf("compact = %+v", res)
	}
	if r := s.vectors.OrphanRatio(); r != 0 {
		t.Errorf("orphan ratio after compact = %v", r)
	}

	data, err := e2e.EncodeImage("png", 1)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := s.engine.Search(ctx, &models.SearchRequest{Image: data, VectorMatch: models.VectorMatchImage, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].UUID != keep {
		t.Errorf("image search after compact = %+v, want %s", resp.Results, keep)
	}
}
