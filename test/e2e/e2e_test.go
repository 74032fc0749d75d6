package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/indexer"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/keyword"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/search"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
)

const (
	e2eSearchLimit = 10
	e2eDimensions  = 512
	e2eCorpusSize  = 40
)

type harness struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	vectors *vectorstore.Manager
	engine  *search.Engine
	idx     *indexer.Indexer
	// keys maps corpus keys to assigned UUIDs.
	keys map[string]string
}

func newHarness(t *testing.T, textBackend string) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Driver:               storage.DriverPureGo,
			DatabasePath:         filepath.Join(dir, "db.sqlite"),
			UploadDir:            filepath.Join(dir, "images"),
			TitleIndexPath:       filepath.Join(dir, "vectors", "title.idx"),
			DescriptionIndexPath: filepath.Join(dir, "vectors", "description.idx"),
			ImageIndexPath:       filepath.Join(dir, "vectors", "image.idx"),
			IdentityMapPath:      filepath.Join(dir, "vectors", "uuid_map.gob"),
			BleveIndexPath:       filepath.Join(dir, "bleve"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: e2eDimensions},
		Search:    config.SearchConfig{TextBackend: textBackend},
	}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, storage.WithDriver(cfg.Storage.Driver))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embedder := embedding.NewMockEmbedder(e2eDimensions)
	vectors, err := vectorstore.NewManager(cfg.Vector.IndexType, e2eDimensions, managerPaths(cfg),
		vectorstore.WithEmbedder(embedder), vectorstore.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	var text search.TextSearcher = store
	opts := []indexer.IndexerOption{indexer.WithUploadDir(cfg.Storage.UploadDir)}
	if textBackend == "bleve" {
		kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		require.NoError(t, err)
		t.Cleanup(func() { _ = kw.Close() })
		text = kw
		opts = append(opts, indexer.WithKeywordIndex(kw))
	}

	return &harness{
		cfg:     cfg,
		store:   store,
		vectors: vectors,
		engine:  search.NewEngine(store, text, vectors, cfg.Search),
		idx:     indexer.NewIndexer(store, vectors, opts...),
		keys:    make(map[string]string),
	}
}

func managerPaths(cfg *config.Config) vectorstore.Paths {
	return vectorstore.Paths{
		Title:       cfg.Storage.TitleIndexPath,
		Description: cfg.Storage.DescriptionIndexPath,
		Image:       cfg.Storage.ImageIndexPath,
		IdentityMap: cfg.Storage.IdentityMapPath,
	}
}

func (h *harness) load(t *testing.T, c *Corpus) {
	t.Helper()
	inputs, err := c.ToImageInputs()
	require.NoError(t, err)
	ctx := context.Background()
	for i, in := range inputs {
		res, err := h.idx.Create(ctx, in)
		require.NoError(t, err, "create %s", c.Photos[i].Key)
		require.True(t, res.VectorsIndexed)
		h.keys[c.Photos[i].Key] = res.Image.UUID
	}
}

func (h *harness) uuids(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, h.keys[k])
	}
	return out
}

func resultIDs(resp *models.SearchResponse) []string {
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.UUID)
	}
	return ids
}

func containsAny(got []string, expected []string) bool {
	set := make(map[string]bool)
	for _, id := range got {
		set[id] = true
	}
	for _, id := range expected {
		if set[id] {
			return true
		}
	}
	return false
}

func TestE2E_SearchModesReturnCorrectImages(t *testing.T) {
	for _, backend := range []string{"sql", "bleve"} {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			h := newHarness(t, backend)
			corpus := BuildCorpus(e2eCorpusSize)
			require.NotZero(t, corpus.TotalQueries)
			h.load(t, corpus)
			ctx := context.Background()

			for _, mode := range []models.SearchType{models.SearchText, models.SearchVector, models.SearchHybrid} {
				for _, tc := range corpus.TestCases {
					resp, err := h.engine.Search(ctx, &models.SearchRequest{
						Query: tc.Query,
						Type:  mode,
						Limit: e2eSearchLimit,
					})
					require.NoError(t, err, "%s %q", mode, tc.Query)
					assert.Equal(t, mode, resp.Mode)
					assert.False(t, resp.Degraded)
					ids := resultIDs(resp)
					assert.True(t, containsAny(ids, h.uuids(tc.ExpectedKeys)),
						"%s search %q: expected one of %v in %v", mode, tc.Query, tc.ExpectedKeys, ids)
				}
			}
		})
	}
}

func TestE2E_ResultsAreRankedByScore(t *testing.T) {
	h := newHarness(t, "sql")
	h.load(t, BuildCorpus(e2eCorpusSize))

	resp, err := h.engine.Search(context.Background(), &models.SearchRequest{Query: "snow winter cabin", Limit: 20})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		if i > 0 {
			assert.LessOrEqual(t, r.Score, resp.Results[i-1].Score)
		}
	}
}

func TestE2E_ImageSearchFindsExactImage(t *testing.T) {
	h := newHarness(t, "sql")
	corpus := BuildCorpus(e2eCorpusSize)
	h.load(t, corpus)
	ctx := context.Background()

	for _, p := range corpus.Photos[:10] {
		data, err := EncodeImage("png", p.Seed)
		require.NoError(t, err)
		resp, err := h.engine.Search(ctx, &models.SearchRequest{
			Image:       data,
			VectorMatch: models.VectorMatchImage,
			Limit:       3,
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, h.keys[p.Key], resp.Results[0].UUID, "image query for %s", p.Key)
	}
}

func TestE2E_SimilarExcludesQueryImage(t *testing.T) {
	h := newHarness(t, "sql")
	corpus := BuildCorpus(e2eCorpusSize)
	h.load(t, corpus)

	query := h.keys["photo-001"]
	resp, err := h.engine.Search(context.Background(), &models.SearchRequest{
		SimilarTo: query,
		Limit:     e2eSearchLimit,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
	assert.NotContains(t, resultIDs(resp), query)

	_, err = h.engine.Search(context.Background(), &models.SearchRequest{SimilarTo: "missing-uuid"})
	assert.Error(t, err)
}

func TestE2E_TagAndDateFilters(t *testing.T) {
	h := newHarness(t, "sql")
	corpus := BuildCorpus(e2eCorpusSize)
	h.load(t, corpus)
	ctx := context.Background()

	resp, err := h.engine.Search(ctx, &models.SearchRequest{Query: "snow", Tags: []string{"animal"}, Limit: 50})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Contains(t, r.Tags, "animal")
	}

	past := time.Now().Add(-48 * time.Hour)
	resp, err = h.engine.Search(ctx, &models.SearchRequest{
		Query: "snow",
		Range: models.DateRange{End: &past},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestE2E_MutationsStayConsistent(t *testing.T) {
	h := newHarness(t, "sql")
	corpus := BuildCorpus(e2eCorpusSize)
	h.load(t, corpus)
	ctx := context.Background()
	fox := h.keys["photo-003"]

	title := "Arctic hare in snow"
	_, err := h.idx.Update(ctx, fox, models.ImageUpdate{Title: &title})
	require.NoError(t, err)

	resp, err := h.engine.Search(ctx, &models.SearchRequest{Query: "arctic hare", Type: models.SearchVector, VectorMatch: models.VectorMatchTitle, Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, fox, resp.Results[0].UUID)

	_, err = h.idx.Delete(ctx, fox)
	require.NoError(t, err)
	resp, err = h.engine.Search(ctx, &models.SearchRequest{Query: "arctic hare", Limit: e2eSearchLimit})
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(resp), fox)

	assert.Greater(t, h.vectors.OrphanRatio(), 0.0)
	_, err = h.vectors.Compact(ctx)
	require.NoError(t, err)
	assert.Zero(t, h.vectors.OrphanRatio())

	// Slots were reassigned; every surviving image must still find itself.
	whale := corpus.Photos[8]
	data, err := EncodeImage("png", whale.Seed)
	require.NoError(t, err)
	resp, err = h.engine.Search(ctx, &models.SearchRequest{Image: data, VectorMatch: models.VectorMatchImage, Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, h.keys[whale.Key], resp.Results[0].UUID)
}

func TestE2E_RestartRestoresVectors(t *testing.T) {
	h := newHarness(t, "sql")
	corpus := BuildCorpus(20)
	h.load(t, corpus)
	require.NoError(t, h.vectors.PersistAll())
	ctx := context.Background()

	before, err := h.engine.Search(ctx, &models.SearchRequest{Query: "lighthouse waves", Type: models.SearchVector, Limit: 5})
	require.NoError(t, err)

	reloaded, err := vectorstore.NewManager(h.cfg.Vector.IndexType, e2eDimensions, managerPaths(h.cfg),
		vectorstore.WithEmbedder(embedding.NewMockEmbedder(e2eDimensions)))
	require.NoError(t, err)
	defer reloaded.Close()
	require.NoError(t, reloaded.Load())
	assert.Equal(t, h.vectors.Stats().Records, reloaded.Stats().Records)

	engine := search.NewEngine(h.store, h.store, reloaded, h.cfg.Search)
	after, err := engine.Search(ctx, &models.SearchRequest{Query: "lighthouse waves", Type: models.SearchVector, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, resultIDs(before), resultIDs(after))
}

// TestE2E_DirectoryIngest writes image files in every supported format, ingests the
// directory the way the watcher does, then finds each file by its filename-derived title.
func TestE2E_DirectoryIngest(t *testing.T) {
	h := newHarness(t, "sql")
	dir := filepath.Join(t.TempDir(), "photos")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))

	names := []string{"misty-harbor", "desert_camel", "frozen-waterfall", "city-tram", "meadow_poppies", "night-ferry"}
	for i, name := range names {
		format := SupportedImageFormats[i%len(SupportedImageFormats)]
		data, err := EncodeImage(format, 100+i)
		require.NoError(t, err)
		sub := dir
		if i%2 == 1 {
			sub = filepath.Join(dir, "nested")
		}
		require.NoError(t, os.WriteFile(filepath.Join(sub, name+extension(format)), data, 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0644))

	ctx := context.Background()
	stats, err := h.idx.IngestDirectory(ctx, dir, h.cfg.Watch.Patterns)
	require.NoError(t, err)
	assert.Equal(t, len(names), stats.Added)
	assert.Zero(t, stats.Failed)

	for _, name := range names {
		title := indexer.TitleFromFilename(name + ".png")
		resp, err := h.engine.Search(ctx, &models.SearchRequest{Query: title, Type: models.SearchText, Limit: 5})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Results, "no result for %q", title)
		assert.Equal(t, title, resp.Results[0].Title)
	}

	again, err := h.idx.IngestDirectory(ctx, dir, h.cfg.Watch.Patterns)
	require.NoError(t, err)
	assert.Zero(t, again.Added)
	assert.Equal(t, len(names), again.Skipped)
}
