// Package indexer keeps the record store, the vector indices and the keyword index
// in step as images are created, updated, deleted and re-embedded.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/keyword"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// Indexer applies record mutations to every store.
type Indexer struct {
	store             storage.Storage
	vectors           *vectorstore.Manager
	keywordIndex      keyword.KeywordIndex // optional
	uploadDir         string
	checkpointOnWrite bool
	logger            *zap.Logger
	now               func() time.Time

	recordLocks [64]sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex also maintains a keyword index.
func WithKeywordIndex(k keyword.KeywordIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithUploadDir sets where uploaded files are saved.
func WithUploadDir(dir string) IndexerOption {
	return func(idx *Indexer) { idx.uploadDir = dir }
}

// WithCheckpointOnWrite checkpoints the vector store after every mutation.
func WithCheckpointOnWrite(on bool) IndexerOption {
	return func(idx *Indexer) { idx.checkpointOnWrite = on }
}

// NewIndexer creates an indexer over store and vectors.
func NewIndexer(store storage.Storage, vectors *vectorstore.Manager, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:             store,
		vectors:           vectors,
		uploadDir:         "data/images",
		checkpointOnWrite: true,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// checkpoint persists the vector store when configured to. It reports whether the
// vector state is durable afterwards.
func (idx *Indexer) checkpoint() (bool, error) {
	if !idx.vectors.Dirty() {
		return true, nil
	}
	if !idx.checkpointOnWrite {
		return false, nil
	}
	if err := idx.vectors.PersistAll(); err != nil {
		idx.logger.Warn("checkpoint after write failed", zap.Error(err))
		return false, err
	}
	return true, nil
}

// lockRecord serializes writers of one record so its vectors and keyword document
// follow the same order as its row in the store. It returns the unlock func.
func (idx *Indexer) lockRecord(uuid string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(uuid))
	mu := &idx.recordLocks[h.Sum32()%uint32(len(idx.recordLocks))]
	mu.Lock()
	return mu.Unlock
}

// getImage maps a missing record to a NotFound error.
func (idx *Indexer) getImage(ctx context.Context, uuid string) (*models.Image, error) {
	img, err := idx.store.GetImage(ctx, uuid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFoundf("image %s not found", uuid).WithDetail("uuid", uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", uuid, err)
	}
	return img, nil
}

func (idx *Indexer) indexKeywords(ctx context.Context, img *models.Image) {
	if idx.keywordIndex == nil {
		return
	}
	if err := idx.keywordIndex.Index(ctx, img); err != nil {
		idx.logger.Warn("keyword index update failed", zap.String("uuid", img.UUID), zap.Error(err))
	}
}

func (idx *Indexer) deleteKeywords(ctx context.Context, uuid string) {
	if idx.keywordIndex == nil {
		return
	}
	if err := idx.keywordIndex.Delete(ctx, uuid); err != nil {
		idx.logger.Warn("keyword index delete failed", zap.String("uuid", uuid), zap.Error(err))
	}
}

// SyncKeywords repopulates an empty keyword index from the record store, for example
// after the index directory was removed. It returns how many records were indexed.
func (idx *Indexer) SyncKeywords(ctx context.Context) (int, error) {
	if idx.keywordIndex == nil {
		return 0, nil
	}
	docs, err := idx.keywordIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count keyword docs: %w", err)
	}
	if docs > 0 {
		return 0, nil
	}
	n := 0
	err = idx.store.IterateImages(ctx, 200, func(img *models.Image) error {
		if err := idx.keywordIndex.Index(ctx, img); err != nil {
			return err
		}
		n++
		return nil
	})
	if n > 0 {
		idx.logger.Info("keyword index rebuilt", zap.Int("records", n))
	}
	return n, err
}
