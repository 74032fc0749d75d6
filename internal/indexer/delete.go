package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
)

func (idx *Indexer) notFoundOr(uuid string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFoundf("image %s not found", uuid).WithDetail("uuid", uuid)
	}
	return err
}

// Delete removes a record, its vectors, its keyword document and its uploaded file,
// then checkpoints.
func (idx *Indexer) Delete(ctx context.Context, uuid string) (*models.WriteResult, error) {
	img, err := idx.remove(ctx, uuid)
	if err != nil {
		return nil, err
	}
	res := &models.WriteResult{Image: img, VectorsIndexed: true}
	persisted, err := idx.checkpoint()
	res.Persisted = persisted
	return res, err
}

func (idx *Indexer) remove(ctx context.Context, uuid string) (*models.Image, error) {
	defer idx.lockRecord(uuid)()
	img, err := idx.getImage(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if err := idx.store.DeleteImage(ctx, uuid); err != nil {
		return nil, idx.notFoundOr(uuid, fmt.Errorf("failed to delete image: %w", err))
	}
	idx.vectors.Delete(uuid)
	idx.deleteKeywords(ctx, uuid)
	idx.removeUpload(img.Filepath)
	idx.logger.Debug("image deleted", zap.String("uuid", uuid))
	return img, nil
}

// BatchResult reports a bulk delete.
type BatchResult struct {
	Deleted   []string `json:"deleted"`
	NotFound  []string `json:"not_found"`
	Persisted bool     `json:"persisted"`
}

// DeleteBatch deletes every existing uuid and checkpoints once. Unknown uuids are
// reported, not treated as errors.
func (idx *Indexer) DeleteBatch(ctx context.Context, uuids []string) (*BatchResult, error) {
	res := &BatchResult{Deleted: []string{}, NotFound: []string{}}
	for _, uuid := range uuids {
		if err := ctx.Err(); err != nil {
			break
		}
		if _, err := idx.remove(ctx, uuid); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				res.NotFound = append(res.NotFound, uuid)
				continue
			}
			persisted, _ := idx.checkpoint()
			res.Persisted = persisted
			return res, err
		}
		res.Deleted = append(res.Deleted, uuid)
	}
	persisted, err := idx.checkpoint()
	res.Persisted = persisted
	if err != nil {
		return res, err
	}
	return res, ctx.Err()
}
