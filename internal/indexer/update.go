package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// Update applies a partial update. Only a changed title or description is re-embedded;
// its new vector replaces the old slot, which becomes orphaned. A field that becomes
// blank, or whose re-embedding fails, loses its vector so reembed can find it later.
// The record is read and written in one store transaction, and concurrent updates of
// the same record are applied one at a time.
func (idx *Indexer) Update(ctx context.Context, uuid string, upd models.ImageUpdate) (*models.WriteResult, error) {
	if upd.IsEmpty() {
		return nil, apperr.Invalidf("update has no fields")
	}
	defer idx.lockRecord(uuid)()

	changed := make(map[identity.Field]vectorstore.Input)
	img, err := idx.store.PatchImage(ctx, uuid, func(img *models.Image) {
		if upd.Title != nil {
			if t := utils.CollapseSpace(*upd.Title); t != img.Title {
				img.Title = t
				changed[identity.FieldTitle] = vectorstore.Input{Text: t}
			}
		}
		if upd.Description != nil {
			if d := utils.CollapseSpace(*upd.Description); d != img.Description {
				img.Description = d
				changed[identity.FieldDescription] = vectorstore.Input{Text: d}
			}
		}
		if upd.Tags != nil {
			img.Tags = utils.DedupeStrings(*upd.Tags)
		}
		if img.Metadata == nil && len(upd.Metadata) > 0 {
			img.Metadata = make(map[string]interface{}, len(upd.Metadata))
		}
		for k, v := range upd.Metadata {
			if v == nil {
				delete(img.Metadata, k)
				continue
			}
			img.Metadata[k] = v
		}
	})
	if err != nil {
		return nil, idx.notFoundOr(uuid, fmt.Errorf("failed to update image: %w", err))
	}

	res := &models.WriteResult{Image: img, VectorsIndexed: true}
	if len(changed) > 0 {
		res.VectorsIndexed = idx.replaceVectors(ctx, uuid, changed)
	}
	idx.indexKeywords(ctx, img)

	persisted, err := idx.checkpoint()
	res.Persisted = persisted
	if err != nil {
		return res, err
	}
	return res, nil
}

// replaceVectors re-embeds the changed fields and applies them together.
func (idx *Indexer) replaceVectors(ctx context.Context, uuid string, changed map[identity.Field]vectorstore.Input) bool {
	for f, in := range changed {
		if in.IsEmpty() {
			idx.vectors.RemoveField(uuid, f)
			delete(changed, f)
		}
	}
	if len(changed) == 0 {
		return true
	}
	if idx.applyVectors(ctx, uuid, changed) {
		return true
	}
	for f := range changed {
		if idx.vectors.RemoveField(uuid, f) {
			idx.logger.Debug("stale vector dropped", zap.String("uuid", uuid), zap.String("field", string(f)))
		}
	}
	return false
}

// AddTags adds tags to a record and refreshes its keyword document.
func (idx *Indexer) AddTags(ctx context.Context, uuid string, tags []string) (*models.Image, error) {
	tags = utils.DedupeStrings(tags)
	if len(tags) == 0 {
		return nil, apperr.Invalidf("no tags given")
	}
	defer idx.lockRecord(uuid)()
	img, err := idx.store.AddTags(ctx, uuid, tags)
	if err != nil {
		return nil, idx.notFoundOr(uuid, err)
	}
	idx.indexKeywords(ctx, img)
	return img, nil
}

// RemoveTag removes one tag from a record.
func (idx *Indexer) RemoveTag(ctx context.Context, uuid, tag string) (*models.Image, error) {
	defer idx.lockRecord(uuid)()
	img, err := idx.store.RemoveTag(ctx, uuid, tag)
	if err != nil {
		return nil, idx.notFoundOr(uuid, err)
	}
	idx.indexKeywords(ctx, img)
	return img, nil
}

// UpdateMetadata merges patch into a record's metadata. A nil value deletes the key.
func (idx *Indexer) UpdateMetadata(ctx context.Context, uuid string, patch map[string]interface{}) (*models.Image, error) {
	if len(patch) == 0 {
		return nil, apperr.Invalidf("metadata patch is empty")
	}
	img, err := idx.store.UpdateMetadata(ctx, uuid, patch)
	if err != nil {
		return nil, idx.notFoundOr(uuid, err)
	}
	return img, nil
}
