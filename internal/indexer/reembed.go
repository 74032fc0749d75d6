package indexer

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
)

// ReembedOptions selects what Reembed rebuilds.
type ReembedOptions struct {
	// Fields to rebuild. Empty means all three.
	Fields []identity.Field
	// MissingOnly skips fields that already have a vector.
	MissingOnly bool
	BatchSize   int
}

// ReembedResult counts what Reembed did.
type ReembedResult struct {
	Scanned   int  `json:"scanned"`
	Updated   int  `json:"updated"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Persisted bool `json:"persisted"`
}

// Reembed walks every record and rebuilds the selected vectors. Each record's vectors
// are applied together; records already done stay done when ctx is cancelled, and the
// cancellation is returned with the partial counts.
func (idx *Indexer) Reembed(ctx context.Context, opts ReembedOptions) (*ReembedResult, error) {
	if !embedding.Available(idx.vectors.Embedder()) {
		return nil, apperr.Unavailablef("embedding provider is unavailable")
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = identity.Fields
	}
	for _, f := range fields {
		if !f.Valid() {
			return nil, apperr.Invalidf("unknown vector field %q", f)
		}
	}

	res := &ReembedResult{}
	walkErr := idx.store.IterateImages(ctx, opts.BatchSize, func(img *models.Image) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Scanned++
		inputs := idx.reembedInputs(img, fields, opts.MissingOnly)
		if len(inputs) == 0 {
			res.Skipped++
			return nil
		}
		if idx.applyVectors(ctx, img.UUID, inputs) {
			res.Updated++
		} else {
			res.Failed++
		}
		return nil
	})

	persisted, err := idx.checkpoint()
	res.Persisted = persisted
	idx.logger.Info("reembed finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
		zap.Error(walkErr))
	if walkErr != nil {
		return res, walkErr
	}
	return res, err
}

// reembedInputs returns the inputs to embed for img. Blank text fields and unreadable
// image files are left out.
func (idx *Indexer) reembedInputs(img *models.Image, fields []identity.Field, missingOnly bool) map[identity.Field]vectorstore.Input {
	entry, _ := idx.vectors.Entry(img.UUID)
	inputs := make(map[identity.Field]vectorstore.Input, len(fields))
	for _, f := range fields {
		if missingOnly {
			if _, ok := entry.Slot(f); ok {
				continue
			}
		}
		var in vectorstore.Input
		switch f {
		case identity.FieldTitle:
			in.Text = img.Title
		case identity.FieldDescription:
			in.Text = img.Description
		case identity.FieldImage:
			data, err := os.ReadFile(img.Filepath)
			if err != nil {
				idx.logger.Warn("image file unreadable, skipping image vector",
					zap.String("uuid", img.UUID),
					zap.String("path", img.Filepath),
					zap.Error(err))
				continue
			}
			in.Image = data
		}
		if !in.IsEmpty() {
			inputs[f] = in
		}
	}
	return inputs
}
