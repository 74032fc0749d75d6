package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/fileid"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// TitleFromFilename turns "golden_gate-bridge.jpg" into "golden gate bridge".
func TitleFromFilename(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return utils.CollapseSpace(stem)
}

// IngestFile catalogues the image at path in place. A file whose content hash is
// already catalogued is skipped and the existing record is returned with skipped=true.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (res *models.WriteResult, skipped bool, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, fmt.Errorf("not a regular file: %s", absPath)
	}

	hash, err := fileid.FileHash(absPath)
	if err != nil {
		return nil, false, err
	}
	if existing, err := idx.store.FindByHash(ctx, hash); err == nil {
		idx.logger.Debug("ingest skipping known file",
			zap.String("path", absPath),
			zap.String("uuid", existing.UUID))
		return &models.WriteResult{Image: existing, VectorsIndexed: true, Persisted: !idx.vectors.Dirty()}, true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("read file: %w", err)
	}
	res, err = idx.Create(ctx, models.ImageInput{
		Filename:   filepath.Base(absPath),
		Data:       data,
		Title:      TitleFromFilename(absPath),
		SourcePath: absPath,
		Metadata:   map[string]interface{}{"source": "import"},
	})
	return res, false, err
}

// RemoveFile deletes the record catalogued at path. It reports whether one existed.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	img, err := idx.store.FindByFilepath(ctx, absPath)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := idx.Delete(ctx, img.UUID); err != nil {
		return true, err
	}
	return true, nil
}

// IngestStats counts an IngestDirectory run.
type IngestStats struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// MatchesAny reports whether rel matches one of the doublestar patterns.
// No patterns matches everything.
func MatchesAny(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// IngestDirectory walks dir and ingests every regular file whose path relative to dir
// matches patterns. Files that fail are counted and logged. Walking stops when ctx is done.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, patterns []string) (IngestStats, error) {
	var stats IngestStats
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return stats, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return stats, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(absDir, path)
		if !MatchesAny(patterns, rel) {
			return nil
		}
		_, skipped, err := idx.IngestFile(ctx, path)
		switch {
		case err != nil:
			stats.Failed++
			idx.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
		case skipped:
			stats.Skipped++
		default:
			stats.Added++
		}
		return nil
	})
	return stats, err
}
