// Package storage persists image records in SQLite and answers exact-text,
// tag and metadata queries over them.
package storage

import (
	"context"
	"errors"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("image not found")

// TextHit is one exact-text match with its tier score in [0,1].
type TextHit struct {
	UUID  string
	Score float64
}

// Storage defines image record persistence operations.
type Storage interface {
	// Record operations
	CreateImage(ctx context.Context, img *models.Image) error
	GetImage(ctx context.Context, uuid string) (*models.Image, error)
	GetImages(ctx context.Context, uuids []string) (map[string]*models.Image, error)
	UpdateImage(ctx context.Context, img *models.Image) error
	PatchImage(ctx context.Context, uuid string, fn func(img *models.Image)) (*models.Image, error)
	DeleteImage(ctx context.Context, uuid string) error
	FindByHash(ctx context.Context, hash string) (*models.Image, error)
	FindByFilepath(ctx context.Context, path string) (*models.Image, error)
	ListImages(ctx context.Context, filter models.ImageFilter) ([]*models.Image, int, error)

	// Search
	SearchText(ctx context.Context, query string, mode models.TextMatchMode, limit int) ([]TextHit, error)

	// Tags and metadata
	PopularTags(ctx context.Context, limit int) ([]models.TagCount, error)
	AddTags(ctx context.Context, uuid string, tags []string) (*models.Image, error)
	RemoveTag(ctx context.Context, uuid, tag string) (*models.Image, error)
	UpdateMetadata(ctx context.Context, uuid string, patch map[string]interface{}) (*models.Image, error)
	MetadataFields(ctx context.Context, limit int) ([]models.MetadataField, error)

	// Bulk and stats
	CountImages(ctx context.Context) (int64, error)
	IterateImages(ctx context.Context, batchSize int, fn func(*models.Image) error) error

	Close() error
}
