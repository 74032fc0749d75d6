package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "title",
	"file_size":  "file_size",
}

// Page size bounds for ListImages.
const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

// whereClause builds the shared date and tag filter.
func whereClause(r models.DateRange, tags []string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if r.Start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(*r.Start))
	}
	if r.End != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(*r.End))
	}
	if tags = utils.DedupeStrings(tags); len(tags) > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(images.tags) WHERE json_each.value IN ("+placeholders(len(tags))+"))")
		for _, t := range tags {
			args = append(args, t)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListImages returns one page of records and the total number matching the filter.
// Tags match any-of. Dates are inclusive.
func (s *SQLiteStorage) ListImages(ctx context.Context, filter models.ImageFilter) ([]*models.Image, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = DefaultPageSize
	}
	if filter.PageSize > MaxPageSize {
		filter.PageSize = MaxPageSize
	}
	col, ok := sortColumns[filter.SortBy]
	if !ok {
		if filter.SortBy != "" {
			return nil, 0, apperr.Invalidf("unsupported sort field %q", filter.SortBy)
		}
		col = "created_at"
	}
	order := "DESC"
	switch strings.ToLower(filter.Order) {
	case "", "desc":
	case "asc":
		order = "ASC"
	default:
		return nil, 0, apperr.Invalidf("unsupported sort order %q", filter.Order)
	}

	where, args := whereClause(filter.Range, filter.Tags)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count images: %w", err)
	}

	query := `SELECT ` + imageColumns + ` FROM images` + where +
		` ORDER BY ` + col + ` ` + order + `, uuid ASC LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	images := make([]*models.Image, 0, filter.PageSize)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, 0, err
		}
		images = append(images, img)
	}
	return images, total, rows.Err()
}

// escapeLike escapes LIKE wildcards so the query matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchText returns records whose fields contain query as a case-insensitive substring.
// In combined mode a title match scores 3/3, a description match 2/3 and a tag match 1/3,
// taking the best tier. Single-field modes score 1. Ties order by created_at desc, then uuid.
func (s *SQLiteStorage) SearchText(ctx context.Context, query string, mode models.TextMatchMode, limit int) ([]TextHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	pattern := "%" + escapeLike(query) + "%"
	const like = ` LIKE ? ESCAPE '\'`

	var (
		sqlText string
		args    []interface{}
	)
	switch mode {
	case models.TextMatchTitle:
		sqlText = `SELECT uuid, 3 AS tier FROM images WHERE title` + like
		args = []interface{}{pattern}
	case models.TextMatchDescription:
		sqlText = `SELECT uuid, 3 AS tier FROM images WHERE description` + like
		args = []interface{}{pattern}
	case models.TextMatchCombined, "":
		sqlText = `SELECT uuid,
			CASE WHEN title` + like + ` THEN 3
			     WHEN description` + like + ` THEN 2
			     ELSE 1 END AS tier
			FROM images
			WHERE title` + like + ` OR description` + like + `
			   OR EXISTS (SELECT 1 FROM json_each(images.tags) WHERE json_each.value` + like + `)`
		args = []interface{}{pattern, pattern, pattern, pattern, pattern}
	default:
		return nil, fmt.Errorf("unknown text match mode %q", mode)
	}
	sqlText += ` ORDER BY tier DESC, created_at DESC, uuid ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search text: %w", err)
	}
	defer rows.Close()

	var hits []TextHit
	for rows.Next() {
		var h TextHit
		var tier int
		if err := rows.Scan(&h.UUID, &tier); err != nil {
			return nil, err
		}
		h.Score = float64(tier) / 3
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// PopularTags returns tags by descending use count, then name.
func (s *SQLiteStorage) PopularTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT json_each.value AS tag, COUNT(*) AS n
		 FROM images, json_each(images.tags)
		 GROUP BY tag ORDER BY n DESC, tag ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		tags = append(tags, tc)
	}
	return tags, rows.Err()
}

// MetadataFields returns metadata keys by descending use count with one JSON type seen for each.
func (s *SQLiteStorage) MetadataFields(ctx context.Context, limit int) ([]models.MetadataField, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT json_each.key AS k, COUNT(*) AS n, MIN(json_each.type)
		 FROM images, json_each(images.metadata)
		 GROUP BY k ORDER BY n DESC, k ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata fields: %w", err)
	}
	defer rows.Close()

	fields := []models.MetadataField{}
	for rows.Next() {
		var f models.MetadataField
		if err := rows.Scan(&f.Key, &f.Count, &f.Type); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// PatchImage reads a record, applies fn and writes the editable fields back in one
// transaction, so concurrent patches of the same record never lose each other's changes.
func (s *SQLiteStorage) PatchImage(ctx context.Context, uuid string, fn func(img *models.Image)) (*models.Image, error) {
	return s.mutate(ctx, uuid, func(img *models.Image) {
		fn(img)
		touch(img)
	})
}

// mutate reads a record, applies fn and writes title, description, tags, metadata and
// updated_at back in one transaction.
func (s *SQLiteStorage) mutate(ctx context.Context, uuid string, fn func(img *models.Image)) (*models.Image, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	img, err := getImage(ctx, tx, uuid)
	if err != nil {
		return nil, err
	}
	fn(img)
	if err := writeEditable(ctx, tx, img); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return img, nil
}

func writeEditable(ctx context.Context, tx *sql.Tx, img *models.Image) error {
	img.Tags = utils.DedupeStrings(img.Tags)
	metadataJSON, tagsJSON, err := encodeJSONFields(img)
	if err != nil {
		return err
	}
	now := formatTime(img.UpdatedAt)
	_, err = tx.ExecContext(ctx,
		`UPDATE images SET title = ?, description = ?, tags = ?, metadata = ?, updated_at = ? WHERE uuid = ?`,
		img.Title, img.Description, tagsJSON, metadataJSON, now, img.UUID)
	if err != nil {
		return fmt.Errorf("failed to update image: %w", err)
	}
	return nil
}

// AddTags appends tags the record does not already carry.
func (s *SQLiteStorage) AddTags(ctx context.Context, uuid string, tags []string) (*models.Image, error) {
	return s.mutate(ctx, uuid, func(img *models.Image) {
		img.Tags = append(img.Tags, tags...)
		touch(img)
	})
}

// RemoveTag drops tag from the record. Removing an absent tag is not an error.
func (s *SQLiteStorage) RemoveTag(ctx context.Context, uuid, tag string) (*models.Image, error) {
	return s.mutate(ctx, uuid, func(img *models.Image) {
		kept := img.Tags[:0]
		for _, t := range img.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		img.Tags = kept
		touch(img)
	})
}

// UpdateMetadata merges patch into the record's metadata. A nil value deletes the key.
func (s *SQLiteStorage) UpdateMetadata(ctx context.Context, uuid string, patch map[string]interface{}) (*models.Image, error) {
	return s.mutate(ctx, uuid, func(img *models.Image) {
		for k, v := range patch {
			if v == nil {
				delete(img.Metadata, k)
				continue
			}
			img.Metadata[k] = v
		}
		touch(img)
	})
}

func touch(img *models.Image) {
	img.UpdatedAt = nowStored()
}
