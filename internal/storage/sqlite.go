package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// TimeLayout is the fixed-width UTC form timestamps are stored in, so that
// lexical order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Driver names registered by the two SQLite packages.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const imageColumns = `uuid, filename, filepath, title, description, file_size, file_type,
	width, height, created_at, updated_at, hash_value, metadata, tags`

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	driver string
}

// Option configures SQLiteStorage.
type Option func(*options)

type options struct {
	driver string
	logger *zap.Logger
}

// WithDriver selects "sqlite3" (cgo) or "sqlite" (pure Go). Empty tries sqlite3 first.
func WithDriver(driver string) Option {
	return func(o *options) {
		o.driver = driver
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := utils.OrNop(o.logger)

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var (
		db     *sql.DB
		driver string
		err    error
	)
	switch o.driver {
	case DriverCGO, DriverPureGo:
		driver = o.driver
		db, err = openDB(driver, dbPath)
	case "":
		driver = DriverCGO
		db, err = openDB(driver, dbPath)
		if err != nil {
			logger.Info("cgo sqlite driver unavailable, using pure Go driver", zap.Error(err))
			driver = DriverPureGo
			db, err = openDB(driver, dbPath)
		}
	default:
		return nil, fmt.Errorf("unknown sqlite driver %q", o.driver)
	}
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db, driver: driver}, nil
}

func openDB(driver, dbPath string) (*sql.DB, error) {
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database with %s: %w", driver, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		uuid TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		filepath TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		file_type TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		hash_value TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		tags TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at);
	CREATE INDEX IF NOT EXISTS idx_images_hash_value ON images(hash_value);
	CREATE INDEX IF NOT EXISTS idx_images_filepath ON images(filepath);
	`
	_, err := db.Exec(schema)
	return err
}

// Driver returns the database/sql driver in use.
func (s *SQLiteStorage) Driver() string {
	return s.driver
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanImage(row rowScanner) (*models.Image, error) {
	var (
		img                  models.Image
		createdAt, updatedAt string
		metadataJSON, tagsJS string
	)
	err := row.Scan(&img.UUID, &img.Filename, &img.Filepath, &img.Title, &img.Description,
		&img.FileSize, &img.FileType, &img.Width, &img.Height,
		&createdAt, &updatedAt, &img.HashValue, &metadataJSON, &tagsJS)
	if err != nil {
		return nil, err
	}
	if img.CreatedAt, err = time.Parse(TimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if img.UpdatedAt, err = time.Parse(TimeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &img.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJS), &img.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if img.Metadata == nil {
		img.Metadata = map[string]interface{}{}
	}
	if img.Tags == nil {
		img.Tags = []string{}
	}
	return &img, nil
}

func encodeJSONFields(img *models.Image) (metadata, tags string, err error) {
	md := img.Metadata
	if md == nil {
		md = map[string]interface{}{}
	}
	tg := img.Tags
	if tg == nil {
		tg = []string{}
	}
	mb, err := json.Marshal(md)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tb, err := json.Marshal(tg)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(mb), string(tb), nil
}

// CreateImage inserts a record. CreatedAt and UpdatedAt are set to now when zero.
func (s *SQLiteStorage) CreateImage(ctx context.Context, img *models.Image) error {
	if img.UUID == "" {
		return fmt.Errorf("image uuid is required")
	}
	now := time.Now().UTC()
	if img.CreatedAt.IsZero() {
		img.CreatedAt = now
	}
	if img.UpdatedAt.IsZero() {
		img.UpdatedAt = img.CreatedAt
	}
	// Round-trip through the storage layout so callers see what a read returns.
	img.CreatedAt, _ = time.Parse(TimeLayout, formatTime(img.CreatedAt))
	img.UpdatedAt, _ = time.Parse(TimeLayout, formatTime(img.UpdatedAt))
	img.Tags = utils.DedupeStrings(img.Tags)
	if img.Metadata == nil {
		img.Metadata = map[string]interface{}{}
	}

	metadataJSON, tagsJSON, err := encodeJSONFields(img)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO images (`+imageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.UUID, img.Filename, img.Filepath, img.Title, img.Description,
		img.FileSize, img.FileType, img.Width, img.Height,
		formatTime(img.CreatedAt), formatTime(img.UpdatedAt), img.HashValue, metadataJSON, tagsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}
	return nil
}

func getImage(ctx context.Context, q queryer, uuid string) (*models.Image, error) {
	img, err := scanImage(q.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE uuid = ?`, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	return img, err
}

// GetImage returns a record by UUID.
func (s *SQLiteStorage) GetImage(ctx context.Context, uuid string) (*models.Image, error) {
	return getImage(ctx, s.db, uuid)
}

// GetImages returns the records that exist among uuids, keyed by UUID.
func (s *SQLiteStorage) GetImages(ctx context.Context, uuids []string) (map[string]*models.Image, error) {
	out := make(map[string]*models.Image, len(uuids))
	const chunk = 500
	for start := 0; start < len(uuids); start += chunk {
		end := start + chunk
		if end > len(uuids) {
			end = len(uuids)
		}
		part := uuids[start:end]
		args := make([]interface{}, len(part))
		for i, u := range part {
			args[i] = u
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+imageColumns+` FROM images WHERE uuid IN (`+placeholders(len(part))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query images: %w", err)
		}
		for rows.Next() {
			img, err := scanImage(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[img.UUID] = img
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// UpdateImage rewrites the mutable fields of an existing record and bumps updated_at.
func (s *SQLiteStorage) UpdateImage(ctx context.Context, img *models.Image) error {
	img.UpdatedAt = nowStored()
	img.Tags = utils.DedupeStrings(img.Tags)
	metadataJSON, tagsJSON, err := encodeJSONFields(img)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE images SET filename = ?, filepath = ?, title = ?, description = ?,
		 file_size = ?, file_type = ?, width = ?, height = ?, hash_value = ?,
		 metadata = ?, tags = ?, updated_at = ?
		 WHERE uuid = ?`,
		img.Filename, img.Filepath, img.Title, img.Description,
		img.FileSize, img.FileType, img.Width, img.Height, img.HashValue,
		metadataJSON, tagsJSON, formatTime(img.UpdatedAt), img.UUID,
	)
	if err != nil {
		return fmt.Errorf("failed to update image: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, img.UUID)
	}
	return nil
}

// DeleteImage removes a record by UUID.
func (s *SQLiteStorage) DeleteImage(ctx context.Context, uuid string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	return nil
}

// FindByHash returns the oldest record with the given content hash.
func (s *SQLiteStorage) FindByHash(ctx context.Context, hash string) (*models.Image, error) {
	img, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE hash_value = ? ORDER BY created_at LIMIT 1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hash %s", ErrNotFound, hash)
	}
	return img, err
}

// FindByFilepath returns the record stored at path.
func (s *SQLiteStorage) FindByFilepath(ctx context.Context, path string) (*models.Image, error) {
	img, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE filepath = ? ORDER BY created_at LIMIT 1`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: path %s", ErrNotFound, path)
	}
	return img, err
}

// CountImages returns the number of records.
func (s *SQLiteStorage) CountImages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

// IterateImages calls fn for every record in uuid order, batchSize rows at a time.
// Each batch is read fully before fn runs, so fn may use the store. It stops at the
// first error from fn or when ctx is cancelled.
func (s *SQLiteStorage) IterateImages(ctx context.Context, batchSize int, fn func(*models.Image) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+imageColumns+` FROM images WHERE uuid > ? ORDER BY uuid LIMIT ?`, after, batchSize)
		if err != nil {
			return fmt.Errorf("failed to iterate images: %w", err)
		}
		var batch []*models.Image
		for rows.Next() {
			img, err := scanImage(rows)
			if err != nil {
				rows.Close()
				return err
			}
			batch = append(batch, img)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
		for _, img := range batch {
			if err := fn(img); err != nil {
				return err
			}
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].UUID
	}
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// nowStored returns the current time truncated to the stored precision.
func nowStored() time.Time {
	t, _ := time.Parse(TimeLayout, formatTime(time.Now()))
	return t
}
