package indexer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/fileid"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// decodableTypes are the formats registered with the image package above.
var decodableTypes = []string{"image/png", "image/jpeg", "image/gif"}

func decodable(mime *mimetype.MIME) bool {
	for _, t := range decodableTypes {
		if mime.Is(t) {
			return true
		}
	}
	return false
}

func invalidFile(format string, args ...interface{}) *apperr.Error {
	return apperr.Invalidf(format, args...).WithCode(apperr.CodeInvalidFile)
}

// Create stores an uploaded image and indexes it. A failed embedding keeps the record
// without any vectors and reports VectorsIndexed=false. A failed checkpoint returns the
// result together with an error wrapping vectorstore.ErrNotPersisted.
func (idx *Indexer) Create(ctx context.Context, in models.ImageInput) (*models.WriteResult, error) {
	if len(in.Data) == 0 {
		return nil, invalidFile("file %q is empty", in.Filename)
	}
	mime := mimetype.Detect(in.Data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, invalidFile("file %q is not an image (%s)", in.Filename, mime.String()).
			WithDetail("mime_type", mime.String())
	}
	if !decodable(mime) {
		return nil, invalidFile("unsupported image format %s, expected png, jpeg or gif", mime.String()).
			WithDetail("mime_type", mime.String())
	}

	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload" + mime.Extension()
	}

	img := &models.Image{
		UUID:        uuid.New().String(),
		Filename:    name,
		Title:       utils.CollapseSpace(in.Title),
		Description: utils.CollapseSpace(in.Description),
		FileSize:    int64(len(in.Data)),
		FileType:    mime.String(),
		HashValue:   fileid.ContentHash(in.Data),
		Metadata:    in.Metadata,
		Tags:        utils.DedupeStrings(in.Tags),
		CreatedAt:   idx.now().UTC(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	} else {
		idx.logger.Debug("image dimensions unknown", zap.String("filename", name), zap.Error(err))
	}

	saved := false
	if in.SourcePath != "" {
		img.Filepath = in.SourcePath
	} else {
		path, err := idx.saveUpload(img, in.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to save upload: %w", err)
		}
		img.Filepath = path
		saved = true
	}

	if err := idx.store.CreateImage(ctx, img); err != nil {
		if saved {
			_ = os.Remove(img.Filepath)
		}
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	res := &models.WriteResult{Image: img}
	res.VectorsIndexed = idx.applyVectors(ctx, img.UUID, map[identity.Field]vectorstore.Input{
		identity.FieldTitle:       {Text: img.Title},
		identity.FieldDescription: {Text: img.Description},
		identity.FieldImage:       {Image: in.Data},
	})
	idx.indexKeywords(ctx, img)

	persisted, err := idx.checkpoint()
	res.Persisted = persisted
	if err != nil {
		return res, err
	}
	idx.logger.Debug("image created",
		zap.String("uuid", img.UUID),
		zap.String("filepath", img.Filepath),
		zap.Bool("vectors_indexed", res.VectorsIndexed))
	return res, nil
}

// applyVectors embeds inputs and applies them all at once. Any embedding failure
// applies nothing and returns false.
func (idx *Indexer) applyVectors(ctx context.Context, uuid string, inputs map[identity.Field]vectorstore.Input) bool {
	vecs, err := idx.vectors.EmbedFields(ctx, inputs)
	if err != nil {
		idx.logger.Warn("embedding failed, record kept without vectors",
			zap.String("uuid", uuid),
			zap.Error(err))
		return false
	}
	if _, err := idx.vectors.SetVectors(ctx, uuid, vecs); err != nil {
		idx.logger.Warn("applying vectors failed",
			zap.String("uuid", uuid),
			zap.Error(err))
		return false
	}
	return true
}

// saveUpload writes data under uploadDir/YYYY/MM/DD/HHMMSS_<name> and returns the path.
func (idx *Indexer) saveUpload(img *models.Image, data []byte) (string, error) {
	t := img.CreatedAt
	dir := filepath.Join(idx.uploadDir, t.Format("2006"), t.Format("01"), t.Format("02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, t.Format("150405")+"_"+img.Filename)
	if utils.FileExists(path) {
		path = filepath.Join(dir, t.Format("150405")+"_"+img.UUID[:8]+"_"+img.Filename)
	}
	err := utils.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// removeUpload deletes path if it lives under the upload directory. Files the catalogue
// only references, such as watched imports, are left alone.
func (idx *Indexer) removeUpload(path string) {
	if path == "" || idx.uploadDir == "" {
		return
	}
	rel, err := filepath.Rel(idx.uploadDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		idx.logger.Warn("failed to remove image file", zap.String("path", path), zap.Error(err))
	}
}
