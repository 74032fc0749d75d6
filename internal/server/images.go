package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/export"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
)

const (
	maxUploadBytes    = 256 << 20
	maxMultipartRAM   = 32 << 20
	maxImageFileBytes = 64 << 20
)

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q, "page")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	pageSize, err := intParam(q, "page_size")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rng, err := dateRangeParam(q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	filter := models.ImageFilter{
		Page:     page,
		PageSize: pageSize,
		SortBy:   q.Get("sort_by"),
		Order:    q.Get("order"),
		Range:    rng,
		Tags:     tagsParam(q),
	}
	images, total, err := s.storage.ListImages(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = storage.DefaultPageSize
	}
	if pageSize > storage.MaxPageSize {
		pageSize = storage.MaxPageSize
	}
	s.respondOK(w, http.StatusOK, images, map[string]interface{}{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	img, err := s.storage.GetImage(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, r, apperr.NotFoundf("image %s not found", id).WithDetail("uuid", id))
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	entry, _ := s.vectors.Entry(id)
	vectors := make(map[string]bool, len(identity.Fields))
	for _, f := range identity.Fields {
		_, ok := entry.Slot(f)
		vectors[string(f)] = ok
	}
	s.respondOK(w, http.StatusOK, img, map[string]interface{}{"vectors": vectors})
}

type uploadFailure struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type uploadResult struct {
	Uploaded []*models.WriteResult `json:"uploaded"`
	Failed   []uploadFailure       `json:"failed"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartRAM); err != nil {
		s.respondInvalid(w, r, "invalid multipart form: %v", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.respondInvalid(w, r, "no files uploaded")
		return
	}
	var tags []string
	if v := r.FormValue("tags"); v != "" {
		if err := json.Unmarshal([]byte(v), &tags); err != nil {
			s.respondInvalid(w, r, "tags must be a JSON array of strings")
			return
		}
	}
	var metadata map[string]interface{}
	if v := r.FormValue("metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &metadata); err != nil {
			s.respondInvalid(w, r, "metadata must be a JSON object")
			return
		}
	}

	res := uploadResult{Uploaded: []*models.WriteResult{}, Failed: []uploadFailure{}}
	var firstErr error
	for _, fh := range files {
		data, err := readPart(fh)
		if err == nil {
			var wr *models.WriteResult
			wr, err = s.indexer.Create(r.Context(), models.ImageInput{
				Filename:    fh.Filename,
				Data:        data,
				Title:       r.FormValue("title"),
				Description: r.FormValue("description"),
				Tags:        tags,
				Metadata:    copyMetadata(metadata),
			})
			if wr != nil && (err == nil || s.persistedOnly(err)) {
				res.Uploaded = append(res.Uploaded, wr)
				continue
			}
		}
		if firstErr == nil {
			firstErr = err
		}
		_, info := classify(err)
		res.Failed = append(res.Failed, uploadFailure{Filename: fh.Filename, Code: info.Code, Message: info.Message})
	}
	if len(res.Uploaded) == 0 {
		s.respondError(w, r, firstErr)
		return
	}
	s.respondOK(w, http.StatusCreated, res, map[string]interface{}{
		"uploaded": len(res.Uploaded),
		"failed":   len(res.Failed),
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxImageFileBytes {
		return nil, apperr.Invalidf("file %q exceeds %d bytes", fh.Filename, maxImageFileBytes).
			WithCode(apperr.CodeInvalidFile)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Server) handleUpdateImage(w http.ResponseWriter, r *http.Request) {
	var upd models.ImageUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.respondInvalid(w, r, "invalid request body")
		return
	}
	res, err := s.indexer.Update(r.Context(), chi.URLParam(r, "uuid"), upd)
	if err != nil && !(res != nil && s.persistedOnly(err)) {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, res, nil)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	res, err := s.indexer.Delete(r.Context(), id)
	if err != nil && !(res != nil && s.persistedOnly(err)) {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, map[string]interface{}{"uuid": id, "persisted": res.Persisted}, nil)
}

func (s *Server) handleDeleteImages(w http.ResponseWriter, r *http.Request) {
	var uuids []string
	if err := json.NewDecoder(r.Body).Decode(&uuids); err != nil {
		s.respondInvalid(w, r, "body must be a JSON array of uuids")
		return
	}
	if len(uuids) == 0 {
		s.respondInvalid(w, r, "no uuids given")
		return
	}
	res, err := s.indexer.DeleteBatch(r.Context(), uuids)
	if err != nil && !(res != nil && s.persistedOnly(err)) {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, res, map[string]interface{}{
		"deleted":   len(res.Deleted),
		"not_found": len(res.NotFound),
	})
}

func (s *Server) handleAddTags(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondInvalid(w, r, "invalid request body")
		return
	}
	img, err := s.indexer.AddTags(r.Context(), chi.URLParam(r, "uuid"), body.Tags)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, img, nil)
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	img, err := s.indexer.RemoveTag(r.Context(), chi.URLParam(r, "uuid"), chi.URLParam(r, "tag"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, img, nil)
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondInvalid(w, r, "body must be a JSON object")
		return
	}
	img, err := s.indexer.UpdateMetadata(r.Context(), chi.URLParam(r, "uuid"), patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, img, nil)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	tags, err := s.storage.PopularTags(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, tags, map[string]interface{}{"count": len(tags)})
}

func (s *Server) handleMetadataFields(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	fields, err := s.storage.MetadataFields(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, fields, map[string]interface{}{"count": len(fields)})
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	rows, err := export.WriteXLSX(r.Context(), &buf, s.storage)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	name := fmt.Sprintf("images-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("xlsx export write failed", zap.Error(err))
		return
	}
	s.logger.Debug("xlsx export finished", zap.Int("rows", rows))
}
