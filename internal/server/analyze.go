package server

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/analysis"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
)

// analysisUpdate turns the non-empty parts of res into a record update. Tags replace
// the record's tags.
func analysisUpdate(res *analysis.Result) models.ImageUpdate {
	var upd models.ImageUpdate
	if res.Title != "" {
		upd.Title = &res.Title
	}
	if res.Description != "" {
		upd.Description = &res.Description
	}
	if len(res.Tags) > 0 {
		tags := res.Tags
		upd.Tags = &tags
	}
	return upd
}

// handleAnalyzeImage drafts a title, description and tags for a stored image with the
// vision model and applies them unless dry_run is set.
func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		s.respondError(w, r, apperr.Unavailablef("image analysis is not enabled"))
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "uuid")
	img, err := s.storage.GetImage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, r, apperr.NotFoundf("image %s not found", id).WithDetail("uuid", id))
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	data, err := os.ReadFile(img.Filepath)
	if os.IsNotExist(err) {
		s.respondError(w, r, apperr.NotFoundf("image file for %s is missing", id).WithDetail("filepath", img.Filepath))
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	start := time.Now()
	res, err := s.analyzer.Analyze(ctx, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	meta := map[string]interface{}{"time_ms": time.Since(start).Milliseconds()}

	if boolParam(r.URL.Query(), "dry_run") {
		s.respondOK(w, http.StatusOK, map[string]interface{}{
			"uuid":     id,
			"analysis": res,
			"updated":  false,
			"image":    img,
		}, meta)
		return
	}

	wr, err := s.indexer.Update(ctx, id, analysisUpdate(res))
	if err != nil && !(wr != nil && s.persistedOnly(err)) {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("image analyzed",
		zap.String("uuid", id),
		zap.Int("tags", len(res.Tags)),
		zap.Bool("vectors_indexed", wr.VectorsIndexed))
	s.respondOK(w, http.StatusOK, map[string]interface{}{
		"uuid":            id,
		"analysis":        res,
		"updated":         true,
		"image":           wr.Image,
		"vectors_indexed": wr.VectorsIndexed,
		"persisted":       wr.Persisted,
	}, meta)
}
