package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
)

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &models.SearchRequest{
		Query:       q.Get("q"),
		Type:        models.SearchType(q.Get("mode")),
		TextMatch:   models.TextMatchMode(q.Get("text_match")),
		VectorMatch: models.VectorMatchMode(q.Get("vector_type")),
	}
	if err := applyFilters(q, req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runSearch(w, r, req)
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageFileBytes+maxMultipartRAM)
	if err := r.ParseMultipartForm(maxMultipartRAM); err != nil {
		s.respondInvalid(w, r, "invalid multipart form: %v", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	f, fh, err := r.FormFile("image")
	if err != nil {
		s.respondInvalid(w, r, "image file is required")
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		s.respondInvalid(w, r, "failed to read image: %v", err)
		return
	}
	if len(data) == 0 {
		s.respondError(w, r, apperr.Invalidf("image %q is empty", fh.Filename).WithCode(apperr.CodeInvalidFile))
		return
	}

	// Form values and query parameters are both accepted.
	q := r.URL.Query()
	for k, vs := range r.MultipartForm.Value {
		if _, ok := q[k]; !ok {
			q[k] = vs
		}
	}
	req := &models.SearchRequest{
		Image:       data,
		Type:        models.SearchVector,
		VectorMatch: models.VectorMatchMode(q.Get("vector_type")),
	}
	if err := applyFilters(q, req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runSearch(w, r, req)
}

func (s *Server) handleSearchSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &models.SearchRequest{
		SimilarTo:   chi.URLParam(r, "uuid"),
		Type:        models.SearchVector,
		VectorMatch: models.VectorMatchMode(q.Get("search_type")),
	}
	if err := applyFilters(q, req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.runSearch(w, r, req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req *models.SearchRequest) {
	s.logger.Debug("search request",
		zap.String("kind", string(req.Kind())),
		zap.String("query", req.Query),
		zap.String("similar_to", req.SimilarTo),
		zap.Int("limit", req.Limit))
	resp, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, resp, map[string]interface{}{
		"total":         resp.Total,
		"query_time_ms": resp.QueryTime,
		"mode":          resp.Mode,
		"degraded":      resp.Degraded,
	})
}
