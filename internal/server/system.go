package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/indexer"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.storage.CountImages(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	stats := s.vectors.Stats()
	resp := map[string]interface{}{
		"images":              count,
		"vectors":             stats,
		"embedder_available":  embedding.Available(s.vectors.Embedder()),
		"vector_search_ready": s.engine.VectorAvailable(),
		"uptime_seconds":      int64(time.Since(s.started).Seconds()),
	}
	if s.version != "" {
		resp["version"] = s.version
	}
	if t := s.vectors.LastPersist(); !t.IsZero() {
		resp["last_checkpoint"] = t.UTC().Format(time.RFC3339)
	}
	if s.scheduler != nil {
		resp["maintenance"] = s.scheduler.Status()
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}

	if s.cfg != nil {
		st := s.cfg.Storage
		configInfo := map[string]interface{}{
			"index_type":           s.cfg.Vector.IndexType,
			"embedding_provider":   s.cfg.Embedding.Provider,
			"embedding_dimensions": s.cfg.Embedding.Dimensions,
			"text_backend":         s.cfg.Search.TextBackend,
			"database_path":        st.DatabasePath,
			"upload_dir":           st.UploadDir,
		}
		resp["config"] = configInfo
		diskBytes, err := storage.DiskUsageBytes(
			st.DatabasePath,
			st.UploadDir,
			st.TitleIndexPath,
			st.DescriptionIndexPath,
			st.ImageIndexPath,
			st.IdentityMapPath,
			st.BleveIndexPath,
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		} else {
			s.logger.Debug("disk usage unavailable", zap.Error(err))
		}
	}
	s.respondOK(w, http.StatusOK, resp, nil)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.vectors.PersistAll(); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, map[string]interface{}{
		"persisted":       true,
		"last_checkpoint": s.vectors.LastPersist().UTC().Format(time.RFC3339),
	}, nil)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	before := s.vectors.OrphanRatio()
	res, err := s.vectors.Compact(r.Context())
	if err != nil && !(res != nil && s.persistedOnly(err)) {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, res, map[string]interface{}{
		"orphan_ratio_before": before,
		"orphan_ratio_after":  s.vectors.OrphanRatio(),
	})
}

func (s *Server) handleReembed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := indexer.ReembedOptions{MissingOnly: boolParam(q, "missing")}
	for _, f := range utils.SplitList(q.Get("fields")) {
		field := identity.Field(f)
		if !field.Valid() {
			s.respondError(w, r, apperr.Invalidf("unknown vector field %q", f).WithDetail("field", f))
			return
		}
		opts.Fields = append(opts.Fields, field)
	}
	batch, err := intParam(q, "batch_size")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	opts.BatchSize = batch

	res, err := s.indexer.Reembed(r.Context(), opts)
	if err != nil && !(res != nil && s.persistedOnly(err)) {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, res, nil)
}

// cacheClearer is implemented by embedders that keep an embedding cache.
type cacheClearer interface {
	ClearCache(buckets ...string) (map[string]int, error)
}

// cacheBuckets maps accepted cache_types to embedding cache buckets.
var cacheBuckets = map[string][]string{
	"text":   {embedding.BucketText},
	"image":  {embedding.BucketImage},
	"vector": {embedding.BucketText, embedding.BucketImage},
	"all":    {embedding.BucketText, embedding.BucketImage},
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CacheTypes []string `json:"cache_types"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.respondInvalid(w, r, "invalid request body")
		return
	}
	if len(body.CacheTypes) == 0 {
		body.CacheTypes = []string{"all"}
	}
	var buckets []string
	seen := make(map[string]bool)
	for _, t := range body.CacheTypes {
		bs, ok := cacheBuckets[t]
		if !ok {
			s.respondError(w, r, apperr.Invalidf("unknown cache type %q", t).WithDetail("cache_type", t))
			return
		}
		for _, b := range bs {
			if !seen[b] {
				seen[b] = true
				buckets = append(buckets, b)
			}
		}
	}

	cc, ok := s.vectors.Embedder().(cacheClearer)
	if !ok {
		s.respondError(w, r, apperr.Unavailablef("embedding cache is not enabled"))
		return
	}
	removed, err := cc.ClearCache(buckets...)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOK(w, http.StatusOK, map[string]interface{}{"cleared": removed}, nil)
}
