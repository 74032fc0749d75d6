// Package server provides the HTTP API for SmartImageFinder.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/analysis"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/indexer"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/maintenance"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/search"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// WatchService manages watched import directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the SmartImageFinder API.
type Server struct {
	engine     *search.Engine
	indexer    *indexer.Indexer
	storage    storage.Storage
	vectors    *vectorstore.Manager
	cfg        *config.Config
	cfgMu      sync.Mutex
	configPath string
	watch      WatchService
	scheduler  *maintenance.Scheduler
	analyzer   analysis.Analyzer
	version    string
	logger     *zap.Logger
	server     *http.Server
	started    time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithWatch enables the watch directory endpoints. Directory changes are written back
// to configPath when it is set.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// WithScheduler reports maintenance task status in /system/status.
func WithScheduler(sch *maintenance.Scheduler) Option {
	return func(s *Server) { s.scheduler = sch }
}

// WithAnalyzer enables the vision analysis endpoint.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithVersion sets the version reported by /system/status.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	store storage.Storage,
	vectors *vectorstore.Manager,
	cfg *config.Config,
	opts ...Option,
) *Server {
	s := &Server{
		engine:  engine,
		indexer: idx,
		storage: store,
		vectors: vectors,
		cfg:     cfg,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(middleware.Compress(5))

			r.Get("/images", s.handleListImages)
			r.Delete("/images", s.handleDeleteImages)
			r.Post("/images/upload", s.handleUpload)
			r.Get("/images/{uuid}", s.handleGetImage)
			r.Patch("/images/{uuid}", s.handleUpdateImage)
			r.Delete("/images/{uuid}", s.handleDeleteImage)
			r.Post("/images/{uuid}/tags", s.handleAddTags)
			r.Delete("/images/{uuid}/tags/{tag}", s.handleRemoveTag)
			r.Patch("/images/{uuid}/metadata", s.handleUpdateMetadata)

			r.Get("/tags", s.handleTags)
			r.Get("/metadata/fields", s.handleMetadataFields)

			r.Get("/search/text", s.handleSearchText)
			r.Post("/search/image", s.handleSearchImage)
			r.Get("/search/similar/{uuid}", s.handleSearchSimilar)

			r.Get("/system/status", s.handleStatus)
			r.Post("/system/checkpoint", s.handleCheckpoint)
			r.Post("/system/clear-cache", s.handleClearCache)

			r.Get("/watch/directories", s.handleWatchDirectoriesList)
			r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
			r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
		})

		// Long-running; bounded by the client instead of the request timeout.
		r.Get("/images/export.xlsx", s.handleExportXLSX)
		r.Post("/system/compact", s.handleCompact)
		r.Post("/system/reembed", s.handleReembed)
		r.Post("/ai/analyze/{uuid}", s.handleAnalyzeImage)
	})
	return r
}

// requestLogger logs each request at debug level, and 5xx responses at warn.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
