// Package search fuses exact-text and multi-index vector retrieval into one ranked list.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// TextSearcher answers exact-text queries with scores in [0,1].
type TextSearcher interface {
	SearchText(ctx context.Context, query string, mode models.TextMatchMode, limit int) ([]storage.TextHit, error)
}

// RecordSource hydrates candidates.
type RecordSource interface {
	GetImage(ctx context.Context, uuid string) (*models.Image, error)
	GetImages(ctx context.Context, uuids []string) (map[string]*models.Image, error)
}

// VectorSource is the part of the index manager the engine reads.
type VectorSource interface {
	Embedder() embedding.Embedder
	Entry(uuid string) (identity.Entry, bool)
	SearchFieldByVector(ctx context.Context, field identity.Field, vec []float32, limit int, exclude string) ([]vectorstore.Hit, error)
	SearchFieldByExistingUUID(ctx context.Context, field identity.Field, uuid string, limit int) ([]vectorstore.Hit, error)
}

// Engine runs text, vector and hybrid searches.
type Engine struct {
	records RecordSource
	text    TextSearcher
	vectors VectorSource
	cfg     config.SearchConfig
	fanout  FanoutTable
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a search engine. cfg should already have defaults applied.
func NewEngine(records RecordSource, text TextSearcher, vectors VectorSource, cfg config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{
		records: records,
		text:    text,
		vectors: vectors,
		cfg:     cfg,
		fanout:  NewFanoutTable(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	if e.cfg.OverfetchFactor < 1 {
		e.cfg.OverfetchFactor = 1
	}
	return e
}

// VectorAvailable reports whether queries that need a fresh embedding can run now.
func (e *Engine) VectorAvailable() bool {
	return e.vectors != nil && embedding.Available(e.vectors.Embedder())
}

// Search validates req, runs the sources its mode selects, fuses, filters and ranks.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := req.Validate(e.cfg.DefaultLimit, e.cfg.MaxLimit); err != nil {
		return nil, err
	}
	kind := req.Kind()
	resp := &models.SearchResponse{
		Results: []*models.SearchResult{},
		Query:   req.Query,
		Mode:    req.Type,
	}
	if kind == models.QueryKindSimilar {
		resp.Query = req.SimilarTo
	}

	useText := req.Type != models.SearchVector
	useVector := req.Type != models.SearchText
	textWeight, vectorWeight := 1.0, 0.0

	var branches []Branch
	if useVector {
		var err error
		if branches, err = e.fanout.Resolve(kind, req.VectorMatch, req.Weights); err != nil {
			return nil, err
		}
	} else if w := req.Weights; w != nil && (w.Title != nil || w.Description != nil || w.Image != nil) {
		return nil, apperr.Invalidf("field weights need a vector or hybrid search")
	}
	switch req.Type {
	case models.SearchVector:
		textWeight, vectorWeight = 0, 1
	case models.SearchHybrid:
		var err error
		if textWeight, vectorWeight, err = hybridWeights(e.cfg, req.Weights); err != nil {
			return nil, err
		}
	}
	if req.Type != models.SearchHybrid && req.Weights != nil && (req.Weights.Text != nil || req.Weights.Vector != nil) {
		return nil, apperr.Invalidf("text and vector weights need a hybrid search")
	}

	if kind == models.QueryKindSimilar {
		if err := e.checkSimilar(ctx, req.SimilarTo, branches); err != nil {
			return nil, err
		}
	} else if useVector && !e.VectorAvailable() {
		if !useText {
			return nil, apperr.Unavailablef("vector search is unavailable")
		}
		e.logger.Warn("embedding provider unavailable, hybrid search degraded to text")
		useVector = false
		textWeight = 1
		resp.Degraded = true
		resp.Warnings = append(resp.Warnings, "vector search unavailable; results use text matching only")
	}

	fetch := req.Limit * e.cfg.OverfetchFactor
	var (
		wg              sync.WaitGroup
		textHits        []storage.TextHit
		vectorCands     map[string]*Candidate
		textErr, vecErr error
		branchWarnings  []string
	)
	if useText {
		wg.Add(1)
		go func() {
			defer wg.Done()
			textHits, textErr = e.searchText(ctx, req, fetch)
		}()
	}
	if useVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorCands, branchWarnings, vecErr = e.searchVectors(ctx, req, branches, fetch)
		}()
	}
	wg.Wait()
	resp.Warnings = append(resp.Warnings, branchWarnings...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if textErr != nil {
		e.logger.Warn("text search failed", zap.Error(textErr))
		if !useVector || vecErr != nil {
			return nil, &apperr.Error{Kind: apperr.ServiceUnavailable, Message: "text search failed", Err: textErr}
		}
		textHits = nil
		vectorWeight = 1
		resp.Warnings = append(resp.Warnings, "text search failed; results use vector similarity only")
	}
	if vecErr != nil {
		k := apperr.KindOf(vecErr)
		if !useText || k == apperr.InvalidRequest || k == apperr.NotFound {
			return nil, vecErr
		}
		e.logger.Warn("vector search failed, hybrid search degraded to text", zap.Error(vecErr))
		vectorCands = nil
		textWeight = 1
		resp.Degraded = true
		resp.Warnings = append(resp.Warnings, "vector search failed; results use text matching only")
	}

	fused := Fuse(textHits, vectorCands, textWeight, vectorWeight)
	results, total, err := e.hydrate(ctx, fused, req)
	if err != nil {
		return nil, err
	}
	resp.Results = results
	resp.Total = total
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}

func (e *Engine) searchText(ctx context.Context, req *models.SearchRequest, limit int) ([]storage.TextHit, error) {
	if e.text == nil {
		return nil, errors.New("no text backend configured")
	}
	return e.text.SearchText(ctx, req.Query, req.TextMatch, limit)
}

// checkSimilar returns NOT_FOUND for an unknown record and NO_VECTOR when it has no
// vector in any requested field.
func (e *Engine) checkSimilar(ctx context.Context, uuid string, branches []Branch) error {
	if _, err := e.records.GetImage(ctx, uuid); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFoundf("image %s not found", uuid).WithDetail("uuid", uuid)
		}
		return fmt.Errorf("failed to load image %s: %w", uuid, err)
	}
	if e.vectors == nil {
		return apperr.Unavailablef("vector search is unavailable")
	}
	entry, _ := e.vectors.Entry(uuid)
	for _, b := range branches {
		if _, ok := entry.Slot(b.Field); ok {
			return nil
		}
	}
	return apperr.NotFoundf("image %s has no vector for the requested indices", uuid).
		WithCode(apperr.CodeNoVector).
		WithDetail("uuid", uuid)
}

// searchVectors embeds the query once and searches every branch concurrently. A failed
// branch contributes nothing; only when every branch fails is the source an error.
func (e *Engine) searchVectors(ctx context.Context, req *models.SearchRequest, branches []Branch, limit int) (map[string]*Candidate, []string, error) {
	kind := req.Kind()

	var queryVec []float32
	if kind != models.QueryKindSimilar {
		emb := e.vectors.Embedder()
		var err error
		if kind == models.QueryKindImage {
			queryVec, err = emb.EmbedImage(ctx, req.Image)
		} else {
			queryVec, err = emb.EmbedText(ctx, req.Query)
		}
		if err != nil {
			return nil, nil, classifyEmbedError(err)
		}
	}

	results := make([]BranchHits, len(branches))
	errs := make([]error, len(branches))
	var wg sync.WaitGroup
	for i, b := range branches {
		wg.Add(1)
		go func(i int, b Branch) {
			defer wg.Done()
			var hits []vectorstore.Hit
			var err error
			if kind == models.QueryKindSimilar {
				hits, err = e.vectors.SearchFieldByExistingUUID(ctx, b.Field, req.SimilarTo, limit)
				if errors.Is(err, vectorstore.ErrNoVector) {
					err = nil
				}
			} else {
				hits, err = e.vectors.SearchFieldByVector(ctx, b.Field, queryVec, limit, "")
			}
			results[i] = BranchHits{Branch: b, Hits: hits}
			errs[i] = err
		}(i, b)
	}
	wg.Wait()

	var warnings []string
	failed := 0
	var lastErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		lastErr = err
		e.logger.Warn("vector branch failed",
			zap.String("field", string(branches[i].Field)),
			zap.Error(err))
		warnings = append(warnings, fmt.Sprintf("%s index search failed", branches[i].Field))
	}
	if failed == len(branches) {
		return nil, warnings, &apperr.Error{Kind: apperr.ServiceUnavailable, Message: "vector search failed", Err: lastErr}
	}
	return CombineVector(results), warnings, nil
}

func classifyEmbedError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, embedding.ErrInvalidInput):
		return &apperr.Error{Kind: apperr.InvalidRequest, Code: apperr.CodeInvalidFile, Message: "query could not be embedded", Err: err}
	default:
		return &apperr.Error{Kind: apperr.ServiceUnavailable, Message: "vector search is unavailable", Err: err}
	}
}

// hydrate loads every candidate, drops records missing from the store, applies the
// date and tag filters, and truncates to the limit. It returns the page and the number
// of candidates that passed the filters.
func (e *Engine) hydrate(ctx context.Context, cands []*Candidate, req *models.SearchRequest) ([]*models.SearchResult, int, error) {
	if len(cands) == 0 {
		return []*models.SearchResult{}, 0, nil
	}
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.UUID
	}
	records, err := e.records.GetImages(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load search candidates: %w", err)
	}

	kept := make([]*Candidate, 0, len(cands))
	for _, c := range cands {
		img, ok := records[c.UUID]
		if !ok {
			continue
		}
		if !req.Range.Contains(img.CreatedAt) || !img.HasAnyTag(req.Tags) {
			continue
		}
		kept = append(kept, c)
	}
	total := len(kept)
	if len(kept) > req.Limit {
		kept = kept[:req.Limit]
	}

	out := make([]*models.SearchResult, len(kept))
	for i, c := range kept {
		img := records[c.UUID]
		out[i] = &models.SearchResult{
			UUID:        img.UUID,
			Title:       img.Title,
			Description: img.Description,
			Filepath:    img.Filepath,
			Tags:        img.Tags,
			CreatedAt:   img.CreatedAt.Format(time.RFC3339),
			Score:       c.Score,
			Components:  c.Components,
			Rank:        i + 1,
		}
	}
	return out, total, nil
}
