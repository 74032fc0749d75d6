package models

import (
	"strings"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// SearchType selects which retrieval sources a search uses.
type SearchType string

const (
	SearchText   SearchType = "text"
	SearchVector SearchType = "vector"
	SearchHybrid SearchType = "hybrid"
)

// TextMatchMode selects the fields exact-text search looks at.
type TextMatchMode string

const (
	TextMatchTitle       TextMatchMode = "title"
	TextMatchDescription TextMatchMode = "description"
	TextMatchCombined    TextMatchMode = "combined"
)

// VectorMatchMode selects the vector indices a search fans out to.
type VectorMatchMode string

const (
	VectorMatchTitle       VectorMatchMode = "title"
	VectorMatchDescription VectorMatchMode = "description"
	VectorMatchImage       VectorMatchMode = "image"
	VectorMatchCombined    VectorMatchMode = "combined"
)

// QueryKind is the kind of input a search request carries.
type QueryKind string

const (
	QueryKindText    QueryKind = "text"
	QueryKindImage   QueryKind = "image"
	QueryKindSimilar QueryKind = "similar"
)

// WeightOverrides are caller-supplied weights. Nil fields keep the configured default.
type WeightOverrides struct {
	Text        *float64 `json:"text,omitempty"`
	Vector      *float64 `json:"vector,omitempty"`
	Title       *float64 `json:"title,omitempty"`
	Description *float64 `json:"description,omitempty"`
	Image       *float64 `json:"image,omitempty"`
}

// IsZero reports whether no override is set.
func (w *WeightOverrides) IsZero() bool {
	return w == nil || (w.Text == nil && w.Vector == nil && w.Title == nil && w.Description == nil && w.Image == nil)
}

// SearchRequest is one search call. Exactly one of Query, Image and SimilarTo is set.
type SearchRequest struct {
	Query       string           `json:"query,omitempty"`
	Image       []byte           `json:"-"`
	SimilarTo   string           `json:"similar_to,omitempty"`
	Type        SearchType       `json:"mode,omitempty"`
	TextMatch   TextMatchMode    `json:"text_match,omitempty"`
	VectorMatch VectorMatchMode  `json:"vector_match,omitempty"`
	Limit       int              `json:"limit,omitempty"`
	Range       DateRange        `json:"range"`
	Tags        []string         `json:"tags,omitempty"`
	Weights     *WeightOverrides `json:"weights,omitempty"`
}

// Kind reports which input the request carries. Call after Validate.
func (r *SearchRequest) Kind() QueryKind {
	switch {
	case len(r.Image) > 0:
		return QueryKindImage
	case r.SimilarTo != "":
		return QueryKindSimilar
	default:
		return QueryKindText
	}
}

// Validate checks the request and fills defaults. Limit falls back to defaultLimit
// and is capped at maxLimit.
func (r *SearchRequest) Validate(defaultLimit, maxLimit int) error {
	r.Query = strings.TrimSpace(r.Query)
	r.SimilarTo = strings.TrimSpace(r.SimilarTo)

	inputs := 0
	if r.Query != "" {
		inputs++
	}
	if len(r.Image) > 0 {
		inputs++
	}
	if r.SimilarTo != "" {
		inputs++
	}
	if inputs == 0 {
		return apperr.Invalidf("query cannot be empty")
	}
	if inputs > 1 {
		return apperr.Invalidf("only one of query, image and similar_to may be set")
	}

	kind := r.Kind()
	if r.Type == "" {
		if kind == QueryKindText {
			r.Type = SearchHybrid
		} else {
			r.Type = SearchVector
		}
	}
	switch r.Type {
	case SearchText, SearchVector, SearchHybrid:
	default:
		return apperr.Invalidf("unknown search mode %q", r.Type).WithDetail("mode", string(r.Type))
	}
	if kind != QueryKindText && r.Type != SearchVector {
		return apperr.Invalidf("%s search supports only vector mode", kind).WithDetail("mode", string(r.Type))
	}

	if r.TextMatch == "" {
		r.TextMatch = TextMatchCombined
	}
	switch r.TextMatch {
	case TextMatchTitle, TextMatchDescription, TextMatchCombined:
	default:
		return apperr.Invalidf("unknown text match mode %q", r.TextMatch).WithDetail("text_match", string(r.TextMatch))
	}

	if r.VectorMatch == "" {
		if kind == QueryKindImage {
			r.VectorMatch = VectorMatchImage
		} else {
			r.VectorMatch = VectorMatchCombined
		}
	}
	switch r.VectorMatch {
	case VectorMatchTitle, VectorMatchDescription, VectorMatchImage, VectorMatchCombined:
	default:
		return apperr.Invalidf("unknown vector match mode %q", r.VectorMatch).WithDetail("vector_match", string(r.VectorMatch))
	}

	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if maxLimit > 0 && r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	r.Tags = utils.DedupeStrings(r.Tags)
	return nil
}

// SearchResult is one ranked hit. Components holds each contributing source's raw score.
type SearchResult struct {
	UUID        string             `json:"uuid"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Filepath    string             `json:"filepath"`
	Tags        []string           `json:"tags"`
	CreatedAt   string             `json:"created_at"`
	Score       float64            `json:"score"`
	Components  map[string]float64 `json:"components"`
	Rank        int                `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query,omitempty"`
	Mode      SearchType      `json:"mode"`
	// Degraded is set when a hybrid search fell back to text only.
	Degraded bool     `json:"degraded"`
	Warnings []string `json:"warnings,omitempty"`
}
