package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	unicodetokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
)

// Field boosts in combined mode mirror the SQL tiers: title over description over tags.
const (
	titleBoost       = 3.0
	descriptionBoost = 2.0
	tagBoost         = 1.0
)

// textAnalyzer splits on unicode word boundaries and lowercases. It has no stop-word
// filter and no stemmer, so "the", "after" and "lakes" are all indexed as written.
const textAnalyzer = "catalogue_text"

// maxFuzziness is the largest edit distance bleve's fuzzy query accepts.
const maxFuzziness = 2

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
	// defaults apply to SearchText, the path the search engine uses.
	defaults SearchOptions
}

// IndexOption configures a BleveIndex.
type IndexOption func(*BleveIndex)

// WithSearchOptions sets the options SearchText runs with.
func WithSearchOptions(opts SearchOptions) IndexOption {
	return func(b *BleveIndex) { b.defaults = opts }
}

// NewBleveIndex creates or opens a Bleve index at path.
// An existing index is reopened. If the mapping changes, remove the directory to rebuild it.
func NewBleveIndex(path string, opts ...IndexOption) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicodetokenizer.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register text analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = textAnalyzer
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	im.AddDocumentMapping("image", docMapping)
	im.DefaultType = "image"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = textAnalyzer

	var index bleve.Index
	if _, statErr := os.Stat(path); statErr == nil {
		index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", err)
		}
	} else {
		index, err = bleve.New(path, im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
	}
	b := &BleveIndex{index: index}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Index adds or replaces the record's document.
func (b *BleveIndex) Index(ctx context.Context, img *models.Image) error {
	doc := map[string]interface{}{
		"title":       img.Title,
		"description": img.Description,
		"tags":        img.Tags,
	}
	if err := b.index.Index(img.UUID, doc); err != nil {
		return fmt.Errorf("failed to index %s: %w", img.UUID, err)
	}
	return nil
}

// Search runs a match query over the fields mode selects and returns up to limit hits,
// ordered by score, then uuid.
func (b *BleveIndex) Search(ctx context.Context, query string, mode models.TextMatchMode, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	fuzziness := 0
	if opts != nil && opts.FuzzyEnabled {
		fuzziness = 1
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		if fuzziness > maxFuzziness {
			fuzziness = maxFuzziness
		}
	}

	var q blevequery.Query
	switch mode {
	case models.TextMatchTitle:
		q = fieldQuery(query, "title", 1, fuzziness)
	case models.TextMatchDescription:
		q = fieldQuery(query, "description", 1, fuzziness)
	case models.TextMatchCombined, "":
		q = bleve.NewDisjunctionQuery(
			fieldQuery(query, "title", titleBoost, fuzziness),
			fieldQuery(query, "description", descriptionBoost, fuzziness),
			fieldQuery(query, "tags", tagBoost, fuzziness),
		)
	default:
		return nil, fmt.Errorf("unknown text match mode %q", mode)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{UUID: hit.ID, Score: hit.Score}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

// fieldQuery matches query against one field. With fuzziness > 0 each term is
// matched fuzzily and any term may match.
func fieldQuery(query, field string, boost float64, fuzziness int) blevequery.Query {
	if fuzziness <= 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	dq := bleve.NewDisjunctionQuery(queries...)
	dq.SetBoost(boost)
	return dq
}

// tokenizeQuery splits query into lowercase terms the way the text analyzer does.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SearchText runs Search with the index's configured options and divides every score
// by the best one.
func (b *BleveIndex) SearchText(ctx context.Context, query string, mode models.TextMatchMode, limit int) ([]storage.TextHit, error) {
	opts := b.defaults
	results, err := b.Search(ctx, query, mode, limit, &opts)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	top := results[0].Score
	hits := make([]storage.TextHit, len(results))
	for i, r := range results {
		score := 1.0
		if top > 0 {
			score = r.Score / top
		}
		hits[i] = storage.TextHit{UUID: r.UUID, Score: score}
	}
	return hits, nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, uuid string) error {
	return b.index.Delete(uuid)
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
