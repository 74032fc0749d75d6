// Package keyword keeps an optional term index over image titles, descriptions
// and tags. It is the second exact-text backend next to the SQL substring search.
package keyword

import (
	"context"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
)

// SearchOptions tunes a keyword search. Nil means exact term matching.
type SearchOptions struct {
	// FuzzyEnabled matches terms within Fuzziness edits of the query terms.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance, 1 or 2. Defaults to 1; larger values are capped at 2.
	Fuzziness int
}

// OptionsFromFuzziness maps the search.fuzziness setting onto SearchOptions. Zero or
// less keeps matching exact.
func OptionsFromFuzziness(n int) SearchOptions {
	if n <= 0 {
		return SearchOptions{}
	}
	return SearchOptions{FuzzyEnabled: true, Fuzziness: n}
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	Index(ctx context.Context, img *models.Image) error
	Search(ctx context.Context, query string, mode models.TextMatchMode, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// SearchText returns hits with scores scaled into [0,1] so they fuse like SQL tier scores.
	SearchText(ctx context.Context, query string, mode models.TextMatchMode, limit int) ([]storage.TextHit, error)
	Delete(ctx context.Context, uuid string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit with its raw relevance score.
type KeywordResult struct {
	UUID  string
	Score float64
}
