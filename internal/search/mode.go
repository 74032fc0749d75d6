package search

import (
	"math"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
)

// Branch is one sub-index a vector query fans out to, with its weight.
type Branch struct {
	Field  identity.Field
	Weight float64
}

// FanoutTable maps a query kind and vector match mode to the branches it searches.
// It is the only place a new mode needs to be added.
type FanoutTable struct {
	combined map[models.QueryKind][]Branch
}

// NewFanoutTable builds the combined fan-outs from configured weights. Fields with a
// zero weight are left out.
func NewFanoutTable(cfg config.SearchConfig) FanoutTable {
	return FanoutTable{combined: map[models.QueryKind][]Branch{
		models.QueryKindText:    branchesOf(cfg.TextFanout),
		models.QueryKindImage:   branchesOf(cfg.ImageFanout),
		models.QueryKindSimilar: branchesOf(cfg.SimilarFanout),
	}}
}

func branchesOf(w config.FanoutWeights) []Branch {
	var out []Branch
	for _, b := range []Branch{
		{identity.FieldImage, w.Image},
		{identity.FieldTitle, w.Title},
		{identity.FieldDescription, w.Description},
	} {
		if b.Weight > 0 {
			out = append(out, b)
		}
	}
	return out
}

// Resolve returns the normalized branches for kind and mode with overrides applied.
// Overriding a field outside the fan-out, a negative weight and an all-zero fan-out
// are invalid requests.
func (t FanoutTable) Resolve(kind models.QueryKind, mode models.VectorMatchMode, overrides *models.WeightOverrides) ([]Branch, error) {
	var base []Branch
	switch mode {
	case models.VectorMatchTitle:
		base = []Branch{{identity.FieldTitle, 1}}
	case models.VectorMatchDescription:
		base = []Branch{{identity.FieldDescription, 1}}
	case models.VectorMatchImage:
		base = []Branch{{identity.FieldImage, 1}}
	case models.VectorMatchCombined:
		base = t.combined[kind]
	default:
		return nil, apperr.Invalidf("unknown vector match mode %q", mode)
	}
	if len(base) == 0 {
		return nil, apperr.Invalidf("no indices configured for %s %s search", kind, mode)
	}

	branches := make([]Branch, len(base))
	copy(branches, base)
	if overrides != nil {
		in := make(map[identity.Field]int, len(branches))
		for i, b := range branches {
			in[b.Field] = i
		}
		for _, o := range []struct {
			field identity.Field
			value *float64
		}{
			{identity.FieldTitle, overrides.Title},
			{identity.FieldDescription, overrides.Description},
			{identity.FieldImage, overrides.Image},
		} {
			if o.value == nil {
				continue
			}
			i, ok := in[o.field]
			if !ok {
				return nil, apperr.Invalidf("weight for %s is not used by %s search", o.field, mode).
					WithDetail("field", string(o.field))
			}
			branches[i].Weight = *o.value
		}
	}

	weights := make([]float64, len(branches))
	for i, b := range branches {
		weights[i] = b.Weight
	}
	norm, err := NormalizeWeights(weights)
	if err != nil {
		return nil, err
	}
	for i := range branches {
		branches[i].Weight = norm[i]
	}
	return branches, nil
}

// NormalizeWeights scales weights to sum to 1. Negative or non-finite weights and a
// zero sum are invalid requests.
func NormalizeWeights(weights []float64) ([]float64, error) {
	var sum float64
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, apperr.Invalidf("weights must be finite numbers")
		}
		if w < 0 {
			return nil, apperr.Invalidf("weights must not be negative")
		}
		sum += w
	}
	if math.IsInf(sum, 0) {
		return nil, apperr.Invalidf("weights are too large")
	}
	if sum == 0 {
		return nil, apperr.Invalidf("weights must not sum to zero")
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out, nil
}

// hybridWeights returns the normalized text and vector weights for a hybrid search.
func hybridWeights(cfg config.SearchConfig, overrides *models.WeightOverrides) (wt, wv float64, err error) {
	wt, wv = cfg.TextWeight, cfg.VectorWeight
	if overrides != nil {
		if overrides.Text != nil {
			wt = *overrides.Text
		}
		if overrides.Vector != nil {
			wv = *overrides.Vector
		}
	}
	norm, err := NormalizeWeights([]float64{wt, wv})
	if err != nil {
		return 0, 0, err
	}
	return norm[0], norm[1], nil
}
