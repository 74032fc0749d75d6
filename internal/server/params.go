package server

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

func intParam(q url.Values, name string) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Invalidf("%s must be a non-negative integer", name).WithDetail(name, v)
	}
	return n, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, apperr.Invalidf("%s must be a finite number", name).WithDetail(name, v)
	}
	return &f, nil
}

func boolParam(q url.Values, name string) bool {
	b, _ := strconv.ParseBool(q.Get(name))
	return b
}

func dateRangeParam(q url.Values) (models.DateRange, error) {
	r, err := models.ParseDateRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		return r, apperr.Invalidf("%v", err)
	}
	return r, nil
}

// tagsParam accepts "tags=a,b" as well as repeated "tags" parameters.
func tagsParam(q url.Values) []string {
	var tags []string
	for _, v := range q["tags"] {
		tags = append(tags, utils.SplitList(v)...)
	}
	return utils.DedupeStrings(tags)
}

func weightsParam(q url.Values) (*models.WeightOverrides, error) {
	var w models.WeightOverrides
	var err error
	for name, dst := range map[string]**float64{
		"w_text":        &w.Text,
		"w_vector":      &w.Vector,
		"w_title":       &w.Title,
		"w_description": &w.Description,
		"w_image":       &w.Image,
	} {
		if *dst, err = floatParam(q, name); err != nil {
			return nil, err
		}
	}
	if w.IsZero() {
		return nil, nil
	}
	return &w, nil
}

// applyFilters reads the shared limit, date and tag filters into req.
func applyFilters(q url.Values, req *models.SearchRequest) error {
	limit, err := intParam(q, "limit")
	if err != nil {
		return err
	}
	rng, err := dateRangeParam(q)
	if err != nil {
		return err
	}
	weights, err := weightsParam(q)
	if err != nil {
		return err
	}
	req.Limit = limit
	req.Range = rng
	req.Tags = tagsParam(q)
	req.Weights = weights
	return nil
}
