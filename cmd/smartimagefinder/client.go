package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
)

// envelope is the API response wrapper.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

// getData issues GET serverURL+path and decodes the envelope's data into out.
func getData(serverURL, path string, query url.Values, out interface{}) error {
	u := strings.TrimRight(serverURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := httpClient.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp.StatusCode, resp.Body, out)
}

func decodeEnvelope(status int, body io.Reader, out interface{}) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(b)))
	}
	if env.Error != nil {
		return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}
	if status >= 400 {
		return fmt.Errorf("server returned %d", status)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// searchValues encodes the filters of req as API query parameters.
func searchValues(req *models.SearchRequest) url.Values {
	v := url.Values{}
	if req.Query != "" {
		v.Set("q", req.Query)
	}
	if req.Type != "" {
		v.Set("mode", string(req.Type))
	}
	if req.TextMatch != "" {
		v.Set("text_match", string(req.TextMatch))
	}
	if req.Limit > 0 {
		v.Set("limit", strconv.Itoa(req.Limit))
	}
	if len(req.Tags) > 0 {
		v.Set("tags", strings.Join(req.Tags, ","))
	}
	if req.Range.Start != nil {
		v.Set("start_date", req.Range.Start.Format(time.RFC3339Nano))
	}
	if req.Range.End != nil {
		v.Set("end_date", req.Range.End.Format(time.RFC3339Nano))
	}
	if req.SimilarTo != "" {
		if req.VectorMatch != "" {
			v.Set("search_type", string(req.VectorMatch))
		}
	} else if req.VectorMatch != "" {
		v.Set("vector_type", string(req.VectorMatch))
	}
	return v
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	path := "/api/v1/search/text"
	if req.SimilarTo != "" {
		path = "/api/v1/search/similar/" + url.PathEscape(req.SimilarTo)
	}
	var resp models.SearchResponse
	if err := getData(serverURL, path, searchValues(req), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func statusViaHTTP(serverURL string) (map[string]interface{}, error) {
	var st map[string]interface{}
	if err := getData(serverURL, "/api/v1/system/status", nil, &st); err != nil {
		return nil, err
	}
	return st, nil
}
