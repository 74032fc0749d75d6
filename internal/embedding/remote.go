package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

const remoteMaxRetries = 3

// RemoteOptions configures a RemoteEmbedder.
type RemoteOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// RemoteEmbedder calls an OpenAI-compatible /embeddings endpoint. Images are sent
// as base64 data URIs, which multimodal embedding services accept as input.
type RemoteEmbedder struct {
	opts          RemoteOptions
	client        *http.Client
	retryInterval time.Duration
}

// NewRemoteEmbedder returns a client for the embeddings API at opts.BaseURL.
func NewRemoteEmbedder(opts RemoteOptions) (*RemoteEmbedder, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("remote embedder requires api_base")
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("remote embedder requires dimensions")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &RemoteEmbedder{opts: opts, client: &http.Client{Timeout: opts.Timeout}}, nil
}

type embedRequest struct {
	Model          string        `json:"model"`
	Input          []interface{} `json:"input"`
	EncodingFormat string        `json:"encoding_format"`
}

type imageInput struct {
	Image string `json:"image"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedText embeds text with the configured model.
func (r *RemoteEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if utils.IsBlank(text) {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	return r.embed(ctx, text)
}

// EmbedImage embeds the image bytes as a data URI.
func (r *RemoteEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: not an image (%s)", ErrInvalidInput, mt.String())
	}
	uri := "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data)
	return r.embed(ctx, imageInput{Image: uri})
}

func (r *RemoteEmbedder) embed(ctx context.Context, input interface{}) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: r.opts.Model, Input: []interface{}{input}, EncodingFormat: "float"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var resp embedResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.BaseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if r.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.opts.APIKey)
		}

		httpResp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("embedding request failed: %w", err)
		}
		defer httpResp.Body.Close()
		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("failed to read embedding response: %w", err)
		}

		switch {
		case httpResp.StatusCode == http.StatusOK:
		case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
			return fmt.Errorf("embedding API error %d: %s", httpResp.StatusCode, utils.Truncate(string(respBody), 200))
		default:
			return backoff.Permanent(fmt.Errorf("embedding API error %d: %s", httpResp.StatusCode, utils.Truncate(string(respBody), 200)))
		}

		resp = embedResponse{}
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode embedding response: %w", err))
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if r.retryInterval > 0 {
		eb.InitialInterval = r.retryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, remoteMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}
	emb := resp.Data[0].Embedding
	if len(emb) != r.opts.Dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(emb), r.opts.Dimensions)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (r *RemoteEmbedder) Dimensions() int {
	return r.opts.Dimensions
}

// Close releases idle connections.
func (r *RemoteEmbedder) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
