// Package analysis asks an OpenAI-compatible vision chat model to draft a title,
// a description and tags for an image.
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

const maxRetries = 3

// DefaultPrompt asks for a short title, a one-sentence description and up to three tags.
const DefaultPrompt = `Analyze this image and write a title of at most ten words, a description of at most fifty words and one to three keyword tags.

Consider the kind of image (chart, diagram, photo and so on), its main subject, the key information it carries and what it is likely used for.

Reply with JSON only, exactly in this form:
{"title": "...", "description": "...", "tags": ["...", "..."]}`

// Analyzer drafts catalogue text for an image.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (*Result, error)
}

// Result is the model's draft. Empty fields mean the model had nothing to say.
type Result struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// IsEmpty reports whether the result carries no usable text.
func (r *Result) IsEmpty() bool {
	return r == nil || (utils.IsBlank(r.Title) && utils.IsBlank(r.Description) && len(r.Tags) == 0)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Detail  string // low, high, auto
	Prompt  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client calls the /chat/completions endpoint with the image as a data URI.
type Client struct {
	opts          Options
	client        *http.Client
	logger        *zap.Logger
	retryInterval time.Duration
}

// New returns a client for the chat API at opts.BaseURL.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("image analysis requires api_base")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("image analysis requires api_key")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("image analysis requires model")
	}
	switch opts.Detail {
	case "low", "high", "auto":
	default:
		opts.Detail = "low"
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: utils.OrNop(opts.Logger),
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func processingError(format string, args ...interface{}) *apperr.Error {
	return apperr.Unavailablef(format, args...).WithCode(apperr.CodeProcessingError)
}

// Analyze sends data to the vision model and parses its JSON reply.
func (c *Client) Analyze(ctx context.Context, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, apperr.Invalidf("image is empty").WithCode(apperr.CodeInvalidFile)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, apperr.Invalidf("file is not an image (%s)", mt.String()).
			WithCode(apperr.CodeInvalidFile).
			WithDetail("mime_type", mt.String())
	}
	uri := "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data)

	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: uri, Detail: c.opts.Detail}},
				{Type: "text", Text: c.opts.Prompt},
			},
		}},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	start := time.Now()
	var resp chatResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

		httpResp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("chat request failed: %w", err)
		}
		defer httpResp.Body.Close()
		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("failed to read chat response: %w", err)
		}

		switch {
		case httpResp.StatusCode == http.StatusOK:
		case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
			return fmt.Errorf("chat API error %d: %s", httpResp.StatusCode, utils.Truncate(string(respBody), 200))
		default:
			return backoff.Permanent(fmt.Errorf("chat API error %d: %s", httpResp.StatusCode, utils.Truncate(string(respBody), 200)))
		}

		resp = chatResponse{}
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode chat response: %w", err))
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if c.retryInterval > 0 {
		eb.InitialInterval = c.retryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.logger.Warn("image analysis failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return nil, processingError("image analysis failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, processingError("chat response has no choices")
	}

	res, err := ParseResult(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("unreadable analysis reply",
			zap.String("reply", utils.Truncate(resp.Choices[0].Message.Content, 200)),
			zap.Error(err))
		return nil, processingError("%v", err)
	}
	c.logger.Debug("image analyzed", zap.String("model", c.opts.Model), zap.Duration("took", time.Since(start)))
	return res, nil
}

// ParseResult reads the outermost JSON object in a model reply, ignoring any prose
// or code fence around it.
func ParseResult(content string) (*Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("analysis reply has no JSON object")
	}
	var res Result
	if err := json.Unmarshal([]byte(content[start:end+1]), &res); err != nil {
		return nil, fmt.Errorf("failed to parse analysis reply: %w", err)
	}
	res.Title = utils.CollapseSpace(res.Title)
	res.Description = utils.CollapseSpace(res.Description)
	res.Tags = utils.DedupeStrings(res.Tags)
	if res.IsEmpty() {
		return nil, fmt.Errorf("analysis reply has no title, description or tags")
	}
	return &res, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
