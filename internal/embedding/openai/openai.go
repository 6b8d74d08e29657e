package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"cabot/internal/domain"
	"cabot/internal/logger"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client     *goopenai.Client
	model      string
	maxRetries int
	retryDelay func(attempt int) time.Duration
	log        *zap.Logger
}

// Config configures the OpenAI-compatible embeddings client.
// MaxRetries bounds retries of throttled or failed requests; zero means a
// single attempt.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Logger     *zap.Logger
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrAuthentication, cfg.APIKeyEnv)
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: t}
	return &Client{
		client:     goopenai.NewClientWithConfig(oc),
		model:      cfg.Model,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: retryDelay,
		log:        logger.OrNop(cfg.Logger),
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.model),
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay(attempt - 1)):
			}
		}
		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err == nil {
			return decode(resp, len(texts))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = classify(err)
		if !retryable(err) {
			return nil, lastErr
		}
		c.log.Warn("embedding request failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.maxRetries),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func decode(resp goopenai.EmbeddingResponse, want int) ([][]float64, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(resp.Data))
	}
	vecs := make([][]float64, want)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= want || len(d.Embedding) == 0 {
			return nil, errors.New("malformed embedding in response")
		}
		v := make([]float64, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float64(x)
		}
		vecs[d.Index] = v
	}
	for _, v := range vecs {
		if v == nil {
			return nil, errors.New("no embedding returned")
		}
	}
	return vecs, nil
}

// statusOf returns the HTTP status carried by err, or 0 for transport failures.
func statusOf(err error) int {
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		return reqErr.HTTPStatusCode
	}
	return 0
}

func retryable(err error) bool {
	status := statusOf(err)
	if status == 0 {
		var urlErr *url.Error
		return errors.As(err, &urlErr)
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func classify(err error) error {
	var urlErr *url.Error
	status := statusOf(err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: openai embeddings: %v", domain.ErrAuthentication, err)
	case status == http.StatusTooManyRequests || status == http.StatusNotFound || status >= 500:
		return fmt.Errorf("%w: openai embeddings: %v", domain.ErrConnectivity, err)
	case status == 0 && errors.As(err, &urlErr):
		return fmt.Errorf("%w: openai embeddings: %v", domain.ErrConnectivity, err)
	}
	return fmt.Errorf("openai embeddings: %w", err)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
