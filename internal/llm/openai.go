// Package llm talks to the hosted chat-completion model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"cabot/internal/domain"
	"cabot/internal/logger"
)

// Config configures the chat-completion client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	Timeout     time.Duration
	Logger      *zap.Logger
}

// ChatClient sends message lists to an OpenAI-compatible chat endpoint.
// It performs no retries.
type ChatClient struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *zap.Logger
}

// NewChatClient reads the API key from cfg.APIKeyEnv.
func NewChatClient(cfg Config) (*ChatClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrAuthentication, cfg.APIKeyEnv)
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &ChatClient{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: cfg.Temperature,
		log:         logger.OrNop(cfg.Logger),
	}, nil
}

// Complete returns the text of the first choice.
func (c *ChatClient) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.log.Error("chat completion failed", zap.String("model", c.model), zap.Error(err))
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	c.log.Info("chat completion",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var urlErr *url.Error
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &urlErr):
		return fmt.Errorf("%w: chat completion: %v", domain.ErrConnectivity, err)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: chat completion: %v", domain.ErrAuthentication, err)
	case status == http.StatusNotFound || status >= 500:
		return fmt.Errorf("%w: chat completion: %v", domain.ErrConnectivity, err)
	}
	return fmt.Errorf("chat completion: %w", err)
}
