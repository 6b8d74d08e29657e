package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"cabot/internal/domain"
	"cabot/internal/history"
	"cabot/internal/logger"
	"cabot/internal/metrics"
	"cabot/internal/prompt"
)

// ErrEmptyQuery is returned for blank input.
var ErrEmptyQuery = errors.New("query is empty")

// Turn is the outcome of one user interaction. On failure Reply holds the
// user-visible error string and Err the cause.
type Turn struct {
	Query   string
	Reply   string
	Sources []domain.SearchResult
	Err     error
}

// Failed reports whether the turn produced an error instead of an answer.
func (t Turn) Failed() bool { return t.Err != nil }

// ChatOptions tunes the retrieve-assemble-generate pipeline.
type ChatOptions struct {
	SystemPrompt string
	TopK         int
	Logger       *zap.Logger
}

// ChatService runs one retrieval-augmented exchange at a time.
type ChatService struct {
	embedder     domain.Embedder
	store        domain.VectorStore
	model        domain.ChatModel
	systemPrompt string
	topK         int
	log          *zap.Logger
}

func NewChatService(embedder domain.Embedder, store domain.VectorStore, model domain.ChatModel, opts ChatOptions) *ChatService {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = prompt.CASupport
	}
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	return &ChatService{
		embedder:     embedder,
		store:        store,
		model:        model,
		systemPrompt: opts.SystemPrompt,
		topK:         opts.TopK,
		log:          logger.OrNop(opts.Logger),
	}
}

// Ready checks that the collection can be queried.
func (s *ChatService) Ready(ctx context.Context) error {
	return s.store.Exists(ctx)
}

// Retrieve embeds query and returns at most k chunks by decreasing similarity.
func (s *ChatService) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = s.topK
	}
	start := time.Now()
	results, err := s.retrieve(ctx, query, k)
	metrics.ObserveRetrieval(time.Since(start), len(results), err)
	if err != nil {
		return nil, err
	}
	out := results[:0]
	for _, r := range results {
		if r.Chunk.Text != "" {
			out = append(out, r)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *ChatService) retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, vec, k)
}

// Ask runs retrieval, prompt assembly and generation for query. Only a
// successful exchange is appended to win; failures leave it untouched.
func (s *ChatService) Ask(ctx context.Context, win *history.Window, query string) Turn {
	turn := Turn{Query: query}
	results, err := s.Retrieve(ctx, query, s.topK)
	if err != nil {
		return s.fail(turn, "retrieval", err)
	}
	turn.Sources = results

	msgs := prompt.BuildMessages(s.systemPrompt, results, win.Messages(), query)
	start := time.Now()
	reply, err := s.model.Complete(ctx, msgs)
	metrics.ObserveGeneration(time.Since(start), err)
	if err != nil {
		return s.fail(turn, "generation", err)
	}

	win.Append(query, reply)
	turn.Reply = reply
	metrics.ObserveTurn("")
	s.log.Info("turn completed",
		zap.Int("sources", len(results)),
		zap.Int("history", win.Len()),
		zap.Int("reply_chars", len(reply)),
	)
	return turn
}

func (s *ChatService) fail(turn Turn, stage string, err error) Turn {
	kind := domain.Classify(err)
	metrics.ObserveTurn(string(kind))
	s.log.Error("turn failed", zap.String("stage", stage), zap.String("kind", string(kind)), zap.Error(err))
	turn.Err = err
	turn.Reply = domain.UserMessage(err)
	return turn
}
