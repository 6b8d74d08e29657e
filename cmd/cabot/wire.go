package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cabot/internal/chunker"
	"cabot/internal/config"
	"cabot/internal/domain"
	"cabot/internal/embedding/openai"
	"cabot/internal/llm"
	"cabot/internal/loader"
	"cabot/internal/prompt"
	"cabot/internal/service"
	"cabot/internal/vectorstore/memory"
	"cabot/internal/vectorstore/qdrant"
)

// components are the adapters shared by every command.
type components struct {
	cfg   *config.AppConfig
	log   *zap.Logger
	store domain.VectorStore
	close func() error
}

func buildComponents(cfg *config.AppConfig, log *zap.Logger) (*components, error) {
	comps := &components{cfg: cfg, log: log, close: func() error { return nil }}
	switch cfg.VectorStore.Type {
	case "memory":
		comps.store = memory.NewStorage()
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st, err := qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		comps.store, comps.close = st, st.Close
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
	return comps, nil
}

// embedder builds the embeddings client. Ingestion retries transient
// failures; the chat path makes a single attempt per turn.
func (c *components) embedder(retries int) (domain.Embedder, error) {
	emb, err := openai.NewClient(openai.Config{
		BaseURL:    c.cfg.Embedder.BaseURL,
		APIKeyEnv:  c.cfg.Embedder.APIKeyEnv,
		Model:      c.cfg.Embedder.Model,
		Timeout:    time.Duration(c.cfg.Embedder.TimeoutSecs) * time.Second,
		MaxRetries: retries,
		Logger:     c.log.Named("embedder"),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder init failed: %w", err)
	}
	return emb, nil
}

func (c *components) ingestService() (*service.IngestService, error) {
	emb, err := c.embedder(c.cfg.Embedder.MaxRetries)
	if err != nil {
		return nil, err
	}
	return service.NewIngestService(
		loader.NewPDFLoader(c.log.Named("loader")),
		chunker.NewRecursiveChunker(c.cfg.Chunker.ChunkSize, c.cfg.Chunker.ChunkOverlap),
		emb,
		c.store,
		c.cfg.Embedder.BatchSize,
		c.log.Named("ingest"),
	), nil
}

// chatService builds the query pipeline. An in-memory store starts empty,
// so it is filled from the resources folder first.
func (c *components) chatService(ctx context.Context) (*service.ChatService, error) {
	if c.cfg.VectorStore.Type == "memory" {
		ingest, err := c.ingestService()
		if err != nil {
			return nil, err
		}
		if _, err := ingest.Ingest(ctx, c.cfg.Ingest.ResourcesDir); err != nil {
			return nil, fmt.Errorf("in-memory ingestion failed: %w", err)
		}
	}
	emb, err := c.embedder(0)
	if err != nil {
		return nil, err
	}
	model, err := llm.NewChatClient(llm.Config{
		BaseURL:     c.cfg.Chat.BaseURL,
		APIKeyEnv:   c.cfg.Chat.APIKeyEnv,
		Model:       c.cfg.Chat.Model,
		Temperature: c.cfg.Chat.Temperature,
		Timeout:     time.Duration(c.cfg.Chat.TimeoutSecs) * time.Second,
		Logger:      c.log.Named("llm"),
	})
	if err != nil {
		return nil, err
	}
	return service.NewChatService(emb, c.store, model, service.ChatOptions{
		SystemPrompt: prompt.CASupport,
		TopK:         c.cfg.Retrieval.TopK,
		Logger:       c.log.Named("chat"),
	}), nil
}
