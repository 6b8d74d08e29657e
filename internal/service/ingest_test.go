package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabot/internal/chunker"
	"cabot/internal/domain"
	"cabot/internal/vectorstore/memory"
)

func TestIngestBuildsCollection(t *testing.T) {
	loader := &fakeLoader{docs: []domain.Document{
		{ID: "a1", Source: "Resources/a.pdf", PageLabel: "1", Content: strings.Repeat("income tax ", 30)},
		{ID: "a2", Source: "Resources/a.pdf", PageLabel: "2", Content: "goods and services tax"},
	}}
	emb := &letterEmbedder{}
	store := memory.NewStorage()
	svc := NewIngestService(loader, chunker.NewRecursiveChunker(100, 40), emb, store, 2, nil)

	report, err := svc.Ingest(context.Background(), "Resources")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 26, report.Dimension)
	assert.Greater(t, report.Chunks, 2)
	assert.Equal(t, report.Chunks, store.Len())
	assert.Equal(t, (report.Chunks+1)/2, emb.calls)

	// re-running rebuilds instead of appending
	_, err = svc.Ingest(context.Background(), "Resources")
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, store.Len())

	chat := NewChatService(emb, store, &fakeModel{}, ChatOptions{})
	res, err := chat.Retrieve(context.Background(), "goods and services", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "2", res[0].Chunk.PageLabel)
	assert.Equal(t, "Resources/a.pdf", res[0].Chunk.Source)
}

func TestIngestNoText(t *testing.T) {
	svc := NewIngestService(&fakeLoader{}, chunker.NewRecursiveChunker(100, 0), &letterEmbedder{}, memory.NewStorage(), 8, nil)
	_, err := svc.Ingest(context.Background(), "empty")
	assert.Error(t, err)
}

func TestIngestEmbedFailureKeepsPreviousIndex(t *testing.T) {
	loader := &fakeLoader{docs: []domain.Document{{ID: "d", Source: "x.pdf", PageLabel: "1", Content: "tds rates"}}}
	emb := &letterEmbedder{}
	store := memory.NewStorage()
	svc := NewIngestService(loader, chunker.NewRecursiveChunker(100, 0), emb, store, 8, nil)
	_, err := svc.Ingest(context.Background(), "r")
	require.NoError(t, err)

	emb.err = errBoom
	_, err = svc.Ingest(context.Background(), "r")
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, store.Len())
}

func TestIngestLoaderError(t *testing.T) {
	svc := NewIngestService(&fakeLoader{err: errBoom}, chunker.NewRecursiveChunker(100, 0), &letterEmbedder{}, memory.NewStorage(), 8, nil)
	_, err := svc.Ingest(context.Background(), "r")
	assert.ErrorIs(t, err, errBoom)
}
