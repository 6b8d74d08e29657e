package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cabot/internal/domain"
	"cabot/internal/logger"
	"cabot/internal/metrics"
)

// IngestReport summarises one ingestion run.
type IngestReport struct {
	Pages     int
	Chunks    int
	Dimension int
	Took      time.Duration
}

// IngestService loads PDFs, chunks them, embeds every chunk and rebuilds
// the collection from scratch.
type IngestService struct {
	loader    domain.DocumentLoader
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     domain.VectorStore
	batchSize int
	log       *zap.Logger
}

func NewIngestService(loader domain.DocumentLoader, chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, batchSize int, log *zap.Logger) *IngestService {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &IngestService{loader: loader, chunker: chunker, embedder: embedder, store: store, batchSize: batchSize, log: logger.OrNop(log)}
}

// Ingest indexes every PDF in dir. All embeddings are computed before the
// collection is dropped, so a failed run leaves the previous index intact.
func (s *IngestService) Ingest(ctx context.Context, dir string) (report IngestReport, err error) {
	start := time.Now()
	defer func() {
		metrics.IngestionRuns.WithLabelValues(fmt.Sprint(err == nil)).Inc()
	}()

	docs, err := s.loader.LoadDir(dir)
	if err != nil {
		return report, err
	}
	report.Pages = len(docs)

	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := s.chunker.Chunk(d)
		if err != nil {
			return report, fmt.Errorf("chunk %s page %s: %w", d.Source, d.PageLabel, err)
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return report, fmt.Errorf("no PDF text found in %s", dir)
	}

	vectors := make([][]float64, 0, len(chunks))
	for i := 0; i < len(chunks); i += s.batchSize {
		end := min(i+s.batchSize, len(chunks))
		texts := make([]string, 0, end-i)
		for _, c := range chunks[i:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("embed chunks %d-%d: %w", i, end, err)
		}
		vectors = append(vectors, vecs...)
		s.log.Debug("embedded batch", zap.Int("from", i), zap.Int("to", end))
	}
	report.Dimension = len(vectors[0])

	if err := s.store.Clear(ctx); err != nil {
		return report, err
	}
	if err := s.store.Init(ctx, report.Dimension); err != nil {
		return report, err
	}
	if err := s.store.Upsert(ctx, chunks, vectors); err != nil {
		return report, err
	}
	report.Chunks = len(chunks)
	report.Took = time.Since(start)
	metrics.ChunksIngested.Add(float64(len(chunks)))
	s.log.Info("ingestion finished",
		zap.String("dir", dir),
		zap.Int("pages", report.Pages),
		zap.Int("chunks", report.Chunks),
		zap.String("embedder", s.embedder.Name()),
		zap.Duration("took", report.Took),
	)
	return report, nil
}
