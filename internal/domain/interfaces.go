package domain

import "context"

// Metadata keys carried by every chunk stored in the collection.
const (
	MetaPageLabel = "page_label"
	MetaSource    = "source"
)

// Document is a single page of extracted PDF text.
type Document struct {
	ID        string
	Source    string
	PageLabel string
	Content   string
}

// Chunk is a contiguous span of document text stored alongside its embedding.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
	PageLabel  string
	Source     string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry in a chat request.
type Message struct {
	Role    Role
	Content string
}

// Embedder converts text into vectors. The same model must be used for
// ingestion and retrieval.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Chunker splits documents into overlapping chunks.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Exists(ctx context.Context) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// ChatModel sends an ordered message list to a chat-completion service.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// DocumentLoader reads source documents from a folder.
type DocumentLoader interface {
	LoadDir(dir string) ([]Document, error)
}
