package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cabot/internal/domain"
)

const (
	upsertBatch = 256
	defaultPort = 6334
)

// Storage is a gRPC client to a single Qdrant collection.
// Points use the page_content/metadata payload layout so collections
// written by other LangChain-style indexers stay readable.
type Storage struct {
	client     *qdrant.Client
	collection string
	timeout    time.Duration
}

// Config points at the Qdrant gRPC endpoint. URL is host[:port], optionally
// prefixed with http:// or https://; https enables TLS.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) (*Storage, error) {
	host, port, useTLS, err := parseAddr(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 useTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant %s: %v", domain.ErrConnectivity, cfg.URL, err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{client: client, collection: cfg.Collection, timeout: timeout}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error { return s.client.Close() }

// Init creates the collection with cosine distance.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	return s.wrap("create collection", err)
}

// Exists fails with domain.ErrConnectivity when Qdrant is unreachable or
// the collection has not been created yet.
func (s *Storage) Exists(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return s.wrap("collection exists", err)
	}
	if !ok {
		return s.missing()
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	wait := true
	for start := 0; start < len(chunks); start += upsertBatch {
		end := min(start+upsertBatch, len(chunks))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(pointID(chunks[i])),
				Vectors: qdrant.NewVectors(toFloat32(vectors[i])...),
				Payload: payload(chunks[i]),
			})
		}
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		_, err := s.client.Upsert(cctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		cancel()
		if err != nil {
			return s.wrap("upsert", err)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 2
	}
	limit := uint64(topK)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(toFloat32(vector)...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, s.wrap("search", err)
	}
	results := make([]domain.SearchResult, 0, len(points))
	for _, p := range points {
		md := p.GetPayload()["metadata"].GetStructValue().GetFields()
		chunk := domain.Chunk{
			Text:       p.GetPayload()["page_content"].GetStringValue(),
			PageLabel:  valueString(md[domain.MetaPageLabel]),
			Source:     valueString(md[domain.MetaSource]),
			DocumentID: valueString(md["document_id"]),
			ChunkID:    valueString(md["chunk_id"]),
			Index:      int(md["index"].GetIntegerValue()),
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: float64(p.GetScore())})
	}
	return results, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.client.DeleteCollection(ctx, s.collection)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return s.wrap("delete collection", err)
}

func (s *Storage) missing() error {
	return fmt.Errorf("%w: collection %q does not exist; run `cabot ingest` first", domain.ErrConnectivity, s.collection)
}

// wrap maps gRPC status codes onto the domain error kinds.
func (s *Storage) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w (qdrant %s: %v)", s.missing(), op, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: qdrant %s: %v", domain.ErrAuthentication, op, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Unknown:
		return fmt.Errorf("%w: qdrant %s: %v", domain.ErrConnectivity, op, err)
	}
	return fmt.Errorf("qdrant %s: %w", op, err)
}

func payload(c domain.Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"page_content": qdrant.NewValueString(c.Text),
		"metadata": {Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: map[string]*qdrant.Value{
			domain.MetaPageLabel: qdrant.NewValueString(c.PageLabel),
			domain.MetaSource:    qdrant.NewValueString(c.Source),
			"document_id":        qdrant.NewValueString(c.DocumentID),
			"chunk_id":           qdrant.NewValueString(c.ChunkID),
			"index":              qdrant.NewValueInt(int64(c.Index)),
		}}}},
	}
}

func pointID(c domain.Chunk) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.Source+"#"+c.ChunkID)).String()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// valueString renders a payload value; other indexers store page_label as a number.
func valueString(v *qdrant.Value) string {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(k.DoubleValue, 'g', -1, 64)
	}
	return ""
}

func parseAddr(raw string) (host string, port int, useTLS bool, err error) {
	addr := raw
	switch {
	case strings.HasPrefix(addr, "https://"):
		addr, useTLS = strings.TrimPrefix(addr, "https://"), true
	case strings.HasPrefix(addr, "http://"):
		addr = strings.TrimPrefix(addr, "http://")
	}
	addr = strings.TrimSuffix(addr, "/")
	if addr == "" {
		return "", 0, false, errors.New("qdrant url is empty")
	}
	h, p, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		return addr, defaultPort, useTLS, nil
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, false, fmt.Errorf("qdrant url %q: invalid port", raw)
	}
	return h, port, useTLS, nil
}
