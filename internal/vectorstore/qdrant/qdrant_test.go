package qdrant

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cabot/internal/domain"
)

// fakeQdrant holds one in-memory collection behind the gRPC services.
type fakeQdrant struct {
	mu       sync.Mutex
	exists   bool
	size     uint64
	distance qdrant.Distance
	points   []*qdrant.PointStruct
	limit    uint64
	hits     []*qdrant.ScoredPoint
	failWith codes.Code
}

func (f *fakeQdrant) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeQdrant) fail() error {
	if f.failWith != codes.OK {
		return status.Error(f.failWith, "injected")
	}
	return nil
}

func errMissing() error {
	return status.Error(codes.NotFound, "Not found: Collection `ca` doesn't exist!")
}

type fakeCollections struct {
	qdrant.UnimplementedCollectionsServer
	*fakeQdrant
}

func (f fakeCollections) CollectionExists(_ context.Context, _ *qdrant.CollectionExistsRequest) (*qdrant.CollectionExistsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &qdrant.CollectionExistsResponse{Result: &qdrant.CollectionExists{Exists: f.exists}}, nil
}

func (f fakeCollections) Create(_ context.Context, req *qdrant.CreateCollection) (*qdrant.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	params := req.GetVectorsConfig().GetParams()
	f.exists, f.size, f.distance = true, params.GetSize(), params.GetDistance()
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func (f fakeCollections) Delete(_ context.Context, _ *qdrant.DeleteCollection) (*qdrant.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return nil, errMissing()
	}
	f.exists, f.points = false, nil
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	qdrant.UnimplementedPointsServer
	*fakeQdrant
}

func (f fakePoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return nil, errMissing()
	}
	f.points = append(f.points, req.GetPoints()...)
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}}, nil
}

func (f fakePoints) Query(_ context.Context, req *qdrant.QueryPoints) (*qdrant.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	if !f.exists {
		return nil, errMissing()
	}
	f.limit = req.GetLimit()
	return &qdrant.QueryResponse{Result: f.hits}, nil
}

func startFake(t *testing.T, f *fakeQdrant) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	qdrant.RegisterCollectionsServer(srv, fakeCollections{fakeQdrant: f})
	qdrant.RegisterPointsServer(srv, fakePoints{fakeQdrant: f})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func newTestStorage(t *testing.T, addr string) *Storage {
	t.Helper()
	s, err := NewStorage(Config{URL: addr, Collection: "ca"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func metadata(fields map[string]*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
}

func TestInitUpsertSearch(t *testing.T) {
	f := &fakeQdrant{hits: []*qdrant.ScoredPoint{
		{Score: 0.9, Payload: map[string]*qdrant.Value{
			"page_content": qdrant.NewValueString("Section 80C"),
			"metadata": metadata(map[string]*qdrant.Value{
				"page_label": qdrant.NewValueString("12"),
				"source":     qdrant.NewValueString("Resources/it.pdf"),
				"index":      qdrant.NewValueInt(3),
			}),
		}},
		{Score: 0.5, Payload: map[string]*qdrant.Value{
			"page_content": qdrant.NewValueString("GST"),
			"metadata":     metadata(map[string]*qdrant.Value{"page_label": qdrant.NewValueInt(4)}),
		}},
	}}
	s := newTestStorage(t, startFake(t, f))
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, 3))
	f.locked(func() {
		assert.EqualValues(t, 3, f.size)
		assert.Equal(t, qdrant.Distance_Cosine, f.distance)
	})
	require.NoError(t, s.Exists(ctx))

	chunks := []domain.Chunk{{ChunkID: "d:0", Text: "x", PageLabel: "1", Source: "a.pdf"}}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float64{{1, 0, 0}}))
	var stored []*qdrant.PointStruct
	f.locked(func() { stored = f.points })
	require.Len(t, stored, 1)
	_, err := uuid.Parse(stored[0].GetId().GetUuid())
	assert.NoError(t, err)
	assert.Equal(t, "x", stored[0].GetPayload()["page_content"].GetStringValue())
	md := stored[0].GetPayload()["metadata"].GetStructValue().GetFields()
	assert.Equal(t, "1", md["page_label"].GetStringValue())
	assert.Equal(t, "a.pdf", md["source"].GetStringValue())
	assert.EqualValues(t, 0, md["index"].GetIntegerValue())

	res, err := s.Search(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	f.locked(func() { assert.EqualValues(t, 2, f.limit) })
	require.Len(t, res, 2)
	assert.Equal(t, "Section 80C", res[0].Chunk.Text)
	assert.Equal(t, "12", res[0].Chunk.PageLabel)
	assert.Equal(t, "Resources/it.pdf", res[0].Chunk.Source)
	assert.Equal(t, 3, res[0].Chunk.Index)
	assert.InDelta(t, 0.9, res[0].Score, 1e-6)
	assert.Equal(t, "4", res[1].Chunk.PageLabel)
	assert.Empty(t, res[1].Chunk.Source)
}

func TestUpsertLengthMismatch(t *testing.T) {
	s := newTestStorage(t, "localhost:6334")
	err := s.Upsert(context.Background(), []domain.Chunk{{}}, nil)
	assert.Error(t, err)
}

func TestExistsMissingCollection(t *testing.T) {
	s := newTestStorage(t, startFake(t, &fakeQdrant{}))
	err := s.Exists(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectivity)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSearchMissingCollection(t *testing.T) {
	s := newTestStorage(t, startFake(t, &fakeQdrant{}))
	_, err := s.Search(context.Background(), []float64{1, 0}, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectivity)
	assert.Equal(t, domain.KindConnectivity, domain.Classify(err))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestUpsertMissingCollection(t *testing.T) {
	s := newTestStorage(t, startFake(t, &fakeQdrant{}))
	err := s.Upsert(context.Background(), []domain.Chunk{{ChunkID: "d:0"}}, [][]float64{{1}})
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestStatusCodesMapToKinds(t *testing.T) {
	cases := map[codes.Code]domain.ErrorKind{
		codes.Unauthenticated:  domain.KindAuthentication,
		codes.PermissionDenied: domain.KindAuthentication,
		codes.Unavailable:      domain.KindConnectivity,
		codes.InvalidArgument:  domain.KindGeneric,
	}
	for code, want := range cases {
		t.Run(code.String(), func(t *testing.T) {
			s := newTestStorage(t, startFake(t, &fakeQdrant{exists: true, failWith: code}))
			_, err := s.Search(context.Background(), []float64{1}, 2)
			require.Error(t, err)
			assert.Equal(t, want, domain.Classify(err))
		})
	}
}

func TestUnreachableIsConnectivity(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	_, err = newTestStorage(t, addr).Search(context.Background(), []float64{1}, 2)
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestClearIgnoresMissing(t *testing.T) {
	f := &fakeQdrant{}
	s := newTestStorage(t, startFake(t, f))
	assert.NoError(t, s.Clear(context.Background()))

	f.locked(func() { f.exists = true })
	assert.NoError(t, s.Clear(context.Background()))
	f.locked(func() { assert.False(t, f.exists) })
}

func TestParseAddr(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		tls  bool
	}{
		{"localhost:6334", "localhost", 6334, false},
		{"http://qdrant:7000/", "qdrant", 7000, false},
		{"https://cloud.qdrant.io", "cloud.qdrant.io", defaultPort, true},
		{"qdrant", "qdrant", defaultPort, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			host, port, tls, err := parseAddr(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.host, host)
			assert.Equal(t, tc.port, port)
			assert.Equal(t, tc.tls, tls)
		})
	}
	_, _, _, err := parseAddr("")
	assert.Error(t, err)
	_, _, _, err = parseAddr("qdrant:abc")
	assert.Error(t, err)
}

func TestPointIDStable(t *testing.T) {
	c := domain.Chunk{ChunkID: "d:1", Source: "a.pdf"}
	assert.Equal(t, pointID(c), pointID(c))
	assert.NotEqual(t, pointID(c), pointID(domain.Chunk{ChunkID: "d:2", Source: "a.pdf"}))
}
