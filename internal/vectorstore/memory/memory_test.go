package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabot/internal/domain"
)

func seeded(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{{Text: "east"}, {Text: "north"}, {Text: "north-east"}, {Text: "north again"}},
		[][]float64{{1, 0}, {0, 1}, {1, 1}, {0, 2}},
	))
	return s
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	res, err := seeded(t).Search(context.Background(), []float64{0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	// equal scores keep insertion order
	assert.Equal(t, "north", res[0].Chunk.Text)
	assert.Equal(t, "north again", res[1].Chunk.Text)
	assert.Equal(t, "north-east", res[2].Chunk.Text)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
}

func TestSearchAtMostK(t *testing.T) {
	s := seeded(t)
	for k := 1; k <= 6; k++ {
		res, err := s.Search(context.Background(), []float64{1, 0}, k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res), k)
		for _, r := range res {
			assert.NotEmpty(t, r.Chunk.Text)
		}
	}
}

func TestSearchIsIdempotent(t *testing.T) {
	s := seeded(t)
	a, err := s.Search(context.Background(), []float64{0.3, 0.7}, 2)
	require.NoError(t, err)
	b, err := s.Search(context.Background(), []float64{0.3, 0.7}, 2)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmptyCollection(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	assert.ErrorIs(t, s.Exists(ctx), domain.ErrConnectivity)

	require.NoError(t, s.Init(ctx, 2))
	assert.NoError(t, s.Exists(ctx))
	res, err := s.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(context.Background(), 2))
	err := s.Upsert(context.Background(), []domain.Chunk{{Text: "x"}}, [][]float64{{1}})
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, 0, s.Len())
	assert.Error(t, s.Exists(context.Background()))
}
