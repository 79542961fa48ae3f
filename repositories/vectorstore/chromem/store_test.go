package chromem

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/repositories"
)

func newCollection(t *testing.T) (*chromem.DB, *chromem.Collection) {
	t.Helper()
	db := chromem.NewDB()
	c, err := db.CreateCollection("knowledge-base", nil, rejectTextEmbedding)
	require.NoError(t, err)

	ctx := context.Background()
	docs := []chromem.Document{
		{ID: "1", Content: "Gli omega-3 riducono i trigliceridi.", Metadata: map[string]string{"source": "cardio.pdf"}, Embedding: []float32{1, 0, 0}},
		{ID: "2", Content: "Il calcio è essenziale per le ossa.", Metadata: map[string]string{"source": "ossa.pdf"}, Embedding: []float32{0, 1, 0}},
		{ID: "3", Content: "La caffeina aumenta la vigilanza.", Embedding: []float32{0.7, 0.7, 0}},
	}
	for _, d := range docs {
		require.NoError(t, c.AddDocument(ctx, d))
	}
	return db, c
}

func TestStore_Query(t *testing.T) {
	_, c := newCollection(t)
	s := NewStore(c, zap.NewNop())

	docs, err := s.Query(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "1", docs[0].ID)
	assert.InDelta(t, 1.0, docs[0].Score, 1e-5)
	assert.Equal(t, "Gli omega-3 riducono i trigliceridi.", docs[0].Text())
	assert.Equal(t, "cardio.pdf", docs[0].Source())
	assert.Equal(t, "3", docs[1].ID)
	assert.Greater(t, docs[0].Score, docs[1].Score)
}

func TestStore_Query_ClampsTopK(t *testing.T) {
	_, c := newCollection(t)
	s := NewStore(c, zap.NewNop())

	docs, err := s.Query(context.Background(), []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestStore_Query_EmptyCollection(t *testing.T) {
	db := chromem.NewDB()
	c, err := db.CreateCollection("empty", nil, rejectTextEmbedding)
	require.NoError(t, err)

	docs, err := NewStore(c, zap.NewNop()).Query(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_Query_DimensionMismatch(t *testing.T) {
	_, c := newCollection(t)
	s := NewStore(c, zap.NewNop())

	_, err := s.Query(context.Background(), []float32{1, 0}, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, repositories.ErrDimensionMismatch)
}

func TestOpen_RoundTripsExport(t *testing.T) {
	db, _ := newCollection(t)
	path := filepath.Join(t.TempDir(), "db.gob")
	require.NoError(t, db.ExportToFile(path, false, ""))

	s, err := Open(path, "", "knowledge-base", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))

	docs, err := s.Query(context.Background(), []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2", docs[0].ID)
	assert.NoError(t, s.Close())
}

func TestOpen_MissingCollection(t *testing.T) {
	db, _ := newCollection(t)
	path := filepath.Join(t.TempDir(), "db.gob")
	require.NoError(t, db.ExportToFile(path, false, ""))

	_, err := Open(path, "", "other", zap.NewNop())
	assert.Error(t, err)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.gob"), "", "knowledge-base", zap.NewNop())
	assert.Error(t, err)
}
