package container

import (
	"testing"

	"github.com/hatindex/hat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	cfg := hat.DefaultConfig(3, hat.Cosine)
	cfg.MaxChunkPoints = 4
	cfg.MaxDocChunks = 2
	return NewTree(cfg)
}

func TestAddRejectsWrongDimensionality(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.Add([]float32{1, 2})
	require.Error(t, err)
	var herr *hat.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hat.DimensionMismatch, herr.Code)
}

func TestAddAssignsMonotonicIDs(t *testing.T) {
	tree := newTestTree(t)
	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := tree.Add([]float32{float32(i), 0, 0})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
	assert.Equal(t, 5, tree.Len())
}

func TestAddLazilyCreatesSessionAndDocument(t *testing.T) {
	tree := newTestTree(t)
	assert.Equal(t, hat.GlobalID, tree.ActiveSessionID)
	assert.Equal(t, hat.GlobalID, tree.ActiveDocumentID)

	_, err := tree.Add([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.NotEqual(t, hat.GlobalID, tree.ActiveSessionID)
	assert.NotEqual(t, hat.GlobalID, tree.ActiveDocumentID)
}

func TestAddStartsNewChunkAtCapacity(t *testing.T) {
	tree := newTestTree(t)
	doc := tree.NewDocument()
	for i := 0; i < tree.Config.MaxChunkPoints; i++ {
		_, err := tree.Add([]float32{float32(i), 0, 0})
		require.NoError(t, err)
	}
	docContainer := tree.MustGet(doc)
	require.Len(t, docContainer.Children, 1)

	_, err := tree.Add([]float32{99, 0, 0})
	require.NoError(t, err)
	docContainer = tree.MustGet(doc)
	assert.Len(t, docContainer.Children, 2)
}

func TestChunkCentroidIsExactMean(t *testing.T) {
	tree := newTestTree(t)
	doc := tree.NewDocument()
	vectors := [][]float32{{1, 0, 0}, {3, 0, 0}, {5, 0, 0}}
	for _, v := range vectors {
		_, err := tree.Add(v)
		require.NoError(t, err)
	}
	chunk := tree.tailChunk(tree.MustGet(doc))
	assert.InDelta(t, 3.0, chunk.Centroid[0], 1e-5)
}

func TestGlobalCountTracksEveryAdd(t *testing.T) {
	tree := newTestTree(t)
	for i := 0; i < 10; i++ {
		_, err := tree.Add([]float32{float32(i), 0, 0})
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(10), tree.Global().Count)
}

func TestDriftThresholdStopsAncestorPropagation(t *testing.T) {
	cfg := hat.DefaultConfig(3, hat.Cosine)
	cfg.MaxChunkPoints = 1000
	cfg.CentroidDriftTau = 0.5
	tree := NewTree(cfg)
	doc := tree.NewDocument()
	docContainer := tree.MustGet(doc)

	// First add establishes a sizeable centroid at every level.
	_, err := tree.Add([]float32{10, 0, 0})
	require.NoError(t, err)
	docCentroidAfterFirst := append([]float32(nil), docContainer.Centroid...)

	// A tiny nudge should fall below tau and stop the document (and
	// above) update, while the chunk itself always updates exactly.
	_, err = tree.Add([]float32{10.0001, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, docCentroidAfterFirst, docContainer.Centroid)
	assert.Equal(t, uint64(2), docContainer.Count)
}

func TestNewSessionIsIdempotentWithoutInserts(t *testing.T) {
	tree := newTestTree(t)
	first := tree.NewSession()
	second := tree.NewSession()
	assert.Equal(t, first, second)
}

func TestNewSessionAfterInsertsStartsFresh(t *testing.T) {
	tree := newTestTree(t)
	first := tree.NewSession()
	_, err := tree.Add([]float32{1, 0, 0})
	require.NoError(t, err)
	second := tree.NewSession()
	assert.NotEqual(t, first, second)
}
