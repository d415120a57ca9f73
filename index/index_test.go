package index

import (
	"bytes"
	"sync"
	"testing"

	"github.com/hatindex/hat"
	"github.com/hatindex/hat/consolidate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	cfg := hat.DefaultConfig(4, hat.Cosine)
	idx, err := New(cfg)
	require.NoError(t, err)
	return idx
}

func TestAddThenSearchSelfRetrieval(t *testing.T) {
	idx := newTestIndex(t)
	id, err := idx.Add([]float32{1, 0, 0, 0})
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestAddDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Add([]float32{1, 0})
	require.Error(t, err)
	var herr *hat.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hat.DimensionMismatch, herr.Code)
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Search([]float32{1, 0}, 1)
	require.Error(t, err)
}

func TestConcurrentConsolidateFailsFastWithBusy(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 50; i++ {
		_, err := idx.Add([]float32{float32(i), 0, 0, 0})
		require.NoError(t, err)
	}

	require.True(t, idx.eng.TryBegin())
	defer idx.eng.Finish()

	_, err := idx.Consolidate(consolidate.Light)
	require.Error(t, err)
	assert.ErrorIs(t, err, hat.ErrBusy)
}

func TestConsolidateLightToCompletion(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 20; i++ {
		_, err := idx.Add([]float32{float32(i), 0, 0, 0})
		require.NoError(t, err)
	}
	for {
		report, err := idx.Consolidate(consolidate.Light)
		require.NoError(t, err)
		if report.Done {
			break
		}
	}
}

func TestSaveLoadPreservesSearchResults(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 15; i++ {
		_, err := idx.Add([]float32{float32(i), float32(i % 3), 0, 1})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	loaded, err := Load(&buf, hat.DefaultConfig(4, hat.Cosine))
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())

	query := []float32{3, 0, 0, 1}
	want, err := idx.Search(query, 5)
	require.NoError(t, err)
	got, err := loaded.Search(query, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConcurrentAddsProduceUniqueIDs(t *testing.T) {
	idx := newTestIndex(t)
	const n = 100
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := idx.Add([]float32{float32(i), 0, 0, 0})
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Equal(t, n, idx.Len())
}
