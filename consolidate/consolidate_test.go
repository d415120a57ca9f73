package consolidate

import (
	"testing"

	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, maxChunkPoints, maxDocChunks int) *container.Tree {
	t.Helper()
	cfg := hat.DefaultConfig(2, hat.Cosine)
	cfg.MaxChunkPoints = maxChunkPoints
	cfg.MaxDocChunks = maxDocChunks
	return container.NewTree(cfg)
}

// runToCompletion drives an epoch to Done, returning the final call's
// report with Visited/Rebuilt/Splits/Merges/Dropped summed across every
// call in the epoch (each individual Report only covers its own call).
func runToCompletion(t *testing.T, eng *Engine, tree *container.Tree, phase Phase, budget int) Report {
	t.Helper()
	var total Report
	for i := 0; i < 10000; i++ {
		require.True(t, eng.TryBegin())
		r := eng.Run(tree, phase, budget)
		eng.Finish()

		total.Phase = r.Phase
		total.Visited += r.Visited
		total.Rebuilt += r.Rebuilt
		total.Splits += r.Splits
		total.Merges += r.Merges
		total.Dropped += r.Dropped
		if r.Done {
			total.Done = true
			return total
		}
	}
	t.Fatalf("consolidate(%s) did not converge", phase)
	return Report{}
}

func TestLightRecomputeRestoresExactCentroid(t *testing.T) {
	tree := newTestTree(t, 1000, 1000)
	doc := tree.NewDocument()
	for i := 0; i < 7; i++ {
		_, err := tree.Add([]float32{float32(i), float32(i) * 2})
		require.NoError(t, err)
	}
	// Hand-corrupt the document centroid the way sparse propagation can
	// leave it after many tau-gated skips.
	docContainer := tree.MustGet(doc)
	docContainer.Centroid[0] = 999

	eng := NewEngine()
	report := runToCompletion(t, eng, tree, Light, 64)
	assert.Equal(t, Light, report.Phase)

	docContainer = tree.MustGet(doc)
	assert.InDelta(t, 3.0, docContainer.Centroid[0], 1e-4)
	assert.InDelta(t, 6.0, docContainer.Centroid[1], 1e-4)
}

func TestLightPreservesPointSet(t *testing.T) {
	tree := newTestTree(t, 3, 1000)
	for i := 0; i < 20; i++ {
		_, err := tree.Add([]float32{float32(i), 0})
		require.NoError(t, err)
	}
	before := tree.Len()

	eng := NewEngine()
	runToCompletion(t, eng, tree, Light, 4)
	assert.Equal(t, before, tree.Len())
}

func TestBusyOnConcurrentInvocation(t *testing.T) {
	eng := NewEngine()
	require.True(t, eng.TryBegin())
	assert.False(t, eng.TryBegin())
	eng.Finish()
	assert.True(t, eng.TryBegin())
	eng.Finish()
}

func TestMediumSplitsOverfullDocument(t *testing.T) {
	tree := newTestTree(t, 1, 2)
	doc := tree.NewDocument()
	for i := 0; i < 3; i++ {
		_, err := tree.Add([]float32{100, 100})
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := tree.Add([]float32{-100, -100})
		require.NoError(t, err)
	}
	docContainer := tree.MustGet(doc)
	require.Greater(t, len(docContainer.Children), tree.Config.MaxDocChunks)

	eng := NewEngine()
	report := runToCompletion(t, eng, tree, Medium, 64)
	assert.GreaterOrEqual(t, report.Splits, 1)

	session := tree.Global()
	require.Len(t, session.Children, 1)
	sessionContainer := tree.MustGet(session.Children[0])
	assert.Len(t, sessionContainer.Children, 2)
}

func TestMediumMergesSimilarSiblingDocuments(t *testing.T) {
	tree := newTestTree(t, 1000, 1000)
	docA := tree.NewDocument()
	_, err := tree.Add([]float32{1, 1})
	require.NoError(t, err)
	tree.NewDocument()
	_, err = tree.Add([]float32{1, 1})
	require.NoError(t, err)

	session := tree.MustGet(tree.MustGet(docA).ParentID)
	require.Len(t, session.Children, 2)

	eng := NewEngine()
	runToCompletion(t, eng, tree, Medium, 64)
	assert.Len(t, session.Children, 1)
}

func TestDeepDropsEmptyContainers(t *testing.T) {
	tree := newTestTree(t, 1000, 1000)
	tree.NewDocument()
	_, err := tree.Add([]float32{1, 0})
	require.NoError(t, err)
	// A second, never-written document becomes an empty leftover once it
	// stops being active.
	tree.NewDocument()
	tree.NewSession()

	before := tree.Count()
	eng := NewEngine()
	report := runToCompletion(t, eng, tree, Deep, 64)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, before-1, tree.Count())
}

func TestFullRebuildPreservesPointsAndIDs(t *testing.T) {
	tree := newTestTree(t, 3, 2)
	var ids []uint64
	for i := 0; i < 30; i++ {
		if i%10 == 0 {
			tree.NewDocument()
		}
		id, err := tree.Add([]float32{float32(i), float32(-i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	eng := NewEngine()
	report := runToCompletion(t, eng, tree, Full, 8)
	assert.Equal(t, len(ids), report.Rebuilt)
	assert.Equal(t, len(ids), tree.Len())

	for _, id := range ids {
		found := false
		for _, p := range tree.LeafPointsAbove(0) {
			if p.ID == id {
				found = true
				break
			}
		}
		assert.True(t, found, "point %d missing after full rebuild", id)
	}
}

// TestFullRebuildKeepsCursorPairValidWhenActiveDocumentIsEmpty covers the
// case where the active document was opened but never written to before a
// Full rebuild runs, while its session holds other, written documents: the
// session survives the rebuild (it has an entry in sessionMap) but the
// empty document does not (it has none in docMap). The cursor must not
// come out of finalize half-null — either both ids are 0, or the active
// document's parent is the active session.
func TestFullRebuildKeepsCursorPairValidWhenActiveDocumentIsEmpty(t *testing.T) {
	tree := newTestTree(t, 1000, 1000)
	tree.NewDocument()
	_, err := tree.Add([]float32{1, 0})
	require.NoError(t, err)

	// Opens a fresh, empty active document under the same session.
	tree.NewDocument()
	require.NotEqual(t, hat.GlobalID, tree.ActiveSessionID)
	require.NotEqual(t, hat.GlobalID, tree.ActiveDocumentID)

	eng := NewEngine()
	runToCompletion(t, eng, tree, Full, 64)

	if tree.ActiveSessionID == hat.GlobalID {
		assert.Equal(t, hat.GlobalID, tree.ActiveDocumentID)
	} else {
		require.NotEqual(t, hat.GlobalID, tree.ActiveDocumentID)
		doc := tree.MustGet(tree.ActiveDocumentID)
		assert.Equal(t, tree.ActiveSessionID, doc.ParentID)
	}
}

func TestFullRebuildIsIdempotentOnSecondPass(t *testing.T) {
	tree := newTestTree(t, 3, 2)
	for i := 0; i < 15; i++ {
		_, err := tree.Add([]float32{float32(i), float32(i)})
		require.NoError(t, err)
	}

	eng := NewEngine()
	runToCompletion(t, eng, tree, Full, 16)
	firstLen := tree.Len()
	firstCount := tree.Count()

	runToCompletion(t, eng, tree, Full, 16)
	assert.Equal(t, firstLen, tree.Len())
	assert.Equal(t, firstCount, tree.Count())
}
