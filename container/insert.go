package container

import (
	"math"

	"github.com/hatindex/hat"
)

// Add appends vector to the active document's tail chunk (creating a
// session, document and/or chunk as needed), assigns it a fresh
// monotonically increasing id, and sparsely propagates centroid updates
// upward. It never fails on capacity.
func (t *Tree) Add(vector []float32) (uint64, error) {
	if len(vector) != t.Dimensionality {
		return 0, hat.NewDimensionMismatch(len(vector), t.Dimensionality)
	}

	if t.ActiveSessionID == hat.GlobalID {
		t.NewSession()
	}
	if t.ActiveDocumentID == hat.GlobalID {
		t.NewDocument()
	}
	doc := t.MustGet(t.ActiveDocumentID)

	chunk := t.tailChunk(doc)
	if chunk == nil || chunk.Count >= uint64(t.Config.MaxChunkPoints) {
		chunk = t.NewChunk(doc.ID)
	}

	id := t.nextPointID
	t.nextPointID++

	stored := append([]float32(nil), vector...)
	p := Point{
		ID:         id,
		Vector:     stored,
		Timestamp:  int64(t.Tick()),
		SessionID:  t.ActiveSessionID,
		DocumentID: t.ActiveDocumentID,
	}
	chunk.Points = append(chunk.Points, p)
	chunk.Count++
	updateCentroidExact(chunk.Centroid, vector, chunk.Count)

	t.insertsSinceSession++
	t.propagate(doc, vector)

	return id, nil
}

// propagate walks ancestors a1=document, a2=session, a3=global. Count is
// always updated exactly for every ancestor; the centroid update stops at
// the first ancestor whose exact-update delta would be smaller than
// CentroidDriftTau.
func (t *Tree) propagate(doc *Container, vector []float32) {
	stopped := false
	cur := doc
	for {
		cur.Count++
		if !stopped {
			delta := centroidDelta(cur.Centroid, vector, cur.Count)
			if vectorNorm(delta) < t.Config.CentroidDriftTau {
				stopped = true
			} else {
				applyDelta(cur.Centroid, delta)
			}
		}
		if cur.Level == hat.GlobalLevel {
			return
		}
		cur = t.MustGet(cur.ParentID)
	}
}

// updateCentroidExact applies the exact incremental-mean update:
// centroid += (v - centroid) / countAfter.
func updateCentroidExact(centroid []float32, v []float32, countAfter uint64) {
	delta := centroidDelta(centroid, v, countAfter)
	applyDelta(centroid, delta)
}

// centroidDelta computes (v - centroid) / countAfter without mutating
// centroid.
func centroidDelta(centroid []float32, v []float32, countAfter uint64) []float32 {
	n := len(centroid)
	delta := make([]float32, n)
	inv := 1 / float32(countAfter)
	for i := 0; i < n; i++ {
		delta[i] = (v[i] - centroid[i]) * inv
	}
	return delta
}

func applyDelta(centroid, delta []float32) {
	for i := range centroid {
		centroid[i] += delta[i]
	}
}

func vectorNorm(v []float32) float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sumSq))
}
