package consolidate

import (
	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
	"github.com/hatindex/hat/metric"
)

// mergeSimilarityThreshold is the cosine-similarity bar two sibling
// documents' centroids must clear to be folded into one. Cosine is used
// regardless of the tree's configured metric: proximity for merge
// purposes is meant to be scale-invariant, which dot-product similarity
// is not.
const mergeSimilarityThreshold = 0.98

// maybeSplit implements the Medium-phase split rule: if doc has more than
// MaxDocChunks chunk children, cluster their centroids into two groups
// with a deterministic k=2 pass and, if both groups are
// non-empty, replace doc with two sibling documents under the same
// session.
func (e *Engine) maybeSplit(tree *container.Tree, doc *container.Container, report *Report) {
	if len(doc.Children) <= tree.Config.MaxDocChunks {
		return
	}
	groupA, groupB := splitKMeans2(tree, doc.Children)
	if len(groupA) == 0 || len(groupB) == 0 {
		return
	}

	// Tie policy: the group containing the globally lowest chunk id among
	// doc's children becomes the first child document.
	lowest := doc.Children[0]
	for _, id := range doc.Children {
		if id < lowest {
			lowest = id
		}
	}
	first, second := groupA, groupB
	if !containsID(first, lowest) {
		first, second = groupB, groupA
	}

	session := tree.MustGet(doc.ParentID)
	tail := doc.Children[len(doc.Children)-1]
	wasActive := tree.ActiveDocumentID == doc.ID

	childA := tree.NewContainer(hat.DocumentLevel, session.ID)
	childA.Children = first
	childA.Centroid, childA.Count = container.WeightedMeanOfChildren(tree, childA.Children, tree.Dimensionality)
	for _, cid := range childA.Children {
		tree.MustGet(cid).ParentID = childA.ID
	}

	childB := tree.NewContainer(hat.DocumentLevel, session.ID)
	childB.Children = second
	childB.Centroid, childB.Count = container.WeightedMeanOfChildren(tree, childB.Children, tree.Dimensionality)
	for _, cid := range childB.Children {
		tree.MustGet(cid).ParentID = childB.ID
	}

	replaceChild(session, doc.ID, childA.ID, childB.ID)
	tree.Delete(doc.ID)

	if wasActive {
		if containsID(childA.Children, tail) {
			tree.ActiveDocumentID = childA.ID
		} else {
			tree.ActiveDocumentID = childB.ID
		}
	}
	report.Splits++
}

// maybeMerge implements the Medium-phase merge rule: adjacent sibling
// documents under session whose centroids lie within
// mergeSimilarityThreshold are folded together, repeatedly, left to
// right.
func (e *Engine) maybeMerge(tree *container.Tree, session *container.Container, report *Report) {
	i := 0
	for i < len(session.Children)-1 {
		a := tree.MustGet(session.Children[i])
		b := tree.MustGet(session.Children[i+1])
		if metric.Score(hat.Cosine, a.Centroid, b.Centroid) >= mergeSimilarityThreshold {
			mergeInto(tree, session, i, report)
			continue
		}
		i++
	}
}

// mergeInto absorbs the document at session.Children[i+1] into the one at
// session.Children[i].
func mergeInto(tree *container.Tree, session *container.Container, i int, report *Report) {
	a := tree.MustGet(session.Children[i])
	b := tree.MustGet(session.Children[i+1])

	a.Children = append(a.Children, b.Children...)
	for _, cid := range b.Children {
		tree.MustGet(cid).ParentID = a.ID
	}
	a.Centroid, a.Count = container.WeightedMeanOfChildren(tree, a.Children, tree.Dimensionality)

	if tree.ActiveDocumentID == b.ID {
		tree.ActiveDocumentID = a.ID
	}
	session.Children = append(session.Children[:i+1], session.Children[i+2:]...)
	tree.Delete(b.ID)
	report.Merges++
}

func replaceChild(parent *container.Container, oldID, newA, newB uint64) {
	out := make([]uint64, 0, len(parent.Children)+1)
	for _, id := range parent.Children {
		if id == oldID {
			out = append(out, newA, newB)
			continue
		}
		out = append(out, id)
	}
	parent.Children = out
}

func containsID(ids []uint64, target uint64) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// splitKMeans2 clusters chunkIDs' centroids into two groups with k=2
// k-means, seeded deterministically (no time.Now()/math/rand) so repeated
// consolidation over the same tree state is reproducible: the seeds come
// from the data itself rather than the wall clock.
func splitKMeans2(tree *container.Tree, chunkIDs []uint64) ([]uint64, []uint64) {
	if len(chunkIDs) < 2 {
		return chunkIDs, nil
	}

	centroidOf := func(id uint64) []float32 { return tree.MustGet(id).Centroid }

	// Seed 1: the chunk with the lowest id. Seed 2: the chunk whose
	// centroid is farthest (Euclidean) from seed 1, ties broken by
	// ascending id.
	seedA := chunkIDs[0]
	for _, id := range chunkIDs {
		if id < seedA {
			seedA = id
		}
	}
	var seedB uint64
	var bestDist float32 = -1
	for _, id := range chunkIDs {
		if id == seedA {
			continue
		}
		d := metric.EuclideanDistance(centroidOf(seedA), centroidOf(id))
		if d > bestDist || (d == bestDist && id < seedB) {
			bestDist = d
			seedB = id
		}
	}

	centroidA := append([]float32(nil), centroidOf(seedA)...)
	centroidB := append([]float32(nil), centroidOf(seedB)...)

	const maxIter = 20
	var assignA, assignB []uint64
	for iter := 0; iter < maxIter; iter++ {
		assignA = assignA[:0]
		assignB = assignB[:0]
		for _, id := range chunkIDs {
			dA := metric.EuclideanDistance(centroidOf(id), centroidA)
			dB := metric.EuclideanDistance(centroidOf(id), centroidB)
			if dA <= dB {
				assignA = append(assignA, id)
			} else {
				assignB = append(assignB, id)
			}
		}
		if len(assignA) == 0 || len(assignB) == 0 {
			break
		}
		newA, _ := container.WeightedMeanOfChildren(tree, assignA, len(centroidA))
		newB, _ := container.WeightedMeanOfChildren(tree, assignB, len(centroidB))
		converged := vectorsEqual(newA, centroidA) && vectorsEqual(newB, centroidB)
		centroidA, centroidB = newA, newB
		if converged {
			break
		}
	}

	sortedCopy := func(ids []uint64) []uint64 {
		out := append([]uint64(nil), ids...)
		for i := 1; i < len(out); i++ {
			for j := i; j > 0 && out[j-1] > out[j]; j-- {
				out[j-1], out[j] = out[j], out[j-1]
			}
		}
		return out
	}
	return sortedCopy(assignA), sortedCopy(assignB)
}

func vectorsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
