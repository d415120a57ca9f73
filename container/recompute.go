package container

// RecomputeFromChildren restores a container's centroid and count to the
// exact arithmetic mean of its leaf points, computed from its direct
// children's already-exact centroid/count (or its own Points, for a
// Chunk). Callers must visit containers bottom-up (Chunk, then Document,
// then Session, then Global) so each parent reads already-recomputed
// children.
func RecomputeFromChildren(tree *Tree, id uint64) {
	c := tree.MustGet(id)
	if c.IsLeaf() {
		c.Centroid, c.Count = MeanOfPoints(c.Points, tree.Dimensionality)
		return
	}
	c.Centroid, c.Count = WeightedMeanOfChildren(tree, c.Children, tree.Dimensionality)
}

// MeanOfPoints computes the arithmetic mean vector of points and returns it
// along with the point count.
func MeanOfPoints(points []Point, dim int) ([]float32, uint64) {
	sum := make([]float32, dim)
	for _, p := range points {
		for i := 0; i < dim; i++ {
			sum[i] += p.Vector[i]
		}
	}
	n := uint64(len(points))
	if n == 0 {
		return sum, 0
	}
	inv := 1 / float32(n)
	for i := range sum {
		sum[i] *= inv
	}
	return sum, n
}

// WeightedMeanOfChildren computes the count-weighted mean of the given
// children's centroids, along with the summed count.
func WeightedMeanOfChildren(tree *Tree, childIDs []uint64, dim int) ([]float32, uint64) {
	sum := make([]float32, dim)
	var total uint64
	for _, cid := range childIDs {
		c := tree.MustGet(cid)
		w := float32(c.Count)
		for i := 0; i < dim; i++ {
			sum[i] += c.Centroid[i] * w
		}
		total += c.Count
	}
	if total == 0 {
		return sum, 0
	}
	inv := 1 / float32(total)
	for i := range sum {
		sum[i] *= inv
	}
	return sum, total
}
