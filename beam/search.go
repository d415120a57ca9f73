// Package beam implements the top-down beam search query algorithm: at
// each level, score children of the current beam against the query and
// keep the top-b, then rank leaf points in the final beam of chunks.
package beam

import (
	"sort"

	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
	"github.com/hatindex/hat/metric"
)

// levelsBelowGlobal is the number of fan-out steps from Global down to
// Chunk: Global->Session, Session->Document, Document->Chunk.
const levelsBelowGlobal = 3

// Search returns at most k results in descending score order, ties broken
// by ascending point id. It never mutates tree and allocates nothing
// visible to the caller beyond the returned slice.
func Search(tree *container.Tree, query []float32, k int, metricKind hat.Metric, beamWidth int) []hat.Result {
	if k <= 0 {
		return nil
	}

	beamIDs := []uint64{hat.GlobalID}
	for level := 0; level < levelsBelowGlobal; level++ {
		var candidates []uint64
		for _, id := range beamIDs {
			c, ok := tree.Get(id)
			if !ok {
				continue
			}
			candidates = append(candidates, c.Children...)
		}
		if len(candidates) == 0 {
			return nil
		}
		beamIDs = topByCentroid(tree, candidates, query, metricKind, beamWidth)
	}

	type hit struct {
		id    uint64
		score float32
	}
	var hits []hit
	for _, cid := range beamIDs {
		c, ok := tree.Get(cid)
		if !ok {
			continue
		}
		for _, p := range c.Points {
			hits = append(hits, hit{id: p.ID, score: metric.Score(metricKind, query, p.Vector)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	results := make([]hat.Result, len(hits))
	for i, h := range hits {
		results[i] = hat.Result{ID: h.id, Score: h.score}
	}
	return results
}

// topByCentroid scores each candidate container by similarity of its
// centroid to the query and returns the top beamWidth ids, ties broken by
// ascending container id.
func topByCentroid(tree *container.Tree, candidates []uint64, query []float32, metricKind hat.Metric, beamWidth int) []uint64 {
	type scored struct {
		id    uint64
		score float32
	}
	list := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		c := tree.MustGet(id)
		list = append(list, scored{id: id, score: metric.Score(metricKind, query, c.Centroid)})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].id < list[j].id
	})
	if len(list) > beamWidth {
		list = list[:beamWidth]
	}
	out := make([]uint64, len(list))
	for i, s := range list {
		out[i] = s.id
	}
	return out
}
