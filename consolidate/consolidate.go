// Package consolidate implements the four-phase maintenance engine: Light
// recomputes centroids exactly, Medium adds document split/merge, Deep
// additionally prunes empty containers, and Full rebuilds the entire tree
// from its leaf points. Each phase is incremental and resumable across
// calls via a cursor the Engine holds between them.
package consolidate

import (
	"sort"

	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
	"golang.org/x/sync/semaphore"
)

// Phase selects how much maintenance work a Run performs. Later phases do
// everything earlier phases do, plus more.
type Phase int

const (
	Light Phase = iota
	Medium
	Deep
	Full
)

func (p Phase) String() string {
	switch p {
	case Light:
		return "light"
	case Medium:
		return "medium"
	case Deep:
		return "deep"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Report summarizes the work one Run call performed.
type Report struct {
	Phase     Phase
	Visited   int
	Splits    int
	Merges    int
	Dropped   int
	Rebuilt   int
	// Done reports whether this call completed the epoch (cursor returned
	// to Idle). If false, the caller must call Run again with the same
	// phase to continue it.
	Done bool
}

// cursorState is the engine's resumable position within the current
// epoch. order is the level-grouped container id snapshot used by
// Light/Medium/Deep; full is the Full phase's separate rebuild state.
type cursorState struct {
	phase    Phase
	active   bool
	order    []uint64
	position int
	full     *rebuildState
}

// Engine runs consolidation for one Tree. It is not safe for concurrent
// use by itself — index.Index layers its own sync.RWMutex around calls
// that mutate the tree; Engine only protects against two Consolidate
// calls overlapping (concurrent invocations fail with Busy).
type Engine struct {
	sem    *semaphore.Weighted
	cursor cursorState
}

// NewEngine returns an idle engine ready to run against any tree sharing
// its configured dimensionality.
func NewEngine() *Engine {
	return &Engine{sem: semaphore.NewWeighted(1)}
}

// TryBegin attempts to claim exclusive use of the engine without
// blocking; it reports false if another claim is held. Callers must call Finish
// exactly once after a successful TryBegin, regardless of outcome.
func (e *Engine) TryBegin() bool {
	return e.sem.TryAcquire(1)
}

// Finish releases the claim taken by TryBegin.
func (e *Engine) Finish() {
	e.sem.Release(1)
}

// Run performs up to budget units of work for phase against tree,
// resuming a prior epoch of the same phase if one is in progress. The
// caller must already hold exclusive access to tree (index.Index's write
// lock) and must already have called TryBegin.
func (e *Engine) Run(tree *container.Tree, phase Phase, budget int) Report {
	if budget <= 0 {
		budget = 1
	}
	if !e.cursor.active || e.cursor.phase != phase {
		e.cursor = newCursor(tree, phase)
	}

	report := Report{Phase: phase}
	var done bool
	if phase == Full {
		done = e.stepFull(tree, budget, &report)
	} else {
		done = e.stepOrdered(tree, phase, budget, &report)
	}

	report.Done = done
	if done {
		e.cursor = cursorState{}
	}
	return report
}

func newCursor(tree *container.Tree, phase Phase) cursorState {
	if phase == Full {
		return cursorState{phase: phase, active: true, full: newRebuildState(tree)}
	}
	return cursorState{phase: phase, active: true, order: orderedByLevelThenID(tree)}
}

// orderedByLevelThenID groups every container id by level (Chunk,
// Document, Session, Global) and sorts ascending within each group, so a
// single left-to-right pass always visits every container's children
// before the container itself — required for Light's bottom-up exact
// recompute and for Medium's split-before-merge ordering.
func orderedByLevelThenID(tree *container.Tree) []uint64 {
	all := tree.AllIDs()
	var chunks, docs, sessions []uint64
	for _, id := range all {
		c, ok := tree.Get(id)
		if !ok {
			continue
		}
		switch c.Level {
		case hat.ChunkLevel:
			chunks = append(chunks, id)
		case hat.DocumentLevel:
			docs = append(docs, id)
		case hat.SessionLevel:
			sessions = append(sessions, id)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i] < chunks[j] })
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	sort.Slice(sessions, func(i, j int) bool { return sessions[i] < sessions[j] })

	order := make([]uint64, 0, len(chunks)+len(docs)+len(sessions)+1)
	order = append(order, chunks...)
	order = append(order, docs...)
	order = append(order, sessions...)
	order = append(order, hat.GlobalID)
	return order
}

// stepOrdered advances the Light/Medium/Deep cursor by at most budget
// containers.
func (e *Engine) stepOrdered(tree *container.Tree, phase Phase, budget int, report *Report) bool {
	cur := &e.cursor
	for report.Visited < budget && cur.position < len(cur.order) {
		id := cur.order[cur.position]
		cur.position++
		report.Visited++

		c, ok := tree.Get(id)
		if !ok {
			// Already dropped earlier in this same epoch (Deep prune of a
			// sibling) or merged away.
			continue
		}

		if phase >= Medium {
			switch c.Level {
			case hat.DocumentLevel:
				e.maybeSplit(tree, c, report)
			case hat.SessionLevel:
				e.maybeMerge(tree, c, report)
			}
		}

		// c may have been deleted by a split or merge above; re-fetch.
		if _, ok = tree.Get(id); !ok {
			continue
		}
		container.RecomputeFromChildren(tree, id)

		if phase >= Deep {
			e.maybePrune(tree, tree.MustGet(id), report)
		}
	}
	return cur.position >= len(cur.order)
}
