package consolidate

import (
	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
)

// rebuildState accumulates the Full-phase rebuild across one or more Run
// calls. It ingests points strictly in id (insertion) order and opens a
// new session/document/chunk exactly when the recorded SessionID/
// DocumentID/chunk capacity calls for one, reconstructing the same
// session/document boundaries the original inserts used.
//
// watermark tracks the highest point id already ingested; each step
// re-queries the live tree for points above it, so points added by the
// caller between Full-phase steps are picked up on a later step rather
// than lost — the rebuild finalizes in the step whose remaining points all
// fit within that step's budget.
type rebuildState struct {
	watermark uint64

	containers map[uint64]*container.Container
	nextID     uint64
	global     *container.Container

	curSessionOld uint64
	curDocOld     uint64
	curSessionNew *container.Container
	curDocNew     *container.Container
	curChunkNew   *container.Container

	sessionMap map[uint64]uint64
	docMap     map[uint64]uint64
}

func newRebuildState(tree *container.Tree) *rebuildState {
	global := &container.Container{
		ID:       hat.GlobalID,
		Level:    hat.GlobalLevel,
		ParentID: hat.GlobalID,
		Centroid: make([]float32, tree.Dimensionality),
	}
	return &rebuildState{
		containers: map[uint64]*container.Container{hat.GlobalID: global},
		nextID:     1,
		global:     global,
		sessionMap: make(map[uint64]uint64),
		docMap:     make(map[uint64]uint64),
	}
}

func (r *rebuildState) allocID() uint64 {
	id := r.nextID
	r.nextID++
	return id
}

// ingest appends one point to the shadow tree, opening fresh shadow
// containers whenever the recorded session/document changes or the
// current shadow chunk is at capacity.
func (r *rebuildState) ingest(tree *container.Tree, p container.Point) {
	if r.curSessionNew == nil || p.SessionID != r.curSessionOld {
		sess := &container.Container{
			ID: r.allocID(), Level: hat.SessionLevel, ParentID: hat.GlobalID,
			Centroid: make([]float32, tree.Dimensionality), CreatedAt: int64(tree.Tick()),
		}
		r.containers[sess.ID] = sess
		r.global.Children = append(r.global.Children, sess.ID)
		r.curSessionNew = sess
		r.curSessionOld = p.SessionID
		r.sessionMap[p.SessionID] = sess.ID
		r.curDocNew = nil
	}
	if r.curDocNew == nil || p.DocumentID != r.curDocOld {
		doc := &container.Container{
			ID: r.allocID(), Level: hat.DocumentLevel, ParentID: r.curSessionNew.ID,
			Centroid: make([]float32, tree.Dimensionality), CreatedAt: int64(tree.Tick()),
		}
		r.containers[doc.ID] = doc
		r.curSessionNew.Children = append(r.curSessionNew.Children, doc.ID)
		r.curDocNew = doc
		r.curDocOld = p.DocumentID
		r.docMap[p.DocumentID] = doc.ID
		r.curChunkNew = nil
	}
	if r.curChunkNew == nil || r.curChunkNew.Count >= uint64(tree.Config.MaxChunkPoints) {
		chunk := &container.Container{
			ID: r.allocID(), Level: hat.ChunkLevel, ParentID: r.curDocNew.ID,
			Centroid: make([]float32, tree.Dimensionality), CreatedAt: int64(tree.Tick()),
		}
		r.containers[chunk.ID] = chunk
		r.curDocNew.Children = append(r.curDocNew.Children, chunk.ID)
		r.curChunkNew = chunk
	}
	// Re-stamp the point with the container ids it actually lands under
	// now, so a later rebuild groups by current rather than stale boundaries.
	p.SessionID = r.curSessionNew.ID
	p.DocumentID = r.curDocNew.ID
	r.curChunkNew.Points = append(r.curChunkNew.Points, p)
	r.curChunkNew.Count++
}

// finalize installs the shadow arena as the tree's entire container set,
// recomputes every centroid bottom-up from scratch, remaps the active
// session/document cursor, and resumes the container id allocator after
// the highest shadow id. A previously active session or document with no
// points of its own (created but never written to) has no entry in
// sessionMap/docMap and is not carried forward as-is; the next Add starts
// a fresh one, same as on a brand new tree — except when the active
// session *did* survive (it holds other, written documents) and only the
// active document was empty, in which case an empty document is recreated
// under the remapped session so the cursor invariant (both ids null, or
// both valid with the document's parent equal to the session) never goes
// half-satisfied.
func (r *rebuildState) finalize(tree *container.Tree) {
	tree.ReplaceContainers(r.containers)
	for _, id := range orderedByLevelThenID(tree) {
		container.RecomputeFromChildren(tree, id)
	}
	// The allocator must point past every id already in the shadow arena
	// before any NewContainer call below, so a freshly recreated empty
	// document can never collide with one of the ids just installed.
	tree.SetNextContainerID(r.nextID)

	oldSessionID, oldDocID := tree.ActiveSessionID, tree.ActiveDocumentID

	sessionID, sessionOK := r.sessionMap[oldSessionID]
	if !sessionOK {
		tree.ActiveSessionID = hat.GlobalID
		tree.ActiveDocumentID = hat.GlobalID
		return
	}
	tree.ActiveSessionID = sessionID

	if docID, ok := r.docMap[oldDocID]; ok {
		tree.ActiveDocumentID = docID
	} else {
		session := tree.MustGet(sessionID)
		doc := tree.NewContainer(hat.DocumentLevel, sessionID)
		session.Children = append(session.Children, doc.ID)
		tree.ActiveDocumentID = doc.ID
	}
}

// stepFull advances the Full-phase cursor by at most budget points.
func (e *Engine) stepFull(tree *container.Tree, budget int, report *Report) bool {
	r := e.cursor.full
	points := tree.LeafPointsAbove(r.watermark)
	exhausted := len(points) <= budget
	if !exhausted {
		points = points[:budget]
	}

	for _, p := range points {
		r.ingest(tree, p)
		r.watermark = p.ID
		report.Visited++
		report.Rebuilt++
	}

	if exhausted {
		r.finalize(tree)
		return true
	}
	return false
}
