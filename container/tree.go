package container

import (
	"sort"

	"github.com/hatindex/hat"
)

// Tree is the ownership graph of containers rooted at a single Global
// node. It exclusively owns all Containers; Points are owned
// by their Chunk. Tree is not safe for concurrent use — index.Index
// provides the external reader-writer lock for concurrent access.
type Tree struct {
	Dimensionality int
	MetricKind     hat.Metric
	Config         hat.Config

	// ActiveSessionID / ActiveDocumentID are the insertion cursor. Both are
	// 0 (none), or both refer to existing containers such that the active
	// document's parent is the active session, or — right after NewSession —
	// the session is set and the document is 0 until the next NewDocument or
	// Add creates one.
	ActiveSessionID  uint64
	ActiveDocumentID uint64

	containers          map[uint64]*Container
	nextContainerID     uint64
	nextPointID         uint64
	insertsSinceSession uint64

	// clock is a logical, monotonically increasing counter used for every
	// CreatedAt/Timestamp field instead of wall-clock time. This is what
	// lets two freshly constructed indices receiving the same sequence of
	// operations produce byte-identical save output: wall-clock
	// time.Now() would make two distinct runs diverge in their persisted
	// timestamps even with identical inputs.
	clock uint64
}

// NewTree constructs an empty tree with just the Global container.
func NewTree(cfg hat.Config) *Tree {
	t := &Tree{
		Dimensionality:  cfg.Dimensionality,
		MetricKind:      cfg.MetricKind,
		Config:          cfg,
		containers:      make(map[uint64]*Container),
		nextContainerID: 1,
		nextPointID:     1,
	}
	t.containers[hat.GlobalID] = &Container{
		ID:       hat.GlobalID,
		Level:    hat.GlobalLevel,
		ParentID: hat.GlobalID,
		Centroid: make([]float32, cfg.Dimensionality),
	}
	return t
}

// Tick advances and returns the tree's logical clock. Exported so the
// consolidate package can stamp the containers it creates during a Full
// rebuild with the same deterministic notion of time.
func (t *Tree) Tick() uint64 {
	t.clock++
	return t.clock
}

// Clock returns the current logical clock value without advancing it.
func (t *Tree) Clock() uint64 {
	return t.clock
}

// SetClock forces the logical clock to a specific value. Used by the
// persistence loader so the clock resumes strictly after every timestamp
// already on disk.
func (t *Tree) SetClock(v uint64) {
	t.clock = v
}

// Get looks up a container by id.
func (t *Tree) Get(id uint64) (*Container, bool) {
	c, ok := t.containers[id]
	return c, ok
}

// MustGet looks up a container by id, panicking if absent. Used on paths
// where the tree's own invariants guarantee presence; an internal
// invariant violation here is a programming error, not a recoverable
// condition.
func (t *Tree) MustGet(id uint64) *Container {
	c, ok := t.containers[id]
	if !ok {
		panic("hat/container: dangling container id, tree invariant violated")
	}
	return c
}

// Global returns the single Global container.
func (t *Tree) Global() *Container {
	return t.containers[hat.GlobalID]
}

// Len returns the total number of leaf Points reachable from Global.
func (t *Tree) Len() int {
	return int(t.Global().Count)
}

// NextContainerID allocates and returns the next container id. NewContainer
// uses it for every container created on a live tree, including the
// sibling documents made by the consolidation engine's split logic.
func (t *Tree) NextContainerID() uint64 {
	id := t.nextContainerID
	t.nextContainerID++
	return id
}

// SetNextContainerID overrides the allocator's next value. Used by the
// persistence loader to resume strictly after the highest container id on
// disk.
func (t *Tree) SetNextContainerID(v uint64) {
	t.nextContainerID = v
}

// NextPointID returns the id that the next Add call will assign, without
// consuming it.
func (t *Tree) NextPointID() uint64 {
	return t.nextPointID
}

// SetNextPointID overrides the point id allocator. Used by the
// persistence loader.
func (t *Tree) SetNextPointID(v uint64) {
	t.nextPointID = v
}

// ReplaceContainers atomically swaps the entire container arena. Used only
// by the Full consolidation phase once its rebuilt tree is complete.
func (t *Tree) ReplaceContainers(containers map[uint64]*Container) {
	t.containers = containers
}

// Put installs a container into the arena, indexed by its own id. Used
// when creating new containers (insertion, split) and by the persistence
// loader; the Full consolidation rebuild swaps in its arena with
// ReplaceContainers instead.
func (t *Tree) Put(c *Container) {
	t.containers[c.ID] = c
}

// Delete removes a container from the arena. It does not touch any
// parent's Children list; callers are responsible for detaching it first.
func (t *Tree) Delete(id uint64) {
	delete(t.containers, id)
}

// AllIDs returns every container id currently in the arena, in ascending
// order. Used for canonical persistence writing and for the
// consolidation engine's deterministic traversal order.
func (t *Tree) AllIDs() []uint64 {
	ids := make([]uint64, 0, len(t.containers))
	for id := range t.containers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LeafPointsAbove returns every point with id > watermark across every
// chunk currently in the tree, sorted ascending by id (insertion order).
// Used by the Full consolidation phase to pick up points added since its
// last incremental step.
func (t *Tree) LeafPointsAbove(watermark uint64) []Point {
	var out []Point
	for _, c := range t.containers {
		if c.Level != hat.ChunkLevel {
			continue
		}
		for _, p := range c.Points {
			if p.ID > watermark {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns how many containers are currently in the arena.
func (t *Tree) Count() int {
	return len(t.containers)
}

// NewContainer creates and installs a fresh, childless, zero-centroid
// container at the given level and parent, without touching the
// insertion cursor. Used by split/merge/rebuild in the consolidate
// package.
func (t *Tree) NewContainer(level hat.Level, parentID uint64) *Container {
	c := &Container{
		ID:        t.NextContainerID(),
		Level:     level,
		ParentID:  parentID,
		Centroid:  make([]float32, t.Dimensionality),
		CreatedAt: int64(t.Tick()),
	}
	t.Put(c)
	return c
}

// NewChunk creates a fresh Chunk container under the given document and
// appends it to the document's Children.
func (t *Tree) NewChunk(docID uint64) *Container {
	doc := t.MustGet(docID)
	c := t.NewContainer(hat.ChunkLevel, docID)
	doc.Children = append(doc.Children, c.ID)
	return c
}

// NewSession closes the current session (if any) and starts a fresh
// Session container as a child of Global, with no document yet. It is a
// no-op (returns the existing active session) if the active session has
// had no insertions since it was created.
func (t *Tree) NewSession() uint64 {
	if t.ActiveSessionID != hat.GlobalID && t.insertsSinceSession == 0 {
		if _, ok := t.containers[t.ActiveSessionID]; ok {
			return t.ActiveSessionID
		}
	}
	global := t.Global()
	c := t.NewContainer(hat.SessionLevel, hat.GlobalID)
	global.Children = append(global.Children, c.ID)
	t.ActiveSessionID = c.ID
	t.ActiveDocumentID = 0
	t.insertsSinceSession = 0
	return c.ID
}

// NewDocument closes the current document and starts a new Document under
// the current session, creating a session first if none is active.
func (t *Tree) NewDocument() uint64 {
	if t.ActiveSessionID == hat.GlobalID {
		t.NewSession()
	}
	session := t.MustGet(t.ActiveSessionID)
	c := t.NewContainer(hat.DocumentLevel, t.ActiveSessionID)
	session.Children = append(session.Children, c.ID)
	t.ActiveDocumentID = c.ID
	return c.ID
}

// tailChunk returns the active document's last chunk, or nil if it has
// none yet.
func (t *Tree) tailChunk(doc *Container) *Container {
	if len(doc.Children) == 0 {
		return nil
	}
	return t.MustGet(doc.Children[len(doc.Children)-1])
}
