// Package container implements the ownership graph of the Hierarchical
// Attention Tree: Containers (Global/Session/Document/Chunk), the Points
// they hold, the id-indexed Tree arena that owns them, and the insertion
// protocol with sparse centroid propagation.
package container

import "github.com/hatindex/hat"

// Point is one leaf vector. A point's ID and Vector never change after
// creation; its SessionID and DocumentID are re-stamped when a Full
// consolidation rebuild or a load places it under new container ids.
type Point struct {
	ID uint64
	// Vector is the point's embedding, length equal to the owning Tree's
	// Dimensionality.
	Vector []float32
	// Timestamp is the tree's logical clock value at insertion (see
	// Tree.Tick), not wall-clock time. It is not written by Save; a loaded
	// point carries its chunk's created_at instead.
	Timestamp int64
	// SessionID and DocumentID record the active cursor at insertion time.
	// The Full consolidation phase uses these to rebuild the tree along
	// the same session/document boundaries.
	SessionID  uint64
	DocumentID uint64
	// Blob is an implementation-defined, in-memory-only payload reserved
	// for a future "attention-state" extension. Format version 1 never
	// serializes it.
	Blob []byte
}

// Container is one node of the tree: a tagged level, a centroid, ordered
// child references (or leaf Points for a Chunk), and bookkeeping.
type Container struct {
	ID       uint64
	Level    hat.Level
	ParentID uint64
	// Centroid is un-normalized even under the cosine metric; normalization
	// happens at score time.
	Centroid  []float32
	Count     uint64
	CreatedAt int64
	// Children holds child container ids in creation order for every level
	// except Chunk. Traversal order over Children is deterministic.
	Children []uint64
	// Points holds leaf points in insertion order; only Chunk containers
	// populate this.
	Points []Point
}

// IsLeaf reports whether this container is a Chunk (holds Points directly
// rather than child Containers).
func (c *Container) IsLeaf() bool {
	return c.Level == hat.ChunkLevel
}
