// Package hat implements the Hierarchical Attention Tree: an in-memory
// approximate nearest-neighbor index that exploits the four-level
// Global -> Session -> Document -> Chunk hierarchy typical of AI
// conversation embeddings.
//
// The tree, insertion protocol, beam search, consolidation engine and
// binary persistence codec live in the container, beam, consolidate and
// persist subpackages respectively; index ties them together behind the
// public Index type. This root package holds the types shared across all
// of them: vectors, metrics, configuration and error kinds.
package hat
