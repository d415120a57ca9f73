// Package index assembles the container tree, beam search, consolidation
// engine and persistence codec behind a single public Index type — the
// external coordination primitive for concurrent access, implemented as
// one sync.RWMutex.
package index

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hatindex/hat"
	"github.com/hatindex/hat/beam"
	"github.com/hatindex/hat/consolidate"
	"github.com/hatindex/hat/container"
	"github.com/hatindex/hat/persist"
)

// Index is the public, concurrency-safe entry point to a Hierarchical
// Attention Tree. The zero value is not usable; construct with New or
// Load.
type Index struct {
	mu   sync.RWMutex
	id   hat.InstanceID
	log  *slog.Logger
	tree *container.Tree
	cfg  hat.Config
	eng  *consolidate.Engine
}

// New constructs an empty index for the given dimensionality and metric,
// filling unset tunables in cfg with their defaults via Config.Validate.
func New(cfg hat.Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := hat.NewInstanceID()
	idx := &Index{
		id:   id,
		log:  hat.NewLogger(id),
		tree: container.NewTree(cfg),
		cfg:  cfg,
		eng:  consolidate.NewEngine(),
	}
	idx.log.Debug("hat: index created", "dimensionality", cfg.Dimensionality, "metric", cfg.MetricKind)
	return idx, nil
}

// Add inserts vector and returns its newly assigned, monotonically
// increasing id.
func (idx *Index) Add(vector []float32) (uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	start := time.Now()
	id, err := idx.tree.Add(vector)
	if err != nil {
		return 0, err
	}
	idx.log.Debug("hat: add", "id", id, "elapsed", time.Since(start))
	return id, nil
}

// Search returns at most k results ranked by descending score, ties
// broken by ascending point id.
func (idx *Index) Search(query []float32, k int) ([]hat.Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.cfg.Dimensionality {
		return nil, hat.NewDimensionMismatch(len(query), idx.cfg.Dimensionality)
	}
	return beam.Search(idx.tree, query, k, idx.cfg.MetricKind, idx.cfg.BeamWidth), nil
}

// NewSession starts a fresh session, ending the current one.
func (idx *Index) NewSession() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.tree.NewSession()
}

// NewDocument starts a fresh document under the current session.
func (idx *Index) NewDocument() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.tree.NewDocument()
}

// Consolidate runs up to one configured budget's worth of the requested
// phase. A concurrent Consolidate call already in flight fails fast with
// hat.ErrBusy rather than queuing behind the write lock. The index never
// runs consolidation on its own; callers schedule Consolidate calls.
func (idx *Index) Consolidate(phase consolidate.Phase) (consolidate.Report, error) {
	if !idx.eng.TryBegin() {
		return consolidate.Report{}, hat.NewBusy()
	}
	defer idx.eng.Finish()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	start := time.Now()
	report := idx.eng.Run(idx.tree, phase, idx.cfg.ConsolidationPhaseBudget)
	idx.log.Debug("hat: consolidate", "phase", phase, "visited", report.Visited, "done", report.Done, "elapsed", time.Since(start))
	return report, nil
}

// Save writes the index to w.
func (idx *Index) Save(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return persist.Save(w, idx.tree)
}

// Load reconstructs an Index from a stream written by Save. Only
// dimensionality and metric travel in the file; the remaining tunables in
// cfg (beam width, chunk/document capacity, drift threshold,
// consolidation budget) are applied on top, since the wire
// format intentionally only carries what load/save round-tripping
// requires for structural and scoring equality.
func Load(r io.Reader, cfg hat.Config) (*Index, error) {
	tree, err := persist.Load(r)
	if err != nil {
		return nil, err
	}
	merged := cfg
	merged.Dimensionality = tree.Dimensionality
	merged.MetricKind = tree.MetricKind
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	tree.Config = merged

	id := hat.NewInstanceID()
	idx := &Index{
		id:   id,
		log:  hat.NewLogger(id),
		tree: tree,
		cfg:  merged,
		eng:  consolidate.NewEngine(),
	}
	idx.log.Debug("hat: index loaded", "len", tree.Len())
	return idx, nil
}

// Len returns the total number of points in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// Dimensionality returns the index's fixed vector length.
func (idx *Index) Dimensionality() int {
	return idx.cfg.Dimensionality
}

// Metric returns the index's configured similarity metric.
func (idx *Index) Metric() hat.Metric {
	return idx.cfg.MetricKind
}
