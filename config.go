package hat

// Config holds the options recognized at Index construction. All fields
// are fixed once the Index is built; changing any of them requires
// building a new Index.
type Config struct {
	// Dimensionality is the fixed vector length. Any vector of a different
	// length is rejected with DimensionMismatch.
	Dimensionality int
	// MetricKind selects cosine or dot scoring for both routing and final
	// ranking.
	MetricKind Metric
	// BeamWidth is the number of candidates retained per level during
	// search. Default 8.
	BeamWidth int
	// MaxChunkPoints is the point count at which a chunk is considered
	// full and a new one is started. Default 10.
	MaxChunkPoints int
	// MaxDocChunks is the soft limit used by the consolidation split
	// policy. Default 8.
	MaxDocChunks int
	// CentroidDriftTau is the threshold controlling sparse centroid
	// propagation: on each insert, walking up from the document, the first
	// ancestor whose exact-update delta has a norm below this value stops
	// the centroid update for it and every ancestor above it (counts are
	// still updated). Default 1e-4.
	CentroidDriftTau float32
	// ConsolidationPhaseBudget caps how many containers one incremental
	// Light/Medium/Deep consolidate call visits. For the Full phase it caps
	// how many points one call ingests instead; the call that finishes a
	// Full epoch recomputes every container of the rebuilt tree, regardless
	// of this budget. Default 64.
	ConsolidationPhaseBudget int
}

// DefaultConfig returns a Config with reasonable defaults for every option
// besides dimensionality and metric, which the caller must always supply
// explicitly.
func DefaultConfig(dimensionality int, metric Metric) Config {
	return Config{
		Dimensionality:           dimensionality,
		MetricKind:               metric,
		BeamWidth:                8,
		MaxChunkPoints:           10,
		MaxDocChunks:             8,
		CentroidDriftTau:         1e-4,
		ConsolidationPhaseBudget: 64,
	}
}

// Validate applies defaults to non-positive integer tunables and to a
// negative CentroidDriftTau, and rejects a non-positive dimensionality. A
// zero CentroidDriftTau is kept as is.
func (c *Config) Validate() error {
	if c.Dimensionality <= 0 {
		return newError(DimensionMismatch, ErrDimensionMismatch, "dimensionality must be positive")
	}
	if c.BeamWidth <= 0 {
		c.BeamWidth = 8
	}
	if c.MaxChunkPoints <= 0 {
		c.MaxChunkPoints = 10
	}
	if c.MaxDocChunks <= 0 {
		c.MaxDocChunks = 8
	}
	if c.CentroidDriftTau < 0 {
		c.CentroidDriftTau = 1e-4
	}
	if c.ConsolidationPhaseBudget <= 0 {
		c.ConsolidationPhaseBudget = 64
	}
	return nil
}
