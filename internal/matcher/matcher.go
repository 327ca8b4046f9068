// Package matcher decides which enrolled student a query embedding belongs to.
package matcher

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
)

const (
	// DefaultThreshold is the accept threshold on Euclidean distance between
	// L2-normalized embeddings. Distances above it are rejected.
	DefaultThreshold = 0.6
	// DefaultMinEmbeddings is the minimum number of embeddings a student needs
	// to take part in matching.
	DefaultMinEmbeddings = 1
)

// Match is an accepted identification.
type Match struct {
	StudentID int64   `json:"student_id"`
	Score     float64 `json:"score"`
	// Candidates is the number of students that were scored.
	Candidates int `json:"candidates"`
}

// Matcher applies the accept/reject policy on top of an Index.
// It holds no per-request state and is safe for concurrent use.
type Matcher struct {
	metric        Metric
	threshold     float64
	minEmbeddings int
	dim           int
	newIndex      IndexFactory
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithIndex replaces the default full-scan index.
func WithIndex(f IndexFactory) Option {
	return func(m *Matcher) { m.newIndex = f }
}

// New creates a matcher for embeddings of dimension dim.
func New(cfg config.MatcherConfig, dim int, opts ...Option) (*Matcher, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	if cfg.Threshold < 0 {
		return nil, database.Invalid("accept threshold must not be negative, got %v", cfg.Threshold)
	}
	if dim < 1 {
		return nil, database.Invalid("embedding dimension must be positive, got %d", dim)
	}

	m := &Matcher{
		metric:        metric,
		threshold:     cfg.Threshold,
		minEmbeddings: max(cfg.MinEmbeddingsPerStudent, DefaultMinEmbeddings),
		dim:           dim,
		newIndex:      NewLinearIndex,
	}
	switch strings.ToLower(cfg.Index) {
	case "", "linear":
	case "hnsw":
		m.newIndex = NewHNSWIndexFactory(cfg.HNSWNeighbors)
	default:
		return nil, database.Invalid("unknown match index %q, must be linear or hnsw", cfg.Index)
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Metric returns the configured distance metric.
func (m *Matcher) Metric() Metric { return m.metric }

// Threshold returns the accept threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match identifies the student in pool closest to query.
//
// A student's score is the minimum distance over its embeddings. The student
// with the lowest score is accepted when that score is at most the threshold.
// Errors: ErrDimensionMismatch for a wrongly sized query, ErrNoMatch when
// nobody is close enough (or the pool is empty), ErrAmbiguousMatch when two
// or more students share the lowest score exactly.
func (m *Matcher) Match(query []float32, pool []database.Embedding) (*Match, error) {
	if err := database.ValidateVector(query, m.dim); err != nil {
		return nil, err
	}
	q, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	candidates, err := m.candidates(pool)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no eligible candidates", database.ErrNoMatch)
	}

	scores := m.newIndex(candidates, m.metric).Scores(q)
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: no eligible candidates", database.ErrNoMatch)
	}

	best := scores[0]
	tied := 1
	for _, s := range scores[1:] {
		switch {
		case s.Score < best.Score:
			best, tied = s, 1
		case s.Score == best.Score:
			tied++
		}
	}

	if best.Score > m.threshold {
		return nil, fmt.Errorf("%w: best distance %.4f exceeds threshold %.4f", database.ErrNoMatch, best.Score, m.threshold)
	}
	if tied > 1 {
		return nil, fmt.Errorf("%w: %d students at distance %.4f", database.ErrAmbiguousMatch, tied, best.Score)
	}
	return &Match{StudentID: best.StudentID, Score: best.Score, Candidates: len(scores)}, nil
}

// candidates normalizes the pool and drops students below the minimum
// embedding count.
func (m *Matcher) candidates(pool []database.Embedding) ([]Candidate, error) {
	counts := make(map[int64]int)
	for _, e := range pool {
		counts[e.StudentID]++
	}

	out := make([]Candidate, 0, len(pool))
	for _, e := range pool {
		if counts[e.StudentID] < m.minEmbeddings {
			continue
		}
		if len(e.Vector) != m.dim {
			return nil, fmt.Errorf("%w: stored embedding %d has %d values, want %d",
				database.ErrDimensionMismatch, e.ID, len(e.Vector), m.dim)
		}
		v, err := Normalize(e.Vector)
		if err != nil {
			// A zero vector can never be closest to anything.
			continue
		}
		out = append(out, Candidate{StudentID: e.StudentID, Vector: v})
	}
	return out, nil
}
