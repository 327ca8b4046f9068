package matcher

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
)

func newMatcher(t *testing.T, cfg config.MatcherConfig, dim int) *Matcher {
	t.Helper()
	m, err := New(cfg, dim)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func defaultConfig() config.MatcherConfig {
	return config.MatcherConfig{Metric: "euclidean", Threshold: DefaultThreshold, MinEmbeddingsPerStudent: 1, Index: "linear"}
}

func emb(id, studentID int64, v ...float32) database.Embedding {
	return database.Embedding{ID: id, StudentID: studentID, Vector: v}
}

func TestMatchExactEmbedding(t *testing.T) {
	for _, metric := range []string{"euclidean", "cosine"} {
		t.Run(metric, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Metric = metric
			cfg.Threshold = 0
			m := newMatcher(t, cfg, 3)

			pool := []database.Embedding{
				emb(1, 10, 0.1, -0.2, 0.37),
				emb(2, 20, 0.9, 0.1, 0.0),
			}
			got, err := m.Match([]float32{0.1, -0.2, 0.37}, pool)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if got.StudentID != 10 || got.Score != 0 {
				t.Errorf("got %+v, want student 10 with score 0", got)
			}
		})
	}
}

func TestMatchUsesBestEmbeddingPerStudent(t *testing.T) {
	m := newMatcher(t, defaultConfig(), 2)

	pool := []database.Embedding{
		emb(1, 10, 0, 1),    // far
		emb(2, 10, 1, 0.05), // close
		emb(3, 20, 1, 0.3),
	}
	got, err := m.Match([]float32{1, 0}, pool)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.StudentID != 10 {
		t.Errorf("expected student 10, got %d", got.StudentID)
	}
	if got.Candidates != 2 {
		t.Errorf("expected 2 scored students, got %d", got.Candidates)
	}
}

func TestMatchTieIsAmbiguous(t *testing.T) {
	cfg := defaultConfig()
	cfg.Threshold = 2
	m := newMatcher(t, cfg, 2)

	tests := []struct {
		name string
		pool []database.Embedding
	}{
		{"same vector", []database.Embedding{emb(1, 10, 1, 0), emb(2, 20, 1, 0)}},
		{"mirrored", []database.Embedding{emb(1, 10, 0, 1), emb(2, 20, 0, -1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Match([]float32{1, 0}, tt.pool)
			if !errors.Is(err, database.ErrAmbiguousMatch) {
				t.Errorf("expected ambiguous match, got %v", err)
			}
		})
	}
}

func TestMatchAboveThreshold(t *testing.T) {
	m := newMatcher(t, defaultConfig(), 2)

	pool := []database.Embedding{emb(1, 10, 0, 1), emb(2, 20, -1, 0)}
	_, err := m.Match([]float32{1, 0}, pool)
	if !errors.Is(err, database.ErrNoMatch) {
		t.Errorf("expected no match, got %v", err)
	}
}

func TestMatchThresholdCheckedBeforeTie(t *testing.T) {
	m := newMatcher(t, defaultConfig(), 2)

	// Both students tie, but too far away to be accepted.
	pool := []database.Embedding{emb(1, 10, 0, 1), emb(2, 20, 0, -1)}
	_, err := m.Match([]float32{1, 0}, pool)
	if !errors.Is(err, database.ErrNoMatch) {
		t.Errorf("expected no match, got %v", err)
	}
}

func TestMatchEmptyPool(t *testing.T) {
	m := newMatcher(t, defaultConfig(), 2)
	if _, err := m.Match([]float32{1, 0}, nil); !errors.Is(err, database.ErrNoMatch) {
		t.Errorf("expected no match, got %v", err)
	}
}

func TestMatchDimensionMismatch(t *testing.T) {
	m := newMatcher(t, defaultConfig(), 3)

	if _, err := m.Match([]float32{1, 0}, []database.Embedding{emb(1, 10, 1, 0, 0)}); !errors.Is(err, database.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch for query, got %v", err)
	}
	if _, err := m.Match([]float32{1, 0, 0}, []database.Embedding{emb(1, 10, 1, 0)}); !errors.Is(err, database.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch for stored embedding, got %v", err)
	}
}

func TestMatchZeroQuery(t *testing.T) {
	m := newMatcher(t, defaultConfig(), 2)
	if _, err := m.Match([]float32{0, 0}, []database.Embedding{emb(1, 10, 1, 0)}); !errors.Is(err, database.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestMatchMinEmbeddings(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinEmbeddingsPerStudent = 2
	m := newMatcher(t, cfg, 2)

	pool := []database.Embedding{
		emb(1, 10, 1, 0), // exact, but only one embedding
		emb(2, 20, 1, 0.1),
		emb(3, 20, 0, 1),
	}
	got, err := m.Match([]float32{1, 0}, pool)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got.StudentID != 20 {
		t.Errorf("expected student 20, got %d", got.StudentID)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MatcherConfig
		dim  int
	}{
		{"metric", config.MatcherConfig{Metric: "manhattan"}, 2},
		{"threshold", config.MatcherConfig{Threshold: -1}, 2},
		{"index", config.MatcherConfig{Index: "kdtree"}, 2},
		{"dim", config.MatcherConfig{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.dim); !errors.Is(err, database.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestHNSWIndexAgreesWithLinear(t *testing.T) {
	const dim = 16
	rng := rand.New(rand.NewPCG(1, 2))

	var pool []database.Embedding
	for i := range 60 {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		pool = append(pool, emb(int64(i+1), int64(i/3+1), v...))
	}
	query := pool[25].Vector

	for _, metric := range []string{"euclidean", "cosine"} {
		t.Run(metric, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Metric = metric
			linear := newMatcher(t, cfg, dim)

			cfg.Index = "hnsw"
			cfg.HNSWNeighbors = 16
			approx := newMatcher(t, cfg, dim)

			want, err := linear.Match(query, pool)
			if err != nil {
				t.Fatalf("linear Match: %v", err)
			}
			got, err := approx.Match(query, pool)
			if err != nil {
				t.Fatalf("hnsw Match: %v", err)
			}
			if got.StudentID != want.StudentID || got.Score != want.Score {
				t.Errorf("hnsw = %+v, linear = %+v", got, want)
			}
			if got.StudentID != pool[25].StudentID || got.Score != 0 {
				t.Errorf("expected exact match on student %d, got %+v", pool[25].StudentID, got)
			}
		})
	}
}

func TestHNSWIndexTieBeyondNeighborLimit(t *testing.T) {
	const neighbors = 4
	query := []float32{0.6, 0.8}

	var pool []database.Embedding
	for i := range 2 * neighbors {
		pool = append(pool, emb(int64(i+1), 10, query...))
	}
	pool = append(pool, emb(100, 20, query...))

	for _, metric := range []string{"euclidean", "cosine"} {
		t.Run(metric, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Metric = metric
			cfg.Index = "hnsw"
			cfg.HNSWNeighbors = neighbors
			m := newMatcher(t, cfg, 2)

			got, err := m.Match(query, pool)
			if !errors.Is(err, database.ErrAmbiguousMatch) {
				t.Fatalf("expected ambiguous match, got %+v, %v", got, err)
			}
		})
	}
}

func TestHNSWIndexWidensOnlyWhileSaturated(t *testing.T) {
	candidates := []Candidate{
		{StudentID: 10, Vector: []float64{1, 0}},
		{StudentID: 10, Vector: []float64{1, 0}},
		{StudentID: 20, Vector: []float64{0, 1}},
	}
	idx := NewHNSWIndex(candidates, Euclidean, 2)

	scores := idx.Scores([]float64{1, 0})
	if len(scores) != 2 {
		t.Fatalf("expected both students scored after widening, got %v", scores)
	}
}

func TestHNSWIndexEmpty(t *testing.T) {
	idx := NewHNSWIndex(nil, Euclidean, 8)
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d", idx.Len())
	}
	if scores := idx.Scores([]float64{1, 0}); scores != nil {
		t.Errorf("expected no scores, got %v", scores)
	}
}

func TestWithIndex(t *testing.T) {
	var built int
	counting := func(c []Candidate, metric Metric) Index {
		built++
		return NewLinearIndex(c, metric)
	}
	m, err := New(defaultConfig(), 2, WithIndex(counting))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Match([]float32{1, 0}, []database.Embedding{emb(1, 10, 1, 0)}); err != nil {
		t.Fatalf("Match: %v", err)
	}
	if built != 1 {
		t.Errorf("expected custom index to be used once, got %d", built)
	}
}
