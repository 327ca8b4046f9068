package matcher

import (
	"math"

	"github.com/coder/hnsw"
)

// Default HNSW parameters.
const (
	// DefaultHNSWNeighbors is the max neighbors per node (M) and the search breadth.
	DefaultHNSWNeighbors = 16
	// hnswEfSearch is the search queue size. Higher is more accurate but slower.
	hnswEfSearch = 100
)

// HNSWIndex is an approximate nearest-neighbour index over the candidate
// pool. Returned nodes are rescored with the exact metric, so a student it
// reports always has its true distance; a student it misses is simply absent.
type HNSWIndex struct {
	graph      *hnsw.Graph[int]
	candidates []Candidate
	metric     Metric
	k          int
}

// NewHNSWIndexFactory returns an IndexFactory building graphs with the given
// neighbor count.
func NewHNSWIndexFactory(neighbors int) IndexFactory {
	if neighbors <= 0 {
		neighbors = DefaultHNSWNeighbors
	}
	return func(candidates []Candidate, metric Metric) Index {
		return NewHNSWIndex(candidates, metric, neighbors)
	}
}

// NewHNSWIndex builds the graph. Node keys are positions in candidates.
func NewHNSWIndex(candidates []Candidate, metric Metric, neighbors int) *HNSWIndex {
	g := hnsw.NewGraph[int]()
	g.M = neighbors
	g.Ml = 1.0 / float64(neighbors) // Standard HNSW formula
	g.EfSearch = max(hnswEfSearch, neighbors)
	if metric == Cosine {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}

	for i, c := range candidates {
		g.Add(hnsw.MakeNode(i, toFloat32(c.Vector)))
	}

	return &HNSWIndex{graph: g, candidates: candidates, metric: metric, k: neighbors}
}

// Len returns the number of indexed embeddings.
func (h *HNSWIndex) Len() int {
	return h.graph.Len()
}

// Scores searches the graph and rescores the hits exactly. The search is
// widened while every hit sits at the best distance, so a student tied
// with the nearest one is never cut off by the neighbor limit.
func (h *HNSWIndex) Scores(query []float64) []StudentScore {
	n := h.graph.Len()
	if n == 0 {
		return nil
	}

	q := toFloat32(query)
	for k := min(h.k, n); ; k = min(k*2, n) {
		best, saturated := h.search(q, query, k)
		if !saturated || k == n {
			return collectScores(best)
		}
	}
}

// search returns the per-student minimum over the k nearest nodes and
// whether all of those nodes share the overall minimum distance.
func (h *HNSWIndex) search(q []float32, query []float64, k int) (map[int64]float64, bool) {
	best := make(map[int64]float64)
	lowest, highest := math.Inf(1), math.Inf(-1)
	for _, node := range h.graph.Search(q, k) {
		c := h.candidates[node.Key]
		d := h.metric.Distance(query, c.Vector)
		if cur, ok := best[c.StudentID]; !ok || d < cur {
			best[c.StudentID] = d
		}
		lowest = min(lowest, d)
		highest = max(highest, d)
	}
	return best, lowest == highest
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
