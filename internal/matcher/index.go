package matcher

import (
	"cmp"
	"slices"
)

// Candidate is one normalized embedding in the candidate pool.
type Candidate struct {
	StudentID int64
	Vector    []float64
}

// StudentScore is a student's best (minimum) distance to the query.
type StudentScore struct {
	StudentID int64
	Score     float64
}

// Index answers "how close is each student to this query". Implementations
// may be approximate, but every score they return must be an exact distance.
type Index interface {
	Scores(query []float64) []StudentScore
}

// IndexFactory builds an index over a candidate pool.
type IndexFactory func(candidates []Candidate, metric Metric) Index

// LinearIndex scans every candidate. O(candidates x dimension).
type LinearIndex struct {
	candidates []Candidate
	metric     Metric
}

// NewLinearIndex builds a full-scan index.
func NewLinearIndex(candidates []Candidate, metric Metric) Index {
	return &LinearIndex{candidates: candidates, metric: metric}
}

// Scores returns every student's minimum distance, ordered by student ID.
func (l *LinearIndex) Scores(query []float64) []StudentScore {
	best := make(map[int64]float64)
	for _, c := range l.candidates {
		d := l.metric.Distance(query, c.Vector)
		if cur, ok := best[c.StudentID]; !ok || d < cur {
			best[c.StudentID] = d
		}
	}
	return collectScores(best)
}

func collectScores(best map[int64]float64) []StudentScore {
	out := make([]StudentScore, 0, len(best))
	for id, score := range best {
		out = append(out, StudentScore{StudentID: id, Score: score})
	}
	slices.SortFunc(out, func(a, b StudentScore) int { return cmp.Compare(a.StudentID, b.StudentID) })
	return out
}
