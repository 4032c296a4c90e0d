// Package vector ranks stored chunk embeddings for stores without a native
// vector index.
package vector

import (
	"math"
	"sort"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
)

// Candidate is a vectorized chunk considered for ranking.
type Candidate struct {
	ChunkUUID    string
	DocumentUUID string
	Position     int
	CreatedAt    time.Time
	Vector       []float32
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or zero magnitude score 0 and report false.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// Rank scores candidates against query and returns the top k, most similar
// first. Ties order by chunk creation time, then document uuid, then position.
func Rank(query []float32, candidates []Candidate, k int) []driven.VectorHit {
	type scored struct {
		c     *Candidate
		score float64
	}
	all := make([]scored, 0, len(candidates))
	for i := range candidates {
		s, ok := Cosine(query, candidates[i].Vector)
		if !ok {
			continue
		}
		all = append(all, scored{c: &candidates[i], score: s})
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.c.CreatedAt.Equal(b.c.CreatedAt) {
			return a.c.CreatedAt.Before(b.c.CreatedAt)
		}
		if a.c.DocumentUUID != b.c.DocumentUUID {
			return a.c.DocumentUUID < b.c.DocumentUUID
		}
		return a.c.Position < b.c.Position
	})

	if k > 0 && len(all) > k {
		all = all[:k]
	}
	hits := make([]driven.VectorHit, len(all))
	for i, s := range all {
		hits[i] = driven.VectorHit{
			ChunkUUID:    s.c.ChunkUUID,
			DocumentUUID: s.c.DocumentUUID,
			Similarity:   s.score,
		}
	}
	return hits
}
