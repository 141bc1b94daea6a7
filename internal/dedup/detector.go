// Package dedup finds near-duplicate bug reports within one upload batch by
// cosine similarity over summary-only TF-IDF vectors.
package dedup

import "math"

// Link records that a bug duplicates an earlier bug in the same batch.
type Link struct {
	BugID         int64
	DuplicateOfID int64
	Similarity    float64
}

// Match is the result of checking one vector against an existing pool.
type Match struct {
	DuplicateOfID int64
	Similarity    float64
}

// Detector marks duplicates at or above Threshold (inclusive).
type Detector struct {
	Threshold float64
}

// New returns a Detector with the given similarity threshold.
func New(threshold float64) *Detector {
	return &Detector{Threshold: threshold}
}

// FindDuplicates runs a greedy single pass in submission order: each bug is
// compared against earlier bugs that are not themselves duplicates, and
// linked to the most similar one if the similarity clears the threshold.
// Duplicates therefore chain to the earliest-seen original, never to another
// duplicate, and a bug links to at most one other. The pass is intentionally
// order-sensitive and must not be parallelized: later bugs depend on which
// earlier bugs were already marked.
func (d *Detector) FindDuplicates(vectors [][]float64, ids []int64) []Link {
	if len(vectors) < 2 {
		return nil
	}

	marked := make(map[int64]bool)
	var links []Link
	for i := range vectors {
		if marked[ids[i]] {
			continue
		}
		bestSim := 0.0
		bestJ := -1
		for j := 0; j < i; j++ {
			if marked[ids[j]] {
				continue
			}
			if sim := cosine(vectors[i], vectors[j]); sim > bestSim {
				bestSim = sim
				bestJ = j
			}
		}
		if bestJ >= 0 && bestSim >= d.Threshold {
			links = append(links, Link{
				BugID:         ids[i],
				DuplicateOfID: ids[bestJ],
				Similarity:    bestSim,
			})
			marked[ids[i]] = true
		}
	}
	return links
}

// CheckSingle compares one new vector against an already-known pool and
// returns the best match at or above the threshold, or nil.
func (d *Detector) CheckSingle(vector []float64, existing [][]float64, ids []int64) *Match {
	if len(existing) == 0 {
		return nil
	}
	bestSim := -1.0
	bestIdx := -1
	for i, ev := range existing {
		if sim := cosine(vector, ev); sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}
	if bestIdx >= 0 && bestSim >= d.Threshold {
		return &Match{DuplicateOfID: ids[bestIdx], Similarity: bestSim}
	}
	return nil
}

// cosine returns the cosine similarity of a and b; a zero vector yields 0.
func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
