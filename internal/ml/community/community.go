// Package community groups embedding vectors into dense communities by
// cosine similarity.
package community

import (
	"math"
	"sort"
)

const (
	// DefaultMinSize is the starting minimum community size.
	DefaultMinSize = 20
	// DefaultThreshold is the cosine similarity floor for membership.
	DefaultThreshold = 0.65
	// MinSizeFloor stops the retry-halving recursion. Communities of one
	// point carry no grouping signal.
	MinSizeFloor = 2
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Detect finds communities of at least minSize vectors whose pairwise cosine
// similarity to the community centroid member exceeds threshold. Returns
// member index lists, largest community first; overlapping candidates are
// resolved greedily so each vector lands in at most one community. Vectors
// not densely connected to any community are left out.
func Detect(vectors [][]float32, minSize int, threshold float64) [][]int {
	n := len(vectors)
	if n == 0 || minSize < 1 {
		return [][]int{}
	}

	// Pairwise similarity; n is sentence-count scale, quadratic is fine.
	sim := make([][]float64, n)
	for i := 0; i < n; i++ {
		sim[i] = make([]float64, n)
		sim[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := cosine(vectors[i], vectors[j])
			sim[i][j] = s
			sim[j][i] = s
		}
	}

	type candidate struct {
		center  int
		members []int
	}
	candidates := []candidate{}
	for i := 0; i < n; i++ {
		members := []int{}
		for j := 0; j < n; j++ {
			if sim[i][j] >= threshold {
				members = append(members, j)
			}
		}
		if len(members) >= minSize {
			// Closest members first so greedy assignment keeps the
			// densest core.
			sort.Slice(members, func(a, b int) bool {
				return sim[i][members[a]] > sim[i][members[b]]
			})
			candidates = append(candidates, candidate{center: i, members: members})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return len(candidates[a].members) > len(candidates[b].members)
	})

	assigned := make([]bool, n)
	out := [][]int{}
	for _, c := range candidates {
		members := []int{}
		for _, m := range c.members {
			if !assigned[m] {
				members = append(members, m)
			}
		}
		if len(members) < minSize {
			continue
		}
		for _, m := range members {
			assigned[m] = true
		}
		sort.Ints(members)
		out = append(out, members)
	}
	return out
}

// DetectWithRetry runs Detect, halving minSize whenever zero communities are
// found, until something is found or minSize drops below MinSizeFloor.
// onRetry runs before each halved attempt; a non-nil return stops the search
// (cooperative abort checkpoint).
func DetectWithRetry(vectors [][]float32, minSize int, threshold float64, onRetry func(nextMinSize int) error) ([][]int, error) {
	for minSize >= MinSizeFloor {
		found := Detect(vectors, minSize, threshold)
		if len(found) > 0 {
			return found, nil
		}
		minSize /= 2
		if minSize < MinSizeFloor {
			break
		}
		if onRetry != nil {
			if err := onRetry(minSize); err != nil {
				return nil, err
			}
		}
	}
	return [][]int{}, nil
}
