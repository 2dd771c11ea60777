// Package labelcodec maps a tag vocabulary to and from model target vectors.
package labelcodec

import (
	"fmt"
	"sort"

	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
)

// Encoder assigns each vocabulary tag a stable index. Indices come from the
// sorted, deduplicated vocabulary so re-runs over the same activity encode
// identically.
type Encoder struct {
	tags  []string
	index map[string]int
}

func NewEncoder(vocabulary []string) *Encoder {
	seen := map[string]bool{}
	tags := []string{}
	for _, t := range vocabulary {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	index := make(map[string]int, len(tags))
	for i, t := range tags {
		index[t] = i
	}
	return &Encoder{tags: tags, index: index}
}

func (e *Encoder) Size() int { return len(e.tags) }

// Tags returns the vocabulary in index order.
func (e *Encoder) Tags() []string {
	out := make([]string, len(e.tags))
	copy(out, e.tags)
	return out
}

// EncodeMultiHot sets one dimension per present tag. Encoding a tag outside
// the vocabulary is a caller bug and fails loudly.
func (e *Encoder) EncodeMultiHot(labels []string) ([]float64, error) {
	out := make([]float64, len(e.tags))
	for _, l := range labels {
		i, ok := e.index[l]
		if !ok {
			return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownLabel, l)
		}
		out[i] = 1
	}
	return out, nil
}

// DecodeMultiHot recovers the tag set whose dimensions clear the threshold.
func (e *Encoder) DecodeMultiHot(scores []float64, threshold float64) []string {
	out := []string{}
	for i, s := range scores {
		if i >= len(e.tags) {
			break
		}
		if s >= threshold {
			out = append(out, e.tags[i])
		}
	}
	return out
}

// EncodeIndex is the single-label variant: one integer class index.
func (e *Encoder) EncodeIndex(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", apperr.ErrUnknownLabel, label)
	}
	return i, nil
}

// DecodeIndex returns the tag at the given class index.
func (e *Encoder) DecodeIndex(i int) (string, error) {
	if i < 0 || i >= len(e.tags) {
		return "", fmt.Errorf("%w: class index %d", apperr.ErrUnknownLabel, i)
	}
	return e.tags[i], nil
}
