// Package sentencize splits document text into embedding-ready sentences.
package sentencize

import "strings"

// MinSentenceLen drops short fragments that add noise to sentence
// embeddings.
const MinSentenceLen = 10

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Split breaks text on sentence-terminal punctuation, trims whitespace and
// discards fragments shorter than MinSentenceLen characters.
func Split(text string) []string {
	out := []string{}
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if len(s) >= MinSentenceLen {
			out = append(out, s)
		}
	}
	for _, r := range text {
		b.WriteRune(r)
		if isTerminal(r) {
			flush()
		}
	}
	flush()
	return out
}
