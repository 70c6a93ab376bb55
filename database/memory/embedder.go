package memory

import (
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/siherrmann/persona/core/store"
)

// TokenEmbedder returns a deterministic bag-of-words embedder. Every lower-cased
// word is hashed into one of dimension buckets, so texts sharing words are similar.
// It needs no model download and is meant for tests and local runs.
func TokenEmbedder(dimension int) store.EmbedFunc {
	return func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			vector := make([]float32, dimension)
			for _, token := range tokenize(text) {
				h := fnv.New32a()
				_, _ = h.Write([]byte(token))
				vector[h.Sum32()%uint32(dimension)]++
			}
			out[i] = vector
		}
		return out, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
