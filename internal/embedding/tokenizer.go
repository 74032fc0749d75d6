package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// CLIP-style special tokens.
const (
	tokenStart = 49406
	tokenEnd   = 49407
	vocabSize  = 49405
)

// Tokenizer produces token IDs for a CLIP-style text encoder (input_ids, attention_mask).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// HashTokenizer maps each lowercased word to a hashed vocabulary ID. It stands in
// for a BPE vocabulary when the model ships without one.
type HashTokenizer struct{}

// Tokenize wraps the word IDs in start/end tokens and pads to maxTokens.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens < 2 {
		maxTokens = 77
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	inputIDs[0] = tokenStart
	attentionMask[0] = 1
	pos := 1
	for _, w := range Words(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(hashWord(w) % vocabSize)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = tokenEnd
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

// Words lowercases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func hashWord(w string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(w))
	return h.Sum64()
}
