package embedding

import "strings"

// Tokenizer produces token IDs for transformer text encoders (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// TokenScheme holds the special token ids and vocabulary size a model expects.
type TokenScheme struct {
	Start int64
	End   int64
	Vocab int64
	// PadWithEnd fills unused positions with End instead of 0.
	PadWithEnd bool
}

var (
	// BERTScheme matches BERT-style sentence encoders ([CLS] ... [SEP]).
	BERTScheme = TokenScheme{Start: 101, End: 102, Vocab: 30000}
	// CLIPScheme matches the CLIP text encoder (<|startoftext|> ... <|endoftext|>).
	CLIPScheme = TokenScheme{Start: 49406, End: 49407, Vocab: 49406, PadWithEnd: true}
)

// SimpleTokenizer is a lowercase word-split tokenizer with hash-based token IDs.
// It does not reproduce a model vocabulary; it is a fallback when no vocabulary file ships with the model.
type SimpleTokenizer struct {
	Scheme TokenScheme
}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	scheme := t.Scheme
	if scheme.Vocab == 0 {
		scheme = BERTScheme
	}
	if maxTokens <= 0 {
		maxTokens = 77
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = scheme.Start
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word)) % scheme.Vocab
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = scheme.End
		attentionMask[pos] = 1
		pos++
	}
	if scheme.PadWithEnd {
		for ; pos < maxTokens; pos++ {
			inputIDs[pos] = scheme.End
		}
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits text on whitespace and punctuation and returns non-empty words.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '\n', '\t', '\r', ',', '.', ';', ':', '!', '?', '(', ')', '"', '/':
			return true
		}
		return false
	})
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 { // math.MinInt
		h = 0
	}
	return h
}
