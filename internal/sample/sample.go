// Package sample defines the corpus record model shared by the ingest
// worker and the similarity analytics: a content-addressed sample with its
// fuzzy hash, the derived blocking tokens, and the recorded match scores.
package sample

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenSize is the rolling window width used to derive blocking tokens
// from the chunk parts of a fuzzy hash. Samples sharing no 7-gram at
// either block-size resolution cannot score above zero, which is what
// makes the tokens usable as a pre-filter.
const TokenSize = 7

// Fuzzy holds a sample's fuzzy hash and the analytic state derived from it.
type Fuzzy struct {
	// Hash is the raw fuzzy hash, "chunksize:chunk:double_chunk".
	Hash string `json:"hash"`

	// ChunkSize is the block size the hash was computed at.
	ChunkSize int `json:"chunk_size"`

	// ChunkToken and DoubleChunkToken are space-joined rolling 7-grams
	// of the two chunk parts. They exist only for candidate blocking.
	ChunkToken       string `json:"chunk_token"`
	DoubleChunkToken string `json:"double_chunk_token"`

	// Analyzed flips to true exactly once, when the compare analytic has
	// scanned the corpus for this sample. It is never reset.
	Analyzed bool `json:"analyzed"`

	// Matches maps other sample IDs to similarity scores in [0,100].
	// A present key with value 0 means "compared, dissimilar"; an absent
	// key means "never compared". The relation is kept symmetric.
	Matches map[string]int `json:"matches"`
}

// Sample is a corpus record, keyed by the SHA256 of its content.
type Sample struct {
	SHA256 string `json:"sha256"`
	Fuzzy  Fuzzy  `json:"fuzzy"`
}

// Parse builds a Sample from a content hash and a raw fuzzy hash,
// deriving the blocking tokens. The fuzzy hash must have the standard
// three-part "chunksize:chunk:double_chunk" layout.
func Parse(sha256, fuzzyHash string) (*Sample, error) {
	parts := strings.SplitN(fuzzyHash, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed fuzzy hash %q: want chunksize:chunk:double_chunk", fuzzyHash)
	}

	chunkSize, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("malformed fuzzy hash %q: chunk size: %w", fuzzyHash, err)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("malformed fuzzy hash %q: chunk size must be positive", fuzzyHash)
	}

	return &Sample{
		SHA256: sha256,
		Fuzzy: Fuzzy{
			Hash:             fuzzyHash,
			ChunkSize:        chunkSize,
			ChunkToken:       NGramTokens(parts[1], TokenSize),
			DoubleChunkToken: NGramTokens(parts[2], TokenSize),
			Matches:          map[string]int{},
		},
	}, nil
}

// NGramTokens returns all rolling windows of width n over s, joined by
// single spaces. Inputs shorter than n yield the input itself, so short
// chunk parts still produce one usable token.
func NGramTokens(s string, n int) string {
	if len(s) <= n {
		return s
	}

	var b strings.Builder
	b.Grow((len(s) - n + 1) * (n + 1))
	for i := 0; i+n <= len(s); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+n])
	}
	return b.String()
}
