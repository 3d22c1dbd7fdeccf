package analytics

import (
	"github.com/halcyonsec/simdex/internal/sample"
	"github.com/halcyonsec/simdex/internal/store"
)

// BlockingQuery builds the candidate filter for one new sample. It is
// the cheap pre-filter that keeps compare off the full pairwise grid:
//
//   - chunk_size must be s's size, half of it, or double it. Similarity
//     is structurally impossible outside one block-size doubling, so
//     this excludes no true positive.
//   - the candidate must share at least one rolling token with s at
//     either block-size resolution.
//   - s itself is excluded.
func BlockingQuery(s *sample.Sample) store.Query {
	size := s.Fuzzy.ChunkSize
	return &store.Compound{
		Must: []store.Query{
			&store.IntIn{
				Field:  store.FieldChunkSize,
				Values: []int{size / 2, size, size * 2},
			},
		},
		Should: []store.Query{
			&store.TokenMatch{Field: store.FieldChunkToken, Tokens: s.Fuzzy.ChunkToken},
			&store.TokenMatch{Field: store.FieldDoubleChunkToken, Tokens: s.Fuzzy.DoubleChunkToken},
		},
		MinimumShouldMatch: 1,
		MustNot: []store.Query{
			&store.DocID{ID: s.SHA256},
		},
	}
}
