// Package store provides the document index the similarity analytics run
// against: sample records in SQLite, blocking fields mirrored into a Bleve
// index for candidate queries, and a scroll-style cursor for paging over
// unbounded result sets.
package store

import (
	"context"
	"errors"

	"github.com/halcyonsec/simdex/internal/sample"
)

// Backend names accepted by Open.
const (
	// BackendBleve is the only backend that supports the blocking
	// queries the compare/group analytics need.
	BackendBleve = "bleve"
)

var (
	// ErrBackendUnsupported is returned by Open when the configured
	// backend cannot serve the analytics. Callers treat it as a clean
	// skip, not a failure.
	ErrBackendUnsupported = errors.New("storage backend does not support similarity analytics")

	// ErrNotFound is returned when a sample ID has no record.
	ErrNotFound = errors.New("sample not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Indexed field names usable in queries.
const (
	FieldChunkSize        = "chunk_size"
	FieldChunkToken       = "chunk_token"
	FieldDoubleChunkToken = "double_chunk_token"
	FieldAnalyzed         = "analyzed"
	FieldHasMatches       = "has_matches"
)

// Query is the filter language the analytics need from a backend:
// exact equality, membership in a small value set, boolean composition
// with minimum-should-match, and tokenized text matching.
type Query interface {
	isQuery()
}

// BoolEquals matches documents whose boolean field equals Value.
type BoolEquals struct {
	Field string
	Value bool
}

// IntIn matches documents whose numeric field equals any of Values.
type IntIn struct {
	Field  string
	Values []int
}

// TokenMatch matches documents whose token field shares at least one
// token with Tokens (whitespace-separated, matched verbatim).
type TokenMatch struct {
	Field  string
	Tokens string
}

// DocID matches the document with the given ID. Used under MustNot to
// exclude a sample from its own candidate set.
type DocID struct {
	ID string
}

// Compound combines sub-queries: all of Must, none of MustNot, and at
// least MinimumShouldMatch of Should.
type Compound struct {
	Must               []Query
	Should             []Query
	MustNot            []Query
	MinimumShouldMatch int
}

func (*BoolEquals) isQuery() {}
func (*IntIn) isQuery()      {}
func (*TokenMatch) isQuery() {}
func (*DocID) isQuery()      {}
func (*Compound) isQuery()   {}

// Patch is a partial update merged into an existing record. Nil fields
// are left untouched. Matches entries are merged key-by-key into the
// record's match map; existing keys are overwritten, none are removed.
type Patch struct {
	Analyzed *bool
	Matches  map[string]int
}

// Scroll is a finite, server-driven cursor over a query's results,
// ordered by sample ID. Next returns the following page, or an empty
// page once the results are exhausted. A scroll cannot be restarted;
// issue a fresh Search to iterate again.
type Scroll interface {
	Next(ctx context.Context) ([]*sample.Sample, error)
}

// Client is the index interface the analytics are written against.
// Implementations must make PartialUpdate safe under concurrent calls
// for the same ID: two overlapping match writes to one sample must both
// land in its match map.
type Client interface {
	// Put creates or replaces a sample record.
	Put(ctx context.Context, s *sample.Sample) error

	// Get loads a sample by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*sample.Sample, error)

	// Search starts a scroll over all samples matching q.
	Search(ctx context.Context, q Query, pageSize int) (Scroll, error)

	// PartialUpdate merges p into the record with the given ID without
	// the caller doing a read-modify-write.
	PartialUpdate(ctx context.Context, id string, p Patch) error

	Close() error
}
