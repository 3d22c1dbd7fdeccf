package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/halcyonsec/simdex/internal/sample"
)

const (
	// TokenAnalyzerName is the analyzer applied to the blocking token
	// fields. The tokens are precomputed by the ingest side, so the
	// analyzer only splits on whitespace; case is preserved because the
	// tokens come from base64 material.
	TokenAnalyzerName = "block_tokens"

	// DefaultPageSize is the scroll page size when the caller passes
	// a non-positive one.
	DefaultPageSize = 1000

	// DefaultCacheSize is the sample read cache capacity.
	DefaultCacheSize = 4096

	indexDirName = "blocking.bleve"
	dbFileName   = "samples.db"
)

// BleveStore implements Client on a Bleve blocking index paired with a
// SQLite record store. Full sample records live in SQLite; Bleve carries
// only the fields queries filter on. The single SQLite writer connection
// plus a per-store mutex serialize overlapping partial updates, so two
// comparisons touching the same sample's match map cannot race.
type BleveStore struct {
	mu     sync.RWMutex
	idx    bleve.Index
	db     *sql.DB
	cache  *lru.Cache[string, *sample.Sample]
	closed bool
}

var _ Client = (*BleveStore)(nil)

// blockDoc is the Bleve-side projection of a sample.
type blockDoc struct {
	ChunkSize        int    `json:"chunk_size"`
	ChunkToken       string `json:"chunk_token"`
	DoubleChunkToken string `json:"double_chunk_token"`
	Analyzed         bool   `json:"analyzed"`
	HasMatches       bool   `json:"has_matches"`
}

// Open creates the store for the configured backend. Only the bleve
// backend supports the blocking queries the analytics need; anything
// else yields ErrBackendUnsupported so callers can skip cleanly.
func Open(backend, dir string, cacheSize int) (Client, error) {
	if backend != BackendBleve {
		return nil, fmt.Errorf("%w: %q", ErrBackendUnsupported, backend)
	}
	return New(dir, cacheSize)
}

// New creates a BleveStore rooted at dir. An empty dir builds an
// in-memory store (memonly Bleve index, :memory: SQLite), used by tests.
func New(dir string, cacheSize int) (*BleveStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	dsn := ":memory:"
	if dir == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
		indexPath := filepath.Join(dir, indexDirName)
		idx, err = bleve.Open(indexPath)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(indexPath, indexMapping)
		}
		if err != nil {
			return nil, fmt.Errorf("open blocking index %s: %w", indexPath, err)
		}
		dsn = filepath.Join(dir, dbFileName)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("open sample database: %w", err)
	}

	// Single writer prevents SQLITE_BUSY under the parallel compare loop
	// and gives partial updates their per-document serialization.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = idx.Close()
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS samples (
		sha256             TEXT PRIMARY KEY,
		hash               TEXT NOT NULL,
		chunk_size         INTEGER NOT NULL,
		chunk_token        TEXT NOT NULL,
		double_chunk_token TEXT NOT NULL,
		analyzed           INTEGER NOT NULL DEFAULT 0,
		matches            TEXT NOT NULL DEFAULT '{}'
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = idx.Close()
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	cache, err := lru.New[string, *sample.Sample](cacheSize)
	if err != nil {
		_ = idx.Close()
		_ = db.Close()
		return nil, fmt.Errorf("create sample cache: %w", err)
	}

	return &BleveStore{idx: idx, db: db, cache: cache}, nil
}

// createIndexMapping builds the Bleve mapping for blockDoc: numeric
// chunk size, whitespace-token text for the token fields, booleans for
// the analytic flags.
func createIndexMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(TokenAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": whitespace.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("add token analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	size := bleve.NewNumericFieldMapping()
	size.Store = false
	size.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldChunkSize, size)

	for _, field := range []string{FieldChunkToken, FieldDoubleChunkToken} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = TokenAnalyzerName
		fm.Store = false
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		doc.AddFieldMappingsAt(field, fm)
	}

	for _, field := range []string{FieldAnalyzed, FieldHasMatches} {
		fm := bleve.NewBooleanFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(field, fm)
	}

	im.DefaultMapping = doc
	return im, nil
}

// Put creates or replaces a sample record and its blocking projection.
func (b *BleveStore) Put(ctx context.Context, s *sample.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	matchesJSON, err := json.Marshal(s.Fuzzy.Matches)
	if err != nil {
		return fmt.Errorf("marshal matches for %s: %w", s.SHA256, err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO samples
			(sha256, hash, chunk_size, chunk_token, double_chunk_token, analyzed, matches)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.SHA256, s.Fuzzy.Hash, s.Fuzzy.ChunkSize, s.Fuzzy.ChunkToken,
		s.Fuzzy.DoubleChunkToken, boolToInt(s.Fuzzy.Analyzed), string(matchesJSON))
	if err != nil {
		return fmt.Errorf("store sample %s: %w", s.SHA256, err)
	}

	b.cache.Remove(s.SHA256)
	if err := b.indexBlock(s.SHA256, &s.Fuzzy); err != nil {
		return err
	}
	return nil
}

// Get loads a sample by ID, via the read cache. Cached samples are
// shared; callers must not mutate them.
func (b *BleveStore) Get(ctx context.Context, id string) (*sample.Sample, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	if s, ok := b.cache.Get(id); ok {
		return s, nil
	}

	s, err := b.loadSample(ctx, b.db, id)
	if err != nil {
		return nil, err
	}
	b.cache.Add(id, s)
	return s, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (b *BleveStore) loadSample(ctx context.Context, q querier, id string) (*sample.Sample, error) {
	var (
		s           sample.Sample
		analyzed    int
		matchesJSON string
	)
	s.SHA256 = id

	row := q.QueryRowContext(ctx, `
		SELECT hash, chunk_size, chunk_token, double_chunk_token, analyzed, matches
		FROM samples WHERE sha256 = ?`, id)
	err := row.Scan(&s.Fuzzy.Hash, &s.Fuzzy.ChunkSize, &s.Fuzzy.ChunkToken,
		&s.Fuzzy.DoubleChunkToken, &analyzed, &matchesJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load sample %s: %w", id, err)
	}

	s.Fuzzy.Analyzed = analyzed != 0
	if err := json.Unmarshal([]byte(matchesJSON), &s.Fuzzy.Matches); err != nil {
		return nil, fmt.Errorf("decode matches for %s: %w", id, err)
	}
	if s.Fuzzy.Matches == nil {
		s.Fuzzy.Matches = map[string]int{}
	}
	return &s, nil
}

// PartialUpdate merges p into the record inside one transaction, then
// refreshes the blocking projection. Match entries only ever grow.
func (b *BleveStore) PartialUpdate(ctx context.Context, id string, p Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update for %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	s, err := b.loadSample(ctx, tx, id)
	if err != nil {
		return err
	}

	if p.Analyzed != nil {
		s.Fuzzy.Analyzed = *p.Analyzed
	}
	for other, score := range p.Matches {
		s.Fuzzy.Matches[other] = score
	}

	matchesJSON, err := json.Marshal(s.Fuzzy.Matches)
	if err != nil {
		return fmt.Errorf("marshal matches for %s: %w", id, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE samples SET analyzed = ?, matches = ? WHERE sha256 = ?`,
		boolToInt(s.Fuzzy.Analyzed), string(matchesJSON), id)
	if err != nil {
		return fmt.Errorf("update sample %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update for %s: %w", id, err)
	}

	b.cache.Remove(id)
	return b.indexBlock(id, &s.Fuzzy)
}

// Search starts a scroll over all samples matching q, ordered by ID.
func (b *BleveStore) Search(ctx context.Context, q Query, pageSize int) (Scroll, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	bq, err := buildBleveQuery(q)
	if err != nil {
		return nil, err
	}
	return &scroll{store: b, query: bq, pageSize: pageSize}, nil
}

// Close closes the blocking index and the record store.
func (b *BleveStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	idxErr := b.idx.Close()
	dbErr := b.db.Close()
	if idxErr != nil {
		return fmt.Errorf("close blocking index: %w", idxErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close sample database: %w", dbErr)
	}
	return nil
}

// indexBlock writes the Bleve projection for one sample. Callers hold
// the write lock.
func (b *BleveStore) indexBlock(id string, f *sample.Fuzzy) error {
	doc := blockDoc{
		ChunkSize:        f.ChunkSize,
		ChunkToken:       f.ChunkToken,
		DoubleChunkToken: f.DoubleChunkToken,
		Analyzed:         f.Analyzed,
		HasMatches:       len(f.Matches) > 0,
	}
	if err := b.idx.Index(id, doc); err != nil {
		return fmt.Errorf("index blocking fields for %s: %w", id, err)
	}
	return nil
}

// searchPage runs one scroll page against the Bleve index.
func (b *BleveStore) searchPage(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	return b.idx.SearchInContext(ctx, req)
}

// buildBleveQuery translates the backend-neutral query model into Bleve
// queries.
func buildBleveQuery(q Query) (blevequery.Query, error) {
	switch q := q.(type) {
	case *BoolEquals:
		bq := bleve.NewBoolFieldQuery(q.Value)
		bq.SetField(q.Field)
		return bq, nil

	case *IntIn:
		if len(q.Values) == 0 {
			return nil, fmt.Errorf("empty value set for field %s", q.Field)
		}
		parts := make([]blevequery.Query, 0, len(q.Values))
		for _, v := range q.Values {
			val := float64(v)
			inclusive := true
			nq := bleve.NewNumericRangeInclusiveQuery(&val, &val, &inclusive, &inclusive)
			nq.SetField(q.Field)
			parts = append(parts, nq)
		}
		return bleve.NewDisjunctionQuery(parts...), nil

	case *TokenMatch:
		mq := bleve.NewMatchQuery(q.Tokens)
		mq.SetField(q.Field)
		mq.Analyzer = TokenAnalyzerName
		return mq, nil

	case *DocID:
		return bleve.NewDocIDQuery([]string{q.ID}), nil

	case *Compound:
		bq := bleve.NewBooleanQuery()
		for _, sub := range q.Must {
			translated, err := buildBleveQuery(sub)
			if err != nil {
				return nil, err
			}
			bq.AddMust(translated)
		}
		for _, sub := range q.Should {
			translated, err := buildBleveQuery(sub)
			if err != nil {
				return nil, err
			}
			bq.AddShould(translated)
		}
		for _, sub := range q.MustNot {
			translated, err := buildBleveQuery(sub)
			if err != nil {
				return nil, err
			}
			bq.AddMustNot(translated)
		}
		if q.MinimumShouldMatch > 0 {
			bq.SetMinShould(float64(q.MinimumShouldMatch))
		}
		return bq, nil

	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
