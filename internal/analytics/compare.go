// Package analytics implements the fuzzy-hash similarity analytics run
// as periodic batch jobs over the sample corpus: compare (blocking
// search plus pairwise scoring) and group (greedy transitive
// clustering).
package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonsec/simdex/internal/sample"
	"github.com/halcyonsec/simdex/internal/store"
)

// Comparator scores two fuzzy hashes, returning an integer in [0,100].
type Comparator func(a, b string) (int, error)

// Engine runs the compare analytic: for every sample not yet analyzed,
// find plausible candidates via the blocking filter, score them, record
// the scores symmetrically on both samples, and mark the sample
// analyzed.
type Engine struct {
	store    store.Client
	cmp      Comparator
	pageSize int
	workers  int
	log      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPageSize sets the scroll page size.
func WithPageSize(n int) EngineOption {
	return func(e *Engine) {
		e.pageSize = n
	}
}

// WithWorkers bounds the parallelism of the per-sample outer loop.
// One worker reproduces the single-threaded reference behavior.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLogger sets the engine logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine creates a compare engine. cmp may be nil when no comparator
// implementation is available; Compare then degrades to a logged no-op.
func NewEngine(client store.Client, cmp Comparator, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    client,
		cmp:      cmp,
		pageSize: store.DefaultPageSize,
		workers:  1,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Compare runs the analytic over every sample with analyzed == false.
//
// A store error aborts the run; samples not yet flagged analyzed stay
// eligible, so the next run picks up exactly the missing work. Scores
// are deterministic for identical hashes, which makes reruns after an
// abort converge on the same state.
func (e *Engine) Compare(ctx context.Context) error {
	if e.cmp == nil {
		e.log.Warn("comparator_unavailable", slog.String("hint", "compare skipped, no similarity comparator configured"))
		return nil
	}

	log := e.log.With(slog.String("run_id", uuid.NewString()))

	// Drain the scroll before any writes: marking samples analyzed
	// mid-iteration would perturb the very query being paged.
	pending, err := e.collectUnanalyzed(ctx)
	if err != nil {
		return err
	}
	log.Info("compare_started",
		slog.Int("pending", len(pending)),
		slog.Int("workers", e.workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, s := range pending {
		g.Go(func() error {
			return e.compareOne(gctx, log, s)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("compare_finished", slog.Int("analyzed", len(pending)))
	return nil
}

func (e *Engine) collectUnanalyzed(ctx context.Context) ([]*sample.Sample, error) {
	sc, err := e.store.Search(ctx,
		&store.BoolEquals{Field: store.FieldAnalyzed, Value: false}, e.pageSize)
	if err != nil {
		return nil, fmt.Errorf("search unanalyzed samples: %w", err)
	}

	var pending []*sample.Sample
	for {
		page, err := sc.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("scroll unanalyzed samples: %w", err)
		}
		if len(page) == 0 {
			return pending, nil
		}
		pending = append(pending, page...)
	}
}

// compareOne scores one new sample against its blocking candidates and
// flips its analyzed flag. An empty candidate set still marks the
// sample analyzed; zero matches is a valid outcome.
func (e *Engine) compareOne(ctx context.Context, log *slog.Logger, s *sample.Sample) error {
	sc, err := e.store.Search(ctx, BlockingQuery(s), e.pageSize)
	if err != nil {
		return fmt.Errorf("search candidates for %s: %w", s.SHA256, err)
	}

	candidates := 0
	for {
		page, err := sc.Next(ctx)
		if err != nil {
			return fmt.Errorf("scroll candidates for %s: %w", s.SHA256, err)
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			score, err := e.cmp(s.Fuzzy.Hash, c.Fuzzy.Hash)
			if err != nil {
				return fmt.Errorf("score %s against %s: %w", s.SHA256, c.SHA256, err)
			}

			// Dual write keeps the match relation symmetric and
			// queryable from either endpoint. A zero score is still
			// recorded: present-with-zero means compared and
			// dissimilar, absent means never compared.
			err = e.store.PartialUpdate(ctx, c.SHA256, store.Patch{
				Matches: map[string]int{s.SHA256: score},
			})
			if err != nil {
				return fmt.Errorf("record match on %s: %w", c.SHA256, err)
			}
			err = e.store.PartialUpdate(ctx, s.SHA256, store.Patch{
				Matches: map[string]int{c.SHA256: score},
			})
			if err != nil {
				return fmt.Errorf("record match on %s: %w", s.SHA256, err)
			}

			log.Debug("pair_scored",
				slog.String("sample", s.SHA256),
				slog.String("candidate", c.SHA256),
				slog.Int("score", score))
			candidates++
		}
	}

	analyzed := true
	err = e.store.PartialUpdate(ctx, s.SHA256, store.Patch{Analyzed: &analyzed})
	if err != nil {
		return fmt.Errorf("mark %s analyzed: %w", s.SHA256, err)
	}

	log.Debug("sample_analyzed",
		slog.String("sample", s.SHA256),
		slog.Int("candidates", candidates))
	return nil
}
