package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/halcyonsec/simdex/internal/store"
)

// matchRecord is one sample's ID plus its recorded match map, in store
// iteration order.
type matchRecord struct {
	id      string
	matches map[string]int
}

// Grouper runs the group analytic: it reads every sample with at least
// one recorded match and greedily partitions them into similarity
// groups.
type Grouper struct {
	store    store.Client
	pageSize int
	log      *slog.Logger
}

// GrouperOption configures a Grouper.
type GrouperOption func(*Grouper)

// WithGroupPageSize sets the scroll page size.
func WithGroupPageSize(n int) GrouperOption {
	return func(g *Grouper) {
		g.pageSize = n
	}
}

// WithGroupLogger sets the grouper logger. Defaults to slog.Default.
func WithGroupLogger(l *slog.Logger) GrouperOption {
	return func(g *Grouper) {
		g.log = l
	}
}

// NewGrouper creates a grouper over the given store.
func NewGrouper(client store.Client, opts ...GrouperOption) *Grouper {
	g := &Grouper{
		store:    client,
		pageSize: store.DefaultPageSize,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Group returns the similarity groups over all samples whose match map
// is non-empty. Input order is the store's iteration order (ascending
// sample ID), and the result is deterministic for fixed match data.
func (g *Grouper) Group(ctx context.Context) ([][]string, error) {
	log := g.log.With(slog.String("run_id", uuid.NewString()))

	sc, err := g.store.Search(ctx,
		&store.BoolEquals{Field: store.FieldHasMatches, Value: true}, g.pageSize)
	if err != nil {
		return nil, fmt.Errorf("search matched samples: %w", err)
	}

	var records []matchRecord
	for {
		page, err := sc.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("scroll matched samples: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, s := range page {
			records = append(records, matchRecord{id: s.SHA256, matches: s.Fuzzy.Matches})
		}
	}

	groups := clusterRecords(records)
	log.Info("group_finished",
		slog.Int("samples", len(records)),
		slog.Int("groups", len(groups)))
	return groups, nil
}

// clusterRecords applies the greedy membership rule, single pass in
// input order: a sample joins every existing group whose members all
// appear in its match map, and starts a new group when it joined none
// and belongs to none.
//
// Scanning deliberately continues after a successful addition, so a
// sample can land in more than one group. That mirrors the long-observed
// behavior of this analytic; consumers depend on the exact group shapes,
// so it is preserved rather than cut off after the first placement.
func clusterRecords(records []matchRecord) [][]string {
	groups := [][]string{}
	for _, rec := range records {
		inGroup := false
		for i := range groups {
			if slices.Contains(groups[i], rec.id) {
				inGroup = true
				continue
			}
			shouldAdd := true
			for _, member := range groups[i] {
				if _, ok := rec.matches[member]; !ok {
					shouldAdd = false
				}
			}
			if shouldAdd {
				groups[i] = append(groups[i], rec.id)
				inGroup = true
			}
		}
		if !inGroup {
			groups = append(groups, []string{rec.id})
		}
	}
	return groups
}
