package store

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/halcyonsec/simdex/internal/sample"
)

// scroll pages through a query's results using Bleve's search-after
// pagination, sorted by document ID. Each page is a fresh search keyed
// off the last ID of the previous page, so the cursor survives documents
// being reindexed mid-iteration. Once exhausted it stays exhausted.
type scroll struct {
	store    *BleveStore
	query    blevequery.Query
	pageSize int
	after    []string
	done     bool
}

func (s *scroll) Next(ctx context.Context) ([]*sample.Sample, error) {
	if s.done {
		return nil, nil
	}

	req := bleve.NewSearchRequest(s.query)
	req.Size = s.pageSize
	req.SortBy([]string{"_id"})
	if s.after != nil {
		req.SearchAfter = s.after
	}

	res, err := s.store.searchPage(ctx, req)
	if err != nil {
		s.done = true
		return nil, fmt.Errorf("scroll page: %w", err)
	}
	if len(res.Hits) == 0 {
		s.done = true
		return nil, nil
	}
	s.after = []string{res.Hits[len(res.Hits)-1].ID}

	page := make([]*sample.Sample, 0, len(res.Hits))
	for _, hit := range res.Hits {
		smp, err := s.store.Get(ctx, hit.ID)
		if err != nil {
			s.done = true
			return nil, fmt.Errorf("load scrolled sample: %w", err)
		}
		page = append(page, smp)
	}
	return page, nil
}
