package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterRecords_PairFixture(t *testing.T) {
	// Regression fixture: A and B reference each other, C only knows B.
	records := []matchRecord{
		{id: "A", matches: map[string]int{"B": 1}},
		{id: "B", matches: map[string]int{"A": 1, "C": 1}},
		{id: "C", matches: map[string]int{"B": 1}},
	}

	groups := clusterRecords(records)

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"A", "B"}, groups[0])
	assert.Equal(t, []string{"C"}, groups[1])
}

func TestClusterRecords_SampleCanJoinMultipleGroups(t *testing.T) {
	// X matches every member of both existing groups, so the scan adds
	// it to each. Long-observed behavior, kept on purpose.
	records := []matchRecord{
		{id: "A", matches: map[string]int{"X": 1}},
		{id: "B", matches: map[string]int{"X": 1}},
		{id: "X", matches: map[string]int{"A": 1, "B": 1}},
	}

	groups := clusterRecords(records)

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"A", "X"}, groups[0])
	assert.Equal(t, []string{"B", "X"}, groups[1])
}

func TestClusterRecords_Deterministic(t *testing.T) {
	records := []matchRecord{
		{id: "A", matches: map[string]int{"B": 90, "C": 30}},
		{id: "B", matches: map[string]int{"A": 90}},
		{id: "C", matches: map[string]int{"A": 30, "D": 0}},
		{id: "D", matches: map[string]int{"C": 0}},
	}

	first := clusterRecords(records)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, clusterRecords(records))
	}
}

func TestClusterRecords_Empty(t *testing.T) {
	assert.Empty(t, clusterRecords(nil))
}

func TestGrouper_Group_ReadsStoreInIDOrder(t *testing.T) {
	// Given: the pair fixture persisted, IDs chosen so the store's
	// iteration order is A, B, C
	st := newTestStore(t)
	ctx := context.Background()

	a := putSample(t, st, "aa01", "96:aaaachunkmaterial:aaaadouble")
	b := putSample(t, st, "bb02", "96:bbbbchunkmaterial:bbbbdouble")
	c := putSample(t, st, "cc03", "96:ccccchunkmaterial:ccccdouble")
	a.Fuzzy.Matches = map[string]int{"bb02": 1}
	b.Fuzzy.Matches = map[string]int{"aa01": 1, "cc03": 1}
	c.Fuzzy.Matches = map[string]int{"bb02": 1}
	require.NoError(t, st.Put(ctx, a))
	require.NoError(t, st.Put(ctx, b))
	require.NoError(t, st.Put(ctx, c))

	grouper := NewGrouper(st, WithGroupPageSize(2))

	// When: grouping
	groups, err := grouper.Group(ctx)
	require.NoError(t, err)

	// Then: the fixture shape comes back
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"aa01", "bb02"}, groups[0])
	assert.Equal(t, []string{"cc03"}, groups[1])

	// And: a second invocation returns the identical sequence
	again, err := grouper.Group(ctx)
	require.NoError(t, err)
	assert.Equal(t, groups, again)
}

func TestGrouper_Group_IgnoresSamplesWithoutMatches(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	putSample(t, st, "aa01", "96:aaaachunkmaterial:aaaadouble")
	b := putSample(t, st, "bb02", "96:bbbbchunkmaterial:bbbbdouble")
	c := putSample(t, st, "cc03", "96:ccccchunkmaterial:ccccdouble")
	b.Fuzzy.Matches = map[string]int{"cc03": 55}
	c.Fuzzy.Matches = map[string]int{"bb02": 55}
	require.NoError(t, st.Put(ctx, b))
	require.NoError(t, st.Put(ctx, c))

	groups, err := NewGrouper(st).Group(ctx)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"bb02", "cc03"}, groups[0])
}

func TestGrouper_Group_EmptyCorpus(t *testing.T) {
	st := newTestStore(t)

	groups, err := NewGrouper(st).Group(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGrouper_Group_ZeroScoreStillLinks(t *testing.T) {
	// Present-with-zero means compared; the membership rule only checks
	// key presence, so zero-score pairs still group together.
	st := newTestStore(t)
	ctx := context.Background()

	b := putSample(t, st, "bb02", "96:bbbbchunkmaterial:bbbbdouble")
	c := putSample(t, st, "cc03", "96:ccccchunkmaterial:ccccdouble")
	b.Fuzzy.Matches = map[string]int{"cc03": 0}
	c.Fuzzy.Matches = map[string]int{"bb02": 0}
	require.NoError(t, st.Put(ctx, b))
	require.NoError(t, st.Put(ctx, c))

	groups, err := NewGrouper(st).Group(ctx)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"bb02", "cc03"}, groups[0])
}
