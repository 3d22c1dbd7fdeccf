package analytics

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonsec/simdex/internal/sample"
	"github.com/halcyonsec/simdex/internal/store"
)

// countingComparator records every pair it scores and returns a fixed
// score.
type countingComparator struct {
	mu    sync.Mutex
	pairs map[[2]string]int
	score int
}

func newCountingComparator(score int) *countingComparator {
	return &countingComparator{pairs: map[[2]string]int{}, score: score}
}

func (c *countingComparator) fn(a, b string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[[2]string{a, b}]++
	return c.score, nil
}

func (c *countingComparator) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.pairs {
		n += v
	}
	return n
}

func newTestStore(t *testing.T) *store.BleveStore {
	t.Helper()
	s, err := store.New("", 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putSample(t *testing.T, s *store.BleveStore, id, hash string) *sample.Sample {
	t.Helper()
	smp, err := sample.Parse(id, hash)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), smp))
	return smp
}

func getSample(t *testing.T, s *store.BleveStore, id string) *sample.Sample {
	t.Helper()
	smp, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return smp
}

func TestEngine_Compare_SymmetricMatches(t *testing.T) {
	// Given: two unanalyzed samples sharing chunk size and tokens
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:sharedchunkmaterialone:shareddouble")
	putSample(t, st, "bbbb", "96:sharedchunkmaterialtwo:shareddouble")

	cmp := newCountingComparator(42)
	engine := NewEngine(st, cmp.fn, WithPageSize(2))

	// When: compare runs
	require.NoError(t, engine.Compare(context.Background()))

	// Then: both sides carry the identical score
	a := getSample(t, st, "aaaa")
	b := getSample(t, st, "bbbb")
	assert.Equal(t, 42, a.Fuzzy.Matches["bbbb"])
	assert.Equal(t, 42, b.Fuzzy.Matches["aaaa"])
	assert.True(t, a.Fuzzy.Analyzed)
	assert.True(t, b.Fuzzy.Analyzed)
}

func TestEngine_Compare_BlockingExcludesDistantChunkSizes(t *testing.T) {
	// Given: token overlap but chunk sizes more than a doubling apart
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:sharedchunkmaterial:sharedxyz")
	putSample(t, st, "cccc", "1536:sharedchunkmaterial:sharedxyz")

	cmp := newCountingComparator(50)
	engine := NewEngine(st, cmp.fn)

	// When: compare runs
	require.NoError(t, engine.Compare(context.Background()))

	// Then: the comparator never fired, both samples are still analyzed
	assert.Zero(t, cmp.calls())
	assert.True(t, getSample(t, st, "aaaa").Fuzzy.Analyzed)
	assert.True(t, getSample(t, st, "cccc").Fuzzy.Analyzed)
	assert.Empty(t, getSample(t, st, "aaaa").Fuzzy.Matches)
}

func TestEngine_Compare_AdjacentChunkSizeIsCandidate(t *testing.T) {
	// Given: shared tokens at exactly one block-size doubling
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:sharedchunkmaterial:aaadouble")
	putSample(t, st, "dddd", "192:sharedchunkmaterial:dddother")

	cmp := newCountingComparator(10)
	engine := NewEngine(st, cmp.fn)

	require.NoError(t, engine.Compare(context.Background()))

	assert.Equal(t, 10, getSample(t, st, "aaaa").Fuzzy.Matches["dddd"])
	assert.Equal(t, 10, getSample(t, st, "dddd").Fuzzy.Matches["aaaa"])
}

func TestEngine_Compare_SecondRunDoesNoWork(t *testing.T) {
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:sharedchunkmaterialone:shareddouble")
	putSample(t, st, "bbbb", "96:sharedchunkmaterialtwo:shareddouble")

	cmp := newCountingComparator(42)
	engine := NewEngine(st, cmp.fn)
	require.NoError(t, engine.Compare(context.Background()))
	require.Positive(t, cmp.calls())

	// When: compare reruns with no new data
	rerun := newCountingComparator(42)
	engine = NewEngine(st, rerun.fn)
	require.NoError(t, engine.Compare(context.Background()))

	// Then: zero additional comparisons
	assert.Zero(t, rerun.calls())
}

func TestEngine_Compare_NeverComparesSampleWithItself(t *testing.T) {
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:uniquechunkmaterial:uniquedouble")

	cmp := newCountingComparator(99)
	engine := NewEngine(st, cmp.fn)
	require.NoError(t, engine.Compare(context.Background()))

	assert.Zero(t, cmp.calls())
	a := getSample(t, st, "aaaa")
	assert.True(t, a.Fuzzy.Analyzed)
	assert.NotContains(t, a.Fuzzy.Matches, "aaaa")
}

func TestEngine_Compare_OwnIDAbsentFromOwnMatches(t *testing.T) {
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:sharedchunkmaterialone:shareddouble")
	putSample(t, st, "bbbb", "96:sharedchunkmaterialtwo:shareddouble")

	cmp := newCountingComparator(5)
	engine := NewEngine(st, cmp.fn)
	require.NoError(t, engine.Compare(context.Background()))

	assert.NotContains(t, getSample(t, st, "aaaa").Fuzzy.Matches, "aaaa")
	assert.NotContains(t, getSample(t, st, "bbbb").Fuzzy.Matches, "bbbb")
}

func TestEngine_Compare_ZeroScoreIsRecorded(t *testing.T) {
	// A zero score must be a present key, distinct from never-compared.
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:sharedchunkmaterialone:shareddouble")
	putSample(t, st, "bbbb", "96:sharedchunkmaterialtwo:shareddouble")

	cmp := newCountingComparator(0)
	engine := NewEngine(st, cmp.fn)
	require.NoError(t, engine.Compare(context.Background()))

	a := getSample(t, st, "aaaa")
	score, ok := a.Fuzzy.Matches["bbbb"]
	require.True(t, ok)
	assert.Zero(t, score)
}

func TestEngine_Compare_NilComparatorIsNoOp(t *testing.T) {
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:sharedchunkmaterialone:shareddouble")
	putSample(t, st, "bbbb", "96:sharedchunkmaterialtwo:shareddouble")

	engine := NewEngine(st, nil)

	// When: compare runs without a comparator
	require.NoError(t, engine.Compare(context.Background()))

	// Then: no store writes happened, samples stay eligible
	a := getSample(t, st, "aaaa")
	assert.False(t, a.Fuzzy.Analyzed)
	assert.Empty(t, a.Fuzzy.Matches)
}

func TestEngine_Compare_NoCandidatesStillMarksAnalyzed(t *testing.T) {
	st := newTestStore(t)
	putSample(t, st, "aaaa", "96:uniquechunkmaterial:uniquedouble")

	cmp := newCountingComparator(42)
	engine := NewEngine(st, cmp.fn)
	require.NoError(t, engine.Compare(context.Background()))

	a := getSample(t, st, "aaaa")
	assert.True(t, a.Fuzzy.Analyzed)
	assert.Empty(t, a.Fuzzy.Matches)
}

func TestEngine_Compare_ParallelWorkersKeepSymmetry(t *testing.T) {
	// Given: a clique of samples, compared by several workers at once
	st := newTestStore(t)
	ids := []string{"aa01", "aa02", "aa03", "aa04", "aa05", "aa06"}
	for _, id := range ids {
		putSample(t, st, id, "96:sharedchunkmaterial"+id+":shareddouble")
	}

	cmp := newCountingComparator(77)
	engine := NewEngine(st, cmp.fn, WithWorkers(4), WithPageSize(2))

	require.NoError(t, engine.Compare(context.Background()))

	// Then: every pair is symmetric and every sample is analyzed
	for _, id := range ids {
		s := getSample(t, st, id)
		assert.True(t, s.Fuzzy.Analyzed, id)
		for other, score := range s.Fuzzy.Matches {
			assert.Equal(t, score, getSample(t, st, other).Fuzzy.Matches[id],
				"asymmetric pair %s/%s", id, other)
		}
	}
}
