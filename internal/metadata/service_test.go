package metadata

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/biolink"
	"github.com/NCATS-Tangerine/tkg-beacon/pkg/types"
)

const nodeSummary = `category|frequency
gene|120
disease|300
local widget|5
gene|30
`

const edgeSummary = `|subject_category|subject_prefix|edge_type|relation|object_category|object_prefix|provided_by|frequency
0|gene|HGNC|gene_associated_with_condition|RO:0004000|disease|MONDO|clinvar|40
1|gene|NCBIGene|gene_associated_with_condition|RO:0004000|disease|MONDO|omim|60
2|gene|HGNC|interacts_with||gene|HGNC|biogrid|70
3|disease|MONDO|frobnicates||disease|MONDO|local|7
`

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, NodeSummaryFile), []byte(nodeSummary), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, EdgeSummaryFile), []byte(edgeSummary), 0o644))

	model, err := biolink.Default()
	require.NoError(t, err)
	return NewService(dir, model, time.Hour, nil), dir
}

func TestCategories(t *testing.T) {
	s, _ := newTestService(t)

	got, err := s.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "disease", got[0].Category)
	assert.Equal(t, int64(300), got[0].Frequency)
	assert.Equal(t, "gene", got[1].Category)
	assert.Equal(t, int64(150), got[1].Frequency)
	assert.NotEmpty(t, got[1].Description)

	assert.Equal(t, biolink.DefaultCategory, got[2].Category)
	assert.Equal(t, "local widget", got[2].LocalCategory)
	assert.Equal(t, int64(5), got[2].Frequency)
}

func TestKnowledgeMap(t *testing.T) {
	s, _ := newTestService(t)

	got, err := s.KnowledgeMap(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, types.BeaconKnowledgeMapStatement{
		Subject:   types.BeaconKnowledgeMapSubject{Category: "gene", Prefixes: []string{"HGNC", "NCBIGene"}},
		Predicate: types.BeaconKnowledgeMapPredicate{EdgeLabel: "gene_associated_with_condition"},
		Object:    types.BeaconKnowledgeMapObject{Category: "disease", Prefixes: []string{"MONDO"}},
		Frequency: 100,
	}, got[0])
	assert.Equal(t, int64(70), got[1].Frequency)
	assert.Equal(t, "frobnicates", got[2].Predicate.EdgeLabel)
}

func TestPredicates(t *testing.T) {
	s, _ := newTestService(t)

	got, err := s.Predicates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "gene_associated_with_condition", got[0].EdgeLabel)
	assert.Equal(t, "RO:0004000", got[0].Relation)
	assert.Equal(t, int64(100), got[0].Frequency)
	assert.NotEmpty(t, got[0].Description)

	assert.Equal(t, "interacts_with", got[1].EdgeLabel)
	assert.Empty(t, got[1].Relation)

	unknown := got[2]
	assert.Equal(t, biolink.DefaultEdgeLabel, unknown.EdgeLabel)
	assert.Equal(t, "frobnicates", unknown.Relation)
	assert.Equal(t, int64(7), unknown.Frequency)
}

func TestCacheHonorsTTL(t *testing.T) {
	s, dir := newTestService(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := s.Categories(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, NodeSummaryFile), []byte("category|frequency\ngene|1\n"), 0o644))

	now = now.Add(30 * time.Minute)
	cachedResult, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, cachedResult)

	now = now.Add(time.Hour)
	refreshed, err := s.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, refreshed, 1)
	assert.Equal(t, int64(1), refreshed[0].Frequency)
}

func TestConcurrentCallersShareResult(t *testing.T) {
	s, _ := newTestService(t)

	var wg sync.WaitGroup
	results := make([][]types.BeaconPredicate, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.Predicates(context.Background())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestWarm(t *testing.T) {
	s, _ := newTestService(t)
	assert.False(t, s.Ready())

	require.NoError(t, s.Warm(context.Background()))
	assert.True(t, s.Ready())
}

func TestWarmMissingFiles(t *testing.T) {
	model, err := biolink.Default()
	require.NoError(t, err)
	s := NewService(t.TempDir(), model, 0, nil)

	assert.Error(t, s.Warm(context.Background()))
	assert.False(t, s.Ready())
}

func TestReadSummaryErrors(t *testing.T) {
	dir := t.TempDir()
	missingCol := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(missingCol, []byte("category|count\ngene|1\n"), 0o644))
	_, err := ReadNodeSummary(missingCol)
	assert.ErrorContains(t, err, `missing column "frequency"`)

	badFreq := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(badFreq, []byte("category|frequency\ngene|lots\n"), 0o644))
	_, err = ReadNodeSummary(badFreq)
	assert.ErrorContains(t, err, "line 2")

	floats := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(floats, []byte("category|frequency\ngene|12.0\n"), 0o644))
	rows, err := ReadNodeSummary(floats)
	require.NoError(t, err)
	assert.Equal(t, []NodeRow{{Category: "gene", Frequency: 12}}, rows)
}
