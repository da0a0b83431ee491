package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	repo, err := NewSQLite(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(ctx) })

	nodes := []map[string]any{
		{"id": "MONDO:0005148", "name": "type 2 diabetes mellitus", "category": []any{"disease"},
			"synonym": []any{"T2D", "NIDDM"}, "xrefs": []any{"DOID:9352", "UMLS:C0011860"}, "source": "mondo"},
		{"id": "MONDO:0005015", "name": "diabetes mellitus", "category": []any{"disease"}},
		{"id": "NCBIGene:3630", "name": "INS", "category": []any{"gene"}, "clique": []any{"HGNC:6081", "NCBIGene:3630"}},
		{"id": "HP:0000118", "name": "Phenotypic abnormality", "category": "phenotypic_feature"},
		{"id": "http://example.org/raw/1", "name": "100%_match"},
	}
	edges := []struct {
		s, o, rel string
		props     map[string]any
	}{
		{"NCBIGene:3630", "MONDO:0005148", "gene_associated_with_condition",
			map[string]any{"id": "EDGE:1", "relation": "RO:0002200", "publications": []any{"PMID:123"}}},
		{"MONDO:0005148", "MONDO:0005015", "subclass_of", map[string]any{"relation": "rdfs:subClassOf"}},
		{"MONDO:0005148", "GHOST:1", "related_to", nil},
	}

	require.NoError(t, repo.WithLoader(ctx, func(l *Loader) error {
		for _, n := range nodes {
			if err := l.UpsertNode(ctx, n); err != nil {
				return err
			}
		}
		for _, e := range edges {
			if err := l.UpsertEdge(ctx, e.s, e.o, e.rel, e.props); err != nil {
				return err
			}
		}
		return nil
	}))
	return repo
}

func TestSQLiteUpsertNodeRequiresID(t *testing.T) {
	repo, err := NewSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	defer repo.Close(context.Background())

	err = repo.UpsertNode(context.Background(), map[string]any{"name": "anonymous"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)
}

func TestSQLiteUpsertNodeReplaces(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertNode(ctx, map[string]any{"id": "HP:0000118", "name": "renamed"}))

	n, err := repo.GetConcept(ctx, "HP:0000118")
	require.NoError(t, err)
	assert.Equal(t, "renamed", n.Name)
	assert.Empty(t, n.Categories)
}

func TestSQLiteDistinctIdentifiers(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	ids, err := repo.DistinctIdentifiers(ctx, nil, 100)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	ids, err = repo.DistinctIdentifiers(ctx, []string{"MONDO:", "http://"}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"HP:0000118", "NCBIGene:3630"}, ids)

	ids, err = repo.DistinctIdentifiers(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestSQLiteIdentifierPrefixes(t *testing.T) {
	repo := newTestSQLite(t)

	prefixes, err := repo.IdentifierPrefixes(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"MONDO", "NCBIGene", "HP", "http"}, prefixes)
}

func TestSQLiteFindConcepts(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query ConceptQuery
		want  []string
	}{
		{"keyword substring", ConceptQuery{Keywords: []string{"DIABETES"}}, []string{"MONDO:0005015", "MONDO:0005148"}},
		{"any keyword", ConceptQuery{Keywords: []string{"ins", "phenotypic"}}, []string{"HP:0000118", "NCBIGene:3630"}},
		{"category", ConceptQuery{Categories: []string{"Gene"}}, []string{"NCBIGene:3630"}},
		{"keyword and category", ConceptQuery{Keywords: []string{"type 2"}, Categories: []string{"disease"}}, []string{"MONDO:0005148"}},
		{"like wildcards are literal", ConceptQuery{Keywords: []string{"%_"}}, []string{"http://example.org/raw/1"}},
		{"paged", ConceptQuery{Keywords: []string{"diabetes"}, Offset: 1, Limit: 1}, []string{"MONDO:0005148"}},
		{"offset only", ConceptQuery{Keywords: []string{"diabetes"}, Offset: 1}, []string{"MONDO:0005148"}},
		{"no match", ConceptQuery{Keywords: []string{"zebra"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := repo.FindConcepts(ctx, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, n := range nodes {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteGetConcept(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	n, err := repo.GetConcept(ctx, "mondo:0005148")
	require.NoError(t, err)
	assert.Equal(t, "MONDO:0005148", n.ID)
	assert.Equal(t, []string{"T2D", "NIDDM"}, n.Synonyms)
	assert.Equal(t, []Property{{Key: "source", Value: "mondo"}}, n.Details())

	_, err = repo.GetConcept(ctx, "MONDO:404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSQLiteExactMatches(t *testing.T) {
	repo := newTestSQLite(t)

	rows, err := repo.ExactMatches(context.Background(), []string{"DOID:9352", "HGNC:6081", "doid:9352", "NOPE:1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "DOID:9352", rows[0].InputID)
	assert.Equal(t, "MONDO:0005148", rows[0].MatchID)
	assert.Equal(t, []string{"DOID:9352", "UMLS:C0011860"}, rows[0].Xrefs)

	assert.Equal(t, "HGNC:6081", rows[1].InputID)
	assert.Equal(t, "NCBIGene:3630", rows[1].MatchID)
}

func TestSQLiteFindStatements(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query StatementQuery
		want  []string
	}{
		{"by source", StatementQuery{Sources: []string{"mondo:0005148"}}, []string{
			"MONDO:0005148:subclass_of:MONDO:0005015", "MONDO:0005148:related_to:GHOST:1"}},
		{"by target", StatementQuery{Targets: []string{"MONDO:0005148"}}, []string{"EDGE:1"}},
		{"edge label", StatementQuery{EdgeLabel: "SUBCLASS_OF"}, []string{"MONDO:0005148:subclass_of:MONDO:0005015"}},
		{"relation", StatementQuery{Relation: "RO:0002200"}, []string{"EDGE:1"}},
		{"source keyword hits synonym", StatementQuery{SourceKeywords: []string{"niddm"}, TargetCategories: []string{"disease"}},
			[]string{"MONDO:0005148:subclass_of:MONDO:0005015"}},
		{"target category", StatementQuery{TargetCategories: []string{"disease"}, Sources: []string{"NCBIGene:3630"}}, []string{"EDGE:1"}},
		{"paged", StatementQuery{Offset: 1, Limit: 1}, []string{"MONDO:0005148:subclass_of:MONDO:0005015"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := repo.FindStatements(ctx, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, r := range rows {
				ids = append(ids, r.ID())
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteStatementToMissingNode(t *testing.T) {
	repo := newTestSQLite(t)

	rows, err := repo.FindStatements(context.Background(), StatementQuery{Targets: []string{"GHOST:1"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "GHOST:1", rows[0].Object.ID)
	assert.Empty(t, rows[0].Object.Name)
	assert.Empty(t, rows[0].Object.Categories)
}

func TestSQLiteGetStatement(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	row, err := repo.GetStatement(ctx, StatementRef{ID: "EDGE:1"})
	require.NoError(t, err)
	assert.Equal(t, "NCBIGene:3630", row.Subject.ID)
	assert.Equal(t, []string{"PMID:123"}, row.Edge.Publications)

	ref, err := ParseStatementRef("MONDO:0005148:subclass_of:MONDO:0005015")
	require.NoError(t, err)
	row, err = repo.GetStatement(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "rdfs:subClassOf", row.Edge.Relation)
	assert.Equal(t, "MONDO:0005148:subclass_of:MONDO:0005015", row.ID())

	_, err = repo.GetStatement(ctx, StatementRef{ID: "EDGE:404"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSQLiteQueryUnsupported(t *testing.T) {
	repo := newTestSQLite(t)

	_, err := repo.Query(context.Background(), "MATCH (n) RETURN n", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnsupported)
}

func TestParseStatementRef(t *testing.T) {
	ref, err := ParseStatementRef("EDGE:1")
	require.NoError(t, err)
	assert.Equal(t, StatementRef{ID: "EDGE:1"}, ref)

	_, err = ParseStatementRef("a:b:c")
	assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)
}

func TestNodeFromProps(t *testing.T) {
	n := NodeFromProps(map[string]any{
		"id":       "X:1",
		"iri":      "http://x.org/1",
		"category": []any{"g", "e", "n", "e"},
		"clique":   []any{"X:1", "Y:1"},
		"xrefs":    []any{"Y:1", "Z:1"},
	})
	assert.Equal(t, "http://x.org/1", n.URI)
	assert.Equal(t, []string{"gene"}, n.Categories)
	assert.Equal(t, []string{"Y:1", "Z:1"}, n.ExactMatches())
	assert.Empty(t, n.Synonyms)
}
