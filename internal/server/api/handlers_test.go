package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/biolink"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/config"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/metadata"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/server/graph"
	"github.com/NCATS-Tangerine/tkg-beacon/pkg/types"
)

type stubCiter struct{}

func (stubCiter) Citations(ctx context.Context, pubs []string) []types.BeaconStatementCitation {
	out := make([]types.BeaconStatementCitation, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, types.BeaconStatementCitation{ID: p, Name: "Insulin and diabetes, " + p})
	}
	return out
}

type fixture struct {
	ts   *httptest.Server
	repo *graph.SQLiteRepository
	meta *metadata.Service
}

// Helper to create a test server with routes
func setupTestServer(t *testing.T, mode string, seed func(ctx context.Context, l *graph.Loader) error, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	repo, err := graph.NewSQLite(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(ctx) })
	require.NoError(t, repo.WithLoader(ctx, func(l *graph.Loader) error { return seed(ctx, l) }))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadata.NodeSummaryFile),
		[]byte("category|frequency\ngene|10\ndisease|20\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadata.EdgeSummaryFile),
		[]byte("subject_category|subject_prefix|edge_type|relation|object_category|object_prefix|provided_by|frequency\n"+
			"gene|NCBIGene|gene_associated_with_condition|RO:0002200|disease|MONDO|omim|5\n"), 0o644))

	model, err := biolink.Default()
	require.NoError(t, err)
	reg, err := namespace.DefaultRegistry()
	require.NoError(t, err)

	meta := metadata.NewService(dir, model, time.Hour, nil)
	opts.IdentifierMode = mode
	s := New(Deps{
		Repo:       repo,
		Normalizer: namespace.NewNormalizer(reg, nil),
		CaseMap:    namespace.NewCaseMap(repo, time.Second, nil),
		Model:      model,
		Metadata:   meta,
		Citer:      stubCiter{},
	}, opts)

	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, repo: repo, meta: meta}
}

func curieGraph(ctx context.Context, l *graph.Loader) error {
	nodes := []map[string]any{
		{"id": "MONDO:0005148", "name": "type 2 diabetes mellitus", "category": []any{"disease"},
			"synonym": []any{"NIDDM"}, "xrefs": []any{"DOID:9352"}, "clique": []any{"MONDO:0005148", "UMLS:C0011860"},
			"source": "mondo"},
		{"id": "NCBIGene:3630", "name": "INS", "category": []any{"gene"}, "symbol": "INS"},
		{"id": "LOCAL:1", "name": "widget", "category": []any{"local thing"}},
	}
	for _, n := range nodes {
		if err := l.UpsertNode(ctx, n); err != nil {
			return err
		}
	}
	if err := l.UpsertEdge(ctx, "NCBIGene:3630", "MONDO:0005148", "gene_associated_with_condition", map[string]any{
		"id": "EDGE:1", "relation": "RO:0002200", "provided_by": "omim",
		"publications": []any{"PMID:1", "PMID:2"}, "evidence": []any{"http://example.org/ev"},
		"qualifiers": []any{"strong"},
	}); err != nil {
		return err
	}
	return l.UpsertEdge(ctx, "MONDO:0005148", "LOCAL:1", "related_to", nil)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthCheck(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{Version: "1.2.3"})

	var resp types.HealthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, f.ts.URL+"/health", &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestReadyCheck(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{})

	var resp types.HealthResponse
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, f.ts.URL+"/ready", &resp))
	assert.Equal(t, "warming", resp.Checks["metadata"])

	require.NoError(t, f.meta.Warm(context.Background()))
	// first identifier request builds the case map
	getJSON(t, f.ts.URL+"/beacon/kg/concepts/mondo:0005148", nil)

	assert.Equal(t, http.StatusOK, getJSON(t, f.ts.URL+"/ready", &resp))
	assert.Equal(t, "ready", resp.Status)
}

func TestGetConcepts(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{FilterBiolink: true})
	base := f.ts.URL + "/beacon/kg/concepts"

	var concepts []types.BeaconConcept
	assert.Equal(t, http.StatusOK, getJSON(t, base, &concepts))
	assert.Empty(t, concepts, "no filters and no size gives nothing")

	assert.Equal(t, http.StatusOK, getJSON(t, base+"?keywords=diabetes,ins", &concepts))
	require.Len(t, concepts, 2)
	assert.Equal(t, "MONDO:0005148", concepts[0].ID)
	assert.Equal(t, []string{"disease"}, concepts[0].Categories)

	assert.Equal(t, http.StatusOK, getJSON(t, base+"?categories=gene&categories=disease", &concepts))
	assert.Len(t, concepts, 2)

	assert.Equal(t, http.StatusOK, getJSON(t, base+"?size=10", &concepts))
	require.Len(t, concepts, 3)
	assert.Equal(t, []string{biolink.DefaultCategory}, concepts[0].Categories, "unknown category filtered")

	var errResp types.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"?size=-1", &errResp))
	assert.Equal(t, http.StatusBadRequest, errResp.Code)
	assert.NotEmpty(t, errResp.RequestID)
}

func TestGetConceptDetails(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{})

	var c types.BeaconConceptWithDetails
	assert.Equal(t, http.StatusOK, getJSON(t, f.ts.URL+"/beacon/kg/concepts/mondo:0005148", &c))
	assert.Equal(t, "MONDO:0005148", c.ID)
	assert.Equal(t, []string{"NIDDM"}, c.Synonyms)
	assert.Equal(t, []string{"UMLS:C0011860", "DOID:9352"}, c.ExactMatches)
	assert.Equal(t, []types.BeaconConceptDetail{{Tag: "source", Value: "mondo"}}, c.Details)

	var errResp types.ErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, f.ts.URL+"/beacon/kg/concepts/MONDO:404", &errResp))
}

func TestGetExactMatches(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{})

	var resp []types.ExactMatchResponse
	assert.Equal(t, http.StatusOK, getJSON(t, f.ts.URL+"/beacon/kg/exactmatches?c=DOID:9352&c=NOPE:1", &resp))
	require.Len(t, resp, 2)

	assert.Equal(t, "DOID:9352", resp[0].ID)
	assert.True(t, resp[0].WithinDomain)
	assert.Equal(t, []string{"DOID:9352", "MONDO:0005148", "UMLS:C0011860"}, resp[0].HasExactMatches)

	assert.Equal(t, "NOPE:1", resp[1].ID)
	assert.False(t, resp[1].WithinDomain)
	assert.Empty(t, resp[1].HasExactMatches)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.ts.URL+"/beacon/kg/exactmatches", nil))
}

func TestGetStatements(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{})
	base := f.ts.URL + "/beacon/kg/statements"

	var statements []types.BeaconStatement
	assert.Equal(t, http.StatusOK, getJSON(t, base+"?s=mondo:0005148", &statements))
	require.Len(t, statements, 1)
	assert.Equal(t, "MONDO:0005148:related_to:LOCAL:1", statements[0].ID)
	assert.Equal(t, "related_to", statements[0].Predicate.EdgeLabel)

	assert.Equal(t, http.StatusOK, getJSON(t, base+"?t=MONDO:0005148&edge_label=gene_associated_with_condition", &statements))
	require.Len(t, statements, 1)
	assert.Equal(t, "EDGE:1", statements[0].ID)
	assert.Equal(t, "RO:0002200", statements[0].Predicate.Relation)
	assert.Equal(t, "INS", statements[0].Subject.Name)

	assert.Equal(t, http.StatusOK, getJSON(t, base+"?size=1&offset=1", &statements))
	assert.Len(t, statements, 1)
}

func TestGetStatementDetails(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{})
	base := f.ts.URL + "/beacon/kg/statements/"

	var d types.BeaconStatementWithDetails
	assert.Equal(t, http.StatusOK, getJSON(t, base+"EDGE:1", &d))
	assert.Equal(t, "EDGE:1", d.ID)
	assert.Equal(t, "omim", d.ProvidedBy)
	assert.Equal(t, []string{"strong"}, d.Qualifiers)
	require.Len(t, d.Evidence, 3)
	assert.Equal(t, "http://example.org/ev", d.Evidence[0].URI)
	assert.Equal(t, "PMID:1", d.Evidence[1].ID)

	tags := map[string]string{}
	for _, a := range d.Annotation {
		tags[a.Tag] = a.Value
	}
	assert.Equal(t, "gene_associated_with_condition", tags["relationship_type"])
	assert.Equal(t, "INS", tags["subject_name"])
	assert.Equal(t, "type 2 diabetes mellitus", tags["object_name"])
	assert.Equal(t, "PMID:1; PMID:2", tags["publications"])

	assert.Equal(t, http.StatusOK, getJSON(t, base+"EDGE:1?keywords=pmid:2", &d))
	require.Len(t, d.Evidence, 1)
	assert.Equal(t, "PMID:2", d.Evidence[0].ID)

	assert.Equal(t, http.StatusOK, getJSON(t, base+"EDGE:1?offset=1&size=1", &d))
	require.Len(t, d.Evidence, 1)
	assert.Equal(t, "PMID:1", d.Evidence[0].ID)

	assert.Equal(t, http.StatusOK, getJSON(t, base+"MONDO:0005148:related_to:LOCAL:1", &d))
	assert.Empty(t, d.Evidence)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"a:b:c", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, base+"EDGE:404", nil))
}

func TestMetadataEndpoints(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{})
	base := f.ts.URL + "/beacon/kg/"

	var categories []types.BeaconConceptCategory
	assert.Equal(t, http.StatusOK, getJSON(t, base+"categories", &categories))
	require.Len(t, categories, 2)
	assert.Equal(t, "disease", categories[0].Category)

	var km []types.BeaconKnowledgeMapStatement
	assert.Equal(t, http.StatusOK, getJSON(t, base+"knowledge_map", &km))
	require.Len(t, km, 1)
	assert.Equal(t, []string{"NCBIGene"}, km[0].Subject.Prefixes)

	var predicates []types.BeaconPredicate
	assert.Equal(t, http.StatusOK, getJSON(t, base+"predicates", &predicates))
	require.Len(t, predicates, 1)
	assert.Equal(t, int64(5), predicates[0].Frequency)
}

func iriGraph(ctx context.Context, l *graph.Loader) error {
	if err := l.UpsertNode(ctx, map[string]any{
		"id": "http://purl.obolibrary.org/obo/MONDO_0005148", "name": "type 2 diabetes mellitus", "category": "disease",
	}); err != nil {
		return err
	}
	if err := l.UpsertNode(ctx, map[string]any{
		"id": "http://www.ncbi.nlm.nih.gov/gene/3630", "name": "INS", "category": "gene",
	}); err != nil {
		return err
	}
	return l.UpsertEdge(ctx, "http://www.ncbi.nlm.nih.gov/gene/3630", "http://purl.obolibrary.org/obo/MONDO_0005148",
		"gene_associated_with_condition", nil)
}

func TestIRIModeRoundTrip(t *testing.T) {
	f := setupTestServer(t, config.ModeIRI, iriGraph, Options{})
	base := f.ts.URL + "/beacon/kg/"

	var concepts []types.BeaconConcept
	assert.Equal(t, http.StatusOK, getJSON(t, base+"concepts?keywords=diabetes", &concepts))
	require.Len(t, concepts, 1)
	assert.Equal(t, "MONDO:0005148", concepts[0].ID, "outbound ids are contracted")

	// the contraction above taught the normalizer how to expand MONDO
	var c types.BeaconConceptWithDetails
	assert.Equal(t, http.StatusOK, getJSON(t, base+"concepts/MONDO:0005148", &c))
	assert.Equal(t, "MONDO:0005148", c.ID)

	var statements []types.BeaconStatement
	assert.Equal(t, http.StatusOK, getJSON(t, base+"statements?t=MONDO:0005148", &statements))
	require.Len(t, statements, 1)
	assert.Equal(t, "NCBIGene:3630:gene_associated_with_condition:MONDO:0005148", statements[0].ID)

	var d types.BeaconStatementWithDetails
	assert.Equal(t, http.StatusOK, getJSON(t, base+"statements/"+statements[0].ID, &d))
}

func TestNotFoundRedirect(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{RedirectNotFound: true})

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(f.ts.URL + "/nowhere")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/beacon/kg/", resp.Header.Get("Location"))

	var index map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, f.ts.URL+"/beacon/kg/", &index))
	assert.Equal(t, "kg", index["beacon"])
}

func TestRateLimit(t *testing.T) {
	f := setupTestServer(t, config.ModeCURIE, curieGraph, Options{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, getJSON(t, f.ts.URL+"/beacon/kg/concepts", nil))
	resp, err := http.Get(f.ts.URL + "/beacon/kg/concepts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// probes are not limited
	assert.Equal(t, http.StatusOK, getJSON(t, f.ts.URL+"/health", nil))
}

func TestQueryList(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?k=a,b&k=c&k=&k=+d+", nil)
	assert.Equal(t, []string{"a", "b", "c", "d"}, queryList(r, "k"))
	assert.Nil(t, queryList(r, "missing"))
}
