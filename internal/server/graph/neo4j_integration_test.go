//go:build integration

package graph

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
)

const neo4jTestImage = "neo4j:5"

var (
	sharedNeo4j     *Neo4jRepository
	sharedNeo4jOnce sync.Once
	sharedNeo4jErr  error
)

// getTestNeo4j returns a repository on a shared Neo4j container, seeded once
// for the whole run.
func getTestNeo4j(t *testing.T) *Neo4jRepository {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedNeo4jOnce.Do(func() {
		sharedNeo4j, sharedNeo4jErr = setupTestNeo4j()
	})
	if sharedNeo4jErr != nil {
		t.Fatalf("Failed to setup neo4j: %v", sharedNeo4jErr)
	}
	return sharedNeo4j
}

func setupTestNeo4j() (*Neo4jRepository, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        neo4jTestImage,
		ExposedPorts: []string{"7687/tcp"},
		Env:          map[string]string{"NEO4J_AUTH": "none"},
		WaitingFor:   wait.ForLog("Started.").WithStartupTimeout(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start neo4j container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "7687")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	var repo *Neo4jRepository
	for i := 0; i < 10; i++ {
		repo, err = NewNeo4j(ctx, Config{URI: fmt.Sprintf("%s:%s", host, port.Port())}, nil)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		return nil, err
	}

	nodes := []map[string]any{
		{"id": "MONDO:0005148", "name": "type 2 diabetes mellitus", "category": []any{"disease"},
			"synonym": []any{"NIDDM"}, "xrefs": []any{"DOID:9352"}},
		{"id": "MONDO:0005015", "name": "diabetes mellitus", "category": "disease"},
		{"id": "NCBIGene:3630", "name": "INS", "category": []any{"gene"}},
	}
	for _, n := range nodes {
		if err := repo.UpsertNode(ctx, n); err != nil {
			return nil, err
		}
	}
	if err := repo.UpsertEdge(ctx, "NCBIGene:3630", "MONDO:0005148", "gene_associated_with_condition",
		map[string]any{"id": "EDGE:1", "relation": "RO:0002200"}); err != nil {
		return nil, err
	}
	if err := repo.UpsertEdge(ctx, "MONDO:0005148", "MONDO:0005015", "subclass_of", nil); err != nil {
		return nil, err
	}
	return repo, nil
}

func TestNeo4jConcepts(t *testing.T) {
	repo := getTestNeo4j(t)
	ctx := context.Background()

	nodes, err := repo.FindConcepts(ctx, ConceptQuery{Keywords: []string{"Diabetes"}, Categories: []string{"disease"}})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	n, err := repo.GetConcept(ctx, "mondo:0005148")
	require.NoError(t, err)
	assert.Equal(t, "MONDO:0005148", n.ID)
	assert.Equal(t, []string{"NIDDM"}, n.Synonyms)

	_, err = repo.GetConcept(ctx, "MONDO:404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNeo4jIdentifiers(t *testing.T) {
	repo := getTestNeo4j(t)
	ctx := context.Background()

	ids, err := repo.DistinctIdentifiers(ctx, []string{"MONDO:"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"NCBIGene:3630"}, ids)

	prefixes, err := repo.IdentifierPrefixes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"MONDO", "NCBIGene"}, prefixes)

	rows, err := repo.ExactMatches(ctx, []string{"DOID:9352"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MONDO:0005148", rows[0].MatchID)
}

func TestNeo4jStatements(t *testing.T) {
	repo := getTestNeo4j(t)
	ctx := context.Background()

	rows, err := repo.FindStatements(ctx, StatementQuery{Targets: []string{"mondo:0005148"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "EDGE:1", rows[0].ID())

	ref, err := ParseStatementRef("MONDO:0005148:SUBCLASS_OF:MONDO:0005015")
	require.NoError(t, err)
	row, err := repo.GetStatement(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "subclass_of", row.Edge.Label())

	result, err := repo.Query(ctx, "MATCH (n {id: $id}) RETURN n", map[string]any{"id": "NCBIGene:3630"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "INS", result[0]["n"].(map[string]any)["name"])
}
