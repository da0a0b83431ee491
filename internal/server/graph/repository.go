// Package graph reads beacon concepts and statements from a property graph.
// Neo4j is the production backend; SQLite serves development, offline
// discovery runs and tests.
package graph

import (
	"context"
	"regexp"
)

// Repository defines the interface for graph storage backends.
// Both SQLite and Neo4j implement this interface.
type Repository interface {
	// Lifecycle
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	// Identifier scans used by prefix discovery and the case map
	DistinctIdentifiers(ctx context.Context, excludePrefixes []string, limit int) ([]string, error)
	IdentifierPrefixes(ctx context.Context) ([]string, error)

	// Concepts
	FindConcepts(ctx context.Context, q ConceptQuery) ([]Node, error)
	GetConcept(ctx context.Context, id string) (*Node, error)
	ExactMatches(ctx context.Context, ids []string) ([]ExactMatchRow, error)

	// Statements
	FindStatements(ctx context.Context, q StatementQuery) ([]StatementRow, error)
	GetStatement(ctx context.Context, ref StatementRef) (*StatementRow, error)

	// Raw query (Neo4j only - SQLite returns ErrUnsupported)
	Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// DefaultIDProperty is the node property holding identifiers.
const DefaultIDProperty = "id"

var propertyName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidProperty reports whether name can be interpolated into a query as a
// property key.
func ValidProperty(name string) bool {
	return propertyName.MatchString(name)
}
