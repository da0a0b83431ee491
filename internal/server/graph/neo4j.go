package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/config"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/logging"
)

// Config holds Neo4j connection configuration
type Config struct {
	URI        string
	Username   string
	Password   string
	Database   string
	IDProperty string
}

// Neo4jRepository reads the beacon graph from Neo4j.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
	id       string
	logger   *zap.Logger
}

// NewNeo4j connects to Neo4j. Only bolt and neo4j URIs are accepted; a bare
// host:port gets the bolt scheme.
func NewNeo4j(ctx context.Context, cfg Config, logger *zap.Logger) (*Neo4jRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	uri, err := config.NormalizeBoltURI(cfg.URI)
	if err != nil {
		return nil, err
	}
	if cfg.IDProperty == "" {
		cfg.IDProperty = DefaultIDProperty
	}
	if !ValidProperty(cfg.IDProperty) {
		return nil, fmt.Errorf("invalid identifier property %q", cfg.IDProperty)
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w: %w",
			logging.SanitizeURI(uri), apperrors.ErrStoreUnavailable, err)
	}
	logger.Info("Connected to Neo4j", zap.String("uri", logging.SanitizeURI(uri)), zap.String("database", cfg.Database))

	return &Neo4jRepository{driver: driver, database: cfg.Database, id: cfg.IDProperty, logger: logger}, nil
}

// Close closes the Neo4j connection
func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Ping verifies the server is reachable.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	if err := r.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

// readAll runs a read query and maps every record inside the transaction
// function, so driver retries never see partial results.
func readAll[T any](ctx context.Context, r *Neo4jRepository, cypher string, params map[string]any, mapRecord func(*neo4j.Record) (T, error)) ([]T, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var rows []T
		for result.Next(ctx) {
			row, err := mapRecord(result.Record())
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, result.Err()
	})
	if err != nil {
		return nil, storeError(err)
	}
	return out.([]T), nil
}

func storeError(err error) error {
	if neo4j.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("neo4j query: %w", err)
}

// asList turns a property that may hold a scalar or a list into a list.
func asList(expr string) string {
	return "coalesce([] + " + expr + ", [])"
}

// listParam passes empty filters as null so "$x IS NULL" skips them.
func listParam(values []string, lower bool) any {
	if len(values) == 0 {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		if lower {
			v = strings.ToLower(v)
		}
		out[i] = v
	}
	return out
}

func stringParam(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pageClause(offset, limit int) string {
	var b strings.Builder
	if offset > 0 {
		fmt.Fprintf(&b, " SKIP %d", offset)
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

func (r *Neo4jRepository) prop(v string) string {
	return v + ".`" + r.id + "`"
}

// DistinctIdentifiers returns up to limit identifiers not starting with any
// excluded prefix.
func (r *Neo4jRepository) DistinctIdentifiers(ctx context.Context, excludePrefixes []string, limit int) ([]string, error) {
	id := r.prop("n")
	cypher := fmt.Sprintf(`
		MATCH (n) WHERE %[1]s IS NOT NULL AND NONE(p IN $prefixes WHERE %[1]s STARTS WITH p)
		RETURN DISTINCT %[1]s AS id
		LIMIT $limit
	`, id)
	prefixes := make([]any, len(excludePrefixes))
	for i, p := range excludePrefixes {
		prefixes[i] = p
	}
	return readAll(ctx, r, cypher, map[string]any{"prefixes": prefixes, "limit": limit}, func(rec *neo4j.Record) (string, error) {
		v, _ := rec.Get("id")
		return Stringify(v), nil
	})
}

// IdentifierPrefixes returns every distinct CURIE prefix as stored.
func (r *Neo4jRepository) IdentifierPrefixes(ctx context.Context) ([]string, error) {
	id := r.prop("n")
	cypher := fmt.Sprintf(`
		MATCH (n) WHERE %[1]s CONTAINS ':'
		RETURN DISTINCT split(%[1]s, ':')[0] AS prefix
	`, id)
	return readAll(ctx, r, cypher, nil, func(rec *neo4j.Record) (string, error) {
		v, _ := rec.Get("prefix")
		return Stringify(v), nil
	})
}

// FindConcepts matches name substrings and categories case-insensitively.
func (r *Neo4jRepository) FindConcepts(ctx context.Context, q ConceptQuery) ([]Node, error) {
	cypher := `
		MATCH (n)
		WHERE ($keywords IS NULL OR ANY(keyword IN $keywords WHERE
				ANY(name IN ` + asList("n.name") + ` WHERE toLower(toString(name)) CONTAINS keyword)))
		  AND ($categories IS NULL OR ANY(category IN $categories WHERE
				ANY(c IN ` + asList("n.category") + ` WHERE toLower(toString(c)) = category)))
		RETURN n
	` + pageClause(q.Offset, q.Limit)

	params := map[string]any{
		"keywords":   listParam(q.Keywords, true),
		"categories": listParam(q.Categories, true),
	}
	return readAll(ctx, r, cypher, params, func(rec *neo4j.Record) (Node, error) {
		return r.nodeFromRecord(rec, "n")
	})
}

// GetConcept finds a node by case-insensitive id.
func (r *Neo4jRepository) GetConcept(ctx context.Context, id string) (*Node, error) {
	cypher := fmt.Sprintf(`
		MATCH (n) WHERE toLower(%s) = toLower($id)
		RETURN n
		LIMIT 1
	`, r.prop("n"))
	nodes, err := readAll(ctx, r, cypher, map[string]any{"id": id}, func(rec *neo4j.Record) (Node, error) {
		return r.nodeFromRecord(rec, "n")
	})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("concept %s: %w", id, apperrors.ErrNotFound)
	}
	return &nodes[0], nil
}

// ExactMatches finds nodes whose id, xrefs or clique contain each input id.
// The comparison is case-sensitive.
func (r *Neo4jRepository) ExactMatches(ctx context.Context, ids []string) ([]ExactMatchRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	id := r.prop("n")
	cypher := fmt.Sprintf(`
		UNWIND $ids AS input_id
		MATCH (n) WHERE
			%s = input_id OR
			input_id IN %s OR
			input_id IN %s
		RETURN input_id, %s AS match_id, n.xrefs AS xrefs, n.clique AS clique
	`, id, asList("n.xrefs"), asList("n.clique"), id)

	return readAll(ctx, r, cypher, map[string]any{"ids": listParam(ids, false)}, func(rec *neo4j.Record) (ExactMatchRow, error) {
		input, _ := rec.Get("input_id")
		match, _ := rec.Get("match_id")
		xrefs, _ := rec.Get("xrefs")
		clique, _ := rec.Get("clique")
		return ExactMatchRow{
			InputID: Stringify(input),
			MatchID: Stringify(match),
			Xrefs:   Listify(xrefs),
			Clique:  Listify(clique),
		}, nil
	})
}

// FindStatements matches (subject)-[edge]->(object) triples.
func (r *Neo4jRepository) FindStatements(ctx context.Context, q StatementQuery) ([]StatementRow, error) {
	keywordMatch := func(v, param string) string {
		return fmt.Sprintf(`($%[1]s IS NULL OR ANY(k IN $%[1]s WHERE
				ANY(name IN %[2]s WHERE toLower(toString(name)) CONTAINS k) OR
				ANY(syn IN %[3]s WHERE toLower(toString(syn)) CONTAINS k)))`,
			param, asList(v+".name"), asList(v+".synonym"))
	}
	categoryMatch := func(v, param string) string {
		return fmt.Sprintf(`($%[2]s IS NULL OR ANY(c IN $%[2]s WHERE
				c IN [l IN labels(%[1]s) | toLower(l)] OR
				c IN [x IN %[3]s | toLower(toString(x))]))`,
			v, param, asList(v+".category"))
	}

	cypher := `
		MATCH (s)-[r]->(o)
		WHERE ($sources IS NULL OR toLower(` + r.prop("s") + `) IN $sources)
		  AND ($targets IS NULL OR toLower(` + r.prop("o") + `) IN $targets)
		  AND ` + keywordMatch("s", "s_keywords") + `
		  AND ` + keywordMatch("o", "t_keywords") + `
		  AND ` + categoryMatch("s", "s_categories") + `
		  AND ` + categoryMatch("o", "t_categories") + `
		  AND ($edge_label IS NULL OR toLower(type(r)) = toLower($edge_label) OR toLower(r.edge_label) = toLower($edge_label))
		  AND ($relation IS NULL OR r.relation = $relation)
		RETURN s, r, o
	` + pageClause(q.Offset, q.Limit)

	params := map[string]any{
		"sources":      listParam(q.Sources, true),
		"targets":      listParam(q.Targets, true),
		"s_keywords":   listParam(q.SourceKeywords, true),
		"t_keywords":   listParam(q.TargetKeywords, true),
		"s_categories": listParam(q.SourceCategories, true),
		"t_categories": listParam(q.TargetCategories, true),
		"edge_label":   stringParam(q.EdgeLabel),
		"relation":     stringParam(q.Relation),
	}
	return readAll(ctx, r, cypher, params, r.statementFromRecord)
}

// GetStatement finds one statement by id or by endpoints and edge label.
func (r *Neo4jRepository) GetStatement(ctx context.Context, ref StatementRef) (*StatementRow, error) {
	var cypher string
	var params map[string]any
	if ref.ID != "" {
		cypher = `
			MATCH (s)-[r]->(o) WHERE r.id = $statement_id
			RETURN s, r, o
			LIMIT 1
		`
		params = map[string]any{"statement_id": ref.ID}
	} else {
		cypher = fmt.Sprintf(`
			MATCH (s)-[r]->(o)
			WHERE %s = $subject_id AND %s = $object_id AND (
				toLower(type(r)) = toLower($edge_label) OR
				toLower(r.edge_label) = toLower($edge_label))
			RETURN s, r, o
			LIMIT 1
		`, r.prop("s"), r.prop("o"))
		params = map[string]any{
			"subject_id": ref.SubjectID,
			"object_id":  ref.ObjectID,
			"edge_label": ref.EdgeLabel,
		}
	}

	rows, err := readAll(ctx, r, cypher, params, r.statementFromRecord)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("statement: %w", apperrors.ErrNotFound)
	}
	return &rows[0], nil
}

// Query runs a parameterized read query. Nodes and relationships in the
// result are returned as their property maps.
func (r *Neo4jRepository) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return readAll(ctx, r, cypher, params, func(rec *neo4j.Record) (map[string]any, error) {
		m := rec.AsMap()
		for k, v := range m {
			switch x := v.(type) {
			case neo4j.Node:
				m[k] = x.Props
			case neo4j.Relationship:
				m[k] = x.Props
			}
		}
		return m, nil
	})
}

// UpsertNode merges a node on its id property and replaces its properties.
func (r *Neo4jRepository) UpsertNode(ctx context.Context, props map[string]any) error {
	id := Stringify(props[r.id])
	if id == "" {
		return fmt.Errorf("node without %s: %w", r.id, apperrors.ErrInvalidIdentifier)
	}
	cypher := fmt.Sprintf(`MERGE (n {%s: $id}) SET n = $props`, "`"+r.id+"`")
	return r.write(ctx, cypher, map[string]any{"id": id, "props": neo4jProps(props)})
}

// UpsertEdge merges a subject -[relType]-> object relationship. Both nodes
// are created with just an id when missing.
func (r *Neo4jRepository) UpsertEdge(ctx context.Context, subjectID, objectID, relType string, props map[string]any) error {
	if subjectID == "" || objectID == "" {
		return fmt.Errorf("edge without endpoints: %w", apperrors.ErrInvalidIdentifier)
	}
	if !ValidProperty(relType) {
		return fmt.Errorf("invalid relationship type %q", relType)
	}
	id := "`" + r.id + "`"
	cypher := fmt.Sprintf(`
		MERGE (s {%[1]s: $subject_id})
		MERGE (o {%[1]s: $object_id})
		MERGE (s)-[e:%[2]s]->(o)
		SET e = $props
	`, id, "`"+relType+"`")
	return r.write(ctx, cypher, map[string]any{
		"subject_id": subjectID,
		"object_id":  objectID,
		"props":      neo4jProps(props),
	})
}

func (r *Neo4jRepository) write(ctx context.Context, cypher string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return storeError(err)
	}
	return nil
}

// neo4jProps keeps values Neo4j can store as properties: scalars and
// homogeneous lists. Lists become string lists and maps become JSON text.
func neo4jProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch x := v.(type) {
		case nil:
		case []any, []string:
			out[k] = Listify(x)
		case map[string]any:
			b, err := json.Marshal(x)
			if err != nil {
				continue
			}
			out[k] = string(b)
		default:
			out[k] = x
		}
	}
	return out
}

func (r *Neo4jRepository) nodeFromRecord(rec *neo4j.Record, key string) (Node, error) {
	v, ok := rec.Get(key)
	if !ok {
		return Node{}, fmt.Errorf("record has no %q", key)
	}
	n, ok := v.(neo4j.Node)
	if !ok {
		return Node{}, fmt.Errorf("%q is %T, not a node", key, v)
	}
	node := NodeFromProps(n.Props)
	if r.id != DefaultIDProperty {
		node.ID = Stringify(n.Props[r.id])
	}
	return node, nil
}

func (r *Neo4jRepository) statementFromRecord(rec *neo4j.Record) (StatementRow, error) {
	s, err := r.nodeFromRecord(rec, "s")
	if err != nil {
		return StatementRow{}, err
	}
	o, err := r.nodeFromRecord(rec, "o")
	if err != nil {
		return StatementRow{}, err
	}
	v, _ := rec.Get("r")
	rel, ok := v.(neo4j.Relationship)
	if !ok {
		return StatementRow{}, fmt.Errorf("r is %T, not a relationship", v)
	}
	return StatementRow{Subject: s, Edge: EdgeFromProps(rel.Type, rel.Props), Object: o}, nil
}
