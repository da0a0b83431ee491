package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite creates a new SQLite repository
func NewSQLite(ctx context.Context, dbPath string, logger *zap.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// every connection to an in-memory database is a separate database
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	// Verify connectivity
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	// Apply pragmas for optimal performance
	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	// Create schema
	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	logger.Info("Opened SQLite graph", zap.String("path", dbPath))
	return &SQLiteRepository{db: db, logger: logger}, nil
}

// Close closes the SQLite connection
func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertNode stores a node from its properties. The id property is required.
func (r *SQLiteRepository) UpsertNode(ctx context.Context, props map[string]any) error {
	return upsertNode(ctx, r.db, props)
}

// UpsertEdge stores a subject -[relType]-> object relationship.
func (r *SQLiteRepository) UpsertEdge(ctx context.Context, subjectID, objectID, relType string, props map[string]any) error {
	return upsertEdge(ctx, r.db, subjectID, objectID, relType, props)
}

// Loader writes nodes and edges inside one transaction.
type Loader struct {
	tx *sql.Tx
}

func (l *Loader) UpsertNode(ctx context.Context, props map[string]any) error {
	return upsertNode(ctx, l.tx, props)
}

func (l *Loader) UpsertEdge(ctx context.Context, subjectID, objectID, relType string, props map[string]any) error {
	return upsertEdge(ctx, l.tx, subjectID, objectID, relType, props)
}

// WithLoader runs fn in a transaction, committing when it returns nil.
func (r *SQLiteRepository) WithLoader(ctx context.Context, fn func(*Loader) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&Loader{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func upsertNode(ctx context.Context, db execer, props map[string]any) error {
	n := NodeFromProps(props)
	if n.ID == "" {
		return fmt.Errorf("node without id: %w", apperrors.ErrInvalidIdentifier)
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshaling properties of %s: %w", n.ID, err)
	}

	query := `
		INSERT INTO nodes (id, name, categories, synonyms, xrefs, clique, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			categories = excluded.categories,
			synonyms = excluded.synonyms,
			xrefs = excluded.xrefs,
			clique = excluded.clique,
			properties = excluded.properties
	`
	_, err = db.ExecContext(ctx, query,
		n.ID,
		n.Name,
		jsonList(n.Categories),
		jsonList(n.Synonyms),
		jsonList(n.Xrefs),
		jsonList(n.Clique),
		string(propsJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting node %s: %w", n.ID, err)
	}
	return nil
}

func upsertEdge(ctx context.Context, db execer, subjectID, objectID, relType string, props map[string]any) error {
	if subjectID == "" || objectID == "" {
		return fmt.Errorf("edge without endpoints: %w", apperrors.ErrInvalidIdentifier)
	}
	e := EdgeFromProps(relType, props)
	if e.Type == "" {
		e.Type = e.Label()
	}
	if e.Type == "" {
		return fmt.Errorf("edge %s -> %s has no type", subjectID, objectID)
	}
	key := e.ID
	if key == "" {
		key = subjectID + "|" + e.Type + "|" + objectID
	}
	if props == nil {
		props = map[string]any{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshaling edge properties: %w", err)
	}

	query := `
		INSERT INTO edges (edge_key, id, subject_id, object_id, type, edge_label, relation, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(edge_key) DO UPDATE SET
			subject_id = excluded.subject_id,
			object_id = excluded.object_id,
			type = excluded.type,
			edge_label = excluded.edge_label,
			relation = excluded.relation,
			properties = excluded.properties
	`
	_, err = db.ExecContext(ctx, query, key, e.ID, subjectID, objectID, e.Type, e.EdgeLabel, e.Relation, string(propsJSON))
	if err != nil {
		return fmt.Errorf("upserting edge %s: %w", key, err)
	}
	return nil
}

// DistinctIdentifiers returns up to limit node ids not starting with any
// excluded prefix, in id order.
func (r *SQLiteRepository) DistinctIdentifiers(ctx context.Context, excludePrefixes []string, limit int) ([]string, error) {
	query := `
		SELECT id FROM nodes
		WHERE NOT EXISTS (
			SELECT 1 FROM json_each(?) p
			WHERE substr(nodes.id, 1, length(p.value)) = p.value
		)
		ORDER BY id
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, jsonList(excludePrefixes), limit)
	if err != nil {
		return nil, sqliteError(err)
	}
	return scanStrings(rows)
}

// IdentifierPrefixes returns every distinct CURIE prefix as stored.
func (r *SQLiteRepository) IdentifierPrefixes(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT substr(id, 1, instr(id, ':') - 1) FROM nodes
		WHERE instr(id, ':') > 1
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, sqliteError(err)
	}
	return scanStrings(rows)
}

// FindConcepts matches name substrings and categories case-insensitively.
func (r *SQLiteRepository) FindConcepts(ctx context.Context, q ConceptQuery) ([]Node, error) {
	var where []string
	var args []any

	if len(q.Keywords) > 0 {
		var conds []string
		for _, k := range q.Keywords {
			conds = append(conds, `lower(name) LIKE ? ESCAPE '\'`)
			args = append(args, likePattern(k))
		}
		where = append(where, "("+strings.Join(conds, " OR ")+")")
	}
	if len(q.Categories) > 0 {
		cond, catArgs := jsonListMatch("nodes.categories", q.Categories)
		where = append(where, cond)
		args = append(args, catArgs...)
	}

	query := "SELECT properties FROM nodes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id" + sqlPage(q.Offset, q.Limit, &args)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError(err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var props string
		if err := rows.Scan(&props); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n, err := nodeFromJSON(props)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// GetConcept finds a node by case-insensitive id.
func (r *SQLiteRepository) GetConcept(ctx context.Context, id string) (*Node, error) {
	var props string
	err := r.db.QueryRowContext(ctx, `SELECT properties FROM nodes WHERE lower(id) = lower(?) LIMIT 1`, id).Scan(&props)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("concept %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, sqliteError(err)
	}
	n, err := nodeFromJSON(props)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ExactMatches finds nodes whose id, xrefs or clique contain each input id.
// The comparison is case-sensitive.
func (r *SQLiteRepository) ExactMatches(ctx context.Context, ids []string) ([]ExactMatchRow, error) {
	query := `
		SELECT id, xrefs, clique FROM nodes
		WHERE id = ?1
		   OR EXISTS (SELECT 1 FROM json_each(nodes.xrefs) x WHERE x.value = ?1)
		   OR EXISTS (SELECT 1 FROM json_each(nodes.clique) c WHERE c.value = ?1)
	`
	var out []ExactMatchRow
	for _, input := range ids {
		rows, err := r.db.QueryContext(ctx, query, input)
		if err != nil {
			return nil, sqliteError(err)
		}
		for rows.Next() {
			var match, xrefs, clique string
			if err := rows.Scan(&match, &xrefs, &clique); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning exact match: %w", err)
			}
			out = append(out, ExactMatchRow{
				InputID: input,
				MatchID: match,
				Xrefs:   parseJSONList(xrefs),
				Clique:  parseJSONList(clique),
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, sqliteError(err)
		}
	}
	return out, nil
}

const statementSelect = `
	SELECT
		COALESCE(s.properties, json_object('id', e.subject_id)),
		e.type,
		e.properties,
		COALESCE(o.properties, json_object('id', e.object_id))
	FROM edges e
	LEFT JOIN nodes s ON s.id = e.subject_id
	LEFT JOIN nodes o ON o.id = e.object_id
`

// FindStatements matches subject -[edge]-> object triples.
func (r *SQLiteRepository) FindStatements(ctx context.Context, q StatementQuery) ([]StatementRow, error) {
	var where []string
	var args []any

	idMatch := func(column string, ids []string) {
		if len(ids) == 0 {
			return
		}
		where = append(where, "lower("+column+") IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, strings.ToLower(id))
		}
	}
	keywordMatch := func(alias string, keywords []string) {
		if len(keywords) == 0 {
			return
		}
		var conds []string
		for _, k := range keywords {
			conds = append(conds, fmt.Sprintf(`(lower(%[1]s.name) LIKE ? ESCAPE '\' OR EXISTS (
				SELECT 1 FROM json_each(%[1]s.synonyms) y WHERE lower(y.value) LIKE ? ESCAPE '\'))`, alias))
			p := likePattern(k)
			args = append(args, p, p)
		}
		where = append(where, "("+strings.Join(conds, " OR ")+")")
	}
	categoryMatch := func(alias string, categories []string) {
		if len(categories) == 0 {
			return
		}
		cond, catArgs := jsonListMatch(alias+".categories", categories)
		where = append(where, cond)
		args = append(args, catArgs...)
	}

	idMatch("e.subject_id", q.Sources)
	idMatch("e.object_id", q.Targets)
	keywordMatch("s", q.SourceKeywords)
	keywordMatch("o", q.TargetKeywords)
	categoryMatch("s", q.SourceCategories)
	categoryMatch("o", q.TargetCategories)
	if q.EdgeLabel != "" {
		where = append(where, "(lower(e.type) = lower(?) OR lower(e.edge_label) = lower(?))")
		args = append(args, q.EdgeLabel, q.EdgeLabel)
	}
	if q.Relation != "" {
		where = append(where, "e.relation = ?")
		args = append(args, q.Relation)
	}

	query := statementSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.rowid" + sqlPage(q.Offset, q.Limit, &args)

	return r.queryStatements(ctx, query, args...)
}

// GetStatement finds one statement by id or by endpoints and edge label.
func (r *SQLiteRepository) GetStatement(ctx context.Context, ref StatementRef) (*StatementRow, error) {
	var rows []StatementRow
	var err error
	if ref.ID != "" {
		rows, err = r.queryStatements(ctx, statementSelect+" WHERE e.id = ? LIMIT 1", ref.ID)
	} else {
		rows, err = r.queryStatements(ctx, statementSelect+`
			WHERE e.subject_id = ? AND e.object_id = ?
			  AND (lower(e.type) = lower(?) OR lower(e.edge_label) = lower(?))
			LIMIT 1`, ref.SubjectID, ref.ObjectID, ref.EdgeLabel, ref.EdgeLabel)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("statement: %w", apperrors.ErrNotFound)
	}
	return &rows[0], nil
}

// Query returns ErrUnsupported - Cypher is not supported in SQLite
func (r *SQLiteRepository) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return nil, fmt.Errorf("cypher queries need the neo4j backend: %w", apperrors.ErrUnsupported)
}

// Helper functions

func (r *SQLiteRepository) queryStatements(ctx context.Context, query string, args ...any) ([]StatementRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError(err)
	}
	defer rows.Close()

	var out []StatementRow
	for rows.Next() {
		var subject, relType, edge, object string
		if err := rows.Scan(&subject, &relType, &edge, &object); err != nil {
			return nil, fmt.Errorf("scanning statement: %w", err)
		}
		s, err := nodeFromJSON(subject)
		if err != nil {
			return nil, err
		}
		o, err := nodeFromJSON(object)
		if err != nil {
			return nil, err
		}
		var edgeProps map[string]any
		if err := json.Unmarshal([]byte(edge), &edgeProps); err != nil {
			return nil, fmt.Errorf("decoding edge properties: %w", err)
		}
		out = append(out, StatementRow{Subject: s, Edge: EdgeFromProps(relType, edgeProps), Object: o})
	}
	return out, rows.Err()
}

func nodeFromJSON(s string) (Node, error) {
	var props map[string]any
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return Node{}, fmt.Errorf("decoding node properties: %w", err)
	}
	return NodeFromProps(props), nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func sqliteError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("sqlite query: %w", err)
}

// jsonListMatch is true when any element of the JSON array column equals one
// of values, ignoring case.
func jsonListMatch(column string, values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = strings.ToLower(v)
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) c WHERE lower(c.value) IN (%s))",
		column, placeholders(len(values))), args
}

// sqlPage appends LIMIT/OFFSET. SQLite needs a LIMIT before OFFSET, -1 is
// unbounded.
func sqlPage(offset, limit int, args *[]any) string {
	if offset <= 0 && limit <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	*args = append(*args, limit, offset)
	return " LIMIT ? OFFSET ?"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(keyword string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(keyword)) + "%"
}

func jsonList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func parseJSONList(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}
