package graph

// SQLite schema DDL constants

// Node list properties are stored as JSON arrays so queries can use
// json_each; properties keeps every stored property as a JSON object.
const schemaNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    categories TEXT NOT NULL DEFAULT '[]',
    synonyms TEXT NOT NULL DEFAULT '[]',
    xrefs TEXT NOT NULL DEFAULT '[]',
    clique TEXT NOT NULL DEFAULT '[]',
    properties TEXT NOT NULL DEFAULT '{}'
)`

// edge_key is the statement id when there is one, subject|type|object
// otherwise.
const schemaEdges = `
CREATE TABLE IF NOT EXISTS edges (
    rowid INTEGER PRIMARY KEY AUTOINCREMENT,
    edge_key TEXT UNIQUE NOT NULL,
    id TEXT NOT NULL DEFAULT '',
    subject_id TEXT NOT NULL,
    object_id TEXT NOT NULL,
    type TEXT NOT NULL,
    edge_label TEXT NOT NULL DEFAULT '',
    relation TEXT NOT NULL DEFAULT '',
    properties TEXT NOT NULL DEFAULT '{}'
)`

// Index definitions
const indexNodesIDLower = `CREATE INDEX IF NOT EXISTS idx_nodes_id_lower ON nodes(lower(id))`
const indexEdgesID = `CREATE INDEX IF NOT EXISTS idx_edges_id ON edges(id)`
const indexEdgesSubject = `CREATE INDEX IF NOT EXISTS idx_edges_subject ON edges(subject_id)`
const indexEdgesObject = `CREATE INDEX IF NOT EXISTS idx_edges_object ON edges(object_id)`
const indexEdgesType = `CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(lower(type))`

// SQLite pragmas for optimal performance
const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaNodes,
		schemaEdges,
		indexNodesIDLower,
		indexEdgesID,
		indexEdgesSubject,
		indexEdgesObject,
		indexEdgesType,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
