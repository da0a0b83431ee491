package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
)

// Node is a concept record. Absent string properties are "" and absent list
// properties are empty. Properties holds every stored property.
type Node struct {
	ID          string
	URI         string
	Name        string
	Categories  []string
	Symbol      string
	Description string
	Synonyms    []string
	Clique      []string
	Xrefs       []string
	Properties  map[string]any
}

// nodeCoreKeys are mapped onto Node fields and left out of Details.
var nodeCoreKeys = map[string]bool{
	"id": true, "uri": true, "iri": true, "name": true, "category": true,
	"symbol": true, "description": true, "synonym": true, "clique": true, "xrefs": true,
}

// Details returns the properties not mapped onto a Node field, sorted by key.
func (n Node) Details() []Property {
	var out []Property
	for k, v := range n.Properties {
		if nodeCoreKeys[k] {
			continue
		}
		out = append(out, Property{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ExactMatches is the clique and xrefs of n without n's own id.
func (n Node) ExactMatches() []string {
	seen := map[string]bool{n.ID: true}
	out := []string{}
	for _, id := range append(append([]string{}, n.Clique...), n.Xrefs...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Edge is a relationship record.
type Edge struct {
	ID           string
	Type         string
	EdgeLabel    string
	Relation     string
	Negated      bool
	IsDefinedBy  string
	ProvidedBy   string
	Qualifiers   []string
	Evidence     []string
	Publications []string
	Properties   map[string]any
}

// Label is edge_label when set, the relationship type otherwise.
func (e Edge) Label() string {
	if e.EdgeLabel != "" {
		return e.EdgeLabel
	}
	return e.Type
}

// Property is one stored key/value pair.
type Property struct {
	Key   string
	Value any
}

// SortedProperties returns props ordered by key.
func SortedProperties(props map[string]any) []Property {
	out := make([]Property, 0, len(props))
	for k, v := range props {
		out = append(out, Property{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// StatementRow is one subject-edge-object match.
type StatementRow struct {
	Subject Node
	Edge    Edge
	Object  Node
}

// ID is the stored statement id, or subject:label:object when there is none.
func (s StatementRow) ID() string {
	if s.Edge.ID != "" {
		return s.Edge.ID
	}
	return s.Subject.ID + ":" + s.Edge.Label() + ":" + s.Object.ID
}

// ExactMatchRow is one node matching an input identifier by id, xref or
// clique membership.
type ExactMatchRow struct {
	InputID string
	MatchID string
	Xrefs   []string
	Clique  []string
}

// ConceptQuery filters concepts by name keywords and categories. Both match
// case-insensitively; keywords match substrings.
type ConceptQuery struct {
	Keywords   []string
	Categories []string
	Offset     int
	Limit      int
}

// StatementQuery filters statements. Sources and Targets hold alternative
// identifiers; a statement matches when any of them equals the node id.
type StatementQuery struct {
	Sources          []string
	SourceKeywords   []string
	SourceCategories []string
	EdgeLabel        string
	Relation         string
	Targets          []string
	TargetKeywords   []string
	TargetCategories []string
	Offset           int
	Limit            int
}

// StatementRef addresses a statement by its stored id or by its endpoints
// and edge label.
type StatementRef struct {
	ID        string
	SubjectID string
	EdgeLabel string
	ObjectID  string
}

// ParseStatementRef accepts a statement CURIE ("prefix:local") or
// "s_prefix:s_local:edge_label:o_prefix:o_local".
func ParseStatementRef(id string) (StatementRef, error) {
	parts := strings.Split(id, ":")
	switch len(parts) {
	case 2:
		return StatementRef{ID: id}, nil
	case 5:
		return StatementRef{
			SubjectID: parts[0] + ":" + parts[1],
			EdgeLabel: parts[2],
			ObjectID:  parts[3] + ":" + parts[4],
		}, nil
	default:
		return StatementRef{}, fmt.Errorf("statement id %q must be a curie or curie:edge_label:curie: %w",
			id, apperrors.ErrInvalidIdentifier)
	}
}

// NodeFromProps maps stored node properties onto a Node.
func NodeFromProps(props map[string]any) Node {
	if props == nil {
		props = map[string]any{}
	}
	n := Node{
		ID:          Stringify(props["id"]),
		URI:         Stringify(props["uri"]),
		Name:        Stringify(props["name"]),
		Categories:  Listify(props["category"]),
		Symbol:      Stringify(props["symbol"]),
		Description: Stringify(props["description"]),
		Synonyms:    Listify(props["synonym"]),
		Clique:      Listify(props["clique"]),
		Xrefs:       Listify(props["xrefs"]),
		Properties:  props,
	}
	if n.URI == "" {
		n.URI = Stringify(props["iri"])
	}
	n.Categories = joinSplitCategory(n.Categories)
	return n
}

// EdgeFromProps maps a relationship type and its properties onto an Edge.
func EdgeFromProps(relType string, props map[string]any) Edge {
	if props == nil {
		props = map[string]any{}
	}
	return Edge{
		ID:           Stringify(props["id"]),
		Type:         relType,
		EdgeLabel:    Stringify(props["edge_label"]),
		Relation:     Stringify(props["relation"]),
		Negated:      toBool(props["negated"]),
		IsDefinedBy:  Stringify(props["is_defined_by"]),
		ProvidedBy:   Stringify(props["provided_by"]),
		Qualifiers:   Listify(props["qualifiers"]),
		Evidence:     Listify(props["evidence"]),
		Publications: Listify(props["publications"]),
		Properties:   props,
	}
}

// Listify coerces a stored value to a string list: nil is empty and a scalar
// is a one element list.
func Listify(v any) []string {
	switch x := v.(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if e == nil {
				continue
			}
			out = append(out, Stringify(e))
		}
		return out
	default:
		return []string{Stringify(x)}
	}
}

// Stringify coerces a stored value to a string. Lists are joined with "; ".
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, "; ")
	case []any:
		return strings.Join(Listify(x), "; ")
	default:
		return fmt.Sprint(x)
	}
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	case int64:
		return x != 0
	default:
		return false
	}
}

// joinSplitCategory repairs a category string stored as a list of single
// characters.
func joinSplitCategory(categories []string) []string {
	if len(categories) < 2 {
		return categories
	}
	for _, c := range categories {
		if len([]rune(c)) != 1 {
			return categories
		}
	}
	return []string{strings.Join(categories, "")}
}
