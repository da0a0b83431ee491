// Package kgx imports graphs in the KGX JSON interchange format.
package kgx

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/biolink"
)

// Writer stores imported nodes and edges.
type Writer interface {
	UpsertNode(ctx context.Context, props map[string]any) error
	UpsertEdge(ctx context.Context, subjectID, objectID, relType string, props map[string]any) error
}

// Stats counts what a load wrote and skipped.
type Stats struct {
	Nodes        int
	Edges        int
	SkippedNodes int
	SkippedEdges int
}

// Loader streams a KGX document into a Writer.
type Loader struct {
	w      Writer
	logger *zap.Logger
}

// NewLoader creates a loader writing to w.
func NewLoader(w Writer, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{w: w, logger: logger}
}

// Load reads {"nodes": [...], "edges": [...]} from r. Gzip input is detected
// from its magic bytes. Records missing required fields are skipped and
// counted; write errors abort the load.
func (l *Loader) Load(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats

	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return stats, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	} else {
		r = br
	}

	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return stats, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return stats, fmt.Errorf("reading kgx document: %w", err)
		}
		key, _ := tok.(string)
		switch key {
		case "nodes":
			err = eachRecord(ctx, dec, func(rec map[string]any) error {
				return l.node(ctx, rec, &stats)
			})
		case "edges":
			err = eachRecord(ctx, dec, func(rec map[string]any) error {
				return l.edge(ctx, rec, &stats)
			})
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return stats, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return stats, err
	}

	l.logger.Info("Loaded KGX graph",
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
		zap.Int("skipped_nodes", stats.SkippedNodes),
		zap.Int("skipped_edges", stats.SkippedEdges))
	return stats, nil
}

func (l *Loader) node(ctx context.Context, rec map[string]any, stats *Stats) error {
	id, _ := rec["id"].(string)
	if id == "" {
		stats.SkippedNodes++
		l.logger.Debug("Skipping node without id")
		return nil
	}
	if err := l.w.UpsertNode(ctx, rec); err != nil {
		return fmt.Errorf("writing node %s: %w", id, err)
	}
	stats.Nodes++
	return nil
}

func (l *Loader) edge(ctx context.Context, rec map[string]any, stats *Stats) error {
	subject, _ := rec["subject"].(string)
	object, _ := rec["object"].(string)
	label := EdgeLabel(rec)
	if subject == "" || object == "" {
		stats.SkippedEdges++
		l.logger.Debug("Skipping edge without endpoints", zap.Any("id", rec["id"]))
		return nil
	}
	props := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == "subject" || k == "object" {
			continue
		}
		props[k] = v
	}
	props["edge_label"] = label
	delete(props, "predicate")

	if err := l.w.UpsertEdge(ctx, subject, object, RelationshipType(label), props); err != nil {
		return fmt.Errorf("writing edge %s -> %s: %w", subject, object, err)
	}
	stats.Edges++
	return nil
}

// EdgeLabel is the Biolink slot named by an edge's edge_label or predicate,
// without a biolink: prefix. Edges naming neither are related_to.
func EdgeLabel(rec map[string]any) string {
	for _, key := range []string{"edge_label", "predicate"} {
		if s, ok := rec[key].(string); ok && s != "" {
			s = strings.TrimPrefix(s, "biolink:")
			return strings.ReplaceAll(biolink.Normalize(s), " ", "_")
		}
	}
	return strings.ReplaceAll(biolink.DefaultEdgeLabel, " ", "_")
}

var unsafeType = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// RelationshipType turns an edge label into a relationship type usable in
// Cypher.
func RelationshipType(label string) string {
	t := strings.Trim(unsafeType.ReplaceAllString(label, "_"), "_")
	if t == "" || (t[0] >= '0' && t[0] <= '9') {
		t = "_" + t
	}
	return t
}

func eachRecord(ctx context.Context, dec *json.Decoder, fn func(map[string]any) error) error {
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("decoding kgx record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return expectDelim(dec, ']')
}

var errMalformed = errors.New("malformed kgx document")

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", errMalformed, want, tok)
	}
	return nil
}
