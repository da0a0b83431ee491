package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/evidence"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/server/graph"
	"github.com/NCATS-Tangerine/tkg-beacon/pkg/types"
)

// defaultStatementSize applies when /statements is called without size.
const defaultStatementSize = 100

var endpoints = []string{
	"concepts", "concepts/{conceptId}", "exactmatches",
	"statements", "statements/{statementId}",
	"categories", "knowledge_map", "predicates",
}

// Index handles GET /beacon/{name}/
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"beacon":    s.opts.BeaconName,
		"version":   s.opts.Version,
		"endpoints": endpoints,
	})
}

// GetConcepts handles GET /concepts
// Returns an empty list unless at least one of keywords, categories and size
// is given.
func (s *Server) GetConcepts(w http.ResponseWriter, r *http.Request) {
	keywords := queryList(r, "keywords")
	categories := queryList(r, "categories")
	offset, size, sizeGiven, err := page(r, 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	concepts := []types.BeaconConcept{}
	if keywords == nil && categories == nil && !sizeGiven {
		writeJSON(w, http.StatusOK, concepts)
		return
	}

	nodes, err := s.repo.FindConcepts(r.Context(), graph.ConceptQuery{
		Keywords:   keywords,
		Categories: categories,
		Offset:     offset,
		Limit:      size,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	for _, n := range nodes {
		concepts = append(concepts, types.BeaconConcept{
			ID:          s.outbound(n.ID),
			Name:        n.Name,
			Categories:  s.model.Standardize(n.Categories, s.opts.FilterBiolink),
			Description: n.Description,
		})
	}
	writeJSON(w, http.StatusOK, concepts)
}

// GetConceptDetails handles GET /concepts/{conceptId}
func (s *Server) GetConceptDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conceptId")

	var node *graph.Node
	var err error
	for _, c := range s.candidates(r.Context(), id) {
		node, err = s.repo.GetConcept(r.Context(), c)
		if !errors.Is(err, apperrors.ErrNotFound) {
			break
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	details := []types.BeaconConceptDetail{}
	for _, p := range node.Details() {
		details = append(details, types.BeaconConceptDetail{Tag: p.Key, Value: graph.Stringify(p.Value)})
	}

	writeJSON(w, http.StatusOK, types.BeaconConceptWithDetails{
		ID:           s.outbound(node.ID),
		URI:          node.URI,
		Name:         node.Name,
		Symbol:       node.Symbol,
		Categories:   s.model.Standardize(node.Categories, s.opts.FilterBiolink),
		Synonyms:     node.Synonyms,
		Description:  node.Description,
		ExactMatches: s.outboundAll(node.ExactMatches()),
		Details:      details,
	})
}

// GetExactMatches handles GET /exactmatches?c=
// Every input identifier gets one entry, in input order.
func (s *Server) GetExactMatches(w http.ResponseWriter, r *http.Request) {
	inputs := queryList(r, "c")
	if len(inputs) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one c identifier is required")
		return
	}

	// query form -> normalized input it came from
	origin := make(map[string]string)
	var curies, query []string
	for _, in := range inputs {
		cands := s.candidates(r.Context(), in)
		curies = append(curies, cands[0])
		for _, c := range cands {
			if _, ok := origin[c]; !ok {
				origin[c] = cands[0]
				query = append(query, c)
			}
		}
	}

	rows, err := s.repo.ExactMatches(r.Context(), query)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	matches := make(map[string]map[string]struct{})
	for _, row := range rows {
		curie := origin[row.InputID]
		set, ok := matches[curie]
		if !ok {
			set = make(map[string]struct{})
			matches[curie] = set
		}
		for _, id := range append(append([]string{row.MatchID}, row.Clique...), row.Xrefs...) {
			if id != "" {
				set[s.outbound(id)] = struct{}{}
			}
		}
	}

	responses := make([]types.ExactMatchResponse, 0, len(curies))
	for _, c := range curies {
		set, ok := matches[c]
		resp := types.ExactMatchResponse{ID: c, WithinDomain: ok, HasExactMatches: []string{}}
		for id := range set {
			resp.HasExactMatches = append(resp.HasExactMatches, id)
		}
		sort.Strings(resp.HasExactMatches)
		responses = append(responses, resp)
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetStatements handles GET /statements
func (s *Server) GetStatements(w http.ResponseWriter, r *http.Request) {
	offset, size, _, err := page(r, defaultStatementSize)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	rows, err := s.repo.FindStatements(ctx, graph.StatementQuery{
		Sources:          s.inbound(ctx, queryList(r, "s")),
		SourceKeywords:   queryList(r, "s_keywords"),
		SourceCategories: queryList(r, "s_categories"),
		EdgeLabel:        queryString(r, "edge_label"),
		Relation:         queryString(r, "relation"),
		Targets:          s.inbound(ctx, queryList(r, "t")),
		TargetKeywords:   queryList(r, "t_keywords"),
		TargetCategories: queryList(r, "t_categories"),
		Offset:           offset,
		Limit:            size,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	statements := make([]types.BeaconStatement, 0, len(rows))
	for _, row := range rows {
		statements = append(statements, s.statement(row))
	}
	writeJSON(w, http.StatusOK, statements)
}

func (s *Server) statement(row graph.StatementRow) types.BeaconStatement {
	subject := s.outbound(row.Subject.ID)
	object := s.outbound(row.Object.ID)
	label := row.Edge.Label()

	id := row.Edge.ID
	if id == "" {
		id = subject + ":" + label + ":" + object
	}
	return types.BeaconStatement{
		ID: id,
		Subject: types.BeaconStatementSubject{
			ID:         subject,
			Name:       row.Subject.Name,
			Categories: s.model.Standardize(row.Subject.Categories, s.opts.FilterBiolink),
		},
		Predicate: types.BeaconStatementPredicate{
			EdgeLabel: label,
			Relation:  row.Edge.Relation,
			Negated:   row.Edge.Negated,
		},
		Object: types.BeaconStatementObject{
			ID:         object,
			Name:       row.Object.Name,
			Categories: s.model.Standardize(row.Object.Categories, s.opts.FilterBiolink),
		},
	}
}

// GetStatementDetails handles GET /statements/{statementId}
// keywords filter evidence by citation name; offset and size page the
// evidence list.
func (s *Server) GetStatementDetails(w http.ResponseWriter, r *http.Request) {
	statementID := chi.URLParam(r, "statementId")
	ref, err := graph.ParseStatementRef(statementID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, size, _, err := page(r, 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	row, err := s.findStatement(r, ref)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	citations := evidence.FromEvidence(row.Edge.Evidence)
	if s.citer != nil {
		citations = append(citations, s.citer.Citations(r.Context(), row.Edge.Publications)...)
	} else {
		for _, p := range row.Edge.Publications {
			citations = append(citations, types.BeaconStatementCitation{ID: p})
		}
	}
	citations = pageCitations(filterCitations(citations, queryList(r, "keywords")), offset, size)

	qualifiers := row.Edge.Qualifiers
	if qualifiers == nil {
		qualifiers = []string{}
	}
	writeJSON(w, http.StatusOK, types.BeaconStatementWithDetails{
		ID:          statementID,
		IsDefinedBy: row.Edge.IsDefinedBy,
		ProvidedBy:  row.Edge.ProvidedBy,
		Qualifiers:  qualifiers,
		Annotation:  annotations(row),
		Evidence:    citations,
	})
}

// findStatement resolves ref, trying every stored form of the endpoints.
func (s *Server) findStatement(r *http.Request, ref graph.StatementRef) (*graph.StatementRow, error) {
	ctx := r.Context()
	if ref.ID != "" {
		return s.repo.GetStatement(ctx, ref)
	}
	var lastErr error
	for _, subject := range s.candidates(ctx, ref.SubjectID) {
		for _, object := range s.candidates(ctx, ref.ObjectID) {
			row, err := s.repo.GetStatement(ctx, graph.StatementRef{
				SubjectID: subject,
				EdgeLabel: ref.EdgeLabel,
				ObjectID:  object,
			})
			if err == nil {
				return row, nil
			}
			if !errors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			lastErr = err
		}
	}
	return nil, lastErr
}

// annotations exports the relationship type, subject and object properties
// (prefixed subject_ and object_) and edge properties as tag = value, sorted
// by tag.
func annotations(row *graph.StatementRow) []types.BeaconStatementAnnotation {
	tags := map[string]string{"relationship_type": row.Edge.Type}
	for k, v := range row.Subject.Properties {
		tags["subject_"+k] = graph.Stringify(v)
	}
	for k, v := range row.Object.Properties {
		tags["object_"+k] = graph.Stringify(v)
	}
	for k, v := range row.Edge.Properties {
		tags[k] = graph.Stringify(v)
	}

	out := make([]types.BeaconStatementAnnotation, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.BeaconStatementAnnotation{Tag: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func filterCitations(citations []types.BeaconStatementCitation, keywords []string) []types.BeaconStatementCitation {
	if len(keywords) == 0 {
		return citations
	}
	out := []types.BeaconStatementCitation{}
	for _, c := range citations {
		name := strings.ToLower(c.Name)
		for _, k := range keywords {
			if strings.Contains(name, strings.ToLower(k)) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func pageCitations(citations []types.BeaconStatementCitation, offset, size int) []types.BeaconStatementCitation {
	if offset >= len(citations) {
		return []types.BeaconStatementCitation{}
	}
	citations = citations[offset:]
	if size > 0 && size < len(citations) {
		citations = citations[:size]
	}
	return citations
}

// GetConceptCategories handles GET /categories
func (s *Server) GetConceptCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.metadata.Categories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// GetKnowledgeMap handles GET /knowledge_map
func (s *Server) GetKnowledgeMap(w http.ResponseWriter, r *http.Request) {
	statements, err := s.metadata.KnowledgeMap(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statements)
}

// GetPredicates handles GET /predicates
func (s *Server) GetPredicates(w http.ResponseWriter, r *http.Request) {
	predicates, err := s.metadata.Predicates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predicates)
}
