package api

import (
	"context"
)

// normalize corrects the namespace casing of an inbound CURIE.
func (s *Server) normalize(ctx context.Context, id string) string {
	if s.caseMap == nil {
		return id
	}
	return s.caseMap.NormalizeCase(ctx, id)
}

// candidates lists the stored forms to try for one inbound identifier: the
// case-corrected CURIE and, in iri mode, every known URI for it.
func (s *Server) candidates(ctx context.Context, id string) []string {
	curie := s.normalize(ctx, id)
	out := []string{curie}
	if s.iriMode() && s.normalizer != nil {
		for _, uri := range s.normalizer.Expand(curie) {
			if uri != curie {
				out = append(out, uri)
			}
		}
	}
	return out
}

// inbound applies candidates to every identifier, keeping first occurrences.
func (s *Server) inbound(ctx context.Context, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		for _, c := range s.candidates(ctx, id) {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// outbound converts a stored identifier for a response. In iri mode stored
// URIs are contracted to CURIEs; anything that cannot be contracted passes
// through.
func (s *Server) outbound(id string) string {
	if !s.iriMode() || s.normalizer == nil || id == "" {
		return id
	}
	return s.normalizer.Contract(id)
}

func (s *Server) outboundAll(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.outbound(id))
	}
	return out
}
