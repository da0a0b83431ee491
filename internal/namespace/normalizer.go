// Package namespace converts identifiers between full URIs and compact CURIEs.
//
// A Normalizer owns the process-wide prefix multi-map: every successful
// contraction records which URI prefix produced which CURIE namespace, and
// expansion reverses that record. A CaseMap corrects the letter-casing of
// user-supplied CURIE prefixes against the casing stored in the graph.
package namespace

import (
	"sync"

	"go.uber.org/zap"
)

// Normalizer contracts URIs and expands CURIEs. It is safe for concurrent use.
type Normalizer struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	forward map[string]string   // uri prefix -> curie prefix
	reverse map[string][]string // curie prefix -> uri prefixes, registration order
}

// NewNormalizer creates a normalizer over registry.
func NewNormalizer(registry *Registry, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		registry: registry,
		logger:   logger,
		forward:  make(map[string]string),
		reverse:  make(map[string][]string),
	}
}

// Contract abbreviates uri to its shortest known CURIE. The input comes back
// unchanged when it cannot be shortened.
func (n *Normalizer) Contract(uri string) string {
	c, ok := Shortest(n.registry.Contractions(uri))
	if !ok {
		contractionsTotal.WithLabelValues("miss").Inc()
		return uri
	}

	ns, local, ok := Split(c)
	if !ok {
		contractionsTotal.WithLabelValues("empty_local_id").Inc()
		return uri
	}

	n.record(uri[:len(uri)-len(local)], ns)
	contractionsTotal.WithLabelValues("hit").Inc()
	return c
}

// Expand returns one candidate URI per URI prefix seen for the CURIE's
// namespace. It is empty for malformed CURIEs and unseen namespaces.
func (n *Normalizer) Expand(curie string) []string {
	ns, local, ok := Split(curie)
	if !ok {
		expansionsTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	n.mu.RLock()
	prefixes := n.reverse[ns]
	uris := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		uris = append(uris, p+local)
	}
	n.mu.RUnlock()

	if len(uris) == 0 {
		expansionsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	expansionsTotal.WithLabelValues("hit").Inc()
	return uris
}

// ExpandAll expands every CURIE and concatenates the results.
func (n *Normalizer) ExpandAll(curies []string) []string {
	var uris []string
	for _, c := range curies {
		uris = append(uris, n.Expand(c)...)
	}
	return uris
}

// URIPrefixes returns the URI prefixes recorded for a namespace. A full CURIE
// is accepted and reduced to its namespace.
func (n *Normalizer) URIPrefixes(curiePrefix string) []string {
	if ns, _, found := cutNamespace(curiePrefix); found {
		curiePrefix = ns
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, len(n.reverse[curiePrefix]))
	copy(out, n.reverse[curiePrefix])
	return out
}

// Publish merges a discovered mapping table in one step, so readers see
// either none or all of it.
func (n *Normalizer) Publish(mappings []PrefixMapping) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range mappings {
		if m.URIPrefix == "" || m.CURIEPrefix == "" {
			continue
		}
		n.recordLocked(m.URIPrefix, m.CURIEPrefix)
	}
	prefixMappings.Set(float64(len(n.forward)))
	n.logger.Info("Published prefix mappings",
		zap.Int("published", len(mappings)),
		zap.Int("known_uri_prefixes", len(n.forward)))
}

// Snapshot returns the forward table, ordered by namespace then registration.
func (n *Normalizer) Snapshot() []PrefixMapping {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]PrefixMapping, 0, len(n.forward))
	for ns, prefixes := range n.reverse {
		for _, p := range prefixes {
			if n.forward[p] == ns {
				out = append(out, PrefixMapping{URIPrefix: p, CURIEPrefix: ns})
			}
		}
	}
	sortMappings(out)
	return out
}

func (n *Normalizer) record(uriPrefix, curiePrefix string) {
	n.mu.RLock()
	known := n.forward[uriPrefix] == curiePrefix && containsString(n.reverse[curiePrefix], uriPrefix)
	n.mu.RUnlock()
	if known {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.recordLocked(uriPrefix, curiePrefix) {
		n.logger.Debug("Learned URI prefix",
			zap.String("uri_prefix", uriPrefix),
			zap.String("curie_prefix", curiePrefix))
	}
	prefixMappings.Set(float64(len(n.forward)))
}

// recordLocked stores the pair and reports whether anything changed.
// Callers hold n.mu for writing.
func (n *Normalizer) recordLocked(uriPrefix, curiePrefix string) bool {
	changed := false
	if n.forward[uriPrefix] != curiePrefix {
		n.forward[uriPrefix] = curiePrefix
		changed = true
	}
	if !containsString(n.reverse[curiePrefix], uriPrefix) {
		n.reverse[curiePrefix] = append(n.reverse[curiePrefix], uriPrefix)
		changed = true
	}
	return changed
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
