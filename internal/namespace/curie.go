package namespace

import (
	"sort"
	"strings"
)

// Separator splits a CURIE into namespace and local id.
const Separator = ":"

// Split breaks a CURIE on its first separator. ok is false when there is no
// separator or the local id is empty.
func Split(curie string) (ns, local string, ok bool) {
	ns, local, found := strings.Cut(curie, Separator)
	if !found || local == "" {
		return ns, local, false
	}
	return ns, local, true
}

// Join builds a CURIE from a namespace and a local id.
func Join(ns, local string) string {
	return ns + Separator + local
}

// HasNamespace reports whether s contains a namespace separator.
func HasNamespace(s string) bool {
	return strings.Contains(s, Separator)
}

// PrefixMapping is one discovered correspondence between a literal URI prefix
// and the CURIE namespace it contracts to.
type PrefixMapping struct {
	URIPrefix   string `yaml:"uri_prefix" json:"uri_prefix"`
	CURIEPrefix string `yaml:"curie_prefix" json:"curie_prefix"`
}

func cutNamespace(s string) (ns, local string, found bool) {
	return strings.Cut(s, Separator)
}

// sortMappings orders by namespace, keeping the relative order of the URI
// prefixes of one namespace.
func sortMappings(m []PrefixMapping) {
	sort.SliceStable(m, func(i, j int) bool {
		return m[i].CURIEPrefix < m[j].CURIEPrefix
	})
}
