package namespace

import (
	"sort"
	"strings"
)

// DefaultDenylist holds infrastructure strings found in ontology graphs that
// look like identifiers but must never be proposed as namespaces.
var DefaultDenylist = []string{
	"https://raw.githubusercontent.com/monarch-initiative/GENO-ontology/develop/src/ontology/imports/",
	"http://www.ncbi.nlm.nih.gov/bookshelf/br.fcgi",
	"https://raw.githubusercontent.com/monarch-initiative/GENO-ontology",
	"_:",
	"http://owlcollab.github.io/oboformat/doc/obo-syntax.html",
	"https://github.com/obophenotype/uberon/wiki/Taxon-constraints",
	"http://www.geneontology.org/page/go-slim-and-subset-guide",
	"http://robot.obolibrary.org/reason",
	"https://github.com/obophenotype/uberon/wiki/inter-anatomy-ontology-bridge-ontologies",
	"http://protege.stanford.edu/plugins/owl/protege#defaultLanguage",
	"http://robot.obolibrary.org/extract",
	"http://robot.obolibrary.org/template",
	"https://github.com/dosumis/dead_simple_owl_design_patterns/",
	"http://robot.obolibrary.org/filter",
	"https://github.com/INCATools/ontology-starter-kit/issues/50",
	"https://elementsofmorphology.nih.gov/",
	"mailto:bfo-owl-devel@googlegroups.com",
	"https://www.bcm.edu/",
	"https://mbp.mousebiology.org/",
	"https://www.har.mrc.ac.uk/",
	"https://www.helmholtz-muenchen.de/en/",
	"https://www.mouseclinic.de/",
	"https://www.jax.org/",
	"https://www.mousephenotype.org/",
	"https://github.com/information-artifact-ontology",
	"https://en.wikipedia.org/wiki/Extract,_transform,_load",
	"https://archive.monarchinitiative.org/201803/ttl/udp.ttl",
}

// Denylist matches identifiers that are exactly, or start with, a listed entry.
type Denylist struct {
	entries []string
}

// NewDenylist builds a denylist, dropping blanks and duplicates.
func NewDenylist(entries ...string) *Denylist {
	seen := make(map[string]struct{}, len(entries))
	d := &Denylist{}
	for _, e := range entries {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		d.entries = append(d.entries, e)
	}
	sort.Strings(d.entries)
	return d
}

// Matches reports whether uri equals or is prefixed by a denylist entry.
func (d *Denylist) Matches(uri string) bool {
	if d == nil {
		return false
	}
	for _, e := range d.entries {
		if uri == e || strings.HasPrefix(uri, e) {
			return true
		}
	}
	return false
}

// Entries returns the sorted entries.
func (d *Denylist) Entries() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.entries))
	copy(out, d.entries)
	return out
}
