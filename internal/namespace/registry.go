package namespace

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
)

//go:embed prefixes.yaml
var defaultPrefixes []byte

// Entry maps a CURIE namespace onto the base URI it abbreviates.
type Entry struct {
	Prefix string
	Base   string
}

// DomainEntries are the namespaces used by the knowledge graphs this gateway
// fronts that the default table does not know about.
var DomainEntries = []Entry{
	{"OMIM", "http://omim.org/entry/"},
	{"NCBIGenome", "https://www.ncbi.nlm.nih.gov/genome/"},
	{"doi", "https://doi.org/"},
	{"ElementsOfMorphology", "https://elementsofmorphology.nih.gov/index.cgi?tid="},
	{"HttpsElementsOfMorphology", "http://elementsofmorphology.nih.gov/index.cgi?tid="},
	{"ElementsOfMorphologyImages", "https://elementsofmorphology.nih.gov/images/terms/"},
	{"MedecineSymbol", "http://genatlas.medecine.univ-paris5.fr/fiche.php?symbol="},
	{"GuideToPharmacology", "http://www.guidetopharmacology.org/GRAC/ObjectDisplayForward?objectId="},
	{"NCBIGene", "https://www.ncbi.nlm.nih.gov/gene/"},
	{"OMIA", "https://omia.org/"},
	{"SANGER", "https://decipher.sanger.ac.uk/syndrome/"},
	{"NCBITerm", "https://www.ncbi.nlm.nih.gov/assembly?term="},
	{"NCBIBook", "https://www.ncbi.nlm.nih.gov/books/"},
	{"PhenotypicSeries", "http://www.omim.org/phenotypicSeries/"},
	{"MousePhenotypeParameters", "https://www.mousephenotype.org/impress/parameters/"},
	{"EBI", "http://www.ebi.ac.uk/efo/"},
	{"EBIVariant", "https://www.ebi.ac.uk/gwas/variants/"},
}

// Registry is an ordered, extensible namespace -> base URI table.
// Entries may be registered until the first contraction; after that the
// registry is frozen so every request sees the same table.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	frozen  bool
}

// NewRegistry creates a registry holding the given entries.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{}
	for _, e := range entries {
		r.addLocked(e)
	}
	return r
}

// DefaultRegistry returns the embedded default table augmented with DomainEntries.
func DefaultRegistry() (*Registry, error) {
	entries, err := parseEntries(defaultPrefixes)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded prefixes: %w", err)
	}
	return NewRegistry(append(entries, DomainEntries...)...), nil
}

// Register adds a namespace. It fails once the registry has been used.
func (r *Registry) Register(prefix, base string) error {
	if prefix == "" || base == "" {
		return fmt.Errorf("register %q -> %q: %w", prefix, base, apperrors.ErrInvalidIdentifier)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register %q: %w", prefix, apperrors.ErrRegistryFrozen)
	}
	r.addLocked(Entry{Prefix: prefix, Base: base})
	return nil
}

// LoadFile registers every `prefix: base` pair of a YAML mapping file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading prefix file: %w", err)
	}
	entries, err := parseEntries(data)
	if err != nil {
		return fmt.Errorf("parsing prefix file %s: %w", path, err)
	}
	for _, e := range entries {
		if err := r.Register(e.Prefix, e.Base); err != nil {
			return err
		}
	}
	return nil
}

// addLocked appends e unless present. The caller holds mu or owns r.
func (r *Registry) addLocked(e Entry) {
	for _, existing := range r.entries {
		if existing == e {
			return
		}
	}
	r.entries = append(r.entries, e)
}

// Freeze stops further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the registry still accepts entries.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Entries returns a copy of the table in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Contractions returns every CURIE the uri can be abbreviated to, one per
// entry whose base is a prefix of uri. The first call freezes the registry.
func (r *Registry) Contractions(uri string) []string {
	if !r.Frozen() {
		r.Freeze()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var curies []string
	seen := make(map[string]struct{})
	for _, e := range r.entries {
		if !strings.HasPrefix(uri, e.Base) {
			continue
		}
		c := Join(e.Prefix, uri[len(e.Base):])
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		curies = append(curies, c)
	}
	return curies
}

// Shortest picks the canonical contraction: fewest characters, ties broken
// lexically so the choice is stable.
func Shortest(curies []string) (string, bool) {
	if len(curies) == 0 {
		return "", false
	}
	best := curies[0]
	for _, c := range curies[1:] {
		if len(c) < len(best) || (len(c) == len(best) && c < best) {
			best = c
		}
	}
	return best, true
}

// parseEntries decodes a YAML mapping while keeping document order.
func parseEntries(data []byte) ([]Entry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of prefix to base URI, got yaml kind %d", m.Kind)
	}
	entries := make([]Entry, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		prefix, base := m.Content[i].Value, m.Content[i+1].Value
		if prefix == "" || base == "" {
			return nil, fmt.Errorf("line %d: empty prefix or base", m.Content[i].Line)
		}
		entries = append(entries, Entry{Prefix: prefix, Base: base})
	}
	return entries, nil
}
