// Package biolink validates concept categories and edge labels against an
// embedded subset of the Biolink model.
package biolink

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCategory  = "named thing"
	DefaultEdgeLabel = "related_to"
)

//go:embed model.yaml
var embeddedModel []byte

// Element is a Biolink class or slot.
type Element struct {
	Name        string `yaml:"-"`
	IsA         string `yaml:"is_a"`
	Description string `yaml:"description"`
}

// Model holds the classes and slots keyed by normalized name.
type Model struct {
	classes map[string]Element
	slots   map[string]Element
}

type document struct {
	Classes map[string]Element `yaml:"classes"`
	Slots   map[string]Element `yaml:"slots"`
}

// Default parses the embedded model.
func Default() (*Model, error) {
	return Parse(embeddedModel)
}

// Parse reads a model document with top-level classes and slots maps.
func Parse(data []byte) (*Model, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing biolink model: %w", err)
	}
	m := &Model{
		classes: make(map[string]Element, len(doc.Classes)),
		slots:   make(map[string]Element, len(doc.Slots)),
	}
	for name, el := range doc.Classes {
		el.Name = name
		m.classes[Normalize(name)] = el
	}
	for name, el := range doc.Slots {
		el.Name = name
		m.slots[Normalize(name)] = el
	}
	if _, ok := m.classes[Normalize(DefaultCategory)]; !ok {
		return nil, fmt.Errorf("biolink model has no %q class", DefaultCategory)
	}
	if _, ok := m.slots[Normalize(DefaultEdgeLabel)]; !ok {
		return nil, fmt.Errorf("biolink model has no %q slot", DefaultEdgeLabel)
	}
	return m, nil
}

// Normalize maps "related_to", "Related To" and "biolink:related_to" to one
// key.
func Normalize(name string) string {
	name = strings.TrimPrefix(name, "biolink:")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Class looks up a category.
func (m *Model) Class(name string) (Element, bool) {
	el, ok := m.classes[Normalize(name)]
	return el, ok
}

// Slot looks up an edge label.
func (m *Model) Slot(name string) (Element, bool) {
	el, ok := m.slots[Normalize(name)]
	return el, ok
}

// IsCategory reports whether name is a Biolink class.
func (m *Model) IsCategory(name string) bool {
	_, ok := m.Class(name)
	return ok
}

// Standardize drops non-Biolink categories when filter is set. A list left
// empty by filtering becomes the default category.
func (m *Model) Standardize(categories []string, filter bool) []string {
	if !filter {
		if categories == nil {
			return []string{}
		}
		return categories
	}
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if m.IsCategory(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, DefaultCategory)
	}
	return out
}
