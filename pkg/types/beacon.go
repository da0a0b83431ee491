package types

// BeaconConcept is one hit of a concept search.
type BeaconConcept struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Categories  []string `json:"categories"`
	Description string   `json:"description,omitempty"`
}

// BeaconConceptDetail is an extra node property exported as tag = value.
type BeaconConceptDetail struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// BeaconConceptWithDetails is the full record of one concept.
type BeaconConceptWithDetails struct {
	ID           string                `json:"id"`
	URI          string                `json:"uri,omitempty"`
	Name         string                `json:"name,omitempty"`
	Symbol       string                `json:"symbol,omitempty"`
	Categories   []string              `json:"categories"`
	Synonyms     []string              `json:"synonyms"`
	Description  string                `json:"description,omitempty"`
	ExactMatches []string              `json:"exact_matches"`
	Details      []BeaconConceptDetail `json:"details"`
}

// ExactMatchResponse lists the identifiers known to be equivalent to ID.
type ExactMatchResponse struct {
	ID              string   `json:"id"`
	WithinDomain    bool     `json:"within_domain"`
	HasExactMatches []string `json:"has_exact_matches"`
}

// BeaconStatementSubject is also used for the statement object.
type BeaconStatementSubject struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Categories []string `json:"categories"`
}

type BeaconStatementObject = BeaconStatementSubject

type BeaconStatementPredicate struct {
	EdgeLabel string `json:"edge_label"`
	Relation  string `json:"relation,omitempty"`
	Negated   bool   `json:"negated"`
}

// BeaconStatement is a subject-predicate-object triple.
type BeaconStatement struct {
	ID        string                   `json:"id"`
	Subject   BeaconStatementSubject   `json:"subject"`
	Predicate BeaconStatementPredicate `json:"predicate"`
	Object    BeaconStatementObject    `json:"object"`
}

type BeaconStatementAnnotation struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// BeaconStatementCitation is a piece of evidence supporting a statement.
type BeaconStatementCitation struct {
	ID           string `json:"id,omitempty"`
	URI          string `json:"uri,omitempty"`
	Name         string `json:"name,omitempty"`
	EvidenceType string `json:"evidence_type,omitempty"`
	Date         string `json:"date,omitempty"`
}

// BeaconStatementWithDetails carries provenance, annotations and evidence.
type BeaconStatementWithDetails struct {
	ID          string                      `json:"id"`
	IsDefinedBy string                      `json:"is_defined_by,omitempty"`
	ProvidedBy  string                      `json:"provided_by,omitempty"`
	Qualifiers  []string                    `json:"qualifiers"`
	Annotation  []BeaconStatementAnnotation `json:"annotation"`
	Evidence    []BeaconStatementCitation   `json:"evidence"`
}

type BeaconConceptCategory struct {
	Category      string `json:"category"`
	LocalCategory string `json:"local_category,omitempty"`
	Description   string `json:"description,omitempty"`
	Frequency     int64  `json:"frequency"`
}

type BeaconKnowledgeMapSubject struct {
	Category string   `json:"category"`
	Prefixes []string `json:"prefixes"`
}

type BeaconKnowledgeMapObject = BeaconKnowledgeMapSubject

type BeaconKnowledgeMapPredicate struct {
	EdgeLabel string `json:"edge_label"`
	Relation  string `json:"relation,omitempty"`
	Negated   bool   `json:"negated"`
}

// BeaconKnowledgeMapStatement counts the statements of one category triple.
type BeaconKnowledgeMapStatement struct {
	Subject     BeaconKnowledgeMapSubject   `json:"subject"`
	Predicate   BeaconKnowledgeMapPredicate `json:"predicate"`
	Object      BeaconKnowledgeMapObject    `json:"object"`
	Frequency   int64                       `json:"frequency"`
	Description string                      `json:"description,omitempty"`
}

type BeaconPredicate struct {
	EdgeLabel   string `json:"edge_label"`
	Relation    string `json:"relation,omitempty"`
	Description string `json:"description,omitempty"`
	Frequency   int64  `json:"frequency"`
}
