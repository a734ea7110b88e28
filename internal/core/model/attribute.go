package model

// Attribute is a reconciled loan attribute with its winning source reference.
// Invariant: a non-missing value always carries a source document and tier;
// an unsourced attribute always carries a missing value.
type Attribute struct {
	Name             string     `json:"name"`
	Value            FieldValue `json:"value"`
	Unit             string     `json:"unit,omitempty"`
	SourceDocumentID string     `json:"source_document_id,omitempty"`
	SourcePage       int        `json:"source_page,omitempty"`
	SourceTier       int        `json:"source_tier"`
	SourceType       string     `json:"source_type,omitempty"`
	Unsourced        bool       `json:"unsourced"`
}
