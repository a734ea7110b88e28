package model

import "time"

type DocumentStatus string

const (
	DocStatusOK                DocumentStatus = "ok"
	DocStatusDuplicate         DocumentStatus = "duplicate"
	DocStatusUnfingerprintable DocumentStatus = "unfingerprintable"
	DocStatusNeedsReview       DocumentStatus = "needs_review"
)

type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is the immutable raw unit handed over by the ingestion
// collaborator, plus the engine's annotations (fingerprints, oracle judgment,
// status flags). The raw pages are never mutated.
type Document struct {
	ID        string    `json:"id"`
	LoanID    string    `json:"loan_id"`
	PageCount int       `json:"page_count"`
	Pages     []Page    `json:"pages,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Content identity (engine-computed).
	ExactHash      string `json:"exact_hash,omitempty"`
	PerceptualHash uint64 `json:"perceptual_hash,omitempty"`

	// Oracle judgment (boundary-coerced).
	TypeLabel         string                `json:"type_label,omitempty"`
	GroupingHint      string                `json:"grouping_hint,omitempty"`
	FinalityIndicator string                `json:"finality_indicator,omitempty"`
	HasSignature      *bool                 `json:"has_signature,omitempty"`
	DocumentDate      *time.Time            `json:"document_date,omitempty"`
	Fields            map[string]FieldValue `json:"fields,omitempty"`
	FieldPages        map[string]int        `json:"field_pages,omitempty"`

	Status      DocumentStatus `json:"status"`
	StatusNote  string         `json:"status_note,omitempty"`
	DuplicateOf string         `json:"duplicate_of,omitempty"`
}

// Loan carries the applicability facts rule predicates need.
type Loan struct {
	ID       string `json:"id"`
	LoanType string `json:"loan_type"`
	State    string `json:"state"`
}
