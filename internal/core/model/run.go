package model

import "time"

// ReconciliationRun is the versioned run context: every derived stage output
// for one execution, keyed by loan and execution id. Re-running replaces the
// whole run; nothing upstream is mutated in place.
type ReconciliationRun struct {
	LoanID      string    `json:"loan_id"`
	ExecutionID string    `json:"execution_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Documents  []Document         `json:"documents"`
	Groups     []InstrumentGroup  `json:"groups"`
	Versions   []VersionRecord    `json:"versions"`
	Attributes []Attribute        `json:"attributes"`
	Traces     []CalculationTrace `json:"traces"`
	Conflicts  []GroupingConflict `json:"conflicts,omitempty"`

	// Audit counters surfaced to the review application.
	DuplicateIDs   []string `json:"duplicate_ids,omitempty"`
	NeedsReviewIDs []string `json:"needs_review_ids,omitempty"`
}

// AttributeByName returns the reconciled attribute, if present.
func (r *ReconciliationRun) AttributeByName(name string) (Attribute, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// TraceByAttribute returns the calculation trace for an attribute, if one
// was derived.
func (r *ReconciliationRun) TraceByAttribute(name string) (CalculationTrace, bool) {
	for _, t := range r.Traces {
		if t.AttributeName == name {
			return t, true
		}
	}
	return CalculationTrace{}, false
}

// DocumentByID returns the annotated document from this run.
func (r *ReconciliationRun) DocumentByID(id string) (Document, bool) {
	for _, d := range r.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}
