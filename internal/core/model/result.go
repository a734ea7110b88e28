package model

import "time"

type RuleStatus string

const (
	StatusPass          RuleStatus = "PASS"
	StatusFail          RuleStatus = "FAIL"
	StatusWarning       RuleStatus = "WARNING"
	StatusNA            RuleStatus = "NA"
	StatusError         RuleStatus = "ERROR"
	StatusPendingReview RuleStatus = "PENDING_REVIEW"
)

type DocumentRef struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page,omitempty"`
}

// Evidence is the bundle of citations backing a rule result. Mandatory and
// complete for PASS results used as audit artifacts; best-effort for
// FAIL/WARNING.
type Evidence struct {
	Documents        []DocumentRef         `json:"documents,omitempty"`
	Values           map[string]FieldValue `json:"values,omitempty"`
	CalculationSteps []CalculationStep     `json:"calculation_steps,omitempty"`
}

// ComplianceResult is one (loan, rule, execution) outcome. Results are
// append-only: a newer run supersedes, never mutates.
type ComplianceResult struct {
	LoanID      string     `json:"loan_id"`
	RuleCode    string     `json:"rule_code"`
	ExecutionID string     `json:"execution_id"`
	Status      RuleStatus `json:"status"`
	// ComputedStatus preserves the rule logic's own outcome on
	// manual-review rules, where Status may be rewritten to
	// PENDING_REVIEW. Empty on rules without manual review.
	ComputedStatus RuleStatus `json:"computed_status,omitempty"`
	Expected       string     `json:"expected,omitempty"`
	Actual         string     `json:"actual,omitempty"`
	Message        string     `json:"message,omitempty"`
	Evidence       Evidence   `json:"evidence"`
	ManualReview   bool       `json:"manual_review"`
	EvaluatedAt    time.Time  `json:"evaluated_at"`
}
