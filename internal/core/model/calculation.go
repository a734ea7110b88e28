package model

type StepKind string

const (
	StepSource     StepKind = "source"
	StepFormula    StepKind = "formula"
	StepAdjustment StepKind = "adjustment"
)

// CalculationStep is one node in a per-attribute provenance DAG. Steps
// reference each other by id only (arena + index), never by pointer, so
// cycle detection is a plain traversal over ids.
type CalculationStep struct {
	ID          string   `json:"id"`
	Order       int      `json:"order"`
	Kind        StepKind `json:"kind"`
	Description string   `json:"description"`
	Value       float64  `json:"value"`
	DocumentID  string   `json:"document_id,omitempty"`
	Page        int      `json:"page,omitempty"`
	Formula     string   `json:"formula,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
	ParentIDs   []string `json:"parent_ids,omitempty"`
}

type VerificationStatus string

const (
	VerificationMatch         VerificationStatus = "MATCH"
	VerificationMinorVariance VerificationStatus = "MINOR_VARIANCE"
	VerificationMismatch      VerificationStatus = "MISMATCH"
	VerificationError         VerificationStatus = "verification_error"
)

// CalculationTrace is the full derivation for one attribute: the DAG, the
// terminal value, and its comparison against the authoritative value.
type CalculationTrace struct {
	AttributeName  string             `json:"attribute_name"`
	Steps          []CalculationStep  `json:"steps"`
	TerminalStepID string             `json:"terminal_step_id,omitempty"`
	DerivedValue   float64            `json:"derived_value"`
	ExpectedValue  FieldValue         `json:"expected_value"`
	Status         VerificationStatus `json:"status"`
	VariancePct    float64            `json:"variance_pct"`
	Error          string             `json:"error,omitempty"`
}
