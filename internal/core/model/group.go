package model

type GroupStatus string

const (
	GroupUnresolved GroupStatus = "unresolved"
	GroupResolved   GroupStatus = "resolved"
)

type VersionRole string

const (
	RoleMaster     VersionRole = "master"
	RoleSuperseded VersionRole = "superseded"
	RoleUnique     VersionRole = "unique"
)

// InstrumentGroup is a set of documents believed to be drafts of one logical
// instrument. Membership is fixed by grouping; only version resolution moves
// the status to resolved.
type InstrumentGroup struct {
	Key         string      `json:"key"`
	LoanID      string      `json:"loan_id"`
	TypeLabel   string      `json:"type_label,omitempty"`
	DocumentIDs []string    `json:"document_ids"`
	Status      GroupStatus `json:"status"`
}

// VersionRecord is the resolved rank of one document within its group.
// Exactly one master with rank 0 per non-empty group; unique only for
// singletons.
type VersionRecord struct {
	DocumentID string      `json:"document_id"`
	GroupKey   string      `json:"group_key"`
	Rank       int         `json:"rank"`
	Role       VersionRole `json:"role"`
	// Reason names the comparator criterion that placed this document above
	// the next-ranked one ("finality", "signature", "date", "page_count",
	// "document_id"). The id tiebreak is arbitrary-but-stable and is called
	// out as such in audit output.
	Reason string `json:"reason,omitempty"`
}

// GroupingConflict records a disagreement between fingerprint clustering and
// an oracle grouping hint. The oracle wins; the conflict is kept for audit.
type GroupingConflict struct {
	DocumentID       string `json:"document_id"`
	FingerprintGroup string `json:"fingerprint_group"`
	OracleGroup      string `json:"oracle_group"`
}
