package model

import "time"

type RuleSeverity string

const (
	SeverityCritical RuleSeverity = "critical"
	SeverityHigh     RuleSeverity = "high"
	SeverityMedium   RuleSeverity = "medium"
	SeverityLow      RuleSeverity = "low"
)

type RuleLogicKind string

const (
	LogicThreshold    RuleLogicKind = "threshold"
	LogicPresence     RuleLogicKind = "presence"
	LogicEquality     RuleLogicKind = "equality"
	LogicCalcVerified RuleLogicKind = "calc_verified"
)

// RuleLogic is the declarative logic descriptor. The closed set of kinds
// covers the catalog; there is no expression language.
type RuleLogic struct {
	Kind           RuleLogicKind `json:"kind" toml:"kind"`
	Attribute      string        `json:"attribute" toml:"attribute"`
	Operator       string        `json:"operator,omitempty" toml:"operator"`
	Value          float64       `json:"value,omitempty" toml:"value"`
	OtherAttribute string        `json:"other_attribute,omitempty" toml:"other_attribute"`
	WarningMargin  float64       `json:"warning_margin,omitempty" toml:"warning_margin"`
}

// ComplianceRule is immutable, externally curated reference data.
type ComplianceRule struct {
	Code                 string       `json:"code" toml:"code"`
	Name                 string       `json:"name" toml:"name"`
	Category             string       `json:"category" toml:"category"`
	Severity             RuleSeverity `json:"severity" toml:"severity"`
	LoanTypes            []string     `json:"loan_types,omitempty" toml:"loan_types"`
	States               []string     `json:"states,omitempty" toml:"states"`
	EffectiveFrom        *time.Time   `json:"effective_from,omitempty" toml:"-"`
	EffectiveTo          *time.Time   `json:"effective_to,omitempty" toml:"-"`
	RequiresManualReview bool         `json:"requires_manual_review" toml:"requires_manual_review"`
	Logic                RuleLogic    `json:"logic" toml:"logic"`
}
